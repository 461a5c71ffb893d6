package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Side is the direction of a ledger transaction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts "buy" or "sell" in any letter case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", errors.Wrapf(ErrInvalidSide, "got %q", s)
	}
}

func (s Side) String() string {
	return string(s)
}

// Asset binds a ticker symbol to the identifier the price source knows it by.
type Asset struct {
	Symbol  string `json:"symbol"`
	AssetID string `json:"asset_id"`
}

// Transaction is a single immutable ledger entry.
type Transaction struct {
	ID        string          `json:"id"`
	Time      time.Time       `json:"time"`
	Symbol    string          `json:"symbol"`
	AssetID   string          `json:"asset_id"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// NewTransaction validates the parameters and stamps a fresh ID.
func NewTransaction(symbol, assetID string, quantity, unitPrice decimal.Decimal, side Side, at time.Time) (Transaction, error) {
	tx := Transaction{
		ID:        uuid.New().String(),
		Time:      at,
		Symbol:    NormalizeSymbol(symbol),
		AssetID:   NormalizeAssetID(assetID),
		Side:      side,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// Validate checks the stateless invariants of a transaction.
func (t Transaction) Validate() error {
	if t.Symbol == "" || t.AssetID == "" {
		return ErrInvalidSymbol
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return errors.Wrapf(ErrInvalidSide, "got %q", string(t.Side))
	}
	if t.Quantity.LessThanOrEqual(decimal.Zero) {
		return errors.Wrapf(ErrInvalidQuantity, "got %s", t.Quantity.String())
	}
	if t.UnitPrice.LessThanOrEqual(decimal.Zero) {
		return errors.Wrapf(ErrInvalidPrice, "got %s", t.UnitPrice.String())
	}

	return nil
}

// TotalValue is quantity times unit price.
func (t Transaction) TotalValue() decimal.Decimal {
	return t.Quantity.Mul(t.UnitPrice)
}

// Asset returns the symbol/identifier pair of the transaction.
func (t Transaction) Asset() Asset {
	return Asset{Symbol: t.Symbol, AssetID: t.AssetID}
}

func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func NormalizeAssetID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
