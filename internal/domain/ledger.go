package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Appender durably stores a transaction before the ledger applies it.
type Appender interface {
	Append(tx Transaction) error
}

// Holding is the position in one asset derived from the ledger history.
type Holding struct {
	Symbol      string          `json:"symbol"`
	AssetID     string          `json:"asset_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	Invested    decimal.Decimal `json:"invested"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	FirstTime   time.Time       `json:"first_time"`
	LastTime    time.Time       `json:"last_time"`
}

// IsActive reports whether any quantity is still held.
func (h Holding) IsActive() bool {
	return h.Quantity.IsPositive()
}

// Asset returns the symbol/identifier pair of the holding.
func (h Holding) Asset() Asset {
	return Asset{Symbol: h.Symbol, AssetID: h.AssetID}
}

// Ledger is the append-only transaction history of a single portfolio.
//
// Invested always equals the cost of the quantity still held. For a run of buys
// it is the exact sum of quantity*price, so the average does not depend on the
// order of the buys. A sell re-derives it from the unchanged average.
type Ledger struct {
	transactions []Transaction
	holdings     map[string]*Holding
	store        Appender
}

// NewLedger creates an empty ledger. store may be nil for an in-memory ledger.
func NewLedger(store Appender) *Ledger {
	return &Ledger{
		transactions: make([]Transaction, 0),
		holdings:     make(map[string]*Holding),
		store:        store,
	}
}

// ReplayLedger rebuilds a ledger from a stored history without writing it back.
// Symbols and asset ids are normalized the same way Record normalizes them.
func ReplayLedger(history []Transaction, store Appender) (*Ledger, error) {
	l := NewLedger(store)
	for i, tx := range history {
		tx.Symbol = NormalizeSymbol(tx.Symbol)
		tx.AssetID = NormalizeAssetID(tx.AssetID)
		if tx.ID == "" || tx.Time.IsZero() {
			return nil, errors.Wrapf(ErrInvalidInput, "replay transaction %d: id and time are required", i)
		}
		if err := l.check(tx); err != nil {
			return nil, errors.Wrapf(err, "replay transaction %d (%s)", i, tx.ID)
		}
		l.apply(tx)
	}

	return l, nil
}

// Record validates, persists and applies a transaction.
// A rejected or unpersisted transaction leaves the ledger unchanged.
func (l *Ledger) Record(symbol, assetID string, quantity, unitPrice decimal.Decimal, side Side, at time.Time) (Transaction, error) {
	tx, err := NewTransaction(symbol, assetID, quantity, unitPrice, side, at)
	if err != nil {
		return Transaction{}, err
	}
	if err := l.check(tx); err != nil {
		return Transaction{}, err
	}

	if l.store != nil {
		if err := l.store.Append(tx); err != nil {
			return Transaction{}, fmt.Errorf("%w: append transaction %s: %w", ErrPersistence, tx.ID, err)
		}
	}

	l.apply(tx)
	return tx, nil
}

// check validates tx against the current state.
func (l *Ledger) check(tx Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	h, ok := l.holdings[tx.Symbol]
	if ok && h.AssetID != tx.AssetID {
		return errors.Wrapf(ErrInvalidInput, "symbol %s is bound to asset %s, got %s", tx.Symbol, h.AssetID, tx.AssetID)
	}

	if tx.Side == SideSell {
		held := decimal.Zero
		if ok {
			held = h.Quantity
		}
		if tx.Quantity.GreaterThan(held) {
			return errors.Wrapf(ErrInsufficientHolding, "cannot sell %s %s, only %s held", tx.Quantity.String(), tx.Symbol, held.String())
		}
	}

	return nil
}

func (l *Ledger) apply(tx Transaction) {
	h, ok := l.holdings[tx.Symbol]
	if !ok {
		h = &Holding{
			Symbol:      tx.Symbol,
			AssetID:     tx.AssetID,
			Quantity:    decimal.Zero,
			AvgCost:     decimal.Zero,
			Invested:    decimal.Zero,
			RealizedPnL: decimal.Zero,
			FirstTime:   tx.Time,
		}
		l.holdings[tx.Symbol] = h
	}

	switch tx.Side {
	case SideBuy:
		h.Invested = h.Invested.Add(tx.TotalValue())
		h.Quantity = h.Quantity.Add(tx.Quantity)
		h.AvgCost = h.Invested.Div(h.Quantity)
	case SideSell:
		h.RealizedPnL = h.RealizedPnL.Add(tx.Quantity.Mul(tx.UnitPrice.Sub(h.AvgCost)))
		h.Quantity = h.Quantity.Sub(tx.Quantity)
		if h.Quantity.IsZero() {
			h.AvgCost = decimal.Zero
			h.Invested = decimal.Zero
		} else {
			h.Invested = h.Quantity.Mul(h.AvgCost)
		}
	}

	h.LastTime = tx.Time
	l.transactions = append(l.transactions, tx)
}

// Holding returns the holding for symbol, ok is false if it was never bought.
func (l *Ledger) Holding(symbol string) (Holding, bool) {
	h, ok := l.holdings[NormalizeSymbol(symbol)]
	if !ok {
		return Holding{}, false
	}

	return *h, true
}

// Holdings returns the active holdings sorted by symbol.
func (l *Ledger) Holdings() []Holding {
	out := make([]Holding, 0, len(l.holdings))
	for _, h := range l.holdings {
		if h.IsActive() {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	return out
}

// AllHoldings returns every holding ever opened, closed ones included, sorted by symbol.
func (l *Ledger) AllHoldings() []Holding {
	out := make([]Holding, 0, len(l.holdings))
	for _, h := range l.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	return out
}

// Transactions returns a copy of the history in recording order.
func (l *Ledger) Transactions() []Transaction {
	out := make([]Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// RealizedPnL sums realized profit over every asset, closed positions included.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, h := range l.holdings {
		total = total.Add(h.RealizedPnL)
	}

	return total
}

// Len returns the number of recorded transactions.
func (l *Ledger) Len() int {
	return len(l.transactions)
}
