package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingStatus tells whether a holding could be valued this cycle.
type HoldingStatus string

const (
	StatusPriced           HoldingStatus = "priced"
	StatusPriceUnavailable HoldingStatus = "price_unavailable"
)

// HoldingValuation is one row of a snapshot.
// Price dependent fields are zero when Status is StatusPriceUnavailable.
type HoldingValuation struct {
	Symbol            string          `json:"symbol"`
	AssetID           string          `json:"asset_id"`
	Status            HoldingStatus   `json:"status"`
	Quantity          decimal.Decimal `json:"quantity"`
	AvgCost           decimal.Decimal `json:"avg_cost"`
	Invested          decimal.Decimal `json:"invested"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	PnLPercent        decimal.Decimal `json:"pnl_percent"`
	Change24h         decimal.Decimal `json:"change_24h"`
	AllocationPercent decimal.Decimal `json:"allocation_percent"`
}

// Priced reports whether the row carries a live price.
func (h HoldingValuation) Priced() bool {
	return h.Status == StatusPriced
}

// ValuationSnapshot is the full portfolio valuation of one cycle. It is
// recomputed from scratch every time and never patched.
type ValuationSnapshot struct {
	TakenAt          time.Time          `json:"taken_at"`
	TotalInvested    decimal.Decimal    `json:"total_invested"`
	TotalValue       decimal.Decimal    `json:"total_value"`
	TotalPnL         decimal.Decimal    `json:"total_pnl"`
	TotalPnLPercent  decimal.Decimal    `json:"total_pnl_percent"`
	UnpricedInvested decimal.Decimal    `json:"unpriced_invested"`
	RealizedPnL      decimal.Decimal    `json:"realized_pnl"`
	Holdings         []HoldingValuation `json:"holdings"`
	Unavailable      []string           `json:"unavailable,omitempty"`
}

// PricedCount returns the number of holdings valued with a live price.
func (s ValuationSnapshot) PricedCount() int {
	n := 0
	for _, h := range s.Holdings {
		if h.Priced() {
			n++
		}
	}

	return n
}

// HasPrices reports whether at least one holding is priced.
func (s ValuationSnapshot) HasPrices() bool {
	return s.PricedCount() > 0
}

// Holding looks up the row of symbol.
func (s ValuationSnapshot) Holding(symbol string) (HoldingValuation, bool) {
	symbol = NormalizeSymbol(symbol)
	for _, h := range s.Holdings {
		if h.Symbol == symbol {
			return h, true
		}
	}

	return HoldingValuation{}, false
}

// SnapshotRecord bundles a stored snapshot with its position in the history.
type SnapshotRecord struct {
	Index    uint64            `json:"index"`
	Snapshot ValuationSnapshot `json:"snapshot"`
}
