package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const percentageMultiplier = 100

// Quote is what a price source returns for one asset.
type Quote struct {
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
}

// PricePoint is a quote bound to its asset and fetch time. It lives for one cycle.
type PricePoint struct {
	Symbol    string          `json:"symbol"`
	AssetID   string          `json:"asset_id"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Percent returns part/whole*100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}

	return part.Div(whole).Mul(decimal.NewFromInt(percentageMultiplier))
}
