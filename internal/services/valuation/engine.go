// Package valuation turns ledger holdings and fetched prices into a portfolio snapshot.
package valuation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/internal/domain"
)

// ComputeSnapshot values every holding against prices (keyed by symbol).
//
// A holding without a price is kept in the breakdown with
// StatusPriceUnavailable and left out of every total, including the
// allocation denominator, so one missing price never blocks the rest.
func ComputeSnapshot(holdings []domain.Holding, prices map[string]domain.PricePoint, at time.Time) domain.ValuationSnapshot {
	snap := domain.ValuationSnapshot{
		TakenAt:          at,
		TotalInvested:    decimal.Zero,
		TotalValue:       decimal.Zero,
		TotalPnL:         decimal.Zero,
		TotalPnLPercent:  decimal.Zero,
		UnpricedInvested: decimal.Zero,
		RealizedPnL:      decimal.Zero,
		Holdings:         make([]domain.HoldingValuation, 0, len(holdings)),
	}

	for _, h := range holdings {
		snap.RealizedPnL = snap.RealizedPnL.Add(h.RealizedPnL)
		if !h.IsActive() {
			continue
		}

		row := domain.HoldingValuation{
			Symbol:            h.Symbol,
			AssetID:           h.AssetID,
			Status:            domain.StatusPriceUnavailable,
			Quantity:          h.Quantity,
			AvgCost:           h.AvgCost,
			Invested:          h.Invested,
			RealizedPnL:       h.RealizedPnL,
			CurrentPrice:      decimal.Zero,
			CurrentValue:      decimal.Zero,
			UnrealizedPnL:     decimal.Zero,
			PnLPercent:        decimal.Zero,
			Change24h:         decimal.Zero,
			AllocationPercent: decimal.Zero,
		}

		price, ok := prices[h.Symbol]
		if !ok || !price.Price.IsPositive() {
			snap.UnpricedInvested = snap.UnpricedInvested.Add(h.Invested)
			snap.Unavailable = append(snap.Unavailable, h.Symbol)
			snap.Holdings = append(snap.Holdings, row)
			continue
		}

		row.Status = domain.StatusPriced
		row.CurrentPrice = price.Price
		row.Change24h = price.Change24h
		row.CurrentValue = h.Quantity.Mul(price.Price)
		row.UnrealizedPnL = row.CurrentValue.Sub(h.Invested)
		row.PnLPercent = domain.Percent(row.UnrealizedPnL, h.Invested)

		snap.TotalInvested = snap.TotalInvested.Add(h.Invested)
		snap.TotalValue = snap.TotalValue.Add(row.CurrentValue)
		snap.Holdings = append(snap.Holdings, row)
	}

	for i := range snap.Holdings {
		if snap.Holdings[i].Priced() {
			snap.Holdings[i].AllocationPercent = domain.Percent(snap.Holdings[i].CurrentValue, snap.TotalValue)
		}
	}

	snap.TotalPnL = snap.TotalValue.Sub(snap.TotalInvested)
	snap.TotalPnLPercent = domain.Percent(snap.TotalPnL, snap.TotalInvested)

	sort.SliceStable(snap.Holdings, func(i, j int) bool {
		a, b := snap.Holdings[i], snap.Holdings[j]
		if !a.AllocationPercent.Equal(b.AllocationPercent) {
			return a.AllocationPercent.GreaterThan(b.AllocationPercent)
		}
		return a.Symbol < b.Symbol
	})
	sort.Strings(snap.Unavailable)

	return snap
}
