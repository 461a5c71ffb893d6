// Package alerting turns valuation snapshots into threshold alerts.
package alerting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/internal/domain"
)

// Evaluate checks snapshot against thresholds and returns the alerts that
// fired at now together with the updated cooldown state.
//
// The input state is never mutated. A key that fired at T stays silent until
// T + cooldown, whether or not its condition cleared in between.
// previous may be nil; when set it only fills Alert.Previous.
func Evaluate(
	snapshot domain.ValuationSnapshot,
	previous *domain.ValuationSnapshot,
	thresholds domain.AlertThresholds,
	state domain.AlertState,
	now time.Time,
) ([]domain.Alert, domain.AlertState) {
	next := state.Clone()
	var fired []domain.Alert

	emit := func(a domain.Alert) {
		if !next.CanFire(a.Key, now, thresholds.Cooldown) {
			return
		}
		a.FiredAt = now
		next.LastFired[a.Key] = now
		fired = append(fired, a)
	}

	if snapshot.HasPrices() {
		for _, a := range portfolioAlerts(snapshot, previous, thresholds) {
			emit(a)
		}
	}

	for _, h := range snapshot.Holdings {
		if !h.Priced() {
			continue
		}
		if h.Change24h.Abs().LessThan(thresholds.IndividualCoin) {
			continue
		}

		direction := "surged"
		if h.Change24h.IsNegative() {
			direction = "dropped"
		}

		a := domain.Alert{
			Kind:      domain.AlertCoinMovement,
			Key:       domain.AlertKey(domain.AlertCoinMovement, h.Symbol),
			Symbol:    h.Symbol,
			Severity:  domain.SeverityMedium,
			Value:     h.Change24h,
			Threshold: thresholds.IndividualCoin,
			Message:   fmt.Sprintf("%s %s %s%% in 24h", h.Symbol, direction, h.Change24h.Abs().StringFixed(2)),
		}
		if previous != nil {
			if prev, ok := previous.Holding(h.Symbol); ok && prev.Priced() {
				a.Previous = decimal.NewNullDecimal(prev.Change24h)
			}
		}
		emit(a)
	}

	return fired, next
}

func portfolioAlerts(snapshot domain.ValuationSnapshot, previous *domain.ValuationSnapshot, thresholds domain.AlertThresholds) []domain.Alert {
	pnl := snapshot.TotalPnLPercent

	var prev decimal.NullDecimal
	if previous != nil && previous.HasPrices() {
		prev = decimal.NewNullDecimal(previous.TotalPnLPercent)
	}

	var out []domain.Alert
	if pnl.LessThanOrEqual(thresholds.PortfolioDrop) {
		out = append(out, domain.Alert{
			Kind:      domain.AlertPortfolioDrop,
			Key:       domain.AlertKey(domain.AlertPortfolioDrop, ""),
			Severity:  domain.SeverityHigh,
			Value:     pnl,
			Threshold: thresholds.PortfolioDrop,
			Previous:  prev,
			Message:   fmt.Sprintf("Portfolio down %s%%", pnl.Abs().StringFixed(2)),
		})
	}
	if pnl.GreaterThanOrEqual(thresholds.PortfolioGain) {
		out = append(out, domain.Alert{
			Kind:      domain.AlertPortfolioGain,
			Key:       domain.AlertKey(domain.AlertPortfolioGain, ""),
			Severity:  domain.SeverityMedium,
			Value:     pnl,
			Threshold: thresholds.PortfolioGain,
			Previous:  prev,
			Message:   fmt.Sprintf("Portfolio up %s%%", pnl.StringFixed(2)),
		})
	}

	return out
}
