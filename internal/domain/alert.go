package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind names an alert rule.
type AlertKind string

const (
	AlertPortfolioDrop AlertKind = "portfolio_drop"
	AlertPortfolioGain AlertKind = "portfolio_gain"
	AlertCoinMovement  AlertKind = "coin_movement"
)

// Severity of a fired alert.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
)

// AlertKey identifies the cooldown slot of a rule: the kind alone for
// portfolio rules, kind plus symbol for per coin rules.
func AlertKey(kind AlertKind, symbol string) string {
	if symbol == "" {
		return string(kind)
	}

	return fmt.Sprintf("%s:%s", kind, NormalizeSymbol(symbol))
}

// Alert is a fired notification.
type Alert struct {
	Kind      AlertKind           `json:"kind"`
	Key       string              `json:"key"`
	Symbol    string              `json:"symbol,omitempty"`
	Severity  Severity            `json:"severity"`
	Value     decimal.Decimal     `json:"value"`
	Threshold decimal.Decimal     `json:"threshold"`
	Previous  decimal.NullDecimal `json:"previous"`
	Message   string              `json:"message"`
	FiredAt   time.Time           `json:"fired_at"`
}

// AlertState remembers when each rule key last fired.
type AlertState struct {
	LastFired map[string]time.Time `json:"last_fired"`
}

// NewAlertState returns an empty state.
func NewAlertState() AlertState {
	return AlertState{LastFired: make(map[string]time.Time)}
}

// Clone returns a deep copy so callers can hand out the state without sharing the map.
func (s AlertState) Clone() AlertState {
	out := NewAlertState()
	for k, v := range s.LastFired {
		out.LastFired[k] = v
	}

	return out
}

// CanFire reports whether key is outside its cooldown window at now.
func (s AlertState) CanFire(key string, now time.Time, cooldown time.Duration) bool {
	last, ok := s.LastFired[key]
	if !ok {
		return true
	}

	return !now.Before(last.Add(cooldown))
}

// AlertThresholds configures the alert rules.
type AlertThresholds struct {
	PortfolioDrop  decimal.Decimal
	PortfolioGain  decimal.Decimal
	IndividualCoin decimal.Decimal
	Cooldown       time.Duration
}

// NewAlertThresholds creates validated thresholds.
func NewAlertThresholds(drop, gain, coin decimal.Decimal, cooldown time.Duration) (AlertThresholds, error) {
	if !drop.LessThan(gain) {
		return AlertThresholds{}, fmt.Errorf("portfolio drop threshold %s must be below gain threshold %s", drop.String(), gain.String())
	}
	if coin.LessThanOrEqual(decimal.Zero) {
		return AlertThresholds{}, fmt.Errorf("individual coin threshold must be positive, got %s", coin.String())
	}
	if cooldown < 0 {
		return AlertThresholds{}, fmt.Errorf("cooldown must not be negative, got %s", cooldown)
	}

	return AlertThresholds{
		PortfolioDrop:  drop,
		PortfolioGain:  gain,
		IndividualCoin: coin,
		Cooldown:       cooldown,
	}, nil
}
