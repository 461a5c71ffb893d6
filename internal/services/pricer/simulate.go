package pricer

import (
	"context"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/internal/domain"
)

// DefaultSimulatedPrices seeds the simulated market for well known asset ids.
var DefaultSimulatedPrices = map[string]decimal.Decimal{
	"bitcoin":     decimal.NewFromInt(45000),
	"ethereum":    decimal.NewFromInt(3000),
	"solana":      decimal.NewFromInt(100),
	"cardano":     decimal.RequireFromString("0.45"),
	"ripple":      decimal.RequireFromString("0.55"),
	"dogecoin":    decimal.RequireFromString("0.08"),
	"polkadot":    decimal.NewFromInt(7),
	"chainlink":   decimal.NewFromInt(15),
	"tether":      decimal.NewFromInt(1),
	"binancecoin": decimal.NewFromInt(300),
}

// max move per call, in percent
const simulateMaxStep = 3.0

// SimulateSource is an offline market: every call moves each known asset by a
// seeded random step. The same seed always produces the same price path.
// Unknown asset ids are left out of the result.
type SimulateSource struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	open   map[string]decimal.Decimal
	prices map[string]decimal.Decimal
}

func NewSimulateSource(seed int64, base map[string]decimal.Decimal) *SimulateSource {
	if base == nil {
		base = DefaultSimulatedPrices
	}

	open := make(map[string]decimal.Decimal, len(base))
	prices := make(map[string]decimal.Decimal, len(base))
	for id, p := range base {
		open[domain.NormalizeAssetID(id)] = p
		prices[domain.NormalizeAssetID(id)] = p
	}

	return &SimulateSource{
		rnd:    rand.New(rand.NewSource(seed)),
		open:   open,
		prices: prices,
	}
}

func (s *SimulateSource) Prices(ctx context.Context, assets []domain.Asset) (map[string]domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.Quote, len(assets))
	for _, a := range assets {
		if _, done := out[a.AssetID]; done {
			continue
		}
		price, ok := s.prices[a.AssetID]
		if !ok {
			continue
		}

		step := (s.rnd.Float64()*2 - 1) * simulateMaxStep
		next := price.Mul(decimal.NewFromFloat(1 + step/100)).Round(8)
		if !next.IsPositive() {
			next = price
		}
		s.prices[a.AssetID] = next

		out[a.AssetID] = domain.Quote{
			Price:     next,
			Change24h: domain.Percent(next.Sub(s.open[a.AssetID]), s.open[a.AssetID]).Round(4),
		}
	}

	return out, nil
}
