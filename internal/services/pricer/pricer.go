// Package pricer fetches current prices and 24h changes for portfolio assets.
package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/internal/domain"
)

// ErrRateLimited is returned by a source when the upstream API throttles us.
// A rate limited request is not retried within the same cycle.
var ErrRateLimited = errors.New("price source rate limited")

// Source returns quotes keyed by asset identifier. Assets the source does not
// know are simply missing from the result.
type Source interface {
	Prices(ctx context.Context, assets []domain.Asset) (map[string]domain.Quote, error)
}

func parseQuote(price, change string) (domain.Quote, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Quote{}, errors.Wrapf(err, "parse price %q", price)
	}

	c := decimal.Zero
	if change != "" {
		c, err = decimal.NewFromString(change)
		if err != nil {
			return domain.Quote{}, errors.Wrapf(err, "parse 24h change %q", change)
		}
	}

	return domain.Quote{Price: p, Change24h: c}, nil
}

// groupByPair maps exchange pair symbols (BTCUSDT) to the assets they price.
// Assets denominated in the quote currency itself are priced at 1 directly into out.
func groupByPair(assets []domain.Asset, quote string, out map[string]domain.Quote) map[string][]domain.Asset {
	pairs := make(map[string][]domain.Asset)
	for _, a := range assets {
		if a.Symbol == quote {
			out[a.AssetID] = domain.Quote{Price: decimal.NewFromInt(1), Change24h: decimal.Zero}
			continue
		}
		pair := a.Symbol + quote
		pairs[pair] = append(pairs[pair], a)
	}

	return pairs
}
