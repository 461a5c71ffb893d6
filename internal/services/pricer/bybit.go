package pricer

import (
	"context"
	"strings"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/internal/domain"
)

// BybitSource prices assets from Bybit spot tickers.
type BybitSource struct {
	client *bybit.Client
	quote  string
}

func NewBybitSource(client *bybit.Client, quote string) *BybitSource {
	return &BybitSource{client: client, quote: domain.NormalizeSymbol(quote)}
}

func (s *BybitSource) Prices(ctx context.Context, assets []domain.Asset) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(assets))
	pairs := groupByPair(assets, s.quote, out)
	if len(pairs) == 0 {
		return out, nil
	}

	type tickersResult struct {
		res *bybit.V5GetTickersResponse
		err error
	}

	// the bybit client takes no context, so the call is raced against ctx
	done := make(chan tickersResult, 1)
	go func() {
		res, err := s.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: "spot",
		})
		done <- tickersResult{res: res, err: err}
	}()

	var result tickersResult
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "bybit spot tickers")
	case result = <-done:
	}

	if result.err != nil {
		if isBybitRateLimit(result.err) {
			return nil, errors.Wrapf(ErrRateLimited, "bybit: %v", result.err)
		}
		return nil, errors.Wrap(result.err, "bybit spot tickers")
	}
	if result.res == nil || result.res.Result.Spot == nil {
		return nil, errors.New("bybit API returned no spot tickers")
	}

	for _, ticker := range result.res.Result.Spot.List {
		matched, ok := pairs[string(ticker.Symbol)]
		if !ok {
			continue
		}

		quote, err := parseQuote(ticker.LastPrice, ticker.Price24HPcnt)
		if err != nil {
			return nil, errors.Wrapf(err, "bybit quote for %s", ticker.Symbol)
		}
		// bybit reports the 24h change as a fraction
		quote.Change24h = quote.Change24h.Mul(decimal.NewFromInt(100))

		for _, a := range matched {
			out[a.AssetID] = quote
		}
	}

	return out, nil
}

// isBybitRateLimit matches retCode 10006/10018 responses and a bare HTTP 429.
func isBybitRateLimit(err error) bool {
	var rateErr *bybit.RateLimitV5Error
	if errors.As(err, &rateErr) {
		return true
	}

	return strings.Contains(err.Error(), "status code 429")
}
