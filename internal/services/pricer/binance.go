package pricer

import (
	"context"
	"net/http"
	"sort"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/folio/internal/domain"
)

const (
	binanceCodeTooManyRequests = -1003
	binanceCodeBadSymbol       = -1121
)

// BinanceSource prices assets from Binance 24h ticker statistics. It needs no
// API keys, the endpoint is public.
type BinanceSource struct {
	client *binance.Client
	quote  string
}

func NewBinanceSource(client *binance.Client, quote string) *BinanceSource {
	return &BinanceSource{client: client, quote: domain.NormalizeSymbol(quote)}
}

func (s *BinanceSource) Prices(ctx context.Context, assets []domain.Asset) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(assets))
	pairs := groupByPair(assets, s.quote, out)
	if len(pairs) == 0 {
		return out, nil
	}

	symbols := make([]string, 0, len(pairs))
	for pair := range pairs {
		symbols = append(symbols, pair)
	}
	sort.Strings(symbols)

	stats, err := s.client.NewListPriceChangeStatsService().Symbols(symbols).Do(ctx)
	if err != nil {
		if isBinanceRateLimit(err) {
			return nil, errors.Wrapf(ErrRateLimited, "binance: %v", err)
		}
		if !isBinanceBadSymbol(err) {
			return nil, errors.Wrap(err, "binance 24h ticker stats")
		}

		// one unknown pair fails the whole batch request, fall back to one request per pair
		stats, err = s.eachSymbol(ctx, symbols)
		if err != nil {
			return nil, err
		}
	}

	for _, st := range stats {
		quote, err := parseQuote(st.LastPrice, st.PriceChangePercent)
		if err != nil {
			return nil, errors.Wrapf(err, "binance quote for %s", st.Symbol)
		}
		for _, a := range pairs[st.Symbol] {
			out[a.AssetID] = quote
		}
	}

	return out, nil
}

func (s *BinanceSource) eachSymbol(ctx context.Context, symbols []string) ([]*binance.PriceChangeStats, error) {
	var stats []*binance.PriceChangeStats
	for _, symbol := range symbols {
		res, err := s.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		if err != nil {
			if isBinanceRateLimit(err) {
				return nil, errors.Wrapf(ErrRateLimited, "binance: %v", err)
			}
			if isBinanceBadSymbol(err) {
				continue
			}
			return nil, errors.Wrapf(err, "binance 24h ticker stats for %s", symbol)
		}
		stats = append(stats, res...)
	}

	return stats, nil
}

func isBinanceRateLimit(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == binanceCodeTooManyRequests || apiErr.Code == http.StatusTooManyRequests
	}

	return false
}

func isBinanceBadSymbol(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == binanceCodeBadSymbol
}
