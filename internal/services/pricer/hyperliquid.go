package pricer

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/folio/internal/domain"
)

// HyperliquidSource prices assets from the perpetuals contexts of the
// Hyperliquid public Info API. Coins are keyed by ticker symbol and priced in USD.
type HyperliquidSource struct {
	info  *hyperliquid.Info
	quote string
}

// NewHyperliquidSource creates a source. Assets whose symbol equals quote
// (USDC by default) are priced at 1.
func NewHyperliquidSource(info *hyperliquid.Info, quote string) *HyperliquidSource {
	if quote == "" {
		quote = "USDC"
	}

	return &HyperliquidSource{info: info, quote: domain.NormalizeSymbol(quote)}
}

func (s *HyperliquidSource) Prices(ctx context.Context, assets []domain.Asset) (map[string]domain.Quote, error) {
	if s.info == nil {
		return nil, errors.New("hyperliquid info client is nil")
	}

	out := make(map[string]domain.Quote, len(assets))
	bySymbol := make(map[string][]domain.Asset)
	for _, a := range assets {
		if a.Symbol == s.quote {
			out[a.AssetID] = domain.Quote{Price: decimal.NewFromInt(1), Change24h: decimal.Zero}
			continue
		}
		bySymbol[a.Symbol] = append(bySymbol[a.Symbol], a)
	}
	if len(bySymbol) == 0 {
		return out, nil
	}

	res, err := s.info.MetaAndAssetCtxs(ctx)
	if err != nil {
		if isHyperliquidRateLimit(err) {
			return nil, errors.Wrapf(ErrRateLimited, "hyperliquid: %v", err)
		}
		return nil, errors.Wrap(err, "hyperliquid meta and asset contexts")
	}

	// contexts are positional, one per universe entry
	for i, coin := range res.Universe {
		if i >= len(res.Ctxs) {
			break
		}
		matched, ok := bySymbol[domain.NormalizeSymbol(coin.Name)]
		if !ok || coin.IsDelisted {
			continue
		}

		quote, err := hyperliquidQuote(res.Ctxs[i])
		if err != nil {
			return nil, errors.Wrapf(err, "hyperliquid quote for %s", coin.Name)
		}
		for _, a := range matched {
			out[a.AssetID] = quote
		}
	}

	return out, nil
}

// hyperliquidQuote derives the 24h change from the previous day price.
func hyperliquidQuote(c hyperliquid.AssetCtx) (domain.Quote, error) {
	q, err := parseQuote(c.MarkPx, "")
	if err != nil {
		return domain.Quote{}, err
	}

	if c.PrevDayPx != "" {
		prev, err := decimal.NewFromString(c.PrevDayPx)
		if err != nil {
			return domain.Quote{}, errors.Wrapf(err, "parse previous day price %q", c.PrevDayPx)
		}
		q.Change24h = domain.Percent(q.Price.Sub(prev), prev)
	}

	return q, nil
}

func isHyperliquidRateLimit(err error) bool {
	var apiErr hyperliquid.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}

	return strings.Contains(err.Error(), "status 429")
}
