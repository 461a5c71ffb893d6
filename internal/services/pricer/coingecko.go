package pricer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/folio/internal/domain"
	"golang.org/x/time/rate"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

	// public tier allows roughly 30 calls per minute
	coinGeckoMinInterval = 2 * time.Second
)

// CoinGeckoSource reads /simple/price from the public CoinGecko API.
type CoinGeckoSource struct {
	baseURL    string
	currency   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCoinGeckoSource creates a CoinGecko source quoting in currency (usd, eur...).
// minInterval paces consecutive requests; zero disables pacing.
func NewCoinGeckoSource(baseURL, currency string, minInterval time.Duration) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}

	return &CoinGeckoSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: strings.ToLower(currency),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// NewPublicCoinGeckoSource uses the pacing of the free public tier.
func NewPublicCoinGeckoSource(baseURL, currency string) *CoinGeckoSource {
	return NewCoinGeckoSource(baseURL, currency, coinGeckoMinInterval)
}

func (s *CoinGeckoSource) Prices(ctx context.Context, assets []domain.Asset) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(assets))
	if len(assets) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if _, ok := seen[a.AssetID]; ok {
			continue
		}
		seen[a.AssetID] = struct{}{}
		ids = append(ids, a.AssetID)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "wait for coingecko rate limiter")
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", s.currency)
	q.Set("include_24hr_change", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrapf(ErrRateLimited, "coingecko returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko returned status %d: %s", resp.StatusCode, string(body))
	}

	// numbers are decoded as json.Number so prices never pass through float64
	var payload map[string]map[string]json.Number
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	changeKey := s.currency + "_24h_change"
	for _, id := range ids {
		fields, ok := payload[id]
		if !ok {
			continue
		}
		price, ok := fields[s.currency]
		if !ok {
			continue
		}

		quote, err := parseQuote(price.String(), fields[changeKey].String())
		if err != nil {
			return nil, errors.Wrapf(err, "coingecko quote for %s", id)
		}
		out[id] = quote
	}

	return out, nil
}
