package pricer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/pkg/retrier"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize     = 50
	defaultFetchTimeout  = 10 * time.Second
	defaultRetryInterval = 500 * time.Millisecond
	maxParallelBatches   = 4
)

// CollectorConfig tunes how a Collector talks to its source.
type CollectorConfig struct {
	BatchSize     int
	Timeout       time.Duration
	Retries       int
	RetryInterval time.Duration
}

// Collector fans price requests out in batches and turns the answers into
// PricePoints keyed by symbol. A failed batch only makes its own assets
// unavailable.
type Collector struct {
	source  Source
	cfg     CollectorConfig
	retrier *retrier.Retrier
	logger  *zap.Logger
	now     func() time.Time
}

func NewCollector(source Source, cfg CollectorConfig, logger *zap.Logger) *Collector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}

	return &Collector{
		source: source,
		cfg:    cfg,
		retrier: retrier.New(
			retrier.WithMaxRetries(cfg.Retries),
			retrier.WithInitialInterval(cfg.RetryInterval),
			retrier.WithMaxInterval(cfg.Timeout),
			retrier.WithRetryIf(retryable),
		),
		logger: logger,
		now:    time.Now,
	}
}

// Collect fetches prices for assets. The returned map contains only assets
// that were priced. ErrSourceUnreachable is returned when every batch failed.
func (c *Collector) Collect(ctx context.Context, assets []domain.Asset) (map[string]domain.PricePoint, error) {
	prices := make(map[string]domain.PricePoint, len(assets))
	if len(assets) == 0 {
		return prices, nil
	}

	batches := batch(assets, c.cfg.BatchSize)

	var (
		mu      sync.Mutex
		failed  int
		lastErr error
		g       errgroup.Group
	)
	g.SetLimit(maxParallelBatches)

	for i, b := range batches {
		g.Go(func() error {
			quotes, err := c.fetch(ctx, b)
			at := c.now()

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failed++
				lastErr = err
				c.logger.Warn("price batch failed",
					zap.Int("batch", i),
					zap.Int("assets", len(b)),
					zap.Error(err))
				return nil
			}

			for _, a := range b {
				q, ok := quotes[a.AssetID]
				if !ok || !q.Price.IsPositive() {
					continue
				}
				prices[a.Symbol] = domain.PricePoint{
					Symbol:    a.Symbol,
					AssetID:   a.AssetID,
					Price:     q.Price,
					Change24h: q.Change24h,
					FetchedAt: at,
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(batches) {
		return prices, errors.Wrapf(domain.ErrSourceUnreachable, "all %d price batches failed: %v", failed, lastErr)
	}

	return prices, nil
}

func (c *Collector) fetch(ctx context.Context, assets []domain.Asset) (map[string]domain.Quote, error) {
	return retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (map[string]domain.Quote, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		return c.source.Prices(fetchCtx, assets)
	})
}

func retryable(err error) bool {
	return !errors.Is(err, ErrRateLimited) && !errors.Is(err, context.Canceled)
}

func batch(assets []domain.Asset, size int) [][]domain.Asset {
	var out [][]domain.Asset
	for start := 0; start < len(assets); start += size {
		end := start + size
		if end > len(assets) {
			end = len(assets)
		}
		out = append(out, assets[start:end])
	}

	return out
}
