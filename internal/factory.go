package internal

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/config"
	"github.com/vadiminshakov/folio/internal/clients"
	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/services/notifier"
	"github.com/vadiminshakov/folio/internal/services/pricer"
	"github.com/vadiminshakov/folio/internal/storage/alertstate"
	"github.com/vadiminshakov/folio/internal/storage/ledgerfile"
	"github.com/vadiminshakov/folio/internal/storage/snapshots"
)

const simulateSeed = 42

// NewPriceSource picks the price source implementation for the configured platform.
// This is the single point of truth for dispatching to platform-specific implementations.
func NewPriceSource(cfg config.Config) (pricer.Source, error) {
	ps := cfg.PriceSource
	switch ps.Platform {
	case config.PlatformCoinGecko:
		return pricer.NewPublicCoinGeckoSource(ps.BaseURL, cfg.DisplayCurrency), nil
	case config.PlatformBinance:
		return pricer.NewBinanceSource(clients.NewBinanceClient(ps.BaseURL), ps.Quote), nil
	case config.PlatformBybit:
		return pricer.NewBybitSource(clients.NewBybitClient(ps.BaseURL), ps.Quote), nil
	case config.PlatformHyperliquid:
		return pricer.NewHyperliquidSource(clients.NewHyperliquidInfo(ps.BaseURL), ps.Quote), nil
	case config.PlatformSimulate:
		return pricer.NewSimulateSource(simulateSeed, nil), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", ps.Platform)
	}
}

// NewCollector wraps the configured source with batching, timeout and retries.
func NewCollector(cfg config.Config, logger *zap.Logger) (*pricer.Collector, error) {
	source, err := NewPriceSource(cfg)
	if err != nil {
		return nil, err
	}

	return pricer.NewCollector(source, pricer.CollectorConfig{
		BatchSize: cfg.PriceSource.BatchSize,
		Timeout:   cfg.PriceSource.Timeout,
		Retries:   cfg.PriceSource.Retries,
	}, logger.Named("pricer").With(zap.String("platform", cfg.PriceSource.Platform))), nil
}

// NewNotifier always logs alerts and also publishes them to Kafka when brokers are configured.
func NewNotifier(cfg config.Config, logger *zap.Logger) notifier.Notifier {
	fanout := notifier.Fanout{notifier.NewLogNotifier(logger)}
	if len(cfg.Notifier.KafkaBrokers) > 0 {
		fanout = append(fanout, notifier.NewKafkaNotifier(cfg.Notifier.KafkaBrokers, cfg.Notifier.KafkaTopic))
		logger.Info("kafka alert notifier enabled",
			zap.String("brokers", strings.Join(cfg.Notifier.KafkaBrokers, ",")),
			zap.String("topic", cfg.Notifier.KafkaTopic))
	}

	return fanout
}

// Stores are the files under the data dir.
type Stores struct {
	Ledger     *ledgerfile.Store
	History    *snapshots.WALStore
	AlertState *alertstate.Store
}

// OpenStores opens every store under cfg.DataDir.
func OpenStores(cfg config.Config) (*Stores, error) {
	ledger, err := ledgerfile.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	history, err := snapshots.NewWALStore(filepath.Join(cfg.DataDir, "history"), cfg.Export.KeepHistory)
	if err != nil {
		return nil, err
	}

	alerts, err := alertstate.NewStore(cfg.DataDir)
	if err != nil {
		return nil, multierr.Append(err, history.Close())
	}

	return &Stores{Ledger: ledger, History: history, AlertState: alerts}, nil
}

// LoadLedger replays the ledger file. Later records are appended to the same file.
func (s *Stores) LoadLedger() (*domain.Ledger, error) {
	history, err := s.Ledger.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load ledger")
	}

	ledger, err := domain.ReplayLedger(history, s.Ledger)
	if err != nil {
		return nil, errors.Wrapf(err, "replay ledger %s", s.Ledger.Path())
	}

	return ledger, nil
}

func (s *Stores) Close() error {
	if s == nil || s.History == nil {
		return nil
	}

	return s.History.Close()
}
