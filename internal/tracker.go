package internal

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/config"
	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/services/alerting"
	"github.com/vadiminshakov/folio/internal/services/notifier"
	"github.com/vadiminshakov/folio/internal/services/report"
	"github.com/vadiminshakov/folio/internal/services/valuation"
	"go.uber.org/zap"
)

// ErrNoHoldings is returned by Cycle when there is nothing to value.
var ErrNoHoldings = errors.New("no active holdings")

type PriceCollector interface {
	Collect(ctx context.Context, assets []domain.Asset) (map[string]domain.PricePoint, error)
}

type SnapshotStore interface {
	Save(snapshot domain.ValuationSnapshot) (uint64, error)
	Latest() (domain.SnapshotRecord, bool)
	Len() int
}

type AlertStateStore interface {
	Load() (domain.AlertState, error)
	Save(state domain.AlertState) error
}

type SnapshotExporter interface {
	ExportSnapshotCSV(snapshot domain.ValuationSnapshot) (string, error)
}

// Ticker drives the polling loop.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Dependencies are the collaborators of a Tracker. Only Ledger and Collector
// are required.
type Dependencies struct {
	Ledger     *domain.Ledger
	Collector  PriceCollector
	History    SnapshotStore
	AlertState AlertStateStore
	Notifier   notifier.Notifier
	Exporter   SnapshotExporter
	Output     io.Writer
}

// CycleResult is what one poll produced.
type CycleResult struct {
	Snapshot domain.ValuationSnapshot
	Alerts   []domain.Alert
}

// Tracker runs the poll, value, alert, persist, report cycle.
type Tracker struct {
	cfg       config.Config
	deps      Dependencies
	logger    *zap.Logger
	now       func() time.Time
	newTicker func(time.Duration) Ticker

	// cycleMu keeps cycles from overlapping; mu guards the ledger and
	// everything a cycle publishes.
	cycleMu    sync.Mutex
	mu         sync.RWMutex
	latest     *domain.ValuationSnapshot
	alertState domain.AlertState
	lastExport time.Time
}

// NewTracker wires a tracker and restores the alert cooldowns and the last
// snapshot from their stores.
func NewTracker(cfg config.Config, deps Dependencies, logger *zap.Logger) (*Tracker, error) {
	if deps.Ledger == nil {
		return nil, errors.New("tracker needs a ledger")
	}
	if deps.Collector == nil {
		return nil, errors.New("tracker needs a price collector")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.NewLogNotifier(logger)
	}
	if deps.Output == nil {
		deps.Output = io.Discard
	}

	t := &Tracker{
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		now:        time.Now,
		newTicker:  newTimeTicker,
		alertState: domain.NewAlertState(),
	}

	if deps.AlertState != nil {
		state, err := deps.AlertState.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load alert state")
		}
		t.alertState = state
	}

	if deps.History != nil {
		if rec, ok := deps.History.Latest(); ok {
			snap := rec.Snapshot
			t.latest = &snap
		}
	}

	t.lastExport = t.now()

	return t, nil
}

// Record adds a transaction to the ledger. It never interleaves with a running cycle's read of the ledger.
func (t *Tracker) Record(symbol, assetID string, quantity, unitPrice decimal.Decimal, side domain.Side, at time.Time) (domain.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.deps.Ledger.Record(symbol, assetID, quantity, unitPrice, side, at)
	if err != nil {
		return domain.Transaction{}, err
	}

	t.logger.Info("transaction recorded",
		zap.String("id", tx.ID),
		zap.String("symbol", tx.Symbol),
		zap.Stringer("side", tx.Side),
		zap.String("quantity", tx.Quantity.String()),
		zap.String("unit_price", tx.UnitPrice.String()))

	return tx, nil
}

// Holdings returns the active holdings.
func (t *Tracker) Holdings() []domain.Holding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.deps.Ledger.Holdings()
}

// Transactions returns the full ledger history.
func (t *Tracker) Transactions() []domain.Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.deps.Ledger.Transactions()
}

// Latest returns the most recent complete snapshot.
func (t *Tracker) Latest() (domain.ValuationSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.latest == nil {
		return domain.ValuationSnapshot{}, false
	}

	return *t.latest, true
}

// AlertState returns a copy of the cooldown state.
func (t *Tracker) AlertState() domain.AlertState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.alertState.Clone()
}

// Cycle runs one poll. A price source failure leaves the previous snapshot in
// place; store and notifier failures are logged and do not fail the cycle.
func (t *Tracker) Cycle(ctx context.Context) (*CycleResult, error) {
	t.cycleMu.Lock()
	defer t.cycleMu.Unlock()

	t.mu.RLock()
	holdings := t.deps.Ledger.AllHoldings()
	t.mu.RUnlock()

	assets := make([]domain.Asset, 0, len(holdings))
	for _, h := range holdings {
		if h.IsActive() {
			assets = append(assets, h.Asset())
		}
	}
	if len(assets) == 0 {
		return nil, ErrNoHoldings
	}

	prices, err := t.deps.Collector.Collect(ctx, assets)
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect prices")
	}

	at := t.now()
	snap := valuation.ComputeSnapshot(holdings, prices, at)
	if len(snap.Unavailable) > 0 {
		t.logger.Warn("prices unavailable, holdings left out of totals",
			zap.Strings("symbols", snap.Unavailable),
			zap.Error(domain.ErrPriceUnavailable))
	}

	t.mu.RLock()
	previous := t.latest
	state := t.alertState
	t.mu.RUnlock()

	alerts, nextState := alerting.Evaluate(snap, previous, t.cfg.Alerts, state, at)

	if len(alerts) > 0 {
		if err := t.deps.Notifier.Notify(ctx, alerts); err != nil {
			t.logger.Error("failed to deliver alerts", zap.Int("alerts", len(alerts)), zap.Error(err))
		}
	}

	t.persist(snap, nextState)

	t.mu.Lock()
	t.latest = &snap
	t.alertState = nextState
	t.mu.Unlock()

	t.render(snap, alerts)
	t.maybeExport(snap, at)

	t.logger.Info("portfolio valued",
		zap.String("total_value", snap.TotalValue.StringFixed(2)),
		zap.String("total_pnl", snap.TotalPnL.StringFixed(2)),
		zap.String("total_pnl_percent", snap.TotalPnLPercent.StringFixed(2)),
		zap.Int("priced", snap.PricedCount()),
		zap.Int("alerts", len(alerts)))

	return &CycleResult{Snapshot: snap, Alerts: alerts}, nil
}

func (t *Tracker) persist(snap domain.ValuationSnapshot, state domain.AlertState) {
	if t.deps.History != nil {
		if _, err := t.deps.History.Save(snap); err != nil {
			t.logger.Error("failed to save snapshot", zap.Error(fmt.Errorf("%w: save snapshot: %w", domain.ErrPersistence, err)))
		}
	}
	if t.deps.AlertState != nil {
		if err := t.deps.AlertState.Save(state); err != nil {
			t.logger.Error("failed to save alert state", zap.Error(fmt.Errorf("%w: save alert state: %w", domain.ErrPersistence, err)))
		}
	}
}

func (t *Tracker) render(snap domain.ValuationSnapshot, alerts []domain.Alert) {
	out := report.Snapshot(snap, t.cfg.DisplayCurrency)
	if banner := report.Alerts(alerts); banner != "" {
		out += "\n" + banner
	}
	if _, err := io.WriteString(t.deps.Output, out+"\n"); err != nil {
		t.logger.Warn("failed to render report", zap.Error(err))
	}
}

func (t *Tracker) maybeExport(snap domain.ValuationSnapshot, at time.Time) {
	if !t.cfg.Export.AutoExportCSV || t.deps.Exporter == nil {
		return
	}

	t.mu.Lock()
	due := at.Sub(t.lastExport) >= t.cfg.Export.ExportInterval
	if due {
		t.lastExport = at
	}
	t.mu.Unlock()

	if !due {
		return
	}

	if _, err := t.deps.Exporter.ExportSnapshotCSV(snap); err != nil {
		t.logger.Error("auto export failed", zap.Error(err))
	}
}

// Run polls immediately and then every update interval until ctx is done.
// On shutdown the latest snapshot is exported once more if there is one.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := t.newTicker(t.cfg.UpdateInterval)
	defer ticker.Stop()

	t.logger.Info("Starting portfolio tracker",
		zap.Duration("update_interval", t.cfg.UpdateInterval),
		zap.String("currency", t.cfg.DisplayCurrency))

	t.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Context done, stopping portfolio tracker")
			t.finalExport()
			return ctx.Err()
		case <-ticker.Chan():
			t.runCycle(ctx)
		}
	}
}

func (t *Tracker) runCycle(ctx context.Context) {
	if _, err := t.Cycle(ctx); err != nil {
		switch {
		case errors.Is(err, ErrNoHoldings):
			t.logger.Warn("No active holdings, add a transaction first")
		case ctx.Err() != nil:
			t.logger.Debug("cycle interrupted by shutdown", zap.Error(err))
		default:
			t.logger.Error("cycle failed, will retry next interval", zap.Error(err))
		}
	}
}

func (t *Tracker) finalExport() {
	if t.deps.Exporter == nil {
		return
	}

	snap, ok := t.Latest()
	if !ok {
		return
	}

	path, err := t.deps.Exporter.ExportSnapshotCSV(snap)
	if err != nil {
		t.logger.Error("final export failed", zap.Error(err))
		return
	}

	history := 0
	if t.deps.History != nil {
		history = t.deps.History.Len()
	}
	t.logger.Info("final performance data exported", zap.String("file", path), zap.Int("snapshots", history))
}

// Close releases the notifier.
func (t *Tracker) Close() error {
	return t.deps.Notifier.Close()
}
