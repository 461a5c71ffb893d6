package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/internal/domain"
	"go.uber.org/zap"
)

// Format of an export file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts csv or json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

var (
	performanceHeader = []string{
		"timestamp", "symbol", "quantity", "avg_buy_price", "current_price",
		"invested_value", "current_value", "unrealized_pnl", "pnl_percentage",
		"price_change_24h", "allocation_percentage", "status",
	}
	transactionHeader = []string{
		"id", "time", "symbol", "asset_id", "side", "quantity", "unit_price", "total_value",
	}
)

// State is the full JSON export: the history plus what was derived from it.
type State struct {
	ExportedAt   time.Time                 `json:"exported_at"`
	Currency     string                    `json:"currency,omitempty"`
	Transactions []domain.Transaction      `json:"transactions"`
	Holdings     []domain.Holding          `json:"holdings"`
	Snapshot     *domain.ValuationSnapshot `json:"snapshot,omitempty"`
}

// Exporter writes export files into a directory.
type Exporter struct {
	outputDir string
	logger    *zap.Logger
	now       func() time.Time
}

func NewExporter(outputDir string, logger *zap.Logger) *Exporter {
	return &Exporter{outputDir: outputDir, logger: logger, now: time.Now}
}

// ExportSnapshotCSV writes the per holding performance of snap.
func (e *Exporter) ExportSnapshotCSV(snap domain.ValuationSnapshot) (string, error) {
	path, err := e.create("portfolio_performance", FormatCSV, func(w io.Writer) error {
		return WriteSnapshotCSV(w, snap)
	})
	if err != nil {
		return "", err
	}

	e.logger.Info("performance exported", zap.String("file", path), zap.Int("holdings", len(snap.Holdings)))

	return path, nil
}

// ExportTransactions writes the transaction history as CSV or as the JSON state.
func (e *Exporter) ExportTransactions(format Format, state State) (string, error) {
	var write func(io.Writer) error
	switch format {
	case FormatCSV:
		write = func(w io.Writer) error { return WriteTransactionsCSV(w, state.Transactions) }
	case FormatJSON:
		write = func(w io.Writer) error { return WriteState(w, state) }
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}

	path, err := e.create("portfolio_transactions", format, write)
	if err != nil {
		return "", err
	}

	e.logger.Info("transactions exported",
		zap.String("file", path),
		zap.Int("count", len(state.Transactions)),
		zap.String("format", string(format)))

	return path, nil
}

func (e *Exporter) create(prefix string, format Format, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}

	name := fmt.Sprintf("%s_%s.%s", prefix, e.now().Format("20060102_150405"), format)
	path := filepath.Join(e.outputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s file", format)
	}

	if err := write(f); err != nil {
		_ = f.Close()
		return "", err
	}

	return path, errors.Wrap(f.Close(), "close export file")
}

// WriteSnapshotCSV writes one row per holding of snap.
func WriteSnapshotCSV(w io.Writer, snap domain.ValuationSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(performanceHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}

	ts := snap.TakenAt.Format(time.RFC3339)
	for _, h := range snap.Holdings {
		record := []string{
			ts,
			h.Symbol,
			h.Quantity.String(),
			h.AvgCost.String(),
			h.CurrentPrice.String(),
			h.Invested.String(),
			h.CurrentValue.String(),
			h.UnrealizedPnL.String(),
			h.PnLPercent.StringFixed(4),
			h.Change24h.StringFixed(4),
			h.AllocationPercent.StringFixed(4),
			string(h.Status),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write csv row for %s", h.Symbol)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteTransactionsCSV writes the history, one transaction per row.
func WriteTransactionsCSV(w io.Writer, txs []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(transactionHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}

	for _, tx := range txs {
		record := []string{
			tx.ID,
			tx.Time.Format(time.RFC3339Nano),
			tx.Symbol,
			tx.AssetID,
			tx.Side.String(),
			tx.Quantity.String(),
			tx.UnitPrice.String(),
			tx.TotalValue().String(),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write csv row %s", tx.ID)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// ReadTransactionsCSV parses a file written by WriteTransactionsCSV. Columns
// are matched by header name; total_value is derived and ignored.
func ReadTransactionsCSV(r io.Reader) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"time", "symbol", "asset_id", "side", "quantity", "unit_price"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", required)
		}
	}

	var txs []domain.Transaction
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv line %d", line)
		}

		tx, err := parseTransactionRecord(record, col)
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

func parseTransactionRecord(record []string, col map[string]int) (domain.Transaction, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	at, err := time.Parse(time.RFC3339Nano, field("time"))
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "parse time")
	}
	side, err := domain.ParseSide(field("side"))
	if err != nil {
		return domain.Transaction{}, err
	}
	qty, err := decimal.NewFromString(field("quantity"))
	if err != nil {
		return domain.Transaction{}, errors.Wrap(domain.ErrInvalidQuantity, err.Error())
	}
	price, err := decimal.NewFromString(field("unit_price"))
	if err != nil {
		return domain.Transaction{}, errors.Wrap(domain.ErrInvalidPrice, err.Error())
	}

	tx, err := domain.NewTransaction(field("symbol"), field("asset_id"), qty, price, side, at)
	if err != nil {
		return domain.Transaction{}, err
	}
	if id := field("id"); id != "" {
		tx.ID = id
	}

	return tx, nil
}

// WriteState writes the JSON state export.
func WriteState(w io.Writer, state State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(state), "encode state")
}

// ReadState parses a JSON state export.
func ReadState(r io.Reader) (State, error) {
	var state State
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return State{}, errors.Wrap(err, "decode state")
	}

	return state, nil
}

// Import reads a transaction history from a CSV or JSON export, picked by file
// extension, and rebuilds the ledger from it. A JSON state whose stored
// holdings disagree with the replayed ones is rejected.
func Import(path string) (*domain.Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open import file")
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		txs, err := ReadTransactionsCSV(f)
		if err != nil {
			return nil, err
		}
		return domain.ReplayLedger(txs, nil)
	case ".json":
		state, err := ReadState(f)
		if err != nil {
			return nil, err
		}
		ledger, err := domain.ReplayLedger(state.Transactions, nil)
		if err != nil {
			return nil, err
		}
		if err := verifyHoldings(state.Holdings, ledger.Holdings()); err != nil {
			return nil, err
		}
		return ledger, nil
	default:
		return nil, fmt.Errorf("unsupported import file %q, expected .csv or .json", path)
	}
}

func verifyHoldings(stored, replayed []domain.Holding) error {
	if len(stored) == 0 {
		return nil
	}
	if len(stored) != len(replayed) {
		return fmt.Errorf("state lists %d holdings, history produces %d", len(stored), len(replayed))
	}

	for i := range stored {
		s, r := stored[i], replayed[i]
		if domain.NormalizeSymbol(s.Symbol) != r.Symbol || !s.Quantity.Equal(r.Quantity) || !s.AvgCost.Equal(r.AvgCost) {
			return fmt.Errorf("holding %s in state does not match history (qty %s/%s, avg %s/%s)",
				s.Symbol, s.Quantity, r.Quantity, s.AvgCost, r.AvgCost)
		}
	}

	return nil
}
