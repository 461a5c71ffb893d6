// Command folio tracks a crypto portfolio: it keeps a ledger of buys and
// sells, values the holdings against live prices on an interval and raises
// alerts when the portfolio or a single coin moves past a threshold.
//
// Usage:
//
//	folio [-config config.yaml] <command> [flags]
//
// Commands:
//
//	run        poll prices and report until interrupted
//	add        record a buy or sell transaction
//	holdings   list current holdings
//	report     value the portfolio once and print the report
//	export     export the transaction history as csv or json
//	import     replace the ledger with an exported history
//	setup      interactive configuration wizard
//	demo       run against a simulated market with a sample portfolio
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/folio/config"
	"github.com/vadiminshakov/folio/internal"
	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/services/report"
	"github.com/vadiminshakov/folio/internal/setup"
	"github.com/vadiminshakov/folio/internal/web"
)

type demoTx struct {
	symbol, id string
	qty, price string
}

var demoPortfolio = []demoTx{
	{"BTC", "bitcoin", "0.5", "45000"},
	{"ETH", "ethereum", "2.0", "3000"},
	{"SOL", "solana", "10.0", "150"},
	{"ADA", "cardano", "1000.0", "0.50"},
	{"BTC", "bitcoin", "0.1", "50000"},
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to yaml config")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if args[0] == "setup" {
		if _, err := setup.RunTUI(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cmdErr error
	switch args[0] {
	case "run":
		cmdErr = runTracker(ctx, cfg, logger, nil)
	case "demo":
		cmdErr = runDemo(ctx, cfg, logger)
	case "add":
		cmdErr = addTransaction(cfg, logger, args[1:])
	case "holdings":
		cmdErr = showHoldings(cfg, logger)
	case "report":
		cmdErr = showReport(ctx, cfg, logger)
	case "export":
		cmdErr = exportHistory(cfg, logger, args[1:])
	case "import":
		cmdErr = importHistory(cfg, logger, args[1:])
	default:
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		logger.Fatal("command failed", zap.String("command", args[0]), zap.Error(cmdErr))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config path] <run|add|holdings|report|export|import|setup|demo> [flags]\n",
		filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	return zcfg.Build()
}

// openTracker opens the stores under cfg.DataDir and wires a tracker on top.
func openTracker(cfg config.Config, logger *zap.Logger) (*internal.Tracker, *internal.Stores, error) {
	stores, err := internal.OpenStores(cfg)
	if err != nil {
		return nil, nil, err
	}

	ledger, err := stores.LoadLedger()
	if err != nil {
		stores.Close()
		return nil, nil, err
	}

	collector, err := internal.NewCollector(cfg, logger)
	if err != nil {
		stores.Close()
		return nil, nil, err
	}

	tracker, err := internal.NewTracker(cfg, internal.Dependencies{
		Ledger:     ledger,
		Collector:  collector,
		History:    stores.History,
		AlertState: stores.AlertState,
		Notifier:   internal.NewNotifier(cfg, logger),
		Exporter:   report.NewExporter(cfg.Export.OutputDir, logger),
		Output:     os.Stdout,
	}, logger)
	if err != nil {
		stores.Close()
		return nil, nil, err
	}

	return tracker, stores, nil
}

func runTracker(ctx context.Context, cfg config.Config, logger *zap.Logger, prepare func(*internal.Tracker) error) error {
	tracker, stores, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()
	defer tracker.Close()

	if prepare != nil {
		if err := prepare(tracker); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tracker.Run(ctx)
	})

	if cfg.Dashboard.Addr != "" {
		srv := web.NewServer(cfg.Dashboard.Addr, stores.History, tracker, logger)
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func runDemo(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	cfg.PriceSource.Platform = config.PlatformSimulate
	cfg.DataDir = filepath.Join(cfg.DataDir, "demo")
	cfg.Export.OutputDir = filepath.Join(cfg.Export.OutputDir, "demo")
	if cfg.UpdateInterval > 10*time.Second {
		cfg.UpdateInterval = 10 * time.Second
	}

	return runTracker(ctx, cfg, logger, func(t *internal.Tracker) error {
		if len(t.Transactions()) > 0 {
			return nil
		}

		logger.Info("setting up demo portfolio")
		for _, d := range demoPortfolio {
			qty := decimal.RequireFromString(d.qty)
			price := decimal.RequireFromString(d.price)
			if _, err := t.Record(d.symbol, d.id, qty, price, domain.SideBuy, time.Now()); err != nil {
				return errors.Wrapf(err, "demo transaction %s", d.symbol)
			}
		}

		invested := decimal.Zero
		for _, h := range t.Holdings() {
			invested = invested.Add(h.Invested)
		}
		fmt.Printf("Demo portfolio created! Total invested: %s %s\n", invested.StringFixed(2), cfg.DisplayCurrency)

		return nil
	})
}

func addTransaction(cfg config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	symbol := fs.String("symbol", "", "ticker symbol, e.g. BTC")
	assetID := fs.String("id", "", "price source asset id, e.g. bitcoin")
	qtyStr := fs.String("qty", "", "quantity")
	priceStr := fs.String("price", "", "unit price in the display currency")
	sideStr := fs.String("side", "buy", "buy or sell")
	atStr := fs.String("time", "", "transaction time, RFC3339 (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	qty, err := decimal.NewFromString(*qtyStr)
	if err != nil {
		return errors.Wrapf(domain.ErrInvalidQuantity, "parse %q", *qtyStr)
	}
	price, err := decimal.NewFromString(*priceStr)
	if err != nil {
		return errors.Wrapf(domain.ErrInvalidPrice, "parse %q", *priceStr)
	}
	side, err := domain.ParseSide(*sideStr)
	if err != nil {
		return err
	}
	at := time.Now()
	if *atStr != "" {
		if at, err = time.Parse(time.RFC3339, *atStr); err != nil {
			return errors.Wrap(err, "parse -time")
		}
	}

	stores, err := internal.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	ledger, err := stores.LoadLedger()
	if err != nil {
		return err
	}

	tx, err := ledger.Record(*symbol, *assetID, qty, price, side, at)
	if err != nil {
		return err
	}

	logger.Info("transaction recorded",
		zap.String("id", tx.ID),
		zap.String("symbol", tx.Symbol),
		zap.Stringer("side", tx.Side),
		zap.String("quantity", tx.Quantity.String()),
		zap.String("unit_price", tx.UnitPrice.String()))

	if h, ok := ledger.Holding(tx.Symbol); ok {
		fmt.Println(report.Holdings([]domain.Holding{h}, cfg.DisplayCurrency))
	}

	return nil
}

func showHoldings(cfg config.Config, logger *zap.Logger) error {
	stores, err := internal.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	ledger, err := stores.LoadLedger()
	if err != nil {
		return err
	}

	holdings := ledger.Holdings()
	if len(holdings) == 0 {
		logger.Warn("No active holdings, add a transaction first")
		return nil
	}

	fmt.Println(report.Holdings(holdings, cfg.DisplayCurrency))
	fmt.Printf("Realized P&L: %s %s\n", ledger.RealizedPnL().StringFixed(2), cfg.DisplayCurrency)

	return nil
}

func showReport(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	cfg.Export.AutoExportCSV = false

	tracker, stores, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()
	defer tracker.Close()

	_, err = tracker.Cycle(ctx)
	return err
}

func exportHistory(cfg config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	formatStr := fs.String("format", "csv", "csv (transactions) or json (full state)")
	outDir := fs.String("out", cfg.Export.OutputDir, "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	format, err := report.ParseFormat(*formatStr)
	if err != nil {
		return err
	}

	stores, err := internal.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	ledger, err := stores.LoadLedger()
	if err != nil {
		return err
	}

	state := report.State{
		Currency:     cfg.DisplayCurrency,
		Transactions: ledger.Transactions(),
		Holdings:     ledger.Holdings(),
	}
	if rec, ok := stores.History.Latest(); ok {
		snap := rec.Snapshot
		state.Snapshot = &snap
	}

	path, err := report.NewExporter(*outDir, logger).ExportTransactions(format, state)
	if err != nil {
		return err
	}

	fmt.Println("Exported to", path)
	return nil
}

func importHistory(cfg config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "csv or json export to import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("import needs -file")
	}

	ledger, err := report.Import(*file)
	if err != nil {
		return errors.Wrapf(err, "import %s", *file)
	}

	stores, err := internal.OpenStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	if err := stores.Ledger.Replace(ledger.Transactions()); err != nil {
		return err
	}

	logger.Info("ledger imported",
		zap.String("file", *file),
		zap.Int("transactions", ledger.Len()),
		zap.Int("holdings", len(ledger.Holdings())))
	fmt.Println(report.Holdings(ledger.Holdings(), cfg.DisplayCurrency))

	return nil
}
