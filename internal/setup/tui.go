package setup

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/config"
	"github.com/vadiminshakov/folio/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// ErrCancelled is returned when the user declines to save the configuration.
var ErrCancelled = errors.New("setup cancelled by user")

// answers holds the raw wizard input.
type answers struct {
	platform        string
	currency        string
	interval        string
	dropThreshold   string
	gainThreshold   string
	coinThreshold   string
	cooldown        string
	autoExport      bool
	exportInterval  string
	keepHistoryDays string
	dashboardAddr   string
}

func defaultAnswers() answers {
	def := config.Default()

	return answers{
		platform:        def.PriceSource.Platform,
		currency:        def.DisplayCurrency,
		interval:        def.UpdateInterval.String(),
		dropThreshold:   def.Alerts.PortfolioDrop.String(),
		gainThreshold:   def.Alerts.PortfolioGain.String(),
		coinThreshold:   def.Alerts.IndividualCoin.String(),
		cooldown:        def.Alerts.Cooldown.String(),
		autoExport:      def.Export.AutoExportCSV,
		exportInterval:  "24",
		keepHistoryDays: "90",
	}
}

// config converts wizard answers into a validated Config.
func (a answers) config() (config.Config, error) {
	cfg := config.Default()

	cfg.PriceSource = cfg.PriceSource.WithPlatform(a.platform)
	if a.currency != "" {
		cfg.DisplayCurrency = strings.ToUpper(a.currency)
	}

	interval, err := time.ParseDuration(a.interval)
	if err != nil || interval <= 0 {
		return config.Config{}, fmt.Errorf("invalid update interval %q", a.interval)
	}
	cfg.UpdateInterval = interval

	drop, err := decimal.NewFromString(a.dropThreshold)
	if err != nil {
		return config.Config{}, errors.Wrap(err, "drop threshold")
	}
	gain, err := decimal.NewFromString(a.gainThreshold)
	if err != nil {
		return config.Config{}, errors.Wrap(err, "gain threshold")
	}
	coin, err := decimal.NewFromString(a.coinThreshold)
	if err != nil {
		return config.Config{}, errors.Wrap(err, "coin threshold")
	}
	cooldown, err := time.ParseDuration(a.cooldown)
	if err != nil {
		return config.Config{}, errors.Wrap(err, "cooldown")
	}
	if cfg.Alerts, err = domain.NewAlertThresholds(drop, gain, coin, cooldown); err != nil {
		return config.Config{}, err
	}

	cfg.Export.AutoExportCSV = a.autoExport
	hours, err := decimal.NewFromString(a.exportInterval)
	if err != nil || !hours.IsPositive() {
		return config.Config{}, fmt.Errorf("invalid export interval %q", a.exportInterval)
	}
	cfg.Export.ExportInterval = time.Duration(hours.Mul(decimal.NewFromInt(int64(time.Hour))).IntPart())

	days, err := decimal.NewFromString(a.keepHistoryDays)
	if err != nil || days.IsNegative() {
		return config.Config{}, fmt.Errorf("invalid history retention %q", a.keepHistoryDays)
	}
	cfg.Export.KeepHistory = time.Duration(days.Mul(decimal.NewFromInt(int64(24 * time.Hour))).IntPart())

	cfg.Dashboard.Addr = strings.TrimSpace(a.dashboardAddr)

	return cfg, nil
}

func clearAndHeader(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FOLIO CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) (config.Config, error) {
	a := defaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("FOLIO CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Track your crypto holdings without leaving the terminal.\n"))

	fmt.Println(stepStyle.Render("STEP 1: PRICE SOURCE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should prices come from?").
				Options(
					huh.NewOption("CoinGecko (public API)", config.PlatformCoinGecko),
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Hyperliquid", config.PlatformHyperliquid),
					huh.NewOption("Simulation", config.PlatformSimulate),
				).
				Value(&a.platform),
			huh.NewInput().
				Title("Display currency").
				Description("e.g. USD").
				Value(&a.currency),
		),
	).Run()
	if err != nil {
		return config.Config{}, err
	}

	clearAndHeader("STEP 2: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Update interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&a.interval).
				Validate(validatePositiveDuration),
		),
	).Run()
	if err != nil {
		return config.Config{}, err
	}

	clearAndHeader("STEP 3: ALERTS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Portfolio drop %").
				Description("Alert when total P&L falls to this percent (negative, e.g. -10)").
				Value(&a.dropThreshold).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Portfolio gain %").
				Description("Alert when total P&L reaches this percent (e.g. 15)").
				Value(&a.gainThreshold).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Single coin 24h move %").
				Description("Alert when a coin moves this much in 24h (e.g. 20)").
				Value(&a.coinThreshold).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Cooldown").
				Description("Minimum time between repeats of the same alert (e.g. 1h)").
				Value(&a.cooldown).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return config.Config{}, err
	}

	clearAndHeader("STEP 4: EXPORTS AND DASHBOARD")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Export CSV snapshots automatically?").
				Value(&a.autoExport),
			huh.NewInput().
				Title("Export interval (hours)").
				Value(&a.exportInterval).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Keep snapshot history (days)").
				Value(&a.keepHistoryDays).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Dashboard address").
				Description("Leave empty to disable (e.g. :8080)").
				Value(&a.dashboardAddr),
		),
	).Run()
	if err != nil {
		return config.Config{}, err
	}

	cfg, err := a.config()
	if err != nil {
		return config.Config{}, err
	}

	clearAndHeader("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Source: %s\nCurrency: %s\nInterval: %s\nAlerts: drop %s%% / gain %s%% / coin %s%% (cooldown %s)\nAuto export: %t\n",
		cfg.PriceSource.Platform, cfg.DisplayCurrency, cfg.UpdateInterval,
		cfg.Alerts.PortfolioDrop, cfg.Alerts.PortfolioGain, cfg.Alerts.IndividualCoin, cfg.Alerts.Cooldown,
		cfg.Export.AutoExportCSV,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return config.Config{}, err
	}
	if !confirm {
		return config.Config{}, ErrCancelled
	}

	if err := config.Save(path, cfg); err != nil {
		return config.Config{}, err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return cfg, nil
}

func validatePositiveDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateDecimal(s string) error {
	if _, err := decimal.NewFromString(s); err != nil {
		return fmt.Errorf("must be a valid number")
	}
	return nil
}
