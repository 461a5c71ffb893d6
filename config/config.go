package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/internal/domain"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	PlatformCoinGecko   = "coingecko"
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
	PlatformSimulate    = "simulate"

	DefaultPath = "config.yaml"
)

var platforms = []string{PlatformCoinGecko, PlatformBinance, PlatformBybit, PlatformHyperliquid, PlatformSimulate}

type Config struct {
	UpdateInterval  time.Duration
	DisplayCurrency string
	DataDir         string
	PriceSource     PriceSourceConfig
	Alerts          domain.AlertThresholds
	Export          ExportConfig
	Notifier        NotifierConfig
	Dashboard       DashboardConfig
	LogLevel        zapcore.Level
}

type PriceSourceConfig struct {
	Platform  string
	BaseURL   string
	Quote     string
	Timeout   time.Duration
	BatchSize int
	Retries   int
}

// WithPlatform switches the source to platform and resets the endpoint and
// quote defaults that belong to the previous one.
func (p PriceSourceConfig) WithPlatform(platform string) PriceSourceConfig {
	p.Platform = platform
	if platform != PlatformCoinGecko {
		p.BaseURL = ""
	}
	if platform == PlatformHyperliquid {
		p.Quote = "USDC"
	}

	return p
}

type ExportConfig struct {
	AutoExportCSV  bool
	ExportInterval time.Duration
	KeepHistory    time.Duration
	OutputDir      string
}

type NotifierConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type DashboardConfig struct {
	Addr string
}

// ConfigTmp is the on-disk form. Numbers and durations are kept as strings so
// an absent key can be told apart from a zero value.
type ConfigTmp struct {
	UpdateInterval  string            `yaml:"update_interval,omitempty"`
	DisplayCurrency string            `yaml:"display_currency,omitempty"`
	DataDir         string            `yaml:"data_dir,omitempty"`
	PriceSource     PriceSourceTmp    `yaml:"price_source,omitempty"`
	Alerts          AlertsTmp         `yaml:"alerts,omitempty"`
	ExportSettings  ExportSettingsTmp `yaml:"export_settings,omitempty"`
	Notifier        NotifierTmp       `yaml:"notifier,omitempty"`
	Dashboard       DashboardTmp      `yaml:"dashboard,omitempty"`
	LogLevel        string            `yaml:"log_level,omitempty"`
}

type PriceSourceTmp struct {
	Platform  string `yaml:"platform,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Quote     string `yaml:"quote,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
	BatchSize string `yaml:"batch_size,omitempty"`
	Retries   string `yaml:"retries,omitempty"`
}

type AlertsTmp struct {
	PortfolioDropThreshold  string `yaml:"portfolio_drop_threshold,omitempty"`
	PortfolioGainThreshold  string `yaml:"portfolio_gain_threshold,omitempty"`
	IndividualCoinThreshold string `yaml:"individual_coin_threshold,omitempty"`
	CooldownPeriod          string `yaml:"cooldown_period,omitempty"`
}

type ExportSettingsTmp struct {
	AutoExportCSV       *bool  `yaml:"auto_export_csv,omitempty"`
	ExportIntervalHours string `yaml:"export_interval_hours,omitempty"`
	KeepHistoryDays     string `yaml:"keep_history_days,omitempty"`
	OutputDir           string `yaml:"output_dir,omitempty"`
}

type NotifierTmp struct {
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `yaml:"kafka_topic,omitempty"`
}

type DashboardTmp struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the configuration used for every absent key.
func Default() Config {
	return Config{
		UpdateInterval:  5 * time.Minute,
		DisplayCurrency: "USD",
		DataDir:         "./data",
		PriceSource: PriceSourceConfig{
			Platform:  PlatformCoinGecko,
			BaseURL:   "https://api.coingecko.com/api/v3",
			Quote:     "USDT",
			Timeout:   10 * time.Second,
			BatchSize: 50,
			Retries:   2,
		},
		Alerts: domain.AlertThresholds{
			PortfolioDrop:  decimal.NewFromInt(-10),
			PortfolioGain:  decimal.NewFromInt(15),
			IndividualCoin: decimal.NewFromInt(20),
			Cooldown:       time.Hour,
		},
		Export: ExportConfig{
			AutoExportCSV:  true,
			ExportInterval: 24 * time.Hour,
			KeepHistory:    90 * 24 * time.Hour,
			OutputDir:      "./exports",
		},
		Notifier: NotifierConfig{
			KafkaTopic: "portfolio-alerts",
		},
		LogLevel: zapcore.InfoLevel,
	}
}

// Load reads the yaml config at path. A missing file yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, errors.Wrap(err, "read config")
	}

	return Parse(data)
}

// Parse decodes yaml into a Config, filling absent keys with defaults.
func Parse(data []byte) (Config, error) {
	var c ConfigTmp
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "decode yaml config")
	}

	return c.toConfig()
}

func (c ConfigTmp) toConfig() (Config, error) {
	cfg := Default()
	var err error

	if cfg.UpdateInterval, err = parseDuration(c.UpdateInterval, cfg.UpdateInterval, time.Second); err != nil {
		return Config{}, fmt.Errorf("incorrect 'update_interval' param in yaml config (e.g. 5m or 300), error: %w", err)
	}
	if cfg.UpdateInterval <= 0 {
		return Config{}, fmt.Errorf("'update_interval' must be positive")
	}
	if c.DisplayCurrency != "" {
		cfg.DisplayCurrency = strings.ToUpper(c.DisplayCurrency)
	}
	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}

	// price source
	if c.PriceSource.Platform != "" {
		cfg.PriceSource = cfg.PriceSource.WithPlatform(strings.ToLower(c.PriceSource.Platform))
	}
	if !isKnownPlatform(cfg.PriceSource.Platform) {
		return Config{}, fmt.Errorf("unsupported 'price_source.platform' %q, expected one of %s",
			cfg.PriceSource.Platform, strings.Join(platforms, ", "))
	}
	if c.PriceSource.BaseURL != "" {
		cfg.PriceSource.BaseURL = c.PriceSource.BaseURL
	}
	if c.PriceSource.Quote != "" {
		cfg.PriceSource.Quote = strings.ToUpper(c.PriceSource.Quote)
	}
	if cfg.PriceSource.Timeout, err = parseDuration(c.PriceSource.Timeout, cfg.PriceSource.Timeout, time.Second); err != nil {
		return Config{}, fmt.Errorf("incorrect 'price_source.timeout' param in yaml config, error: %w", err)
	}
	if cfg.PriceSource.BatchSize, err = parseInt(c.PriceSource.BatchSize, cfg.PriceSource.BatchSize); err != nil || cfg.PriceSource.BatchSize <= 0 {
		return Config{}, fmt.Errorf("incorrect 'price_source.batch_size' param in yaml config (must be a positive integer), error: %v", err)
	}
	if cfg.PriceSource.Retries, err = parseInt(c.PriceSource.Retries, cfg.PriceSource.Retries); err != nil || cfg.PriceSource.Retries < 0 {
		return Config{}, fmt.Errorf("incorrect 'price_source.retries' param in yaml config (must be a non negative integer), error: %v", err)
	}

	// alerts
	drop, err := parseDecimal(c.Alerts.PortfolioDropThreshold, cfg.Alerts.PortfolioDrop)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'alerts.portfolio_drop_threshold' param in yaml config (must be a decimal), error: %w", err)
	}
	gain, err := parseDecimal(c.Alerts.PortfolioGainThreshold, cfg.Alerts.PortfolioGain)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'alerts.portfolio_gain_threshold' param in yaml config (must be a decimal), error: %w", err)
	}
	coin, err := parseDecimal(c.Alerts.IndividualCoinThreshold, cfg.Alerts.IndividualCoin)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'alerts.individual_coin_threshold' param in yaml config (must be a decimal), error: %w", err)
	}
	cooldown, err := parseDuration(c.Alerts.CooldownPeriod, cfg.Alerts.Cooldown, time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'alerts.cooldown_period' param in yaml config, error: %w", err)
	}
	if cfg.Alerts, err = domain.NewAlertThresholds(drop, gain, coin, cooldown); err != nil {
		return Config{}, errors.Wrap(err, "invalid alerts section")
	}

	// export settings
	if c.ExportSettings.AutoExportCSV != nil {
		cfg.Export.AutoExportCSV = *c.ExportSettings.AutoExportCSV
	}
	if cfg.Export.ExportInterval, err = parseDuration(c.ExportSettings.ExportIntervalHours, cfg.Export.ExportInterval, time.Hour); err != nil || cfg.Export.ExportInterval <= 0 {
		return Config{}, fmt.Errorf("incorrect 'export_settings.export_interval_hours' param in yaml config (must be a positive number of hours), error: %v", err)
	}
	if cfg.Export.KeepHistory, err = parseDuration(c.ExportSettings.KeepHistoryDays, cfg.Export.KeepHistory, 24*time.Hour); err != nil || cfg.Export.KeepHistory < 0 {
		return Config{}, fmt.Errorf("incorrect 'export_settings.keep_history_days' param in yaml config (must be a number of days), error: %v", err)
	}
	if c.ExportSettings.OutputDir != "" {
		cfg.Export.OutputDir = c.ExportSettings.OutputDir
	}

	if len(c.Notifier.KafkaBrokers) > 0 {
		cfg.Notifier.KafkaBrokers = c.Notifier.KafkaBrokers
	}
	if c.Notifier.KafkaTopic != "" {
		cfg.Notifier.KafkaTopic = c.Notifier.KafkaTopic
	}
	cfg.Dashboard.Addr = c.Dashboard.Addr

	if c.LogLevel != "" {
		if cfg.LogLevel, err = zapcore.ParseLevel(c.LogLevel); err != nil {
			return Config{}, fmt.Errorf("incorrect 'log_level' param in yaml config, error: %w", err)
		}
	}

	return cfg, nil
}

// Tmp converts cfg back to its on-disk form.
func (cfg Config) Tmp() ConfigTmp {
	auto := cfg.Export.AutoExportCSV

	return ConfigTmp{
		UpdateInterval:  cfg.UpdateInterval.String(),
		DisplayCurrency: cfg.DisplayCurrency,
		DataDir:         cfg.DataDir,
		PriceSource: PriceSourceTmp{
			Platform:  cfg.PriceSource.Platform,
			BaseURL:   cfg.PriceSource.BaseURL,
			Quote:     cfg.PriceSource.Quote,
			Timeout:   cfg.PriceSource.Timeout.String(),
			BatchSize: strconv.Itoa(cfg.PriceSource.BatchSize),
			Retries:   strconv.Itoa(cfg.PriceSource.Retries),
		},
		Alerts: AlertsTmp{
			PortfolioDropThreshold:  cfg.Alerts.PortfolioDrop.String(),
			PortfolioGainThreshold:  cfg.Alerts.PortfolioGain.String(),
			IndividualCoinThreshold: cfg.Alerts.IndividualCoin.String(),
			CooldownPeriod:          cfg.Alerts.Cooldown.String(),
		},
		ExportSettings: ExportSettingsTmp{
			AutoExportCSV:       &auto,
			ExportIntervalHours: strconv.FormatFloat(cfg.Export.ExportInterval.Hours(), 'f', -1, 64),
			KeepHistoryDays:     strconv.FormatFloat(cfg.Export.KeepHistory.Hours()/24, 'f', -1, 64),
			OutputDir:           cfg.Export.OutputDir,
		},
		Notifier: NotifierTmp{
			KafkaBrokers: cfg.Notifier.KafkaBrokers,
			KafkaTopic:   cfg.Notifier.KafkaTopic,
		},
		Dashboard: DashboardTmp{Addr: cfg.Dashboard.Addr},
		LogLevel:  cfg.LogLevel.String(),
	}
}

// Save writes cfg as yaml to path.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg.Tmp())
	if err != nil {
		return errors.Wrap(err, "encode yaml config")
	}

	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

func isKnownPlatform(p string) bool {
	for _, known := range platforms {
		if p == known {
			return true
		}
	}

	return false
}

// parseDuration accepts a Go duration ("90s", "1h30m") or a bare number
// counted in unit.
func parseDuration(s string, def, unit time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}

	if n, err := decimal.NewFromString(s); err == nil {
		return time.Duration(n.Mul(decimal.NewFromInt(int64(unit))).IntPart()), nil
	}

	return time.ParseDuration(s)
}

func parseInt(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}

	return strconv.Atoi(s)
}

func parseDecimal(s string, def decimal.Decimal) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}

	return decimal.NewFromString(s)
}
