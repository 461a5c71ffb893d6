package setup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/folio/config"
)

func TestAnswers_DefaultsProduceDefaultConfig(t *testing.T) {
	cfg, err := defaultAnswers().config()
	require.NoError(t, err)

	def := config.Default()
	assert.Equal(t, def.UpdateInterval, cfg.UpdateInterval)
	assert.Equal(t, def.PriceSource.Platform, cfg.PriceSource.Platform)
	assert.True(t, def.Alerts.PortfolioDrop.Equal(cfg.Alerts.PortfolioDrop))
	assert.Equal(t, def.Alerts.Cooldown, cfg.Alerts.Cooldown)
	assert.Equal(t, def.Export.ExportInterval, cfg.Export.ExportInterval)
	assert.Equal(t, def.Export.KeepHistory, cfg.Export.KeepHistory)
}

func TestAnswers_Custom(t *testing.T) {
	a := defaultAnswers()
	a.platform = config.PlatformSimulate
	a.currency = "eur"
	a.interval = "30s"
	a.cooldown = "15m"
	a.exportInterval = "1.5"
	a.dashboardAddr = " :8080 "

	cfg, err := a.config()
	require.NoError(t, err)

	assert.Equal(t, config.PlatformSimulate, cfg.PriceSource.Platform)
	assert.Equal(t, "EUR", cfg.DisplayCurrency)
	assert.Equal(t, 30*time.Second, cfg.UpdateInterval)
	assert.Equal(t, 15*time.Minute, cfg.Alerts.Cooldown)
	assert.Equal(t, 90*time.Minute, cfg.Export.ExportInterval)
	assert.Equal(t, ":8080", cfg.Dashboard.Addr)
}

func TestAnswers_ExchangePlatformDropsCoinGeckoURL(t *testing.T) {
	a := defaultAnswers()
	a.platform = config.PlatformHyperliquid

	cfg, err := a.config()
	require.NoError(t, err)

	assert.Equal(t, config.PlatformHyperliquid, cfg.PriceSource.Platform)
	assert.Empty(t, cfg.PriceSource.BaseURL)
	assert.Equal(t, "USDC", cfg.PriceSource.Quote)
}

func TestAnswers_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*answers)
	}{
		{"zero interval", func(a *answers) { a.interval = "0s" }},
		{"drop above gain", func(a *answers) { a.dropThreshold = "20" }},
		{"non positive coin", func(a *answers) { a.coinThreshold = "0" }},
		{"bad cooldown", func(a *answers) { a.cooldown = "soon" }},
		{"zero export interval", func(a *answers) { a.exportInterval = "0" }},
		{"negative retention", func(a *answers) { a.keepHistoryDays = "-1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := defaultAnswers()
			tt.mutate(&a)
			_, err := a.config()
			assert.Error(t, err)
		})
	}
}

func TestAnswers_SavedConfigLoads(t *testing.T) {
	a := defaultAnswers()
	a.interval = "2m"
	cfg, err := a.config()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, cfg))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, loaded.UpdateInterval)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validatePositiveDuration("5m"))
	assert.Error(t, validatePositiveDuration("-5m"))
	assert.Error(t, validatePositiveDuration("five"))
	assert.NoError(t, validateDecimal("-10.5"))
	assert.Error(t, validateDecimal("ten"))
}
