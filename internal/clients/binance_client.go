package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates a client for the public market data endpoints.
// Ticker statistics need no API keys. An empty baseURL keeps the production endpoint.
func NewBinanceClient(baseURL string) *binance.Client {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}

	return client
}
