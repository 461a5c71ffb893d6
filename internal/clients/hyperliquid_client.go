package clients

import (
	"context"

	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// NewHyperliquidInfo creates a keyless client for the public Info API.
// Empty metadata is passed so construction does not hit the network; the
// price source reads the universe from every metaAndAssetCtxs response.
func NewHyperliquidInfo(baseURL string) *hyperliquid.Info {
	return hyperliquid.NewInfo(context.Background(), baseURL, true, &hyperliquid.Meta{}, &hyperliquid.SpotMeta{})
}
