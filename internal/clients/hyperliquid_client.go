package clients

import (
	"context"

	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// NewHyperliquidInfo returns a keyless client for the public info api.
// The perp universe is seeded with coins so no meta request is made up front;
// an unseeded coin cannot be used for candle snapshots.
func NewHyperliquidInfo(ctx context.Context, baseURL string, coins []string) *hyperliquid.Info {
	meta := &hyperliquid.Meta{Universe: make([]hyperliquid.AssetInfo, 0, len(coins))}
	for _, c := range coins {
		meta.Universe = append(meta.Universe, hyperliquid.AssetInfo{Name: c})
	}
	return hyperliquid.NewInfo(ctx, baseURL, true, meta, &hyperliquid.SpotMeta{})
}
