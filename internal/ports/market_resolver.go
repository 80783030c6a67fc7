package ports

import (
	"context"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// MarketResolver turns a market slug into its condition and token ids.
type MarketResolver interface {
	ResolveMarket(ctx context.Context, slug string) (domain.Market, error)
}
