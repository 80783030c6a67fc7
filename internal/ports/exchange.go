package ports

import (
	"context"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Exchange places, cancels and reads back orders on the CLOB.
// Both the live trading client and the dry-run paper exchange implement it.
type Exchange interface {
	// DeriveCredentials derives the trading credentials from the signing key.
	// It is called once on startup; later calls are no-ops.
	DeriveCredentials(ctx context.Context) error

	// MarketMetadata returns the tick size and NegRisk flag of a token.
	MarketMetadata(ctx context.Context, tokenID string) (domain.TokenMeta, error)

	// OrderBookTop returns the best bid/ask of a token. Empty sides are flagged, not zeroed.
	OrderBookTop(ctx context.Context, tokenID string) (domain.Quote, error)

	// SubmitOrder signs and submits a BUY limit order.
	// A rejection is returned wrapped in domain.ErrSubmission.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.SubmittedOrder, error)

	// GetOrder reads the fill progress of an order.
	// Unknown ids return domain.ErrOrderNotFound.
	GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error)

	// CancelOrder makes one best-effort cancel attempt. It never returns an error;
	// failures are reported in the result.
	CancelOrder(ctx context.Context, orderID string) domain.CancelResult
}
