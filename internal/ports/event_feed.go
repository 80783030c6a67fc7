package ports

import "context"

// EventFeed pushes "my orders changed" notifications for a market.
type EventFeed interface {
	Subscribe(ctx context.Context, conditionID string) (Subscription, error)
}

// Subscription is a live feed for one window.
type Subscription interface {
	// Events emits one value per notification burst. Slow readers lose
	// intermediate signals, never the latest one.
	Events() <-chan struct{}
	// Connected is false once the underlying transport dropped.
	Connected() bool
	Close() error
}
