package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// WindowJournal persists the outcome of every window.
type WindowJournal interface {
	SaveWindow(ctx context.Context, outcome domain.WindowOutcome) error
	// ListWindows returns the windows that started in [from, to), oldest first.
	ListWindows(ctx context.Context, from, to time.Time) ([]domain.WindowOutcome, error)
	Close() error
}
