package ports

import (
	"context"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Notifier presenta el resultado de las ventanas al usuario.
type Notifier interface {
	// NotifyWindow imprime el resumen de una ventana cerrada.
	NotifyWindow(ctx context.Context, outcome domain.WindowOutcome) error
	// PrintHistory imprime una tabla con las ventanas pasadas.
	PrintHistory(ctx context.Context, outcomes []domain.WindowOutcome) error
}
