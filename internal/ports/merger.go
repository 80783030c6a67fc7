package ports

import (
	"context"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Merger executes on-chain CTF merge transactions.
type Merger interface {
	// MergePositions merges shares UP+DOWN sets of conditionID back into USDC.e.
	MergePositions(ctx context.Context, conditionID string, shares float64, negRisk bool) (domain.MergeResult, error)
}
