package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of a pair run. Pre-trade errors (configuration, edge, quote)
// abort the process; everything raised while a window is being monitored is
// logged and absorbed so the closing sweep always runs.
var (
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidArgument is a configuration error raised by the pure pricing helpers.
	ErrInvalidArgument = fmt.Errorf("invalid argument: %w", ErrConfiguration)

	ErrInsufficientEdge = errors.New("insufficient edge")
	ErrUnsafeQuote      = errors.New("unsafe quote")
	ErrSubmission       = errors.New("order submission failed")

	ErrTransientRead = errors.New("transient read error")
	ErrCancelFailed  = errors.New("best-effort cancel failed")
	ErrOrderNotFound = errors.New("order not found")

	ErrUnparseableIdentifier = errors.New("unparseable market identifier")
)

// IsPreTrade reports whether err must stop the whole run before any order is placed.
func IsPreTrade(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInsufficientEdge) ||
		errors.Is(err, ErrUnsafeQuote) ||
		errors.Is(err, ErrUnparseableIdentifier)
}
