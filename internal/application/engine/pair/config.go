// Package pair runs paired-order windows: it places an UP and a DOWN limit
// BUY at a symmetric price and manages the risk of only one of them filling
// before the window deadline.
package pair

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Config is the immutable per-run configuration of placement and risk management.
type Config struct {
	// Price is the symmetric limit price of both legs before quantization.
	Price float64
	// BudgetUSD is the spend per leg; ignored when Shares is set.
	BudgetUSD float64
	Shares    float64
	PostOnly  bool
	// AllowWeirdQuotes disables the (0,1) quote sanity check.
	AllowWeirdQuotes bool
	MinEdge          float64

	Duration     time.Duration
	Policy       domain.Policy
	Grace        time.Duration
	PollInterval time.Duration
	// MaxIdle bounds the wait on a silent event feed.
	MaxIdle      time.Duration
	MinHedgeEdge float64
	// CloseTimeout bounds the cancel sweep, which runs even after interruption.
	CloseTimeout time.Duration
}

// Validate checks the configuration before any order is placed.
func (c Config) Validate() error {
	fail := func(msg string) error {
		return fmt.Errorf("pair.Config: %s: %w", msg, domain.ErrConfiguration)
	}
	switch {
	case c.Price <= 0 || c.Price >= 1:
		return fail(fmt.Sprintf("price must be in (0,1), got %v", c.Price))
	case c.Shares < 0:
		return fail(fmt.Sprintf("shares must be >= 0, got %v", c.Shares))
	case c.Shares == 0 && c.BudgetUSD <= 0:
		return fail("either shares or a positive usd budget is required")
	case c.Duration <= 0:
		return fail("duration must be > 0")
	case c.PollInterval <= 0:
		return fail("poll interval must be > 0")
	case c.MaxIdle <= 0:
		return fail("max idle must be > 0")
	case c.Grace < 0:
		return fail("grace must be >= 0")
	}
	if _, err := domain.ParsePolicy(string(c.Policy)); err != nil {
		return fmt.Errorf("pair.Config: %w", err)
	}
	return nil
}

func (c Config) closeTimeout() time.Duration {
	if c.CloseTimeout > 0 {
		return c.CloseTimeout
	}
	return 30 * time.Second
}
