// Package schedule decides when a trading window starts.
//
// A start is resolved once per run from, in order of precedence: an explicit
// timestamp, the epoch suffix of a market identifier, the next periodic
// boundary, or "now". In repeat mode every later window starts exactly one
// period after the previous one, independent of how long a window ran.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Mode is the rule a Plan was resolved with.
type Mode string

const (
	Immediate             Mode = "immediate"
	ExplicitStart         Mode = "explicit"
	PeriodicBoundary      Mode = "periodic"
	DerivedFromIdentifier Mode = "identifier"
)

// Options are the configured start sources. Zero values mean "not configured".
type Options struct {
	StartAt    time.Time
	MarketSlug string
	// UseIdentifier enables deriving the start from MarketSlug.
	UseIdentifier bool
	// AlignPeriod enables PeriodicBoundary with Period.
	AlignPeriod bool
	Period      time.Duration
}

// Plan is a resolved start.
type Plan struct {
	Mode  Mode
	Start time.Time
}

// Resolve picks the start of the first window.
func Resolve(opts Options, now time.Time) (Plan, error) {
	switch {
	case !opts.StartAt.IsZero():
		return Plan{Mode: ExplicitStart, Start: opts.StartAt}, nil
	case opts.UseIdentifier && opts.MarketSlug != "":
		start, err := ParseIdentifierEpoch(opts.MarketSlug)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Mode: DerivedFromIdentifier, Start: start}, nil
	case opts.AlignPeriod:
		if opts.Period <= 0 {
			return Plan{}, fmt.Errorf("schedule.Resolve: period must be > 0 to align: %w", domain.ErrConfiguration)
		}
		return Plan{Mode: PeriodicBoundary, Start: NextBoundary(now, opts.Period)}, nil
	}
	return Plan{Mode: Immediate, Start: now}, nil
}

// NextBoundary returns the smallest epoch-anchored multiple of period that is >= now.
func NextBoundary(now time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return now
	}
	// time.Truncate anchors at year 1, not at the unix epoch.
	ns := now.UnixNano()
	p := int64(period)
	next := ns - ns%p
	if next < ns {
		next += p
	}
	return time.Unix(0, next).In(now.Location())
}

// Next returns the start of the window after prev. It never looks at the clock.
func Next(prev time.Time, period time.Duration) time.Time {
	return prev.Add(period)
}

// ParseIdentifierEpoch extracts the trailing unix-seconds token of a market
// identifier such as "btc-updown-15m-1760000400".
func ParseIdentifierEpoch(id string) (time.Time, error) {
	tail := id
	if i := strings.LastIndexAny(id, "-_/"); i >= 0 {
		tail = id[i+1:]
	}
	n, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("schedule.ParseIdentifierEpoch: %q has no positive trailing epoch: %w",
			id, domain.ErrUnparseableIdentifier)
	}
	return time.Unix(n, 0).UTC(), nil
}

// IdentifierForStart rewrites the trailing epoch of id to start.
// Identifiers without an epoch suffix are returned unchanged.
func IdentifierForStart(id string, start time.Time) string {
	if _, err := ParseIdentifierEpoch(id); err != nil {
		return id
	}
	i := strings.LastIndexAny(id, "-_/")
	return id[:i+1] + strconv.FormatInt(start.Unix(), 10)
}

// WaitUntil blocks until t or until ctx is done. A t in the past returns at once.
func WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
