package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

func TestResolve_Precedence(t *testing.T) {
	now := time.Date(2025, 10, 9, 12, 7, 30, 0, time.UTC)
	explicit := time.Date(2025, 10, 9, 13, 0, 0, 0, time.UTC)
	slug := "btc-updown-15m-1760015700"

	tests := []struct {
		name string
		opts Options
		mode Mode
		want time.Time
	}{
		{
			name: "explicit wins over everything",
			opts: Options{StartAt: explicit, MarketSlug: slug, UseIdentifier: true, AlignPeriod: true, Period: 15 * time.Minute},
			mode: ExplicitStart, want: explicit,
		},
		{
			name: "identifier wins over periodic",
			opts: Options{MarketSlug: slug, UseIdentifier: true, AlignPeriod: true, Period: 15 * time.Minute},
			mode: DerivedFromIdentifier, want: time.Unix(1760015700, 0).UTC(),
		},
		{
			name: "periodic boundary",
			opts: Options{AlignPeriod: true, Period: 15 * time.Minute},
			mode: PeriodicBoundary, want: time.Date(2025, 10, 9, 12, 15, 0, 0, time.UTC),
		},
		{
			name: "slug without identifier mode is ignored",
			opts: Options{MarketSlug: slug},
			mode: Immediate, want: now,
		},
		{
			name: "immediate",
			opts: Options{},
			mode: Immediate, want: now,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Resolve(tt.opts, now)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, plan.Mode)
			assert.True(t, tt.want.Equal(plan.Start), "want %v got %v", tt.want, plan.Start)
		})
	}
}

func TestResolve_BadIdentifier(t *testing.T) {
	_, err := Resolve(Options{MarketSlug: "btc-updown-15m-latest", UseIdentifier: true}, time.Now())
	assert.ErrorIs(t, err, domain.ErrUnparseableIdentifier)
}

func TestResolve_AlignWithoutPeriod(t *testing.T) {
	_, err := Resolve(Options{AlignPeriod: true}, time.Now())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNextBoundary(t *testing.T) {
	period := 15 * time.Minute
	onBoundary := time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, onBoundary, NextBoundary(onBoundary, period))

	justAfter := onBoundary.Add(time.Nanosecond)
	assert.Equal(t, onBoundary.Add(period), NextBoundary(justAfter, period))

	// Periods that do not divide a day still anchor at the epoch.
	seven := 7 * time.Minute
	assert.Zero(t, NextBoundary(justAfter, seven).Unix()%420)

	justBefore := onBoundary.Add(-time.Second)
	assert.Equal(t, onBoundary, NextBoundary(justBefore, period))
}

func TestParseIdentifierEpoch(t *testing.T) {
	got, err := ParseIdentifierEpoch("btc-updown-15m-1760015700")
	require.NoError(t, err)
	assert.Equal(t, int64(1760015700), got.Unix())

	for _, bad := range []string{"", "btc-updown-15m", "btc-updown-15m-0", "btc-updown-15m-", "eth-12abc"} {
		_, err := ParseIdentifierEpoch(bad)
		assert.ErrorIs(t, err, domain.ErrUnparseableIdentifier, "id=%q", bad)
	}
}

func TestIdentifierForStart(t *testing.T) {
	next := time.Unix(1760016600, 0)
	assert.Equal(t, "btc-updown-15m-1760016600", IdentifierForStart("btc-updown-15m-1760015700", next))
	assert.Equal(t, "plain-market", IdentifierForStart("plain-market", next))
}

func TestNext_NoDriftOverManyWindows(t *testing.T) {
	period := 15 * time.Minute
	anchor := NextBoundary(time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC), period)

	start := anchor
	for i := 1; i <= 12; i++ {
		start = Next(start, period)
		assert.Equal(t, anchor.Add(time.Duration(i)*period), start)
		assert.Zero(t, start.Unix()%int64(period/time.Second), "window %d not on a boundary", i)
	}
}

func TestWaitUntil(t *testing.T) {
	assert.NoError(t, WaitUntil(context.Background(), time.Now().Add(-time.Minute)))

	begin := time.Now()
	require.NoError(t, WaitUntil(context.Background(), begin.Add(20*time.Millisecond)))
	assert.GreaterOrEqual(t, time.Since(begin), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, WaitUntil(ctx, time.Now().Add(time.Hour)), context.Canceled)
}
