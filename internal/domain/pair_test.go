package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func leg(o Outcome, matched, original float64) Leg {
	return Leg{Outcome: o, Matched: matched, Original: original}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		up, down Leg
		want     PairState
	}{
		{
			name: "nothing matched",
			up:   leg(OutcomeUp, 0, 10), down: leg(OutcomeDown, 0, 10),
			want: PairState{},
		},
		{
			name: "both full",
			up:   leg(OutcomeUp, 10, 10), down: leg(OutcomeDown, 10, 10),
			want: PairState{UpFull: true, DownFull: true, BothFull: true},
		},
		{
			name: "both full within epsilon",
			up:   leg(OutcomeUp, 10-1e-10, 10), down: leg(OutcomeDown, 10, 10),
			want: PairState{UpFull: true, DownFull: true, BothFull: true},
		},
		{
			name: "only up partially",
			up:   leg(OutcomeUp, 4, 10), down: leg(OutcomeDown, 0, 10),
			want: PairState{OneSome: true, Filled: OutcomeUp},
		},
		{
			name: "only down full",
			up:   leg(OutcomeUp, 0, 10), down: leg(OutcomeDown, 10, 10),
			want: PairState{DownFull: true, OneSome: true, Filled: OutcomeDown},
		},
		{
			name: "both partial is not one-some",
			up:   leg(OutcomeUp, 3, 10), down: leg(OutcomeDown, 1, 10),
			want: PairState{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.up, tt.down))
		})
	}
}

func TestLegApply_MonotonicAndClamped(t *testing.T) {
	l := Leg{Size: 10, Original: 10}

	l.Apply(OrderStatus{Matched: 4, Original: 10})
	assert.Equal(t, 4.0, l.Matched)

	// A stale read never moves matched backwards.
	l.Apply(OrderStatus{Matched: 2, Original: 10})
	assert.Equal(t, 4.0, l.Matched)

	l.Apply(OrderStatus{Matched: 12, Original: 10})
	assert.Equal(t, 10.0, l.Matched)
	assert.True(t, l.Full())
}

func TestLegApply_ZeroOriginalKeepsSubmitted(t *testing.T) {
	l := Leg{Size: 5, Original: 5}
	l.Apply(OrderStatus{Matched: 1})
	assert.Equal(t, 5.0, l.Original)
	assert.Equal(t, 1.0, l.Matched)
}
