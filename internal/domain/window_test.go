package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"wait": PolicyWait, "Cancel": PolicyCancel, " HEDGE ": PolicyHedge} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParsePolicy("unwind")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestWindowOutcome_SharesIncludeHedge(t *testing.T) {
	o := WindowOutcome{
		Pair: Pair{
			Up:   Leg{Outcome: OutcomeUp, Price: 0.49, Matched: 10, Original: 10},
			Down: Leg{Outcome: OutcomeDown, Price: 0.49, Matched: 0, Original: 10},
		},
		Hedge: &Leg{Outcome: OutcomeDown, Price: 0.50, Matched: 10, Original: 10, Hedge: true},
	}

	up, down := o.Shares()
	assert.Equal(t, 10.0, up)
	assert.Equal(t, 10.0, down)
	assert.Equal(t, 10.0, o.Mergeable())
	assert.InDelta(t, 9.9, o.Cost(), 1e-9)
}
