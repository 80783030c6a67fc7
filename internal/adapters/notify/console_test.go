package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/adapters/notify"
	"github.com/alejandrodnm/pairbot/internal/domain"
)

func makeOutcome(slug string, upMatched, downMatched float64) domain.WindowOutcome {
	now := time.Now()
	o := domain.WindowOutcome{
		Window: domain.Window{
			ID:       "w-1",
			Start:    now.Add(-15 * time.Minute),
			Deadline: now,
			Market:   domain.Market{Slug: slug},
		},
		Final: domain.StateExpired,
		Pair: domain.Pair{
			Up:   domain.Leg{Outcome: domain.OutcomeUp, Price: 0.48, Size: 20, OrderID: "0xupupupupupupupup", Matched: upMatched, Original: 20},
			Down: domain.Leg{Outcome: domain.OutcomeDown, Price: 0.48, Size: 20, OrderID: "0xdown", Matched: downMatched, Original: 20},
		},
		ClosedAt: now,
	}
	if upMatched >= 20 && downMatched >= 20 {
		o.Final = domain.StateFullyFilled
	}
	return o
}

func TestConsole_NotifyWindow_Filled(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyWindow(context.Background(), makeOutcome("btc-updown-15m-1760015700", 20, 20)))

	out := buf.String()
	assert.Contains(t, out, "btc-updown-15m-1760015700")
	assert.Contains(t, out, "FULLY_FILLED")
	assert.Contains(t, out, "cost $19.20")
	assert.Contains(t, out, "locked $0.8000")
}

func TestConsole_NotifyWindow_MitigationAndMerge(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	o := makeOutcome("btc-updown-15m-1760015700", 20, 0)
	o.Mitigation = &domain.Mitigation{Policy: domain.PolicyHedge, Action: domain.ActionHedgeSkipped}
	o.Merge = &domain.MergeResult{Err: "gas too low"}
	o.Cancels = []domain.CancelResult{{OrderID: "0xdown", OK: false, Reason: "already cancelled"}}
	o.Transitions = []domain.Transition{{From: domain.StatePlaced, To: domain.StateMonitoring, At: time.Now()}}

	require.NoError(t, n.NotifyWindow(context.Background(), o))

	out := buf.String()
	assert.Contains(t, out, "hedge:hedge_skipped")
	assert.Contains(t, out, "merge FAILED")
	assert.Contains(t, out, "already cancelled")
	assert.Contains(t, out, "MONITORING")
	assert.Contains(t, out, "0xupupupupu...")
}

func TestConsole_NotifyWindow_PartialPairWarning(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	o := makeOutcome("btc-updown-15m-1760015700", 0, 0)
	o.Pair.Down.OrderID = ""
	o.Err = "submit DOWN: order submission failed"

	require.NoError(t, n.NotifyWindow(context.Background(), o))
	assert.Contains(t, buf.String(), "without its DOWN leg")
	assert.Contains(t, buf.String(), "submission failed")
}

func TestConsole_PrintHistory(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	long := strings.Repeat("a", 40) + "-1760015700"
	outs := []domain.WindowOutcome{
		makeOutcome(long, 20, 20),
		makeOutcome("btc-updown-15m-1760016600", 10, 0),
	}
	outs[0].Merge = &domain.MergeResult{Shares: 20, TxHash: "0xtx"}

	require.NoError(t, n.PrintHistory(context.Background(), outs))

	out := buf.String()
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "1760015700", "slug keeps its epoch when shortened")
	assert.Contains(t, out, "Windows:             2")
	assert.Contains(t, out, "Fully filled:        1 (50%)")
	assert.Contains(t, out, "Merged sets:         20.00")
}

func TestConsole_PrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.PrintHistory(context.Background(), nil))
	assert.Contains(t, buf.String(), "No windows found")
}
