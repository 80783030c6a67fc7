package domain

import (
	"fmt"
	"strings"
	"time"
)

// State of the risk manager for one window.
type State string

const (
	StatePlaced            State = "PLACED"
	StateMonitoring        State = "MONITORING"
	StateFullyFilled       State = "FULLY_FILLED"
	StateGraceTimerRunning State = "GRACE_TIMER_RUNNING"
	StateMitigated         State = "MITIGATED"
	StateExpired           State = "EXPIRED"
	StateClosing           State = "CLOSING"
	StateClosed            State = "CLOSED"
)

// Policy is the action taken once a single-leg fill outlives the grace period.
type Policy string

const (
	PolicyWait   Policy = "wait"
	PolicyCancel Policy = "cancel"
	PolicyHedge  Policy = "hedge"
)

// ParsePolicy parses a policy name (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyWait, PolicyCancel, PolicyHedge:
		return p, nil
	}
	return "", fmt.Errorf("domain.ParsePolicy: unknown policy %q (want wait|cancel|hedge): %w", s, ErrConfiguration)
}

// Window is one bounded trading cycle.
type Window struct {
	ID       string
	Index    int
	Start    time.Time
	Deadline time.Time
	Market   Market
}

// Transition is one logged state change of a window.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// MitigationAction is what a mitigation evaluation ended up doing.
type MitigationAction string

const (
	ActionWaited        MitigationAction = "waited"
	ActionCancelled     MitigationAction = "cancelled"
	ActionCancelFailed  MitigationAction = "cancel_failed"
	ActionHedged        MitigationAction = "hedged"
	ActionHedgeSkipped  MitigationAction = "hedge_skipped"
	ActionHedgeRejected MitigationAction = "hedge_rejected"
)

// Mitigation records the single mitigation evaluation of a window.
type Mitigation struct {
	Policy   Policy
	Action   MitigationAction
	Filled   Outcome
	Reason   string
	HedgeMax float64
	At       time.Time
}

// MergeResult is an on-chain merge of complete sets after a window.
type MergeResult struct {
	ConditionID string
	Shares      float64
	TxHash      string
	GasUsed     uint64
	MergedAt    time.Time
	Err         string
}

// WindowOutcome is everything a window produced, for journaling and reporting.
type WindowOutcome struct {
	Window            Window
	Final             State // FullyFilled or Expired
	Interrupted       bool
	Pair              Pair
	Hedge             *Leg
	FirstSingleFillAt *time.Time
	Mitigation        *Mitigation
	Cancels           []CancelResult
	Transitions       []Transition
	Merge             *MergeResult
	ClosedAt          time.Time
	Err               string
}

// Shares returns the matched shares held for each outcome, hedge included.
func (o WindowOutcome) Shares() (up, down float64) {
	up, down = o.Pair.Up.Matched, o.Pair.Down.Matched
	if o.Hedge != nil {
		if o.Hedge.Outcome == OutcomeUp {
			up += o.Hedge.Matched
		} else {
			down += o.Hedge.Matched
		}
	}
	return up, down
}

// Cost returns the USDC spent on matched shares.
func (o WindowOutcome) Cost() float64 {
	c := o.Pair.Up.Matched*o.Pair.Up.Price + o.Pair.Down.Matched*o.Pair.Down.Price
	if o.Hedge != nil {
		c += o.Hedge.Matched * o.Hedge.Price
	}
	return c
}

// Mergeable is the number of complete UP+DOWN sets held after the window.
func (o WindowOutcome) Mergeable() float64 {
	up, down := o.Shares()
	if up < down {
		return up
	}
	return down
}
