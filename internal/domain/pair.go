package domain

import "math"

// Leg is one order of a pair (or the hedge order). Matched only grows while
// the order is live and never exceeds Original.
type Leg struct {
	Outcome  Outcome
	TokenID  string
	Price    float64
	Size     float64
	OrderID  string
	Matched  float64
	Original float64
	Hedge    bool
}

// Apply folds a fresh exchange reading into the leg.
// Matched is kept monotonic and clamped to Original; a zero Original from the
// exchange keeps the submitted size.
func (l *Leg) Apply(s OrderStatus) {
	if s.Original > 0 {
		l.Original = s.Original
	}
	m := math.Max(l.Matched, s.Matched)
	if l.Original > 0 && m > l.Original {
		m = l.Original
	}
	l.Matched = m
}

// Full reports whether the leg matched its original size (within FillEpsilon).
func (l Leg) Full() bool {
	return l.Original > 0 && l.Matched >= l.Original-FillEpsilon
}

// Some reports whether the leg has any match at all.
func (l Leg) Some() bool {
	return l.Matched > FillEpsilon
}

// Pair is the two legs of one window.
type Pair struct {
	Up   Leg
	Down Leg
}

// Leg returns a pointer to the leg of the given outcome.
func (p *Pair) Leg(o Outcome) *Leg {
	if o == OutcomeDown {
		return &p.Down
	}
	return &p.Up
}

// PairState is derived from the legs on every observation, never cached.
type PairState struct {
	UpFull   bool
	DownFull bool
	BothFull bool
	// OneSome: exactly one leg has a nonzero match and the other has none.
	OneSome bool
	// Filled is the leg with the match when OneSome is true.
	Filled Outcome
}

// Classify derives the PairState of up and down.
func Classify(up, down Leg) PairState {
	s := PairState{
		UpFull:   up.Full(),
		DownFull: down.Full(),
	}
	s.BothFull = s.UpFull && s.DownFull
	switch {
	case up.Some() && !down.Some():
		s.OneSome, s.Filled = true, OutcomeUp
	case down.Some() && !up.Some():
		s.OneSome, s.Filled = true, OutcomeDown
	}
	return s
}
