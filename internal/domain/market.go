package domain

// Outcome labels one leg of a binary market.
type Outcome string

const (
	OutcomeUp   Outcome = "UP"
	OutcomeDown Outcome = "DOWN"
)

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// TokenMeta is the per-token metadata needed to price and sign an order.
type TokenMeta struct {
	TokenID  string
	TickSize float64
	NegRisk  bool
}

// Market is one binary market traded during a window. Tick size and NegRisk
// are filled by the placement step and not refreshed for the rest of the window.
type Market struct {
	Slug        string
	ConditionID string
	Question    string
	Up          TokenMeta
	Down        TokenMeta
}

// Token returns the metadata of the given outcome.
func (m Market) Token(o Outcome) TokenMeta {
	if o == OutcomeDown {
		return m.Down
	}
	return m.Up
}

// SetToken replaces the metadata of the given outcome.
func (m *Market) SetToken(o Outcome, meta TokenMeta) {
	if o == OutcomeDown {
		m.Down = meta
		return
	}
	m.Up = meta
}
