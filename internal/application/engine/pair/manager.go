package pair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/pairbot/internal/application/engine"
	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/ports"
)

// Manager is the risk state machine of one window:
//
//	Placed → Monitoring → {FullyFilled | GraceTimerRunning} → {Mitigated | Expired} → Closing → Closed
//
// State is re-derived from the exchange on every observation. The grace timer
// starts once per window and at most one mitigation runs per window.
type Manager struct {
	ex  ports.Exchange
	cfg Config
	now func() time.Time

	mu                sync.Mutex
	window            domain.Window
	pair              domain.Pair
	hedge             *domain.Leg
	state             domain.State
	firstSingleFillAt *time.Time
	singleLeg         domain.Outcome
	acted             bool
	mitigation        *domain.Mitigation
	submitted         []string
	transitions       []domain.Transition
}

// NewManager creates the manager of a window whose legs were just placed.
func NewManager(ex ports.Exchange, cfg Config, w domain.Window, p domain.Pair) *Manager {
	m := &Manager{
		ex:     ex,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		window: w,
		pair:   p,
		state:  domain.StatePlaced,
	}
	for _, id := range []string{p.Up.OrderID, p.Down.OrderID} {
		if id != "" {
			m.submitted = append(m.submitted, id)
		}
	}
	return m
}

// Run monitors the window until both legs fill or the deadline passes, then
// sweeps every submitted order. sub may be nil; a nil or disconnected
// subscription means fixed-interval polling. Cancelling ctx ends monitoring
// early but the sweep still runs on its own bounded context.
func (m *Manager) Run(ctx context.Context, sub ports.Subscription) domain.WindowOutcome {
	m.mu.Lock()
	m.transition(domain.StateMonitoring)
	m.mu.Unlock()

	interrupted := false
	for {
		if !m.now().Before(m.window.Deadline) {
			m.mu.Lock()
			m.transition(domain.StateExpired)
			m.mu.Unlock()
			break
		}
		if m.observe(ctx) {
			break
		}
		if err := m.wait(ctx, sub); err != nil {
			slog.Warn("pair: monitoring interrupted, closing window", "window", m.window.ID, "err", err)
			interrupted = true
			m.mu.Lock()
			m.transition(domain.StateExpired)
			m.mu.Unlock()
			break
		}
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.closeTimeout())
	defer cancel()
	cancels := m.close(closeCtx)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome(cancels, interrupted)
}

// observe is one observation step. It runs under the window lock so a
// mitigation can never overlap another. Returns true once both legs are full.
func (m *Manager) observe(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.StateFullyFilled {
		return true
	}
	if err := m.refresh(ctx); err != nil {
		slog.Warn("pair: fill read failed, keeping last state",
			"window", m.window.ID,
			"err", err,
		)
		return false
	}

	st := domain.Classify(m.pair.Up, m.pair.Down)
	if st.BothFull {
		m.transition(domain.StateFullyFilled)
		return true
	}

	now := m.now()
	if st.OneSome && !m.acted && m.firstSingleFillAt == nil {
		m.firstSingleFillAt = &now
		m.singleLeg = st.Filled
		m.transition(domain.StateGraceTimerRunning)
		slog.Info("pair: single-leg fill, grace timer started",
			"window", m.window.ID,
			"leg", st.Filled,
			"matched", m.pair.Leg(st.Filled).Matched,
			"grace", m.cfg.Grace,
		)
	}

	if m.firstSingleFillAt != nil && !m.acted && now.Sub(*m.firstSingleFillAt) >= m.cfg.Grace {
		m.mitigate(ctx, now)
		m.acted = true
		m.transition(domain.StateMitigated)
	}
	return false
}

// refresh re-reads both legs and the hedge. A failed leg read leaves every
// leg untouched; a failed hedge read only skips the hedge.
func (m *Manager) refresh(ctx context.Context) error {
	var fresh [2]domain.OrderStatus
	for i, o := range legOrder {
		st, err := m.ex.GetOrder(ctx, m.pair.Leg(o).OrderID)
		if err != nil {
			return fmt.Errorf("read %s: %v: %w", o, err, domain.ErrTransientRead)
		}
		fresh[i] = st
	}
	for i, o := range legOrder {
		m.pair.Leg(o).Apply(fresh[i])
	}

	if m.hedge != nil {
		st, err := m.ex.GetOrder(ctx, m.hedge.OrderID)
		if err != nil {
			slog.Debug("pair: hedge read failed", "window", m.window.ID, "err", err)
			return nil
		}
		m.hedge.Apply(st)
	}
	return nil
}

// wait suspends until the next observation: a feed signal or MaxIdle when
// the feed is connected, PollInterval otherwise. Never past the deadline.
func (m *Manager) wait(ctx context.Context, sub ports.Subscription) error {
	remaining := m.window.Deadline.Sub(m.now())
	if remaining <= 0 {
		return nil
	}

	var events <-chan struct{}
	d := m.cfg.PollInterval
	if sub != nil && sub.Connected() {
		events = sub.Events()
		d = m.cfg.MaxIdle
	}
	if d > remaining {
		d = remaining
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-events:
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// close cancels every order id ever submitted in this window, once each,
// whatever its fill state. Failures are recorded and never stop the sweep.
func (m *Manager) close(ctx context.Context) []domain.CancelResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transition(domain.StateClosing)

	seen := make(map[string]bool, len(m.submitted))
	cancels := make([]domain.CancelResult, 0, len(m.submitted))
	for _, id := range m.submitted {
		if seen[id] {
			continue
		}
		seen[id] = true

		res := m.ex.CancelOrder(ctx, id)
		if res.At.IsZero() {
			res.At = m.now()
		}
		cancels = append(cancels, res)
		if res.OK {
			slog.Info("pair: order cancelled", "window", m.window.ID, "order_id", engine.ShortID(id))
		} else {
			slog.Info("pair: cancel not applied",
				"window", m.window.ID,
				"order_id", engine.ShortID(id),
				"reason", res.Reason,
				"err", domain.ErrCancelFailed,
			)
		}
	}

	// Final read so the outcome carries what was actually bought.
	if err := m.refresh(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slog.Debug("pair: final fill read failed", "window", m.window.ID, "err", err)
	}

	m.transition(domain.StateClosed)
	return cancels
}

// transition must be called with mu held.
func (m *Manager) transition(to domain.State) {
	if m.state == to {
		return
	}
	t := domain.Transition{From: m.state, To: to, At: m.now()}
	m.transitions = append(m.transitions, t)
	m.state = to
	slog.Info("pair: state",
		"window", m.window.ID,
		"from", t.From,
		"to", t.To,
		"at", t.At.Format(time.RFC3339Nano),
	)
}

func (m *Manager) outcome(cancels []domain.CancelResult, interrupted bool) domain.WindowOutcome {
	final := domain.StateExpired
	for _, t := range m.transitions {
		if t.To == domain.StateFullyFilled {
			final = domain.StateFullyFilled
		}
	}

	o := domain.WindowOutcome{
		Window:      m.window,
		Final:       final,
		Interrupted: interrupted,
		Pair:        m.pair,
		Mitigation:  m.mitigation,
		Cancels:     cancels,
		Transitions: append([]domain.Transition(nil), m.transitions...),
		ClosedAt:    m.now(),
	}
	if m.hedge != nil {
		h := *m.hedge
		o.Hedge = &h
	}
	if m.firstSingleFillAt != nil {
		t := *m.firstSingleFillAt
		o.FirstSingleFillAt = &t
	}
	return o
}
