package pair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/ports"
	"github.com/alejandrodnm/pairbot/internal/schedule"
)

// Deps are the ports a Runner drives. Only Exchange is mandatory.
type Deps struct {
	Exchange ports.Exchange
	Feed     ports.EventFeed
	Resolver ports.MarketResolver
	Journal  ports.WindowJournal
	Notifier ports.Notifier
	Merger   ports.Merger
}

// RunConfig configures a sequence of windows.
type RunConfig struct {
	Pair     Config
	Schedule schedule.Options
	// Repeat runs windows back to back, each starting one period after the previous.
	Repeat bool
	// MaxWindows bounds repeat mode; 0 means until interrupted.
	MaxWindows int
	// Market carries explicit token ids. When they are empty the market is
	// resolved from Schedule.MarketSlug.
	Market domain.Market

	Merge          bool
	MergeMinShares float64
}

func (c RunConfig) period() time.Duration {
	if c.Schedule.Period > 0 {
		return c.Schedule.Period
	}
	return c.Pair.Duration
}

// Runner executes windows strictly one after another.
type Runner struct {
	deps Deps
	cfg  RunConfig
	now  func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, cfg RunConfig) *Runner {
	return &Runner{
		deps: deps,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the configured windows and returns their outcomes.
//
// Pre-trade errors abort the run before anything is placed. A submission
// failure ends its window; it ends the run too unless in repeat mode.
func (r *Runner) Run(ctx context.Context) ([]domain.WindowOutcome, error) {
	if r.deps.Exchange == nil {
		return nil, fmt.Errorf("pair.Run: exchange is required: %w", domain.ErrConfiguration)
	}
	if err := r.cfg.Pair.Validate(); err != nil {
		return nil, err
	}
	if err := domain.CheckPairEdge(r.cfg.Pair.Price, r.cfg.Pair.MinEdge); err != nil {
		return nil, fmt.Errorf("pair.Run: %w", err)
	}
	if r.cfg.Repeat && r.cfg.period() < r.cfg.Pair.Duration {
		return nil, fmt.Errorf("pair.Run: period %s shorter than window duration %s: %w",
			r.cfg.period(), r.cfg.Pair.Duration, domain.ErrConfiguration)
	}

	plan, err := schedule.Resolve(r.cfg.Schedule, r.now())
	if err != nil {
		return nil, fmt.Errorf("pair.Run: %w", err)
	}
	slog.Info("pair: schedule resolved",
		"mode", plan.Mode,
		"start", plan.Start.Format(time.RFC3339),
		"repeat", r.cfg.Repeat,
		"policy", r.cfg.Pair.Policy,
	)

	if err := r.deps.Exchange.DeriveCredentials(ctx); err != nil {
		return nil, fmt.Errorf("pair.Run: credentials: %w", err)
	}

	var outcomes []domain.WindowOutcome
	start := plan.Start
	for i := 0; ; i++ {
		if i > 0 {
			start = schedule.Next(start, r.cfg.period())
		}

		out, err := r.runWindow(ctx, i, start)
		if out != nil {
			outcomes = append(outcomes, *out)
		}
		switch {
		case err == nil:
		case domain.IsPreTrade(err):
			return outcomes, err
		case ctx.Err() != nil:
			slog.Info("pair: interrupted", "window", i, "err", err)
			return outcomes, nil
		case !r.cfg.Repeat:
			return outcomes, err
		default:
			slog.Error("pair: window failed, continuing",
				"window", i,
				"submission", errors.Is(err, domain.ErrSubmission),
				"err", err,
			)
		}

		if ctx.Err() != nil {
			return outcomes, nil
		}
		if !r.cfg.Repeat || (r.cfg.MaxWindows > 0 && i+1 >= r.cfg.MaxWindows) {
			return outcomes, nil
		}
	}
}

// runWindow places and manages one window. The returned outcome is nil only
// when nothing reached the exchange.
func (r *Runner) runWindow(ctx context.Context, index int, start time.Time) (*domain.WindowOutcome, error) {
	market, err := r.marketFor(ctx, index, start)
	if err != nil {
		return nil, err
	}

	w := domain.Window{
		ID:       uuid.NewString(),
		Index:    index,
		Start:    start,
		Deadline: start.Add(r.cfg.Pair.Duration),
		Market:   market,
	}
	slog.Info("pair: window",
		"window", w.ID,
		"index", index,
		"market", market.Slug,
		"start", w.Start.Format(time.RFC3339),
		"deadline", w.Deadline.Format(time.RFC3339),
	)

	sub := r.subscribe(ctx, market.ConditionID)
	if sub != nil {
		defer func() {
			if err := sub.Close(); err != nil {
				slog.Debug("pair: feed close", "window", w.ID, "err", err)
			}
		}()
	}

	p, err := NewPlacer(r.deps.Exchange, r.cfg.Pair).Place(ctx, &w)
	if err != nil {
		if p == nil {
			return nil, err
		}
		out := domain.WindowOutcome{
			Window:   w,
			Final:    domain.StateExpired,
			Pair:     *p,
			ClosedAt: r.now(),
			Err:      err.Error(),
		}
		r.record(ctx, out)
		return &out, err
	}

	out := NewManager(r.deps.Exchange, r.cfg.Pair, w, *p).Run(ctx, sub)
	r.merge(ctx, &out)
	r.record(ctx, out)
	return &out, nil
}

// marketFor returns the market of window index. Explicit token ids win;
// otherwise the slug is resolved, rolled to the window start after the first.
func (r *Runner) marketFor(ctx context.Context, index int, start time.Time) (domain.Market, error) {
	m := r.cfg.Market
	if m.Up.TokenID != "" && m.Down.TokenID != "" {
		return m, nil
	}

	slug := r.cfg.Schedule.MarketSlug
	if slug == "" {
		return domain.Market{}, fmt.Errorf("pair.marketFor: need both token ids or a market slug: %w", domain.ErrConfiguration)
	}
	if r.deps.Resolver == nil {
		return domain.Market{}, fmt.Errorf("pair.marketFor: no resolver for slug %q: %w", slug, domain.ErrConfiguration)
	}
	if index > 0 {
		slug = schedule.IdentifierForStart(slug, start)
	}

	resolved, err := r.deps.Resolver.ResolveMarket(ctx, slug)
	if err != nil {
		return domain.Market{}, fmt.Errorf("pair.marketFor: %w", err)
	}
	return resolved, nil
}

// subscribe opens the event feed. Any failure degrades to polling.
func (r *Runner) subscribe(ctx context.Context, conditionID string) ports.Subscription {
	if r.deps.Feed == nil || conditionID == "" {
		return nil
	}
	sub, err := r.deps.Feed.Subscribe(ctx, conditionID)
	if err != nil {
		slog.Warn("pair: event feed unavailable, polling", "condition_id", conditionID, "err", err)
		return nil
	}
	return sub
}

func (r *Runner) merge(ctx context.Context, out *domain.WindowOutcome) {
	if !r.cfg.Merge || r.deps.Merger == nil || ctx.Err() != nil {
		return
	}
	shares := domain.RoundTo(out.Mergeable(), 6)
	if shares <= domain.FillEpsilon || shares < r.cfg.MergeMinShares {
		slog.Debug("pair: nothing to merge", "window", out.Window.ID, "shares", shares)
		return
	}

	m := out.Window.Market
	res, err := r.deps.Merger.MergePositions(ctx, m.ConditionID, shares, m.Up.NegRisk)
	if err != nil {
		res.ConditionID, res.Shares = m.ConditionID, shares
		res.Err = err.Error()
		slog.Error("pair: merge failed", "window", out.Window.ID, "shares", shares, "err", err)
	} else {
		slog.Info("pair: merged", "window", out.Window.ID, "shares", shares, "tx", res.TxHash)
	}
	out.Merge = &res
}

// record persists and prints a window even when the run is being interrupted.
func (r *Runner) record(ctx context.Context, out domain.WindowOutcome) {
	ctx = context.WithoutCancel(ctx)
	if r.deps.Journal != nil {
		if err := r.deps.Journal.SaveWindow(ctx, out); err != nil {
			slog.Error("pair: journal", "window", out.Window.ID, "err", err)
		}
	}
	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.NotifyWindow(ctx, out); err != nil {
			slog.Warn("pair: notify", "window", out.Window.ID, "err", err)
		}
	}
}
