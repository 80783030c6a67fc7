package pair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/pairbot/internal/application/engine"
	"github.com/alejandrodnm/pairbot/internal/domain"
	"github.com/alejandrodnm/pairbot/internal/ports"
	"github.com/alejandrodnm/pairbot/internal/schedule"
)

var legOrder = [2]domain.Outcome{domain.OutcomeUp, domain.OutcomeDown}

// Placer submits the two legs of a window.
type Placer struct {
	ex   ports.Exchange
	cfg  Config
	wait func(ctx context.Context, t time.Time) error
}

// NewPlacer creates a Placer.
func NewPlacer(ex ports.Exchange, cfg Config) *Placer {
	return &Placer{ex: ex, cfg: cfg, wait: schedule.WaitUntil}
}

// Place runs the pre-trade checks, blocks until w.Start and submits UP then
// DOWN. Nothing reaches the exchange before the submission step.
//
// A failed submission is not unwound: when DOWN fails after UP was accepted
// the returned pair still carries the UP order id so the caller can report it.
func (p *Placer) Place(ctx context.Context, w *domain.Window) (*domain.Pair, error) {
	if err := domain.CheckPairEdge(p.cfg.Price, p.cfg.MinEdge); err != nil {
		return nil, fmt.Errorf("pair.Place: %w", err)
	}

	metas, quotes, err := p.prefetch(ctx, w.Market)
	if err != nil {
		return nil, err
	}
	for i, o := range legOrder {
		metas[i].TokenID = w.Market.Token(o).TokenID
		w.Market.SetToken(o, metas[i])
	}

	size := p.cfg.Shares
	if size <= 0 {
		var err error
		if size, err = domain.SizeFromBudget(p.cfg.BudgetUSD, p.cfg.Price); err != nil {
			return nil, fmt.Errorf("pair.Place: %w", err)
		}
	}

	pair := &domain.Pair{}
	for _, o := range legOrder {
		tok := w.Market.Token(o)
		*pair.Leg(o) = domain.Leg{
			Outcome:  o,
			TokenID:  tok.TokenID,
			Price:    domain.QuantizePrice(p.cfg.Price, tok.TickSize),
			Size:     size,
			Original: size,
		}
	}

	if err := p.checkQuotes(quotes); err != nil {
		return nil, err
	}

	slog.Info("pair: waiting for window start",
		"window", w.ID,
		"start", w.Start.Format(time.RFC3339),
		"up_price", pair.Up.Price,
		"down_price", pair.Down.Price,
		"size", size,
		"edge", fmt.Sprintf("%.4f", domain.PairEdge(p.cfg.Price)),
	)
	if err := p.wait(ctx, w.Start); err != nil {
		return nil, fmt.Errorf("pair.Place: waiting for start: %w", err)
	}

	for _, o := range legOrder {
		leg := pair.Leg(o)
		tok := w.Market.Token(o)
		sub, err := p.ex.SubmitOrder(ctx, domain.OrderRequest{
			TokenID:     leg.TokenID,
			Price:       leg.Price,
			Size:        leg.Size,
			TickSize:    tok.TickSize,
			NegRisk:     tok.NegRisk,
			TimeInForce: domain.GTC,
			PostOnly:    p.cfg.PostOnly,
		})
		if err != nil {
			if !errors.Is(err, domain.ErrSubmission) {
				err = fmt.Errorf("%v: %w", err, domain.ErrSubmission)
			}
			if o == domain.OutcomeDown {
				slog.Error("pair: DOWN submission failed, UP order left live",
					"window", w.ID,
					"up_order", pair.Up.OrderID,
					"err", err,
				)
			}
			return pair, fmt.Errorf("pair.Place: submit %s: %w", o, err)
		}
		leg.OrderID = sub.OrderID
		slog.Info("pair: leg submitted",
			"window", w.ID,
			"leg", o,
			"order_id", engine.ShortID(sub.OrderID),
			"status", sub.Status,
			"price", leg.Price,
			"size", leg.Size,
			"post_only", p.cfg.PostOnly,
		)
	}
	return pair, nil
}

// prefetch reads tick/negRisk and the top of book of both legs in parallel.
// Nothing is submitted here; results are indexed like legOrder.
func (p *Placer) prefetch(ctx context.Context, m domain.Market) ([2]domain.TokenMeta, [2]domain.Quote, error) {
	var (
		metas  [2]domain.TokenMeta
		quotes [2]domain.Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, o := range legOrder {
		tokenID := m.Token(o).TokenID
		g.Go(func() error {
			meta, err := p.ex.MarketMetadata(gctx, tokenID)
			if err != nil {
				return fmt.Errorf("pair.Place: metadata %s: %w", o, err)
			}
			metas[i] = meta
			return nil
		})
		g.Go(func() error {
			q, err := p.ex.OrderBookTop(gctx, tokenID)
			if err != nil {
				return fmt.Errorf("pair.Place: book %s: %w", o, err)
			}
			quotes[i] = q
			return nil
		})
	}
	err := g.Wait()
	return metas, quotes, err
}

// checkQuotes refuses to trade into a book touching 0 or 1 unless overridden.
func (p *Placer) checkQuotes(quotes [2]domain.Quote) error {
	for i, o := range legOrder {
		q := quotes[i]
		if q.InsideUnitInterval() {
			continue
		}
		if !p.cfg.AllowWeirdQuotes {
			return fmt.Errorf("pair.Place: %s quote bid=%v(%t) ask=%v(%t) outside (0,1): %w",
				o, q.BestBid, q.HasBid, q.BestAsk, q.HasAsk, domain.ErrUnsafeQuote)
		}
		slog.Warn("pair: trading through weird quote",
			"leg", o,
			"bid", q.BestBid,
			"ask", q.BestAsk,
		)
	}
	return nil
}
