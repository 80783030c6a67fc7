package pair

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pairbot/internal/application/engine"
	"github.com/alejandrodnm/pairbot/internal/domain"
)

// mitigate runs the configured policy for the single-filled leg. Called once
// per window with mu held; every failure is logged and absorbed.
func (m *Manager) mitigate(ctx context.Context, now time.Time) {
	mit := &domain.Mitigation{
		Policy: m.cfg.Policy,
		Filled: m.singleLeg,
		At:     now,
	}
	m.mitigation = mit

	missing := m.pair.Leg(m.singleLeg.Opposite())

	switch m.cfg.Policy {
	case domain.PolicyCancel:
		res := m.ex.CancelOrder(ctx, missing.OrderID)
		if res.OK {
			mit.Action = domain.ActionCancelled
		} else {
			mit.Action = domain.ActionCancelFailed
			mit.Reason = res.Reason
		}

	case domain.PolicyHedge:
		m.hedgeMissing(ctx, mit)

	default:
		mit.Action = domain.ActionWaited
		mit.Reason = "holding until deadline"
	}

	slog.Info("pair: mitigation",
		"window", m.window.ID,
		"policy", mit.Policy,
		"action", mit.Action,
		"filled_leg", mit.Filled,
		"unfilled_order", engine.ShortID(missing.OrderID),
		"reason", mit.Reason,
	)
}

// hedgeMissing buys the missing leg with a marketable order, capped so the
// pair keeps at least MinHedgeEdge.
func (m *Manager) hedgeMissing(ctx context.Context, mit *domain.Mitigation) {
	filled := m.pair.Leg(m.singleLeg)
	missing := m.pair.Leg(m.singleLeg.Opposite())
	tok := m.window.Market.Token(missing.Outcome)

	maxOther := domain.HedgeCeiling(filled.Price, m.cfg.MinHedgeEdge)
	mit.HedgeMax = maxOther

	qty := domain.FloorTo(filled.Matched-missing.Matched, domain.ShareDecimals)
	if qty <= domain.FillEpsilon {
		mit.Action, mit.Reason = domain.ActionHedgeSkipped, "residual below order precision"
		return
	}

	q, err := m.ex.OrderBookTop(ctx, missing.TokenID)
	switch {
	case err != nil:
		mit.Action, mit.Reason = domain.ActionHedgeSkipped, "book unavailable: "+err.Error()
		return
	case !q.HasAsk:
		mit.Action, mit.Reason = domain.ActionHedgeSkipped, "no ask on missing leg"
		return
	case q.BestAsk > maxOther+domain.FillEpsilon:
		mit.Action = domain.ActionHedgeSkipped
		mit.Reason = "ask above hedge ceiling"
		slog.Info("pair: hedge skipped, insufficient edge",
			"window", m.window.ID,
			"best_ask", q.BestAsk,
			"max_price", maxOther,
		)
		return
	}

	price := domain.QuantizePrice(maxOther, tok.TickSize)
	sub, err := m.ex.SubmitOrder(ctx, domain.OrderRequest{
		TokenID:     missing.TokenID,
		Price:       price,
		Size:        qty,
		TickSize:    tok.TickSize,
		NegRisk:     tok.NegRisk,
		TimeInForce: domain.GTC,
		PostOnly:    false,
	})
	if err != nil {
		mit.Action, mit.Reason = domain.ActionHedgeRejected, err.Error()
		return
	}

	m.hedge = &domain.Leg{
		Outcome:  missing.Outcome,
		TokenID:  missing.TokenID,
		Price:    price,
		Size:     qty,
		OrderID:  sub.OrderID,
		Original: qty,
		Hedge:    true,
	}
	m.submitted = append(m.submitted, sub.OrderID)
	mit.Action = domain.ActionHedged
	slog.Info("pair: hedge submitted",
		"window", m.window.ID,
		"leg", missing.Outcome,
		"order_id", engine.ShortID(sub.OrderID),
		"price", price,
		"size", qty,
		"best_ask", q.BestAsk,
	)
}
