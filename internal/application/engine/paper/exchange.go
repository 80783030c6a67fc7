// Package paper simulates order execution against live order books so a pair
// run can be rehearsed without signing or submitting anything.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// BookSource provides public market data. *polymarket.Client implements it.
type BookSource interface {
	MarketMetadata(ctx context.Context, tokenID string) (domain.TokenMeta, error)
	FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}

type virtualOrder struct {
	id        string
	req       domain.OrderRequest
	matched   float64
	cancelled bool
	placedAt  time.Time
}

// Exchange implements ports.Exchange with virtual orders.
//
// A BUY fills against the asks priced at or below its limit, up to the size
// shown at those levels. Resting orders are re-checked on every GetOrder, so a
// falling ask fills them later. Post-only orders that would cross are rejected
// the way the CLOB rejects them.
type Exchange struct {
	books BookSource

	mu     sync.Mutex
	orders map[string]*virtualOrder
}

// NewExchange creates a paper exchange reading books from src.
func NewExchange(src BookSource) *Exchange {
	return &Exchange{books: src, orders: make(map[string]*virtualOrder)}
}

// DeriveCredentials is a no-op: paper trading needs no keys.
func (e *Exchange) DeriveCredentials(context.Context) error { return nil }

func (e *Exchange) MarketMetadata(ctx context.Context, tokenID string) (domain.TokenMeta, error) {
	return e.books.MarketMetadata(ctx, tokenID)
}

func (e *Exchange) OrderBookTop(ctx context.Context, tokenID string) (domain.Quote, error) {
	ob, err := e.books.FetchOrderBook(ctx, tokenID)
	if err != nil {
		return domain.Quote{}, err
	}
	return ob.Top(), nil
}

func (e *Exchange) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.SubmittedOrder, error) {
	if req.Price <= 0 || req.Price >= 1 || req.Size <= 0 {
		return domain.SubmittedOrder{}, fmt.Errorf("paper.SubmitOrder: invalid order price=%v size=%v: %w",
			req.Price, req.Size, domain.ErrSubmission)
	}

	ob, err := e.books.FetchOrderBook(ctx, req.TokenID)
	if err != nil {
		return domain.SubmittedOrder{}, fmt.Errorf("paper.SubmitOrder: book: %v: %w", err, domain.ErrSubmission)
	}
	if req.PostOnly {
		if q := ob.Top(); q.HasAsk && q.BestAsk <= req.Price+domain.FillEpsilon {
			return domain.SubmittedOrder{}, fmt.Errorf("paper.SubmitOrder: post-only order crosses book at %.4f: %w",
				q.BestAsk, domain.ErrSubmission)
		}
	}

	o := &virtualOrder{id: "paper-" + uuid.New().String(), req: req, placedAt: time.Now().UTC()}
	o.matched = crossable(ob, req.Price, req.Size)

	e.mu.Lock()
	e.orders[o.id] = o
	e.mu.Unlock()

	status := "live"
	if o.matched >= req.Size-domain.FillEpsilon {
		status = "matched"
	}
	slog.Info("paper: order accepted",
		"order_id", o.id,
		"token", req.TokenID,
		"price", req.Price,
		"size", req.Size,
		"matched", o.matched,
	)
	return domain.SubmittedOrder{OrderID: o.id, Status: status}, nil
}

func (e *Exchange) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	e.mu.Lock()
	o, ok := e.orders[orderID]
	e.mu.Unlock()
	if !ok {
		return domain.OrderStatus{}, fmt.Errorf("paper.GetOrder %s: %w", orderID, domain.ErrOrderNotFound)
	}

	e.mu.Lock()
	open := !o.cancelled && o.matched < o.req.Size-domain.FillEpsilon
	e.mu.Unlock()

	if open {
		ob, err := e.books.FetchOrderBook(ctx, o.req.TokenID)
		if err != nil {
			return domain.OrderStatus{}, fmt.Errorf("paper.GetOrder %s: book: %v: %w", orderID, err, domain.ErrTransientRead)
		}
		fill := crossable(ob, o.req.Price, o.req.Size)
		e.mu.Lock()
		if !o.cancelled && fill > o.matched {
			o.matched = fill
		}
		e.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.OrderStatus{
		OrderID:  o.id,
		Matched:  o.matched,
		Original: o.req.Size,
		Status:   o.status(),
	}, nil
}

func (e *Exchange) CancelOrder(_ context.Context, orderID string) domain.CancelResult {
	res := domain.CancelResult{OrderID: orderID, At: time.Now().UTC()}

	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	switch {
	case !ok:
		res.Reason = "unknown order"
	case o.cancelled:
		res.Reason = "already cancelled"
	case o.matched >= o.req.Size-domain.FillEpsilon:
		res.Reason = "already matched"
	default:
		o.cancelled = true
		res.OK = true
	}
	return res
}

func (o *virtualOrder) status() string {
	switch {
	case o.matched >= o.req.Size-domain.FillEpsilon:
		return "MATCHED"
	case o.cancelled:
		return "CANCELED"
	}
	return "LIVE"
}

// crossable returns how many of size shares the asks at or below price can fill.
func crossable(ob domain.OrderBook, price, size float64) float64 {
	var avail float64
	for _, a := range ob.Asks {
		if a.Price > price+domain.FillEpsilon {
			break
		}
		avail += a.Size
	}
	return math.Min(avail, size)
}
