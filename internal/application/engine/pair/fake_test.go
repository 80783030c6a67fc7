package pair_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

const (
	upToken   = "tok-up"
	downToken = "tok-down"
)

func testMarket() domain.Market {
	return domain.Market{
		Slug:        "btc-updown-15m-1760015700",
		ConditionID: "0xcond",
		Up:          domain.TokenMeta{TokenID: upToken},
		Down:        domain.TokenMeta{TokenID: downToken},
	}
}

type fakeOrder struct {
	id      string
	req     domain.OrderRequest
	matched float64
}

// fakeExchange is a scripted exchange. Fills only change when the test says so.
type fakeExchange struct {
	mu sync.Mutex

	ticks  map[string]float64
	quotes map[string]domain.Quote

	orders     map[string]*fakeOrder
	submits    []domain.OrderRequest
	submitErrs map[int]error // by submit index
	cancels    map[string]int
	cancelFail map[string]bool
	readFails  int
	// fillOnSubmit matches every order in full as soon as it is accepted.
	fillOnSubmit bool
	reads      int
	derived    int
}

func newFakeExchange() *fakeExchange {
	q := domain.Quote{BestBid: 0.47, BestAsk: 0.52, HasBid: true, HasAsk: true}
	return &fakeExchange{
		ticks:      map[string]float64{upToken: 0.01, downToken: 0.01},
		quotes:     map[string]domain.Quote{upToken: q, downToken: q},
		orders:     make(map[string]*fakeOrder),
		submitErrs: make(map[int]error),
		cancels:    make(map[string]int),
		cancelFail: make(map[string]bool),
	}
}

func (f *fakeExchange) DeriveCredentials(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.derived++
	return nil
}

func (f *fakeExchange) MarketMetadata(_ context.Context, tokenID string) (domain.TokenMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tick, ok := f.ticks[tokenID]
	if !ok {
		return domain.TokenMeta{}, fmt.Errorf("unknown token %s", tokenID)
	}
	return domain.TokenMeta{TokenID: tokenID, TickSize: tick}, nil
}

func (f *fakeExchange) OrderBookTop(_ context.Context, tokenID string) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotes[tokenID], nil
}

func (f *fakeExchange) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.SubmittedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.submits)
	f.submits = append(f.submits, req)
	if err, ok := f.submitErrs[idx]; ok {
		return domain.SubmittedOrder{}, err
	}
	id := fmt.Sprintf("0xorder%d", idx)
	o := &fakeOrder{id: id, req: req}
	if f.fillOnSubmit {
		o.matched = req.Size
	}
	f.orders[id] = o
	return domain.SubmittedOrder{OrderID: id, Status: "live"}, nil
}

func (f *fakeExchange) GetOrder(_ context.Context, orderID string) (domain.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readFails > 0 {
		f.readFails--
		return domain.OrderStatus{}, fmt.Errorf("read timeout")
	}
	o, ok := f.orders[orderID]
	if !ok {
		return domain.OrderStatus{}, domain.ErrOrderNotFound
	}
	return domain.OrderStatus{OrderID: o.id, Matched: o.matched, Original: o.req.Size, Status: "LIVE"}, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, orderID string) domain.CancelResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels[orderID]++
	if f.cancelFail[orderID] {
		return domain.CancelResult{OrderID: orderID, Reason: "exchange unavailable", At: time.Now()}
	}
	return domain.CancelResult{OrderID: orderID, OK: true, At: time.Now()}
}

// fill sets the matched size of the first order submitted for tokenID.
func (f *fakeExchange) fill(tokenID string, matched float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.submits {
		id := fmt.Sprintf("0xorder%d", i)
		if o, ok := f.orders[id]; ok && o.req.TokenID == tokenID {
			o.matched = matched
			return
		}
	}
}

func (f *fakeExchange) setQuote(tokenID string, q domain.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[tokenID] = q
}

func (f *fakeExchange) submitted() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRequest(nil), f.submits...)
}

func (f *fakeExchange) cancelCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels[id]
}

// fakeSubscription is a feed the test drives by hand.
type fakeSubscription struct {
	events    chan struct{}
	connected bool
	closed    bool
}

func newFakeSubscription(connected bool) *fakeSubscription {
	return &fakeSubscription{events: make(chan struct{}, 1), connected: connected}
}

func (s *fakeSubscription) Events() <-chan struct{} { return s.events }
func (s *fakeSubscription) Connected() bool         { return s.connected }
func (s *fakeSubscription) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSubscription) signal() {
	select {
	case s.events <- struct{}{}:
	default:
	}
}
