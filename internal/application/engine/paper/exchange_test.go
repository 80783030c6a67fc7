package paper_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/application/engine/paper"
	"github.com/alejandrodnm/pairbot/internal/domain"
)

type stubBooks struct {
	mu    sync.Mutex
	books map[string]domain.OrderBook
	err   error
}

func (s *stubBooks) MarketMetadata(_ context.Context, tokenID string) (domain.TokenMeta, error) {
	return domain.TokenMeta{TokenID: tokenID, TickSize: 0.01}, nil
}

func (s *stubBooks) FetchOrderBook(_ context.Context, tokenID string) (domain.OrderBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.OrderBook{}, s.err
	}
	return s.books[tokenID], nil
}

func (s *stubBooks) set(tokenID string, asks ...domain.BookEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[tokenID] = domain.OrderBook{
		TokenID: tokenID,
		Bids:    []domain.BookEntry{{Price: 0.40, Size: 100}},
		Asks:    asks,
	}
}

func newStub() *stubBooks {
	return &stubBooks{books: make(map[string]domain.OrderBook)}
}

func TestSubmitOrder_RestsThenFillsWhenAskDrops(t *testing.T) {
	books := newStub()
	books.set("up", domain.BookEntry{Price: 0.52, Size: 100})
	ex := paper.NewExchange(books)
	ctx := context.Background()

	sub, err := ex.SubmitOrder(ctx, domain.OrderRequest{TokenID: "up", Price: 0.49, Size: 10, PostOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "live", sub.Status)

	st, err := ex.GetOrder(ctx, sub.OrderID)
	require.NoError(t, err)
	assert.Zero(t, st.Matched)

	books.set("up", domain.BookEntry{Price: 0.48, Size: 4}, domain.BookEntry{Price: 0.55, Size: 50})
	st, err = ex.GetOrder(ctx, sub.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, st.Matched)
	assert.Equal(t, 10.0, st.Original)

	books.set("up", domain.BookEntry{Price: 0.49, Size: 50})
	st, err = ex.GetOrder(ctx, sub.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, st.Matched)
	assert.Equal(t, "MATCHED", st.Status)
}

func TestSubmitOrder_PostOnlyCrossingRejected(t *testing.T) {
	books := newStub()
	books.set("up", domain.BookEntry{Price: 0.49, Size: 100})
	ex := paper.NewExchange(books)

	_, err := ex.SubmitOrder(context.Background(), domain.OrderRequest{TokenID: "up", Price: 0.49, Size: 10, PostOnly: true})
	assert.ErrorIs(t, err, domain.ErrSubmission)
}

func TestSubmitOrder_MarketableFillsImmediately(t *testing.T) {
	books := newStub()
	books.set("down", domain.BookEntry{Price: 0.50, Size: 100})
	ex := paper.NewExchange(books)

	sub, err := ex.SubmitOrder(context.Background(), domain.OrderRequest{TokenID: "down", Price: 0.51, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, "matched", sub.Status)
}

func TestCancelOrder(t *testing.T) {
	books := newStub()
	books.set("up", domain.BookEntry{Price: 0.60, Size: 100})
	books.set("down", domain.BookEntry{Price: 0.30, Size: 100})
	ex := paper.NewExchange(books)
	ctx := context.Background()

	resting, err := ex.SubmitOrder(ctx, domain.OrderRequest{TokenID: "up", Price: 0.49, Size: 10})
	require.NoError(t, err)
	filled, err := ex.SubmitOrder(ctx, domain.OrderRequest{TokenID: "down", Price: 0.49, Size: 10})
	require.NoError(t, err)

	assert.True(t, ex.CancelOrder(ctx, resting.OrderID).OK)
	assert.False(t, ex.CancelOrder(ctx, resting.OrderID).OK, "second cancel is a benign failure")
	assert.False(t, ex.CancelOrder(ctx, filled.OrderID).OK)
	assert.False(t, ex.CancelOrder(ctx, "nope").OK)

	// A cancelled order does not fill afterwards.
	books.set("up", domain.BookEntry{Price: 0.40, Size: 100})
	st, err := ex.GetOrder(ctx, resting.OrderID)
	require.NoError(t, err)
	assert.Zero(t, st.Matched)
	assert.Equal(t, "CANCELED", st.Status)
}

func TestGetOrder_Errors(t *testing.T) {
	books := newStub()
	books.set("up", domain.BookEntry{Price: 0.60, Size: 100})
	ex := paper.NewExchange(books)
	ctx := context.Background()

	_, err := ex.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	sub, err := ex.SubmitOrder(ctx, domain.OrderRequest{TokenID: "up", Price: 0.49, Size: 10})
	require.NoError(t, err)

	books.mu.Lock()
	books.err = errors.New("timeout")
	books.mu.Unlock()
	_, err = ex.GetOrder(ctx, sub.OrderID)
	assert.ErrorIs(t, err, domain.ErrTransientRead)
}
