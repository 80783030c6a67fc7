package polymarket

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// MarketMetadata devuelve tick size y flag neg-risk de un token.
// El resultado se cachea: ninguno de los dos cambia mientras el mercado está abierto.
func (c *Client) MarketMetadata(ctx context.Context, tokenID string) (domain.TokenMeta, error) {
	c.mu.RLock()
	meta, ok := c.meta[tokenID]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}

	q := url.Values{"token_id": []string{tokenID}}.Encode()

	var tick tickSizeResponse
	if err := c.get(ctx, c.clobLimiter, c.clobBase+"/tick-size?"+q, &tick); err != nil {
		return domain.TokenMeta{}, fmt.Errorf("clob.MarketMetadata: tick-size %s: %w", tokenID, err)
	}
	tickSize, err := tick.MinimumTickSize.Float64()
	if err != nil || tickSize <= 0 {
		return domain.TokenMeta{}, fmt.Errorf("clob.MarketMetadata: invalid tick size %q for %s", tick.MinimumTickSize, tokenID)
	}

	var nr negRiskResponse
	if err := c.get(ctx, c.clobLimiter, c.clobBase+"/neg-risk?"+q, &nr); err != nil {
		return domain.TokenMeta{}, fmt.Errorf("clob.MarketMetadata: neg-risk %s: %w", tokenID, err)
	}

	meta = domain.TokenMeta{TokenID: tokenID, TickSize: tickSize, NegRisk: nr.NegRisk}
	c.mu.Lock()
	c.meta[tokenID] = meta
	c.mu.Unlock()
	return meta, nil
}

// FetchOrderBook obtiene el libro completo de un token vía GET /book.
func (c *Client) FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	u := c.clobBase + "/book?" + url.Values{"token_id": []string{tokenID}}.Encode()

	var resp orderBookResponse
	if err := c.get(ctx, c.booksLimiter, u, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("clob.FetchOrderBook: %s: %w", tokenID, err)
	}
	return mapOrderBook(tokenID, resp), nil
}

// OrderBookTop devuelve best bid / best ask de un token.
func (c *Client) OrderBookTop(ctx context.Context, tokenID string) (domain.Quote, error) {
	ob, err := c.FetchOrderBook(ctx, tokenID)
	if err != nil {
		return domain.Quote{}, err
	}
	return ob.Top(), nil
}
