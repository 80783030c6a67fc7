package polymarket

// trading.go: Real order execution via Polymarket CLOB API.
//
// Implements ports.Exchange using AuthClient for L1/L2 auth. Orders are BUY
// limit orders; post-only makers rest in the book, hedges may cross it.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// TradingClient implements ports.Exchange against the live CLOB.
type TradingClient struct {
	auth *AuthClient
}

// NewTradingClient creates a TradingClient.
func NewTradingClient(auth *AuthClient) *TradingClient {
	return &TradingClient{auth: auth}
}

// DeriveCredentials derives the L2 API credentials once.
func (tc *TradingClient) DeriveCredentials(ctx context.Context) error {
	return tc.auth.DeriveCredentials(ctx)
}

// MarketMetadata returns tick size and neg-risk flag of a token.
func (tc *TradingClient) MarketMetadata(ctx context.Context, tokenID string) (domain.TokenMeta, error) {
	return tc.auth.MarketMetadata(ctx, tokenID)
}

// OrderBookTop returns the best bid/ask of a token.
func (tc *TradingClient) OrderBookTop(ctx context.Context, tokenID string) (domain.Quote, error) {
	return tc.auth.OrderBookTop(ctx, tokenID)
}

// SubmitOrder signs and submits a BUY limit order to the CLOB.
func (tc *TradingClient) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.SubmittedOrder, error) {
	if err := tc.auth.DeriveCredentials(ctx); err != nil {
		return domain.SubmittedOrder{}, fmt.Errorf("submit order: creds: %v: %w", err, domain.ErrSubmission)
	}

	signed, err := tc.auth.buildSignedOrder(req)
	if err != nil {
		return domain.SubmittedOrder{}, fmt.Errorf("submit order: sign: %v: %w", err, domain.ErrSubmission)
	}

	tif := req.TimeInForce
	if tif == "" {
		tif = domain.GTC
	}
	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.apiKey(),
		OrderType: string(tif),
		PostOnly:  req.PostOnly,
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.SubmittedOrder{}, fmt.Errorf("submit order: post: %v: %w", err, domain.ErrSubmission)
	}

	if !resp.Success || resp.ErrorMsg != "" || resp.OrderID == "" {
		return domain.SubmittedOrder{}, fmt.Errorf("submit order: clob rejected: %q: %w", resp.ErrorMsg, domain.ErrSubmission)
	}

	return domain.SubmittedOrder{
		OrderID: resp.OrderID,
		Status:  resp.Status,
	}, nil
}

// GetOrder reads the fill progress of an order.
func (tc *TradingClient) GetOrder(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	if err := tc.auth.DeriveCredentials(ctx); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("get order: creds: %w", err)
	}

	// The endpoint answers 200 with a null body for unknown hashes.
	var resp *clobOrder
	if err := tc.auth.doL2(ctx, http.MethodGet, "/data/order/"+orderID, nil, &resp); err != nil {
		var herr *HTTPError
		if errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound {
			return domain.OrderStatus{}, fmt.Errorf("get order %s: %w", orderID, domain.ErrOrderNotFound)
		}
		return domain.OrderStatus{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if resp == nil || resp.ID == "" {
		return domain.OrderStatus{}, fmt.Errorf("get order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return mapOrderStatus(*resp), nil
}

// CancelOrder makes one best-effort cancel attempt for orderID.
// Already filled or cancelled orders come back in not_canceled and are
// reported as a failed result, never as an error.
func (tc *TradingClient) CancelOrder(ctx context.Context, orderID string) domain.CancelResult {
	res := domain.CancelResult{OrderID: orderID, At: time.Now().UTC()}

	if err := tc.auth.DeriveCredentials(ctx); err != nil {
		res.Reason = "creds: " + err.Error()
		return res
	}

	var resp cancelResponse
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/order", cancelOrderRequest{OrderID: orderID}, &resp); err != nil {
		res.Reason = err.Error()
		return res
	}

	for _, id := range resp.Canceled {
		if strings.EqualFold(id, orderID) {
			res.OK = true
			return res
		}
	}
	if reason, ok := resp.NotCanceled[orderID]; ok {
		res.Reason = reason
		return res
	}
	res.Reason = "order not in cancel response"
	return res
}
