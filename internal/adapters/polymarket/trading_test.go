package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pairbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Well-known throwaway key, never funded.
const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

const (
	testAPIKey     = "key-1"
	testSecret     = "c2VjcmV0LWJ5dGVz" // base64url("secret-bytes")
	testPassphrase = "pp"
)

func writeCreds(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]string{
		"apiKey": testAPIKey, "secret": testSecret, "passphrase": testPassphrase,
	})
}

// fakeCLOB is a minimal authenticated CLOB.
func fakeCLOB(t *testing.T, orders map[string]string, lastOrder *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/auth/derive-api-key" {
			assert.NotEmpty(t, r.Header.Get("POLY_ADDRESS"))
			assert.True(t, strings.HasPrefix(r.Header.Get("POLY_SIGNATURE"), "0x"))
			writeCreds(w)
			return
		}

		// Everything else is L2.
		assert.Equal(t, testAPIKey, r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, testPassphrase, r.Header.Get("POLY_PASSPHRASE"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/order":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if lastOrder != nil {
				*lastOrder = body
			}
			w.Write([]byte(`{"success":true,"errorMsg":"","orderID":"0xabc","status":"live"}`))

		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/data/order/"):
			id := strings.TrimPrefix(r.URL.Path, "/data/order/")
			if body, ok := orders[id]; ok {
				w.Write([]byte(body))
				return
			}
			w.Write([]byte(`null`))

		case r.Method == http.MethodDelete && r.URL.Path == "/order":
			var req struct {
				OrderID string `json:"orderID"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.OrderID == "0xabc" {
				w.Write([]byte(`{"canceled":["0xabc"],"not_canceled":{}}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"canceled":     []string{},
				"not_canceled": map[string]string{req.OrderID: "order can't be found - already canceled or matched"},
			})

		default:
			http.NotFound(w, r)
		}
	}))
}

func newTrading(t *testing.T, srv *httptest.Server) *polymarket.TradingClient {
	t.Helper()
	auth, err := polymarket.NewAuthClient(polymarket.NewClient(srv.URL, ""), polymarket.AuthConfig{
		PrivateKeyHex: testPrivateKey,
	})
	require.NoError(t, err)
	return polymarket.NewTradingClient(auth)
}

func TestSubmitOrder_PostOnlyMaker(t *testing.T) {
	var sent map[string]any
	srv := fakeCLOB(t, nil, &sent)
	defer srv.Close()

	tc := newTrading(t, srv)
	got, err := tc.SubmitOrder(context.Background(), domain.OrderRequest{
		TokenID:     "123456",
		Price:       0.49,
		Size:        20.408163,
		TickSize:    0.01,
		TimeInForce: domain.GTC,
		PostOnly:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.OrderID)
	assert.Equal(t, "live", got.Status)

	require.NotNil(t, sent)
	assert.Equal(t, testAPIKey, sent["owner"])
	assert.Equal(t, "GTC", sent["orderType"])
	assert.Equal(t, true, sent["postOnly"])

	order := sent["order"].(map[string]any)
	assert.Equal(t, "BUY", order["side"])
	assert.Equal(t, "123456", order["tokenId"])
	// 20.40 shares at 0.49 = 9.996 USDC
	assert.Equal(t, "9996000", order["makerAmount"])
	assert.Equal(t, "20400000", order["takerAmount"])
	assert.True(t, strings.HasPrefix(order["signature"].(string), "0x"))
}

func TestSubmitOrder_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/derive-api-key" {
			writeCreds(w)
			return
		}
		w.Write([]byte(`{"success":false,"errorMsg":"invalid post-only order: order crosses book"}`))
	}))
	defer srv.Close()

	_, err := newTrading(t, srv).SubmitOrder(context.Background(), domain.OrderRequest{
		TokenID: "1", Price: 0.5, Size: 10, TickSize: 0.01, PostOnly: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSubmission)
	assert.Contains(t, err.Error(), "crosses book")
}

func TestGetOrder(t *testing.T) {
	srv := fakeCLOB(t, map[string]string{
		"0xabc": `{"id":"0xabc","status":"LIVE","original_size":"20.4","size_matched":"5.25","price":"0.49"}`,
	}, nil)
	defer srv.Close()

	tc := newTrading(t, srv)
	st, err := tc.GetOrder(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.InDelta(t, 20.4, st.Original, 1e-9)
	assert.InDelta(t, 5.25, st.Matched, 1e-9)

	_, err = tc.GetOrder(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCancelOrder_ReportsResult(t *testing.T) {
	srv := fakeCLOB(t, nil, nil)
	defer srv.Close()

	tc := newTrading(t, srv)
	ok := tc.CancelOrder(context.Background(), "0xabc")
	assert.True(t, ok.OK)
	assert.Equal(t, "0xabc", ok.OrderID)

	failed := tc.CancelOrder(context.Background(), "0xdone")
	assert.False(t, failed.OK)
	assert.Contains(t, failed.Reason, "already canceled or matched")
}

func TestDeriveCredentials_CreatesWhenDeriveFails(t *testing.T) {
	var creates atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/derive-api-key":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"Could not derive api key!"}`))
		case r.URL.Path == "/auth/api-key" && r.Method == http.MethodPost:
			creates.Add(1)
			writeCreds(w)
		}
	}))
	defer srv.Close()

	tc := newTrading(t, srv)
	require.NoError(t, tc.DeriveCredentials(context.Background()))
	require.NoError(t, tc.DeriveCredentials(context.Background()))
	assert.Equal(t, int32(1), creates.Load())
}

func TestNewAuthClient_RejectsBadConfig(t *testing.T) {
	base := polymarket.NewClient("", "")

	_, err := polymarket.NewAuthClient(base, polymarket.AuthConfig{PrivateKeyHex: "zz"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = polymarket.NewAuthClient(base, polymarket.AuthConfig{PrivateKeyHex: testPrivateKey, Funder: "not-an-address"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = polymarket.NewAuthClient(base, polymarket.AuthConfig{PrivateKeyHex: testPrivateKey, SignatureType: 7})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	auth, err := polymarket.NewAuthClient(base, polymarket.AuthConfig{
		PrivateKeyHex: "0x" + testPrivateKey,
		Funder:        "0x1111111111111111111111111111111111111111",
		SignatureType: polymarket.SignaturePolyProxy,
	})
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", auth.Funder())
	assert.NotEqual(t, auth.Funder(), auth.Address())
}
