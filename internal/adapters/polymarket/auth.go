package polymarket

// auth.go: Polymarket CLOB authenticated client.
//
// Implements two-level authentication:
//   L1: EIP-712 signature with wallet private key → derive API credentials
//   L2: HMAC-SHA256 signing of every authenticated request

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/config"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

const (
	// PolygonChainID is the default chain for the Polymarket exchange contracts.
	PolygonChainID = int64(137)

	// CLOB EIP-712 auth domain
	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	// Message signed for deriving API keys
	clobAuthMessage = "This message attests that I control the given wallet"

	// Taker address: zero address = public order
	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// SignatureType values accepted by the exchange contracts.
const (
	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

// AuthConfig identifies the trading wallet.
type AuthConfig struct {
	// PrivateKeyHex is the Polygon signing key, with or without 0x prefix.
	PrivateKeyHex string
	// Funder is the address holding the collateral. Empty means the signer itself.
	Funder        string
	SignatureType int
	ChainID       int64
}

// AuthClient wraps the base Client with L1/L2 auth capabilities.
type AuthClient struct {
	*Client
	privateKey    *ecdsa.PrivateKey
	address       common.Address
	funder        common.Address
	signatureType int
	chainID       int64
	orderBuilder  builder.ExchangeOrderBuilder

	credsMu sync.Mutex
	creds   *apiCredentials
}

// NewAuthClient creates an authenticated trading client on top of base.
func NewAuthClient(base *Client, cfg AuthConfig) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", domain.ErrConfiguration)
	}

	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = PolygonChainID
	}
	if _, err := config.GetContracts(chainID); err != nil {
		return nil, fmt.Errorf("auth: unsupported chain %d: %v: %w", chainID, err, domain.ErrConfiguration)
	}

	switch cfg.SignatureType {
	case SignatureEOA, SignaturePolyProxy, SignatureGnosisSafe:
	default:
		return nil, fmt.Errorf("auth: unknown signature type %d: %w", cfg.SignatureType, domain.ErrConfiguration)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	funder := addr
	if cfg.Funder != "" {
		if !common.IsHexAddress(cfg.Funder) {
			return nil, fmt.Errorf("auth: invalid funder address %q: %w", cfg.Funder, domain.ErrConfiguration)
		}
		funder = common.HexToAddress(cfg.Funder)
	}

	return &AuthClient{
		Client:        base,
		privateKey:    key,
		address:       addr,
		funder:        funder,
		signatureType: cfg.SignatureType,
		chainID:       chainID,
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(chainID), nil),
	}, nil
}

// Address returns the signer address.
func (ac *AuthClient) Address() string {
	return ac.address.Hex()
}

// Funder returns the address that holds collateral and receives the shares.
func (ac *AuthClient) Funder() string {
	return ac.funder.Hex()
}

// DeriveCredentials derives API credentials via L1 auth, creating them on
// first use of a wallet. Credentials are cached for the process lifetime.
func (ac *AuthClient) DeriveCredentials(ctx context.Context) error {
	ac.credsMu.Lock()
	defer ac.credsMu.Unlock()
	if ac.creds != nil {
		return nil
	}

	creds, err := ac.l1Request(ctx, http.MethodGet, "/auth/derive-api-key")
	if err != nil {
		var herr *HTTPError
		if !errors.As(err, &herr) {
			return err
		}
		// Wallets that never traded have nothing to derive yet.
		slog.Info("derive-api-key failed, creating api key", "status", herr.StatusCode)
		if creds, err = ac.l1Request(ctx, http.MethodPost, "/auth/api-key"); err != nil {
			return err
		}
	}
	if creds.APIKey == "" {
		return fmt.Errorf("auth: empty api key in response")
	}
	ac.creds = &creds
	return nil
}

func (ac *AuthClient) credentials() apiCredentials {
	ac.credsMu.Lock()
	defer ac.credsMu.Unlock()
	if ac.creds == nil {
		return apiCredentials{}
	}
	return *ac.creds
}

func (ac *AuthClient) apiKey() string {
	return ac.credentials().APIKey
}

// l1Request performs a request authenticated with the ClobAuth signature.
func (ac *AuthClient) l1Request(ctx context.Context, method, path string) (apiCredentials, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := ac.signClobAuth(ts, "0")
	if err != nil {
		return apiCredentials{}, fmt.Errorf("auth: sign l1: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, ac.clobBase+path, nil)
	if err != nil {
		return apiCredentials{}, fmt.Errorf("auth: %s request: %w", path, err)
	}
	req.Header.Set("POLY_ADDRESS", ac.address.Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	resp, err := ac.http.Do(req)
	if err != nil {
		return apiCredentials{}, fmt.Errorf("auth: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return apiCredentials{}, fmt.Errorf("auth: %s: %w", path, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	var creds apiCredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return apiCredentials{}, fmt.Errorf("auth: parse creds: %w", err)
	}
	return creds, nil
}

// EIP-712 type hashes (computed once).
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

// clobAuthDomainSeparator computes the EIP-712 domain separator for ClobAuthDomain.
func clobAuthDomainSeparator(chainID int64) common.Hash {
	var buf []byte
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(chainID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// signClobAuth signs the ClobAuth EIP-712 typed data for L1 auth.
func (ac *AuthClient) signClobAuth(timestamp, nonce string) (string, error) {
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return "", fmt.Errorf("invalid nonce: %s", nonce)
	}

	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(ac.address.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(nonceInt.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, clobAuthDomainSeparator(ac.chainID).Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	msgHash := crypto.Keccak256Hash(rawBuf)

	sig, err := crypto.Sign(msgHash.Bytes(), ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + fmt.Sprintf("%x", sig), nil
}

// l2Headers returns the authenticated headers for L2 API calls.
func (ac *AuthClient) l2Headers(method, path, body string) (map[string]string, error) {
	ac.credsMu.Lock()
	creds := ac.creds
	ac.credsMu.Unlock()
	if creds == nil {
		return nil, fmt.Errorf("auth: credentials not derived yet")
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secretBytes, err := base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("auth: decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(msg))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    ac.address.Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    creds.APIKey,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// doL2 executes an authenticated L2 HTTP request with rate limiting.
// HMAC headers are regenerated on every attempt so the timestamp stays fresh.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, reqBody, out any) error {
	var bodyStr string

	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		bodyStr = string(b)
	}

	fullURL := ac.clobBase + path

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ac.clobLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		headers, err := ac.l2Headers(method, path, bodyStr)
		if err != nil {
			return err
		}

		var bodyReader io.Reader
		if bodyStr != "" {
			bodyReader = strings.NewReader(bodyStr)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := ac.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			ac.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			ac.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 500 {
			if attempt == maxRetries {
				return fmt.Errorf("server error %d: %s", resp.StatusCode, respBody)
			}
			ac.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// Polymarket rounding: sizes carry 2 decimals, prices as many as the tick,
// USDC amounts the sum of both.
const sizeDecimals = domain.ShareDecimals

var usdcUnit = decimal.New(1, 6)

// orderAmounts computes the BUY maker (USDC) and taker (shares) amounts in
// 1e6 base units. Working in decimals keeps makerAmount == price * takerAmount
// exact, which the CLOB verifies.
func orderAmounts(price, size, tick float64) (maker, taker decimal.Decimal, err error) {
	pd := priceDecimals(price, tick)
	p := decimal.NewFromFloat(price).RoundDown(pd)
	s := decimal.NewFromFloat(size).RoundDown(sizeDecimals)
	if !p.IsPositive() || !s.IsPositive() || p.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid order: price=%s size=%s", p, s)
	}
	usdc := p.Mul(s).RoundDown(pd + sizeDecimals)
	return usdc.Mul(usdcUnit), s.Mul(usdcUnit), nil
}

// priceDecimals returns the number of decimals of the tick, falling back to
// the precision of the price itself when no tick is known.
func priceDecimals(price, tick float64) int32 {
	if tick > 0 {
		d := decimal.NewFromFloat(tick)
		if exp := d.Exponent(); exp < 0 {
			return -exp
		}
		return 0
	}
	for _, dec := range []int32{2, 3, 4} {
		if decimal.NewFromFloat(price).Equal(decimal.NewFromFloat(price).Round(dec)) {
			return dec
		}
	}
	return 2
}

// buildSignedOrder creates an EIP-712 signed BUY order for req.
func (ac *AuthClient) buildSignedOrder(req domain.OrderRequest) (*gomodel.SignedOrder, error) {
	maker, taker, err := orderAmounts(req.Price, req.Size, req.TickSize)
	if err != nil {
		return nil, err
	}

	verifyingContract := gomodel.CTFExchange
	if req.NegRisk {
		verifyingContract = gomodel.NegRiskCTFExchange
	}

	orderData := &gomodel.OrderData{
		Maker:         ac.funder.Hex(),
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		MakerAmount:   maker.StringFixed(0),
		TakerAmount:   taker.StringFixed(0),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.address.Hex(),
		Expiration:    "0",
		Side:          gomodel.BUY,
		SignatureType: gomodel.SignatureType(ac.signatureType),
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, orderData, verifyingContract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}
