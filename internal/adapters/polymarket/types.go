package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API: datos públicos ---

// numericString acepta números tanto como JSON number como string ("0.01" o 0.01).
type numericString string

func (n *numericString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = numericString(strings.TrimSpace(s))
		return nil
	}
	*n = numericString(b)
	return nil
}

func (n numericString) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// tickSizeResponse es la respuesta de GET /tick-size.
type tickSizeResponse struct {
	MinimumTickSize numericString `json:"minimum_tick_size"`
}

// negRiskResponse es la respuesta de GET /neg-risk.
type negRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// orderBookResponse es la respuesta de GET /book.
type orderBookResponse struct {
	Market       string         `json:"market"`
	AssetID      string         `json:"asset_id"`
	Bids         []bookEntryRaw `json:"bids"`
	Asks         []bookEntryRaw `json:"asks"`
	TickSize     numericString  `json:"tick_size"`
	NegRisk      bool           `json:"neg_risk"`
	MinOrderSize numericString  `json:"min_order_size"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- CLOB API: autenticado ---

// apiCredentials son las credenciales de la API del CLOB derivadas de la wallet.
type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// clobOrderRequest es el body JSON de POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
	PostOnly  bool          `json:"postOnly,omitempty"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// clobOrder es la respuesta de GET /data/order/{id}.
type clobOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	OrderType    string `json:"order_type"`
	CreatedAt    int64  `json:"created_at"`
}

type cancelOrderRequest struct {
	OrderID string `json:"orderID"`
}

// cancelResponse es la respuesta de DELETE /order.
type cancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// --- Gamma API ---

// gammaEvent es un evento de GET /events?slug=.
type gammaEvent struct {
	Slug    string        `json:"slug"`
	Title   string        `json:"title"`
	Markets []gammaMarket `json:"markets"`
}

// gammaMarket es un mercado de Gamma. Outcomes y clobTokenIds llegan como
// string con un array JSON dentro.
type gammaMarket struct {
	ConditionID  string     `json:"conditionId"`
	Question     string     `json:"question"`
	Slug         string     `json:"slug"`
	Outcomes     stringList `json:"outcomes"`
	ClobTokenIDs stringList `json:"clobTokenIds"`
	NegRisk      bool       `json:"negRisk"`
	Closed       bool       `json:"closed"`
}

// stringList decodifica tanto ["a","b"] como "[\"a\",\"b\"]".
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = nil
		return nil
	}
	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = nil
			return nil
		}
		b = []byte(raw)
	}
	var vals []string
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	*s = vals
	return nil
}
