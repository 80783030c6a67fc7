package domain

import "time"

// TimeInForce of a submitted limit order.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	FOK TimeInForce = "FOK"
	FAK TimeInForce = "FAK"
)

// OrderRequest is a BUY limit order handed to the exchange.
type OrderRequest struct {
	TokenID     string
	Price       float64
	Size        float64 // shares
	TickSize    float64
	NegRisk     bool
	TimeInForce TimeInForce
	PostOnly    bool
}

// SubmittedOrder is the exchange acknowledgement of an OrderRequest.
type SubmittedOrder struct {
	OrderID string
	Status  string
}

// OrderStatus is the fill progress read back from the exchange.
type OrderStatus struct {
	OrderID  string
	Matched  float64 // shares
	Original float64 // shares
	Status   string
}

// CancelResult records one best-effort cancel attempt. Cancel never fails the caller.
type CancelResult struct {
	OrderID string
	OK      bool
	Reason  string
	At      time.Time
}
