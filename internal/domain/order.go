package domain

import "time"

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// LegOrderStatus is the lifecycle state of a single leg order.
type LegOrderStatus string

const (
	LegSubmitted       LegOrderStatus = "submitted"
	LegFilled          LegOrderStatus = "filled"
	LegPartiallyFilled LegOrderStatus = "partially_filled"
	LegCancelled       LegOrderStatus = "cancelled"
	LegRejected        LegOrderStatus = "rejected"
)

// LegOrder is a single order for one outcome token. A leg order is owned
// exclusively by one Trade for the Trade's lifetime.
type LegOrder struct {
	OrderID     string
	Token       OutcomeToken
	MarketSlug  string
	NegRisk     bool
	Side        Side
	Price       Price
	Size        float64
	FilledSize  float64
	Status      LegOrderStatus
	SubmittedAt time.Time
}

// Filled reports a complete fill.
func (o *LegOrder) Filled() bool {
	return o != nil && o.Status == LegFilled
}

// Terminal reports whether the leg can no longer change state on the
// exchange.
func (o *LegOrder) Terminal() bool {
	if o == nil {
		return true
	}
	switch o.Status {
	case LegFilled, LegCancelled, LegRejected:
		return true
	}
	return false
}

// FillEvidence reports whether any part of the leg is known (or suspected)
// to have executed. Used to route ambiguous verification outcomes to the
// unwind path rather than guessing.
func (o *LegOrder) FillEvidence() bool {
	if o == nil {
		return false
	}
	return o.Status == LegFilled || o.Status == LegPartiallyFilled || o.FilledSize > 0
}
