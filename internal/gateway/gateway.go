package gateway

import (
	"context"

	"github.com/betbot/crossarb/internal/domain"
)

// OrderRequest is an immediate-or-nothing order for one leg. The engine
// only sends FOK-style orders: a buy caps the price at the observed ask, a
// sell floors it at the crossed bid.
type OrderRequest struct {
	AssetID string
	Side    domain.Side
	Price   domain.Price
	Size    float64
	NegRisk bool
}

// OrderAck is the exchange's immediate response to a submission.
type OrderAck struct {
	OrderID string
	Status  string
}

// OrderState is the authoritative post-submission view of an order.
// Known=false means the query itself failed and nothing can be concluded
// about fills.
type OrderState struct {
	OrderID    string
	Status     domain.LegOrderStatus
	FilledSize float64
	Known      bool
}

// OrderGateway submits, cancels and verifies orders. The live
// implementation talks to the CLOB; the simulation one fills against the
// local book.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
	OrderState(ctx context.Context, orderID string) (OrderState, error)
}
