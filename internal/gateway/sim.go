package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/pkg/logger"
)

// QuoteSource is the slice of the feed the simulator needs.
type QuoteSource interface {
	Current(assetID string) (domain.PriceQuote, bool)
}

// SimGateway fills orders against the local quote cache with FOK
// semantics: a buy fills completely when the live ask is at or under the
// cap price, a sell when the live bid is at or over the floor. Everything
// else is rejected, same as a killed FOK on the real exchange.
type SimGateway struct {
	source QuoteSource
	log    *logrus.Entry

	mu     sync.Mutex
	orders map[string]OrderState
}

func NewSimGateway(source QuoteSource) *SimGateway {
	return &SimGateway{
		source: source,
		log:    logger.Logger.WithField("component", "gateway-sim"),
		orders: make(map[string]OrderState),
	}
}

func (g *SimGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return OrderAck{}, err
	}
	// Same input validation as the live path.
	if _, _, err := orderAmounts(req.Side, req.Price, req.Size); err != nil {
		return OrderAck{}, err
	}

	q, ok := g.source.Current(req.AssetID)
	if !ok {
		return OrderAck{}, domain.ErrSubmissionFailed
	}

	fills := false
	switch req.Side {
	case domain.SideBuy:
		fills = q.HasAsk() && q.Ask.LessThanOrEqual(req.Price)
	case domain.SideSell:
		fills = q.HasBid() && q.Bid.GreaterThanOrEqual(req.Price)
	}
	if !fills {
		g.log.Debugf("sim kill %s %s %.2f @ %s (bid=%s ask=%s)",
			req.Side, req.AssetID, req.Size, req.Price, q.Bid, q.Ask)
		return OrderAck{}, domain.ErrSubmissionFailed
	}

	id := uuid.NewString()
	g.mu.Lock()
	g.orders[id] = OrderState{
		OrderID:    id,
		Status:     domain.LegFilled,
		FilledSize: req.Size,
		Known:      true,
	}
	g.mu.Unlock()

	g.log.Infof("sim fill %s %s %.2f @ %s", req.Side, req.AssetID, req.Size, req.Price)
	return OrderAck{OrderID: id, Status: "matched"}, nil
}

func (g *SimGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.orders[orderID]; ok && st.Status == domain.LegSubmitted {
		st.Status = domain.LegCancelled
		g.orders[orderID] = st
	}
	return nil
}

func (g *SimGateway) OrderState(ctx context.Context, orderID string) (OrderState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.orders[orderID]; ok {
		return st, nil
	}
	return OrderState{OrderID: orderID}, domain.ErrVerificationUnknown
}
