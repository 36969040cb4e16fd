package unwind

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/gateway"
	"github.com/betbot/crossarb/pkg/logger"
)

// BidSource exposes the live best bid for an asset. Satisfied by the pair
// monitor.
type BidSource interface {
	BidFor(assetID string) (domain.Price, bool)
}

// Manager sells off one-sided exposure. Exits are FOK sells priced at the
// live bid, crossing deeper into the book by a fixed step on every retry;
// running out of attempts escalates to manual intervention.
type Manager struct {
	gw   gateway.OrderGateway
	bids BidSource
	log  *logrus.Entry

	maxAttempts int
	crossStep   domain.Price
	retryPause  time.Duration
}

func NewManager(gw gateway.OrderGateway, bids BidSource, maxAttempts, crossStepCents int) *Manager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if crossStepCents < 1 {
		crossStepCents = 1
	}
	return &Manager{
		gw:          gw,
		bids:        bids,
		log:         logger.Logger.WithField("component", "unwind"),
		maxAttempts: maxAttempts,
		crossStep:   domain.PriceFromCents(crossStepCents),
		retryPause:  500 * time.Millisecond,
	}
}

// Unwind disposes of the trade's surplus. Returns nil when the exposure is
// flat afterwards and ErrManualInterventionRequired when it is not.
func (m *Manager) Unwind(ctx context.Context, tr *domain.Trade) error {
	surplus := tr.SurplusLeg()
	if surplus == nil {
		return nil
	}
	size := tr.Imbalance()
	log := m.log.WithField("trade", tr.ID)
	log.Warnf("selling %g surplus shares of %s", size, surplus.Token.AssetID)

	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.ErrManualInterventionRequired
		}

		price, ok := m.exitPrice(surplus, attempt)
		if !ok {
			lastErr = errors.New("no bid available")
			m.pause(ctx)
			continue
		}

		_, err := m.gw.PlaceOrder(ctx, gateway.OrderRequest{
			AssetID: surplus.Token.AssetID,
			Side:    domain.SideSell,
			Price:   price,
			Size:    size,
			NegRisk: surplus.NegRisk,
		})
		if err == nil {
			log.Infof("surplus sold: %g @ %s (attempt %d)", size, price, attempt)
			return nil
		}
		lastErr = err
		log.Warnf("exit attempt %d @ %s failed: %v", attempt, price, err)
		m.pause(ctx)
	}

	log.Errorf("exit attempts exhausted, position stuck: %v", lastErr)
	return domain.ErrManualInterventionRequired
}

// exitPrice prices attempt n at bid minus (n-1) cross steps, floored at
// one cent. Without a live bid the entry price minus the step stands in.
func (m *Manager) exitPrice(leg *domain.LegOrder, attempt int) (domain.Price, bool) {
	base, ok := m.bids.BidFor(leg.Token.AssetID)
	if !ok {
		if leg.Price.IsZero() {
			return domain.Price{}, false
		}
		base = leg.Price.Subtract(m.crossStep)
	}
	price := base
	for i := 1; i < attempt; i++ {
		price = price.Subtract(m.crossStep)
	}
	if floor := domain.PriceFromCents(1); price.LessThan(floor) {
		price = floor
	}
	return price, true
}

func (m *Manager) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.retryPause):
	}
}
