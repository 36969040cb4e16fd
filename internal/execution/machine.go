package execution

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/gateway"
	"github.com/betbot/crossarb/pkg/logger"
)

// Unwinder disposes of a one-sided position. It must leave the trade's
// legs updated and return ErrManualInterventionRequired when it gives up.
type Unwinder interface {
	Unwind(ctx context.Context, tr *domain.Trade) error
}

// Machine drives one trade from Idle to a terminal state: parallel leg
// submission, a bounded fill wait, one authoritative verification pass,
// then completion or unwind.
type Machine struct {
	gw       gateway.OrderGateway
	unwinder Unwinder
	log      *logrus.Entry

	submitRetry  RetryPolicy
	verifyWindow time.Duration
	pollInterval time.Duration
}

type MachineConfig struct {
	SubmitRetry  RetryPolicy
	VerifyWindow time.Duration
	PollInterval time.Duration
}

func NewMachine(gw gateway.OrderGateway, unwinder Unwinder, cfg MachineConfig) *Machine {
	if cfg.VerifyWindow <= 0 {
		cfg.VerifyWindow = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Machine{
		gw:           gw,
		unwinder:     unwinder,
		log:          logger.Logger.WithField("component", "execution"),
		submitRetry:  cfg.SubmitRetry,
		verifyWindow: cfg.VerifyWindow,
		pollInterval: cfg.PollInterval,
	}
}

// Execute runs the trade to a terminal state. The returned error reports
// an abnormal outcome (aborted, manual intervention); the trade itself
// always ends terminal.
func (m *Machine) Execute(ctx context.Context, tr *domain.Trade) error {
	log := m.log.WithField("trade", tr.ID)

	if err := tr.TransitionTo(domain.TradeLegsSubmitting); err != nil {
		return err
	}
	log.Infof("entering %s: %s @ %s + %s @ %s, %g shares",
		tr.Spread.Name,
		tr.LegA.Token.AssetID, tr.LegA.Price,
		tr.LegB.Token.AssetID, tr.LegB.Price,
		tr.Shares)

	m.submitLegs(ctx, tr)

	if !tr.LegA.FillEvidence() && tr.LegA.Status == domain.LegRejected &&
		!tr.LegB.FillEvidence() && tr.LegB.Status == domain.LegRejected {
		// Nothing went out; no exposure.
		tr.Close(domain.TradeAborted, "both legs rejected")
		return domain.ErrSubmissionFailed
	}
	// A single rejected leg is not an abort yet: the sibling FOK order may
	// already have filled, and a fill takes an unwind, not a cancel. The
	// verification pass settles which.

	if err := tr.TransitionTo(domain.TradeAwaitingFills); err != nil {
		return err
	}
	m.awaitFills(ctx, tr)

	if err := tr.TransitionTo(domain.TradeVerifying); err != nil {
		return err
	}
	unknown := m.verifyLegs(ctx, tr)

	return m.resolve(ctx, tr, unknown)
}

// submitLegs fires both legs concurrently. A leg that exhausts its retries
// is marked rejected; the sibling is left to the verification pass.
func (m *Machine) submitLegs(ctx context.Context, tr *domain.Trade) {
	var wg sync.WaitGroup
	for _, leg := range []*domain.LegOrder{tr.LegA, tr.LegB} {
		wg.Add(1)
		go func(leg *domain.LegOrder) {
			defer wg.Done()
			err := m.submitRetry.Do(ctx, func() error {
				ack, err := m.gw.PlaceOrder(ctx, gateway.OrderRequest{
					AssetID: leg.Token.AssetID,
					Side:    leg.Side,
					Price:   leg.Price,
					Size:    leg.Size,
					NegRisk: leg.NegRisk,
				})
				if err != nil {
					return err
				}
				leg.OrderID = ack.OrderID
				leg.Status = domain.LegSubmitted
				leg.SubmittedAt = time.Now()
				return nil
			})
			if err != nil {
				leg.Status = domain.LegRejected
				m.log.WithField("trade", tr.ID).
					Warnf("leg %s rejected: %v", leg.Token.AssetID, err)
			}
		}(leg)
	}
	wg.Wait()
}

// awaitFills polls for early completion until the verify window closes.
// This is best effort; the verifying pass afterwards is authoritative.
func (m *Machine) awaitFills(ctx context.Context, tr *domain.Trade) {
	deadline := time.Now().Add(m.verifyWindow)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		done := true
		for _, leg := range []*domain.LegOrder{tr.LegA, tr.LegB} {
			if leg.Terminal() {
				continue
			}
			st, err := m.gw.OrderState(ctx, leg.OrderID)
			if err != nil || !st.Known {
				done = false
				continue
			}
			leg.Status = st.Status
			leg.FilledSize = st.FilledSize
			if !leg.Terminal() {
				done = false
			}
		}
		if done || !time.Now().Before(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// verifyLegs is the authoritative pass: one query per open leg, one retry
// on a transport failure. Returns true when any leg's state stays unknown.
func (m *Machine) verifyLegs(ctx context.Context, tr *domain.Trade) bool {
	unknown := false
	for _, leg := range []*domain.LegOrder{tr.LegA, tr.LegB} {
		if leg.Terminal() {
			continue
		}
		if leg.OrderID == "" {
			// Rejected before the exchange assigned an ID.
			continue
		}
		st, err := m.gw.OrderState(ctx, leg.OrderID)
		if err != nil || !st.Known {
			st, err = m.gw.OrderState(ctx, leg.OrderID)
		}
		if err != nil || !st.Known {
			unknown = true
			m.log.WithField("trade", tr.ID).
				Warnf("leg %s state unknown after verification", leg.Token.AssetID)
			continue
		}
		leg.Status = st.Status
		leg.FilledSize = st.FilledSize
	}
	return unknown
}

// resolve routes the verified trade to its terminal state.
func (m *Machine) resolve(ctx context.Context, tr *domain.Trade, unknown bool) error {
	log := m.log.WithField("trade", tr.ID)

	evidence := tr.LegA.FillEvidence() || tr.LegB.FillEvidence()

	if unknown {
		if !evidence {
			tr.Close(domain.TradeAborted, "fill state unknown, no fill evidence")
			return domain.ErrVerificationUnknown
		}
		// Unknown with exposure: never assume, always unwind.
		return m.unwind(ctx, tr, "fill state unknown with fill evidence")
	}

	fullA := tr.LegA.Filled() && tr.LegA.FilledSize >= tr.Shares
	fullB := tr.LegB.Filled() && tr.LegB.FilledSize >= tr.Shares
	if fullA && fullB {
		tr.Close(domain.TradeCompleted, "both legs filled")
		log.Infof("trade completed: sum=%s", tr.Spread.Sum())
		return nil
	}

	if !evidence {
		m.cancelOpenLegs(ctx, tr)
		tr.Close(domain.TradeAborted, "no fills")
		return domain.ErrSubmissionFailed
	}

	return m.unwind(ctx, tr, "one-sided fill")
}

// cancelOpenLegs cancels any leg still resting on the book. FOK legs are
// normally terminal by now; this covers delayed orders.
func (m *Machine) cancelOpenLegs(ctx context.Context, tr *domain.Trade) {
	for _, leg := range []*domain.LegOrder{tr.LegA, tr.LegB} {
		if leg.Terminal() || leg.OrderID == "" {
			continue
		}
		if err := m.gw.CancelOrder(ctx, leg.OrderID); err != nil {
			m.log.WithField("trade", tr.ID).
				Warnf("cancel leg %s: %v", leg.Token.AssetID, err)
		}
	}
}

func (m *Machine) unwind(ctx context.Context, tr *domain.Trade, why string) error {
	log := m.log.WithField("trade", tr.ID)
	if err := tr.TransitionTo(domain.TradeUnwinding); err != nil {
		return err
	}
	m.cancelOpenLegs(ctx, tr)
	log.Warnf("unwinding: %s (imbalance=%g)", why, tr.Imbalance())

	if err := m.unwinder.Unwind(ctx, tr); err != nil {
		tr.Close(domain.TradeManualIntervention, why+": "+err.Error())
		log.Errorf("unwind failed, manual intervention required: %v", err)
		return domain.ErrManualInterventionRequired
	}
	// Surplus disposed; the trade still ends aborted, not completed.
	tr.Close(domain.TradeAborted, why+": surplus unwound")
	return nil
}
