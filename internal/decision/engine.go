package decision

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/monitor"
	"github.com/betbot/crossarb/internal/reference"
	"github.com/betbot/crossarb/pkg/logger"
)

// Engine decides whether the current book state justifies entering a
// spread trade. It is pure evaluation: the engine never submits orders.
type Engine struct {
	refs      *reference.Store
	threshold domain.Price
	tolerance domain.Price
	log       *logrus.Entry
}

func NewEngine(refs *reference.Store, threshold, tolerance domain.Price) *Engine {
	return &Engine{
		refs:      refs,
		threshold: threshold,
		tolerance: tolerance,
		log:       logger.Logger.WithField("component", "decision"),
	}
}

// Evaluate returns the spread to enter, if any. All gates must pass:
//
//  1. now is inside the 5m overlap of the 15m window
//  2. all four asks are present
//  3. both windows have a captured price-to-beat
//  4. each candidate leg's live ask stays within tolerance of its frozen
//     reference
//  5. the candidate's ask sum is strictly below the threshold (lower sum
//     wins when both qualify)
func (e *Engine) Evaluate(pair domain.WindowPair, snap monitor.Snapshot, now time.Time) (domain.CandidateSpread, bool) {
	if !pair.IsValid() {
		return domain.CandidateSpread{}, false
	}
	if !domain.InOverlap(now, pair.M15.Window.Start) {
		return domain.CandidateSpread{}, false
	}
	if !snap.Complete() {
		return domain.CandidateSpread{}, false
	}

	ref15, ok15 := e.refs.Get(pair.M15.Slug)
	ref5, ok5 := e.refs.Get(pair.M5.Slug)
	if !ok15 || !ok5 {
		return domain.CandidateSpread{}, false
	}

	upDown, downUp := monitor.Spreads(pair, snap)
	if !e.withinReference(upDown, ref15, ref5) {
		upDown = domain.CandidateSpread{Name: upDown.Name}
	}
	if !e.withinReference(downUp, ref15, ref5) {
		downUp = domain.CandidateSpread{Name: downUp.Name}
	}

	sel, ok := domain.SelectSpread(upDown, downUp, e.threshold)
	if !ok {
		return domain.CandidateSpread{}, false
	}
	e.log.Debugf("%s qualifies: sum=%s threshold=%s", sel.Name, sel.Sum(), e.threshold)
	return sel, true
}

// withinReference gates each leg against the frozen price-to-beat of its
// own window: a leg whose live ask has run away from the captured
// reference is no longer the trade that was priced at capture time.
func (e *Engine) withinReference(s domain.CandidateSpread, ref15, ref5 domain.PriceToBeat) bool {
	if !s.Complete() {
		return false
	}
	legOK := func(leg domain.SpreadLeg, ref domain.PriceToBeat) bool {
		return leg.Ask.LessThanOrEqual(ref.RefFor(leg.Token.Side).Add(e.tolerance))
	}
	return legOK(s.LegA, ref15) && legOK(s.LegB, ref5)
}
