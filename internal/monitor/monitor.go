package monitor

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/pkg/logger"
	"github.com/betbot/crossarb/pkg/sigchan"
)

// PairMonitor tracks the live quad book for one symbol's current 15m/5m
// window pair. The feed pushes quotes in via Apply; the decision loop waits
// on Changed and reads consistent snapshots.
type PairMonitor struct {
	symbol string
	log    *logrus.Entry

	mu    sync.RWMutex
	pair  domain.WindowPair
	index map[string]int // asset ID -> leg

	book    *QuadBook
	changed *sigchan.Chan
}

func NewPairMonitor(symbol string, pair domain.WindowPair) *PairMonitor {
	m := &PairMonitor{
		symbol:  symbol,
		log:     logger.Logger.WithField("component", "monitor").WithField("symbol", symbol),
		book:    NewQuadBook(),
		changed: sigchan.New(1),
	}
	m.SwapPair(pair)
	return m
}

// SwapPair rolls the monitor onto a new window pair, clearing the book.
func (m *PairMonitor) SwapPair(pair domain.WindowPair) {
	index := make(map[string]int, legCount)
	if pair.M15 != nil {
		index[pair.M15.UpAssetID] = Leg15mUp
		index[pair.M15.DownAssetID] = Leg15mDown
	}
	if pair.M5 != nil {
		index[pair.M5.UpAssetID] = Leg5mUp
		index[pair.M5.DownAssetID] = Leg5mDown
	}

	m.mu.Lock()
	m.pair = pair
	m.index = index
	m.book.Reset()
	m.mu.Unlock()

	m.changed.Emit()
	m.log.Debugf("pair swapped to %s", pair.Key())
}

// Apply routes a quote into the book. Quotes for assets outside the current
// pair are ignored, which covers late updates from a previous window. The
// book write stays under the lock that routed it: a write routed by the old
// index must not land after SwapPair has reset the book.
func (m *PairMonitor) Apply(q domain.PriceQuote) {
	m.mu.RLock()
	leg, ok := m.index[q.AssetID]
	if ok {
		m.book.UpdateLeg(leg, q.Bid, q.Ask)
	}
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.changed.Emit()
}

// Changed signals that the book moved since the last snapshot was taken.
func (m *PairMonitor) Changed() <-chan struct{} {
	return m.changed.C()
}

// Snapshot returns the current pair and a consistent book snapshot.
func (m *PairMonitor) Snapshot() (domain.WindowPair, Snapshot) {
	m.mu.RLock()
	pair := m.pair
	m.mu.RUnlock()
	return pair, m.book.Load()
}

// Spreads builds the two candidate spreads from a snapshot. Either spread
// with a missing ask comes back incomplete and will never qualify.
func Spreads(pair domain.WindowPair, snap Snapshot) (upDown, downUp domain.CandidateSpread) {
	if pair.M15 == nil || pair.M5 == nil {
		return
	}
	upDown = domain.CandidateSpread{
		Name: domain.SpreadUpDown,
		LegA: domain.SpreadLeg{
			Token: domain.OutcomeToken{AssetID: pair.M15.UpAssetID, Slot: domain.Slot15m, Side: domain.TokenTypeUp},
			Ask:   snap.Asks[Leg15mUp],
		},
		LegB: domain.SpreadLeg{
			Token: domain.OutcomeToken{AssetID: pair.M5.DownAssetID, Slot: domain.Slot5m, Side: domain.TokenTypeDown},
			Ask:   snap.Asks[Leg5mDown],
		},
	}
	downUp = domain.CandidateSpread{
		Name: domain.SpreadDownUp,
		LegA: domain.SpreadLeg{
			Token: domain.OutcomeToken{AssetID: pair.M15.DownAssetID, Slot: domain.Slot15m, Side: domain.TokenTypeDown},
			Ask:   snap.Asks[Leg15mDown],
		},
		LegB: domain.SpreadLeg{
			Token: domain.OutcomeToken{AssetID: pair.M5.UpAssetID, Slot: domain.Slot5m, Side: domain.TokenTypeUp},
			Ask:   snap.Asks[Leg5mUp],
		},
	}
	return
}

// BidFor returns the current best bid for an asset in the monitored pair.
// Used by the unwind path to price exits.
func (m *PairMonitor) BidFor(assetID string) (domain.Price, bool) {
	m.mu.RLock()
	leg, ok := m.index[assetID]
	m.mu.RUnlock()
	if !ok {
		return domain.Price{}, false
	}
	snap := m.book.Load()
	bid := snap.Bids[leg]
	return bid, !bid.IsZero()
}
