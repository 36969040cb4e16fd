package monitor

import (
	"sync/atomic"
	"time"

	"github.com/betbot/crossarb/internal/domain"
)

// Leg indexes into the quad book. Order matches WindowPair.AssetIDs.
const (
	Leg15mUp = iota
	Leg15mDown
	Leg5mUp
	Leg5mDown
	legCount
)

// QuadBook is a lock-free top-of-book cache for the four outcome tokens of
// a 15m/5m window pair. Writers (the feed) and readers (decision loop) are
// fully decoupled; a read always sees a torn-free snapshot of all four
// asks and all four bids.
//
// Prices are stored as pips (price * 10000), which fit in 16 bits, so one
// uint64 packs one side of all four legs:
//
//	[15mUp:16][15mDown:16][5mUp:16][5mDown:16]
//
// A pip value of 0 means "no quote".
type QuadBook struct {
	asksPacked atomic.Uint64
	bidsPacked atomic.Uint64

	updatedAtUnixMs atomic.Int64
	seq             atomic.Uint64
}

type Snapshot struct {
	Bids      [legCount]domain.Price
	Asks      [legCount]domain.Price
	UpdatedAt time.Time
	Seq       uint64
}

// Complete reports whether every leg has an ask. Entry evaluation needs all
// four asks; bids are only needed for exits.
func (s Snapshot) Complete() bool {
	for _, a := range s.Asks {
		if a.IsZero() {
			return false
		}
	}
	return true
}

func NewQuadBook() *QuadBook {
	return &QuadBook{}
}

// Reset clears the book in place. In place matters: callers cache the
// *QuadBook pointer across window rolls, so swapping the pointer would
// leave them reading stale data.
func (b *QuadBook) Reset() {
	if b == nil {
		return
	}
	b.asksPacked.Store(0)
	b.bidsPacked.Store(0)
	b.updatedAtUnixMs.Store(0)
	b.seq.Add(1)
}

// UpdateLeg sets the bid/ask for one leg. A zero price keeps the old value
// so partial updates (ask-only price_change events) do not erase the other
// side.
func (b *QuadBook) UpdateLeg(leg int, bid, ask domain.Price) {
	if b == nil || leg < 0 || leg >= legCount {
		return
	}
	bidPips := clampPips(bid)
	askPips := clampPips(ask)
	shift := uint((legCount - 1 - leg) * 16)

	if askPips != 0 {
		for {
			cur := b.asksPacked.Load()
			next := (cur &^ (uint64(0xFFFF) << shift)) | (uint64(askPips) << shift)
			if b.asksPacked.CompareAndSwap(cur, next) {
				break
			}
		}
	}
	if bidPips != 0 {
		for {
			cur := b.bidsPacked.Load()
			next := (cur &^ (uint64(0xFFFF) << shift)) | (uint64(bidPips) << shift)
			if b.bidsPacked.CompareAndSwap(cur, next) {
				break
			}
		}
	}

	b.updatedAtUnixMs.Store(time.Now().UnixMilli())
	b.seq.Add(1)
}

func (b *QuadBook) Load() Snapshot {
	asks := b.asksPacked.Load()
	bids := b.bidsPacked.Load()
	ms := b.updatedAtUnixMs.Load()

	var snap Snapshot
	for leg := 0; leg < legCount; leg++ {
		shift := uint((legCount - 1 - leg) * 16)
		snap.Asks[leg] = domain.Price{Pips: int((asks >> shift) & 0xFFFF)}
		snap.Bids[leg] = domain.Price{Pips: int((bids >> shift) & 0xFFFF)}
	}
	if ms > 0 {
		snap.UpdatedAt = time.UnixMilli(ms)
	}
	snap.Seq = b.seq.Load()
	return snap
}

func (b *QuadBook) IsFresh(maxAge time.Duration) bool {
	if b == nil {
		return false
	}
	ms := b.updatedAtUnixMs.Load()
	if ms <= 0 {
		return false
	}
	return time.Since(time.UnixMilli(ms)) <= maxAge
}

// clampPips converts a price to the packed 16-bit unit. Single-token prices
// are bounded by 1.0 so anything above the field width is a bug upstream;
// clamping keeps the book sane instead of wrapping.
func clampPips(p domain.Price) uint16 {
	if p.Pips <= 0 {
		return 0
	}
	if p.Pips > 0xFFFF {
		return 0xFFFF
	}
	return uint16(p.Pips)
}
