package decision

import (
	"testing"
	"time"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/monitor"
	"github.com/betbot/crossarb/internal/reference"
)

func decisionPair(start15 time.Time) domain.WindowPair {
	return domain.WindowPair{
		M15: &domain.Market{
			Slug: "btc-updown-15m-1700000000", UpAssetID: "a15u", DownAssetID: "a15d",
			Window: domain.Window{Slot: domain.Slot15m, Start: start15},
		},
		M5: &domain.Market{
			Slug: "btc-updown-5m-1700000600", UpAssetID: "a5u", DownAssetID: "a5d",
			Window: domain.Window{Slot: domain.Slot5m, Start: start15.Add(10 * time.Minute)},
		},
	}
}

// fullBook returns a monitor with all four asks populated.
func fullBook(pair domain.WindowPair, ask15u, ask15d, ask5u, ask5d float64) monitor.Snapshot {
	m := monitor.NewPairMonitor("btc", pair)
	apply := func(asset string, ask float64) {
		m.Apply(domain.PriceQuote{
			AssetID: asset,
			Bid:     domain.PriceFromDecimal(ask - 0.02),
			Ask:     domain.PriceFromDecimal(ask),
			At:      time.Now(),
		})
	}
	apply("a15u", ask15u)
	apply("a15d", ask15d)
	apply("a5u", ask5u)
	apply("a5d", ask5d)
	_, snap := m.Snapshot()
	return snap
}

func capturedRefs(pair domain.WindowPair, up15, down15, up5, down5 float64) *reference.Store {
	refs := reference.NewStore()
	refs.Put(domain.PriceToBeat{
		MarketSlug: pair.M15.Slug,
		UpAsk:      domain.PriceFromDecimal(up15),
		DownAsk:    domain.PriceFromDecimal(down15),
		CapturedAt: time.Now(),
	})
	refs.Put(domain.PriceToBeat{
		MarketSlug: pair.M5.Slug,
		UpAsk:      domain.PriceFromDecimal(up5),
		DownAsk:    domain.PriceFromDecimal(down5),
		CapturedAt: time.Now(),
	})
	return refs
}

func newTestEngine(refs *reference.Store) *Engine {
	return NewEngine(refs, domain.PriceFromDecimal(0.99), domain.PriceFromDecimal(0.03))
}

func TestEvaluateEntersQualifyingSpread(t *testing.T) {
	// Scenario: 15mUp=0.48, 5mDown=0.49 sums to 0.97 < 0.99.
	start15 := time.Now().Add(-11 * time.Minute)
	pair := decisionPair(start15)
	snap := fullBook(pair, 0.48, 0.55, 0.53, 0.49)
	refs := capturedRefs(pair, 0.48, 0.54, 0.52, 0.49)

	sel, ok := newTestEngine(refs).Evaluate(pair, snap, time.Now())
	if !ok {
		t.Fatal("expected an entry")
	}
	if sel.Name != domain.SpreadUpDown {
		t.Fatalf("selected %s, want %s", sel.Name, domain.SpreadUpDown)
	}
}

func TestEvaluateRejectsOutsideOverlap(t *testing.T) {
	// Only 5 minutes into the 15m window: the 5m market is not the final
	// sub-window yet.
	start15 := time.Now().Add(-5 * time.Minute)
	pair := decisionPair(start15)
	snap := fullBook(pair, 0.48, 0.55, 0.53, 0.49)
	refs := capturedRefs(pair, 0.48, 0.54, 0.52, 0.49)

	if _, ok := newTestEngine(refs).Evaluate(pair, snap, time.Now()); ok {
		t.Fatal("no entry outside the overlap window")
	}
}

func TestEvaluateRejectsIncompleteBook(t *testing.T) {
	start15 := time.Now().Add(-11 * time.Minute)
	pair := decisionPair(start15)
	m := monitor.NewPairMonitor("btc", pair)
	m.Apply(domain.PriceQuote{AssetID: "a15u", Ask: domain.PriceFromDecimal(0.48), At: time.Now()})
	_, snap := m.Snapshot()
	refs := capturedRefs(pair, 0.48, 0.54, 0.52, 0.49)

	if _, ok := newTestEngine(refs).Evaluate(pair, snap, time.Now()); ok {
		t.Fatal("no entry with a partial book")
	}
}

func TestEvaluateRequiresBothReferences(t *testing.T) {
	start15 := time.Now().Add(-11 * time.Minute)
	pair := decisionPair(start15)
	snap := fullBook(pair, 0.48, 0.55, 0.53, 0.49)

	refs := reference.NewStore()
	refs.Put(domain.PriceToBeat{
		MarketSlug: pair.M15.Slug,
		UpAsk:      domain.PriceFromDecimal(0.48),
		DownAsk:    domain.PriceFromDecimal(0.54),
		CapturedAt: time.Now(),
	})
	// 5m reference never captured.

	if _, ok := newTestEngine(refs).Evaluate(pair, snap, time.Now()); ok {
		t.Fatal("no entry without both references")
	}
}

func TestEvaluateReferenceGateBlocksRunawayLeg(t *testing.T) {
	start15 := time.Now().Add(-11 * time.Minute)
	pair := decisionPair(start15)
	// 15mUp ask 0.48 but its reference was 0.40: drift 0.08 > tolerance.
	snap := fullBook(pair, 0.48, 0.55, 0.53, 0.49)
	refs := capturedRefs(pair, 0.40, 0.54, 0.52, 0.49)

	if _, ok := newTestEngine(refs).Evaluate(pair, snap, time.Now()); ok {
		t.Fatal("reference gate should block the drifted leg")
	}
}

func TestEvaluatePicksLowerSumWhenBothQualify(t *testing.T) {
	start15 := time.Now().Add(-11 * time.Minute)
	pair := decisionPair(start15)
	// upDown = 0.48+0.49 = 0.97, downUp = 0.46+0.48 = 0.94.
	snap := fullBook(pair, 0.48, 0.46, 0.48, 0.49)
	refs := capturedRefs(pair, 0.48, 0.46, 0.48, 0.49)

	sel, ok := newTestEngine(refs).Evaluate(pair, snap, time.Now())
	if !ok {
		t.Fatal("expected an entry")
	}
	if sel.Name != domain.SpreadDownUp {
		t.Fatalf("selected %s, want lower-sum %s", sel.Name, domain.SpreadDownUp)
	}
}

func TestGuardSingleTradePerPair(t *testing.T) {
	g := NewEntryGuard(time.Hour)
	if !g.TryAcquire("p") {
		t.Fatal("first acquire should win")
	}
	if g.TryAcquire("p") {
		t.Fatal("second acquire while in flight must fail")
	}
	g.Release("p")
	// Cooldown still blocks re-entry.
	if g.TryAcquire("p") {
		t.Fatal("cooldown must block immediate re-entry")
	}
	g.Forget("p")
	if !g.TryAcquire("p") {
		t.Fatal("acquire after forget should win")
	}
}

func TestGuardCooldownExpires(t *testing.T) {
	g := NewEntryGuard(10 * time.Millisecond)
	if !g.TryAcquire("p") {
		t.Fatal("first acquire should win")
	}
	g.Release("p")
	time.Sleep(20 * time.Millisecond)
	if !g.TryAcquire("p") {
		t.Fatal("acquire after cooldown should win")
	}
}
