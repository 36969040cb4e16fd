package reference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/betbot/crossarb/internal/domain"
)

type fakeSource struct {
	mu     sync.Mutex
	quotes map[string]domain.PriceQuote
}

func (f *fakeSource) Current(assetID string) (domain.PriceQuote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[assetID]
	return q, ok
}

func (f *fakeSource) set(assetID string, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quotes == nil {
		f.quotes = make(map[string]domain.PriceQuote)
	}
	f.quotes[assetID] = domain.PriceQuote{
		AssetID: assetID,
		Bid:     domain.PriceFromDecimal(bid),
		Ask:     domain.PriceFromDecimal(ask),
		At:      time.Now(),
	}
}

func refMarket(start time.Time) *domain.Market {
	return &domain.Market{
		Slug:        "btc-updown-5m-1700000000",
		UpAssetID:   "up",
		DownAssetID: "down",
		Window:      domain.Window{Slot: domain.Slot5m, Start: start},
	}
}

func TestCaptureFreezesReference(t *testing.T) {
	src := &fakeSource{}
	src.set("up", 0.50, 0.52)
	src.set("down", 0.46, 0.48)

	store := NewStore()
	tr := NewTracker(src, store, 10*time.Millisecond, 5*time.Millisecond)
	m := refMarket(time.Now())

	if err := tr.Capture(context.Background(), m); err != nil {
		t.Fatalf("capture: %v", err)
	}

	ref, ok := store.Get(m.Slug)
	if !ok {
		t.Fatal("reference not stored")
	}
	if want := domain.PriceFromDecimal(0.52); ref.UpAsk != want {
		t.Errorf("up ask = %s, want %s", ref.UpAsk, want)
	}

	// Later market moves must not touch the frozen value.
	src.set("up", 0.80, 0.82)
	if err := tr.Capture(context.Background(), m); err != nil {
		t.Fatalf("second capture: %v", err)
	}
	ref2, _ := store.Get(m.Slug)
	if ref2.UpAsk != ref.UpAsk {
		t.Errorf("reference changed after capture: %s -> %s", ref.UpAsk, ref2.UpAsk)
	}
}

func TestCaptureWaitsForDelay(t *testing.T) {
	src := &fakeSource{}
	src.set("up", 0.50, 0.52)
	src.set("down", 0.46, 0.48)

	store := NewStore()
	delay := 60 * time.Millisecond
	tr := NewTracker(src, store, delay, 5*time.Millisecond)
	start := time.Now()
	m := refMarket(start)

	if err := tr.Capture(context.Background(), m); err != nil {
		t.Fatalf("capture: %v", err)
	}
	ref, _ := store.Get(m.Slug)
	if got := ref.CapturedAt.Sub(start); got < delay {
		t.Errorf("captured %v after open, want >= %v", got, delay)
	}
}

func TestCaptureFailureMarksWindowUnavailable(t *testing.T) {
	src := &fakeSource{} // no quotes ever
	store := NewStore()
	tr := NewTracker(src, store, 10*time.Millisecond, 5*time.Millisecond)
	m := refMarket(time.Now())

	err := tr.Capture(context.Background(), m)
	if !errors.Is(err, domain.ErrReferenceUnavailable) {
		t.Fatalf("err = %v, want ErrReferenceUnavailable", err)
	}
	if !store.Unavailable(m.Slug) {
		t.Error("window should be marked unavailable")
	}

	// Quotes appearing later do not revive the window.
	src.set("up", 0.5, 0.52)
	src.set("down", 0.46, 0.48)
	err = tr.Capture(context.Background(), m)
	if !errors.Is(err, domain.ErrReferenceUnavailable) {
		t.Fatalf("err after late quotes = %v, want ErrReferenceUnavailable", err)
	}
}

// A feed outage covering the whole delay window kills the window even when
// quotes start flowing again shortly afterwards.
func TestCaptureFailsWhenQuotesArriveAfterDelay(t *testing.T) {
	src := &fakeSource{}
	store := NewStore()
	delay := 50 * time.Millisecond
	tr := NewTracker(src, store, delay, 10*time.Millisecond)
	m := refMarket(time.Now())

	recovered := make(chan struct{})
	go func() {
		defer close(recovered)
		time.Sleep(3 * delay)
		src.set("up", 0.50, 0.52)
		src.set("down", 0.46, 0.48)
	}()

	begin := time.Now()
	err := tr.Capture(context.Background(), m)
	if !errors.Is(err, domain.ErrReferenceUnavailable) {
		t.Fatalf("err = %v, want ErrReferenceUnavailable", err)
	}
	if elapsed := time.Since(begin); elapsed >= 3*delay {
		t.Errorf("capture kept polling %v past open, want give-up at ~%v", elapsed, delay)
	}

	<-recovered
	if err := tr.Capture(context.Background(), m); !errors.Is(err, domain.ErrReferenceUnavailable) {
		t.Fatalf("err after feed recovery = %v, want ErrReferenceUnavailable", err)
	}
	if _, ok := store.Get(m.Slug); ok {
		t.Error("late quotes must never become the frozen reference")
	}
	if !store.Unavailable(m.Slug) {
		t.Error("window should stay non-tradeable")
	}
}

// Starting past open+delay means the capture instant was missed; live
// quotes at that point are not the reference.
func TestCaptureMissedInstantFailsDespiteLiveQuotes(t *testing.T) {
	src := &fakeSource{}
	src.set("up", 0.50, 0.52)
	src.set("down", 0.46, 0.48)

	store := NewStore()
	tr := NewTracker(src, store, 10*time.Millisecond, 5*time.Millisecond)
	m := refMarket(time.Now().Add(-time.Second))

	err := tr.Capture(context.Background(), m)
	if !errors.Is(err, domain.ErrReferenceUnavailable) {
		t.Fatalf("err = %v, want ErrReferenceUnavailable", err)
	}
	if !store.Unavailable(m.Slug) {
		t.Error("window should be marked unavailable")
	}
}

func TestCaptureRequiresBothSides(t *testing.T) {
	src := &fakeSource{}
	src.set("up", 0.50, 0.52) // down side missing

	store := NewStore()
	tr := NewTracker(src, store, 10*time.Millisecond, 5*time.Millisecond)
	m := refMarket(time.Now())

	err := tr.Capture(context.Background(), m)
	if !errors.Is(err, domain.ErrReferenceUnavailable) {
		t.Fatalf("err = %v, want ErrReferenceUnavailable", err)
	}
}

func TestStoreSetOnce(t *testing.T) {
	store := NewStore()
	ref := domain.PriceToBeat{MarketSlug: "s", UpAsk: domain.PriceFromDecimal(0.5), DownAsk: domain.PriceFromDecimal(0.5), CapturedAt: time.Now()}
	if !store.Put(ref) {
		t.Fatal("first put should succeed")
	}
	ref.UpAsk = domain.PriceFromDecimal(0.9)
	if store.Put(ref) {
		t.Fatal("second put must be rejected")
	}
	got, _ := store.Get("s")
	if got.UpAsk != domain.PriceFromDecimal(0.5) {
		t.Errorf("stored value changed: %s", got.UpAsk)
	}
}
