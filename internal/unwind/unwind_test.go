package unwind

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/gateway"
)

type sellRecorder struct {
	mu       sync.Mutex
	requests []gateway.OrderRequest
	failures int // reject this many sells before accepting
}

func (r *sellRecorder) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderAck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if len(r.requests) <= r.failures {
		return gateway.OrderAck{}, domain.ErrSubmissionFailed
	}
	return gateway.OrderAck{OrderID: "exit-1", Status: "matched"}, nil
}

func (r *sellRecorder) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (r *sellRecorder) OrderState(ctx context.Context, orderID string) (gateway.OrderState, error) {
	return gateway.OrderState{OrderID: orderID, Status: domain.LegFilled, Known: true}, nil
}

type fixedBids map[string]domain.Price

func (b fixedBids) BidFor(assetID string) (domain.Price, bool) {
	p, ok := b[assetID]
	return p, ok
}

func unwindTrade(filledA, filledB float64) *domain.Trade {
	start15 := time.Unix(1700000000, 0)
	pair := domain.WindowPair{
		M15: &domain.Market{
			Slug: "btc-updown-15m-1700000000", UpAssetID: "a15u", DownAssetID: "a15d",
			Window: domain.Window{Slot: domain.Slot15m, Start: start15},
		},
		M5: &domain.Market{
			Slug: "btc-updown-5m-1700000600", UpAssetID: "a5u", DownAssetID: "a5d",
			Window: domain.Window{Slot: domain.Slot5m, Start: start15.Add(10 * time.Minute)},
		},
	}
	spread := domain.CandidateSpread{
		Name: domain.SpreadUpDown,
		LegA: domain.SpreadLeg{Token: domain.OutcomeToken{AssetID: "a15u", Slot: domain.Slot15m, Side: domain.TokenTypeUp}, Ask: domain.PriceFromDecimal(0.48)},
		LegB: domain.SpreadLeg{Token: domain.OutcomeToken{AssetID: "a5d", Slot: domain.Slot5m, Side: domain.TokenTypeDown}, Ask: domain.PriceFromDecimal(0.49)},
	}
	tr := domain.NewTrade("btc", pair, spread, 10)
	tr.LegA.FilledSize = filledA
	tr.LegB.FilledSize = filledB
	return tr
}

func fastManager(gw gateway.OrderGateway, bids BidSource, attempts, stepCents int) *Manager {
	m := NewManager(gw, bids, attempts, stepCents)
	m.retryPause = time.Millisecond
	return m
}

func TestUnwindSellsSurplusAtBid(t *testing.T) {
	gw := &sellRecorder{}
	bids := fixedBids{"a15u": domain.PriceFromDecimal(0.46)}
	tr := unwindTrade(10, 0)

	if err := fastManager(gw, bids, 4, 2).Unwind(context.Background(), tr); err != nil {
		t.Fatalf("unwind: %v", err)
	}
	if len(gw.requests) != 1 {
		t.Fatalf("got %d sells, want 1", len(gw.requests))
	}
	req := gw.requests[0]
	if req.Side != domain.SideSell || req.AssetID != "a15u" || req.Size != 10 {
		t.Errorf("sell = %+v", req)
	}
	if want := domain.PriceFromDecimal(0.46); req.Price != want {
		t.Errorf("first exit price = %s, want live bid %s", req.Price, want)
	}
}

func TestUnwindSellCarriesNegRiskFlag(t *testing.T) {
	gw := &sellRecorder{}
	bids := fixedBids{"a15u": domain.PriceFromDecimal(0.46)}
	tr := unwindTrade(10, 0)
	tr.LegA.NegRisk = true

	if err := fastManager(gw, bids, 3, 2).Unwind(context.Background(), tr); err != nil {
		t.Fatalf("unwind: %v", err)
	}
	if len(gw.requests) != 1 || !gw.requests[0].NegRisk {
		t.Fatalf("sell = %+v, want the surplus leg's neg-risk flag", gw.requests)
	}
}

func TestUnwindCrossesDeeperEachRetry(t *testing.T) {
	gw := &sellRecorder{failures: 2}
	bids := fixedBids{"a15u": domain.PriceFromDecimal(0.46)}
	tr := unwindTrade(10, 4)

	if err := fastManager(gw, bids, 4, 2).Unwind(context.Background(), tr); err != nil {
		t.Fatalf("unwind: %v", err)
	}
	if len(gw.requests) != 3 {
		t.Fatalf("got %d sells, want 3", len(gw.requests))
	}
	wants := []float64{0.46, 0.44, 0.42}
	for i, w := range wants {
		if got := gw.requests[i].Price; got != domain.PriceFromDecimal(w) {
			t.Errorf("attempt %d price = %s, want %v", i+1, got, w)
		}
	}
	if gw.requests[0].Size != 6 {
		t.Errorf("sell size = %g, want imbalance 6", gw.requests[0].Size)
	}
}

func TestUnwindExhaustionEscalates(t *testing.T) {
	gw := &sellRecorder{failures: 100}
	bids := fixedBids{"a15u": domain.PriceFromDecimal(0.46)}
	tr := unwindTrade(10, 0)

	err := fastManager(gw, bids, 3, 2).Unwind(context.Background(), tr)
	if !errors.Is(err, domain.ErrManualInterventionRequired) {
		t.Fatalf("err = %v, want ErrManualInterventionRequired", err)
	}
	if len(gw.requests) != 3 {
		t.Errorf("got %d attempts, want 3", len(gw.requests))
	}
}

func TestUnwindBalancedTradeIsNoop(t *testing.T) {
	gw := &sellRecorder{}
	tr := unwindTrade(10, 10)
	if err := fastManager(gw, fixedBids{}, 3, 2).Unwind(context.Background(), tr); err != nil {
		t.Fatalf("unwind: %v", err)
	}
	if len(gw.requests) != 0 {
		t.Errorf("balanced trade placed %d sells", len(gw.requests))
	}
}

func TestUnwindWithoutBidFallsBackToEntryPrice(t *testing.T) {
	gw := &sellRecorder{}
	tr := unwindTrade(0, 10) // surplus on the 5m leg, entry 0.49
	if err := fastManager(gw, fixedBids{}, 3, 2).Unwind(context.Background(), tr); err != nil {
		t.Fatalf("unwind: %v", err)
	}
	if want := domain.PriceFromDecimal(0.47); gw.requests[0].Price != want {
		t.Errorf("fallback price = %s, want entry minus step %s", gw.requests[0].Price, want)
	}
}

func TestUnwindPriceFloorsAtOneCent(t *testing.T) {
	gw := &sellRecorder{failures: 3}
	bids := fixedBids{"a15u": domain.PriceFromDecimal(0.03)}
	tr := unwindTrade(10, 0)

	if err := fastManager(gw, bids, 4, 2).Unwind(context.Background(), tr); err != nil {
		t.Fatalf("unwind: %v", err)
	}
	last := gw.requests[len(gw.requests)-1]
	if want := domain.PriceFromCents(1); last.Price.LessThan(want) {
		t.Errorf("exit price %s went below the one-cent floor", last.Price)
	}
}
