package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/gateway"
)

// legScript describes how the fake exchange treats one asset's order.
type legScript struct {
	rejectSubmit bool
	fillSize     float64
	stateUnknown bool
	status       domain.LegOrderStatus
}

type fakeGateway struct {
	mu      sync.Mutex
	scripts map[string]legScript // asset ID -> behavior
	orders  map[string]string    // order ID -> asset ID
	placed  []gateway.OrderRequest
	seq     int
}

func newFakeGateway(scripts map[string]legScript) *fakeGateway {
	return &fakeGateway{scripts: scripts, orders: make(map[string]string)}
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placed = append(g.placed, req)
	s := g.scripts[req.AssetID]
	if s.rejectSubmit {
		return gateway.OrderAck{}, domain.ErrSubmissionFailed
	}
	g.seq++
	id := fmt.Sprintf("ord-%d", g.seq)
	g.orders[id] = req.AssetID
	return gateway.OrderAck{OrderID: id, Status: "live"}, nil
}

func (g *fakeGateway) placedOrders() []gateway.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.OrderRequest, len(g.placed))
	copy(out, g.placed)
	return out
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (g *fakeGateway) OrderState(ctx context.Context, orderID string) (gateway.OrderState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	asset, ok := g.orders[orderID]
	if !ok {
		return gateway.OrderState{OrderID: orderID}, domain.ErrVerificationUnknown
	}
	s := g.scripts[asset]
	if s.stateUnknown {
		return gateway.OrderState{OrderID: orderID}, domain.ErrVerificationUnknown
	}
	status := s.status
	if status == "" {
		if s.fillSize > 0 {
			status = domain.LegFilled
		} else {
			status = domain.LegCancelled
		}
	}
	return gateway.OrderState{OrderID: orderID, Status: status, FilledSize: s.fillSize, Known: true}, nil
}

type fakeUnwinder struct {
	mu     sync.Mutex
	called bool
	fail   bool
}

func (u *fakeUnwinder) Unwind(ctx context.Context, tr *domain.Trade) error {
	u.mu.Lock()
	u.called = true
	fail := u.fail
	u.mu.Unlock()
	if fail {
		return domain.ErrManualInterventionRequired
	}
	return nil
}

func (u *fakeUnwinder) wasCalled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.called
}

func executionTrade() *domain.Trade {
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
	return domain.NewTrade("btc", pair, spread, 10)
}

func fastMachine(gw gateway.OrderGateway, uw Unwinder) *Machine {
	return NewMachine(gw, uw, MachineConfig{
		SubmitRetry:  RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
		VerifyWindow: 50 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
}

func TestExecuteBothLegsFill(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {fillSize: 10},
		"a5d":  {fillSize: 10},
	})
	uw := &fakeUnwinder{}
	tr := executionTrade()

	if err := fastMachine(gw, uw).Execute(context.Background(), tr); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if tr.State != domain.TradeCompleted {
		t.Fatalf("state = %s, want completed", tr.State)
	}
	if uw.wasCalled() {
		t.Error("unwinder must not run on a clean completion")
	}
	if tr.MatchedSize() != 10 {
		t.Errorf("matched = %g, want 10", tr.MatchedSize())
	}
}

func TestSubmitCarriesLegNegRiskFlag(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {fillSize: 10},
		"a5d":  {fillSize: 10},
	})
	uw := &fakeUnwinder{}
	tr := executionTrade()
	tr.LegA.NegRisk = true

	if err := fastMachine(gw, uw).Execute(context.Background(), tr); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, req := range gw.placedOrders() {
		want := req.AssetID == "a15u"
		if req.NegRisk != want {
			t.Errorf("order for %s has NegRisk=%v, want %v", req.AssetID, req.NegRisk, want)
		}
	}
}

func TestExecuteBothLegsRejected(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {rejectSubmit: true},
		"a5d":  {rejectSubmit: true},
	})
	uw := &fakeUnwinder{}
	tr := executionTrade()

	err := fastMachine(gw, uw).Execute(context.Background(), tr)
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("err = %v, want ErrSubmissionFailed", err)
	}
	if tr.State != domain.TradeAborted {
		t.Fatalf("state = %s, want aborted", tr.State)
	}
	if uw.wasCalled() {
		t.Error("nothing to unwind when nothing was submitted")
	}
}

func TestExecuteOneSidedFillUnwinds(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {fillSize: 10},
		"a5d":  {rejectSubmit: true},
	})
	uw := &fakeUnwinder{}
	tr := executionTrade()

	if err := fastMachine(gw, uw).Execute(context.Background(), tr); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !uw.wasCalled() {
		t.Fatal("one-sided fill must trigger the unwinder")
	}
	if tr.State != domain.TradeAborted {
		t.Fatalf("state = %s, want aborted after successful unwind", tr.State)
	}
	if tr.SurplusLeg() != tr.LegA {
		t.Error("surplus should sit on the filled 15m leg")
	}
}

func TestExecuteRejectedLegWithUnfilledSiblingAborts(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {rejectSubmit: true},
		"a5d":  {status: domain.LegCancelled},
	})
	uw := &fakeUnwinder{}
	tr := executionTrade()

	err := fastMachine(gw, uw).Execute(context.Background(), tr)
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("err = %v, want ErrSubmissionFailed", err)
	}
	if tr.State != domain.TradeAborted {
		t.Fatalf("state = %s, want aborted", tr.State)
	}
	if uw.wasCalled() {
		t.Error("no fills anywhere, nothing to unwind")
	}
}

func TestExecutePartialImbalanceUnwinds(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {fillSize: 10},
		"a5d":  {fillSize: 4, status: domain.LegPartiallyFilled},
	})
	uw := &fakeUnwinder{}
	tr := executionTrade()

	if err := fastMachine(gw, uw).Execute(context.Background(), tr); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !uw.wasCalled() {
		t.Fatal("imbalance must trigger the unwinder")
	}
	if got := tr.Imbalance(); got != 6 {
		t.Errorf("imbalance = %g, want 6", got)
	}
}

func TestExecuteUnknownWithEvidenceGoesToUnwind(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {fillSize: 10},
		"a5d":  {stateUnknown: true},
	})
	uw := &fakeUnwinder{}
	tr := executionTrade()

	if err := fastMachine(gw, uw).Execute(context.Background(), tr); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !uw.wasCalled() {
		t.Fatal("unknown state with fill evidence must unwind, never assume")
	}
	if tr.State != domain.TradeAborted {
		t.Fatalf("state = %s, want aborted", tr.State)
	}
}

func TestExecuteUnknownWithoutEvidenceAborts(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {stateUnknown: true},
		"a5d":  {stateUnknown: true},
	})
	uw := &fakeUnwinder{}
	tr := executionTrade()

	err := fastMachine(gw, uw).Execute(context.Background(), tr)
	if !errors.Is(err, domain.ErrVerificationUnknown) {
		t.Fatalf("err = %v, want ErrVerificationUnknown", err)
	}
	if tr.State != domain.TradeAborted {
		t.Fatalf("state = %s, want aborted", tr.State)
	}
	if uw.wasCalled() {
		t.Error("no exposure evidence, nothing to unwind")
	}
}

func TestExecuteUnwindFailureEscalates(t *testing.T) {
	gw := newFakeGateway(map[string]legScript{
		"a15u": {fillSize: 10},
		"a5d":  {rejectSubmit: true},
	})
	uw := &fakeUnwinder{fail: true}
	tr := executionTrade()

	err := fastMachine(gw, uw).Execute(context.Background(), tr)
	if !errors.Is(err, domain.ErrManualInterventionRequired) {
		t.Fatalf("err = %v, want ErrManualInterventionRequired", err)
	}
	if tr.State != domain.TradeManualIntervention {
		t.Fatalf("state = %s, want manual_intervention", tr.State)
	}
	if tr.Reason == "" {
		t.Error("manual intervention trade must carry a reason")
	}
}

func TestRetryPolicyStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("nope")
	})
	if err == nil || calls != 3 {
		t.Fatalf("calls = %d (err %v), want 3 attempts then failure", calls, err)
	}
}

func TestRetryPolicySucceedsMidway(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("calls = %d, err = %v", calls, err)
	}
}
