package domain

import (
	"testing"
	"time"
)

func testPair() WindowPair {
	start15 := time.Unix(1700000000, 0)
	return WindowPair{
		M15: &Market{
			Slug: "btc-updown-15m-1700000000", UpAssetID: "t15u", DownAssetID: "t15d",
			Window: Window{Slot: Slot15m, Start: start15},
		},
		M5: &Market{
			Slug: "btc-updown-5m-1700000600", UpAssetID: "t5u", DownAssetID: "t5d",
			Window: Window{Slot: Slot5m, Start: start15.Add(10 * time.Minute)},
		},
	}
}

func testSpread() CandidateSpread {
	return CandidateSpread{
		Name: SpreadUpDown,
		LegA: SpreadLeg{Token: OutcomeToken{AssetID: "t15u", Slot: Slot15m, Side: TokenTypeUp}, Ask: PriceFromDecimal(0.48)},
		LegB: SpreadLeg{Token: OutcomeToken{AssetID: "t5d", Slot: Slot5m, Side: TokenTypeDown}, Ask: PriceFromDecimal(0.49)},
	}
}

func TestTradeHappyPathTransitions(t *testing.T) {
	tr := NewTrade("btc", testPair(), testSpread(), 10)
	if tr.State != TradeIdle {
		t.Fatalf("new trade state = %s", tr.State)
	}
	for _, next := range []TradeState{TradeLegsSubmitting, TradeAwaitingFills, TradeVerifying} {
		if err := tr.TransitionTo(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := tr.Close(TradeCompleted, "both legs filled"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if tr.ClosedAt.IsZero() {
		t.Error("terminal trade should record ClosedAt")
	}
}

func TestNewTradeLegsCarryMarketNegRisk(t *testing.T) {
	pair := testPair()
	pair.M15.NegRisk = true

	tr := NewTrade("btc", pair, testSpread(), 10)
	if !tr.LegA.NegRisk {
		t.Error("15m leg should carry its market's neg-risk flag")
	}
	if tr.LegB.NegRisk {
		t.Error("5m leg on a plain market must not be flagged neg-risk")
	}
}

func TestTradeRejectsIllegalTransitions(t *testing.T) {
	tr := NewTrade("btc", testPair(), testSpread(), 10)
	if err := tr.TransitionTo(TradeCompleted); err == nil {
		t.Fatal("idle -> completed must be rejected")
	}
	if err := tr.TransitionTo(TradeVerifying); err == nil {
		t.Fatal("idle -> verifying must be rejected")
	}
}

func TestTradeTerminalStatesAreFinal(t *testing.T) {
	tr := NewTrade("btc", testPair(), testSpread(), 10)
	_ = tr.TransitionTo(TradeLegsSubmitting)
	if err := tr.Close(TradeAborted, "submission failed"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.TransitionTo(TradeLegsSubmitting); err == nil {
		t.Fatal("terminal state must not transition")
	}
	if tr.Reason == "" {
		t.Error("terminal trade must carry a reason")
	}
}

func TestTradeCloseRequiresTerminalState(t *testing.T) {
	tr := NewTrade("btc", testPair(), testSpread(), 10)
	if err := tr.Close(TradeAwaitingFills, "x"); err == nil {
		t.Fatal("close with non-terminal state must fail")
	}
}

func TestTradeImbalanceAccounting(t *testing.T) {
	tr := NewTrade("btc", testPair(), testSpread(), 10)
	tr.LegA.FilledSize = 10
	tr.LegB.FilledSize = 4
	if got := tr.MatchedSize(); got != 4 {
		t.Errorf("matched = %v, want 4", got)
	}
	if got := tr.Imbalance(); got != 6 {
		t.Errorf("imbalance = %v, want 6", got)
	}
	if tr.SurplusLeg() != tr.LegA {
		t.Error("surplus leg should be leg A")
	}
	tr.LegB.FilledSize = 10
	if tr.SurplusLeg() != nil {
		t.Error("balanced trade has no surplus leg")
	}
}

func TestUnwindingResolvesToTerminal(t *testing.T) {
	tr := NewTrade("btc", testPair(), testSpread(), 10)
	for _, next := range []TradeState{TradeLegsSubmitting, TradeAwaitingFills, TradeVerifying, TradeUnwinding} {
		if err := tr.TransitionTo(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := tr.Close(TradeManualIntervention, "exit retries exhausted"); err != nil {
		t.Fatalf("close: %v", err)
	}
}
