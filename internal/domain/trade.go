package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TradeState is the lifecycle state of a two-leg trade.
type TradeState string

const (
	TradeIdle               TradeState = "idle"
	TradeLegsSubmitting     TradeState = "legs_submitting"
	TradeAwaitingFills      TradeState = "awaiting_fills"
	TradeVerifying          TradeState = "verifying"
	TradeCompleted          TradeState = "completed"
	TradeUnwinding          TradeState = "unwinding"
	TradeAborted            TradeState = "aborted"
	TradeManualIntervention TradeState = "manual_intervention"
)

// Terminal reports whether the state ends the trade lifecycle.
func (s TradeState) Terminal() bool {
	switch s {
	case TradeCompleted, TradeAborted, TradeManualIntervention:
		return true
	}
	return false
}

// tradeTransitions lists the legal state transitions. Unwinding must resolve
// to Aborted or ManualIntervention; nothing leaves a terminal state.
var tradeTransitions = map[TradeState][]TradeState{
	TradeIdle:           {TradeLegsSubmitting},
	TradeLegsSubmitting: {TradeAwaitingFills, TradeAborted},
	TradeAwaitingFills:  {TradeVerifying},
	TradeVerifying:      {TradeCompleted, TradeUnwinding, TradeAborted},
	TradeUnwinding:      {TradeAborted, TradeManualIntervention},
}

// Trade is the unit of execution: two leg orders plus a lifecycle state.
// Created at entry decision, archived on reaching a terminal state. A Trade
// owns its two legs; no sharing across trades.
type Trade struct {
	ID      string
	Symbol  string
	PairKey string
	Spread  CandidateSpread
	Shares  float64

	LegA *LegOrder // 15m leg
	LegB *LegOrder // 5m leg

	State     TradeState
	Reason    string
	CreatedAt time.Time
	ClosedAt  time.Time
}

// NewTrade creates a Trade in Idle with both legs prepared as buys at the
// spread's quoted asks. Each leg carries its market's neg-risk flag so
// orders sign against the right exchange contract.
func NewTrade(symbol string, pair WindowPair, spread CandidateSpread, shares float64) *Trade {
	return &Trade{
		ID:      uuid.NewString(),
		Symbol:  symbol,
		PairKey: pair.Key(),
		Spread:  spread,
		Shares:  shares,
		LegA: &LegOrder{
			Token:      spread.LegA.Token,
			MarketSlug: pair.M15.Slug,
			NegRisk:    pair.M15.NegRisk,
			Side:       SideBuy,
			Price:      spread.LegA.Ask,
			Size:       shares,
			Status:     LegSubmitted,
		},
		LegB: &LegOrder{
			Token:      spread.LegB.Token,
			MarketSlug: pair.M5.Slug,
			NegRisk:    pair.M5.NegRisk,
			Side:       SideBuy,
			Price:      spread.LegB.Ask,
			Size:       shares,
			Status:     LegSubmitted,
		},
		State:     TradeIdle,
		CreatedAt: time.Now(),
	}
}

// TransitionTo moves the trade to next, rejecting illegal transitions.
func (t *Trade) TransitionTo(next TradeState) error {
	for _, allowed := range tradeTransitions[t.State] {
		if allowed == next {
			t.State = next
			if next.Terminal() {
				t.ClosedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("illegal trade transition %s -> %s (trade %s)", t.State, next, t.ID)
}

// Close moves the trade to a terminal state with a recorded reason. Every
// terminal trade carries its reason; none is discarded silently.
func (t *Trade) Close(state TradeState, reason string) error {
	if !state.Terminal() {
		return fmt.Errorf("close requires a terminal state, got %s", state)
	}
	if err := t.TransitionTo(state); err != nil {
		return err
	}
	t.Reason = reason
	return nil
}

// MatchedSize is the paired quantity filled on both legs.
func (t *Trade) MatchedSize() float64 {
	a, b := t.LegA.FilledSize, t.LegB.FilledSize
	if a < b {
		return a
	}
	return b
}

// Imbalance is the one-sided surplus between the two legs' fills; a non-zero
// imbalance is naked directional exposure.
func (t *Trade) Imbalance() float64 {
	a, b := t.LegA.FilledSize, t.LegB.FilledSize
	if a > b {
		return a - b
	}
	return b - a
}

// SurplusLeg returns the leg holding the one-sided exposure, or nil when
// balanced.
func (t *Trade) SurplusLeg() *LegOrder {
	switch {
	case t.LegA.FilledSize > t.LegB.FilledSize:
		return t.LegA
	case t.LegB.FilledSize > t.LegA.FilledSize:
		return t.LegB
	default:
		return nil
	}
}

// SiblingOf returns the other leg.
func (t *Trade) SiblingOf(leg *LegOrder) *LegOrder {
	if leg == t.LegA {
		return t.LegB
	}
	return t.LegA
}
