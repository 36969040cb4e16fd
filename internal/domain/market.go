package domain

import (
	"fmt"
	"time"
)

// Slot identifies which of the two correlated market durations a window
// belongs to.
type Slot string

const (
	Slot15m Slot = "15m"
	Slot5m  Slot = "5m"
)

// Duration returns the window length for the slot.
func (s Slot) Duration() time.Duration {
	if s == Slot5m {
		return 5 * time.Minute
	}
	return 15 * time.Minute
}

// Minutes returns the slot length in minutes (period alignment unit).
func (s Slot) Minutes() int {
	if s == Slot5m {
		return 5
	}
	return 15
}

// TokenType is the outcome side of an Up/Down market.
type TokenType string

const (
	TokenTypeUp   TokenType = "up"
	TokenTypeDown TokenType = "down"
)

// Opposite returns the other side.
func (t TokenType) Opposite() TokenType {
	if t == TokenTypeUp {
		return TokenTypeDown
	}
	return TokenTypeUp
}

// Window is the time interval during which a market is open for trading.
type Window struct {
	Slot  Slot
	Start time.Time
}

func (w Window) End() time.Time { return w.Start.Add(w.Slot.Duration()) }

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

// Market is one Up/Down market instance for a single window.
type Market struct {
	Slug        string
	ConditionID string
	Question    string
	UpAssetID   string
	DownAssetID string
	Window      Window
	NegRisk     bool
}

// AssetID returns the outcome token id for the given side.
func (m *Market) AssetID(side TokenType) string {
	if side == TokenTypeUp {
		return m.UpAssetID
	}
	return m.DownAssetID
}

// Token returns the OutcomeToken for the given side.
func (m *Market) Token(side TokenType) OutcomeToken {
	return OutcomeToken{AssetID: m.AssetID(side), Slot: m.Window.Slot, Side: side}
}

func (m *Market) IsValid() bool {
	return m != nil && m.Slug != "" && m.UpAssetID != "" && m.DownAssetID != "" && !m.Window.Start.IsZero()
}

// OutcomeToken identifies one side of one market window. Immutable.
type OutcomeToken struct {
	AssetID string
	Slot    Slot
	Side    TokenType
}

func (t OutcomeToken) String() string {
	return fmt.Sprintf("%s-%s", t.Slot, t.Side)
}

// WindowPair is the currently overlapping 15m/5m window pair being monitored.
// Only one pair is active at a time; the pair key serializes entries.
type WindowPair struct {
	M15 *Market
	M5  *Market
}

// Key is a stable identifier for the pair, used by the entry guard and the
// trade archive.
func (p WindowPair) Key() string {
	if p.M15 == nil || p.M5 == nil {
		return ""
	}
	return p.M15.Slug + "|" + p.M5.Slug
}

// AssetIDs lists the four outcome tokens in fixed order:
// 15mUp, 15mDown, 5mUp, 5mDown.
func (p WindowPair) AssetIDs() []string {
	return []string{p.M15.UpAssetID, p.M15.DownAssetID, p.M5.UpAssetID, p.M5.DownAssetID}
}

func (p WindowPair) IsValid() bool {
	return p.M15.IsValid() && p.M5.IsValid() &&
		p.M15.Window.Slot == Slot15m && p.M5.Window.Slot == Slot5m
}

// OverlapEnd is when both windows close (they share the same end instant when
// the 5m window is the last third of the 15m window).
func (p WindowPair) OverlapEnd() time.Time {
	e15 := p.M15.Window.End()
	e5 := p.M5.Window.End()
	if e5.Before(e15) {
		return e5
	}
	return e15
}
