package domain

import "time"

// PriceQuote is the latest top-of-book for one outcome token. Quotes are
// monotonically replaced; no history is kept beyond the latest and the frozen
// price-to-beat snapshot.
type PriceQuote struct {
	AssetID string
	Bid     Price
	Ask     Price
	At      time.Time
}

func (q PriceQuote) HasBid() bool { return q.Bid.Pips > 0 }
func (q PriceQuote) HasAsk() bool { return q.Ask.Pips > 0 }

// IsPlaceholder reports whether the quote looks like the exchange's empty
// book placeholder (bid pinned near 0, ask pinned near 1) published before a
// market has real liquidity. Placeholders are discarded at the feed boundary.
func (q PriceQuote) IsPlaceholder() bool {
	lowBid := q.HasBid() && q.Bid.ToDecimal() < 0.05
	highAsk := q.HasAsk() && q.Ask.ToDecimal() > 0.95
	switch {
	case q.HasBid() && q.HasAsk():
		return lowBid && highAsk
	case q.HasBid():
		return lowBid
	case q.HasAsk():
		return highAsk
	default:
		return false
	}
}

// PriceToBeat is a market's frozen early-window reference, captured once per
// window a configured delay after open, then never changed. It gates entries
// against transient quotes right at window open.
type PriceToBeat struct {
	MarketSlug string
	UpAsk      Price
	DownAsk    Price
	CapturedAt time.Time
}

// RefFor returns the frozen reference ask for the given side.
func (p PriceToBeat) RefFor(side TokenType) Price {
	if side == TokenTypeUp {
		return p.UpAsk
	}
	return p.DownAsk
}
