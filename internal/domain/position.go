package domain

import "time"

// Position is a net settled outcome-token holding produced by a completed
// trade. The redemption process (separate from the live engine) consumes
// this ledger after market resolution.
type Position struct {
	AssetID     string
	ConditionID string
	MarketSlug  string
	Side        TokenType
	Size        float64
	AvgPrice    Price
	AcquiredAt  time.Time
	Redeemed    bool
}

// Cost is the total acquisition cost in collateral terms.
func (p Position) Cost() float64 {
	return p.AvgPrice.ToDecimal() * p.Size
}
