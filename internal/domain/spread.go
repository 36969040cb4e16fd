package domain

// SpreadLeg is one side of a candidate spread: the token to buy and its
// current best ask.
type SpreadLeg struct {
	Token OutcomeToken
	Ask   Price
}

// CandidateSpread is one of the two leg combinations across the window pair:
// 15mUp+5mDown or 15mDown+5mUp. Buying both legs of a complete set below 1.0
// locks in the difference regardless of settlement direction.
type CandidateSpread struct {
	Name string
	LegA SpreadLeg // 15m leg
	LegB SpreadLeg // 5m leg
}

const (
	SpreadUpDown = "15mUp+5mDown"
	SpreadDownUp = "15mDown+5mUp"
)

// Sum is the combined cost of buying both legs at their current asks.
func (s CandidateSpread) Sum() Price {
	return s.LegA.Ask.Add(s.LegB.Ask)
}

// Complete reports whether both legs have a live ask.
func (s CandidateSpread) Complete() bool {
	return s.LegA.Ask.Pips > 0 && s.LegB.Ask.Pips > 0
}

// Edge is 1.0 minus the summed cost; positive edge is locked-in profit if
// both legs fill.
func (s CandidateSpread) Edge() Price {
	return Price{Pips: 10000}.Subtract(s.Sum())
}

// Qualifies reports whether the spread is tradeable against the threshold:
// both legs quoted and summed cost strictly below the threshold.
func (s CandidateSpread) Qualifies(threshold Price) bool {
	return s.Complete() && s.Sum().LessThan(threshold)
}

// SelectSpread picks the spread to trade when at least one of the two
// candidates qualifies. Both qualifying: the lower sum wins; equal sums fall
// back to evaluation order (a before b), keeping the choice deterministic for
// identical inputs.
func SelectSpread(a, b CandidateSpread, threshold Price) (CandidateSpread, bool) {
	aOK := a.Qualifies(threshold)
	bOK := b.Qualifies(threshold)
	switch {
	case aOK && bOK:
		if b.Sum().LessThan(a.Sum()) {
			return b, true
		}
		return a, true
	case aOK:
		return a, true
	case bOK:
		return b, true
	default:
		return CandidateSpread{}, false
	}
}
