package feed

import (
	"context"

	"github.com/betbot/crossarb/internal/domain"
)

// Feed delivers best bid/ask updates for subscribed outcome tokens.
// Implementations cache the latest quote per asset so callers can read
// current state without waiting for the next update.
type Feed interface {
	Start(ctx context.Context) error
	Stop()

	// Subscribe adds asset IDs to the live subscription. Safe to call
	// before and after Start; subscriptions survive reconnects.
	Subscribe(assetIDs ...string) error
	Unsubscribe(assetIDs ...string) error

	// Updates streams quote updates. Placeholder books (the 1c/99c stub
	// the exchange publishes before a market goes live) are filtered out.
	Updates() <-chan domain.PriceQuote

	// Current returns the last non-placeholder quote for an asset.
	Current(assetID string) (domain.PriceQuote, bool)
}
