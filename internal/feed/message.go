package feed

import (
	"encoding/json"
	"time"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/pkg/errors"
)

// Wire types for the CLOB market channel.

type marketEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`

	// book
	Bids []bookLevel `json:"bids"`
	Asks []bookLevel `json:"asks"`

	// price_change
	PriceChanges []priceChange `json:"price_changes"`
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type priceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Side    string `json:"side"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// parseEvents decodes a market-channel frame. The server sends both single
// objects and arrays of objects.
func parseEvents(data []byte) ([]marketEvent, error) {
	if len(data) > 0 && data[0] == '[' {
		var evs []marketEvent
		if err := json.Unmarshal(data, &evs); err != nil {
			return nil, errors.Wrap(err, "decode market event array")
		}
		return evs, nil
	}
	var ev marketEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, errors.Wrap(err, "decode market event")
	}
	return []marketEvent{ev}, nil
}

// quotesFromEvent extracts per-asset quotes from a book snapshot or a
// price_change event. Unknown event types yield nothing.
func quotesFromEvent(ev marketEvent, now time.Time) []domain.PriceQuote {
	switch ev.EventType {
	case "book":
		q := domain.PriceQuote{AssetID: ev.AssetID, At: now}
		q.Bid = bestOfBook(ev.Bids, true)
		q.Ask = bestOfBook(ev.Asks, false)
		if ev.AssetID == "" {
			return nil
		}
		return []domain.PriceQuote{q}

	case "price_change":
		quotes := make([]domain.PriceQuote, 0, len(ev.PriceChanges))
		// Keep only the last change per asset inside one frame.
		byAsset := make(map[string]int)
		for _, pc := range ev.PriceChanges {
			if pc.AssetID == "" {
				continue
			}
			q := domain.PriceQuote{AssetID: pc.AssetID, At: now}
			if p, err := domain.ParsePrice(pc.BestBid); err == nil {
				q.Bid = p
			}
			if p, err := domain.ParsePrice(pc.BestAsk); err == nil {
				q.Ask = p
			}
			if idx, seen := byAsset[pc.AssetID]; seen {
				quotes[idx] = q
				continue
			}
			byAsset[pc.AssetID] = len(quotes)
			quotes = append(quotes, q)
		}
		return quotes
	}
	return nil
}

// bestOfBook picks the best level: highest price for bids, lowest for asks.
// Books usually arrive sorted but we do not rely on it.
func bestOfBook(levels []bookLevel, wantHighest bool) domain.Price {
	var best domain.Price
	found := false
	for _, lvl := range levels {
		p, err := domain.ParsePrice(lvl.Price)
		if err != nil || p.IsZero() {
			continue
		}
		if !found {
			best = p
			found = true
			continue
		}
		if wantHighest && p.GreaterThan(best) {
			best = p
		}
		if !wantHighest && p.LessThan(best) {
			best = p
		}
	}
	return best
}
