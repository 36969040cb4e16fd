package reference

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/pkg/logger"
)

// QuoteSource exposes the latest quote per asset. Satisfied by feed.Feed.
type QuoteSource interface {
	Current(assetID string) (domain.PriceQuote, bool)
}

// Tracker captures the price-to-beat for a market window: the Up and Down
// asks observed once, shortly after the window opens. The captured values
// are frozen in the Store; capture failure marks the whole window
// non-tradeable.
type Tracker struct {
	source QuoteSource
	store  *Store
	log    *logrus.Entry

	delay        time.Duration
	pollInterval time.Duration
}

func NewTracker(source QuoteSource, store *Store, delay, pollInterval time.Duration) *Tracker {
	return &Tracker{
		source:       source,
		store:        store,
		log:          logger.Logger.WithField("component", "reference"),
		delay:        delay,
		pollInterval: pollInterval,
	}
}

// Capture blocks until the market's reference is captured or the capture
// window closes. The quote source is polled through the configured delay
// from window open; the quote standing at open+delay is frozen. A source
// that stays empty through the whole delay, plus one grace poll, marks
// the window unavailable: a feed recovering later must never install a
// late reference.
func (t *Tracker) Capture(ctx context.Context, market *domain.Market) error {
	if ref, ok := t.store.Get(market.Slug); ok {
		t.log.Debugf("%s: reference already captured at %v", market.Slug, ref.CapturedAt)
		return nil
	}
	if t.store.Unavailable(market.Slug) {
		return domain.ErrReferenceUnavailable
	}

	captureAt := market.Window.Start.Add(t.delay)
	graceEnd := captureAt.Add(t.pollInterval)
	if time.Now().After(graceEnd) {
		// Started too late to observe the capture instant.
		return t.fail(market)
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	var latest domain.PriceToBeat
	var have bool
	for {
		// Quotes observed past the grace boundary are already late.
		if ref, ok := t.snapshot(market); ok && !time.Now().After(graceEnd) {
			latest, have = ref, true
		}
		now := time.Now()
		if !now.Before(captureAt) {
			if have {
				break
			}
			if !now.Before(graceEnd) {
				return t.fail(market)
			}
		}
		select {
		case <-ctx.Done():
			return t.fail(market)
		case <-ticker.C:
		}
	}

	latest.CapturedAt = time.Now()
	if t.store.Put(latest) {
		t.log.Infof("%s: price to beat captured (up=%s down=%s)",
			market.Slug, latest.UpAsk, latest.DownAsk)
	}
	return nil
}

func (t *Tracker) fail(market *domain.Market) error {
	t.store.MarkUnavailable(market.Slug)
	t.log.Warnf("%s: reference capture failed, window is non-tradeable", market.Slug)
	return domain.ErrReferenceUnavailable
}

// snapshot reads both asks. A reference needs both sides; a one-sided book
// is not a valid price to beat.
func (t *Tracker) snapshot(market *domain.Market) (domain.PriceToBeat, bool) {
	up, okUp := t.source.Current(market.UpAssetID)
	down, okDown := t.source.Current(market.DownAssetID)
	if !okUp || !okDown || !up.HasAsk() || !down.HasAsk() {
		return domain.PriceToBeat{}, false
	}
	return domain.PriceToBeat{
		MarketSlug: market.Slug,
		UpAsk:      up.Ask,
		DownAsk:    down.Ask,
		CapturedAt: time.Now(),
	}, true
}
