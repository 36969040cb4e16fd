package discovery

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/pkg/logger"
	"github.com/betbot/crossarb/pkg/ratelimit"
)

// GammaClient resolves window slugs to tradeable markets via the Gamma API.
// Results are cached per slug; Up/Down windows are immutable once created.
type GammaClient struct {
	http *resty.Client
	log  *logrus.Entry
	rl   *ratelimit.Manager

	mu    sync.RWMutex
	cache map[string]*domain.Market
}

func NewGammaClient(baseURL string, rl *ratelimit.Manager) *GammaClient {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://gamma-api.polymarket.com"
	}
	return &GammaClient{
		http:  resty.New().SetBaseURL(base).SetTimeout(10 * time.Second),
		log:   logger.Logger.WithField("component", "discovery"),
		rl:    rl,
		cache: make(map[string]*domain.Market),
	}
}

type gammaMarket struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	ConditionID  string `json:"conditionId"`
	Slug         string `json:"slug"`
	ClobTokenIDs string `json:"clobTokenIds"`
	NegRisk      bool   `json:"negRisk"`
	Closed       bool   `json:"closed"`
	Active       bool   `json:"active"`
}

// MarketForWindow resolves the Up/Down market for one symbol window. The
// slug encodes symbol, slot and ET-aligned period start.
func (c *GammaClient) MarketForWindow(ctx context.Context, symbol string, slot domain.Slot, start time.Time) (*domain.Market, error) {
	slug := domain.WindowSlug(symbol, slot, start)

	c.mu.RLock()
	cached, ok := c.cache[slug]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if err := c.rl.Wait(ctx, "gamma:markets:get"); err != nil {
		return nil, err
	}

	var out []gammaMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("slug", slug).
		SetResult(&out).
		Get("/markets")
	if err != nil {
		return nil, errors.Wrapf(err, "fetch market %s", slug)
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetch market %s: http %d", slug, resp.StatusCode())
	}
	if len(out) == 0 {
		return nil, errors.Errorf("market %s not found", slug)
	}

	gm := out[0]
	upAsset, downAsset, err := parseTokenIDs(gm.ClobTokenIDs)
	if err != nil {
		return nil, errors.Wrapf(err, "market %s", slug)
	}

	market := &domain.Market{
		Slug:        slug,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		UpAssetID:   upAsset,
		DownAssetID: downAsset,
		Window:      domain.Window{Slot: slot, Start: start},
		NegRisk:     gm.NegRisk,
	}
	if !market.IsValid() {
		return nil, errors.Errorf("market %s incomplete: conditionId=%q tokens=%q",
			slug, gm.ConditionID, gm.ClobTokenIDs)
	}

	c.mu.Lock()
	c.cache[slug] = market
	c.mu.Unlock()

	c.log.Infof("resolved %s (up=%s... down=%s...)", slug, head(upAsset), head(downAsset))
	return market, nil
}

// PairForOverlap resolves both markets of the overlap: the 15m window
// containing ts and the final 5m sub-window inside it.
func (c *GammaClient) PairForOverlap(ctx context.Context, symbol string, ts time.Time) (domain.WindowPair, error) {
	start15 := domain.PeriodStart(ts, domain.Slot15m)
	start5 := start15.Add(10 * time.Minute)

	m15, err := c.MarketForWindow(ctx, symbol, domain.Slot15m, start15)
	if err != nil {
		return domain.WindowPair{}, err
	}
	m5, err := c.MarketForWindow(ctx, symbol, domain.Slot5m, start5)
	if err != nil {
		return domain.WindowPair{}, err
	}
	return domain.WindowPair{M15: m15, M5: m5}, nil
}

// Resolved reports whether the market behind slug has closed. Used by the
// redemption worker; resolution state is never cached.
func (c *GammaClient) Resolved(ctx context.Context, slug string) (bool, error) {
	if err := c.rl.Wait(ctx, "gamma:markets:get"); err != nil {
		return false, err
	}
	var out []gammaMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("slug", slug).
		SetResult(&out).
		Get("/markets")
	if err != nil {
		return false, errors.Wrapf(err, "fetch market %s", slug)
	}
	if resp.IsError() {
		return false, errors.Errorf("fetch market %s: http %d", slug, resp.StatusCode())
	}
	if len(out) == 0 {
		return false, errors.Errorf("market %s not found", slug)
	}
	return out[0].Closed, nil
}

// Forget evicts a slug once its window has passed.
func (c *GammaClient) Forget(slug string) {
	c.mu.Lock()
	delete(c.cache, slug)
	c.mu.Unlock()
}

// parseTokenIDs decodes the clobTokenIds field: a JSON-encoded string
// array, with a comma-separated fallback seen on older records. Order is
// [Up, Down].
func parseTokenIDs(raw string) (up, down string, err error) {
	var tokens []string
	if jsonErr := json.Unmarshal([]byte(raw), &tokens); jsonErr != nil {
		tokens = strings.Split(strings.Trim(raw, "[]\"'"), ",")
	}
	cleaned := tokens[:0]
	for _, t := range tokens {
		t = strings.Trim(strings.TrimSpace(t), "\"'")
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) != 2 {
		return "", "", errors.Errorf("expected 2 token IDs, got %d from %q", len(cleaned), raw)
	}
	return cleaned[0], cleaned[1], nil
}

func head(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
