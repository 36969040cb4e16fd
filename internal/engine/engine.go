package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/decision"
	"github.com/betbot/crossarb/internal/discovery"
	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/execution"
	"github.com/betbot/crossarb/internal/feed"
	"github.com/betbot/crossarb/internal/gateway"
	"github.com/betbot/crossarb/internal/ledger"
	"github.com/betbot/crossarb/internal/metrics"
	"github.com/betbot/crossarb/internal/monitor"
	"github.com/betbot/crossarb/internal/reference"
	"github.com/betbot/crossarb/internal/statusapi"
	"github.com/betbot/crossarb/internal/unwind"
	"github.com/betbot/crossarb/pkg/config"
	"github.com/betbot/crossarb/pkg/logger"
)

const (
	resolveRetryPause = 5 * time.Second
	evaluateTick      = time.Second
)

// Engine runs the full arbitrage loop for every configured symbol: window
// discovery, feed subscription, price-to-beat capture, entry evaluation and
// trade execution.
type Engine struct {
	cfg  *config.Config
	feed feed.Feed
	disc *discovery.GammaClient
	gw   gateway.OrderGateway
	refs *reference.Store
	trk  *reference.Tracker
	dec  *decision.Engine
	grd  *decision.EntryGuard
	lgr  *ledger.Ledger
	log  *logrus.Entry

	mu       sync.RWMutex
	sessions map[string]*session
}

// session is the per-symbol state for the window pair currently monitored.
type session struct {
	symbol  string
	monitor *monitor.PairMonitor
	machine *execution.Machine

	mu   sync.RWMutex
	pair domain.WindowPair
}

func (s *session) setPair(pair domain.WindowPair) {
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
	s.monitor.SwapPair(pair)
}

func (s *session) currentPair() domain.WindowPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

func New(cfg *config.Config, f feed.Feed, disc *discovery.GammaClient, gw gateway.OrderGateway, lgr *ledger.Ledger) *Engine {
	refs := reference.NewStore()
	st := &cfg.Strategy
	e := &Engine{
		cfg:  cfg,
		feed: f,
		disc: disc,
		gw:   gw,
		refs: refs,
		trk:  reference.NewTracker(f, refs, st.PriceToBeatDelay(), st.PriceToBeatPollInterval()),
		dec: decision.NewEngine(refs,
			domain.PriceFromDecimal(st.SumThreshold),
			domain.PriceFromDecimal(st.PriceToBeatTolerance)),
		grd:      decision.NewEntryGuard(st.TradeInterval()),
		lgr:      lgr,
		log:      logger.Logger.WithField("component", "engine"),
		sessions: make(map[string]*session),
	}

	for _, symbol := range st.Symbols {
		mon := monitor.NewPairMonitor(symbol, domain.WindowPair{})
		unw := unwind.NewManager(gw, mon, st.ExitMaxAttempts, st.ExitCrossStepCents)
		e.sessions[symbol] = &session{
			symbol:  symbol,
			monitor: mon,
			machine: execution.NewMachine(gw, unw, execution.MachineConfig{
				SubmitRetry:  execution.RetryPolicy{MaxAttempts: st.SubmitMaxAttempts, Backoff: time.Second},
				VerifyWindow: st.VerifyFillWindow(),
			}),
		}
	}
	return e
}

// Run blocks until ctx is cancelled. The feed must be started by the caller.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.dispatchQuotes(ctx)
	}()

	for _, s := range e.sessions {
		wg.Add(1)
		go func(s *session) {
			defer wg.Done()
			e.runSymbol(ctx, s)
		}(s)
	}

	wg.Wait()
	return ctx.Err()
}

// dispatchQuotes fans feed updates out to every session monitor. Monitors
// drop quotes for assets outside their current pair.
func (e *Engine) dispatchQuotes(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-e.feed.Updates():
			if !ok {
				return
			}
			metrics.QuotesProcessed.Add(1)
			e.mu.RLock()
			for _, s := range e.sessions {
				s.monitor.Apply(q)
			}
			e.mu.RUnlock()
		}
	}
}

// runSymbol cycles one symbol through consecutive 15m windows.
func (e *Engine) runSymbol(ctx context.Context, s *session) {
	log := e.log.WithField("symbol", s.symbol)
	var lastStart int64

	for ctx.Err() == nil {
		now := time.Now()
		start15 := domain.PeriodStart(now, domain.Slot15m)
		if start15.Unix() == lastStart {
			// Current window already traded; sleep into the next one.
			e.sleepUntil(ctx, start15.Add(domain.Slot15m.Duration()))
			continue
		}
		lastStart = start15.Unix()

		pair, ok := e.resolvePair(ctx, s.symbol, now)
		if !ok {
			continue
		}
		metrics.PairsResolved.Add(1)
		log.Infof("tracking pair %s", pair.Key())

		if err := e.feed.Subscribe(pair.AssetIDs()...); err != nil {
			log.Errorf("subscribe failed: %v", err)
			continue
		}
		s.setPair(pair)

		e.captureReferences(ctx, pair)
		e.tradeLoop(ctx, s, pair)
		e.retirePair(s, pair)
	}
}

// resolvePair retries discovery until the pair resolves or its window is
// already over. Markets are usually listed well before open; retries cover
// listing lag.
func (e *Engine) resolvePair(ctx context.Context, symbol string, ts time.Time) (domain.WindowPair, bool) {
	start15 := domain.PeriodStart(ts, domain.Slot15m)
	windowEnd := start15.Add(domain.Slot15m.Duration())

	for time.Now().Before(windowEnd) {
		pair, err := e.disc.PairForOverlap(ctx, symbol, ts)
		if err == nil {
			return pair, true
		}
		e.log.WithField("symbol", symbol).Warnf("pair discovery: %v", err)
		select {
		case <-ctx.Done():
			return domain.WindowPair{}, false
		case <-time.After(resolveRetryPause):
		}
	}
	return domain.WindowPair{}, false
}

// captureReferences starts the price-to-beat capture for both windows. A
// capture that does not complete by window open plus the configured delay
// marks its window non-tradeable inside the store.
func (e *Engine) captureReferences(ctx context.Context, pair domain.WindowPair) {
	for _, m := range []*domain.Market{pair.M15, pair.M5} {
		go func(m *domain.Market) {
			if err := e.trk.Capture(ctx, m); err != nil {
				if errors.Is(err, domain.ErrReferenceUnavailable) {
					metrics.ReferenceFailed.Add(1)
				}
				return
			}
			metrics.ReferenceCaptured.Add(1)
		}(m)
	}
}

// tradeLoop evaluates entries until the overlap closes. Evaluation reacts
// to book changes and re-checks on a slow tick so the overlap-start gate
// flips without a quote arriving.
func (e *Engine) tradeLoop(ctx context.Context, s *session, pair domain.WindowPair) {
	overlapEnd := pair.OverlapEnd()
	ticker := time.NewTicker(evaluateTick)
	defer ticker.Stop()

	for time.Now().Before(overlapEnd) {
		select {
		case <-ctx.Done():
			return
		case <-s.monitor.Changed():
		case <-ticker.C:
		}
		e.tryEnter(ctx, s, pair)
	}
}

func (e *Engine) tryEnter(ctx context.Context, s *session, pair domain.WindowPair) {
	_, snap := s.monitor.Snapshot()
	spread, ok := e.dec.Evaluate(pair, snap, time.Now())
	if !ok {
		return
	}
	if !e.grd.TryAcquire(pair.Key()) {
		return
	}

	tr := domain.NewTrade(s.symbol, pair, spread, e.cfg.Strategy.Shares)
	metrics.TradesSubmitted.Add(1)
	go e.runTrade(ctx, s, pair, tr)
}

// runTrade executes one trade to a terminal state, archives it and frees the
// pair guard.
func (e *Engine) runTrade(ctx context.Context, s *session, pair domain.WindowPair, tr *domain.Trade) {
	defer e.grd.Release(tr.PairKey)
	log := e.log.WithField("symbol", s.symbol).WithField("trade", tr.ID)

	err := s.machine.Execute(ctx, tr)
	switch {
	case errors.Is(err, domain.ErrManualInterventionRequired):
		metrics.TradesStuck.Add(1)
		log.Errorf("trade stuck, manual intervention: %s", tr.Reason)
	case errors.Is(err, domain.ErrSubmissionFailed):
		metrics.OrderSubmitErrors.Add(1)
	case errors.Is(err, domain.ErrVerificationUnknown):
		metrics.TradesAborted.Add(1)
	}

	switch tr.State {
	case domain.TradeCompleted:
		metrics.TradesCompleted.Add(1)
		e.recordPositions(ctx, pair, tr)
	case domain.TradeAborted:
		metrics.TradesAborted.Add(1)
		if strings.HasSuffix(tr.Reason, "surplus unwound") {
			metrics.TradesUnwound.Add(1)
		}
	}

	if e.lgr != nil {
		if err := e.lgr.RecordTrade(ctx, tr); err != nil {
			log.Errorf("archive trade: %v", err)
		}
	}
	log.Infof("trade %s: %s", tr.State, tr.Reason)
}

// recordPositions writes both filled legs to the position ledger for the
// redemption job.
func (e *Engine) recordPositions(ctx context.Context, pair domain.WindowPair, tr *domain.Trade) {
	if e.lgr == nil {
		return
	}
	for _, leg := range []*domain.LegOrder{tr.LegA, tr.LegB} {
		if leg.FilledSize <= 0 {
			continue
		}
		market := pair.M15
		if leg.Token.Slot == domain.Slot5m {
			market = pair.M5
		}
		p := domain.Position{
			AssetID:     leg.Token.AssetID,
			ConditionID: market.ConditionID,
			MarketSlug:  leg.MarketSlug,
			Side:        leg.Token.Side,
			Size:        leg.FilledSize,
			AvgPrice:    leg.Price,
			AcquiredAt:  time.Now(),
		}
		if err := e.lgr.RecordPosition(ctx, p); err != nil {
			e.log.Errorf("record position %s: %v", leg.Token.AssetID, err)
		}
	}
}

// retirePair drops subscriptions and cached state once a pair's windows
// have closed.
func (e *Engine) retirePair(s *session, pair domain.WindowPair) {
	if err := e.feed.Unsubscribe(pair.AssetIDs()...); err != nil {
		e.log.Warnf("unsubscribe %s: %v", pair.Key(), err)
	}
	e.disc.Forget(pair.M15.Slug)
	e.disc.Forget(pair.M5.Slug)
	e.refs.Forget(pair.M15.Slug)
	e.refs.Forget(pair.M5.Slug)
	e.grd.Forget(pair.Key())
	s.setPair(domain.WindowPair{})
}

func (e *Engine) sleepUntil(ctx context.Context, t time.Time) {
	wait := time.Until(t)
	if wait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

// Pairs implements the status API source.
func (e *Engine) Pairs() []statusapi.PairStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := time.Now()
	out := make([]statusapi.PairStatus, 0, len(e.sessions))
	for _, s := range e.sessions {
		pair := s.currentPair()
		st := statusapi.PairStatus{Symbol: s.symbol}
		if pair.IsValid() {
			_, snap := s.monitor.Snapshot()
			upDown, downUp := monitor.Spreads(pair, snap)
			_, ref15 := e.refs.Get(pair.M15.Slug)
			_, ref5 := e.refs.Get(pair.M5.Slug)
			st.Slug15m = pair.M15.Slug
			st.Slug5m = pair.M5.Slug
			st.InOverlap = domain.InOverlap(now, pair.M15.Window.Start)
			st.RefCaptured = ref15 && ref5
			st.SumUpDown = upDown.Sum().String()
			st.SumDownUp = downUp.Sum().String()
			st.BookUpdated = snap.UpdatedAt
			st.TradeInFlight = e.grd.InFlight(pair.Key())
		}
		out = append(out, st)
	}
	return out
}
