package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/metrics"
	"github.com/betbot/crossarb/pkg/logger"
	"github.com/betbot/crossarb/pkg/sigchan"
)

const (
	pingInterval      = 10 * time.Second
	pongTimeout       = 60 * time.Second
	handshakeTimeout  = 30 * time.Second
	maxSubscribeBatch = 100
	updateBufferSize  = 256
)

// WSFeed is the live market-channel client. It keeps one connection for all
// subscribed assets, reconnects on a signal channel, and resubscribes after
// every reconnect.
type WSFeed struct {
	url string
	log *logrus.Entry

	conn   *websocket.Conn
	connMu sync.Mutex

	subs  map[string]bool
	subMu sync.RWMutex

	cache   map[string]domain.PriceQuote
	cacheMu sync.RWMutex

	updates    chan domain.PriceQuote
	reconnectC *sigchan.Chan

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex

	lastPong   time.Time
	lastPongMu sync.Mutex

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
}

// NewWSFeed builds a feed for the given base URL (e.g.
// wss://ws-subscriptions-clob.polymarket.com); the /ws/market path is
// appended here.
func NewWSFeed(baseURL string) *WSFeed {
	return &WSFeed{
		url:               strings.TrimRight(baseURL, "/") + "/ws/market",
		log:               logger.Logger.WithField("component", "feed"),
		subs:              make(map[string]bool),
		cache:             make(map[string]domain.PriceQuote),
		updates:           make(chan domain.PriceQuote, updateBufferSize),
		reconnectC:        sigchan.New(1),
		lastPong:          time.Now(),
		reconnectDelay:    2 * time.Second,
		maxReconnectDelay: 30 * time.Second,
	}
}

func (f *WSFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return fmt.Errorf("feed already started")
	}
	f.started = true
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	if err := f.connect(); err != nil {
		return err
	}

	f.wg.Add(3)
	go func() { defer f.wg.Done(); f.readLoop() }()
	go func() { defer f.wg.Done(); f.pingLoop() }()
	go func() { defer f.wg.Done(); f.reconnector() }()

	f.log.Infof("connected to %s", f.url)
	return nil
}

func (f *WSFeed) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	f.mu.Unlock()

	f.cancel()
	f.closeConn()
	f.wg.Wait()
	f.log.Debug("feed stopped")
}

func (f *WSFeed) Subscribe(assetIDs ...string) error {
	f.subMu.Lock()
	fresh := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if id != "" && !f.subs[id] {
			f.subs[id] = true
			fresh = append(fresh, id)
		}
	}
	f.subMu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	return f.sendSubscribe(fresh)
}

func (f *WSFeed) Unsubscribe(assetIDs ...string) error {
	f.subMu.Lock()
	removed := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if f.subs[id] {
			delete(f.subs, id)
			removed = append(removed, id)
		}
	}
	f.subMu.Unlock()

	f.cacheMu.Lock()
	for _, id := range removed {
		delete(f.cache, id)
	}
	f.cacheMu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	return f.writeJSON(map[string]interface{}{
		"type":       "unsubscribe",
		"assets_ids": removed,
	})
}

func (f *WSFeed) Updates() <-chan domain.PriceQuote {
	return f.updates
}

func (f *WSFeed) Current(assetID string) (domain.PriceQuote, bool) {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	q, ok := f.cache[assetID]
	return q, ok
}

func (f *WSFeed) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	var conn *websocket.Conn
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
		conn, _, err = dialer.Dial(f.url, nil)
		if err == nil {
			break
		}
		f.log.Warnf("dial attempt %d failed: %v", attempt+1, err)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.conn = conn
	f.connMu.Unlock()

	f.lastPongMu.Lock()
	f.lastPong = time.Now()
	f.lastPongMu.Unlock()

	return f.resubscribe()
}

func (f *WSFeed) closeConn() {
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()
}

func (f *WSFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	return f.conn.WriteJSON(v)
}

// sendSubscribe batches subscriptions; the server caps assets per message.
func (f *WSFeed) sendSubscribe(assetIDs []string) error {
	for i := 0; i < len(assetIDs); i += maxSubscribeBatch {
		end := i + maxSubscribeBatch
		if end > len(assetIDs) {
			end = len(assetIDs)
		}
		msg := map[string]interface{}{
			"type":       "market",
			"assets_ids": assetIDs[i:end],
		}
		if err := f.writeJSON(msg); err != nil {
			return fmt.Errorf("send subscription: %w", err)
		}
	}
	f.log.Debugf("subscribed %d assets", len(assetIDs))
	return nil
}

func (f *WSFeed) resubscribe() error {
	f.subMu.RLock()
	ids := make([]string, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	f.subMu.RUnlock()
	if len(ids) == 0 {
		return nil
	}
	return f.sendSubscribe(ids)
}

func (f *WSFeed) readLoop() {
	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.ctx.Done():
				return
			default:
			}
			f.connMu.Lock()
			if f.conn == conn {
				f.conn.Close()
				f.conn = nil
			}
			f.connMu.Unlock()
			f.log.Warnf("read error: %v, reconnecting", err)
			f.reconnectC.Emit()
			continue
		}

		f.handleFrame(message)
	}
}

func (f *WSFeed) handleFrame(data []byte) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return
	}
	// The market channel answers text "PING" with text "PONG".
	if trimmed[0] != '{' && trimmed[0] != '[' {
		if s := string(trimmed); s == "PONG" || s == "pong" {
			f.lastPongMu.Lock()
			f.lastPong = time.Now()
			f.lastPongMu.Unlock()
		}
		return
	}

	events, err := parseEvents(trimmed)
	if err != nil {
		f.log.Debugf("unparseable frame: %v", err)
		return
	}

	now := time.Now()
	for _, ev := range events {
		for _, q := range quotesFromEvent(ev, now) {
			f.publish(q)
		}
	}
}

// publish caches and forwards a quote. Placeholder books are dropped so
// downstream consumers only ever see live prices.
func (f *WSFeed) publish(q domain.PriceQuote) {
	f.subMu.RLock()
	subscribed := f.subs[q.AssetID]
	f.subMu.RUnlock()
	if !subscribed {
		return
	}
	if q.IsPlaceholder() {
		f.log.Debugf("dropping placeholder quote for %s (bid=%s ask=%s)", q.AssetID, q.Bid, q.Ask)
		return
	}

	f.cacheMu.Lock()
	f.cache[q.AssetID] = q
	f.cacheMu.Unlock()

	select {
	case f.updates <- q:
	default:
		// Slow consumer: drop the oldest update to keep the stream fresh.
		metrics.QuotesDropped.Add(1)
		select {
		case <-f.updates:
		default:
		}
		select {
		case f.updates <- q:
		default:
		}
	}
}

func (f *WSFeed) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.log.Warnf("ping failed: %v", err)
				f.reconnectC.Emit()
				continue
			}

			f.lastPongMu.Lock()
			stale := time.Since(f.lastPong) > pongTimeout
			f.lastPongMu.Unlock()
			if stale {
				f.log.Warnf("no PONG for %v, reconnecting", pongTimeout)
				f.reconnectC.Emit()
			}
		}
	}
}

// reconnector handles reconnect signals with capped linear backoff.
func (f *WSFeed) reconnector() {
	attempt := 0
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.reconnectC.C():
			attempt++
			delay := f.reconnectDelay * time.Duration(attempt)
			if delay > f.maxReconnectDelay {
				delay = f.maxReconnectDelay
			}
			f.log.Warnf("reconnecting in %v (attempt %d)", delay, attempt)
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := f.connect(); err != nil {
				f.log.Warnf("reconnect failed: %v", err)
				f.reconnectC.Emit()
				continue
			}
			attempt = 0
			metrics.FeedReconnects.Add(1)
			f.log.Info("reconnected")
		}
	}
}
