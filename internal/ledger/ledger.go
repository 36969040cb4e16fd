package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/betbot/crossarb/internal/domain"
)

// Ledger is the durable record of every terminal trade and every acquired
// position. SQLite keeps it a single file next to the bot.
type Ledger struct {
	db *sql.DB
}

func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create ledger dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite allows one writer; the engine archives serially anyway.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id           TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	pair_key     TEXT NOT NULL,
	spread       TEXT NOT NULL,
	shares       REAL NOT NULL,
	state        TEXT NOT NULL,
	reason       TEXT NOT NULL,
	sum_pips     INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	closed_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS legs (
	trade_id     TEXT NOT NULL REFERENCES trades(id),
	order_id     TEXT NOT NULL,
	asset_id     TEXT NOT NULL,
	market_slug  TEXT NOT NULL,
	side         TEXT NOT NULL,
	price_pips   INTEGER NOT NULL,
	size         REAL NOT NULL,
	filled_size  REAL NOT NULL,
	status       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	asset_id     TEXT NOT NULL,
	condition_id TEXT NOT NULL,
	market_slug  TEXT NOT NULL,
	side         TEXT NOT NULL,
	size         REAL NOT NULL,
	avg_price    INTEGER NOT NULL,
	acquired_at  INTEGER NOT NULL,
	redeemed     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, created_at);
CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(redeemed, condition_id);
`
	_, err := l.db.Exec(schema)
	return errors.Wrap(err, "migrate ledger")
}

// RecordTrade archives a terminal trade with both legs.
func (l *Ledger) RecordTrade(ctx context.Context, tr *domain.Trade) error {
	if !tr.State.Terminal() {
		return errors.Errorf("trade %s is not terminal (%s)", tr.ID, tr.State)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trades (id, symbol, pair_key, spread, shares, state, reason, sum_pips, created_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.Symbol, tr.PairKey, tr.Spread.Name, tr.Shares,
		string(tr.State), tr.Reason, tr.Spread.Sum().Pips,
		tr.CreatedAt.Unix(), tr.ClosedAt.Unix())
	if err != nil {
		return errors.Wrap(err, "insert trade")
	}

	for _, leg := range []*domain.LegOrder{tr.LegA, tr.LegB} {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO legs (trade_id, order_id, asset_id, market_slug, side, price_pips, size, filled_size, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.ID, leg.OrderID, leg.Token.AssetID, leg.MarketSlug,
			string(leg.Side), leg.Price.Pips, leg.Size, leg.FilledSize, string(leg.Status))
		if err != nil {
			return errors.Wrap(err, "insert leg")
		}
	}

	return errors.Wrap(tx.Commit(), "commit")
}

// RecordPosition stores shares acquired by a completed (or partially
// matched) trade for later redemption.
func (l *Ledger) RecordPosition(ctx context.Context, p domain.Position) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO positions (asset_id, condition_id, market_slug, side, size, avg_price, acquired_at, redeemed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		p.AssetID, p.ConditionID, p.MarketSlug, string(p.Side),
		p.Size, p.AvgPrice.Pips, p.AcquiredAt.Unix())
	return errors.Wrap(err, "insert position")
}

// OpenPositions lists unredeemed positions, oldest first.
func (l *Ledger) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT asset_id, condition_id, market_slug, side, size, avg_price, acquired_at
		 FROM positions WHERE redeemed = 0 ORDER BY acquired_at`)
	if err != nil {
		return nil, errors.Wrap(err, "query positions")
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var side string
		var pips int
		var acquired int64
		if err := rows.Scan(&p.AssetID, &p.ConditionID, &p.MarketSlug, &side, &p.Size, &pips, &acquired); err != nil {
			return nil, errors.Wrap(err, "scan position")
		}
		p.Side = domain.TokenType(side)
		p.AvgPrice = domain.Price{Pips: pips}
		p.AcquiredAt = time.Unix(acquired, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkRedeemed flags every open position on a condition as redeemed.
func (l *Ledger) MarkRedeemed(ctx context.Context, conditionID string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE positions SET redeemed = 1 WHERE condition_id = ? AND redeemed = 0`, conditionID)
	return errors.Wrap(err, "mark redeemed")
}

// Stats summarizes archived trades per terminal state.
type Stats struct {
	Completed          int
	Aborted            int
	ManualIntervention int
}

func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM trades GROUP BY state`)
	if err != nil {
		return Stats{}, errors.Wrap(err, "query stats")
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return Stats{}, errors.Wrap(err, "scan stats")
		}
		switch domain.TradeState(state) {
		case domain.TradeCompleted:
			s.Completed = n
		case domain.TradeAborted:
			s.Aborted = n
		case domain.TradeManualIntervention:
			s.ManualIntervention = n
		}
	}
	return s, rows.Err()
}

// RecentTrades returns the newest archived trades for the status API.
func (l *Ledger) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, symbol, spread, shares, state, reason, sum_pips, closed_at
		 FROM trades ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var r TradeRecord
		var closed int64
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Spread, &r.Shares, &r.State, &r.Reason, &r.SumPips, &closed); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		r.ClosedAt = time.Unix(closed, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

type TradeRecord struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Spread   string    `json:"spread"`
	Shares   float64   `json:"shares"`
	State    string    `json:"state"`
	Reason   string    `json:"reason"`
	SumPips  int       `json:"sum_pips"`
	ClosedAt time.Time `json:"closed_at"`
}
