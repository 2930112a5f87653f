package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the audit trail to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the relay writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			symbol         TEXT NOT NULL,
			price          REAL,
			change         REAL,
			change_percent REAL,
			market_state   TEXT,
			source         TEXT,
			endpoint       TEXT,
			request_id     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS history_loads (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			symbol     TEXT NOT NULL,
			range_sel  TEXT,
			bars       INTEGER,
			last_price REAL,
			source     TEXT,
			endpoint   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loads_ts ON history_loads(timestamp)`,

		`CREATE TABLE IF NOT EXISTS watchdog_restarts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			symbol     TEXT NOT NULL,
			generation INTEGER,
			reason     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_restarts_ts ON watchdog_restarts(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func stamp(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func (r *SQLiteRecorder) RecordTick(evt *TickEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO ticks
		(timestamp, symbol, price, change, change_percent, market_state, source, endpoint, request_id)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		stamp(evt.At), evt.Symbol, evt.Price, evt.Change, evt.ChangePercent,
		evt.MarketState, evt.Source, evt.Endpoint, evt.RequestID,
	)
	return err
}

func (r *SQLiteRecorder) RecordLoad(evt *LoadEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO history_loads
		(timestamp, symbol, range_sel, bars, last_price, source, endpoint)
		VALUES (?,?,?,?,?,?,?)`,
		stamp(evt.At), evt.Symbol, evt.Range, evt.Bars, evt.LastPrice, evt.Source, evt.Endpoint,
	)
	return err
}

func (r *SQLiteRecorder) RecordRestart(evt *RestartEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO watchdog_restarts
		(timestamp, symbol, generation, reason)
		VALUES (?,?,?,?)`,
		stamp(evt.At), evt.Symbol, int64(evt.Generation), evt.Reason,
	)
	return err
}

// RecentRestarts returns the newest restarts first.
func (r *SQLiteRecorder) RecentRestarts(limit int) ([]RestartEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, symbol, generation, reason
		FROM watchdog_restarts ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query restarts: %w", err)
	}
	defer rows.Close()

	var out []RestartEvent
	for rows.Next() {
		var (
			ts  int64
			gen int64
			evt RestartEvent
		)
		if err := rows.Scan(&ts, &evt.Symbol, &gen, &evt.Reason); err != nil {
			return nil, fmt.Errorf("scan restart: %w", err)
		}
		evt.At = time.UnixMilli(ts)
		evt.Generation = uint64(gen)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
