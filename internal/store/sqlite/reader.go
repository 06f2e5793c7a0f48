package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chanstruct/internal/model"
	"chanstruct/internal/structengine"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backfill and snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadTFCandles reads TF candles from the candles_tf table for a given exchange:token and TF.
// Results are ordered by timestamp ascending for correct replay order.
func (r *Reader) ReadTFCandles(exchange, token string, tf int, afterTS int64) ([]model.TFCandle, error) {
	rows, err := r.db.Query(`
		SELECT token, exchange, tf, ts, open, high, low, close, volume, count
		FROM candles_tf
		WHERE exchange = ? AND token = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, token, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_tf: %w", err)
	}
	defer rows.Close()

	var candles []model.TFCandle
	for rows.Next() {
		var c model.TFCandle
		var tsUnix int64
		if err := rows.Scan(&c.Token, &c.Exchange, &c.TF, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Count); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_tf: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadAllTFCandles reads all TF candles from SQLite for backfill, ordered by timestamp.
func (r *Reader) ReadAllTFCandles(tf int, afterTS int64) ([]model.TFCandle, error) {
	rows, err := r.db.Query(`
		SELECT token, exchange, tf, ts, open, high, low, close, volume, count
		FROM candles_tf
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC
	`, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all candles_tf: %w", err)
	}
	defer rows.Close()

	var candles []model.TFCandle
	for rows.Next() {
		var c model.TFCandle
		var tsUnix int64
		if err := rows.Scan(&c.Token, &c.Exchange, &c.TF, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Count); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_tf: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadStructureEvents reads structure events for a given exchange:token and TF,
// ordered by time ascending.
func (r *Reader) ReadStructureEvents(exchange, token string, tf int, afterTS int64) ([]model.StructureEvent, error) {
	rows, err := r.db.Query(`
		SELECT token, exchange, tf, kind, sub, time, price, from_time, from_price, to_time, to_price, direction, ts
		FROM structure_events
		WHERE exchange = ? AND token = ? AND tf = ? AND ts > ?
		ORDER BY time ASC
	`, exchange, token, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query structure_events: %w", err)
	}
	defer rows.Close()

	var events []model.StructureEvent
	for rows.Next() {
		var e model.StructureEvent
		var kind, direction sql.NullString
		var fromTime, toTime sql.NullInt64
		var fromPrice, toPrice sql.NullFloat64
		var tsUnix int64
		if err := rows.Scan(&e.Token, &e.Exchange, &e.TF, &kind, &e.Sub, &e.Time, &e.Price,
			&fromTime, &fromPrice, &toTime, &toPrice, &direction, &tsUnix); err != nil {
			return nil, fmt.Errorf("sqlite scan structure_events: %w", err)
		}
		e.Kind = model.StructureKind(kind.String)
		e.FromTime = fromTime.Int64
		e.FromPrice = fromPrice.Float64
		e.ToTime = toTime.Int64
		e.ToPrice = toPrice.Float64
		e.Direction = direction.String
		e.TS = time.Unix(tsUnix, 0).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// ReadLatestStructureSnapshot loads the most recent structure engine snapshot from SQLite.
func (r *Reader) ReadLatestStructureSnapshot() (*structengine.EngineSnapshot, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM structure_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read structure snapshot: %w", err)
	}

	var snap structengine.EngineSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal structure snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
