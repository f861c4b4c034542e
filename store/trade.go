package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TradeStore persists per-order fill and closure events.
type TradeStore struct {
	db *sql.DB
}

// TradeRow is one fill or closure.
type TradeRow struct {
	ID      int64     `json:"id"`
	Symbol  string    `json:"symbol"`
	Slot    string    `json:"slot"` // ladder slot label, e.g. "buy_2"
	VenueID int64     `json:"venue_id"`
	Side    string    `json:"side"`
	Event   string    `json:"event"` // filled / closed
	Price   float64   `json:"price"`
	Volume  float64   `json:"volume"`
	Profit  float64   `json:"profit"`
	Time    time.Time `json:"time"`
}

func (s *TradeStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS grid_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			slot TEXT NOT NULL,
			venue_id INTEGER NOT NULL,
			side TEXT NOT NULL,
			event TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			volume REAL NOT NULL DEFAULT 0,
			profit REAL NOT NULL DEFAULT 0,
			time DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON grid_trades(symbol, time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_venue_id ON grid_trades(venue_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Save inserts a trade event.
func (s *TradeStore) Save(row *TradeRow) error {
	res, err := s.db.Exec(`
		INSERT INTO grid_trades (symbol, slot, venue_id, side, event, price, volume, profit, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Symbol, row.Slot, row.VenueID, row.Side, row.Event,
		row.Price, row.Volume, row.Profit, row.Time.UTC())
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	row.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns the latest trade events for a symbol, newest first.
func (s *TradeStore) Recent(symbol string, limit int) ([]*TradeRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, symbol, slot, venue_id, side, event, price, volume, profit, time
		FROM grid_trades WHERE symbol = ? ORDER BY time DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []*TradeRow
	for rows.Next() {
		row := &TradeRow{}
		if err := rows.Scan(&row.ID, &row.Symbol, &row.Slot, &row.VenueID, &row.Side,
			&row.Event, &row.Price, &row.Volume, &row.Profit, &row.Time); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
