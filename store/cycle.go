package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CycleStore persists completed grid cycles.
type CycleStore struct {
	db *sql.DB
}

// CycleRow is one completed (or emergency-aborted) cycle.
type CycleRow struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	StartBalance float64   `json:"start_balance"`
	EndBalance   float64   `json:"end_balance"`
	RealizedPnl  float64   `json:"realized_pnl"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	Emergency    bool      `json:"emergency"`
}

func (s *CycleStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS grid_cycles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			start_balance REAL NOT NULL DEFAULT 0,
			end_balance REAL NOT NULL DEFAULT 0,
			realized_pnl REAL NOT NULL DEFAULT 0,
			max_drawdown REAL NOT NULL DEFAULT 0,
			emergency INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_symbol_time ON grid_cycles(symbol, ended_at DESC)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Save inserts a completed cycle.
func (s *CycleStore) Save(row *CycleRow) error {
	res, err := s.db.Exec(`
		INSERT INTO grid_cycles (symbol, started_at, ended_at, start_balance, end_balance, realized_pnl, max_drawdown, emergency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Symbol, row.StartedAt.UTC(), row.EndedAt.UTC(),
		row.StartBalance, row.EndBalance, row.RealizedPnl, row.MaxDrawdown, row.Emergency)
	if err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}
	row.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns the latest cycles for a symbol, newest first.
func (s *CycleStore) Recent(symbol string, limit int) ([]*CycleRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, symbol, started_at, ended_at, start_balance, end_balance, realized_pnl, max_drawdown, emergency
		FROM grid_cycles WHERE symbol = ? ORDER BY ended_at DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var out []*CycleRow
	for rows.Next() {
		row := &CycleRow{}
		if err := rows.Scan(&row.ID, &row.Symbol, &row.StartedAt, &row.EndedAt,
			&row.StartBalance, &row.EndBalance, &row.RealizedPnl, &row.MaxDrawdown, &row.Emergency); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TotalRealized sums realized PnL across all recorded cycles.
func (s *CycleStore) TotalRealized(symbol string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRow(`SELECT SUM(realized_pnl) FROM grid_cycles WHERE symbol = ?`, symbol).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return total.Float64, nil
}
