package store

import (
	"database/sql"
	"fmt"

	"griddca/venue"
	"griddca/venue/binance"
)

// BinanceLinkStore persists the Binance adapter's entry/take-profit
// pairings. Without it a restart would forget which resting take-profit
// belongs to which filled entry.
type BinanceLinkStore struct {
	db *sql.DB
}

func (s *BinanceLinkStore) initTables() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS binance_links (
		entry_id INTEGER PRIMARY KEY,
		tp_id INTEGER NOT NULL,
		side TEXT NOT NULL,
		volume REAL NOT NULL,
		entry REAL NOT NULL,
		target REAL NOT NULL,
		open_time DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Save upserts a pairing keyed by its entry order ID.
func (s *BinanceLinkStore) Save(lk binance.StoredLink) error {
	_, err := s.db.Exec(`
		INSERT INTO binance_links (entry_id, tp_id, side, volume, entry, target, open_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			tp_id = excluded.tp_id, side = excluded.side, volume = excluded.volume,
			entry = excluded.entry, target = excluded.target, open_time = excluded.open_time`,
		lk.EntryID, lk.TPID, string(lk.Side), lk.Volume, lk.Entry, lk.Target, lk.OpenTime)
	if err != nil {
		return fmt.Errorf("failed to save link %d: %w", lk.EntryID, err)
	}
	return nil
}

// Delete removes a pairing. Deleting an unknown entry is not an error.
func (s *BinanceLinkStore) Delete(entryID int64) error {
	if _, err := s.db.Exec(`DELETE FROM binance_links WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to delete link %d: %w", entryID, err)
	}
	return nil
}

// Load returns every stored pairing.
func (s *BinanceLinkStore) Load() ([]binance.StoredLink, error) {
	rows, err := s.db.Query(`SELECT entry_id, tp_id, side, volume, entry, target, open_time FROM binance_links`)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var out []binance.StoredLink
	for rows.Next() {
		var lk binance.StoredLink
		var side string
		if err := rows.Scan(&lk.EntryID, &lk.TPID, &side, &lk.Volume, &lk.Entry, &lk.Target, &lk.OpenTime); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		lk.Side = venue.Side(side)
		out = append(out, lk)
	}
	return out, rows.Err()
}
