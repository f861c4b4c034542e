package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
)

// SettingsStore is a key/value table for runtime-adjustable settings
// (base-amount override, guard thresholds) that must survive restarts.
type SettingsStore struct {
	db *sql.DB
}

func (s *SettingsStore) initTables() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Set stores a string value.
func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or "" when unset.
func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, nil
}

// SetFloat stores a numeric value.
func (s *SettingsStore) SetFloat(key string, value float64) error {
	return s.Set(key, strconv.FormatFloat(value, 'g', -1, 64))
}

// GetFloat returns the numeric value for key; ok is false when unset.
func (s *SettingsStore) GetFloat(key string) (value float64, ok bool, err error) {
	raw, err := s.Get(key)
	if err != nil || raw == "" {
		return 0, false, err
	}
	value, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("setting %q is not numeric: %w", key, err)
	}
	return value, true, nil
}

// SetJSON stores any value as JSON.
func (s *SettingsStore) SetJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	return s.Set(key, string(raw))
}

// GetJSON unmarshals the stored value into out; ok is false when unset.
func (s *SettingsStore) GetJSON(key string, out any) (ok bool, err error) {
	raw, err := s.Get(key)
	if err != nil || raw == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return true, nil
}
