// Package store provides the unified database storage layer.
// All database operations should go through this package.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"griddca/logger"
)

// Store is the unified data storage entry point.
type Store struct {
	db *sql.DB

	// Sub-stores (lazy initialization)
	cycle    *CycleStore
	trade    *TradeStore
	settings *SettingsStore
	links    *BinanceLinkStore

	mu sync.RWMutex
}

// New opens (or creates) the SQLite database at path and prepares all
// tables.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; funnel everything through one conn
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("✅ Database initialized at %s", path)
	return s, nil
}

// initTables initializes all sub-store tables.
func (s *Store) initTables() error {
	initializers := []func() error{
		func() error { return (&CycleStore{db: s.db}).initTables() },
		func() error { return (&TradeStore{db: s.db}).initTables() },
		func() error { return (&SettingsStore{db: s.db}).initTables() },
		func() error { return (&BinanceLinkStore{db: s.db}).initTables() },
	}
	for _, init := range initializers {
		if err := init(); err != nil {
			return err
		}
	}
	return nil
}

// Cycle returns the cycle sub-store.
func (s *Store) Cycle() *CycleStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil {
		s.cycle = &CycleStore{db: s.db}
	}
	return s.cycle
}

// Trade returns the trade sub-store.
func (s *Store) Trade() *TradeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trade == nil {
		s.trade = &TradeStore{db: s.db}
	}
	return s.trade
}

// Settings returns the settings sub-store.
func (s *Store) Settings() *SettingsStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		s.settings = &SettingsStore{db: s.db}
	}
	return s.settings
}

// BinanceLinks returns the Binance link sub-store.
func (s *Store) BinanceLinks() *BinanceLinkStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links == nil {
		s.links = &BinanceLinkStore{db: s.db}
	}
	return s.links
}

// Transaction runs fn inside a database transaction.
func (s *Store) Transaction(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Errorf("rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
