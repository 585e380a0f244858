// Package storage provides SQLite-backed persistence for user subscriptions,
// volatility thresholds, rolling candle history, and the signal audit log.
// Every document is read and written whole under a single-writer connection.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"volsignals-bot/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db         *sql.DB
	maxSignals int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/volsignals/data.db.
func New(dbPath string, maxSignals int) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "volsignals", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxSignals: maxSignals}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			chat_id      INTEGER PRIMARY KEY,
			mode         TEXT NOT NULL,
			symbols      TEXT NOT NULL DEFAULT '[]',
			top_volatile INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS thresholds (
			symbol     TEXT PRIMARY KEY,
			q25        REAL NOT NULL DEFAULT 0,
			q50        REAL NOT NULL DEFAULT 0,
			q75        REAL NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			symbol     TEXT PRIMARY KEY,
			candles    TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id           TEXT PRIMARY KEY,
			chat_id      INTEGER NOT NULL,
			symbol       TEXT NOT NULL,
			vol_pct      REAL NOT NULL,
			level        INTEGER NOT NULL,
			quote_volume REAL NOT NULL,
			avg_volume   REAL NOT NULL,
			ref_vol_pct  REAL NOT NULL DEFAULT 0,
			ref_level    INTEGER NOT NULL DEFAULT 0,
			sent_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_sent_at ON signals(sent_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetUser loads one subscription record.
func (s *Storage) GetUser(chatID int64) (*models.User, error) {
	row := s.db.QueryRow(`SELECT chat_id, mode, symbols, top_volatile, created_at, updated_at
		FROM users WHERE chat_id = ?`, chatID)
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %d", chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetOrCreateUser loads a subscription record, creating the default one on
// first interaction.
func (s *Storage) GetOrCreateUser(chatID int64) (*models.User, error) {
	u, err := s.GetUser(chatID)
	if err == nil {
		return u, nil
	}
	u = models.NewUser(chatID)
	if err := s.SaveUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// SaveUser upserts the whole subscription record.
func (s *Storage) SaveUser(u *models.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	symbolsJSON, err := json.Marshal(u.Symbols)
	if err != nil {
		return fmt.Errorf("failed to marshal symbols: %w", err)
	}
	u.UpdatedAt = time.Now()
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO users (chat_id, mode, symbols, top_volatile, created_at, updated_at)
		VALUES (?,?,?,?,?,?)`,
		u.ChatID, string(u.Mode), string(symbolsJSON), boolToInt(u.TopVolatile),
		u.CreatedAt.UnixNano(), u.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// AllUsers returns every subscription record. The scheduler reads this once
// per cycle.
func (s *Storage) AllUsers() ([]*models.User, error) {
	rows, err := s.db.Query(`SELECT chat_id, mode, symbols, top_volatile, created_at, updated_at FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(scan func(...any) error) (*models.User, error) {
	var u models.User
	var mode, symbolsJSON string
	var topVolatile int
	var createdAtNano, updatedAtNano int64
	if err := scan(&u.ChatID, &mode, &symbolsJSON, &topVolatile, &createdAtNano, &updatedAtNano); err != nil {
		return nil, err
	}
	u.Mode = models.Mode(mode)
	if err := json.Unmarshal([]byte(symbolsJSON), &u.Symbols); err != nil {
		return nil, fmt.Errorf("corrupt symbols document: %w", err)
	}
	u.TopVolatile = topVolatile != 0
	u.CreatedAt = time.Unix(0, createdAtNano)
	u.UpdatedAt = time.Unix(0, updatedAtNano)
	return &u, nil
}

// GetThresholds returns the threshold set for symbol. A missing entry yields
// the zero triple and ok=false; level classification then degrades to the
// highest level for any positive volatility.
func (s *Storage) GetThresholds(symbol string) (models.ThresholdSet, bool, error) {
	row := s.db.QueryRow(`SELECT q25, q50, q75 FROM thresholds WHERE symbol = ?`, symbol)
	var ts models.ThresholdSet
	err := row.Scan(&ts.Q25, &ts.Q50, &ts.Q75)
	if err == sql.ErrNoRows {
		return models.ThresholdSet{}, false, nil
	}
	if err != nil {
		return models.ThresholdSet{}, false, fmt.Errorf("failed to get thresholds: %w", err)
	}
	return ts, true, nil
}

// SaveThresholds upserts the threshold set for symbol.
func (s *Storage) SaveThresholds(symbol string, ts models.ThresholdSet) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO thresholds (symbol, q25, q50, q75, updated_at)
		VALUES (?,?,?,?,?)`,
		symbol, ts.Q25, ts.Q50, ts.Q75, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save thresholds: %w", err)
	}
	return nil
}

// AllThresholds loads the full symbol-to-thresholds mapping.
func (s *Storage) AllThresholds() (map[string]models.ThresholdSet, error) {
	rows, err := s.db.Query(`SELECT symbol, q25, q50, q75 FROM thresholds`)
	if err != nil {
		return nil, fmt.Errorf("failed to query thresholds: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.ThresholdSet)
	for rows.Next() {
		var symbol string
		var ts models.ThresholdSet
		if err := rows.Scan(&symbol, &ts.Q25, &ts.Q50, &ts.Q75); err != nil {
			return nil, fmt.Errorf("failed to scan thresholds: %w", err)
		}
		out[symbol] = ts
	}
	return out, rows.Err()
}

// LoadHistory returns the stored rolling window for symbol, oldest first.
// A missing or corrupt document falls back to an empty window.
func (s *Storage) LoadHistory(symbol string) ([]models.Candle, error) {
	row := s.db.QueryRow(`SELECT candles FROM history WHERE symbol = ?`, symbol)
	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	var candles []models.Candle
	if err := json.Unmarshal([]byte(doc), &candles); err != nil {
		return nil, nil
	}
	return candles, nil
}

// SaveHistory replaces the whole rolling window document for symbol.
func (s *Storage) SaveHistory(symbol string, candles []models.Candle) error {
	if candles == nil {
		candles = []models.Candle{}
	}
	doc, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO history (symbol, candles, updated_at)
		VALUES (?,?,?)`,
		symbol, string(doc), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// AddSignal records a dispatched signal and prunes the log down to the
// configured cap, oldest first.
func (s *Storage) AddSignal(sig *models.Signal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO signals
			(id, chat_id, symbol, vol_pct, level, quote_volume, avg_volume, ref_vol_pct, ref_level, sent_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		sig.ID, sig.ChatID, sig.Symbol, sig.VolatilityPct, sig.Level,
		sig.QuoteVolume, sig.AvgVolume, sig.RefVolatilityPct, sig.RefLevel,
		sig.SentAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	if s.maxSignals > 0 {
		if _, err = tx.Exec(`
			DELETE FROM signals WHERE id NOT IN (
				SELECT id FROM signals ORDER BY sent_at DESC LIMIT ?
			)`, s.maxSignals); err != nil {
			return fmt.Errorf("failed to enforce signal cap: %w", err)
		}
	}

	return tx.Commit()
}

// RecentSignals returns up to limit signals, newest first.
func (s *Storage) RecentSignals(limit int) ([]models.Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, symbol, vol_pct, level, quote_volume, avg_volume, ref_vol_pct, ref_level, sent_at
		FROM signals ORDER BY sent_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		var sig models.Signal
		var sentAtNano int64
		if err := rows.Scan(
			&sig.ID, &sig.ChatID, &sig.Symbol, &sig.VolatilityPct, &sig.Level,
			&sig.QuoteVolume, &sig.AvgVolume, &sig.RefVolatilityPct, &sig.RefLevel,
			&sentAtNano,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.SentAt = time.Unix(0, sentAtNano)
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
