package cache

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
)

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	fingerprint TEXT PRIMARY KEY,
	strategy    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	payload     BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_results_symbol ON backtest_results(symbol);
CREATE INDEX IF NOT EXISTS idx_backtest_results_expires ON backtest_results(expires_at);
`

// SQLiteStore persists results in a SQLite database so repeated CLI runs can
// reuse each other's work. Rows are gob-encoded; expires_at is a unix
// nanosecond timestamp, 0 meaning no expiry.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// OpenSQLite opens (or creates) a SQLite database at path and ensures the
// schema exists.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, engineerrors.NewCacheError("sqlite", "open", err)
	}
	// database/sql pools connections; SQLite serialises writers anyway
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, engineerrors.NewCacheError("sqlite", "migrate", err)
	}
	logger.Debug("opened result cache", zap.String("path", path))
	return &SQLiteStore{db: db, now: time.Now, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored result for fingerprint unless it has expired.
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (*backtest.BacktestResult, bool, error) {
	var (
		payload   []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM backtest_results WHERE fingerprint = ?`, fingerprint).
		Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, engineerrors.NewCacheError("sqlite", "get", err)
	}
	if expiresAt != 0 && s.now().UnixNano() >= expiresAt {
		return nil, false, nil
	}

	var result backtest.BacktestResult
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&result); err != nil {
		return nil, false, engineerrors.NewCacheError("sqlite", "decode", err).
			WithContext("fingerprint", fingerprint)
	}
	return &result, true, nil
}

// Put inserts or replaces the row for fingerprint.
func (s *SQLiteStore) Put(ctx context.Context, fingerprint string, result *backtest.BacktestResult, ttl time.Duration) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(result); err != nil {
		return engineerrors.NewCacheError("sqlite", "encode", err).
			WithContext("fingerprint", fingerprint)
	}
	now := s.now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO backtest_results
			(fingerprint, strategy, symbol, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fingerprint, result.Strategy, result.Symbol, buf.Bytes(), now.UnixNano(), expiresAt)
	if err != nil {
		return engineerrors.NewCacheError("sqlite", "put", err)
	}
	return nil
}

// InvalidateSymbol deletes every row for symbol.
func (s *SQLiteStore) InvalidateSymbol(ctx context.Context, symbol string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backtest_results WHERE symbol = ?`, symbol)
	if err != nil {
		return 0, engineerrors.NewCacheError("sqlite", "invalidate", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("invalidated cached results", zap.String("symbol", symbol), zap.Int64("rows", n))
	return int(n), nil
}

// Purge deletes expired rows.
func (s *SQLiteStore) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM backtest_results WHERE expires_at != 0 AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, engineerrors.NewCacheError("sqlite", "purge", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
