// Package cache provides backtest.ResultCache implementations.
package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
)

// Store is a result cache that can be maintained from the CLI.
type Store interface {
	backtest.ResultCache
	InvalidateSymbol(ctx context.Context, symbol string) (int, error)
	Purge(ctx context.Context) (int, error)
	Close() error
}

var _ Store = (*MemoryStore)(nil)

// Open returns a SQLite store at path, or a memory store when path is empty.
func Open(ctx context.Context, path string, logger *zap.Logger) (Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(ctx, path, logger)
}
