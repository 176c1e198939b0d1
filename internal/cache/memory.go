package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ducminhle1904/strategy-backtester/internal/backtest"
)

type memoryEntry struct {
	result    *backtest.BacktestResult
	expiresAt time.Time
}

// MemoryStore implements backtest.ResultCache using in-memory storage.
// Entries expire after their TTL; a zero TTL never expires.
type MemoryStore struct {
	entries map[string]memoryEntry
	now     func() time.Time
	mutex   sync.RWMutex
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a copy of the result stored under fingerprint.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*backtest.BacktestResult, bool, error) {
	s.mutex.RLock()
	entry, exists := s.entries[fingerprint]
	s.mutex.RUnlock()
	if !exists {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mutex.Lock()
		// re-check, a concurrent Put may have refreshed the entry
		if current, ok := s.entries[fingerprint]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, fingerprint)
		}
		s.mutex.Unlock()
		return nil, false, nil
	}
	return entry.result.Clone(), true, nil
}

// Put stores a copy of result.
func (s *MemoryStore) Put(_ context.Context, fingerprint string, result *backtest.BacktestResult, ttl time.Duration) error {
	entry := memoryEntry{result: result.Clone()}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries[fingerprint] = entry
	return nil
}

// InvalidateSymbol drops every entry for symbol and returns how many were removed.
func (s *MemoryStore) InvalidateSymbol(_ context.Context, symbol string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for fp, entry := range s.entries {
		if entry.result.Symbol == symbol {
			delete(s.entries, fp)
			removed++
		}
	}
	return removed, nil
}

// Purge removes expired entries.
func (s *MemoryStore) Purge(_ context.Context) (int, error) {
	now := s.now()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for fp, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.entries, fp)
			removed++
		}
	}
	return removed, nil
}

// Clear removes all cached data
func (s *MemoryStore) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries = make(map[string]memoryEntry)
}

// Size returns the number of cached entries
func (s *MemoryStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.entries)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
