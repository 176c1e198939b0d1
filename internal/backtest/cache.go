package backtest

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	engineerrors "github.com/ducminhle1904/strategy-backtester/internal/errors"
)

// ResultCache is a fingerprint-keyed result store. A miss is (nil, false, nil).
// Implementations must be safe for concurrent use.
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) (*BacktestResult, bool, error)
	Put(ctx context.Context, fingerprint string, result *BacktestResult, ttl time.Duration) error
}

// Observer receives run and cache events. monitoring.Metrics implements it.
type Observer interface {
	ObserveRun(strategy, status string, duration time.Duration)
	ObserveCacheRequest(hit bool)
	AddInflight(delta int)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(string, string, time.Duration) {}
func (nopObserver) ObserveCacheRequest(bool)                 {}
func (nopObserver) AddInflight(int)                          {}

// ComputeFunc produces a fresh result on a cache miss.
type ComputeFunc func(ctx context.Context) (*BacktestResult, error)

// CachedRunner computes a result only when the cache misses and writes it
// back under the same fingerprint. Identical concurrent requests in one
// process share a single computation.
type CachedRunner struct {
	cache    ResultCache
	ttl      time.Duration
	logger   *zap.Logger
	observer Observer
	group    singleflight.Group
}

// NewCachedRunner creates a CachedRunner. A nil cache disables lookups but
// keeps in-process deduplication.
func NewCachedRunner(cache ResultCache, ttl time.Duration, logger *zap.Logger, observer Observer) *CachedRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &CachedRunner{
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		observer: observer,
	}
}

// Run returns the cached result for fingerprint or computes it. hit reports
// whether the result came from the cache. Cache failures are logged and
// treated as misses. Only completed results are stored.
func (r *CachedRunner) Run(ctx context.Context, fingerprint string, compute ComputeFunc) (result *BacktestResult, hit bool, err error) {
	type outcome struct {
		result *BacktestResult
		hit    bool
	}
	v, err, _ := r.group.Do(fingerprint, func() (any, error) {
		if cached, ok := r.lookup(ctx, fingerprint); ok {
			return outcome{result: cached, hit: true}, nil
		}
		fresh, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			return nil, engineerrors.NewBacktestError("cache", "run", "compute returned no result")
		}
		fresh.Fingerprint = fingerprint
		r.store(ctx, fingerprint, fresh)
		return outcome{result: fresh}, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(outcome)
	return out.result, out.hit, nil
}

func (r *CachedRunner) lookup(ctx context.Context, fingerprint string) (*BacktestResult, bool) {
	if r.cache == nil {
		return nil, false
	}
	cached, ok, err := r.cache.Get(ctx, fingerprint)
	if err != nil {
		r.logger.Warn("result cache get failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		ok = false
	}
	ok = ok && cached.Completed()
	r.observer.ObserveCacheRequest(ok)
	if ok {
		r.logger.Debug("result cache hit", zap.String("fingerprint", fingerprint))
	}
	return cached, ok
}

func (r *CachedRunner) store(ctx context.Context, fingerprint string, result *BacktestResult) {
	if r.cache == nil || !result.Completed() {
		return
	}
	if err := r.cache.Put(ctx, fingerprint, result, r.ttl); err != nil {
		r.logger.Warn("result cache put failed", zap.String("fingerprint", fingerprint), zap.Error(err))
	}
}
