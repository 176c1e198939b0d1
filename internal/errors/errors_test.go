package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineError_KindSurvivesWrapping(t *testing.T) {
	base := NewStrategyError("broker", "ApplySignal", "short selling not supported")
	wrapped := fmt.Errorf("bar 12: %w", base)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindStrategy, kind)
	assert.True(t, IsKind(wrapped, KindStrategy))
	assert.False(t, IsKind(wrapped, KindData))
}

func TestEngineError_MessageIncludesContext(t *testing.T) {
	err := NewDataFetchError("engine", "validate", "timestamps not increasing").
		WithContext("index", 3).
		WithContext("bar", "2024-01-01")

	assert.Equal(t, "[DATA:engine] validate: timestamps not increasing bar=2024-01-01 index=3", err.Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindCache, "sqlite", "get"))

	cause := stderrors.New("disk full")
	err := NewCacheError("sqlite", "put", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestStats(t *testing.T) {
	stats := NewStats(2)
	stats.Record(NewStrategyError("a", "b", "c"))
	stats.Record(NewStrategyError("a", "b", "c"))
	stats.Record(stderrors.New("plain"))
	stats.Record(nil)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByKind[KindStrategy])
	assert.Equal(t, 1, stats.ByKind[KindBacktest])
	assert.Len(t, stats.Recent, 2)
	assert.InDelta(t, 2.0/3.0, stats.Rate(KindStrategy), 1e-12)
	assert.Equal(t, 0.0, NewStats(1).Rate(KindData))
}
