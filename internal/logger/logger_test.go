package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(Options{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_WritesLogFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Format: "json", LogDir: dir, Name: "optimize"})
	require.NoError(t, err)

	l.Info("optimization completed", zap.String("job_id", "abc"))
	_ = l.Sync()

	data, err := os.ReadFile(FilePath(dir, "optimize", time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"job_id":"abc"`)
	assert.Contains(t, string(data), `"logger":"optimize"`)
}

func TestFilePath(t *testing.T) {
	day := time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "backtest_2024-05-06.log"), FilePath("logs", "", day))
}
