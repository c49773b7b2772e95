package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/analytics-tools/config"
	"github.com/upb/analytics-tools/internal/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ObservabilityConfig
		level   zapcore.Level
		wantErr bool
	}{
		{name: "json", cfg: config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"}, level: zapcore.InfoLevel},
		{name: "text", cfg: config.ObservabilityConfig{LogLevel: "debug", LogFormat: "text"}, level: zapcore.DebugLevel},
		{name: "bad level", cfg: config.ObservabilityConfig{LogLevel: "loud", LogFormat: "json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer logger.Sync()

			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestWithRun(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	WithRun(context.Background(), logger).Info("no run")
	ctx, id := shared.NewRun(context.Background())
	WithRun(ctx, logger).Info("with run")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "run_id")
	assert.Equal(t, id, entries[1].ContextMap()["run_id"])
}
