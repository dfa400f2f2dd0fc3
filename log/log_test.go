//go:build unit

package log

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      string
		expected Level
		wantErr  bool
	}{
		{"error", LevelError, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"info", LevelInfo, false},
		{"debug", LevelDebug, false},
		{"  INFO  ", LevelInfo, false},
		{"Debug", LevelDebug, false},
		{"verbose", LevelError, true},
		{"", LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			level, err := ParseLevel(tt.raw)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Field{Key: "name", Value: "smtp"}, String("name", "smtp"))
	assert.Equal(t, Field{Key: "attempts", Value: 3}, Int("attempts", 3))
	assert.Equal(t, Field{Key: "delivered", Value: true}, Bool("delivered", true))
	assert.Equal(t, Field{Key: "delay", Value: time.Second}, Duration("delay", time.Second))
	assert.Equal(t, Field{Key: "count", Value: any(nil)}, Any("count", nil))

	err := errors.New("boom")
	assert.Equal(t, Field{Key: "error", Value: err}, Err(err))
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNop()

	assert.NotPanics(t, func() {
		logger.Log(context.Background(), LevelError, "dropped", String("k", "v"))
	})

	assert.Same(t, logger, logger.With(String("k", "v")))
	assert.False(t, logger.Enabled(LevelError))
	assert.NoError(t, logger.Sync(context.Background()))
}
