package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	t.Run("JSON output carries the component", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

		logger := WithComponent("tracker")
		logger.Info().Int("flights", 3).Msg("Tick complete")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "tracker", entry["component"])
		assert.Equal(t, "Tick complete", entry["message"])
		assert.Equal(t, float64(3), entry["flights"])
	})

	t.Run("Level filters lower severities", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Config{Level: "WARN", JSONOutput: true, Output: &buf})

		Logger.Info().Msg("hidden")
		assert.Zero(t, buf.Len())

		Logger.Warn().Msg("shown")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("Unknown level falls back to info", func(t *testing.T) {
		Init(Config{Level: "verbose", JSONOutput: true, Output: &bytes.Buffer{}})
		assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	})

	t.Run("Provider logger", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

		logger := WithProvider("positions", "mock")
		logger.Debug().Msg("fetch")
		assert.Contains(t, buf.String(), `"provider":"mock"`)
	})
}
