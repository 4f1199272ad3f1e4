package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests here mutate the global logger and must not run in parallel.

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Format: FormatJSON, Out: &buf}))

	log.Info().Str("task", "research").Msg("backend: task finished")
	log.Debug().Msg("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "research", entry["task"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInit_ConsoleDebug(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Debug: true, Out: &buf}))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestInit_UnknownFormat(t *testing.T) {
	require.Error(t, Init(Options{Format: "xml"}))
}
