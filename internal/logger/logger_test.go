package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Out: &buf})
	log.Info().Str("component", "test").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "test", line["component"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "caller")
}

func TestNew_LevelFallback(t *testing.T) {
	var buf bytes.Buffer
	_ = New(Config{Level: "loud", Out: &buf})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	_ = New(Config{Level: "WARN", Out: &buf})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}
