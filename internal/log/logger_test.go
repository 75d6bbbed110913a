package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_LevelAndService(t *testing.T) {
	var buf bytes.Buffer
	l := build(Config{Level: "warn", Output: &buf, Service: "svc"})

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("kept")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "svc", entry["service"])
	assert.Equal(t, "kept", entry["message"])
}

func TestBuild_InvalidLevelFallsBackToInfo(t *testing.T) {
	l := build(Config{Level: "loud", Output: &bytes.Buffer{}})
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestConfigure_AppliesAfterLazyDefault(t *testing.T) {
	t.Cleanup(func() { Configure(Config{Output: &bytes.Buffer{}}) })

	_ = WithComponent("config")

	var buf bytes.Buffer
	Configure(Config{Level: "error", Output: &buf})
	assert.Equal(t, zerolog.ErrorLevel, Base().GetLevel())

	l := WithComponent("cli")
	l.Warn().Msg("dropped")
	l.Error().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
	assert.NotContains(t, buf.String(), "dropped")

	Configure(Config{Level: "debug", Output: &buf})
	assert.Equal(t, zerolog.DebugLevel, Base().GetLevel())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Replace(zerolog.New(&buf))

	l := WithComponent("recorder")
	l.Info().Str(FieldRunID, "r1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "recorder", entry[FieldComponent])
	assert.Equal(t, "r1", entry[FieldRunID])
}
