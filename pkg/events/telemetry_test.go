package events

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTelemetry_AppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	tel := NewTelemetry(dir)
	tel.Enabled = true
	tel.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	tel.Record("focus.failure", map[string]any{"hint": "chrome"})
	tel.Record("run.finished", nil)

	f, err := os.Open(tel.Path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var entries []TelemetryEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e TelemetryEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	require.Equal(t, "2024-03-01T12:00:00Z", entries[0].Timestamp)
	require.Equal(t, "focus.failure", entries[0].Event)
	require.Equal(t, "chrome", entries[0].Details["hint"])
	require.NotNil(t, entries[1].Details)
}

func TestTelemetry_DisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	tel := NewTelemetry(dir)
	tel.Enabled = false

	entry := tel.Record("x", nil)
	require.Equal(t, "x", entry.Event)

	_, err := os.Stat(tel.Path)
	require.True(t, os.IsNotExist(err))
}

func TestTelemetryEnabledFromEnv(t *testing.T) {
	for _, v := range []string{"0", "false", "NO", " no "} {
		t.Setenv(EnvTelemetryDisabled, v)
		require.False(t, TelemetryEnabledFromEnv(), v)
	}
	for _, v := range []string{"", "1", "yes"} {
		t.Setenv(EnvTelemetryDisabled, v)
		require.True(t, TelemetryEnabledFromEnv(), v)
	}
}
