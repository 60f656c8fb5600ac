package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadOptionalMissing(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), DefaultConfigFilename))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.True(t, cfg.NotifyEnabled())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := DefaultPath(dir)
	require.NoError(t, os.WriteFile(path, []byte(`
python: /opt/venv/bin/python
scripts_dir: scripts
bridge:
  prefix: __X__
focus:
  title_hint: Invoisys
  taskbar_slot: 2
  tab: 3
progress:
  poll_interval: 500ms
  notify: false
  checkpoints: [10, 50, 90]
runner:
  stop_grace: 2s
env:
  FOO: bar
`), 0o644))

	cfg, err := LoadOptional(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/venv/bin/python", cfg.PythonOrDefault())
	require.Equal(t, filepath.Join(dir, "scripts"), ResolvePath(dir, cfg.ScriptsDir))
	require.Equal(t, "__X__", cfg.Bridge.Prefix)
	require.Equal(t, "Invoisys", cfg.Focus.TitleHint)
	require.Equal(t, 2, cfg.Focus.TaskbarSlot)
	require.Equal(t, 500*time.Millisecond, cfg.Progress.PollInterval)
	require.False(t, cfg.NotifyEnabled())
	require.Equal(t, []int{10, 50, 90}, cfg.Progress.Checkpoints)
	require.Equal(t, 2*time.Second, cfg.Runner.StopGrace)
	require.Equal(t, "bar", cfg.Env["FOO"])

	require.NoError(t, os.WriteFile(path, []byte("python: [\n"), 0o644))
	_, err = LoadOptional(path)
	require.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	require.Equal(t, "", ResolvePath("/r", ""))
	require.Equal(t, "/abs", ResolvePath("/r", "/abs"))
}

func TestSettingsEnv(t *testing.T) {
	s := DefaultSettings()
	require.Empty(t, s.Env())

	s.UseDefaultTimers = false
	s.SleepThresholdShort = 2
	s.SleepThresholdMedium = 1
	s.PyautoguiPause = -1
	env := s.Env()
	require.Len(t, env, len(SettingsEnvVars))
	require.Equal(t, "2.0000", env["MDF_SLEEP_THRESHOLD_SHORT"])
	require.Equal(t, "2.0100", env["MDF_SLEEP_THRESHOLD_MEDIUM"])
	require.Equal(t, "0.0000", env["MDF_PYAUTOGUI_PAUSE"])
	for _, k := range SettingsEnvVars {
		require.Contains(t, env, k)
	}
}

func TestSettingsRoundTripThroughYAML(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a", SettingsFilename)
	second := filepath.Join(dir, "b", SettingsFilename)

	s, path, err := LoadSettings([]string{first, second})
	require.NoError(t, err)
	require.Equal(t, first, path)
	require.Equal(t, DefaultSettings(), s)

	s.UseDefaultTimers = false
	s.PyautoguiPause = 0.25
	s.PyautoguiFailsafe = false
	s.FocusRetryAttempts = 0
	s.SleepThresholdMedium = 0.1

	saved, err := SaveSettings([]string{first, second}, s)
	require.NoError(t, err)
	require.Equal(t, first, saved)

	got, path, err := LoadSettings([]string{second, first})
	require.NoError(t, err)
	require.Equal(t, first, path)
	require.False(t, got.UseDefaultTimers)
	require.Equal(t, 0.25, got.PyautoguiPause)
	require.True(t, got.PyautoguiFailsafe)
	require.Equal(t, 1, got.FocusRetryAttempts)
	require.InDelta(t, 0.36, got.SleepThresholdMedium, 1e-9)
	require.Equal(t, 4*time.Second, got.FocusRetryDelay())
}

func TestLoadSettingsAcceptsLegacyJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "automation_settings.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"pyautogui_pause": 0.8, "use_default_timers": false}`), 0o644))

	s, path, err := LoadSettings([]string{p})
	require.NoError(t, err)
	require.Equal(t, p, path)
	require.Equal(t, 0.8, s.PyautoguiPause)
	require.False(t, s.UseDefaultTimers)
	require.Equal(t, 0.35, s.SleepThresholdShort)
}

func TestSettingsCandidates(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "custom.yaml")
	t.Setenv(EnvSettingsFile, env)
	t.Setenv("APPDATA", "")

	c := SettingsCandidates(dir)
	require.GreaterOrEqual(t, len(c), 2)
	require.Equal(t, env, c[0])
	require.Equal(t, filepath.Join(dir, ".mdfctl", SettingsFilename), c[1])
}

func TestSettingsSet(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Set("focus_retry_seconds", "2.5"))
	require.Equal(t, 2.5, s.FocusRetrySeconds)

	require.NoError(t, s.Set("use_default_timers", "false"))
	require.False(t, s.UseDefaultTimers)

	// failsafe cannot be turned off
	require.NoError(t, s.Set("pyautogui_failsafe", "false"))
	require.True(t, s.PyautoguiFailsafe)

	require.Error(t, s.Set("no_such_key", "1"))
	require.Error(t, s.Set("focus_retry_attempts", "many"))
	require.Equal(t, 2, s.FocusRetryAttempts)

	require.Contains(t, SettingsKeys(), "sleep_scale_long")
}
