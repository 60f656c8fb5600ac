package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	EnvSettingsFile      = "MDF_SETTINGS_FILE"
	SettingsFilename     = "automation_settings.yaml"
	minThresholdDistance = 0.01
)

// SettingsEnvVars are the worker timing knobs exported when custom timers are
// enabled.
var SettingsEnvVars = []string{
	"MDF_PYAUTOGUI_PAUSE",
	"MDF_PYAUTOGUI_MIN_SLEEP",
	"MDF_SLEEP_THRESHOLD_SHORT",
	"MDF_SLEEP_THRESHOLD_MEDIUM",
	"MDF_SLEEP_SCALE_SHORT",
	"MDF_SLEEP_SCALE_MEDIUM",
	"MDF_SLEEP_SCALE_LONG",
}

// Settings are the operator-tunable automation timings. JSON files from older
// installs load too, since YAML accepts JSON.
type Settings struct {
	PyautoguiPause       float64 `yaml:"pyautogui_pause" json:"pyautogui_pause"`
	PyautoguiFailsafe    bool    `yaml:"pyautogui_failsafe" json:"pyautogui_failsafe"`
	FocusRetrySeconds    float64 `yaml:"focus_retry_seconds" json:"focus_retry_seconds"`
	FocusRetryAttempts   int     `yaml:"focus_retry_attempts" json:"focus_retry_attempts"`
	PyautoguiMinSleep    float64 `yaml:"pyautogui_minimum_sleep" json:"pyautogui_minimum_sleep"`
	SleepThresholdShort  float64 `yaml:"sleep_threshold_short" json:"sleep_threshold_short"`
	SleepThresholdMedium float64 `yaml:"sleep_threshold_medium" json:"sleep_threshold_medium"`
	SleepScaleShort      float64 `yaml:"sleep_scale_short" json:"sleep_scale_short"`
	SleepScaleMedium     float64 `yaml:"sleep_scale_medium" json:"sleep_scale_medium"`
	SleepScaleLong       float64 `yaml:"sleep_scale_long" json:"sleep_scale_long"`
	UseDefaultTimers     bool    `yaml:"use_default_timers" json:"use_default_timers"`
}

func DefaultSettings() Settings {
	return Settings{
		PyautoguiPause:       0.5,
		PyautoguiFailsafe:    true,
		FocusRetrySeconds:    4,
		FocusRetryAttempts:   2,
		PyautoguiMinSleep:    0.02,
		SleepThresholdShort:  0.35,
		SleepThresholdMedium: 1.2,
		SleepScaleShort:      1,
		SleepScaleMedium:     1,
		SleepScaleLong:       1,
		UseDefaultTimers:     true,
	}
}

// normalize keeps the failsafe on and the medium threshold above the short one.
func (s *Settings) normalize() {
	s.PyautoguiFailsafe = true
	if s.SleepThresholdMedium < s.SleepThresholdShort+minThresholdDistance {
		s.SleepThresholdMedium = s.SleepThresholdShort + minThresholdDistance
	}
	if s.FocusRetryAttempts < 1 {
		s.FocusRetryAttempts = 1
	}
	if s.FocusRetrySeconds < 0 {
		s.FocusRetrySeconds = 0
	}
}

func (s Settings) FocusRetryDelay() time.Duration {
	return time.Duration(s.FocusRetrySeconds * float64(time.Second))
}

// Env returns the variables to pass to the worker. Default timers export
// nothing.
func (s Settings) Env() map[string]string {
	if s.UseDefaultTimers {
		return map[string]string{}
	}
	short := nonNeg(s.SleepThresholdShort)
	medium := s.SleepThresholdMedium
	if medium < short+minThresholdDistance {
		medium = short + minThresholdDistance
	}
	f := func(v float64) string { return fmt.Sprintf("%.4f", v) }
	return map[string]string{
		"MDF_PYAUTOGUI_PAUSE":        f(nonNeg(s.PyautoguiPause)),
		"MDF_PYAUTOGUI_MIN_SLEEP":    f(nonNeg(s.PyautoguiMinSleep)),
		"MDF_SLEEP_THRESHOLD_SHORT":  f(short),
		"MDF_SLEEP_THRESHOLD_MEDIUM": f(medium),
		"MDF_SLEEP_SCALE_SHORT":      f(nonNeg(s.SleepScaleShort)),
		"MDF_SLEEP_SCALE_MEDIUM":     f(nonNeg(s.SleepScaleMedium)),
		"MDF_SLEEP_SCALE_LONG":       f(nonNeg(s.SleepScaleLong)),
	}
}

func nonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// SettingsCandidates lists where settings may live, in priority order and
// without duplicates.
func SettingsCandidates(repoRoot string) []string {
	var c []string
	if p := os.Getenv(EnvSettingsFile); p != "" {
		c = append(c, expandHome(p))
	}
	if repoRoot != "" {
		c = append(c, filepath.Join(repoRoot, ".mdfctl", SettingsFilename))
	}
	if appdata := os.Getenv("APPDATA"); appdata != "" {
		c = append(c, filepath.Join(appdata, "AutoMDF", SettingsFilename))
	}
	if home, err := os.UserHomeDir(); err == nil {
		c = append(c, filepath.Join(home, ".auto_mdf", SettingsFilename))
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(c))
	for _, p := range c {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// LoadSettings returns the first readable settings file, or defaults with the
// first candidate as the save path.
func LoadSettings(candidates []string) (Settings, string, error) {
	if len(candidates) == 0 {
		return Settings{}, "", errors.New("no settings candidates")
	}
	for _, p := range candidates {
		b, err := os.ReadFile(p)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Debug().Err(err).Str("path", p).Msg("skipping settings file")
			}
			continue
		}
		s := DefaultSettings()
		if err := yaml.Unmarshal(b, &s); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("invalid settings file")
			continue
		}
		s.normalize()
		return s, p, nil
	}
	s := DefaultSettings()
	s.normalize()
	return s, candidates[0], nil
}

// SaveSettings writes to the first candidate that accepts the file and
// returns its path.
func SaveSettings(candidates []string, s Settings) (string, error) {
	s.normalize()
	b, err := yaml.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "marshal settings")
	}
	var lastErr error
	for _, p := range candidates {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			lastErr = err
			continue
		}
		if err := os.WriteFile(p, b, 0o644); err != nil {
			lastErr = err
			continue
		}
		return p, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no settings candidates")
	}
	return "", errors.Wrap(lastErr, "save settings")
}

// SettingsKeys lists the YAML keys Set accepts.
func SettingsKeys() []string {
	var m yaml.Node
	b, _ := yaml.Marshal(DefaultSettings())
	_ = yaml.Unmarshal(b, &m)
	var keys []string
	if len(m.Content) == 1 {
		for i := 0; i+1 < len(m.Content[0].Content); i += 2 {
			keys = append(keys, m.Content[0].Content[i].Value)
		}
	}
	return keys
}

// Set parses value as a YAML scalar into the field named key.
func (s *Settings) Set(key, value string) error {
	known := false
	for _, k := range SettingsKeys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return errors.Errorf("unknown setting %q", key)
	}
	next := *s
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(value), &doc); err != nil || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.ScalarNode {
		return errors.Errorf("invalid value %q for %s", value, key)
	}
	wrapper := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: key},
		doc.Content[0],
	}}
	if err := wrapper.Decode(&next); err != nil {
		return errors.Wrapf(err, "invalid value %q for %s", value, key)
	}
	next.normalize()
	*s = next
	return nil
}
