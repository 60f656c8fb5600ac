package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFilename = ".mdfctl.yaml"

// File is the repo-level .mdfctl.yaml. Zero values mean "use the default";
// cobra flags override whatever is set here.
type File struct {
	Python     string `yaml:"python,omitempty"`
	ScriptsDir string `yaml:"scripts_dir,omitempty"`
	LogsDir    string `yaml:"logs_dir,omitempty"`
	RulesDir   string `yaml:"rules_dir,omitempty"`

	Bridge    Bridge    `yaml:"bridge,omitempty"`
	Focus     Focus     `yaml:"focus,omitempty"`
	Progress  Progress  `yaml:"progress,omitempty"`
	Runner    Runner    `yaml:"runner,omitempty"`
	Telemetry Telemetry `yaml:"telemetry,omitempty"`

	Env map[string]string `yaml:"env,omitempty"`
}

type Bridge struct {
	Prefix string `yaml:"prefix,omitempty"`
	Ack    string `yaml:"ack,omitempty"`
	Cancel string `yaml:"cancel,omitempty"`
}

type Focus struct {
	TitleHint   string `yaml:"title_hint,omitempty"`
	TaskbarSlot int    `yaml:"taskbar_slot,omitempty"`
	Tab         int    `yaml:"tab,omitempty"`
}

type Progress struct {
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	Notify       *bool         `yaml:"notify,omitempty"`
	Checkpoints  []int         `yaml:"checkpoints,omitempty"`
}

type Runner struct {
	StopGrace time.Duration `yaml:"stop_grace,omitempty"`
	Wrap      bool          `yaml:"wrap,omitempty"`
}

type Telemetry struct {
	Disabled bool `yaml:"disabled,omitempty"`
}

func DefaultPath(repoRoot string) string {
	return filepath.Join(repoRoot, DefaultConfigFilename)
}

func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg File
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	return &cfg, nil
}

func LoadOptional(path string) (*File, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, errors.Wrap(err, "stat config")
	}
	return LoadFromFile(path)
}

// ResolvePath makes p absolute relative to repoRoot; empty stays empty.
func ResolvePath(repoRoot, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoRoot, p)
}

func (f *File) PythonOrDefault() string {
	if f != nil && f.Python != "" {
		return f.Python
	}
	if p := os.Getenv("MDF_PYTHON"); p != "" {
		return p
	}
	return "python3"
}

func (f *File) NotifyEnabled() bool {
	if f == nil || f.Progress.Notify == nil {
		return true
	}
	return *f.Progress.Notify
}
