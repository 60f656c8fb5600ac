package focus

import (
	"os"
	"strconv"
	"strings"
)

const (
	EnvBrowserTab  = "MDF_BROWSER_TAB"
	EnvTaskbarSlot = "MDF_BROWSER_TASKBAR_SLOT"
	EnvTitleHint   = "MDF_BROWSER_TITLE_HINT"
)

const DefaultTaskbarSlot = 1

// Target names the window to focus. An empty AppHint matches any known
// browser. Tab 0 leaves the current tab alone.
type Target struct {
	AppHint     string `json:"app_hint,omitempty"`
	TaskbarSlot int    `json:"taskbar_slot"`
	Tab         int    `json:"tab,omitempty"`
}

func TargetFromEnv() Target {
	return Target{
		AppHint:     strings.TrimSpace(os.Getenv(EnvTitleHint)),
		TaskbarSlot: parseSlot(os.Getenv(EnvTaskbarSlot)),
		Tab:         ParseTab(os.Getenv(EnvBrowserTab)),
	}
}

// Env returns the variables that make TargetFromEnv in a worker resolve to t.
func (t Target) Env() []string {
	env := []string{
		EnvTaskbarSlot + "=" + strconv.Itoa(t.slot()),
		EnvBrowserTab + "=" + strconv.Itoa(clampTab(t.Tab)),
	}
	if t.AppHint != "" {
		env = append(env, EnvTitleHint+"="+t.AppHint)
	}
	return env
}

// ParseTab clamps to 0..9; anything unparsable or non-positive is 0.
func ParseTab(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return clampTab(v)
}

func clampTab(v int) int {
	if v <= 0 {
		return 0
	}
	if v > 9 {
		return 9
	}
	return v
}

func parseSlot(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 || v > 9 {
		return DefaultTaskbarSlot
	}
	return v
}

func (t Target) slot() int {
	if t.TaskbarSlot <= 0 || t.TaskbarSlot > 9 {
		return DefaultTaskbarSlot
	}
	return t.TaskbarSlot
}
