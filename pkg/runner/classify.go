package runner

import (
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/deps"
	"github.com/auto-mdf/mdfctl/pkg/history"
)

// IsFailsafeLine matches the ways pyautogui reports its corner failsafe.
func IsFailsafeLine(line string) bool {
	l := strings.ToLower(line)
	if strings.Contains(l, "pyautogui.failsafeexception") {
		return true
	}
	if strings.Contains(l, "fail-safe") || strings.Contains(l, "fail safe") {
		return true
	}
	compact := strings.NewReplacer("-", "", " ", "").Replace(l)
	return strings.Contains(compact, "failsafe")
}

func containsFailsafe(lines []string) bool {
	for _, l := range lines {
		if IsFailsafeLine(l) {
			return true
		}
	}
	return false
}

type outcome struct {
	exitCode      int
	stopRequested bool
	signals       []bridge.SignalKind
	output        []string
}

type verdict struct {
	status  history.Status
	kind    history.FailureKind
	missing []string
}

// classify maps how a run ended to its final status. Output is only scanned
// for missing modules when the run failed.
func classify(o outcome) verdict {
	if o.stopRequested {
		return verdict{status: history.StatusStopped}
	}
	if o.exitCode == 0 {
		return verdict{status: history.StatusCompleted}
	}
	for _, s := range o.signals {
		if s == bridge.SignalFailsafe {
			return verdict{status: history.StatusFailsafe, kind: history.KindFailsafe}
		}
	}
	if containsFailsafe(o.output) {
		return verdict{status: history.StatusFailsafe, kind: history.KindFailsafe}
	}

	v := verdict{status: history.StatusError}
	if missing := deps.Sorted(deps.ScanLines(o.output)); len(missing) > 0 {
		v.kind = history.KindDependencyMissing
		v.missing = missing
		return v
	}
	if len(o.signals) > 0 {
		v.kind = history.FailureKind(o.signals[0])
	}
	return v
}
