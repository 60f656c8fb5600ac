package runner

import (
	"testing"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/stretchr/testify/require"
)

func TestIsFailsafeLine(t *testing.T) {
	for _, l := range []string{
		"pyautogui.FailSafeException: ...",
		"PyAutoGUI fail-safe triggered",
		"Fail safe acionado",
		"FAIL - SAFE",
	} {
		require.True(t, IsFailsafeLine(l), l)
	}
	require.False(t, IsFailsafeLine("tudo certo"))
}

func TestClassify(t *testing.T) {
	require.Equal(t, history.StatusStopped, classify(outcome{exitCode: 1, stopRequested: true, output: []string{"fail-safe"}}).status)
	require.Equal(t, history.StatusCompleted, classify(outcome{exitCode: 0, output: []string{"No module named 'x'"}}).status)

	v := classify(outcome{exitCode: 1, signals: []bridge.SignalKind{bridge.SignalFailsafe}})
	require.Equal(t, history.StatusFailsafe, v.status)

	v = classify(outcome{exitCode: 1, signals: []bridge.SignalKind{bridge.SignalExtractionFailure}})
	require.Equal(t, history.StatusError, v.status)
	require.Equal(t, history.KindExtractionFailure, v.kind)

	v = classify(outcome{exitCode: 2, signals: []bridge.SignalKind{bridge.SignalFocusFailure}, output: []string{
		"ImportError: cannot import name 'x' from 'pyperclip.sub' (unknown location)",
	}})
	require.Equal(t, history.KindDependencyMissing, v.kind)
	require.Equal(t, []string{"pyperclip"}, v.missing)

	v = classify(outcome{exitCode: 1})
	require.Equal(t, history.StatusError, v.status)
	require.Empty(t, v.kind)
}

func TestWorkerCommandAndPythonPath(t *testing.T) {
	require.Equal(t, []string{"py", "-u", "/s/a.py", "x"}, workerCommand("py", "/s/a.py", []string{"x"}))
	require.Equal(t, []string{"python3", "-u", "/s/a.PY"}, workerCommand("", "/s/a.PY", nil))
	require.Equal(t, []string{"/s/a.sh"}, workerCommand("py", "/s/a.sh", nil))

	require.Equal(t, "/r:/r/s:/x", pythonPath("/r", "/r/s", "/x:/r"))
	require.Equal(t, "/r", pythonPath("/r", "/r", ""))
}

func TestMergeEnvIsOrdered(t *testing.T) {
	out := mergeEnv([]string{"A=1"}, map[string]string{"C": "3", "B": "2"})
	require.Equal(t, []string{"A=1", "B=2", "C=3"}, out)
	base := []string{"A=1"}
	require.Equal(t, base, mergeEnv(base, nil))
}
