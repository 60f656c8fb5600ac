package runner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/focus"
	"github.com/auto-mdf/mdfctl/pkg/progress"
)

const EnvExecutionID = "MDF_EXECUTION_ID"

func isPython(script string) bool {
	return strings.EqualFold(filepath.Ext(script), ".py")
}

// workerCommand is the argv that runs the script itself.
func workerCommand(python, script string, args []string) []string {
	if isPython(script) {
		if python == "" {
			python = "python3"
		}
		return append([]string{python, "-u", script}, args...)
	}
	return append([]string{script}, args...)
}

// pythonPath puts the project root and the script dir ahead of whatever the
// caller already had.
func pythonPath(root, scriptDir, existing string) string {
	var parts []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		parts = append(parts, p)
	}
	add(root)
	add(scriptDir)
	for _, p := range filepath.SplitList(existing) {
		add(p)
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

type envInput struct {
	runID        string
	root         string
	scriptDir    string
	progressFile string
	proto        bridge.Protocol
	target       focus.Target
	extra        map[string]string
}

func workerEnv(in envInput) map[string]string {
	env := map[string]string{
		EnvExecutionID:           in.runID,
		progress.EnvProgressFile: in.progressFile,
		"PYTHONUNBUFFERED":       "1",
		"PYTHONIOENCODING":       "utf-8",
		"PYTHONPATH":             pythonPath(in.root, in.scriptDir, os.Getenv("PYTHONPATH")),
	}
	for _, kv := range append(in.proto.Env(), in.target.Env()...) {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	for k, v := range in.extra {
		env[k] = v
	}
	return env
}

// mergeEnv appends extra to base in key order; later entries win in exec.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := append([]string{}, base...)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
