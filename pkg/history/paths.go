package history

import "path/filepath"

const (
	StateDirName       = ".mdfctl"
	HistoryFilename    = "history.jsonl"
	ActiveFilename     = "run.json"
	ActiveLockFilename = "run.lock"
	LogsDirName        = "logs"
)

func StateDir(root string) string {
	return filepath.Join(root, StateDirName)
}

func HistoryPath(root string) string {
	return filepath.Join(StateDir(root), HistoryFilename)
}

func ActivePath(root string) string {
	return filepath.Join(StateDir(root), ActiveFilename)
}

func LogsDir(root string) string {
	return filepath.Join(root, LogsDirName)
}

// ProgressPath is the per-run progress file the worker writes.
func ProgressPath(root, runID string) string {
	return filepath.Join(StateDir(root), "progress_"+runID+".json")
}
