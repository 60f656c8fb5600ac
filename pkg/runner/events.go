package runner

import (
	"time"

	"github.com/auto-mdf/mdfctl/pkg/history"
)

// Payloads published on events.TopicRunEvents.

type StartedEvent struct {
	RunID        string    `json:"run_id"`
	ScriptName   string    `json:"script_name"`
	ScriptPath   string    `json:"script_path"`
	PID          int       `json:"pid"`
	LogFile      string    `json:"log_file"`
	ProgressFile string    `json:"progress_file"`
	StartedAt    time.Time `json:"started_at"`
}

type LineEvent struct {
	RunID string        `json:"run_id"`
	Entry history.Entry `json:"entry"`
}

type FinishedEvent struct {
	RunID           string              `json:"run_id"`
	ScriptName      string              `json:"script_name"`
	Status          history.Status      `json:"status"`
	ExitCode        *int                `json:"exit_code,omitempty"`
	FailureKind     history.FailureKind `json:"failure_kind,omitempty"`
	MissingModules  []string            `json:"missing_modules,omitempty"`
	DurationSeconds float64             `json:"duration_seconds"`
	LogFile         string              `json:"log_file"`
}

// FinishedEventFor summarizes a finalized record.
func FinishedEventFor(r history.Record) FinishedEvent {
	return FinishedEvent{
		RunID:           r.ID,
		ScriptName:      r.ScriptName,
		Status:          r.Status,
		ExitCode:        r.ExitCode,
		FailureKind:     r.FailureKind,
		MissingModules:  r.MissingModules,
		DurationSeconds: r.Duration().Seconds(),
		LogFile:         r.LogFile,
	}
}
