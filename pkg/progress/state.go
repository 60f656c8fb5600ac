package progress

import (
	"os"
	"time"
)

const (
	DefaultFilename = "automation_progress.json"
	EnvProgressFile = "MDF_PROGRESS_FILE"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusStopped:
		return true
	default:
		return false
	}
}

type MessageType string

const (
	MessageInfo    MessageType = "info"
	MessageWarning MessageType = "warning"
	MessageError   MessageType = "error"
	MessageSuccess MessageType = "success"
)

type Message struct {
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`
	Type      MessageType `json:"type"`
}

type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// State is the document the worker owns and the host only reads. It is
// always written whole.
type State struct {
	Status    Status    `json:"status"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`

	TotalSteps       int          `json:"total_steps,omitempty"`
	StartTime        *time.Time   `json:"start_time,omitempty"`
	ElapsedSeconds   int64        `json:"elapsed_seconds"`
	EstimatedSeconds *int64       `json:"estimated_time_remaining,omitempty"`
	Messages         []Message    `json:"messages,omitempty"`
	Errors           []ErrorEntry `json:"errors,omitempty"`
}

func NewIdleState() State {
	return State{
		Status:    StatusIdle,
		Message:   "waiting to start",
		Timestamp: time.Now(),
	}
}

// Equal compares the fields a reader cares about. Timestamps and elapsed
// counters are excluded so that a rewrite with identical content does not
// count as a change.
func (s State) Equal(o State) bool {
	if s.Status != o.Status || s.Percent != o.Percent || s.Message != o.Message || s.Step != o.Step {
		return false
	}
	if s.TotalSteps != o.TotalSteps {
		return false
	}
	if len(s.Messages) != len(o.Messages) || len(s.Errors) != len(o.Errors) {
		return false
	}
	return true
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// PathFromEnv returns the progress file path a worker should write to, or
// fallback when the host did not set one.
func PathFromEnv(fallback string) string {
	if p := os.Getenv(EnvProgressFile); p != "" {
		return p
	}
	return fallback
}
