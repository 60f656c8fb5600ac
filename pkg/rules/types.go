package rules

import (
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
)

// Match is what a classifier returns for a line it recognizes.
type Match struct {
	Rule    string            `json:"rule"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Signal  bridge.SignalKind `json:"signal,omitempty"`
	Detail  string            `json:"detail,omitempty"`
	At      *time.Time        `json:"at,omitempty"`
	Raw     string            `json:"raw"`
}

func (m Match) HasSignal() bool { return m.Signal != "" }

type Stats struct {
	LinesSeen    int64
	Matches      int64
	HookErrors   int64
	HookTimeouts int64
}

type ErrorRecord struct {
	Rule    string `json:"rule"`
	Hook    string `json:"hook"`
	Timeout bool   `json:"timeout"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}
