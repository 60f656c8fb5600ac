package tui

import (
	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/deps"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/auto-mdf/mdfctl/pkg/runner"
)

type RunStartedMsg struct {
	Run runner.StartedEvent
}

type RunLineMsg struct {
	Line runner.LineEvent
}

type RunSignalMsg struct {
	Signal bridge.SignalEvent
}

type RunFinishedMsg struct {
	Run runner.FinishedEvent
}

type ProgressMsg struct {
	State progress.State
}

type ProgressMissingMsg struct {
	Path string
}

type DialogRequestedMsg struct {
	Dialog bridge.DialogRequested
}

type DialogAnsweredMsg struct {
	Answer bridge.DialogAnswered
}

// DepsInstalledMsg carries the result of an accepted install offer.
type DepsInstalledMsg struct {
	Result deps.InstallResult
}

// TickMsg drives the elapsed-time display.
type TickMsg struct{}
