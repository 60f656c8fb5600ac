package tui

import "github.com/auto-mdf/mdfctl/pkg/bridge"

// RootOptions wires the root model back to the host. Both callbacks may be
// nil in tests.
type RootOptions struct {
	ScriptName string

	// Answer resolves a pending dialog, normally BusDialoger.Answer.
	Answer func(id string, resp bridge.Response) error
	// Stop asks the runner to stop the current run.
	Stop func()
	// InstallDeps, when set, is offered after a run fails on missing modules.
	InstallDeps InstallFunc

	// MaxLogLines caps the log pane; zero means DefaultMaxLogLines.
	MaxLogLines int
}

const DefaultMaxLogLines = 1200
