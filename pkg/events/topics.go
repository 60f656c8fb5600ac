package events

const (
	TopicRunEvents    = "mdf.run.events"
	TopicDialogEvents = "mdf.dialog.events"
)

const (
	TypeProgressChanged = "progress.changed"
	TypeProgressMissing = "progress.missing"

	TypeRunStarted  = "run.started"
	TypeRunLine     = "run.line"
	TypeRunSignal   = "run.signal"
	TypeRunFinished = "run.finished"

	TypeDialogRequested = "dialog.requested"
	TypeDialogAnswered  = "dialog.answered"
)
