package styles

const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconRunning = "▶"
	IconPaused  = "⏸"
	IconPending = "○"
	IconStopped = "■"
	IconSystem  = "●"
	IconBullet  = "•"
	IconSignal  = "⚡"
	IconDialog  = "?"
)

// RunStatusIcon maps both progress statuses and history statuses; the two
// share most of their values.
func RunStatusIcon(status string) string {
	switch status {
	case "running":
		return IconRunning
	case "paused":
		return IconPaused
	case "completed":
		return IconSuccess
	case "error", "failsafe":
		return IconError
	case "stopped":
		return IconStopped
	case "idle", "":
		return IconPending
	default:
		return IconBullet
	}
}

// LogLevelIcon covers the worker log levels ([AutoMDF][LEVEL]) as well as
// progress message types.
func LogLevelIcon(level string) string {
	switch level {
	case "error", "ERROR", "CRITICAL":
		return IconError
	case "warn", "WARN", "warning", "WARNING":
		return IconWarning
	case "success", "SUCCESS":
		return IconSuccess
	case "info", "INFO":
		return IconInfo
	default:
		return IconBullet
	}
}
