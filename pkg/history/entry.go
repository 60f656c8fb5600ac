package history

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Workers prefix structured lines as "[AutoMDF][LEVEL][HH:MM:SS] message".
var workerLine = regexp.MustCompile(`^\[AutoMDF\]\[([A-Z]+)\]\[(\d{2}:\d{2}:\d{2})\]\s*(.*)$`)

type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Raw       string `json:"raw"`
}

// Display is the one-line form shown in log panes.
func (e Entry) Display() string {
	return fmt.Sprintf("[%s] [%s] %s", e.Timestamp, e.Level, e.Message)
}

// ParseLine splits a worker output line. Lines without the worker prefix are
// INFO, stamped with now.
func ParseLine(raw string, now time.Time) Entry {
	line := strings.TrimRight(raw, "\r\n")
	if m := workerLine.FindStringSubmatch(line); m != nil {
		return Entry{Timestamp: m[2], Level: m[1], Message: strings.TrimSpace(m[3]), Raw: line}
	}
	return Entry{
		Timestamp: now.Format("15:04:05"),
		Level:     "INFO",
		Message:   strings.TrimSpace(line),
		Raw:       line,
	}
}

// IsErrorLevel reports levels the UI highlights.
func (e Entry) IsErrorLevel() bool {
	switch e.Level {
	case "ERROR", "CRITICAL", "FATAL":
		return true
	}
	return false
}
