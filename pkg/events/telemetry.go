package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	TelemetryFilename    = "automation_telemetry.jsonl"
	EnvTelemetryDisabled = "MDF_TELEMETRY_DISABLED"
)

type TelemetryEntry struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Details   map[string]any `json:"details"`
}

// Telemetry appends diagnostic events to a JSONL file. Write failures are
// logged and swallowed; telemetry never fails a run.
type Telemetry struct {
	Path    string
	Enabled bool

	mu  sync.Mutex
	now func() time.Time
}

func NewTelemetry(logDir string) *Telemetry {
	return &Telemetry{
		Path:    filepath.Join(logDir, TelemetryFilename),
		Enabled: TelemetryEnabledFromEnv(),
		now:     time.Now,
	}
}

// TelemetryEnabledFromEnv reports false when MDF_TELEMETRY_DISABLED is one of
// 0, false or no.
func TelemetryEnabledFromEnv() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvTelemetryDisabled)))
	switch v {
	case "0", "false", "no":
		return false
	default:
		return true
	}
}

func (t *Telemetry) Record(event string, details map[string]any) TelemetryEntry {
	if details == nil {
		details = map[string]any{}
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	entry := TelemetryEntry{
		Timestamp: now().UTC().Format("2006-01-02T15:04:05Z"),
		Event:     event,
		Details:   details,
	}
	if !t.Enabled {
		return entry
	}
	if err := t.append(entry); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("telemetry write failed")
	}
	return entry
}

func (t *Telemetry) append(entry TelemetryEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir telemetry dir")
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal telemetry entry")
	}
	f, err := os.OpenFile(t.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open telemetry file")
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, "append telemetry entry")
	}
	return nil
}

// RegisterTelemetrySink records run lifecycle and signal events. Line and
// progress events are too chatty and are skipped.
func RegisterTelemetrySink(bus *Bus, t *Telemetry) {
	bus.AddHandler("mdf-telemetry", TopicRunEvents, func(msg *message.Message) error {
		defer msg.Ack()

		env, err := DecodeEnvelope(msg.Payload)
		if err != nil {
			return nil
		}
		switch env.Type {
		case TypeRunStarted, TypeRunFinished, TypeRunSignal:
		default:
			return nil
		}
		details := map[string]any{}
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &details); err != nil {
				details = map[string]any{"raw": string(env.Payload)}
			}
		}
		t.Record(env.Type, details)
		return nil
	})
}
