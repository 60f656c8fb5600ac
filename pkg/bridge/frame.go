package bridge

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultPrefix = "__MDF_GUI_BRIDGE__"
	DefaultAck    = "__MDF_GUI_ACK__"
	DefaultCancel = "__MDF_GUI_CANCEL__"

	EnvActive = "MDF_BRIDGE_ACTIVE"
	EnvPrefix = "MDF_BRIDGE_PREFIX"
	EnvAck    = "MDF_BRIDGE_ACK"
	EnvCancel = "MDF_BRIDGE_CANCEL"
)

var ErrProtocolViolation = errors.New("bridge protocol violation")

type Kind string

const (
	KindAlert   Kind = "alert"
	KindConfirm Kind = "confirm"
	KindPrompt  Kind = "prompt"
	KindSignal  Kind = "signal"
)

// SignalKind names a failure the worker reports out-of-band of its output.
type SignalKind string

const (
	SignalDependencyMissing SignalKind = "dependency_missing"
	SignalFocusFailure      SignalKind = "focus_failure"
	SignalFailsafe          SignalKind = "failsafe"
	SignalExtractionFailure SignalKind = "extraction_failure"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalDependencyMissing, SignalFocusFailure, SignalFailsafe, SignalExtractionFailure:
		return true
	default:
		return false
	}
}

// Frame is what a worker writes after the prefix. Dialog frames expect exactly
// one stdin line back; signal frames expect nothing.
type Frame struct {
	Type    Kind     `json:"type"`
	Text    string   `json:"text,omitempty"`
	Title   string   `json:"title,omitempty"`
	Default string   `json:"default,omitempty"`
	Button  string   `json:"button,omitempty"`
	Buttons []string `json:"buttons,omitempty"`

	RequireInput  bool   `json:"require_input,omitempty"`
	AllowCancel   bool   `json:"allow_cancel,omitempty"`
	CancelMessage string `json:"cancel_message,omitempty"`

	Signal SignalKind `json:"signal,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

func (f Frame) IsDialog() bool {
	switch f.Type {
	case KindAlert, KindConfirm, KindPrompt:
		return true
	default:
		return false
	}
}

type Response struct {
	Value     string `json:"value,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Protocol holds the three markers of the line protocol.
type Protocol struct {
	Prefix string
	Ack    string
	Cancel string
}

func DefaultProtocol() Protocol {
	return Protocol{Prefix: DefaultPrefix, Ack: DefaultAck, Cancel: DefaultCancel}
}

func ProtocolFromEnv() Protocol {
	p := DefaultProtocol()
	if v := os.Getenv(EnvPrefix); v != "" {
		p.Prefix = v
	}
	if v := os.Getenv(EnvAck); v != "" {
		p.Ack = v
	}
	if v := os.Getenv(EnvCancel); v != "" {
		p.Cancel = v
	}
	return p
}

// ActiveFromEnv reports whether a host is listening on the other end of
// stdout.
func ActiveFromEnv() bool {
	return os.Getenv(EnvActive) == "1"
}

// Env returns the variables a host passes to a worker to turn the bridge on.
func (p Protocol) Env() []string {
	return []string{
		EnvActive + "=1",
		EnvPrefix + "=" + p.Prefix,
		EnvAck + "=" + p.Ack,
		EnvCancel + "=" + p.Cancel,
	}
}

func (p Protocol) IsFrame(line string) bool {
	return strings.HasPrefix(line, p.Prefix)
}

func (p Protocol) EncodeFrame(f Frame) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", errors.Wrap(err, "marshal bridge frame")
	}
	return p.Prefix + string(b), nil
}

func (p Protocol) DecodeFrame(line string) (Frame, error) {
	raw := strings.TrimPrefix(strings.TrimRight(line, "\r\n"), p.Prefix)
	var f Frame
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return Frame{}, errors.Wrap(err, "invalid bridge payload")
	}
	switch {
	case f.IsDialog():
	case f.Type == KindSignal:
		if !f.Signal.Valid() {
			return Frame{}, errors.Errorf("unknown signal kind %q", f.Signal)
		}
	default:
		return Frame{}, errors.Errorf("unknown frame type %q", f.Type)
	}
	return f, nil
}

// EncodeResponse renders the stdin line the host sends back. Alerts are always
// acknowledged; an empty answer counts as dismissal.
func (p Protocol) EncodeResponse(kind Kind, r Response) string {
	if kind == KindAlert && !r.Cancelled {
		return p.Ack
	}
	if r.Cancelled || r.Value == "" {
		return p.Cancel
	}
	return r.Value
}

func (p Protocol) DecodeResponse(line string) Response {
	line = strings.TrimRight(line, "\r\n")
	switch line {
	case p.Cancel:
		return Response{Cancelled: true}
	case p.Ack:
		return Response{}
	default:
		return Response{Value: line}
	}
}
