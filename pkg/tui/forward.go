package tui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
)

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

// RegisterUIForwarder turns bus envelopes into tea messages. Run lines arrive
// on the same topic as progress so their relative order is kept.
func RegisterUIForwarder(bus *events.Bus, p Sender) {
	bus.AddHandler("mdf-ui-run", events.TopicRunEvents, forwardHandler(p))
	bus.AddHandler("mdf-ui-dialog", events.TopicDialogEvents, forwardHandler(p))
}

func forwardHandler(p Sender) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		defer msg.Ack()

		env, err := events.DecodeEnvelope(msg.Payload)
		if err != nil {
			return errors.Wrap(err, "decode ui envelope")
		}
		m, err := ToMsg(env)
		if err != nil {
			return err
		}
		if m != nil {
			p.Send(m)
		}
		return nil
	}
}

// ToMsg maps one envelope to its tea message. Unknown types map to nil.
func ToMsg(env events.Envelope) (tea.Msg, error) {
	switch env.Type {
	case events.TypeRunStarted:
		var v runner.StartedEvent
		if err := env.Decode(&v); err != nil {
			return nil, err
		}
		return RunStartedMsg{Run: v}, nil
	case events.TypeRunLine:
		var v runner.LineEvent
		if err := env.Decode(&v); err != nil {
			return nil, err
		}
		return RunLineMsg{Line: v}, nil
	case events.TypeRunSignal:
		var v bridge.SignalEvent
		if err := env.Decode(&v); err != nil {
			return nil, err
		}
		return RunSignalMsg{Signal: v}, nil
	case events.TypeRunFinished:
		var v runner.FinishedEvent
		if err := env.Decode(&v); err != nil {
			return nil, err
		}
		return RunFinishedMsg{Run: v}, nil
	case events.TypeProgressChanged:
		var v progress.Changed
		if err := env.Decode(&v); err != nil {
			return nil, err
		}
		return ProgressMsg{State: v.State}, nil
	case events.TypeProgressMissing:
		var v progress.Missing
		if err := env.Decode(&v); err != nil {
			return nil, err
		}
		return ProgressMissingMsg{Path: v.Path}, nil
	case events.TypeDialogRequested:
		var v bridge.DialogRequested
		if err := env.Decode(&v); err != nil {
			return nil, err
		}
		return DialogRequestedMsg{Dialog: v}, nil
	case events.TypeDialogAnswered:
		var v bridge.DialogAnswered
		if err := env.Decode(&v); err != nil {
			return nil, err
		}
		return DialogAnsweredMsg{Answer: v}, nil
	}
	return nil, nil
}
