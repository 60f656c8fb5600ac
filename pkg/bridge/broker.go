package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type SignalEvent struct {
	RunID  string     `json:"run_id"`
	Kind   SignalKind `json:"kind"`
	Detail string     `json:"detail,omitempty"`
}

// Broker is the host end of the bridge. The runner hands it every output
// line; frames are answered through the Dialoger and the reply is written
// back with the reply func. At most one dialog may be outstanding.
type Broker struct {
	Proto    Protocol
	Dialoger Dialoger
	Pub      message.Publisher
	RunID    string

	// OnSignal is called for every typed signal frame.
	OnSignal func(SignalEvent)

	busy atomic.Bool
	wg   sync.WaitGroup
}

func NewBroker(proto Protocol, d Dialoger, pub message.Publisher, runID string) *Broker {
	return &Broker{Proto: proto, Dialoger: d, Pub: pub, RunID: runID}
}

// Handle returns false for ordinary output lines. Dialog frames are answered
// asynchronously so the caller can keep draining output.
func (b *Broker) Handle(ctx context.Context, line string, reply func(string) error) (bool, error) {
	if !b.Proto.IsFrame(line) {
		return false, nil
	}
	f, err := b.Proto.DecodeFrame(line)
	if err != nil {
		log.Warn().Err(err).Str("run", b.RunID).Str("line", line).Msg("invalid bridge payload, acknowledging")
		if rerr := reply(b.Proto.Ack); rerr != nil {
			return true, errors.Wrap(rerr, "write bridge ack")
		}
		return true, nil
	}

	if f.Type == KindSignal {
		ev := SignalEvent{RunID: b.RunID, Kind: f.Signal, Detail: f.Detail}
		log.Info().Str("run", b.RunID).Str("signal", string(f.Signal)).Str("detail", f.Detail).Msg("worker signal")
		if b.OnSignal != nil {
			b.OnSignal(ev)
		}
		return true, events.Publish(b.Pub, events.TopicRunEvents, events.TypeRunSignal, ev)
	}

	if !b.busy.CompareAndSwap(false, true) {
		return true, errors.Wrapf(ErrProtocolViolation, "second %s request while one is outstanding", f.Type)
	}
	if b.Dialoger == nil {
		b.busy.Store(false)
		return true, reply(b.Proto.Cancel)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.busy.Store(false)

		resp, err := b.Dialoger.Request(ctx, f)
		if err != nil {
			log.Debug().Err(err).Str("run", b.RunID).Msg("dialog not answered, cancelling")
			resp = Response{Cancelled: true}
		}
		if err := reply(b.Proto.EncodeResponse(f.Type, resp)); err != nil {
			log.Warn().Err(err).Str("run", b.RunID).Msg("write bridge response")
		}
	}()
	return true, nil
}

func (b *Broker) Outstanding() bool { return b.busy.Load() }

// Wait blocks until the in-flight dialog, if any, has been answered.
func (b *Broker) Wait() { b.wg.Wait() }
