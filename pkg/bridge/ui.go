package bridge

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type DialogRequested struct {
	ID    string `json:"id"`
	Frame Frame  `json:"frame"`
}

type DialogAnswered struct {
	ID       string   `json:"id"`
	Response Response `json:"response"`
}

// BusDialoger publishes dialog requests on the bus and blocks until a UI
// calls Answer with the same id.
type BusDialoger struct {
	Pub message.Publisher

	mu      sync.Mutex
	pending map[string]chan Response
}

func NewBusDialoger(pub message.Publisher) *BusDialoger {
	return &BusDialoger{Pub: pub, pending: map[string]chan Response{}}
}

func (d *BusDialoger) Request(ctx context.Context, f Frame) (Response, error) {
	id := uuid.NewString()
	ch := make(chan Response, 1)

	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	if err := events.Publish(d.Pub, events.TopicDialogEvents, events.TypeDialogRequested, DialogRequested{ID: id, Frame: f}); err != nil {
		return Response{}, err
	}

	select {
	case resp := <-ch:
		_ = events.Publish(d.Pub, events.TopicDialogEvents, events.TypeDialogAnswered, DialogAnswered{ID: id, Response: resp})
		return resp, nil
	case <-ctx.Done():
		_ = events.Publish(d.Pub, events.TopicDialogEvents, events.TypeDialogAnswered, DialogAnswered{ID: id, Response: Response{Cancelled: true}})
		return Response{}, ctx.Err()
	}
}

func (d *BusDialoger) Answer(id string, resp Response) error {
	d.mu.Lock()
	ch, ok := d.pending[id]
	d.mu.Unlock()
	if !ok {
		return errors.Errorf("no pending dialog %q", id)
	}
	select {
	case ch <- resp:
		return nil
	default:
		return errors.Errorf("dialog %q already answered", id)
	}
}

func (d *BusDialoger) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
