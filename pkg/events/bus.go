package events

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
)

// Bus is the in-process pubsub between the runner, the progress watcher, the
// dialog broker and whatever UI is attached.
type Bus struct {
	Router     *message.Router
	Publisher  message.Publisher
	Subscriber message.Subscriber

	runOnce sync.Once
}

func NewInMemoryBus() (*Bus, error) {
	logger := watermill.NopLogger{}
	// Blocking until every subscriber acks keeps run.line events in order.
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            1024,
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	r, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new watermill router")
	}
	return &Bus{
		Router:     r,
		Publisher:  pubsub,
		Subscriber: pubsub,
	}, nil
}

func (b *Bus) AddHandler(name, topic string, handler func(*message.Message) error) {
	b.Router.AddConsumerHandler(name, topic, b.Subscriber, handler)
}

// Run blocks until ctx is done. Handlers must be added before Run.
func (b *Bus) Run(ctx context.Context) error {
	var runErr error
	b.runOnce.Do(func() {
		go func() {
			<-ctx.Done()
			_ = b.Router.Close()
		}()
		runErr = b.Router.Run(ctx)
	})
	return runErr
}

// Running is closed once all handlers are subscribed.
func (b *Bus) Running() chan struct{} {
	return b.Router.Running()
}

// Publish wraps payload in an envelope and publishes it on topic.
func Publish(pub message.Publisher, topic, typ string, payload any) error {
	if pub == nil {
		return nil
	}
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	b, err := env.MarshalJSONBytes()
	if err != nil {
		return err
	}
	if err := pub.Publish(topic, message.NewMessage(watermill.NewUUID(), b)); err != nil {
		return errors.Wrapf(err, "publish %s", typ)
	}
	return nil
}
