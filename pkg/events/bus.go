// Package events implements EventBus (spec.md §4.8): every significant
// state transition is turned into a model.Event, best-effort inserted into
// the shared event log, and fanned out to subscribers — in particular a
// JWT-signed webhook notifier. Both the store write and the notification
// are best-effort: neither failure may interrupt the caller's state
// machine. The fan-out half is built directly on the teacher's
// pkg/pubsub.PubSub (snapshot-then-send, non-blocking delivery) rather than
// reimplementing it.
package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/pubsub"
	"github.com/dd0wney/repliguard/pkg/store"
)

// busTopic is the single pubsub topic every Event is published to; the bus
// has no notion of per-kind topics, only severity/kind filtering done by
// subscribers themselves.
const busTopic = "events"

// Subscriber receives every published Event on a best-effort basis; a full
// channel drops the event rather than blocking the publisher (the same
// guarantee pubsub.Subscription.Channel gives, narrowed to model.Event).
type Subscriber struct {
	sub *pubsub.Subscription
	out chan model.Event
	done chan struct{}
}

// Channel returns the subscriber's read-only event stream.
func (s *Subscriber) Channel() <-chan model.Event { return s.out }

func (s *Subscriber) pump() {
	defer close(s.out)
	for {
		select {
		case msg, ok := <-s.sub.Channel():
			if !ok {
				return
			}
			ev, ok := msg.(model.Event)
			if !ok {
				continue
			}
			select {
			case s.out <- ev:
			default:
			}
		case <-s.done:
			return
		}
	}
}

// Bus fans Events out to subscribers and persists them to the metadata
// store, backed by pkg/pubsub.PubSub so Publish never blocks on a slow or
// stuck subscriber.
type Bus struct {
	meta   store.NodeMetaStore
	logger logging.Logger
	ps     *pubsub.PubSub
}

// NewBus builds an EventBus backed by meta. meta may be nil in tests that
// only care about fan-out, in which case persistence is skipped.
func NewBus(meta store.NodeMetaStore, logger logging.Logger) *Bus {
	return &Bus{
		meta:   meta,
		logger: logger.With(logging.Component("event_bus")),
		ps:     pubsub.NewPubSub(),
	}
}

// Subscribe registers a new Subscriber with a bounded buffer.
func (b *Bus) Subscribe() *Subscriber {
	sub, _ := b.ps.Subscribe(context.Background(), busTopic)
	s := &Subscriber{sub: sub, out: make(chan model.Event, 64), done: make(chan struct{})}
	go s.pump()
	return s
}

// Unsubscribe removes and closes sub.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	if sub.sub != nil {
		sub.sub.Unsubscribe()
	}
	close(sub.done)
}

// Shutdown tears down the underlying pubsub instance, closing every live
// subscriber channel. Callers should stop using the Bus afterward.
func (b *Bus) Shutdown() {
	b.ps.Shutdown()
}

// Publish records ev to the store (best-effort) and fans it out to every
// current subscriber (best-effort, non-blocking). A missing EventID is
// assigned here so every persisted and fanned-out copy of ev carries the
// same correlation id.
func (b *Bus) Publish(ctx context.Context, ev model.Event) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}

	if b.meta != nil {
		if err := b.meta.RecordEvent(ctx, ev); err != nil {
			b.logger.Warn("failed to persist event", logging.String("kind", ev.Kind), logging.Error(err))
		}
	}

	b.ps.Publish(busTopic, ev)
}
