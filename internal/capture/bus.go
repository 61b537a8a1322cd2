package capture

import (
	"sync"

	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
)

const ErrSubscriberExists = errors.ErrorCode("subscriber_exists")

// Subscriber receives processed windows. Delivery happens synchronously on
// the capture worker; implementations must return quickly or hand off to
// their own goroutine.
type Subscriber interface {
	OnWindow(w Window)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(w Window)

func (f SubscriberFunc) OnWindow(w Window) {
	f(w)
}

// Bus fans processed windows out to registered subscribers. Registration
// order is preserved; delivery takes a snapshot of the list and runs
// outside the lock, and a panicking subscriber never halts delivery to the
// rest or aborts the capture loop.
type Bus struct {
	mu    sync.Mutex
	order []string
	subs  map[string]Subscriber
	log   logger.Logger
}

func NewBus(log logger.Logger) *Bus {
	return &Bus{
		subs: make(map[string]Subscriber),
		log:  log,
	}
}

func (b *Bus) Subscribe(id string, sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[id]; exists {
		return errors.New().WithData(ErrSubscriberExists, id)
	}
	b.order = append(b.order, id)
	b.subs[id] = sub

	return nil
}

// Unsubscribe removes a subscriber; unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[id]; !exists {
		return
	}
	delete(b.subs, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers w to every subscriber in registration order.
func (b *Bus) Publish(w Window) {
	b.mu.Lock()
	snapshot := make([]Subscriber, 0, len(b.order))
	ids := make([]string, 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.subs[id])
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for i, sub := range snapshot {
		b.deliver(ids[i], sub, w)
	}
}

func (b *Bus) deliver(id string, sub Subscriber, w Window) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn().
				Str("subscriber", id).
				Interface("panic", r).
				Msg("Subscriber callback failed, delivery continues")
		}
	}()

	sub.OnWindow(w)
}
