package container

import (
	"sync"

	"github.com/entrhq/harvest/pkg/logging"
	"github.com/entrhq/harvest/pkg/types"
)

// EventHandler receives container events. Handlers run synchronously on
// the goroutine that produced the event and must not block.
type EventHandler func(event *types.ContainerEvent)

type subscriber struct {
	id int
	fn EventHandler
}

// eventBus fans events out to subscribers. Subscribers are invoked outside
// the lock so they may call back into the container.
type eventBus struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID int
	logger *logging.Logger
}

func newEventBus(logger *logging.Logger) *eventBus {
	return &eventBus{logger: logger}
}

func (b *eventBus) subscribe(fn EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *eventBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *eventBus) emit(event *types.ContainerEvent) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, event)
	}
}

func (b *eventBus) deliver(s subscriber, event *types.ContainerEvent) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Errorf("Event subscriber panicked on %s: %v", event.Type, p)
		}
	}()
	s.fn(event)
}

func (b *eventBus) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}
