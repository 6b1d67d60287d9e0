package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

const queueSize = 64

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id      uint64
	all     bool
	typ     domain.EventType
	handler domain.EventHandler
	queue   chan delivery
}

func (s *subscription) matches(t domain.EventType) bool {
	return s.all || s.typ == t
}

// Bus is an in-process, goroutine-safe event bus. Each subscriber has its own
// worker goroutine, so a subscriber sees events in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish queues an event for every matching subscriber. Handlers receive a
// context that survives cancellation of ctx, so an interrupted run is still
// fully recorded.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	d := delivery{ctx: context.WithoutCancel(ctx), event: event}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed.Load() {
		return
	}
	for _, sub := range b.subs {
		if sub.matches(event.Type) {
			sub.queue <- d
		}
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for d := range sub.queue {
		b.deliver(sub, d)
	}
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

func (b *Bus) add(sub *subscription) func() {
	sub.id = b.nextID.Add(1)
	sub.queue = make(chan delivery, queueSize)

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	b.mu.Unlock()
	go b.run(sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == sub.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(s.queue)
				return
			}
		}
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function; events already queued are still delivered.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(&subscription{typ: eventType, handler: handler})
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(&subscription{all: true, handler: handler})
}

// Close stops accepting events and waits until every queued event is handled.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, s := range b.subs {
		close(s.queue)
	}
	b.subs = nil
	b.mu.Unlock()
	b.wg.Wait()
}
