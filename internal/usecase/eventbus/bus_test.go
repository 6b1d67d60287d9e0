package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/logger"
)

func newTestBus() *Bus {
	return New(logger.Discard())
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventAgentCreated, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventAgentCreated {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventAgentCreated))
	bus.Publish(context.Background(), newEvent(domain.EventAliasCreated))
	bus.Close()
	assert.Equal(t, int32(1), got.Load())
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventAgentCreated))
	bus.Publish(context.Background(), newEvent(domain.EventTeardownCompleted))
	bus.Close()
	assert.Equal(t, int32(2), got.Load())
}

func TestSubscriberSeesPublishOrder(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	var seen []domain.EventType
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	order := []domain.EventType{
		domain.EventCollaboratorDisassociated,
		domain.EventAliasDeleted,
		domain.EventAgentDeleted,
		domain.EventGuardrailDeleted,
		domain.EventTeardownCompleted,
	}
	for _, typ := range order {
		bus.Publish(context.Background(), newEvent(typ))
	}
	bus.Close()
	assert.Equal(t, order, seen)
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventAgentDeleted, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})
	unsub()
	unsub()

	bus.Publish(context.Background(), newEvent(domain.EventAgentDeleted))
	bus.Close()
	assert.Equal(t, int32(0), got.Load())
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventInvocationCompleted, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventInvocationCompleted))
		}()
	}
	wg.Wait()
	bus.Close()
	assert.Equal(t, int32(100), got.Load())
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventProvisionFailed, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	bus.Subscribe(domain.EventProvisionFailed, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventProvisionFailed))
	bus.Publish(context.Background(), newEvent(domain.EventProvisionFailed))
	bus.Close()
	assert.Equal(t, int32(2), got.Load())
}

func TestHandlerContextOutlivesCancel(t *testing.T) {
	bus := newTestBus()

	var ctxErr atomic.Value
	bus.SubscribeAll(func(ctx context.Context, _ domain.Event) {
		time.Sleep(10 * time.Millisecond)
		ctxErr.Store(ctx.Err() == nil)
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, newEvent(domain.EventTeardownCompleted))
	cancel()
	bus.Close()

	v, ok := ctxErr.Load().(bool)
	require.True(t, ok)
	assert.True(t, v, "handler context should not be cancelled")
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventAgentPrepared, func(_ context.Context, _ domain.Event) {
		time.Sleep(20 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventAgentPrepared))
	bus.Close()
	require.Equal(t, int32(1), got.Load())

	bus.Publish(context.Background(), newEvent(domain.EventAgentPrepared))
	bus.Close()
	assert.Equal(t, int32(1), got.Load())

	unsub := bus.SubscribeAll(func(context.Context, domain.Event) { got.Add(1) })
	unsub()
	assert.Equal(t, int32(1), got.Load())
}
