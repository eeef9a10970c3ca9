package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/shared"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "test.aggregate", uuid.New()),
	}
}

// recordingHandler counts deliveries and optionally panics or blocks
type recordingHandler struct {
	types   []string
	mu      sync.Mutex
	handled []shared.DomainEvent
	done    chan struct{}
	panics  bool
}

func newRecordingHandler(types ...string) *recordingHandler {
	return &recordingHandler{types: types, done: make(chan struct{}, 16)}
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	if h.panics {
		h.done <- struct{}{}
		panic("handler exploded")
	}
	h.mu.Lock()
	h.handled = append(h.handled, event)
	h.mu.Unlock()
	h.done <- struct{}{}
	return nil
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func waitHandled(t *testing.T, h *recordingHandler, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
}

func TestInMemoryEventBus_SynchronousDeliveryBeforeStart(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), InMemoryEventBusOptions{})
	handler := newRecordingHandler("doc.submitted")
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("doc.submitted")))

	// Bus is not running, so delivery happened inside Publish
	assert.Equal(t, 1, handler.count())
}

func TestInMemoryEventBus_AsyncDeliveryAfterStart(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), InMemoryEventBusOptions{Workers: 2})
	handler := newRecordingHandler("doc.submitted")
	bus.Subscribe(handler)

	require.NoError(t, bus.Start(context.Background()))
	defer func() { _ = bus.Stop(context.Background()) }()

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("doc.submitted"),
		newTestEvent("doc.submitted"),
		newTestEvent("doc.submitted"),
	))

	waitHandled(t, handler, 3)
	assert.Equal(t, 3, handler.count())
}

func TestInMemoryEventBus_RoutesByEventType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), InMemoryEventBusOptions{})
	submitted := newRecordingHandler("doc.submitted")
	published := newRecordingHandler("delivery.published")
	bus.Subscribe(submitted)
	bus.Subscribe(published)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("doc.submitted")))

	assert.Equal(t, 1, submitted.count())
	assert.Equal(t, 0, published.count())
}

func TestInMemoryEventBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), InMemoryEventBusOptions{})
	bad := newRecordingHandler("doc.submitted")
	bad.panics = true
	good := newRecordingHandler("doc.submitted")
	bus.Subscribe(bad)
	bus.Subscribe(good)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("doc.submitted")))

	assert.Equal(t, 1, good.count())
}

func TestInMemoryEventBus_StopDrainsQueue(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), InMemoryEventBusOptions{Workers: 1})
	handler := newRecordingHandler("doc.submitted")
	bus.Subscribe(handler)

	require.NoError(t, bus.Start(context.Background()))
	for i := 0; i < 8; i++ {
		require.NoError(t, bus.Publish(context.Background(), newTestEvent("doc.submitted")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	assert.Equal(t, 8, handler.count())
}

func TestInMemoryEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), InMemoryEventBusOptions{})
	handler := newRecordingHandler("doc.submitted")
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("doc.submitted")))

	assert.Equal(t, 0, handler.count())
}
