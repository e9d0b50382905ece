package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishAndReceive(t *testing.T) {
	t.Parallel()
	bus := NewBus(4, nil)
	defer bus.Close()

	id := uuid.New()
	bus.Publish(Event{Type: TypeStarted, ID: id})

	ev := <-bus.Events()
	assert.Equal(t, TypeStarted, ev.Type)
	assert.Equal(t, id, ev.ID)

	stats := bus.Stats()
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, int64(0), stats.Dropped)
}

func TestBusDropsWhenFull(t *testing.T) {
	t.Parallel()
	bus := NewBus(2, nil)
	defer bus.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: TypeProgress})
	}

	stats := bus.Stats()
	assert.Equal(t, int64(2), stats.Published)
	assert.Equal(t, int64(3), stats.Dropped)
	assert.Equal(t, 2, stats.QueueDepth)
}

func TestBusCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	bus := NewBus(2, nil)
	bus.Publish(Event{Type: TypeQueued})
	bus.Close()
	bus.Close()

	// Publish after close is a no-op, not a panic.
	bus.Publish(Event{Type: TypeQueued})

	// Queued event remains readable, then the channel reports closed.
	ev, ok := <-bus.Events()
	require.True(t, ok)
	assert.Equal(t, TypeQueued, ev.Type)

	_, ok = <-bus.Events()
	assert.False(t, ok)
}
