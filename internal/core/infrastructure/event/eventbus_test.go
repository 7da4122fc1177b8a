package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/event"
)

const testTopic event.EventType = "test:topic"

func TestSyncSubscribe(t *testing.T) {
	bus := New()
	var got []string
	handler := func(s string) { got = append(got, s) }

	require.NoError(t, bus.Subscribe(testTopic, handler))
	assert.True(t, bus.HasCallback(testTopic))

	bus.Publish(testTopic, "a")
	bus.Publish(testTopic, "b")
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, bus.Unsubscribe(testTopic, handler))
	bus.Publish(testTopic, "c")
	assert.Len(t, got, 2)
	assert.Equal(t, uint64(3), bus.Published())
}

func TestAsyncSubscribe(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.SubscribeAsync(testTopic, func(n int) {
		mu.Lock()
		count += n
		mu.Unlock()
	}, true))

	for i := 0; i < 10; i++ {
		bus.Publish(testTopic, 1)
	}
	bus.WaitAsync()
	assert.Equal(t, 10, count)
}

func TestSubscribeRejectsNonFunc(t *testing.T) {
	assert.Error(t, New().Subscribe(testTopic, "not a func"))
}
