package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrenhq/warren/pkg/workflow"
)

// setupTestBus creates a bus backed by a miniredis instance.
func setupTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b, err := New(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { b.Disconnect() })

	return b, mr
}

// collector accumulates delivered events for assertions.
type collector struct {
	mu     sync.Mutex
	events []*workflow.Event
}

func (c *collector) handle(e *workflow.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) kinds() []workflow.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]workflow.Kind, 0, len(c.events))
	for _, e := range c.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestNew(t *testing.T) {
	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := New(&redis.Options{Addr: "localhost:6379"}, "")
		require.Error(t, err)
	})
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("connects and reports connected", func(t *testing.T) {
		b, _ := setupTestBus(t)
		require.NoError(t, b.Connect(ctx))
		assert.True(t, b.Connected())
	})

	t.Run("is idempotent while connected", func(t *testing.T) {
		b, _ := setupTestBus(t)
		require.NoError(t, b.Connect(ctx))
		require.NoError(t, b.Connect(ctx))
		assert.True(t, b.Connected())
	})

	t.Run("fails when transport is unreachable", func(t *testing.T) {
		mr := miniredis.NewMiniRedis()
		require.NoError(t, mr.Start())
		addr := mr.Addr()
		mr.Close()

		b, err := New(&redis.Options{Addr: addr}, "test-instance")
		require.NoError(t, err)

		err = b.Connect(ctx)
		require.Error(t, err)
		assert.False(t, b.Connected())
	})
}

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers events on the coordination channel", func(t *testing.T) {
		b, _ := setupTestBus(t)
		c := &collector{}
		b.Subscribe(EventsChannel("test-instance"), c.handle)
		require.NoError(t, b.Connect(ctx))

		e := workflow.NewEvent(workflow.KindQAPassed, "qa-agent", 12, map[string]any{"checks": float64(3)})
		require.True(t, b.Publish(ctx, e))

		require.Eventually(t, func() bool { return c.len() == 1 }, 2*time.Second, 10*time.Millisecond)

		c.mu.Lock()
		defer c.mu.Unlock()
		assert.Equal(t, e, c.events[0])
	})

	t.Run("subscribe after connect takes effect immediately", func(t *testing.T) {
		b, _ := setupTestBus(t)
		require.NoError(t, b.Connect(ctx))

		c := &collector{}
		b.Subscribe(AgentChannel("test-instance", "qa-agent"), c.handle)

		// The dynamic SUBSCRIBE needs a moment to reach the server.
		require.Eventually(t, func() bool {
			ok := b.PublishTo(ctx, AgentChannel("test-instance", "qa-agent"),
				workflow.NewEvent(workflow.KindAgentStarted, "qa-agent", 0, nil))
			return ok && c.len() > 0
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("preserves publish order from a single publisher", func(t *testing.T) {
		b, _ := setupTestBus(t)
		c := &collector{}
		b.Subscribe(EventsChannel("test-instance"), c.handle)
		require.NoError(t, b.Connect(ctx))

		sequence := []workflow.Kind{
			workflow.KindAgentStarted,
			workflow.KindStatusChanged,
			workflow.KindCodeGenerated,
			workflow.KindCodeCommitted,
			workflow.KindAgentStopped,
		}
		for _, k := range sequence {
			require.True(t, b.Publish(ctx, workflow.NewEvent(k, "backend-agent", 1, nil)))
		}

		require.Eventually(t, func() bool { return c.len() == len(sequence) }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, sequence, c.kinds())
	})

	t.Run("drops malformed messages without crashing delivery", func(t *testing.T) {
		b, mr := setupTestBus(t)
		c := &collector{}
		b.Subscribe(EventsChannel("test-instance"), c.handle)
		require.NoError(t, b.Connect(ctx))

		mr.Publish(EventsChannel("test-instance"), "{not an event")
		require.True(t, b.Publish(ctx, workflow.NewEvent(workflow.KindQAFailed, "qa-agent", 2, nil)))

		require.Eventually(t, func() bool { return c.len() == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, []workflow.Kind{workflow.KindQAFailed}, c.kinds())
	})
}

func TestPublishFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("returns false before connect", func(t *testing.T) {
		b, _ := setupTestBus(t)
		ok := b.Publish(ctx, workflow.NewEvent(workflow.KindAgentError, "qa-agent", 0, nil))
		assert.False(t, ok)
	})

	t.Run("returns false after disconnect", func(t *testing.T) {
		b, _ := setupTestBus(t)
		require.NoError(t, b.Connect(ctx))
		require.NoError(t, b.Disconnect())

		ok := b.Publish(ctx, workflow.NewEvent(workflow.KindAgentError, "qa-agent", 0, nil))
		assert.False(t, ok)
	})

	t.Run("returns false for an event outside the kind enumeration", func(t *testing.T) {
		b, _ := setupTestBus(t)
		require.NoError(t, b.Connect(ctx))

		bad := workflow.NewEvent(workflow.Kind("nonsense"), "qa-agent", 0, nil)
		assert.False(t, b.Publish(ctx, bad))
	})
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("is a no-op when not connected", func(t *testing.T) {
		b, _ := setupTestBus(t)
		require.NoError(t, b.Disconnect())
	})

	t.Run("no callbacks fire after disconnect returns", func(t *testing.T) {
		b, mr := setupTestBus(t)
		c := &collector{}
		b.Subscribe(EventsChannel("test-instance"), c.handle)
		require.NoError(t, b.Connect(ctx))
		require.NoError(t, b.Disconnect())

		// Raw publish directly through the server; the bus must not see it.
		mr.Publish(EventsChannel("test-instance"),
			`{"event_type":"qa_passed","agent_name":"qa-agent","timestamp":"2026-01-01T00:00:00Z"}`)

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 0, c.len())
	})
}

func TestReconnectResubscribes(t *testing.T) {
	ctx := context.Background()

	b, _ := setupTestBus(t)
	c := &collector{}
	b.Subscribe(EventsChannel("test-instance"), c.handle)

	require.NoError(t, b.Connect(ctx))
	require.NoError(t, b.Disconnect())

	// Subscriptions are client-side durable: a fresh Connect must restore
	// delivery without re-registering.
	require.NoError(t, b.Connect(ctx))

	require.True(t, b.Publish(ctx, workflow.NewEvent(workflow.KindStatusChanged, "backend-agent", 4, nil)))
	require.Eventually(t, func() bool { return c.len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "warren:prod:events", EventsChannel("prod"))
	assert.Equal(t, "warren:prod:agent:qa-agent:events", AgentChannel("prod", "qa-agent"))
}
