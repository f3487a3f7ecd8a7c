// Package bus implements the coordination event transport on Redis Pub/Sub.
//
// The bus is deliberately unreliable by contract: delivery is best-effort
// at-least-once, Publish reports failure as a boolean rather than an error
// that could abort a caller's workflow, and a lost event is a monitoring gap
// rather than a correctness problem - all durable workflow state lives in
// the tracker's labels.
//
// Subscriptions are a client-side durable list. Connect re-establishes every
// registered subscription, so a Disconnect/Connect cycle (or a transport
// drop, which go-redis heals internally) never silently loses a topic.
package bus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/warrenhq/warren/pkg/workflow"
)

// Handler is a subscription callback. Handlers run on the bus's single
// dispatch goroutine, so delivery from one publisher on one topic is FIFO.
// A slow handler delays all delivery; handlers must not block indefinitely.
type Handler func(*workflow.Event)

// Bus is a publish/subscribe client for coordination events.
// All methods are safe for concurrent use.
type Bus struct {
	opts     *redis.Options
	instance string

	mu        sync.Mutex
	rdb       *redis.Client
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	connected bool
	subs      map[string][]Handler

	wg sync.WaitGroup
}

// New creates a bus for the given instance. The connection is not
// established until Connect is called.
func New(opts *redis.Options, instanceName string) (*Bus, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	// Distinct client name per bus so instances are tellable apart in
	// CLIENT LIST when debugging a shared Redis.
	opts.ClientName = fmt.Sprintf("warren-%s-%s", instanceName, uuid.New().String()[:8])

	return &Bus{
		opts:     opts,
		instance: instanceName,
		subs:     make(map[string][]Handler),
	}, nil
}

// Instance returns the instance name this bus is scoped to.
func (b *Bus) Instance() string {
	return b.instance
}

// Connected reports whether the transport session is currently established.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Connect establishes the transport session and re-subscribes every topic in
// the client-side subscription list. Calling Connect while already connected
// is a no-op. The error return is for callers that cannot function without a
// bus at all (agent startup); transport errors after Connect never surface
// as errors from Publish.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return nil
	}

	rdb := redis.NewClient(b.opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}

	topics := make([]string, 0, len(b.subs))
	for topic := range b.subs {
		topics = append(topics, topic)
	}

	pubsub := rdb.Subscribe(ctx, topics...)

	dispatchCtx, cancel := context.WithCancel(context.Background())
	b.rdb = rdb
	b.pubsub = pubsub
	b.cancel = cancel
	b.connected = true

	b.wg.Add(1)
	go b.dispatch(dispatchCtx, pubsub)

	log.Printf("[INFO] Event bus connected: instance=%s topics=%d", b.instance, len(topics))
	return nil
}

// Disconnect releases the transport. After Disconnect returns, no further
// Publish succeeds and no subscription callback fires. The subscription list
// survives, so a later Connect restores delivery. Safe to call when already
// disconnected.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	cancel := b.cancel
	pubsub := b.pubsub
	rdb := b.rdb
	b.pubsub = nil
	b.rdb = nil
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	pubsub.Close()
	// Wait for the dispatch goroutine so no callback fires after we return.
	b.wg.Wait()

	err := rdb.Close()
	log.Printf("[INFO] Event bus disconnected: instance=%s", b.instance)
	return err
}

// Publish sends an event to the instance's well-known coordination channel.
// Returns false (never an error) when the bus is disconnected or the
// transport rejects the send; callers treat a failed publish as non-fatal.
func (b *Bus) Publish(ctx context.Context, e *workflow.Event) bool {
	return b.PublishTo(ctx, EventsChannel(b.instance), e)
}

// PublishTo sends an event to a specific topic. Same failure semantics as
// Publish.
func (b *Bus) PublishTo(ctx context.Context, topic string, e *workflow.Event) bool {
	data, err := workflow.MarshalEvent(e)
	if err != nil {
		log.Printf("[ERROR] Refusing to publish malformed event: %v", err)
		return false
	}

	b.mu.Lock()
	rdb := b.rdb
	connected := b.connected
	b.mu.Unlock()

	if !connected {
		log.Printf("[WARN] Event bus not connected, dropping event: kind=%s topic=%s", e.Kind, topic)
		return false
	}

	if err := rdb.Publish(ctx, topic, data).Err(); err != nil {
		log.Printf("[ERROR] Failed to publish event: kind=%s topic=%s error=%v", e.Kind, topic, err)
		return false
	}

	return true
}

// Subscribe registers a callback for a topic. The registration is durable
// across Disconnect/Connect cycles. When the bus is already connected the
// topic subscription takes effect immediately.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[topic] = append(b.subs[topic], h)

	if b.connected {
		if err := b.pubsub.Subscribe(context.Background(), topic); err != nil {
			// The registration is kept; the topic will be picked up on the
			// next Connect.
			log.Printf("[ERROR] Failed to subscribe to topic %s: %v", topic, err)
		}
	}
}

// dispatch is the single delivery goroutine. Reading from one goroutine
// preserves per-publisher FIFO ordering on each topic. Malformed messages
// are logged and dropped; they never crash a subscriber.
func (b *Bus) dispatch(ctx context.Context, pubsub *redis.PubSub) {
	defer b.wg.Done()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			event, err := workflow.UnmarshalEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("[WARN] Dropping malformed bus message on %s: %v", msg.Channel, err)
				continue
			}

			b.mu.Lock()
			handlers := make([]Handler, len(b.subs[msg.Channel]))
			copy(handlers, b.subs[msg.Channel])
			b.mu.Unlock()

			for _, h := range handlers {
				h(event)
			}
		}
	}
}
