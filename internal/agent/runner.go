// Package agent provides the shared runtime that hosts a role: lifecycle,
// the tracker poll loop, the in-flight guard, and failure isolation. Roles
// supply the per-item behavior through the Strategy interface and never touch
// lifecycle or scheduling themselves.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warrenhq/warren/internal/tracker"
	"github.com/warrenhq/warren/pkg/workflow"
)

// defaultPollInterval is used when the configuration does not set one.
const defaultPollInterval = 30 * time.Second

// Strategy is the role-specific behavior hosted by a Runner.
type Strategy interface {
	// Name identifies the agent in events and logs.
	Name() string

	// Ready is the status whose items this role picks up.
	Ready() workflow.Status

	// Process handles one claimed item. An error (or panic) aborts only this
	// item's cycle; the item keeps its current status and is retried on a
	// later poll.
	Process(ctx context.Context, item *tracker.Item) error
}

// EventBus is the bus surface the runner needs. *bus.Bus satisfies it; tests
// use fakes.
type EventBus interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, e *workflow.Event) bool
	Disconnect() error
}

// ItemSource is the tracker surface the poll loop needs.
type ItemSource interface {
	ListItems(ctx context.Context, state string, labels []string) ([]tracker.Item, error)
}

// Runner hosts one role. It polls the tracker for items in the role's ready
// status and hands each to the strategy, at most once concurrently per item.
type Runner struct {
	strategy     Strategy
	items        ItemSource
	bus          EventBus
	pollInterval time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight map[int]struct{}

	workers sync.WaitGroup
}

// NewRunner creates a stopped runner. A non-positive poll interval falls back
// to the default.
func NewRunner(strategy Strategy, items ItemSource, bus EventBus, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Runner{
		strategy:     strategy,
		items:        items,
		bus:          bus,
		pollInterval: pollInterval,
		inFlight:     make(map[int]struct{}),
	}
}

// Running reports whether the runner is between Start and Stop.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start connects the bus, announces the agent, and launches the poll loop.
// The agent does not start without a bus: startup visibility is the one place
// bus failure is fatal. Calling Start while running is a no-op.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	if err := r.bus.Connect(ctx); err != nil {
		return fmt.Errorf("agent %s failed to start: %w", r.strategy.Name(), err)
	}

	r.bus.Publish(ctx, workflow.NewEvent(workflow.KindAgentStarted, r.strategy.Name(), 0, nil))

	// The loop's lifetime is governed by Stop, not by the Start context.
	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(loopCtx, r.done)

	log.Printf("[INFO] Agent started: name=%s ready=%s interval=%s",
		r.strategy.Name(), r.strategy.Ready(), r.pollInterval)
	return nil
}

// Stop wakes the poll loop immediately and waits for in-flight item
// processing to run to completion before announcing the shutdown and
// disconnecting the bus. Calling Stop while stopped is a no-op.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	cancel()
	<-done

	r.bus.Publish(context.Background(), workflow.NewEvent(workflow.KindAgentStopped, r.strategy.Name(), 0, nil))
	err := r.bus.Disconnect()

	log.Printf("[INFO] Agent stopped: name=%s", r.strategy.Name())
	return err
}

// loop polls until cancelled. The first poll happens immediately so a fresh
// agent does not sit idle for a full interval. done is closed only after all
// in-flight item processing has finished.
func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		r.pollOnce(ctx)

		select {
		case <-ctx.Done():
			r.workers.Wait()
			return
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context) {
	ready := r.strategy.Ready()

	// Fresh items carry no status label yet and still count as new, so the
	// new status polls unfiltered and selects by derived status. Every other
	// status maps to exactly one label.
	var wanted []string
	if ready != workflow.StatusNew {
		label, err := workflow.LabelFor(ready)
		if err != nil {
			log.Printf("[ERROR] Agent %s has an invalid ready status: %v", r.strategy.Name(), err)
			return
		}
		wanted = []string{label}
	}

	items, err := r.items.ListItems(ctx, "open", wanted)
	if err != nil {
		// Poll failures are transient by assumption; the next tick retries.
		log.Printf("[WARN] Agent %s poll failed: %v", r.strategy.Name(), err)
		return
	}

	// Claimed items run to completion: cancellation ends the polling wait,
	// not an in-progress item's tracker or generation calls.
	workCtx := context.WithoutCancel(ctx)

	for _, item := range items {
		if workflow.StatusFromLabels(item.Labels) != ready {
			continue
		}
		if !r.claim(item.Number) {
			continue
		}

		r.workers.Add(1)
		go func(item tracker.Item) {
			defer r.workers.Done()
			defer r.release(item.Number)
			r.processItem(workCtx, &item)
		}(item)
	}
}

// processItem runs the strategy on one item, converting both errors and
// panics into an AGENT_ERROR event so one bad item never takes the loop down.
func (r *Runner) processItem(ctx context.Context, item *tracker.Item) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[ERROR] Agent %s panicked on item #%d: %v", r.strategy.Name(), item.Number, rec)
			r.bus.Publish(ctx, workflow.NewEvent(workflow.KindAgentError, r.strategy.Name(), item.Number,
				map[string]any{"error": fmt.Sprintf("panic: %v", rec)}))
		}
	}()

	log.Printf("[INFO] Agent %s processing item #%d: %s", r.strategy.Name(), item.Number, item.Title)

	if err := r.strategy.Process(ctx, item); err != nil {
		log.Printf("[ERROR] Agent %s failed on item #%d: %v", r.strategy.Name(), item.Number, err)
		r.bus.Publish(ctx, workflow.NewEvent(workflow.KindAgentError, r.strategy.Name(), item.Number,
			map[string]any{"error": err.Error()}))
	}
}

// claim marks an item as in flight. Returns false when the item is already
// being processed, which is how overlapping polls avoid double work.
func (r *Runner) claim(number int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[number]; busy {
		return false
	}
	r.inFlight[number] = struct{}{}
	return true
}

func (r *Runner) release(number int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, number)
}
