package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_events_published_total",
		Help: "Domain events published to the bus, by kind",
	}, []string{"kind"})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tally_events_dropped_total",
		Help: "Domain events dropped because the bus buffer was full",
	})

	subscriberFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_events_subscriber_failures_total",
		Help: "Subscriber handler failures, by subscriber name",
	}, []string{"subscriber"})
)

// Subscriber consumes domain events. Handlers must be safe to call from the
// dispatcher goroutine; a returned error is logged and counted but never
// propagated to the publisher.
//
//go:generate mockgen -source=bus.go -destination=mocks/mocks.go -package=mocks Subscriber
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, event Event) error
}

// Bus routes domain events to an ordered list of subscribers per kind.
// Subscribers registered first are invoked first; delivery within one event
// is sequential so subscriber ordering is deterministic.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]Subscriber
	inbox  chan Event
	logger *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for subscriber failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithBuffer overrides the inbox buffer size.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.inbox = make(chan Event, n)
		}
	}
}

const defaultBuffer = 1024

// NewBus constructs an event bus. Call Run to start dispatching.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:  make(map[Kind][]Subscriber),
		inbox: make(chan Event, defaultBuffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Subscribe appends sub to the ordered list for kind. Registration happens at
// wiring time, before Run; concurrent registration is still safe.
func (b *Bus) Subscribe(kind Kind, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], sub)
}

// Publish enqueues an event for asynchronous delivery. It never blocks: when
// the buffer is full the event is dropped and counted, because the ledger's
// critical write path must not wait on subscribers.
func (b *Bus) Publish(event Event) {
	publishedTotal.WithLabelValues(string(event.Kind())).Inc()
	b.wg.Add(1)
	select {
	case b.inbox <- event:
	default:
		b.wg.Done()
		droppedTotal.Inc()
		b.logger.Warn("event bus full, dropping event", "kind", event.Kind())
	}
}

// Run dispatches events until ctx is cancelled. Each event is delivered to
// its subscribers in registration order; a failing or panicking subscriber is
// isolated and never prevents delivery to the rest.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-b.inbox:
			b.dispatch(ctx, event)
			b.wg.Done()
		}
	}
}

// Drain blocks until every published event has been dispatched. Test helper;
// the dispatcher must be running.
func (b *Bus) Drain() {
	b.wg.Wait()
}

func (b *Bus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	subs := b.subs[event.Kind()]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, sub, event)
	}
}

func (b *Bus) deliver(ctx context.Context, sub Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			subscriberFailures.WithLabelValues(sub.Name()).Inc()
			b.logger.Error("event subscriber panicked",
				"subscriber", sub.Name(), "kind", event.Kind(), "panic", r)
		}
	}()

	if err := sub.Handle(ctx, event); err != nil {
		subscriberFailures.WithLabelValues(sub.Name()).Inc()
		b.logger.Error("event subscriber failed",
			"subscriber", sub.Name(), "kind", event.Kind(), "error", err)
	}
}
