package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Event is a published fact: a namespaced topic, its payload and the moment
// it was emitted. The topic travels with the event so wildcard subscribers
// can tell events apart.
type Event struct {
	Topic      string
	Payload    any
	OccurredAt time.Time
}

// Handler consumes a single event. A returned error (or panic) is logged and
// isolated; it never reaches the publisher or sibling handlers.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	topic     string
	handler   Handler
	priority  int
	filter    func(Event) bool
	remaining int // negative means unlimited
	seq       uint64
}

// SubOption customises a subscription.
type SubOption func(*subscription)

// WithPriority orders handlers for the same topic: higher priorities run
// first. The default priority is zero.
func WithPriority(p int) SubOption {
	return func(s *subscription) { s.priority = p }
}

// WithFilter skips delivery for events the predicate rejects. Skipped
// deliveries do not consume a WithMaxCalls budget.
func WithFilter(f func(Event) bool) SubOption {
	return func(s *subscription) { s.filter = f }
}

// WithMaxCalls removes the subscription after n deliveries.
func WithMaxCalls(n int) SubOption {
	return func(s *subscription) { s.remaining = n }
}

// Options configures a Bus instance.
type Options struct {
	Logger zerolog.Logger
	// HistoryCapacity bounds the in-memory event history; older entries are
	// evicted FIFO. Defaults to 128.
	HistoryCapacity int
	// StrictValidation rejects publishes whose payload fails the registered
	// schema instead of logging a warning.
	StrictValidation bool
	Metrics          *Metrics
}

// Bus is an in-process publish/subscribe hub with synchronous-awaited
// fan-out, wildcard subscribers, priority ordering and bounded history.
// A Bus is safe for concurrent use; instances are passed by dependency
// injection, there is no package-level registry.
type Bus struct {
	logger   zerolog.Logger
	validate *validator.Validate
	strict   bool
	capacity int
	metrics  *Metrics

	mu      sync.Mutex
	seq     uint64
	subs    map[string][]*subscription
	schemas map[string]reflect.Type
	history []Event
}

// NewBus constructs an empty bus.
func NewBus(opts Options) *Bus {
	capacity := opts.HistoryCapacity
	if capacity <= 0 {
		capacity = 128
	}
	return &Bus{
		logger:   opts.Logger,
		validate: validator.New(),
		strict:   opts.StrictValidation,
		capacity: capacity,
		metrics:  opts.Metrics,
		subs:     make(map[string][]*subscription),
		schemas:  make(map[string]reflect.Type),
	}
}

// RegisterSchema associates a payload prototype with a topic. Subsequent
// publishes on the topic are validated against the prototype's struct tags.
func (b *Bus) RegisterSchema(topic string, prototype any) {
	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return
	}
	b.mu.Lock()
	b.schemas[topic] = t
	b.mu.Unlock()
}

// Subscribe registers a handler for the topic (or TopicWildcard for all
// topics) and returns an unsubscribe function. Unsubscribing twice is a
// no-op.
func (b *Bus) Subscribe(topic string, h Handler, opts ...SubOption) (func(), error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("events: topic is required")
	}
	if h == nil {
		return nil, errors.New("events: handler is required")
	}
	sub := &subscription{topic: topic, handler: h, remaining: -1}
	for _, opt := range opts {
		opt(sub)
	}
	if sub.remaining == 0 {
		return nil, errors.New("events: max calls must be positive")
	}
	b.mu.Lock()
	sub.seq = b.seq
	b.seq++
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	return func() { b.remove(sub) }, nil
}

// SubscribeOnce registers a handler that is removed after its first delivery.
func (b *Bus) SubscribeOnce(topic string, h Handler, opts ...SubOption) (func(), error) {
	return b.Subscribe(topic, h, append(opts, WithMaxCalls(1))...)
}

// Publish delivers the event to all matching subscribers and awaits their
// completion. Handlers for the topic run before wildcard handlers, in
// descending priority order; handlers sharing a priority run concurrently.
// Handler failures are logged and isolated. The returned error covers only
// publisher-side problems (bad topic, strict-validation rejection).
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	topic = strings.TrimSpace(topic)
	if topic == "" || topic == TopicWildcard {
		return errors.New("events: topic is required")
	}
	ev := Event{Topic: topic, Payload: payload, OccurredAt: time.Now().UTC()}
	if err := b.checkSchema(ev); err != nil {
		return err
	}
	batches := b.prepare(ev)
	if b.metrics != nil {
		b.metrics.PublishedTotal.WithLabelValues(topic).Inc()
	}
	for _, batch := range batches {
		b.runBatch(ctx, ev, batch)
	}
	return nil
}

// PublishAsync fires the event without awaiting handler completion. Failures
// are logged, never surfaced to the caller.
func (b *Bus) PublishAsync(ctx context.Context, topic string, payload any) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := b.Publish(detached, topic, payload); err != nil {
			b.logger.Warn().Err(err).Str("topic", topic).Msg("async publish rejected")
		}
	}()
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// Reset clears all subscriptions and history. Intended for process
// boundaries such as test teardown, never mid-flight.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]*subscription)
	b.history = nil
}

// checkSchema validates the payload against the registered prototype for the
// topic. Mismatches are warnings by default: best-effort typing, not
// enforcement. StrictValidation turns them into publish errors.
func (b *Bus) checkSchema(ev Event) error {
	b.mu.Lock()
	want, ok := b.schemas[ev.Topic]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	problem := b.schemaProblem(ev, want)
	if problem == nil {
		return nil
	}
	if b.strict {
		return fmt.Errorf("events: payload for %s rejected: %w", ev.Topic, problem)
	}
	b.logger.Warn().Err(problem).Str("topic", ev.Topic).Msg("event payload failed schema validation")
	return nil
}

func (b *Bus) schemaProblem(ev Event, want reflect.Type) error {
	if ev.Payload == nil {
		return errors.New("payload is nil")
	}
	got := reflect.TypeOf(ev.Payload)
	for got.Kind() == reflect.Pointer {
		got = got.Elem()
	}
	if got != want {
		return fmt.Errorf("payload type %s does not match registered schema %s", got, want)
	}
	if err := b.validate.Struct(ev.Payload); err != nil {
		return err
	}
	return nil
}

// prepare appends the event to history and snapshots the handlers to run,
// grouped into priority batches, all under one lock acquisition.
func (b *Bus) prepare(ev Event) [][]*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) >= b.capacity {
		drop := len(b.history) - b.capacity + 1
		b.history = append(b.history[:0], b.history[drop:]...)
	}
	b.history = append(b.history, ev)

	selected := b.selectLocked(ev.Topic, ev)
	wild := b.selectLocked(TopicWildcard, ev)
	return append(groupByPriority(selected), groupByPriority(wild)...)
}

// selectLocked picks runnable subscriptions for a topic, consuming max-call
// budgets and pruning exhausted entries. Caller holds b.mu.
func (b *Bus) selectLocked(topic string, ev Event) []*subscription {
	list := b.subs[topic]
	if len(list) == 0 {
		return nil
	}
	selected := make([]*subscription, 0, len(list))
	kept := list[:0]
	for _, sub := range list {
		if sub.filter != nil && !sub.filter(ev) {
			kept = append(kept, sub)
			continue
		}
		if sub.remaining == 0 {
			continue
		}
		if sub.remaining > 0 {
			sub.remaining--
		}
		selected = append(selected, sub)
		if sub.remaining != 0 {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, topic)
	} else {
		b.subs[topic] = kept
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].priority != selected[j].priority {
			return selected[i].priority > selected[j].priority
		}
		return selected[i].seq < selected[j].seq
	})
	return selected
}

func groupByPriority(subs []*subscription) [][]*subscription {
	var batches [][]*subscription
	for i := 0; i < len(subs); {
		j := i + 1
		for j < len(subs) && subs[j].priority == subs[i].priority {
			j++
		}
		batches = append(batches, subs[i:j])
		i = j
	}
	return batches
}

// runBatch executes one priority level concurrently and awaits settlement.
// There is no cancellation of an in-flight handler; a caller may time out on
// ctx inside its own handler but cannot abort siblings.
func (b *Bus) runBatch(ctx context.Context, ev Event, batch []*subscription) {
	var wg sync.WaitGroup
	for _, sub := range batch {
		wg.Add(1)
		go func(sub *subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.handlerFailed(ev, fmt.Errorf("panic: %v", r))
				}
			}()
			if err := sub.handler(ctx, ev); err != nil {
				b.handlerFailed(ev, err)
			}
		}(sub)
	}
	wg.Wait()
}

func (b *Bus) handlerFailed(ev Event, err error) {
	if b.metrics != nil {
		b.metrics.HandlerFailuresTotal.WithLabelValues(ev.Topic).Inc()
	}
	b.logger.Error().Err(err).Str("topic", ev.Topic).Msg("event handler failed")
}

func (b *Bus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[target.topic]
	for i, sub := range list {
		if sub == target {
			b.subs[target.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[target.topic]) == 0 {
		delete(b.subs, target.topic)
	}
}
