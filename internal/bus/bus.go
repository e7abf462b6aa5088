// Package bus implements the in-process event bus: typed publish/subscribe
// with per-day append-only audit persistence and fan-out dispatch. It is
// grounded on the teacher's cron/job-runner fire-and-log pattern
// (internal/scheduler/scheduler.go) and on the reference Python AsyncIOBus.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/protocols"
)

// Bus is the default EventBus implementation: in-process fan-out with a
// JSONL audit log keyed by UTC date.
type Bus struct {
	log       zerolog.Logger
	eventsDir string

	mu          sync.RWMutex
	subscribers map[domain.EventType]map[uint64]protocols.EventHandler
	nextID      uint64

	auditMu sync.Mutex
}

// New creates a Bus that persists its audit log under eventsDir.
func New(eventsDir string, log zerolog.Logger) (*Bus, error) {
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	return &Bus{
		log:         log.With().Str("component", "bus").Logger(),
		eventsDir:   eventsDir,
		subscribers: make(map[domain.EventType]map[uint64]protocols.EventHandler),
	}, nil
}

// Name returns the bus's plugin-registry name.
func (b *Bus) Name() string { return "inprocess_bus" }

// Publish appends the event to today's audit log, then dispatches it
// concurrently to every exact-type subscriber and every wildcard subscriber.
// Publish returns once all handlers have completed, successfully or not;
// handler failures are isolated and never surface to the caller.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	persistErr := b.persist(event)
	if persistErr != nil {
		b.log.Error().Err(persistErr).Str("event_id", event.ID).Msg("failed to persist event to audit log")
	}

	handlers := b.collectHandlers(event.Type)
	if len(handlers) == 0 {
		b.log.Debug().Str("type", string(event.Type)).Msg("no subscribers for event type")
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for _, h := range handlers {
		h := h
		go func() {
			defer wg.Done()
			b.safeInvoke(ctx, h, event)
		}()
	}
	wg.Wait()
	return nil
}

func (b *Bus) collectHandlers(eventType domain.EventType) []protocols.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []protocols.EventHandler
	for _, h := range b.subscribers[eventType] {
		out = append(out, h)
	}
	if eventType != domain.EventWildcard {
		for _, h := range b.subscribers[domain.EventWildcard] {
			out = append(out, h)
		}
	}
	return out
}

func (b *Bus) safeInvoke(ctx context.Context, handler protocols.EventHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("type", string(event.Type)).
				Str("correlation_id", event.CorrelationID).
				Msg("event handler panicked")
		}
	}()

	if err := handler(ctx, event); err != nil {
		b.log.Error().
			Err(err).
			Str("type", string(event.Type)).
			Str("correlation_id", event.CorrelationID).
			Msg("event handler returned an error")
	}
}

// Subscribe registers callback for events of the given type. Passing
// domain.EventWildcard subscribes to all events. Duplicate subscriptions for
// the same type are allowed; each is a distinct delivery.
func (b *Bus) Subscribe(eventType domain.EventType, callback protocols.EventHandler) protocols.Subscription {
	id := atomic.AddUint64(&b.nextID, 1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[uint64]protocols.EventHandler)
	}
	b.subscribers[eventType][id] = callback

	return protocols.Subscription{EventType: eventType, ID: id}
}

// Unsubscribe removes the exact registration identified by sub. It is a
// no-op if the registration is already gone.
func (b *Bus) Unsubscribe(sub protocols.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.subscribers[sub.EventType]; ok {
		delete(m, sub.ID)
	}
}

// SubscriberCount returns the number of registered handlers, optionally
// filtered to a single event type.
func (b *Bus) SubscriberCount(eventType *domain.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if eventType == nil {
		total := 0
		for _, m := range b.subscribers {
			total += len(m)
		}
		return total
	}
	return len(b.subscribers[*eventType])
}

func (b *Bus) persist(event domain.Event) error {
	b.auditMu.Lock()
	defer b.auditMu.Unlock()

	day := event.Timestamp.UTC().Format("2006-01-02")
	path := filepath.Join(b.eventsDir, day+".jsonl")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log %s: %w", path, err)
	}
	defer f.Close()

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit log %s: %w", path, err)
	}
	return nil
}
