package bus

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
)

func newTestBus(t *testing.T) (*Bus, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := New(dir, zerolog.Nop())
	require.NoError(t, err)
	return b, dir
}

func TestPublishDispatchesToExactTypeSubscribers(t *testing.T) {
	b, _ := newTestBus(t)

	var received int32
	b.Subscribe(domain.EventSignalProposed, func(ctx context.Context, e domain.Event) error {
		atomic.AddInt32(&received, 1)
		return nil
	})

	err := b.Publish(context.Background(), domain.Event{
		ID:        "evt_1",
		Type:      domain.EventSignalProposed,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&received))
}

func TestPublishDispatchesToWildcardSubscribers(t *testing.T) {
	b, _ := newTestBus(t)

	var calls int32
	b.Subscribe(domain.EventWildcard, func(ctx context.Context, e domain.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	_ = b.Publish(context.Background(), domain.Event{ID: "evt_1", Type: domain.EventTaskCreated, Timestamp: time.Now().UTC()})
	_ = b.Publish(context.Background(), domain.Event{ID: "evt_2", Type: domain.EventMemoCreated, Timestamp: time.Now().UTC()})

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHandlerFailureIsolation(t *testing.T) {
	b, _ := newTestBus(t)

	var goodCalled, panicked bool
	var mu sync.Mutex

	b.Subscribe(domain.EventMemoryCreated, func(ctx context.Context, e domain.Event) error {
		panic("boom")
	})
	b.Subscribe(domain.EventMemoryCreated, func(ctx context.Context, e domain.Event) error {
		mu.Lock()
		goodCalled = true
		mu.Unlock()
		return nil
	})

	err := b.Publish(context.Background(), domain.Event{ID: "evt_1", Type: domain.EventMemoryCreated, Timestamp: time.Now().UTC()})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, goodCalled, "a panicking handler must not prevent other handlers from completing")
	_ = panicked
}

func TestUnsubscribeRemovesExactRegistration(t *testing.T) {
	b, _ := newTestBus(t)

	var calls int32
	sub := b.Subscribe(domain.EventTaskCreated, func(ctx context.Context, e domain.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	b.Unsubscribe(sub)

	_ = b.Publish(context.Background(), domain.Event{ID: "evt_1", Type: domain.EventTaskCreated, Timestamp: time.Now().UTC()})
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))

	// Unsubscribing again, or unsubscribing an unknown registration, is a no-op.
	b.Unsubscribe(sub)
}

func TestPublishAppendsToTodaysAuditLog(t *testing.T) {
	b, dir := newTestBus(t)

	now := time.Now().UTC()
	event := domain.Event{ID: "evt_audit", Type: domain.EventSignalApproved, Timestamp: now, CorrelationID: "corr_1"}
	require.NoError(t, b.Publish(context.Background(), event))

	path := filepath.Join(dir, now.Format("2006-01-02")+".jsonl")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(raw[:len(raw)-1], &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.CorrelationID, decoded.CorrelationID)
}

func TestSubscriberCount(t *testing.T) {
	b, _ := newTestBus(t)
	b.Subscribe(domain.EventTaskCreated, func(ctx context.Context, e domain.Event) error { return nil })
	b.Subscribe(domain.EventTaskCreated, func(ctx context.Context, e domain.Event) error { return nil })
	b.Subscribe(domain.EventWildcard, func(ctx context.Context, e domain.Event) error { return nil })

	taskCreated := domain.EventTaskCreated
	assert.Equal(t, 2, b.SubscriberCount(&taskCreated))
	assert.Equal(t, 3, b.SubscriberCount(nil))
}
