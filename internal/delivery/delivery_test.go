package delivery_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/bus"
	"github.com/aristath/tradedesk/internal/delivery"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/store"
	testutil "github.com/aristath/tradedesk/internal/testing"
)

type fakeOutputAdapter struct {
	name    string
	succeed bool
	err     error
}

func (f *fakeOutputAdapter) Name() string { return f.name }

func (f *fakeOutputAdapter) Send(ctx context.Context, signal domain.Signal, memo *domain.InvestmentMemo) (domain.DeliveryResult, error) {
	if f.err != nil {
		return domain.DeliveryResult{}, f.err
	}
	if !f.succeed {
		return domain.DeliveryResult{Success: false, Adapter: f.name, Message: "rejected by destination"}, nil
	}
	return domain.DeliveryResult{Success: true, Adapter: f.name}, nil
}

func (f *fakeOutputAdapter) SendText(ctx context.Context, text string, channelID string) error {
	return nil
}

func newTestSetup(t *testing.T) (*bus.Bus, *store.Store, *registry.Registry) {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "index")
	t.Cleanup(cleanup)

	st, err := store.New(t.TempDir(), db, zerolog.Nop())
	require.NoError(t, err)

	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	reg := registry.New(zerolog.Nop())
	return b, st, reg
}

func approvedSignalEvent(signal domain.Signal) domain.Event {
	payload, _ := json.Marshal(signal)
	var payloadMap map[string]any
	_ = json.Unmarshal(payload, &payloadMap)
	return domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventSignalApproved,
		Timestamp: time.Now().UTC(),
		Source:    "risk_engine",
		Payload:   payloadMap,
	}
}

func TestServiceMarksSignalDeliveredWhenAnyAdapterSucceeds(t *testing.T) {
	b, st, reg := newTestSetup(t)
	reg.Register(registry.KindOutput, &fakeOutputAdapter{name: "telegram", succeed: false})
	reg.Register(registry.KindOutput, &fakeOutputAdapter{name: "discord", succeed: true})

	delivery.NewService(b, st, reg, time.Hour, zerolog.Nop())

	signal := domain.Signal{ID: idgen.Signal(), Ticker: "NVDA", Direction: domain.DirectionBuy, Status: domain.SignalApproved, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.WriteJSON(st, store.KindSignals, signal.ID, signal))

	var delivered []domain.Event
	b.Subscribe(domain.EventSignalDelivered, func(ctx context.Context, e domain.Event) error {
		delivered = append(delivered, e)
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), approvedSignalEvent(signal)))

	require.Len(t, delivered, 1)

	stored, ok, err := store.ReadJSON[domain.Signal](st, store.KindSignals, signal.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SignalDelivered, stored.Status)
	assert.Equal(t, []string{"discord"}, stored.DeliveredVia)
	assert.Equal(t, domain.ConfirmationPending, stored.ConfirmationStatus)
	require.NotNil(t, stored.ConfirmationDueAt)
	assert.Nil(t, stored.ConfirmationReminderSent)
}

func TestServiceRevertsToApprovedWhenAllAdaptersFail(t *testing.T) {
	b, st, reg := newTestSetup(t)
	reg.Register(registry.KindOutput, &fakeOutputAdapter{name: "telegram", succeed: false})

	delivery.NewService(b, st, reg, time.Hour, zerolog.Nop())

	signal := domain.Signal{ID: idgen.Signal(), Ticker: "AAPL", Direction: domain.DirectionSell, Status: domain.SignalApproved, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.WriteJSON(st, store.KindSignals, signal.ID, signal))

	var alerts []domain.Event
	b.Subscribe(domain.EventAlertTriggered, func(ctx context.Context, e domain.Event) error {
		alerts = append(alerts, e)
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), approvedSignalEvent(signal)))

	require.Len(t, alerts, 1)
	assert.Equal(t, "error", alerts[0].Payload["level"])

	stored, ok, err := store.ReadJSON[domain.Signal](st, store.KindSignals, signal.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SignalApproved, stored.Status)
	assert.NotEmpty(t, stored.DeliveryErrors)
}

func TestServiceWithNoOutputAdaptersReportsFailure(t *testing.T) {
	b, st, reg := newTestSetup(t)
	delivery.NewService(b, st, reg, time.Hour, zerolog.Nop())

	signal := domain.Signal{ID: idgen.Signal(), Ticker: "TSLA", Direction: domain.DirectionBuy, Status: domain.SignalApproved, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.WriteJSON(st, store.KindSignals, signal.ID, signal))

	require.NoError(t, b.Publish(context.Background(), approvedSignalEvent(signal)))

	stored, ok, err := store.ReadJSON[domain.Signal](st, store.KindSignals, signal.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SignalApproved, stored.Status)
	assert.Equal(t, []string{"No output adapters configured"}, stored.DeliveryErrors)
}

func TestWatcherSendsReminderForOverduePendingConfirmation(t *testing.T) {
	b, st, _ := newTestSetup(t)

	overdueDue := time.Now().UTC().Add(-time.Minute)
	signal := domain.Signal{
		ID: idgen.Signal(), Ticker: "NVDA", Direction: domain.DirectionBuy,
		Status: domain.SignalDelivered, ConfirmationStatus: domain.ConfirmationPending,
		ConfirmationDueAt: &overdueDue, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.WriteJSON(st, store.KindSignals, signal.ID, signal))

	var outputs []domain.Event
	b.Subscribe(domain.EventIntegrationOutput, func(ctx context.Context, e domain.Event) error {
		outputs = append(outputs, e)
		return nil
	})

	watcher := delivery.NewWatcher(st, b, delivery.WatcherConfig{ScanInterval: 10 * time.Millisecond}, zerolog.Nop())
	watcher.Start(context.Background())
	t.Cleanup(func() { watcher.Stop(time.Second) })

	require.Eventually(t, func() bool { return len(outputs) == 1 }, time.Second, 5*time.Millisecond)

	stored, ok, err := store.ReadJSON[domain.Signal](st, store.KindSignals, signal.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, stored.ConfirmationReminderSent)
}

func TestWatcherSkipsSignalsAlreadyReminded(t *testing.T) {
	b, st, _ := newTestSetup(t)

	overdueDue := time.Now().UTC().Add(-time.Minute)
	alreadySent := time.Now().UTC().Add(-30 * time.Second)
	signal := domain.Signal{
		ID: idgen.Signal(), Ticker: "NVDA", Direction: domain.DirectionBuy,
		Status: domain.SignalDelivered, ConfirmationStatus: domain.ConfirmationPending,
		ConfirmationDueAt: &overdueDue, ConfirmationReminderSent: &alreadySent, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.WriteJSON(st, store.KindSignals, signal.ID, signal))

	var outputs []domain.Event
	b.Subscribe(domain.EventIntegrationOutput, func(ctx context.Context, e domain.Event) error {
		outputs = append(outputs, e)
		return nil
	})

	watcher := delivery.NewWatcher(st, b, delivery.WatcherConfig{ScanInterval: 10 * time.Millisecond}, zerolog.Nop())
	watcher.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	watcher.Stop(time.Second)

	assert.Empty(t, outputs)
}
