package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/store"
)

// WatcherConfig configures a PendingConfirmationWatcher.
type WatcherConfig struct {
	ScanInterval time.Duration // default 5m
}

// PendingConfirmationWatcher periodically scans delivered signals for ones
// whose confirmation window has elapsed without a reminder being sent, and
// nudges the user through the integration output channel. Grounded on
// original_source/engine/pending_confirmation.py.
type PendingConfirmationWatcher struct {
	store    *store.Store
	bus      protocols.EventBus
	interval time.Duration
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a PendingConfirmationWatcher. It must be started
// explicitly with Start.
func NewWatcher(st *store.Store, bus protocols.EventBus, cfg WatcherConfig, log zerolog.Logger) *PendingConfirmationWatcher {
	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PendingConfirmationWatcher{
		store:    st,
		bus:      bus,
		interval: interval,
		log:      log.With().Str("component", "pending_confirmation_watcher").Logger(),
	}
}

// Start begins the background scan loop.
func (w *PendingConfirmationWatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.scan(runCtx)
			}
		}
	}()

	w.log.Info().Dur("interval", w.interval).Msg("pending confirmation watcher started")
}

// Stop cancels the scan loop and waits up to grace for the in-flight scan
// (if any) to finish.
func (w *PendingConfirmationWatcher) Stop(grace time.Duration) {
	if w.cancel == nil {
		return
	}
	w.cancel()

	select {
	case <-w.done:
	case <-time.After(grace):
		w.log.Warn().Msg("pending confirmation watcher did not stop within grace period")
	}
	w.log.Info().Msg("pending confirmation watcher stopped")
}

func (w *PendingConfirmationWatcher) scan(ctx context.Context) {
	signals, err := store.ListJSON[domain.Signal](w.store, store.KindSignals)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to list signals")
		return
	}

	now := time.Now().UTC()
	for _, signal := range signals {
		if !w.isOverdue(signal, now) {
			continue
		}
		if err := w.remind(ctx, signal, now); err != nil {
			w.log.Error().Err(err).Str("signal_id", signal.ID).Msg("failed to send confirmation reminder")
		}
	}
}

func (w *PendingConfirmationWatcher) isOverdue(signal domain.Signal, now time.Time) bool {
	if signal.Status != domain.SignalDelivered {
		return false
	}
	if signal.ConfirmationStatus != domain.ConfirmationPending {
		return false
	}
	if signal.ConfirmationReminderSent != nil {
		return false
	}
	if signal.ConfirmationDueAt == nil {
		return false
	}
	return !now.Before(*signal.ConfirmationDueAt)
}

func (w *PendingConfirmationWatcher) remind(ctx context.Context, signal domain.Signal, now time.Time) error {
	text := fmt.Sprintf(
		"Reminder: the %s signal on %s proposed at %s is still awaiting confirmation. Reply to confirm, skip, or report what you actually did.",
		signal.Direction, signal.Ticker, signal.CreatedAt.Format(time.RFC3339),
	)

	event := domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventIntegrationOutput,
		Source:    "pending_confirmation_watcher",
		Timestamp: now,
		Payload: map[string]any{
			"text":      text,
			"signal_id": signal.ID,
		},
	}
	if err := w.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish confirmation reminder: %w", err)
	}

	signal.ConfirmationReminderSent = &now
	if err := store.WriteJSON(w.store, store.KindSignals, signal.ID, signal); err != nil {
		return fmt.Errorf("persist reminder sent timestamp: %w", err)
	}
	return nil
}
