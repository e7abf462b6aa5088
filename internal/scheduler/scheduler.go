// Package scheduler reads Task records from the Store and fires the
// handlers whose due predicate matches, on a fixed tick interval. It is
// grounded on original_source/scheduler/runner.go's Scheduler and on the
// teacher's goroutine-plus-context start/stop convention seen throughout
// cmd/server/main.go.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/protocols"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/store"
)

// Scheduler fires due Tasks on a fixed check interval, evaluated in a
// configured timezone.
type Scheduler struct {
	store    *store.Store
	bus      protocols.EventBus
	registry *registry.Registry
	interval time.Duration
	location *time.Location
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures a Scheduler.
type Config struct {
	CheckInterval time.Duration // default 60s
	Timezone      string        // IANA name, default "UTC"
}

// New creates a Scheduler. The Open Question of which timezone the cron
// predicate evaluates in is resolved here: the configured zone, loaded
// once, not the reference implementation's UTC/isoweekday quirk.
func New(st *store.Store, bus protocols.EventBus, reg *registry.Registry, cfg Config, log zerolog.Logger) (*Scheduler, error) {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone %q: %w", tz, err)
	}

	return &Scheduler{
		store:    st,
		bus:      bus,
		registry: reg,
		interval: interval,
		location: loc,
		log:      log.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start runs the tick loop in a background goroutine until ctx is
// cancelled or Stop is called.
func (sch *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	sch.cancel = cancel
	sch.done = make(chan struct{})

	go func() {
		defer close(sch.done)
		ticker := time.NewTicker(sch.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				sch.tick(runCtx)
			}
		}
	}()

	sch.log.Info().Dur("interval", sch.interval).Str("timezone", sch.location.String()).Msg("scheduler started")
}

// Stop cancels the tick loop and waits up to grace for the in-flight tick
// (if any) to finish.
func (sch *Scheduler) Stop(grace time.Duration) {
	if sch.cancel == nil {
		return
	}
	sch.cancel()

	select {
	case <-sch.done:
	case <-time.After(grace):
		sch.log.Warn().Msg("scheduler did not stop within grace period")
	}
	sch.log.Info().Msg("scheduler stopped")
}

func (sch *Scheduler) tick(ctx context.Context) {
	tasks, err := store.ListJSON[domain.Task](sch.store, store.KindTasks)
	if err != nil {
		sch.log.Error().Err(err).Msg("failed to list tasks")
		return
	}

	now := time.Now().In(sch.location)
	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		due, err := sch.isDue(task, now)
		if err != nil {
			sch.log.Error().Err(err).Str("task_id", task.ID).Msg("invalid task schedule, skipping")
			continue
		}
		if due {
			sch.fireTask(ctx, task, now)
		}
	}
}

// isDue implements spec.md's due predicate exactly: run_at tasks fire once
// after they pass and never again; cron tasks fire on a whole-minute match
// that hasn't already fired this same (year,month,day,hour,minute);
// research tasks fire once, ever, the first time they're seen; anything
// else is never due.
func (sch *Scheduler) isDue(task domain.Task, now time.Time) (bool, error) {
	if task.RunAt != nil {
		if task.LastRunAt != nil {
			return false, nil
		}
		return !now.Before(task.RunAt.In(sch.location)), nil
	}

	if task.CronExpression != "" {
		if task.LastRunAt != nil && sameMinute(task.LastRunAt.In(sch.location), now) {
			return false, nil
		}
		return cronMatches(task.CronExpression, now)
	}

	if task.Type == domain.TaskResearch {
		return task.LastRunAt == nil, nil
	}

	return false, nil
}

func sameMinute(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}

func (sch *Scheduler) fireTask(ctx context.Context, task domain.Task, now time.Time) {
	sch.log.Info().Str("task_id", task.ID).Str("task_name", task.Name).Str("handler", task.Handler).Msg("firing task")

	_ = sch.bus.Publish(ctx, domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventScheduleFired,
		Timestamp: now.UTC(),
		Source:    "scheduler",
		Payload: map[string]any{
			"task_id":   task.ID,
			"task_name": task.Name,
			"handler":   task.Handler,
			"params":    task.Params,
		},
	})

	result := domain.TaskResult{Status: domain.TaskResultNoAction, Message: "no handler found"}
	if plugin, ok := sch.registry.Get(registry.KindTaskHandler, task.Handler); ok {
		handler := plugin.(protocols.TaskHandler)
		runResult, err := handler.Run(ctx, task.Params)
		if err != nil {
			sch.log.Error().Err(err).Str("task_id", task.ID).Msg("task handler returned an error")
			result = domain.TaskResult{Status: domain.TaskResultError, Message: err.Error()}
		} else {
			result = runResult
		}
	} else {
		sch.log.Warn().Str("handler", task.Handler).Msg("no task handler registered")
	}

	task.LastRunAt = &now
	task.LastResult = string(result.Status)
	task.RunCount++
	if task.Type == domain.TaskOneOff || task.Type == domain.TaskResearch {
		task.Enabled = false
	}

	if err := store.WriteJSON(sch.store, store.KindTasks, task.ID, task); err != nil {
		sch.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist task after firing")
	}
}

// CreateTask persists a new task and publishes task.created. The caller is
// responsible for assigning task.ID (idgen.Task()) and validating
// task.CronExpression with ValidateCronExpression beforehand.
func (sch *Scheduler) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if err := store.WriteJSON(sch.store, store.KindTasks, task.ID, task); err != nil {
		return domain.Task{}, fmt.Errorf("create task %s: %w", task.ID, err)
	}

	_ = sch.bus.Publish(ctx, domain.Event{
		ID:        idgen.Event(),
		Type:      domain.EventTaskCreated,
		Timestamp: time.Now().UTC(),
		Source:    "scheduler",
		Payload: map[string]any{
			"task_id":    task.ID,
			"task_name":  task.Name,
			"type":       task.Type,
			"handler":    task.Handler,
			"created_by": task.CreatedBy,
		},
	})

	sch.log.Info().Str("task_id", task.ID).Str("name", task.Name).Msg("created task")
	return task, nil
}

// DeleteTask removes a task by id, reporting whether it existed.
func (sch *Scheduler) DeleteTask(id string) (bool, error) {
	deleted, err := sch.store.DeleteEntity(store.KindTasks, id)
	if err != nil {
		return false, fmt.Errorf("delete task %s: %w", id, err)
	}
	if deleted {
		sch.log.Info().Str("task_id", id).Msg("deleted task")
	}
	return deleted, nil
}

// DeleteTaskByName looks up the first task with the given name and deletes
// it, used by the AI interface's delete_task_by_name tool where the
// caller doesn't know the opaque id.
func (sch *Scheduler) DeleteTaskByName(name string) (bool, error) {
	task, ok, err := sch.FindTaskByName(name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return sch.DeleteTask(task.ID)
}

// FindTaskByName returns the first task matching name, if any.
func (sch *Scheduler) FindTaskByName(name string) (domain.Task, bool, error) {
	tasks, err := sch.ListTasks()
	if err != nil {
		return domain.Task{}, false, err
	}
	for _, t := range tasks {
		if t.Name == name {
			return t, true, nil
		}
	}
	return domain.Task{}, false, nil
}

// ListTasks returns every persisted task.
func (sch *Scheduler) ListTasks() ([]domain.Task, error) {
	return store.ListJSON[domain.Task](sch.store, store.KindTasks)
}
