package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/bus"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/scheduler"
	"github.com/aristath/tradedesk/internal/store"
	testutil "github.com/aristath/tradedesk/internal/testing"
)

type fakeHandler struct {
	name  string
	calls int
}

func (h *fakeHandler) Name() string { return h.name }

func (h *fakeHandler) Run(ctx context.Context, params map[string]any) (domain.TaskResult, error) {
	h.calls++
	return domain.TaskResult{Status: domain.TaskResultSuccess, Message: "ok"}, nil
}

func newTestScheduler(t *testing.T) (*scheduler.Scheduler, *store.Store, *registry.Registry) {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "index")
	t.Cleanup(cleanup)

	st, err := store.New(t.TempDir(), db, zerolog.Nop())
	require.NoError(t, err)

	b, err := bus.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	reg := registry.New(zerolog.Nop())

	sch, err := scheduler.New(st, b, reg, scheduler.Config{CheckInterval: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	return sch, st, reg
}

func TestCreateListDeleteTask(t *testing.T) {
	sch, _, _ := newTestScheduler(t)
	ctx := context.Background()

	task := domain.Task{
		ID:        idgen.New("task"),
		Name:      "daily-sweep",
		Type:      domain.TaskRecurring,
		Handler:   "sweep",
		Enabled:   true,
		CreatedBy: domain.CreatedByHuman,
		CreatedAt: time.Now().UTC(),
	}
	created, err := sch.CreateTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, task.ID, created.ID)

	tasks, err := sch.ListTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	deleted, err := sch.DeleteTaskByName("daily-sweep")
	require.NoError(t, err)
	assert.True(t, deleted)

	tasks, err = sch.ListTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRunAtTaskFiresOnceThenStaysDone(t *testing.T) {
	sch, st, reg := newTestScheduler(t)
	ctx := context.Background()

	handler := &fakeHandler{name: "one-shot"}
	reg.Register(registry.KindTaskHandler, handler)

	past := time.Now().UTC().Add(-time.Minute)
	task := domain.Task{
		ID:        idgen.New("task"),
		Name:      "fire-once",
		Type:      domain.TaskOneOff,
		RunAt:     &past,
		Handler:   "one-shot",
		Enabled:   true,
		CreatedBy: domain.CreatedByAI,
		CreatedAt: time.Now().UTC(),
	}
	_, err := sch.CreateTask(ctx, task)
	require.NoError(t, err)

	sch.Start(ctx)
	time.Sleep(1500 * time.Millisecond)
	sch.Stop(2 * time.Second)

	tasks, err := store.ListJSON[domain.Task](st, store.KindTasks)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.False(t, tasks[0].Enabled, "one-off task should self-disable after firing")
	assert.Equal(t, 1, tasks[0].RunCount)
	assert.Equal(t, 1, handler.calls)
}

func TestResearchTaskFiresOnceOnFirstTick(t *testing.T) {
	sch, st, reg := newTestScheduler(t)
	ctx := context.Background()

	handler := &fakeHandler{name: "research-handler"}
	reg.Register(registry.KindTaskHandler, handler)

	task := domain.Task{
		ID:        idgen.New("task"),
		Name:      "research-once",
		Type:      domain.TaskResearch,
		Handler:   "research-handler",
		Enabled:   true,
		CreatedBy: domain.CreatedByAI,
		CreatedAt: time.Now().UTC(),
	}
	_, err := sch.CreateTask(ctx, task)
	require.NoError(t, err)

	sch.Start(ctx)
	time.Sleep(1500 * time.Millisecond)
	sch.Stop(2 * time.Second)

	tasks, err := store.ListJSON[domain.Task](st, store.KindTasks)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.False(t, tasks[0].Enabled)
	assert.Equal(t, 1, handler.calls)
}

