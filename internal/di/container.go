// Package di wires every component the server needs into a single
// Container: the databases, the event bus, the plugin registry, and the
// core pipeline (scheduler, portfolio tracker, memory retriever,
// orchestrator, AI interface, risk gate, delivery service and watcher),
// plus every plugin this build ships. Grounded on the teacher's
// internal/di/wire.go for the staged-initialization-with-cleanup-on-error
// shape, generalized from its 7-database ETF layout to this module's
// single index database.
package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/aiface"
	"github.com/aristath/tradedesk/internal/bus"
	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/database"
	"github.com/aristath/tradedesk/internal/delivery"
	"github.com/aristath/tradedesk/internal/memory"
	"github.com/aristath/tradedesk/internal/modules/settings"
	"github.com/aristath/tradedesk/internal/orchestrator"
	"github.com/aristath/tradedesk/internal/portfolio"
	"github.com/aristath/tradedesk/internal/registry"
	"github.com/aristath/tradedesk/internal/risk"
	"github.com/aristath/tradedesk/internal/scheduler"
	"github.com/aristath/tradedesk/internal/store"
)

// Container holds every long-lived component the server entrypoint needs
// to start, run, and shut down cleanly.
type Container struct {
	DB           *database.DB
	Store        *store.Store
	SettingsRepo *settings.Repository
	Bus          *bus.Bus
	Registry     *registry.Registry

	Portfolio    *portfolio.Tracker
	Memory       *memory.Retriever
	Orchestrator *orchestrator.Orchestrator
	RiskEngine   *risk.Engine
	RiskGate     *risk.Gate
	Delivery     *delivery.Service
	Watcher      *delivery.PendingConfirmationWatcher
	Scheduler    *scheduler.Scheduler
	AI           *aiface.Interface
}

// Close releases the resources Wire acquired. Safe to call on a partially
// initialized Container (nil fields are skipped).
func (c *Container) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Wire initializes every dependency and returns a fully configured
// Container. Order of operations:
//  1. Open the index database and run its migrations
//  2. Create the Store, settings repository, and update cfg from settings
//  3. Create the event bus and plugin registry
//  4. Register every configured plugin (integrations, market data, LLMs,
//     risk rules, task handlers)
//  5. Wire the core pipeline: portfolio, memory, orchestrator, risk gate,
//     delivery, scheduler, AI interface
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "index.db"),
		Name:    "index",
		Profile: database.ProfileStandard,
	})
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate index database: %w", err)
	}

	st, err := store.New(cfg.DataDir, db, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create store: %w", err)
	}

	settingsRepo := settings.NewRepository(db.Conn(), log)
	if err := cfg.UpdateFromSettings(settingsRepo); err != nil {
		log.Warn().Err(err).Msg("failed to update config from settings DB, using environment variables")
	}

	eventsDir := st.Home()
	eventBus, err := bus.New(eventsDir, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create event bus: %w", err)
	}

	reg := registry.New(log)
	registerPlugins(reg, eventBus, cfg, eventsDir, log)

	tracker := portfolio.New(st, log)
	mem := memory.New(st, 50, 0)
	orch := orchestrator.New(eventBus, st, reg, tracker, mem, log)

	riskEngine := risk.New(ruleList(reg), log)
	riskGate := risk.NewGate(riskEngine, st, eventBus, tracker, log)

	deliverySvc := delivery.NewService(eventBus, st, reg, 0, log)
	watcher := delivery.NewWatcher(st, eventBus, delivery.WatcherConfig{}, log)

	sch, err := scheduler.New(st, eventBus, reg, scheduler.Config{Timezone: cfg.Timezone}, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ai, err := aiface.New(reg, st, eventBus, tracker, sch, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create AI interface: %w", err)
	}

	registerTaskHandlers(reg, eventBus, st, cfg, ai, log)
	if err := registerBackupHandler(reg, st, db, cfg, log); err != nil {
		log.Warn().Err(err).Msg("backup handler not registered")
	}
	wireOrchestratorTrigger(eventBus, orch, log)
	wireInputBridge(reg, eventBus, ai, log)
	wireOutputRouter(reg, eventBus, log)

	if err := seedDefaultTasks(context.Background(), sch, cfg, log); err != nil {
		log.Warn().Err(err).Msg("failed to seed default scheduled tasks")
	}

	return &Container{
		DB:           db,
		Store:        st,
		SettingsRepo: settingsRepo,
		Bus:          eventBus,
		Registry:     reg,
		Portfolio:    tracker,
		Memory:       mem,
		Orchestrator: orch,
		RiskEngine:   riskEngine,
		RiskGate:     riskGate,
		Delivery:     deliverySvc,
		Watcher:      watcher,
		Scheduler:    sch,
		AI:           ai,
	}, nil
}
