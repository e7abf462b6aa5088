package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/idgen"
	"github.com/aristath/tradedesk/internal/scheduler"
)

// defaultTask names the recurring tasks seeded on first boot, one per
// built-in task handler whose cadence cfg configures.
type defaultTask struct {
	name    string
	handler string
	cron    string
}

// seedDefaultTasks creates one recurring Task per built-in handler cfg has
// a cadence for, skipping any that already exist (by name) so restarts
// don't pile up duplicate tasks. A handler whose configured duration is
// zero is left out entirely -- the operator hasn't asked for it.
func seedDefaultTasks(ctx context.Context, sch *scheduler.Scheduler, cfg *config.Config, log zerolog.Logger) error {
	defaults := []defaultTask{
		{name: "scheduled-ai-run", handler: "ai.run_prompt", cron: minuteCron(cfg.AIRunnerSchedule)},
		{name: "weekly-comparison", handler: "comparison.weekly", cron: minuteCron(cfg.ComparisonSchedule)},
		{name: "scheduled-notifications", handler: "notifications.send", cron: minuteCron(cfg.NotificationSchedule)},
	}
	if cfg.BackupEnabled && cfg.BackupBucket != "" {
		defaults = append(defaults, defaultTask{
			name:    "scheduled-backup",
			handler: "maintenance.backup_store",
			cron:    backupCron(cfg.BackupSchedule),
		})
	}

	for _, d := range defaults {
		if d.cron == "" {
			continue
		}
		if err := scheduler.ValidateCronExpression(d.cron); err != nil {
			log.Warn().Err(err).Str("task", d.name).Str("cron", d.cron).Msg("skipping default task with invalid cron expression")
			continue
		}
		if _, ok, err := sch.FindTaskByName(d.name); err != nil {
			return fmt.Errorf("look up default task %q: %w", d.name, err)
		} else if ok {
			continue
		}

		task := domain.Task{
			ID:             idgen.Task(),
			Name:           d.name,
			Type:           domain.TaskRecurring,
			CronExpression: d.cron,
			Handler:        d.handler,
			Enabled:        true,
			CreatedBy:      domain.CreatedByHuman,
			CreatedAt:      time.Now().UTC(),
		}
		if _, err := sch.CreateTask(ctx, task); err != nil {
			return fmt.Errorf("seed default task %q: %w", d.name, err)
		}
	}
	return nil
}

// minuteCron turns a polling-style duration into a "*/N * * * *" cron
// expression at minute granularity, the coarsest unit cronMatches
// evaluates at. Durations under a minute round up to every minute;
// durations of an hour or more all map to the hourly "0 */1 * * *".
func minuteCron(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	minutes := int(d / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	if minutes >= 60 {
		return "0 */1 * * *"
	}
	return fmt.Sprintf("*/%d * * * *", minutes)
}

// backupCron maps the handful of human-readable schedule names the
// backup config accepts onto fixed cron expressions, defaulting to daily
// for anything unrecognized.
func backupCron(schedule string) string {
	switch schedule {
	case "weekly":
		return "0 3 * * 0"
	case "monthly":
		return "0 4 1 * *"
	case "daily", "":
		return "0 2 * * *"
	default:
		return "0 2 * * *"
	}
}
