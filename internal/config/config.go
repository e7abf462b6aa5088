// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables (.env file)
// and updating configuration from the settings database. Settings database values
// take precedence over environment variables.
//
// Configuration Loading Order:
// 1. Load from .env file (if exists)
// 2. Load from environment variables
// 3. Update from settings database (takes precedence)
//
// Data Directory Priority (highest to lowest):
// 1. --data-dir CLI flag (if provided)
// 2. TRADEDESK_DATA_DIR environment variable
// 3. ~/.tradedesk/data (default)
//
// This allows credentials and other sensitive settings to be managed via the
// Settings UI instead of requiring .env file changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/aristath/tradedesk/internal/modules/settings"
	"github.com/joho/godotenv"
)

// durationPattern matches the compact duration syntax accepted by settings
// like "30s", "5m", "12h", "7d". A unit is required: a bare number is not
// matched.
var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// Config holds application configuration.
//
// Configuration is loaded from environment variables and can be updated
// from the settings database. Settings database values take precedence.
type Config struct {
	DataDir  string // Base directory for all on-disk state (always absolute)
	LogLevel string // Log level (debug, info, warn, error)
	Port     int    // HTTP server port (default: 8001)
	DevMode  bool   // Development mode flag

	Timezone string // IANA timezone used by the scheduler (default: "UTC")

	// LLM provider credentials. Either or both may be set; the agent
	// orchestrator picks a provider per-request based on what is configured.
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Telegram integration.
	TelegramBotToken   string
	TelegramChatID     string
	TelegramPollPeriod time.Duration

	// Discord integration.
	DiscordBotToken string
	DiscordChannels string // comma-separated channel IDs the bot should watch

	// Supplementary push-style integrations.
	WebsocketListenAddr string // e.g. ":8091", empty disables the integration
	WebhookListenAddr   string // e.g. ":8090", empty disables the integration

	// Market data.
	YahooFinanceBaseURL string

	// Cloudflare R2 / S3-compatible backup settings.
	BackupEnabled        bool
	BackupBucket         string
	BackupRegion         string
	BackupEndpoint       string // custom endpoint for R2/S3-compatible stores, empty for AWS S3
	BackupAccessKeyID    string
	BackupSecretKey      string
	BackupSchedule       string        // "daily", "weekly", or "monthly"
	BackupRetention      time.Duration // 0 means keep forever
	AIRunnerSchedule     time.Duration // how often the scheduled AI pass runs
	ComparisonSchedule   time.Duration // how often positions are compared against signals
	NotificationSchedule time.Duration // how often pending notifications are flushed

	// Extra holds settings keys this version of Config doesn't have a typed
	// field for, so a settings table written by a newer or older build
	// round-trips through Load/UpdateFromSettings without being dropped.
	Extra map[string]string
}

// Load reads configuration from environment variables.
//
// This function:
// 1. Loads .env file if it exists (via godotenv)
// 2. Reads environment variables with defaults
// 3. Resolves data directory to absolute path
// 4. Creates data directory if it doesn't exist
// 5. Validates configuration
//
// Note: Configuration can be updated later from settings database via UpdateFromSettings().
// Settings database values take precedence over environment variables.
//
// dataDirOverride - Optional CLI flag override for data directory (takes highest priority)
// Returns *Config - Loaded configuration
// Returns error - Error if configuration loading fails
func Load(dataDirOverride ...string) (*Config, error) {
	// Load .env file if it exists
	// godotenv.Load() returns an error if .env doesn't exist, which is fine
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("TRADEDESK_DATA_DIR", "")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				home = "."
			}
			dataDir = filepath.Join(home, ".tradedesk", "data")
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("SCHEDULER_TIMEZONE", "UTC"),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramPollPeriod: getEnvAsDuration("TELEGRAM_POLL_PERIOD", 2*time.Second),

		DiscordBotToken: getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordChannels: getEnv("DISCORD_CHANNELS", ""),

		WebsocketListenAddr: getEnv("WEBSOCKET_LISTEN_ADDR", ""),
		WebhookListenAddr:   getEnv("WEBHOOK_LISTEN_ADDR", ""),

		YahooFinanceBaseURL: getEnv("YAHOO_FINANCE_BASE_URL", "https://query1.finance.yahoo.com"),

		BackupEnabled:     getEnvAsBool("BACKUP_ENABLED", false),
		BackupBucket:      getEnv("BACKUP_BUCKET", ""),
		BackupRegion:      getEnv("BACKUP_REGION", "auto"),
		BackupEndpoint:    getEnv("BACKUP_ENDPOINT", ""),
		BackupAccessKeyID: getEnv("BACKUP_ACCESS_KEY_ID", ""),
		BackupSecretKey:   getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		BackupSchedule:    getEnv("BACKUP_SCHEDULE", "daily"),
		BackupRetention:   getEnvAsDuration("BACKUP_RETENTION", 90*24*time.Hour),

		AIRunnerSchedule:     getEnvAsDuration("AI_RUNNER_SCHEDULE", 30*time.Minute),
		ComparisonSchedule:   getEnvAsDuration("COMPARISON_SCHEDULE", 15*time.Minute),
		NotificationSchedule: getEnvAsDuration("NOTIFICATION_SCHEDULE", time.Minute),

		Extra: make(map[string]string),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// settingsFields lists every settings-table key UpdateFromSettings knows how
// to apply to a typed Config field. Keeping the list next to the switch below
// keeps GetAll()'s leftover-key scan (the Extra side-table) honest.
var settingsFields = map[string]bool{
	"openai_api_key":           true,
	"anthropic_api_key":        true,
	"telegram_bot_token":       true,
	"telegram_chat_id":         true,
	"discord_bot_token":        true,
	"discord_channels":         true,
	"backup_bucket":            true,
	"backup_region":            true,
	"backup_endpoint":          true,
	"backup_access_key_id":     true,
	"backup_secret_access_key": true,
	"backup_schedule":          true,
	"backup_retention_days":    true,
	"backup_enabled":           true,
}

// UpdateFromSettings updates configuration from settings database.
//
// This should be called after the config database is initialized (in di.Wire()).
// Settings database values take precedence over environment variables.
//
// This allows credentials and other sensitive settings to be managed via the
// Settings UI instead of requiring .env file changes or environment variable updates.
//
// If a settings database value is empty, the environment variable value is kept
// as a fallback. Any settings key this build doesn't recognize is kept in
// Extra rather than dropped, so a future version's fields survive a round trip
// through an older binary.
//
// settingsRepo - Settings repository (must be initialized)
// Returns error - Error if settings retrieval fails
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	apply := func(key string, dst *string) error {
		value, err := settingsRepo.Get(key)
		if err != nil {
			return fmt.Errorf("failed to get %s from settings: %w", key, err)
		}
		if value != nil && *value != "" {
			*dst = *value
		}
		return nil
	}

	if err := apply("openai_api_key", &c.OpenAIAPIKey); err != nil {
		return err
	}
	if err := apply("anthropic_api_key", &c.AnthropicAPIKey); err != nil {
		return err
	}
	if err := apply("telegram_bot_token", &c.TelegramBotToken); err != nil {
		return err
	}
	if err := apply("telegram_chat_id", &c.TelegramChatID); err != nil {
		return err
	}
	if err := apply("discord_bot_token", &c.DiscordBotToken); err != nil {
		return err
	}
	if err := apply("discord_channels", &c.DiscordChannels); err != nil {
		return err
	}
	if err := apply("backup_bucket", &c.BackupBucket); err != nil {
		return err
	}
	if err := apply("backup_region", &c.BackupRegion); err != nil {
		return err
	}
	if err := apply("backup_endpoint", &c.BackupEndpoint); err != nil {
		return err
	}
	if err := apply("backup_access_key_id", &c.BackupAccessKeyID); err != nil {
		return err
	}
	if err := apply("backup_secret_access_key", &c.BackupSecretKey); err != nil {
		return err
	}
	if err := apply("backup_schedule", &c.BackupSchedule); err != nil {
		return err
	}

	enabled, err := settingsRepo.GetBool("backup_enabled", c.BackupEnabled)
	if err != nil {
		return fmt.Errorf("failed to get backup_enabled from settings: %w", err)
	}
	c.BackupEnabled = enabled

	if retentionDays, err := settingsRepo.GetInt("backup_retention_days", -1); err != nil {
		return fmt.Errorf("failed to get backup_retention_days from settings: %w", err)
	} else if retentionDays >= 0 {
		c.BackupRetention = time.Duration(retentionDays) * 24 * time.Hour
	}

	all, err := settingsRepo.GetAll()
	if err != nil {
		return fmt.Errorf("failed to list settings: %w", err)
	}
	for key, value := range all {
		if settingsFields[key] {
			continue
		}
		c.Extra[key] = value
	}

	return nil
}

// Validate checks if required configuration is present.
//
// Currently, all configuration is optional (LLM and integration credentials
// can be set via Settings UI, and a fresh install is usable read-only).
//
// Returns error - Error if validation fails (currently always returns nil)
func (c *Config) Validate() error {
	return nil
}

// ==========================================
// Helper Functions
// ==========================================

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a duration, accepting
// the compact "30s"/"5m"/"12h"/"7d" syntax ParseCompactDuration understands.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := ParseCompactDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// ParseCompactDuration parses the compact duration syntax used throughout
// settings and environment variables: a number followed by a single unit
// letter ("s" seconds, "m" minutes, "h" hours, "d" days). It falls back to
// time.ParseDuration so standard Go duration strings ("1h30m") keep working.
func ParseCompactDuration(s string) (time.Duration, error) {
	if m := durationPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		switch m[2] {
		case "s":
			return time.Duration(n) * time.Second, nil
		case "m":
			return time.Duration(n) * time.Minute, nil
		case "h":
			return time.Duration(n) * time.Hour, nil
		case "d":
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	return 0, fmt.Errorf("invalid duration %q: expected a form like \"30s\", \"5m\", \"12h\", \"7d\"", s)
}
