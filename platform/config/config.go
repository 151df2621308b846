// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// MigrationConfig provides settings for running SQL migrations.
type MigrationConfig interface {
	DatabaseConfig
	GetMigrationsDir() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides settings for the task queue broker.
type RedisConfig interface {
	GetRedisURL() string
}

// WorkerConfig provides settings for the background task worker.
type WorkerConfig interface {
	GetAsynqQueue() string
	GetAsynqConcurrency() int
}

// ScheduleConfig provides the cadence of the periodic background jobs.
type ScheduleConfig interface {
	GetBreachCheckInterval() time.Duration
	GetEscalationInterval() time.Duration
	GetSequenceInterval() time.Duration
	GetStaleSweepInterval() time.Duration
	GetReplayInterval() time.Duration
	GetReplayBatch() int
}

// EscalationConfig provides settings for the breach escalation chain.
type EscalationConfig interface {
	GetEscalationLevel1After() time.Duration
	GetEscalationLevel2After() time.Duration
	GetEscalationGroupID() string
	GetDirectContactGroupID() string
}

// WhatsAppConfig provides settings for the WhatsApp sending API.
type WhatsAppConfig interface {
	GetWhatsAppAPIURL() string
	GetWhatsAppAPIKey() string
	GetTeamGroupID() string
	IsWhatsAppEnabled() bool
}

// CRMConfig provides settings for CRM synchronization.
type CRMConfig interface {
	GetCRMAPIURL() string
	GetCRMAPIKey() string
	GetCRMStageAttended() string
	IsCRMEnabled() bool
}

// AlertConfig provides settings for the operational alert webhook.
type AlertConfig interface {
	GetAlertWebhookURL() string
	IsAlertEnabled() bool
}

// EmailConfig provides settings for SMTP email sending.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUser() string
	GetSMTPPassword() string
	GetSMTPFrom() string
	IsEmailEnabled() bool
}

// SequenceConfig provides settings for the follow-up sequence engine.
type SequenceConfig interface {
	GetSequenceCatalogPath() string
	GetSequenceStaleAfter() time.Duration
}

// AdminConfig provides settings for operator-facing admin endpoints.
type AdminConfig interface {
	GetAdminAPIKey() string
}

// SchedulerConfig combines the settings the scheduler process consumes:
// broker access, queue sizing, cycle cadence and sequence engine windows.
type SchedulerConfig interface {
	RedisConfig
	WorkerConfig
	ScheduleConfig
	SequenceConfig
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	MigrationsDir         string
	RedisURL              string
	AsynqQueue            string
	AsynqConcurrency      int
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	BreachCheckInterval   time.Duration
	EscalationInterval    time.Duration
	EscalationLevel1After time.Duration
	EscalationLevel2After time.Duration
	SequenceInterval      time.Duration
	StaleSweepInterval    time.Duration
	SequenceStaleAfter    time.Duration
	ReplayInterval        time.Duration
	ReplayBatch           int
	WhatsAppAPIURL        string
	WhatsAppAPIKey        string
	TeamGroupID           string
	EscalationGroupID     string
	DirectContactGroupID  string
	CRMAPIURL             string
	CRMAPIKey             string
	CRMStageAttended      string
	AlertWebhookURL       string
	SMTPHost              string
	SMTPPort              int
	SMTPUser              string
	SMTPPassword          string
	SMTPFrom              string
	SequenceCatalogPath   string
	AdminAPIKey           string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// MigrationConfig implementation
func (c *Config) GetMigrationsDir() string { return c.MigrationsDir }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RedisConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }

// WorkerConfig implementation
func (c *Config) GetAsynqQueue() string    { return c.AsynqQueue }
func (c *Config) GetAsynqConcurrency() int { return c.AsynqConcurrency }

// ScheduleConfig implementation
func (c *Config) GetBreachCheckInterval() time.Duration { return c.BreachCheckInterval }
func (c *Config) GetEscalationInterval() time.Duration  { return c.EscalationInterval }
func (c *Config) GetSequenceInterval() time.Duration    { return c.SequenceInterval }
func (c *Config) GetStaleSweepInterval() time.Duration  { return c.StaleSweepInterval }
func (c *Config) GetReplayInterval() time.Duration      { return c.ReplayInterval }
func (c *Config) GetReplayBatch() int                   { return c.ReplayBatch }

// EscalationConfig implementation
func (c *Config) GetEscalationLevel1After() time.Duration { return c.EscalationLevel1After }
func (c *Config) GetEscalationLevel2After() time.Duration { return c.EscalationLevel2After }
func (c *Config) GetEscalationGroupID() string            { return c.EscalationGroupID }
func (c *Config) GetDirectContactGroupID() string         { return c.DirectContactGroupID }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppAPIURL() string { return c.WhatsAppAPIURL }
func (c *Config) GetWhatsAppAPIKey() string { return c.WhatsAppAPIKey }
func (c *Config) GetTeamGroupID() string    { return c.TeamGroupID }
func (c *Config) IsWhatsAppEnabled() bool   { return c.WhatsAppAPIURL != "" }

// CRMConfig implementation
func (c *Config) GetCRMAPIURL() string        { return c.CRMAPIURL }
func (c *Config) GetCRMAPIKey() string        { return c.CRMAPIKey }
func (c *Config) GetCRMStageAttended() string { return c.CRMStageAttended }
func (c *Config) IsCRMEnabled() bool          { return c.CRMAPIURL != "" }

// AlertConfig implementation
func (c *Config) GetAlertWebhookURL() string { return c.AlertWebhookURL }
func (c *Config) IsAlertEnabled() bool       { return c.AlertWebhookURL != "" }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string     { return c.SMTPHost }
func (c *Config) GetSMTPPort() int        { return c.SMTPPort }
func (c *Config) GetSMTPUser() string     { return c.SMTPUser }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }
func (c *Config) GetSMTPFrom() string     { return c.SMTPFrom }
func (c *Config) IsEmailEnabled() bool    { return c.SMTPHost != "" && c.SMTPFrom != "" }

// SequenceConfig implementation
func (c *Config) GetSequenceCatalogPath() string       { return c.SequenceCatalogPath }
func (c *Config) GetSequenceStaleAfter() time.Duration { return c.SequenceStaleAfter }

// AdminConfig implementation
func (c *Config) GetAdminAPIKey() string { return c.AdminAPIKey }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		MigrationsDir:         getEnv("MIGRATIONS_DIR", "migrations"),
		RedisURL:              getEnv("REDIS_URL", ""),
		AsynqQueue:            getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		BreachCheckInterval:   mustDuration(getEnv("BREACH_CHECK_INTERVAL", "2m")),
		EscalationInterval:    mustDuration(getEnv("ESCALATION_INTERVAL", "2m")),
		EscalationLevel1After: mustDuration(getEnv("ESCALATION_LEVEL1_AFTER", "15m")),
		EscalationLevel2After: mustDuration(getEnv("ESCALATION_LEVEL2_AFTER", "30m")),
		SequenceInterval:      mustDuration(getEnv("SEQUENCE_INTERVAL", "5m")),
		StaleSweepInterval:    mustDuration(getEnv("SEQUENCE_STALE_SWEEP_INTERVAL", "6h")),
		SequenceStaleAfter:    mustDuration(getEnv("SEQUENCE_STALE_AFTER", "48h")),
		ReplayInterval:        mustDuration(getEnv("REPLAY_INTERVAL", "10m")),
		ReplayBatch:           mustInt(getEnv("REPLAY_BATCH", "20")),
		WhatsAppAPIURL:        getEnv("WHATSAPP_API_URL", ""),
		WhatsAppAPIKey:        getEnv("WHATSAPP_API_KEY", ""),
		TeamGroupID:           getEnv("TEAM_GROUP_ID", ""),
		EscalationGroupID:     getEnv("ESCALATION_GROUP_ID", ""),
		DirectContactGroupID:  getEnv("DIRECT_CONTACT_GROUP_ID", ""),
		CRMAPIURL:             getEnv("CRM_API_URL", ""),
		CRMAPIKey:             getEnv("CRM_API_KEY", ""),
		CRMStageAttended:      getEnv("CRM_STAGE_ATTENDED", "atendido"),
		AlertWebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUser:              getEnv("SMTP_USER", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:              getEnv("SMTP_FROM", ""),
		SequenceCatalogPath:   getEnv("SEQUENCE_CATALOG_PATH", ""),
		AdminAPIKey:           getEnv("ADMIN_API_KEY", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EscalationLevel1After >= cfg.EscalationLevel2After {
		return nil, fmt.Errorf("ESCALATION_LEVEL1_AFTER must be shorter than ESCALATION_LEVEL2_AFTER")
	}
	if cfg.ReplayBatch <= 0 {
		return nil, fmt.Errorf("REPLAY_BATCH must be positive")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if !cfg.CORSAllowAll && len(cfg.CORSOrigins) == 0 {
		return nil, fmt.Errorf("CORS_ORIGINS must not be empty unless CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
