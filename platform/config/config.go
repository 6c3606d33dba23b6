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

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// CalendarConfig provides settings for the external calendar service.
type CalendarConfig interface {
	GetCalendarBaseURL() string
	GetCalendarAPIKey() string
	GetCalendarTimeout() time.Duration
	IsCalendarEnabled() bool
}

// SuggestionConfig provides settings for the post-call analysis agent.
type SuggestionConfig interface {
	GetMoonshotAPIKey() string
	GetMoonshotModel() string
	IsSuggestionEnabled() bool
}

// SchedulerConfig provides settings for the background job system.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
}

// MessagingConfig provides settings for outbound customer messaging.
type MessagingConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetWhatsAppAPIURL() string
	GetWhatsAppAPIToken() string
	IsWhatsAppEnabled() bool
}

// PublicBookingConfig provides settings for the public self-scheduling surface.
type PublicBookingConfig interface {
	GetAppBaseURL() string
	GetServiceCredentialHash() string
	GetPublicLinkTTL() time.Duration
}

// AutomationConfig provides settings for stage automation playbooks.
type AutomationConfig interface {
	GetPlaybookPath() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	JWTAccessSecret       string
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	AppBaseURL            string
	CalendarBaseURL       string
	CalendarAPIKey        string
	CalendarTimeout       time.Duration
	MoonshotAPIKey        string
	MoonshotModel         string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	EmailEnabled          bool
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	EmailFromName         string
	EmailFromAddress      string
	WhatsAppAPIURL        string
	WhatsAppAPIToken      string
	ServiceCredentialHash string
	PublicLinkTTL         time.Duration
	PlaybookPath          string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// CalendarConfig implementation
func (c *Config) GetCalendarBaseURL() string        { return c.CalendarBaseURL }
func (c *Config) GetCalendarAPIKey() string         { return c.CalendarAPIKey }
func (c *Config) GetCalendarTimeout() time.Duration { return c.CalendarTimeout }
func (c *Config) IsCalendarEnabled() bool           { return c.CalendarBaseURL != "" }

// SuggestionConfig implementation
func (c *Config) GetMoonshotAPIKey() string { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotModel() string  { return c.MoonshotModel }
func (c *Config) IsSuggestionEnabled() bool { return c.MoonshotAPIKey != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }

// MessagingConfig implementation
func (c *Config) GetEmailEnabled() bool      { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string        { return c.SMTPHost }
func (c *Config) GetSMTPPort() int           { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string    { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string    { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string   { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetWhatsAppAPIURL() string  { return c.WhatsAppAPIURL }
func (c *Config) GetWhatsAppAPIToken() string { return c.WhatsAppAPIToken }
func (c *Config) IsWhatsAppEnabled() bool    { return c.WhatsAppAPIURL != "" }

// PublicBookingConfig implementation
func (c *Config) GetAppBaseURL() string            { return c.AppBaseURL }
func (c *Config) GetServiceCredentialHash() string { return c.ServiceCredentialHash }
func (c *Config) GetPublicLinkTTL() time.Duration  { return c.PublicLinkTTL }

// AutomationConfig implementation
func (c *Config) GetPlaybookPath() string { return c.PlaybookPath }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		JWTAccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:            getEnv("APP_BASE_URL", "http://localhost:4200"),
		CalendarBaseURL:       getEnv("CALENDAR_BASE_URL", ""),
		CalendarAPIKey:        getEnv("CALENDAR_API_KEY", ""),
		CalendarTimeout:       mustDuration(getEnv("CALENDAR_TIMEOUT", "3s")),
		MoonshotAPIKey:        getEnv("MOONSHOT_API_KEY", ""),
		MoonshotModel:         getEnv("MOONSHOT_MODEL", "kimi-k2-0711-preview"),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		EmailEnabled:          emailEnabled && smtpHost != "",
		SMTPHost:              smtpHost,
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", "Scheduling"),
		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
		WhatsAppAPIURL:        getEnv("WHATSAPP_API_URL", ""),
		WhatsAppAPIToken:      getEnv("WHATSAPP_API_TOKEN", ""),
		ServiceCredentialHash: getEnv("SERVICE_CREDENTIAL_HASH", ""),
		PublicLinkTTL:         mustDuration(getEnv("PUBLIC_LINK_TTL", "336h")),
		PlaybookPath:          getEnv("PLAYBOOK_PATH", "playbook.yaml"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.CalendarTimeout <= 0 {
		cfg.CalendarTimeout = 3 * time.Second
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
