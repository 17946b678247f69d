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

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// QueueConfig provides settings for the asynq queue plumbing.
type QueueConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetQueueName() string
	GetQueueConcurrency() int
}

// ClassifierConfig provides settings for the category classifier chain.
type ClassifierConfig interface {
	GetEmbeddingAPIURL() string
	GetEmbeddingAPIKey() string
	GetQdrantURL() string
	GetQdrantAPIKey() string
	GetQdrantCollection() string
	GetVectorScoreThreshold() float64
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetClassifierRulesPath() string
	GetClassifierTimeout() time.Duration
	IsVectorClassifierEnabled() bool
	IsAIClassifierEnabled() bool
}

// SupplierChannelConfig provides settings for the supplier-facing chat channel.
type SupplierChannelConfig interface {
	GetChatGatewayURL() string
	GetChatGatewayKey() string
	GetChatGatewayDeviceID() string
	GetChatSendRate() float64
}

// StaffChannelConfig provides settings for the staff-facing email channel.
type StaffChannelConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetProcurementTeamAddress() string
	IsStaffEmailEnabled() bool
}

// OrchestratorConfig provides tuning for delivery retries and nudge escalation.
type OrchestratorConfig interface {
	GetDeliveryMaxAttempts() int
	GetDeliveryRetryDelay() time.Duration
	GetDeliveryBackoffPolicy() string // "fixed" or "exponential"
	GetDeliveryTimeout() time.Duration
	GetDispatchInterval() time.Duration
	GetClaimLease() time.Duration
	GetNudgeGracePeriod() time.Duration
	GetNudgeInterval() time.Duration
	GetNudgeMaxCount() int
	GetNudgeScanInterval() time.Duration
}

// =============================================================================
// Config
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string

	CORSAllowAll bool
	CORSOrigins  []string

	RedisURL         string
	RedisTLSInsecure bool
	QueueName        string
	QueueConcurrency int

	EmbeddingAPIURL      string
	EmbeddingAPIKey      string
	QdrantURL            string
	QdrantAPIKey         string
	QdrantCollection     string
	VectorScoreThreshold float64
	GeminiAPIKey         string
	GeminiModel          string
	ClassifierRulesPath  string
	ClassifierTimeout    time.Duration

	ChatGatewayURL      string
	ChatGatewayKey      string
	ChatGatewayDeviceID string
	ChatSendRate        float64

	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	EmailFromName          string
	EmailFromAddress       string
	ProcurementTeamAddress string

	DeliveryMaxAttempts   int
	DeliveryRetryDelay    time.Duration
	DeliveryBackoffPolicy string
	DeliveryTimeout       time.Duration
	DispatchInterval      time.Duration
	ClaimLease            time.Duration
	NudgeGracePeriod      time.Duration
	NudgeInterval         time.Duration
	NudgeMaxCount         int
	NudgeScanInterval     time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// QueueConfig implementation
func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetQueueName() string     { return c.QueueName }
func (c *Config) GetQueueConcurrency() int { return c.QueueConcurrency }

// ClassifierConfig implementation
func (c *Config) GetEmbeddingAPIURL() string        { return c.EmbeddingAPIURL }
func (c *Config) GetEmbeddingAPIKey() string        { return c.EmbeddingAPIKey }
func (c *Config) GetQdrantURL() string              { return c.QdrantURL }
func (c *Config) GetQdrantAPIKey() string           { return c.QdrantAPIKey }
func (c *Config) GetQdrantCollection() string       { return c.QdrantCollection }
func (c *Config) GetVectorScoreThreshold() float64  { return c.VectorScoreThreshold }
func (c *Config) GetGeminiAPIKey() string           { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string            { return c.GeminiModel }
func (c *Config) GetClassifierRulesPath() string    { return c.ClassifierRulesPath }
func (c *Config) GetClassifierTimeout() time.Duration { return c.ClassifierTimeout }
func (c *Config) IsVectorClassifierEnabled() bool {
	return c.EmbeddingAPIURL != "" && c.QdrantURL != "" && c.QdrantCollection != ""
}
func (c *Config) IsAIClassifierEnabled() bool { return c.GeminiAPIKey != "" }

// SupplierChannelConfig implementation
func (c *Config) GetChatGatewayURL() string      { return c.ChatGatewayURL }
func (c *Config) GetChatGatewayKey() string      { return c.ChatGatewayKey }
func (c *Config) GetChatGatewayDeviceID() string { return c.ChatGatewayDeviceID }
func (c *Config) GetChatSendRate() float64       { return c.ChatSendRate }

// StaffChannelConfig implementation
func (c *Config) GetSMTPHost() string               { return c.SMTPHost }
func (c *Config) GetSMTPPort() int                  { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string           { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string           { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string          { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string       { return c.EmailFromAddress }
func (c *Config) GetProcurementTeamAddress() string { return c.ProcurementTeamAddress }
func (c *Config) IsStaffEmailEnabled() bool         { return c.SMTPHost != "" }

// OrchestratorConfig implementation
func (c *Config) GetDeliveryMaxAttempts() int           { return c.DeliveryMaxAttempts }
func (c *Config) GetDeliveryRetryDelay() time.Duration  { return c.DeliveryRetryDelay }
func (c *Config) GetDeliveryBackoffPolicy() string      { return c.DeliveryBackoffPolicy }
func (c *Config) GetDeliveryTimeout() time.Duration     { return c.DeliveryTimeout }
func (c *Config) GetDispatchInterval() time.Duration    { return c.DispatchInterval }
func (c *Config) GetClaimLease() time.Duration          { return c.ClaimLease }
func (c *Config) GetNudgeGracePeriod() time.Duration    { return c.NudgeGracePeriod }
func (c *Config) GetNudgeInterval() time.Duration       { return c.NudgeInterval }
func (c *Config) GetNudgeMaxCount() int                 { return c.NudgeMaxCount }
func (c *Config) GetNudgeScanInterval() time.Duration   { return c.NudgeScanInterval }

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from the environment, optionally seeded by a .env
// file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		CORSAllowAll: getBoolEnv("CORS_ALLOW_ALL", true),
		CORSOrigins:  splitAndTrim(os.Getenv("CORS_ORIGINS")),

		RedisURL:         os.Getenv("REDIS_URL"),
		RedisTLSInsecure: getBoolEnv("REDIS_TLS_INSECURE", false),
		QueueName:        getEnv("QUEUE_NAME", "rfq"),
		QueueConcurrency: getIntEnv("QUEUE_CONCURRENCY", 10),

		EmbeddingAPIURL:      os.Getenv("EMBEDDING_API_URL"),
		EmbeddingAPIKey:      os.Getenv("EMBEDDING_API_KEY"),
		QdrantURL:            os.Getenv("QDRANT_URL"),
		QdrantAPIKey:         os.Getenv("QDRANT_API_KEY"),
		QdrantCollection:     getEnv("QDRANT_COLLECTION", "item_categories"),
		VectorScoreThreshold: getFloatEnv("VECTOR_SCORE_THRESHOLD", 0.78),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ClassifierRulesPath:  getEnv("CLASSIFIER_RULES_PATH", "classifier_rules.yaml"),
		ClassifierTimeout:    getDurationEnv("CLASSIFIER_TIMEOUT", 10*time.Second),

		ChatGatewayURL:      os.Getenv("CHAT_GATEWAY_URL"),
		ChatGatewayKey:      os.Getenv("CHAT_GATEWAY_KEY"),
		ChatGatewayDeviceID: os.Getenv("CHAT_GATEWAY_DEVICE_ID"),
		ChatSendRate:        getFloatEnv("CHAT_SEND_RATE", 5),

		SMTPHost:               os.Getenv("SMTP_HOST"),
		SMTPPort:               getIntEnv("SMTP_PORT", 587),
		SMTPUsername:           os.Getenv("SMTP_USERNAME"),
		SMTPPassword:           os.Getenv("SMTP_PASSWORD"),
		EmailFromName:          getEnv("EMAIL_FROM_NAME", "Procurement"),
		EmailFromAddress:       getEnv("EMAIL_FROM_ADDRESS", "no-reply@example.com"),
		ProcurementTeamAddress: os.Getenv("PROCUREMENT_TEAM_ADDRESS"),

		DeliveryMaxAttempts:   getIntEnv("DELIVERY_MAX_ATTEMPTS", 5),
		DeliveryRetryDelay:    getDurationEnv("DELIVERY_RETRY_DELAY", 2*time.Minute),
		DeliveryBackoffPolicy: getEnv("DELIVERY_BACKOFF", "fixed"),
		DeliveryTimeout:       getDurationEnv("DELIVERY_TIMEOUT", 10*time.Second),
		DispatchInterval:      getDurationEnv("DISPATCH_INTERVAL", 2*time.Second),
		ClaimLease:            getDurationEnv("CLAIM_LEASE", 5*time.Minute),
		NudgeGracePeriod:      getDurationEnv("NUDGE_GRACE_PERIOD", 48*time.Hour),
		NudgeInterval:         getDurationEnv("NUDGE_INTERVAL", 24*time.Hour),
		NudgeMaxCount:         getIntEnv("NUDGE_MAX_COUNT", 3),
		NudgeScanInterval:     getDurationEnv("NUDGE_SCAN_INTERVAL", 10*time.Minute),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DeliveryBackoffPolicy != "fixed" && cfg.DeliveryBackoffPolicy != "exponential" {
		return nil, fmt.Errorf("DELIVERY_BACKOFF must be fixed or exponential, got %q", cfg.DeliveryBackoffPolicy)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBoolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
