package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	UseMemoryStore bool
	DatabaseURL    string
	AdminJWTSecret string
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int
	Timezone       string
	// CatalogFile seeds the in-memory service catalog (JSON array).
	CatalogFile string

	// Redis (settings store)
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	SettingsCacheTTL time.Duration

	// Outbox delivery
	OutboxInterval  time.Duration
	OutboxBatchSize int
	OutboxInProcess bool
	EventsQueueURL  string

	// LINE Messaging API
	LineChannelToken string
	LineAPIBaseURL   string
	LineAdminTargets []string

	// LINE Login (LIFF ID token verification). LineTrustUserHeader accepts
	// X-Line-User-Id unverified and is only for local development.
	LineLoginChannelID  string
	LineTrustUserHeader bool

	// Google Calendar
	GoogleCalendarID       string
	GoogleCredentialsFile  string
	GoogleCalendarEndpoint string
	CalendarRequestTimeout time.Duration

	// Admin email
	AdminEmail        string
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Audit trail (database/sql)
	AuditDatabaseURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		CORSOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
		Timezone:       getEnv("SALON_TIMEZONE", "Asia/Bangkok"),
		CatalogFile:    getEnv("CATALOG_FILE", ""),

		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		SettingsCacheTTL: getEnvAsDuration("SETTINGS_CACHE_TTL", 30*time.Second),

		OutboxInterval:  getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize: getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		OutboxInProcess: getEnvAsBool("OUTBOX_IN_PROCESS", true),
		EventsQueueURL:  getEnv("EVENTS_QUEUE_URL", ""),

		LineChannelToken: getEnv("LINE_CHANNEL_TOKEN", ""),
		LineAPIBaseURL:   getEnv("LINE_API_BASE_URL", "https://api.line.me"),
		LineAdminTargets: getEnvAsList("LINE_ADMIN_TARGETS", nil),

		LineLoginChannelID:  getEnv("LINE_LOGIN_CHANNEL_ID", ""),
		LineTrustUserHeader: getEnvAsBool("LINE_TRUST_USER_HEADER", false),

		GoogleCalendarID:       getEnv("GOOGLE_CALENDAR_ID", ""),
		GoogleCredentialsFile:  getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCalendarEndpoint: getEnv("GOOGLE_CALENDAR_ENDPOINT", ""),
		CalendarRequestTimeout: getEnvAsDuration("CALENDAR_REQUEST_TIMEOUT", 10*time.Second),

		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Salon Booking"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Salon Booking"),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AuditDatabaseURL: getEnv("AUDIT_DATABASE_URL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
