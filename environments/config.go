package environments

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Alert    AlertConfig
	Auth     AuthConfig
	OpenAI   OpenAIConfig
	Slack    SlackConfig
	Jobs     JobsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// AlertConfig configures the webhook notified when a job keeps failing.
type AlertConfig struct {
	WebhookURL     string
	IterationCount int
	Timeout        time.Duration
}

// AuthConfig holds the operator keys. More than one is active during a
// rotation.
type AuthConfig struct {
	AdminAPIKeys []string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// TemplateAutosend lets template drafts autosend when no model is set.
	TemplateAutosend bool
}

type SlackConfig struct {
	SigningSecret string
}

// JobsConfig holds the cadence and the take-limits of the batch jobs.
type JobsConfig struct {
	Interval            time.Duration
	EvaluatorBatchSize  int
	DispatcherBatchSize int
	IngestionBatchSize  int
	AutosendBatchSize   int
	GeneratorBatchSize  int
	Cooldown            time.Duration
	AutoStart           bool
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "retention"),
			Password: GetEnv("DB_PASSWORD", "retention123"),
			DBName:   GetEnv("DB_NAME", "retention"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Alert: AlertConfig{
			WebhookURL:     GetEnv("ALERT_WEBHOOK_URL", ""),
			IterationCount: GetEnvAsInt("ALERT_ITERATION_COUNT", 3),
			Timeout:        time.Duration(GetEnvAsInt("ALERT_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Auth: AuthConfig{
			AdminAPIKeys: GetEnvAsList("ADMIN_API_KEYS", GetEnv("ADMIN_API_KEY", "")),
		},
		OpenAI: OpenAIConfig{
			APIKey:  GetEnv("OPENAI_API_KEY", ""),
			BaseURL: GetEnv("OPENAI_BASE_URL", ""),
			Model:   GetEnv("OPENAI_MODEL", "gpt-4o-mini"),

			TemplateAutosend: GetEnvAsBool("TEMPLATE_AUTOSEND", false),
		},
		Slack: SlackConfig{
			SigningSecret: GetEnv("SLACK_SIGNING_SECRET", ""),
		},
		Jobs: JobsConfig{
			Interval:            GetEnvAsDuration("JOB_INTERVAL", 5*time.Minute),
			EvaluatorBatchSize:  GetEnvAsInt("EVALUATOR_BATCH_SIZE", 500),
			DispatcherBatchSize: GetEnvAsInt("DISPATCHER_BATCH_SIZE", 200),
			IngestionBatchSize:  GetEnvAsInt("INGESTION_BATCH_SIZE", 500),
			AutosendBatchSize:   GetEnvAsInt("AUTOSEND_BATCH_SIZE", 200),
			GeneratorBatchSize:  GetEnvAsInt("GENERATOR_BATCH_SIZE", 200),
			Cooldown:            GetEnvAsDuration("COOLDOWN", 24*time.Hour),
			AutoStart:           GetEnvAsBool("AUTO_START_SCHEDULER", true),
		},
		Log: LogConfig{
			Level:      GetEnv("LOG_LEVEL", "info"),
			File:       GetEnv("LOG_FILE", ""),
			MaxSizeMB:  GetEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: GetEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: GetEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsList splits a comma-separated value, dropping blanks. The fallback
// is split the same way.
func GetEnvAsList(key, defaultValue string) []string {
	raw := GetEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
