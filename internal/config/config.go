package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	BackendBigQuery = "bigquery"
	BackendSQLite   = "sqlite"

	minSaltLength = 16
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Sanitizer
	AnonymizationSalt string

	// Model
	ModelProvider    string
	GeminiModel      string
	GeminiAPIKey     string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	ModelTimeout     time.Duration
	ModelMaxAttempts int
	MinConfidence    float64

	// Storage
	DataBackend     string
	GCPProjectID    string
	BigQueryDataset string
	SQLiteDBPath    string
	ArchiveBucket   string

	// AMQP
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Jobs
	JobQueueSize int
	JobWorkers   int

	// Scheduled analyses (worker only)
	ScheduleUsers    []string
	ScheduleInterval time.Duration
	ScheduleWindow   time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the configuration from the environment only.
func FromEnv() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AnonymizationSalt: getEnv("ANONYMIZATION_SALT", ""),

		ModelProvider:    strings.ToLower(getEnv("MODEL_PROVIDER", ProviderGemini)),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ModelTimeout:     getEnvDuration("MODEL_TIMEOUT", 60*time.Second),
		ModelMaxAttempts: getEnvInt("MODEL_MAX_ATTEMPTS", 2),
		MinConfidence:    getEnvFloat("MIN_CONFIDENCE", 70),

		DataBackend:     strings.ToLower(getEnv("DATA_BACKEND", BackendSQLite)),
		GCPProjectID:    getEnv("GCP_PROJECT_ID", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "finance"),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/insights.db"),
		ArchiveBucket:   getEnv("ARCHIVE_BUCKET", ""),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "finance"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "insights.generated"),

		JobQueueSize: getEnvInt("JOB_QUEUE_SIZE", 100),
		JobWorkers:   getEnvInt("JOB_WORKERS", 5),

		ScheduleUsers:    getEnvList("ANALYSIS_USERS"),
		ScheduleInterval: getEnvDuration("ANALYSIS_INTERVAL", 24*time.Hour),
		ScheduleWindow:   getEnvDuration("ANALYSIS_WINDOW", 90*24*time.Hour),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if len(c.AnonymizationSalt) < minSaltLength {
		errors = append(errors, fmt.Sprintf("ANONYMIZATION_SALT must be at least %d characters", minSaltLength))
	}

	switch c.ModelProvider {
	case ProviderGemini:
		if c.GeminiModel == "" {
			errors = append(errors, "GEMINI_MODEL cannot be empty when using the gemini provider")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is required when using the openai provider")
		}
		if c.OpenAIBaseURL != "" {
			if u, err := url.Parse(c.OpenAIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, fmt.Sprintf("invalid OPENAI_BASE_URL '%s'", c.OpenAIBaseURL))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid model provider '%s': must be one of [%s %s]", c.ModelProvider, ProviderGemini, ProviderOpenAI))
	}

	if c.ModelTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid model timeout %v: must be at least 1 second", c.ModelTimeout))
	}
	if c.ModelMaxAttempts < 1 || c.ModelMaxAttempts > 5 {
		errors = append(errors, fmt.Sprintf("invalid model max attempts %d: must be between 1 and 5", c.ModelMaxAttempts))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		errors = append(errors, fmt.Sprintf("invalid min confidence %g: must be between 0 and 100", c.MinConfidence))
	}

	switch c.DataBackend {
	case BackendBigQuery:
		if c.GCPProjectID == "" {
			errors = append(errors, "GCP_PROJECT_ID is required when using bigquery backend")
		}
		if c.BigQueryDataset == "" {
			errors = append(errors, "BIGQUERY_DATASET cannot be empty when using bigquery backend")
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendBigQuery, BackendSQLite))
	}

	if c.ArchiveBucket != "" && c.GCPProjectID == "" {
		errors = append(errors, "GCP_PROJECT_ID is required when ARCHIVE_BUCKET is set")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if c.JobQueueSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid job queue size %d: must be at least 1", c.JobQueueSize))
	}
	if c.JobWorkers < 1 || c.JobWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid job workers %d: must be between 1 and 64", c.JobWorkers))
	}

	if len(c.ScheduleUsers) > 0 {
		if c.ScheduleInterval < time.Minute {
			errors = append(errors, fmt.Sprintf("invalid analysis interval %v: must be at least 1 minute", c.ScheduleInterval))
		}
		if c.ScheduleWindow < 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid analysis window %v: must be at least 24h", c.ScheduleWindow))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// RedactedSummary lists the effective settings without secrets, for startup logs.
func (c *Config) RedactedSummary() map[string]interface{} {
	return map[string]interface{}{
		"port":           c.Port,
		"log_level":      c.LogLevel,
		"model_provider": c.ModelProvider,
		"model_timeout":  c.ModelTimeout.String(),
		"max_attempts":   c.ModelMaxAttempts,
		"min_confidence": c.MinConfidence,
		"data_backend":   c.DataBackend,
		"archive":        c.ArchiveBucket != "",
		"events":         c.AMQPURL != "",
		"job_workers":    c.JobWorkers,
		"scheduled":      len(c.ScheduleUsers),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
