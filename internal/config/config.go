package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cexll/pomotask/internal/chat"
	"github.com/cexll/pomotask/internal/dispatcher"
	"github.com/cexll/pomotask/internal/store"
	"github.com/cexll/pomotask/internal/tasksync"
	"github.com/cexll/pomotask/internal/whatsapp"
)

// Config holds all configuration for the pomotask service
type Config struct {
	// Server settings
	Port int

	// Storage; empty DatabasePath keeps everything in memory
	DatabasePath string

	// Identity provider token secret
	AuthJWTSecret string

	// Evolution API gateway
	EvolutionAPIURL       string
	EvolutionAPIKey       string
	EvolutionInstanceName string
	WebhookToken          string
	DebugWebhookBuffer    int

	// Chat assistant
	N8NWebhookURL string
	OpenAIAPIKey  string
	OpenAIBaseURL string // Optional: OpenAI-compatible endpoint
	ChatModel     string

	// Summary broadcast dispatcher
	SummaryWorkers           int
	SummaryQueueSize         int
	SummaryMaxAttempts       int
	SummaryRetryInitial      time.Duration
	SummaryRetryMax          time.Duration
	SummaryBackoffMultiplier float64

	// Users whose task board stays cached in memory
	BoardCacheSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                     getEnvInt("PORT", 8000),
		DatabasePath:             getEnvAllowEmpty("DATABASE_PATH", "data/pomotask.db"),
		AuthJWTSecret:            os.Getenv("AUTH_JWT_SECRET"),
		EvolutionAPIURL:          strings.TrimSpace(os.Getenv("EVOLUTION_API_URL")),
		EvolutionAPIKey:          strings.TrimSpace(os.Getenv("EVOLUTION_API_KEY")),
		EvolutionInstanceName:    strings.TrimSpace(os.Getenv("EVOLUTION_INSTANCE_NAME")),
		WebhookToken:             strings.TrimSpace(os.Getenv("WHATSAPP_WEBHOOK_TOKEN")),
		DebugWebhookBuffer:       getEnvInt("DEBUG_WEBHOOK_BUFFER", 20),
		N8NWebhookURL:            strings.TrimSpace(os.Getenv("N8N_WEBHOOK_URL")),
		OpenAIAPIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:            os.Getenv("OPENAI_BASE_URL"),
		ChatModel:                getEnv("CHAT_MODEL", chat.DefaultModel),
		SummaryWorkers:           getEnvInt("SUMMARY_WORKERS", 2),
		SummaryQueueSize:         getEnvInt("SUMMARY_QUEUE_SIZE", 32),
		SummaryMaxAttempts:       getEnvInt("SUMMARY_MAX_ATTEMPTS", 3),
		SummaryRetryInitial:      time.Duration(getEnvInt("SUMMARY_RETRY_SECONDS", 5)) * time.Second,
		SummaryRetryMax:          time.Duration(getEnvInt("SUMMARY_RETRY_MAX_SECONDS", 60)) * time.Second,
		SummaryBackoffMultiplier: getEnvFloat("SUMMARY_BACKOFF_MULTIPLIER", 2.0),
		BoardCacheSize:           getEnvInt("BOARD_CACHE_SIZE", tasksync.DefaultBoardLimit),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if strings.TrimSpace(c.AuthJWTSecret) == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if !c.WhatsApp().Configured() {
		log.Printf("Warning: EVOLUTION_API_URL, EVOLUTION_API_KEY or EVOLUTION_INSTANCE_NAME not set, WhatsApp bot disabled")
	}
	if c.N8NWebhookURL == "" && c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
		log.Printf("Warning: neither N8N_WEBHOOK_URL nor OPENAI_API_KEY set, chat assistant disabled")
	}
	if c.DebugWebhookBuffer <= 0 {
		c.DebugWebhookBuffer = 20
	}
	if c.BoardCacheSize <= 0 {
		c.BoardCacheSize = tasksync.DefaultBoardLimit
	}

	c.applySummaryDefaults()
	return c.validateSummaryConfig()
}

func (c *Config) applySummaryDefaults() {
	if c.SummaryWorkers <= 0 {
		c.SummaryWorkers = 2
	}
	if c.SummaryQueueSize <= 0 {
		c.SummaryQueueSize = 32
	}
	if c.SummaryMaxAttempts <= 0 {
		c.SummaryMaxAttempts = 3
	}
	if c.SummaryRetryInitial <= 0 {
		c.SummaryRetryInitial = 5 * time.Second
	}
	if c.SummaryRetryMax <= 0 {
		c.SummaryRetryMax = time.Minute
	}
	if c.SummaryBackoffMultiplier < 1 {
		c.SummaryBackoffMultiplier = 2
	}
}

func (c *Config) validateSummaryConfig() error {
	if c.SummaryRetryMax < c.SummaryRetryInitial {
		return fmt.Errorf("SUMMARY_RETRY_MAX_SECONDS must be >= SUMMARY_RETRY_SECONDS")
	}
	return nil
}

// WhatsApp returns the gateway settings
func (c *Config) WhatsApp() whatsapp.Config {
	return whatsapp.Config{
		APIURL:       c.EvolutionAPIURL,
		APIKey:       c.EvolutionAPIKey,
		InstanceName: c.EvolutionInstanceName,
	}
}

// Chat returns the assistant provider settings
func (c *Config) Chat() chat.Config {
	return chat.Config{
		N8NWebhookURL: c.N8NWebhookURL,
		OpenAIAPIKey:  c.OpenAIAPIKey,
		OpenAIBaseURL: c.OpenAIBaseURL,
		Model:         c.ChatModel,
	}
}

// Dispatcher returns the summary worker pool settings
func (c *Config) Dispatcher() dispatcher.Config {
	return dispatcher.Config{
		Workers:           c.SummaryWorkers,
		QueueSize:         c.SummaryQueueSize,
		MaxAttempts:       c.SummaryMaxAttempts,
		InitialBackoff:    c.SummaryRetryInitial,
		BackoffMultiplier: c.SummaryBackoffMultiplier,
		MaxBackoff:        c.SummaryRetryMax,
	}
}

// OpenStore opens the SQLite database, or an in-memory store when DatabasePath is empty
func (c *Config) OpenStore() (store.Store, error) {
	if c.DatabasePath == "" {
		log.Printf("Warning: DATABASE_PATH is empty, data is kept in memory only")
		return store.NewMemory(), nil
	}
	st, err := store.NewSQLite(c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", c.DatabasePath, err)
	}
	return st, nil
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes an unset variable from one set to ""
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
