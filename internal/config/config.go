// Package config provides configuration for chatd.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ModeMock switches every provider to the mock adapter.
const ModeMock = "MOCK"

// Config holds the chatd configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// LLM
	Mode       string
	LLMTimeout time.Duration

	// Credentials
	SecretKey string

	// Tools
	ToolCatalogPath string
	ToolPolicyPath  string

	// Turns
	PersistTimeout   time.Duration
	StreamRatePerSec float64
	StreamBurst      int
	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration
	WSReadTimeout    time.Duration
	WSMaxMessageSize int64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:      getEnv("DATABASE_URL", "file:chatd.db?cache=shared&mode=rwc"),
		Mode:             strings.ToUpper(getEnv("CHATD_MODE", "")),
		LLMTimeout:       time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		SecretKey:        getEnv("CHATD_SECRET_KEY", ""),
		ToolCatalogPath:  getEnv("TOOL_CATALOG_PATH", "mcp_config.json"),
		ToolPolicyPath:   getEnv("TOOL_POLICY_PATH", ""),
		PersistTimeout:   time.Duration(getEnvInt("PERSIST_TIMEOUT_MS", 5000)) * time.Millisecond,
		StreamRatePerSec: getEnvFloat("STREAM_RATE_PER_SEC", 1),
		StreamBurst:      getEnvInt("STREAM_BURST", 5),
		WSPingInterval:   time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WSWriteTimeout:   time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WSReadTimeout:    time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		WSMaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// MockMode reports whether provider calls are served by the mock adapter.
func (c *Config) MockMode() bool {
	return c.Mode == ModeMock
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
