// Package config provides configuration for the livesession client, CLI and
// development backend.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

// Transport selects the push connector.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

// Config holds the livesession configuration.
type Config struct {
	// Backend
	BackendURL string `yaml:"backend_url"`
	RosterURL  string `yaml:"roster_url"`
	ContextID  string `yaml:"context_id"`
	Model      string `yaml:"model"`
	Transport  string `yaml:"transport"`

	// Reconnect
	AgentReconnect     string `yaml:"agent_reconnect"`
	RosterReconnect    string `yaml:"roster_reconnect"`
	RosterMaxRetries   int    `yaml:"roster_max_retries"`
	ReconnectInitialMS int    `yaml:"reconnect_initial_ms"`
	ReconnectMaxMS     int    `yaml:"reconnect_max_ms"`

	// Timeouts
	RequestTimeoutMS int `yaml:"request_timeout_ms"`

	// Journal; empty disables it
	DatabaseURL string `yaml:"database_url"`

	// Development backend
	HTTPPort int `yaml:"http_port"`

	PolicyFile string `yaml:"policy_file"`

	// Logging
	LogLevel string `yaml:"log_level"`
	Dev      bool   `yaml:"dev"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BackendURL:         "http://localhost:8080",
		ContextID:          "default",
		Transport:          TransportSSE,
		AgentReconnect:     string(domain.ReconnectNone),
		RosterReconnect:    string(domain.ReconnectInfinite),
		RosterMaxRetries:   0,
		ReconnectInitialMS: 1000,
		ReconnectMaxMS:     30000,
		RequestTimeoutMS:   30000,
		HTTPPort:           8080,
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.BackendURL = getEnv("BACKEND_URL", cfg.BackendURL)
	cfg.RosterURL = getEnv("ROSTER_URL", cfg.RosterURL)
	cfg.ContextID = getEnv("CONTEXT_ID", cfg.ContextID)
	cfg.Model = getEnv("MODEL", cfg.Model)
	cfg.Transport = getEnv("TRANSPORT", cfg.Transport)
	cfg.AgentReconnect = getEnv("AGENT_RECONNECT", cfg.AgentReconnect)
	cfg.RosterReconnect = getEnv("ROSTER_RECONNECT", cfg.RosterReconnect)
	cfg.RosterMaxRetries = getEnvInt("ROSTER_MAX_RETRIES", cfg.RosterMaxRetries)
	cfg.ReconnectInitialMS = getEnvInt("RECONNECT_INITIAL_MS", cfg.ReconnectInitialMS)
	cfg.ReconnectMaxMS = getEnvInt("RECONNECT_MAX_MS", cfg.ReconnectMaxMS)
	cfg.RequestTimeoutMS = getEnvInt("REQUEST_TIMEOUT_MS", cfg.RequestTimeoutMS)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.PolicyFile = getEnv("POLICY_FILE", cfg.PolicyFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Dev = getEnvBool("DEV", cfg.Dev)

	if cfg.RosterURL == "" {
		cfg.RosterURL = cfg.BackendURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if c.Transport != TransportSSE && c.Transport != TransportWebSocket {
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if _, err := domain.ParseReconnectMode(c.AgentReconnect); err != nil {
		return fmt.Errorf("agent_reconnect: %w", err)
	}
	if _, err := domain.ParseReconnectMode(c.RosterReconnect); err != nil {
		return fmt.Errorf("roster_reconnect: %w", err)
	}
	return nil
}

// AgentPolicy is the reconnect policy for agent chat streams.
func (c *Config) AgentPolicy() domain.ReconnectPolicy {
	return c.reconnectPolicy(c.AgentReconnect, 0)
}

// RosterPolicy is the reconnect policy for roster streams.
func (c *Config) RosterPolicy() domain.ReconnectPolicy {
	return c.reconnectPolicy(c.RosterReconnect, c.RosterMaxRetries)
}

// RequestTimeout bounds one backend round trip.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) reconnectPolicy(mode string, maxRetries int) domain.ReconnectPolicy {
	m, err := domain.ParseReconnectMode(mode)
	if err != nil {
		m = domain.ReconnectNone
	}
	return domain.ReconnectPolicy{
		Mode:         m,
		MaxRetries:   maxRetries,
		InitialDelay: time.Duration(c.ReconnectInitialMS) * time.Millisecond,
		MaxDelay:     time.Duration(c.ReconnectMaxMS) * time.Millisecond,
	}
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

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultVal
}
