// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Broker      BrokerConfig      `yaml:"broker"`
	Advisor     AdvisorConfig     `yaml:"advisor"`
	Calendar    CalendarConfig    `yaml:"calendar"`
	Session     SessionConfig     `yaml:"session"`
	Trading     TradingConfig     `yaml:"trading"`
	Store       StoreConfig       `yaml:"store"`
	System      SystemConfig      `yaml:"system"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Instruments   []string `yaml:"instruments"`
	CycleInterval int      `yaml:"cycle_interval"` // seconds between decision cycles
}

// BrokerConfig contains broker API credentials and endpoints
type BrokerConfig struct {
	APIKey     Secret `yaml:"api_key"`
	SecretKey  Secret `yaml:"secret_key"`
	BaseURL    string `yaml:"base_url"`
	RecvWindow int    `yaml:"recv_window"` // milliseconds
	RateLimit  int    `yaml:"rate_limit"`  // requests per second
}

// AdvisorConfig contains settings for the advisory model client
type AdvisorConfig struct {
	APIKey      Secret  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_seconds"`
}

// CalendarConfig contains economic calendar settings. The API key is
// optional; without it the calendar degrades to an empty event list.
type CalendarConfig struct {
	APIKey      Secret `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	HorizonDays int    `yaml:"horizon_days"`
}

// SessionWindow is a UTC time-of-day window in HH:MM format.
// A window whose end precedes its start wraps past midnight.
type SessionWindow struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// SessionConfig contains trading session gating settings
type SessionConfig struct {
	Windows []SessionWindow `yaml:"windows"`
}

// TradingConfig contains decision and sizing parameters
type TradingConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // inclusive, 0-10 scale
	MinRiskReward       float64 `yaml:"min_risk_reward"`      // exclusive
	RiskFraction        float64 `yaml:"risk_fraction"`        // fraction of equity risked per entry
	Leverage            int     `yaml:"leverage"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
	OrderExpiryMinutes  int     `yaml:"order_expiry_minutes"` // unfilled entry orders older than this are cancelled
	StopTolerancePct    float64 `yaml:"stop_tolerance_pct"`   // breakeven idempotence tolerance, e.g. 0.0005
}

// StoreConfig contains durable metadata store settings
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// AlertsConfig contains outbound notification settings
type AlertsConfig struct {
	Enabled          bool   `yaml:"enabled"`
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	SnapshotPoolSize   int `yaml:"snapshot_pool_size"`
	SnapshotPoolBuffer int `yaml:"snapshot_pool_buffer"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.CycleInterval <= 0 {
		c.App.CycleInterval = 300
	}
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "https://fapi.binance.com"
	}
	if c.Broker.RecvWindow <= 0 {
		c.Broker.RecvWindow = 5000
	}
	if c.Broker.RateLimit <= 0 {
		c.Broker.RateLimit = 10
	}
	if c.Advisor.BaseURL == "" {
		c.Advisor.BaseURL = "https://api.openai.com"
	}
	if c.Advisor.Model == "" {
		c.Advisor.Model = "gpt-4o"
	}
	if c.Advisor.TimeoutSecs <= 0 {
		c.Advisor.TimeoutSecs = 90
	}
	if c.Calendar.BaseURL == "" {
		c.Calendar.BaseURL = "https://financialmodelingprep.com"
	}
	if c.Calendar.HorizonDays <= 0 {
		c.Calendar.HorizonDays = 2
	}
	if c.Trading.MaxOpenPositions <= 0 {
		c.Trading.MaxOpenPositions = 5
	}
	if c.Trading.OrderExpiryMinutes <= 0 {
		c.Trading.OrderExpiryMinutes = 120
	}
	if c.Trading.StopTolerancePct <= 0 {
		c.Trading.StopTolerancePct = 0.0005
	}
	if c.Trading.Leverage <= 0 {
		c.Trading.Leverage = 5
	}
	if c.Store.Path == "" {
		c.Store.Path = "orchestrator.db"
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Concurrency.SnapshotPoolSize <= 0 {
		c.Concurrency.SnapshotPoolSize = 4
	}
	if c.Concurrency.SnapshotPoolBuffer <= 0 {
		c.Concurrency.SnapshotPoolBuffer = 32
	}
	if c.Telemetry.MetricsPort <= 0 {
		c.Telemetry.MetricsPort = 9090
	}
}

// CyclePeriod returns the cycle interval as a duration
func (c *Config) CyclePeriod() time.Duration {
	return time.Duration(c.App.CycleInterval) * time.Second
}

// AdvisorTimeout returns the advisory call timeout as a duration
func (c *Config) AdvisorTimeout() time.Duration {
	return time.Duration(c.Advisor.TimeoutSecs) * time.Second
}

// OrderExpiry returns the entry order expiry as a duration
func (c *Config) OrderExpiry() time.Duration {
	return time.Duration(c.Trading.OrderExpiryMinutes) * time.Minute
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateBrokerConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateAdvisorConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSessionConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateTradingConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if len(c.App.Instruments) == 0 {
		return ValidationError{
			Field:   "app.instruments",
			Message: "at least one instrument must be configured",
		}
	}
	for _, inst := range c.App.Instruments {
		if strings.TrimSpace(inst) == "" {
			return ValidationError{
				Field:   "app.instruments",
				Message: "instrument symbols must be non-empty",
			}
		}
	}
	return nil
}

func (c *Config) validateBrokerConfig() error {
	if c.Broker.APIKey == "" {
		return ValidationError{
			Field:   "broker.api_key",
			Message: "API key is required",
		}
	}
	if c.Broker.SecretKey == "" {
		return ValidationError{
			Field:   "broker.secret_key",
			Message: "secret key is required",
		}
	}
	return nil
}

func (c *Config) validateAdvisorConfig() error {
	if c.Advisor.APIKey == "" {
		return ValidationError{
			Field:   "advisor.api_key",
			Message: "API key is required",
		}
	}
	if c.Advisor.Temperature < 0 || c.Advisor.Temperature > 2 {
		return ValidationError{
			Field:   "advisor.temperature",
			Value:   c.Advisor.Temperature,
			Message: "must be between 0 and 2",
		}
	}
	return nil
}

func (c *Config) validateSessionConfig() error {
	for i, w := range c.Session.Windows {
		if _, err := time.Parse("15:04", w.Start); err != nil {
			return ValidationError{
				Field:   fmt.Sprintf("session.windows[%d].start", i),
				Value:   w.Start,
				Message: "must be HH:MM in 24-hour UTC time",
			}
		}
		if _, err := time.Parse("15:04", w.End); err != nil {
			return ValidationError{
				Field:   fmt.Sprintf("session.windows[%d].end", i),
				Value:   w.End,
				Message: "must be HH:MM in 24-hour UTC time",
			}
		}
	}
	return nil
}

func (c *Config) validateTradingConfig() error {
	if c.Trading.ConfidenceThreshold < 0 || c.Trading.ConfidenceThreshold > 10 {
		return ValidationError{
			Field:   "trading.confidence_threshold",
			Value:   c.Trading.ConfidenceThreshold,
			Message: "must be between 0 and 10",
		}
	}
	if c.Trading.MinRiskReward < 0 {
		return ValidationError{
			Field:   "trading.min_risk_reward",
			Value:   c.Trading.MinRiskReward,
			Message: "must be non-negative",
		}
	}
	if c.Trading.RiskFraction <= 0 || c.Trading.RiskFraction > 0.1 {
		return ValidationError{
			Field:   "trading.risk_fraction",
			Value:   c.Trading.RiskFraction,
			Message: "must be positive and at most 0.1",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration.
// Secret fields redact themselves during marshaling.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	cfg := &Config{
		App: AppConfig{
			Instruments:   []string{"BTCUSDT", "ETHUSDT"},
			CycleInterval: 300,
		},
		Broker: BrokerConfig{
			APIKey:    "test_api_key",
			SecretKey: "test_secret_key",
		},
		Advisor: AdvisorConfig{
			APIKey:      "test_advisor_key",
			Model:       "gpt-4o",
			Temperature: 0.2,
		},
		Session: SessionConfig{
			Windows: []SessionWindow{
				{Start: "07:00", End: "21:00"},
			},
		},
		Trading: TradingConfig{
			ConfidenceThreshold: 7,
			MinRiskReward:       1.5,
			RiskFraction:        0.01,
			Leverage:            5,
			MaxOpenPositions:    5,
			OrderExpiryMinutes:  120,
			StopTolerancePct:    0.0005,
		},
		Store: StoreConfig{
			Path: "orchestrator.db",
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
	}
	cfg.applyDefaults()
	return cfg
}
