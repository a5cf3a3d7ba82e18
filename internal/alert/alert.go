// Package alert fans out trade and failure notifications to chat channels
package alert

import (
	"context"
	"sync"
	"time"

	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/core"
)

type AlertLevel string

const (
	Info     AlertLevel = "INFO"
	Warning  AlertLevel = "WARNING"
	Error    AlertLevel = "ERROR"
	Critical AlertLevel = "CRITICAL"
)

type AlertPayload struct {
	Level     AlertLevel
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type AlertChannel interface {
	Send(ctx context.Context, alert AlertPayload) error
	Name() string
}

// Manager delivers alerts to all registered channels. Delivery is
// asynchronous so a slow webhook never blocks the decision cycle.
type Manager struct {
	channels []AlertChannel
	logger   core.ILogger
	mu       sync.RWMutex
}

// NewManager creates an alert manager with no channels
func NewManager(logger core.ILogger) *Manager {
	return &Manager{
		channels: make([]AlertChannel, 0),
		logger:   logger.WithField("component", "alert_manager"),
	}
}

// NewManagerFromConfig wires channels from the alerts configuration
func NewManagerFromConfig(cfg config.AlertsConfig, logger core.ILogger) *Manager {
	m := NewManager(logger)
	if !cfg.Enabled {
		return m
	}
	if cfg.SlackWebhookURL != "" {
		m.AddChannel(NewSlackChannel(cfg.SlackWebhookURL.Reveal()))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		m.AddChannel(NewTelegramChannel(cfg.TelegramBotToken.Reveal(), cfg.TelegramChatID))
	}
	return m
}

func (m *Manager) AddChannel(ch AlertChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

// Alert sends the payload to every channel in the background
func (m *Manager) Alert(ctx context.Context, title, message string, level AlertLevel, fields map[string]string) {
	payload := AlertPayload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	m.logger.Info("Triggering alert", "title", title, "level", level)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.channels {
		go func(c AlertChannel) {
			timeoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()

			if err := c.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
			}
		}(ch)
	}
}
