// Package calendar fetches upcoming economic events for advisory context
package calendar

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/core"
	httpclient "futures_orchestrator/pkg/http"
)

const eventsPath = "/api/v3/economic_calendar"

// Client pulls the economic calendar from Financial Modeling Prep.
// The calendar is best-effort context: any failure, including a missing
// API key, degrades to an empty event list so a calendar outage never
// blocks a decision cycle.
type Client struct {
	http   *httpclient.Client
	apiKey config.Secret
	logger core.ILogger
	now    func() time.Time
}

// NewClient creates a calendar client. An empty API key is allowed.
func NewClient(cfg config.CalendarConfig, logger core.ILogger) *Client {
	return &Client{
		http:   httpclient.NewClient(cfg.BaseURL, 15*time.Second, nil),
		apiKey: cfg.APIKey,
		logger: logger.WithField("component", "calendar"),
		now:    time.Now,
	}
}

type fmpEvent struct {
	Date   string `json:"date"`
	Event  string `json:"event"`
	Impact string `json:"impact"`
}

// UpcomingEvents returns events within the next `days` days, soonest first.
// Never returns an error; failures are logged and yield an empty slice.
func (c *Client) UpcomingEvents(ctx context.Context, days int) []core.EconomicEvent {
	if c.apiKey == "" {
		c.logger.Debug("No calendar API key configured, skipping event fetch")
		return nil
	}

	from := c.now().UTC()
	to := from.AddDate(0, 0, days)

	body, err := c.http.Get(ctx, eventsPath, map[string]string{
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
		"apikey": c.apiKey.Reveal(),
	})
	if err != nil {
		c.logger.Warn("Calendar fetch failed, continuing without events", "error", err)
		return nil
	}

	var raw []fmpEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Warn("Calendar response malformed, continuing without events", "error", err)
		return nil
	}

	events := make([]core.EconomicEvent, 0, len(raw))
	for _, e := range raw {
		ts, err := time.Parse("2006-01-02 15:04:05", e.Date)
		if err != nil {
			continue
		}
		if ts.Before(from) {
			continue
		}
		events = append(events, core.EconomicEvent{
			Time:   ts.UTC(),
			Title:  e.Event,
			Impact: e.Impact,
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})

	return events
}
