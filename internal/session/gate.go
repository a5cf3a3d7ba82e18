// Package session decides whether new entries are permitted at a given time
package session

import (
	"fmt"
	"time"

	"futures_orchestrator/internal/config"
)

// window is a half-open [start, end) range in minutes since midnight UTC.
// start > end means the window wraps past midnight.
type window struct {
	start int
	end   int
}

// Gate evaluates UTC time-of-day windows. With no windows configured the
// gate is always open.
type Gate struct {
	windows []window
}

// NewGate parses the configured windows. Window bounds must be HH:MM.
func NewGate(cfg config.SessionConfig) (*Gate, error) {
	g := &Gate{}
	for i, w := range cfg.Windows {
		start, err := parseMinutes(w.Start)
		if err != nil {
			return nil, fmt.Errorf("session window %d start: %w", i, err)
		}
		end, err := parseMinutes(w.End)
		if err != nil {
			return nil, fmt.Errorf("session window %d end: %w", i, err)
		}
		g.windows = append(g.windows, window{start: start, end: end})
	}
	return g, nil
}

// PermitsEntry reports whether the instant falls inside any configured
// window. The check uses UTC wall-clock time regardless of the input's
// location.
func (g *Gate) PermitsEntry(at time.Time) bool {
	if len(g.windows) == 0 {
		return true
	}

	utc := at.UTC()
	minutes := utc.Hour()*60 + utc.Minute()

	for _, w := range g.windows {
		if w.start <= w.end {
			if minutes >= w.start && minutes < w.end {
				return true
			}
		} else {
			// Wraps midnight: open from start to 24:00 and 00:00 to end.
			if minutes >= w.start || minutes < w.end {
				return true
			}
		}
	}
	return false
}

func parseMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
