package advisor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"futures_orchestrator/internal/core"
	apperrors "futures_orchestrator/pkg/errors"
)

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

type tradeList struct {
	Coins []tradeEntry `json:"coins"`
}

type tradeEntry struct {
	Pair  string   `json:"pair"`
	Entry float64  `json:"entry"`
	SL    float64  `json:"sl"`
	TP1   float64  `json:"tp1"`
	TP2   float64  `json:"tp2"`
	TP3   float64  `json:"tp3"`
	Conf  float64  `json:"conf"`
	RR    *float64 `json:"rr"`
}

// parseSuggestions turns the model's message content into validated
// suggestions. The envelope must parse; individual entries that fail
// validation are dropped with their reason, never half-filled.
func parseSuggestions(content string, logger core.ILogger, now time.Time) ([]core.AdvisorySuggestion, error) {
	raw := jsonObjectPattern.FindString(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in model output", apperrors.ErrMalformedAdvisory)
	}

	var list tradeList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedAdvisory, err)
	}

	suggestions := make([]core.AdvisorySuggestion, 0, len(list.Coins))
	for _, entry := range list.Coins {
		suggestion, err := validateEntry(entry, now)
		if err != nil {
			logger.Warn("Dropping invalid advisory entry", "pair", entry.Pair, "error", err)
			continue
		}
		suggestions = append(suggestions, suggestion)
	}

	return suggestions, nil
}

func validateEntry(e tradeEntry, now time.Time) (core.AdvisorySuggestion, error) {
	if e.Pair == "" {
		return core.AdvisorySuggestion{}, fmt.Errorf("missing pair")
	}
	if e.Entry <= 0 || e.SL <= 0 {
		return core.AdvisorySuggestion{}, fmt.Errorf("non-positive entry or stop")
	}
	if e.Entry == e.SL {
		return core.AdvisorySuggestion{}, fmt.Errorf("entry equals stop, direction undecidable")
	}
	if e.Conf < 0 || e.Conf > 10 {
		return core.AdvisorySuggestion{}, fmt.Errorf("confidence %v out of range", e.Conf)
	}

	// Stop below entry means the model wants a long, above means short.
	direction := core.DirectionLong
	if e.SL > e.Entry {
		direction = core.DirectionShort
	}

	entry := decimal.NewFromFloat(e.Entry)
	stop := decimal.NewFromFloat(e.SL)

	var targets []decimal.Decimal
	for _, tp := range []float64{e.TP1, e.TP2, e.TP3} {
		if tp <= 0 {
			continue
		}
		target := decimal.NewFromFloat(tp)
		if !targetOnProfitSide(direction, entry, target) {
			return core.AdvisorySuggestion{}, fmt.Errorf("target %s on the losing side of entry", target)
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return core.AdvisorySuggestion{}, fmt.Errorf("no valid targets")
	}

	rr := computeRiskReward(e, entry, stop, targets[0])
	if rr <= 0 {
		return core.AdvisorySuggestion{}, fmt.Errorf("non-positive risk/reward")
	}

	return core.AdvisorySuggestion{
		Instrument: e.Pair,
		Direction:  direction,
		Entry:      entry,
		Stop:       stop,
		Targets:    targets,
		Confidence: e.Conf,
		RiskReward: rr,
		Timestamp:  now,
	}, nil
}

func targetOnProfitSide(d core.Direction, entry, target decimal.Decimal) bool {
	if d == core.DirectionLong {
		return target.GreaterThan(entry)
	}
	return target.LessThan(entry)
}

// computeRiskReward prefers the model-reported rr and falls back to the
// first target against the stop distance.
func computeRiskReward(e tradeEntry, entry, stop, firstTarget decimal.Decimal) float64 {
	if e.RR != nil && *e.RR > 0 {
		return *e.RR
	}
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return 0
	}
	reward := firstTarget.Sub(entry).Abs()
	rr, _ := reward.Div(risk).Float64()
	return rr
}
