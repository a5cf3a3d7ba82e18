package trading

import (
	"time"

	"futures_orchestrator/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DecisionConfig carries the pure-policy knobs of the engine
type DecisionConfig struct {
	ConfidenceThreshold float64 // inclusive lower bound
	MinRiskReward       float64 // exclusive lower bound
	RiskFraction        float64
	Leverage            int
	MaxOpenPositions    int
	OrderExpiry         time.Duration
	StopTolerancePct    float64
	QuantityStep        decimal.Decimal // entry quantity is truncated to this step
}

// DecisionInput is everything one cycle's decision depends on. The engine
// never fetches anything itself; all external state arrives here.
type DecisionInput struct {
	Suggestions []core.AdvisorySuggestion
	Diff        core.ReconciliationDiff
	Positions   []core.OpenPosition
	Account     core.AccountSummary
	SessionOpen bool
	BrokerStale bool // diff comes from an earlier cycle, broker fetches failed
	Now         time.Time
}

// Engine turns a cycle's inputs into an ordered action list. It holds no
// mutable state; everything it decides is a function of DecisionInput.
type Engine struct {
	cfg    DecisionConfig
	logger core.ILogger
	newID  func() string
}

// NewEngine creates a decision engine
func NewEngine(cfg DecisionConfig, logger core.ILogger) *Engine {
	if cfg.QuantityStep.IsZero() {
		cfg.QuantityStep = decimal.NewFromFloat(0.001)
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.WithField("component", "decision"),
		newID:  func() string { return "fo-" + uuid.NewString() },
	}
}

// Decide emits actions in dependency order: prunes, cancels of expired
// entries, protective orders for unarmed positions, breakeven stop moves,
// then new entries. With a stale broker view only prunes are emitted;
// everything else needs fresh truth.
func (e *Engine) Decide(input DecisionInput) []core.Action {
	var actions []core.Action

	actions = append(actions, e.pruneActions(input)...)

	if input.BrokerStale {
		if len(actions) > 0 {
			e.logger.Warn("Broker state is stale, emitting prunes only", "prunes", len(actions))
		}
		return actions
	}

	actions = append(actions, e.expiryActions(input)...)
	actions = append(actions, e.protectionActions(input)...)
	actions = append(actions, e.breakevenActions(input)...)
	actions = append(actions, e.entryActions(input)...)

	return actions
}

// pruneActions drops every local record the broker no longer confirms
func (e *Engine) pruneActions(input DecisionInput) []core.Action {
	var actions []core.Action
	for _, record := range input.Diff.OrphanedLocal {
		e.logger.Info("Pruning stale metadata", "key", record.Key, "status", record.Status)
		actions = append(actions, core.Action{
			Type:  core.ActionPruneMetadata,
			Prune: &core.PruneMetadataAction{Key: record.Key},
		})
	}
	return actions
}

// expiryActions cancels entry orders that have rested unfilled too long
func (e *Engine) expiryActions(input DecisionInput) []core.Action {
	if e.cfg.OrderExpiry <= 0 {
		return nil
	}

	var actions []core.Action
	for _, m := range input.Diff.Matched {
		if m.Order == nil || m.Position != nil {
			continue
		}
		age := input.Now.Sub(m.Local.CreatedAt)
		if age < e.cfg.OrderExpiry {
			continue
		}
		e.logger.Info("Cancelling expired entry order",
			"key", m.Local.Key, "order_id", m.Order.ID, "age", age.String())
		actions = append(actions, core.Action{
			Type: core.ActionCancelOrder,
			Cancel: &core.CancelOrderAction{
				Instrument:    m.Local.Instrument,
				BrokerOrderID: m.Order.ID,
				Key:           m.Local.Key,
			},
		})
	}
	return actions
}

// protectionActions arms filled positions whose protective orders are not
// working on the broker. The stop is re-placed from the record; the
// take-profit closes the whole position at the final target, so the
// breakeven move at the first target stays reachable. Breakeven-eligible
// positions skip the stop re-arm, their stop goes to entry instead.
func (e *Engine) protectionActions(input DecisionInput) []core.Action {
	var actions []core.Action
	for _, m := range input.Diff.Matched {
		if m.Position == nil {
			continue
		}

		if m.Position.Stop.IsZero() && m.Local.Stop.GreaterThan(decimal.Zero) &&
			!BreakevenEligible(m, e.cfg.StopTolerancePct) {
			e.logger.Warn("Position has no working stop, re-arming from record",
				"key", m.Local.Key, "stop", m.Local.Stop)
			actions = append(actions, core.Action{
				Type: core.ActionModifyStop,
				Stop: &core.ModifyStopAction{
					Instrument: m.Local.Instrument,
					Side:       m.Position.Side,
					Size:       m.Position.Size,
					Price:      m.Local.Stop,
					Key:        m.Local.Key,
				},
			})
		}

		if m.Position.TakeProfit.IsZero() && len(m.Local.Targets) > 0 {
			target := m.Local.Targets[len(m.Local.Targets)-1]
			e.logger.Info("Placing take-profit for filled position",
				"key", m.Local.Key, "target", target)
			actions = append(actions, core.Action{
				Type: core.ActionPlaceTakeProfit,
				TakeProfit: &core.PlaceTakeProfitAction{
					Instrument: m.Local.Instrument,
					Side:       m.Position.Side,
					Size:       m.Position.Size,
					Price:      target,
				},
			})
		}
	}
	return actions
}

// breakevenActions moves stops to entry for positions whose first target
// traded. Position management ignores the session gate: a position opened
// in-session still needs protecting out of hours.
func (e *Engine) breakevenActions(input DecisionInput) []core.Action {
	var actions []core.Action
	for _, m := range input.Diff.Matched {
		if !BreakevenEligible(m, e.cfg.StopTolerancePct) {
			continue
		}
		e.logger.Info("Moving stop to breakeven",
			"key", m.Local.Key, "entry", m.Local.Entry, "mark", m.Position.MarkPrice)
		actions = append(actions, core.Action{
			Type: core.ActionModifyStop,
			Stop: &core.ModifyStopAction{
				Instrument: m.Local.Instrument,
				Side:       m.Position.Side,
				Size:       m.Position.Size,
				Price:      m.Local.Entry,
				Breakeven:  true,
				Key:        m.Local.Key,
			},
		})
	}
	return actions
}

// entryActions filters suggestions down to new entry orders
func (e *Engine) entryActions(input DecisionInput) []core.Action {
	if !input.SessionOpen {
		if len(input.Suggestions) > 0 {
			e.logger.Info("Session closed, discarding suggestions", "count", len(input.Suggestions))
		}
		return nil
	}

	covered := make(map[string]bool)
	for _, m := range input.Diff.Matched {
		covered[m.Local.Key] = true
	}
	for _, p := range input.Positions {
		covered[core.OrderKey(p.Instrument, p.Side)] = true
	}

	budget := e.cfg.MaxOpenPositions - len(input.Positions)

	var actions []core.Action
	for _, s := range input.Suggestions {
		if budget <= 0 {
			e.logger.Info("Max open positions reached, discarding remaining suggestions")
			break
		}
		if s.Direction == core.DirectionNone {
			continue
		}
		if s.Confidence < e.cfg.ConfidenceThreshold {
			e.logger.Debug("Suggestion below confidence threshold",
				"instrument", s.Instrument, "confidence", s.Confidence)
			continue
		}
		if s.RiskReward <= e.cfg.MinRiskReward {
			e.logger.Debug("Suggestion below risk/reward threshold",
				"instrument", s.Instrument, "rr", s.RiskReward)
			continue
		}

		key := core.OrderKey(s.Instrument, s.Direction.Side())
		if covered[key] {
			e.logger.Debug("Suggestion already covered by working order or position", "key", key)
			continue
		}

		quantity := e.sizePosition(input.Account.Equity, s.Entry, s.Stop)
		if quantity.IsZero() {
			e.logger.Warn("Sized quantity is zero, discarding suggestion",
				"instrument", s.Instrument, "equity", input.Account.Equity)
			continue
		}

		covered[key] = true
		budget--
		actions = append(actions, core.Action{
			Type: core.ActionPlaceOrder,
			Place: &core.PlaceOrderAction{
				Spec: core.OrderSpec{
					Instrument:    s.Instrument,
					Side:          s.Direction.Side(),
					Entry:         s.Entry,
					Stop:          s.Stop,
					Targets:       s.Targets,
					Quantity:      quantity,
					ClientOrderID: e.newID(),
				},
			},
		})
	}
	return actions
}

// sizePosition risks a fixed fraction of equity against the stop distance,
// capped by available leverage, truncated to the quantity step.
func (e *Engine) sizePosition(equity, entry, stop decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() || equity.LessThanOrEqual(decimal.Zero) || entry.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	quantity := equity.Mul(decimal.NewFromFloat(e.cfg.RiskFraction)).Div(risk)

	maxNotional := equity.Mul(decimal.NewFromInt(int64(e.cfg.Leverage)))
	if quantity.Mul(entry).GreaterThan(maxNotional) {
		quantity = maxNotional.Div(entry)
	}

	// Truncate toward zero to the step so we never round up past the cap.
	steps := quantity.Div(e.cfg.QuantityStep).Floor()
	return steps.Mul(e.cfg.QuantityStep)
}
