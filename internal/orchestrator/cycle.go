// Package orchestrator runs the periodic observe/advise/decide/execute cycle
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"futures_orchestrator/internal/alert"
	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/core"
	"futures_orchestrator/internal/session"
	"futures_orchestrator/internal/snapshot"
	"futures_orchestrator/internal/trading"
	"futures_orchestrator/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Deps bundles the collaborators the orchestrator wires together
type Deps struct {
	Broker   core.Broker
	Advisor  core.Advisor
	Calendar core.Calendar
	Store    core.MetadataStore
	Gate     *session.Gate
	Builder  *snapshot.Builder
	Engine   *trading.Engine
	Executor *trading.Executor
	Alerts   *alert.Manager
	Logger   core.ILogger
}

// Orchestrator drives one decision cycle at a time. Cycles never overlap;
// a cycle that runs long simply delays the next tick.
type Orchestrator struct {
	cfg      *config.Config
	broker   core.Broker
	advisor  core.Advisor
	calendar core.Calendar
	store    core.MetadataStore
	gate     *session.Gate
	builder  *snapshot.Builder
	engine   *trading.Engine
	executor *trading.Executor
	alerts   *alert.Manager
	logger   core.ILogger
	tracer   trace.Tracer
	now      func() time.Time

	// lastDiff is the most recent successful reconciliation. When broker
	// fetches fail it still supports pruning decisions, flagged stale.
	lastDiff    core.ReconciliationDiff
	hasLastDiff bool
}

// New creates an orchestrator
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		broker:   deps.Broker,
		advisor:  deps.Advisor,
		calendar: deps.Calendar,
		store:    deps.Store,
		gate:     deps.Gate,
		builder:  deps.Builder,
		engine:   deps.Engine,
		executor: deps.Executor,
		alerts:   deps.Alerts,
		logger:   deps.Logger.WithField("component", "orchestrator"),
		tracer:   telemetry.GetTracer("orchestrator"),
		now:      time.Now,
	}
}

// Run executes cycles on the configured interval until the context is
// cancelled. The first cycle runs immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	period := o.cfg.CyclePeriod()
	o.logger.Info("Starting cycle loop", "period", period.String(), "instruments", o.cfg.App.Instruments)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		if err := o.RunCycle(ctx); err != nil {
			o.logger.Error("Cycle failed", "error", err)
			o.alerts.Alert(ctx, "Cycle Failed", err.Error(), alert.Error, nil)
		}

		select {
		case <-ctx.Done():
			o.logger.Info("Cycle loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes one full decision cycle
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "RunCycle")
	defer span.End()

	started := o.now()
	metrics := telemetry.GetGlobalMetrics()
	defer func() {
		if metrics.CyclesTotal != nil {
			metrics.CyclesTotal.Add(ctx, 1)
		}
		if metrics.CycleDuration != nil {
			metrics.CycleDuration.Record(ctx, o.now().Sub(started).Seconds())
		}
	}()

	sessionOpen := o.gate.PermitsEntry(o.now())
	metrics.SetSessionOpen(sessionOpen)
	span.SetAttributes(attribute.Bool("session.open", sessionOpen))

	// Market snapshot and calendar fetches are independent, run them in
	// parallel. The calendar degrades internally and never errors.
	var (
		marketSnap core.MarketSnapshot
		snapErr    error
		events     []core.EconomicEvent
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		marketSnap, snapErr = o.builder.Build(groupCtx)
		return nil
	})
	group.Go(func() error {
		events = o.calendar.UpcomingEvents(groupCtx, o.cfg.Calendar.HorizonDays)
		return nil
	})
	_ = group.Wait()

	local, err := o.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list managed orders: %w", err)
	}
	metrics.SetManagedOrders(int64(len(local)))

	diff, positions, account, brokerStale := o.reconcile(ctx, local)
	if !brokerStale {
		metrics.SetOpenPositions(int64(len(positions)))
	}

	suggestions := o.fetchSuggestions(ctx, marketSnap, snapErr, events, sessionOpen, brokerStale)

	actions := o.engine.Decide(trading.DecisionInput{
		Suggestions: suggestions,
		Diff:        diff,
		Positions:   positions,
		Account:     account,
		SessionOpen: sessionOpen,
		BrokerStale: brokerStale,
		Now:         o.now(),
	})
	if len(actions) == 0 {
		o.logger.Info("Cycle complete, nothing to do", "session_open", sessionOpen, "stale", brokerStale)
		return nil
	}

	failed, execErr := o.executor.Execute(ctx, actions)
	o.logger.Info("Cycle complete",
		"actions", len(actions), "failed", failed,
		"session_open", sessionOpen, "stale", brokerStale)
	o.notify(ctx, actions, failed)

	if execErr != nil {
		return fmt.Errorf("%d of %d actions failed: %w", failed, len(actions), execErr)
	}
	return nil
}

// reconcile fetches broker truth and compares it with local records. On any
// broker fetch failure it falls back to the previous cycle's diff, marked
// stale, so pruning decisions remain possible while entries and stop moves
// are suppressed.
func (o *Orchestrator) reconcile(ctx context.Context, local []core.ManagedOrder) (core.ReconciliationDiff, []core.OpenPosition, core.AccountSummary, bool) {
	positions, posErr := o.broker.GetPositions(ctx)
	orders, ordErr := o.broker.GetOpenOrders(ctx)
	account, accErr := o.broker.GetAccount(ctx)

	if posErr != nil || ordErr != nil || accErr != nil {
		o.logger.Warn("Broker state unavailable, reusing previous reconciliation",
			"positions_err", posErr, "orders_err", ordErr, "account_err", accErr,
			"have_previous", o.hasLastDiff)
		if !o.hasLastDiff {
			return core.ReconciliationDiff{}, nil, core.AccountSummary{}, true
		}
		return o.lastDiff, nil, core.AccountSummary{}, true
	}

	positions = trading.AttachProtection(positions, orders)
	diff := trading.Reconcile(local, orders, positions)
	o.lastDiff = diff
	o.hasLastDiff = true

	// Carry broker-confirmed fills into the local records.
	for i := range diff.Matched {
		m := &diff.Matched[i]
		if m.Position == nil || m.Local.Status == core.OrderStatusFilled {
			continue
		}
		m.Local.Status = core.OrderStatusFilled
		if err := o.store.Put(ctx, m.Local); err != nil {
			o.logger.Warn("Failed to record fill", "key", m.Local.Key, "error", err)
		}
	}

	if len(diff.OrphanedBroker) > 0 {
		o.logger.Warn("Broker holds entities with no local record, leaving them untouched",
			"count", len(diff.OrphanedBroker))
	}

	return diff, positions, account, false
}

// fetchSuggestions calls the advisory model. Every failure path degrades to
// an empty suggestion list; position management must not depend on the model
// being reachable.
func (o *Orchestrator) fetchSuggestions(ctx context.Context, snap core.MarketSnapshot, snapErr error, events []core.EconomicEvent, sessionOpen, brokerStale bool) []core.AdvisorySuggestion {
	metrics := telemetry.GetGlobalMetrics()

	if brokerStale {
		return nil
	}
	if snapErr != nil {
		o.logger.Warn("Snapshot unavailable, skipping advisory call", "error", snapErr)
		if metrics.AdvisoryFailuresTotal != nil {
			metrics.AdvisoryFailuresTotal.Add(ctx, 1)
		}
		return nil
	}
	if !sessionOpen {
		// Entries are gated off anyway, skip the expensive model call.
		return nil
	}

	advisoryCtx, cancel := context.WithTimeout(ctx, o.cfg.AdvisorTimeout())
	defer cancel()

	suggestions, err := o.advisor.GetSuggestions(advisoryCtx, core.AdvisoryPayload{
		Snapshot:    snap,
		Events:      events,
		SessionOpen: sessionOpen,
	})
	if err != nil {
		o.logger.Warn("Advisory call failed, continuing without suggestions", "error", err)
		if metrics.AdvisoryFailuresTotal != nil {
			metrics.AdvisoryFailuresTotal.Add(ctx, 1)
		}
		return nil
	}

	o.logger.Info("Advisory suggestions received", "count", len(suggestions))
	return suggestions
}

// notify raises alerts for the notable outcomes of a cycle
func (o *Orchestrator) notify(ctx context.Context, actions []core.Action, failed int) {
	for _, a := range actions {
		switch a.Type {
		case core.ActionPlaceOrder:
			o.alerts.Alert(ctx, "Entry Order Placed",
				fmt.Sprintf("%s %s @ %s", a.Place.Spec.Instrument, a.Place.Spec.Side, a.Place.Spec.Entry),
				alert.Info, map[string]string{
					"stop":     a.Place.Spec.Stop.String(),
					"quantity": a.Place.Spec.Quantity.String(),
				})
		case core.ActionModifyStop:
			title := "Stop Repositioned"
			if a.Stop.Breakeven {
				title = "Stop Moved To Breakeven"
			}
			o.alerts.Alert(ctx, title,
				fmt.Sprintf("%s %s stop now %s", a.Stop.Instrument, a.Stop.Side, a.Stop.Price),
				alert.Info, nil)
		}
	}
	if failed > 0 {
		o.alerts.Alert(ctx, "Actions Failed",
			fmt.Sprintf("%d of %d actions failed this cycle", failed, len(actions)),
			alert.Warning, nil)
	}
}
