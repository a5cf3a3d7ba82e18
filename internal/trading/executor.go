package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"futures_orchestrator/internal/core"
	apperrors "futures_orchestrator/pkg/errors"
	"futures_orchestrator/pkg/retry"
	"futures_orchestrator/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func attributeInstrument(instrument string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("instrument", instrument))
}

// Executor applies the decision engine's actions to the broker and the
// store, in order. The store is only written after the broker confirmed
// the corresponding call, so a crash between the two leaves an orphan the
// next reconciliation prunes rather than a record for an order that never
// existed.
type Executor struct {
	broker core.Broker
	store  core.MetadataStore
	logger core.ILogger
	policy retry.Policy
	tracer trace.Tracer
	now    func() time.Time
}

// NewExecutor creates an action executor
func NewExecutor(broker core.Broker, store core.MetadataStore, logger core.ILogger) *Executor {
	return &Executor{
		broker: broker,
		store:  store,
		logger: logger.WithField("component", "executor"),
		policy: retry.DefaultPolicy,
		tracer: telemetry.GetTracer("action-executor"),
		now:    time.Now,
	}
}

// Execute applies every action, continuing past individual failures and
// returning the count of failures alongside any aggregate error.
func (ex *Executor) Execute(ctx context.Context, actions []core.Action) (failed int, err error) {
	metrics := telemetry.GetGlobalMetrics()
	var errs []error

	for _, action := range actions {
		metrics.CountAction(ctx, string(action.Type))

		if applyErr := ex.apply(ctx, action); applyErr != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", action.Type, applyErr))
			if metrics.ActionFailuresTotal != nil {
				metrics.ActionFailuresTotal.Add(ctx, 1)
			}
			ex.logger.Error("Action failed", "type", action.Type, "error", applyErr)
		}
	}

	return failed, errors.Join(errs...)
}

func (ex *Executor) apply(ctx context.Context, action core.Action) error {
	ctx, span := ex.tracer.Start(ctx, "ApplyAction",
		trace.WithAttributes(attribute.String("action.type", string(action.Type))))
	defer span.End()

	var err error
	switch action.Type {
	case core.ActionPlaceOrder:
		err = ex.placeOrder(ctx, action.Place)
	case core.ActionCancelOrder:
		err = ex.cancelOrder(ctx, action.Cancel)
	case core.ActionModifyStop:
		err = ex.modifyStop(ctx, action.Stop)
	case core.ActionPlaceTakeProfit:
		err = ex.placeTakeProfit(ctx, action.TakeProfit)
	case core.ActionPruneMetadata:
		err = ex.pruneMetadata(ctx, action.Prune)
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (ex *Executor) placeOrder(ctx context.Context, a *core.PlaceOrderAction) error {
	var placed core.BrokerOrder
	err := retry.Do(ctx, ex.policy, apperrors.IsTransient, func() error {
		var placeErr error
		placed, placeErr = ex.broker.PlaceOrder(ctx, a.Spec)
		return placeErr
	})
	if err != nil {
		return fmt.Errorf("place order %s %s: %w", a.Spec.Instrument, a.Spec.Side, err)
	}

	metrics := telemetry.GetGlobalMetrics()
	if metrics.OrdersPlacedTotal != nil {
		metrics.OrdersPlacedTotal.Add(ctx, 1, attributeInstrument(a.Spec.Instrument))
	}

	record := core.ManagedOrder{
		Key:           core.OrderKey(a.Spec.Instrument, a.Spec.Side),
		BrokerOrderID: placed.ID,
		ClientOrderID: a.Spec.ClientOrderID,
		Instrument:    a.Spec.Instrument,
		Side:          a.Spec.Side,
		Entry:         a.Spec.Entry,
		Stop:          a.Spec.Stop,
		Targets:       a.Spec.Targets,
		Quantity:      a.Spec.Quantity,
		Status:        core.OrderStatusWorking,
		CreatedAt:     ex.now().UTC(),
	}
	if err := ex.store.Put(ctx, record); err != nil {
		// Broker order exists but the record write failed. The next cycle's
		// reconciliation reports it as an orphaned broker order.
		return fmt.Errorf("order %s placed but record write failed: %w", placed.ID, err)
	}
	return nil
}

func (ex *Executor) cancelOrder(ctx context.Context, a *core.CancelOrderAction) error {
	err := ex.broker.CancelOrder(ctx, a.Instrument, a.BrokerOrderID)
	if err != nil && !errors.Is(err, apperrors.ErrOrderNotFound) {
		return fmt.Errorf("cancel order %s: %w", a.BrokerOrderID, err)
	}

	if a.Key == "" {
		return nil
	}
	if err := ex.store.Delete(ctx, a.Key); err != nil {
		return fmt.Errorf("delete record %s after cancel: %w", a.Key, err)
	}
	return nil
}

func (ex *Executor) modifyStop(ctx context.Context, a *core.ModifyStopAction) error {
	if err := ex.broker.ModifyStop(ctx, a.Instrument, a.Side, a.Size, a.Price); err != nil {
		return fmt.Errorf("modify stop for %s: %w", a.Key, err)
	}
	if !a.Breakeven {
		return nil
	}

	metrics := telemetry.GetGlobalMetrics()
	if metrics.BreakevenShiftsTotal != nil {
		metrics.BreakevenShiftsTotal.Add(ctx, 1, attributeInstrument(a.Instrument))
	}

	// Persist the breakeven hint. Losing this write is harmless: the next
	// cycle sees the stop at entry on the broker and does not re-fire.
	record, found, err := ex.store.Get(ctx, a.Key)
	if err != nil {
		return fmt.Errorf("read record %s after stop move: %w", a.Key, err)
	}
	if !found {
		return nil
	}
	record.BreakevenDone = true
	if err := ex.store.Put(ctx, record); err != nil {
		return fmt.Errorf("update record %s after stop move: %w", a.Key, err)
	}
	return nil
}

func (ex *Executor) placeTakeProfit(ctx context.Context, a *core.PlaceTakeProfitAction) error {
	if err := ex.broker.PlaceTakeProfit(ctx, a.Instrument, a.Side, a.Size, a.Price); err != nil {
		return fmt.Errorf("place take-profit for %s %s: %w", a.Instrument, a.Side, err)
	}
	return nil
}

func (ex *Executor) pruneMetadata(ctx context.Context, a *core.PruneMetadataAction) error {
	if err := ex.store.Delete(ctx, a.Key); err != nil {
		return fmt.Errorf("prune record %s: %w", a.Key, err)
	}
	metrics := telemetry.GetGlobalMetrics()
	if metrics.PrunesTotal != nil {
		metrics.PrunesTotal.Add(ctx, 1)
	}
	return nil
}
