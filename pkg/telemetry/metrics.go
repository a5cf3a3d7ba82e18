package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricCyclesTotal           = "orchestrator_cycles_total"
	MetricCycleDuration         = "orchestrator_cycle_duration_seconds"
	MetricActionsEmittedTotal   = "orchestrator_actions_emitted_total"
	MetricActionFailuresTotal   = "orchestrator_action_failures_total"
	MetricAdvisoryFailuresTotal = "orchestrator_advisory_failures_total"
	MetricPrunesTotal           = "orchestrator_metadata_prunes_total"
	MetricBreakevenShiftsTotal  = "orchestrator_breakeven_shifts_total"
	MetricOrdersPlacedTotal     = "orchestrator_orders_placed_total"
	MetricOpenPositions         = "orchestrator_open_positions"
	MetricManagedOrders         = "orchestrator_managed_orders"
	MetricSessionOpen           = "orchestrator_session_open"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	CyclesTotal           metric.Int64Counter
	CycleDuration         metric.Float64Histogram
	ActionsEmittedTotal   metric.Int64Counter
	ActionFailuresTotal   metric.Int64Counter
	AdvisoryFailuresTotal metric.Int64Counter
	PrunesTotal           metric.Int64Counter
	BreakevenShiftsTotal  metric.Int64Counter
	OrdersPlacedTotal     metric.Int64Counter
	OpenPositions         metric.Int64ObservableGauge
	ManagedOrders         metric.Int64ObservableGauge
	SessionOpen           metric.Int64ObservableGauge

	// State for observable gauges
	mu            sync.RWMutex
	openPositions int64
	managedOrders int64
	sessionOpen   int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.CyclesTotal, err = meter.Int64Counter(MetricCyclesTotal, metric.WithDescription("Total decision cycles run"))
	if err != nil {
		return err
	}

	m.CycleDuration, err = meter.Float64Histogram(MetricCycleDuration, metric.WithDescription("Duration of a full decision cycle"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	m.ActionsEmittedTotal, err = meter.Int64Counter(MetricActionsEmittedTotal, metric.WithDescription("Actions emitted by the decision engine"))
	if err != nil {
		return err
	}

	m.ActionFailuresTotal, err = meter.Int64Counter(MetricActionFailuresTotal, metric.WithDescription("Broker action applications that failed"))
	if err != nil {
		return err
	}

	m.AdvisoryFailuresTotal, err = meter.Int64Counter(MetricAdvisoryFailuresTotal, metric.WithDescription("Advisory calls that failed or returned malformed output"))
	if err != nil {
		return err
	}

	m.PrunesTotal, err = meter.Int64Counter(MetricPrunesTotal, metric.WithDescription("Stale metadata records pruned"))
	if err != nil {
		return err
	}

	m.BreakevenShiftsTotal, err = meter.Int64Counter(MetricBreakevenShiftsTotal, metric.WithDescription("Stop-loss moves to breakeven"))
	if err != nil {
		return err
	}

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Entry orders placed on the broker"))
	if err != nil {
		return err
	}

	m.OpenPositions, err = meter.Int64ObservableGauge(MetricOpenPositions, metric.WithDescription("Broker-reported open positions"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.openPositions)
			return nil
		}))
	if err != nil {
		return err
	}

	m.ManagedOrders, err = meter.Int64ObservableGauge(MetricManagedOrders, metric.WithDescription("Managed order records in the local store"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.managedOrders)
			return nil
		}))
	if err != nil {
		return err
	}

	m.SessionOpen, err = meter.Int64ObservableGauge(MetricSessionOpen, metric.WithDescription("Whether new entries are currently permitted (1=open)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.sessionOpen)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetOpenPositions(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPositions = count
}

func (m *MetricsHolder) SetManagedOrders(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.managedOrders = count
}

func (m *MetricsHolder) SetSessionOpen(open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionOpen = val
}

// CountAction records an emitted action by type
func (m *MetricsHolder) CountAction(ctx context.Context, actionType string) {
	if m.ActionsEmittedTotal == nil {
		return
	}
	m.ActionsEmittedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", actionType)))
}
