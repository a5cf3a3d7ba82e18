package orchestrator

import (
	"context"
	"testing"
	"time"

	"futures_orchestrator/internal/alert"
	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/core"
	"futures_orchestrator/internal/session"
	"futures_orchestrator/internal/snapshot"
	"futures_orchestrator/internal/trading"
	"futures_orchestrator/pkg/concurrency"
	apperrors "futures_orchestrator/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                     {}
func (noopLogger) Info(string, ...interface{})                      {}
func (noopLogger) Warn(string, ...interface{})                      {}
func (noopLogger) Error(string, ...interface{})                     {}
func (noopLogger) Fatal(string, ...interface{})                     {}
func (l noopLogger) WithField(string, interface{}) core.ILogger     { return l }
func (l noopLogger) WithFields(map[string]interface{}) core.ILogger { return l }

type fakeBroker struct {
	positions []core.OpenPosition
	orders    []core.BrokerOrder
	equity    decimal.Decimal
	fetchErr  error

	placed     []core.OrderSpec
	cancelled  []string
	stopsMoved []decimal.Decimal
	tpPlaced   []decimal.Decimal
}

func (f *fakeBroker) GetName() string                       { return "fake" }
func (f *fakeBroker) CheckHealth(ctx context.Context) error { return nil }

func (f *fakeBroker) GetPositions(ctx context.Context) ([]core.OpenPosition, error) {
	return f.positions, f.fetchErr
}

func (f *fakeBroker) GetOpenOrders(ctx context.Context) ([]core.BrokerOrder, error) {
	return f.orders, f.fetchErr
}

func (f *fakeBroker) GetAccount(ctx context.Context) (core.AccountSummary, error) {
	return core.AccountSummary{Equity: f.equity}, f.fetchErr
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, spec core.OrderSpec) (core.BrokerOrder, error) {
	f.placed = append(f.placed, spec)
	return core.BrokerOrder{ID: "100", ClientID: spec.ClientOrderID, Instrument: spec.Instrument}, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, instrument, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeBroker) ModifyStop(ctx context.Context, instrument string, side core.Side, size, price decimal.Decimal) error {
	f.stopsMoved = append(f.stopsMoved, price)
	return nil
}

func (f *fakeBroker) PlaceTakeProfit(ctx context.Context, instrument string, side core.Side, size, price decimal.Decimal) error {
	f.tpPlaced = append(f.tpPlaced, price)
	return nil
}

func (f *fakeBroker) GetKlines(ctx context.Context, instrument, interval string, limit int) ([]core.Candle, error) {
	candles := make([]core.Candle, 60)
	base := decimal.NewFromInt(100)
	for i := range candles {
		price := base.Add(decimal.NewFromInt(int64(i)))
		candles[i] = core.Candle{
			OpenTime: testNow.Add(time.Duration(i-60) * 15 * time.Minute),
			Open:     price, High: price.Add(decimal.NewFromInt(1)),
			Low: price.Sub(decimal.NewFromInt(1)), Close: price,
			Volume: decimal.NewFromInt(10),
		}
	}
	return candles, nil
}

func (f *fakeBroker) GetLatestPrice(ctx context.Context, instrument string) (decimal.Decimal, error) {
	return decimal.NewFromInt(159), nil
}

type fakeAdvisor struct {
	suggestions []core.AdvisorySuggestion
	err         error
	calls       int
}

func (f *fakeAdvisor) GetSuggestions(ctx context.Context, payload core.AdvisoryPayload) ([]core.AdvisorySuggestion, error) {
	f.calls++
	return f.suggestions, f.err
}

type fakeCalendar struct{ events []core.EconomicEvent }

func (f *fakeCalendar) UpcomingEvents(ctx context.Context, days int) []core.EconomicEvent {
	return f.events
}

type fakeStore struct {
	records map[string]core.ManagedOrder
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]core.ManagedOrder)}
}

func (f *fakeStore) Put(ctx context.Context, order core.ManagedOrder) error {
	f.records[order.Key] = order
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (core.ManagedOrder, bool, error) {
	o, ok := f.records[key]
	return o, ok, nil
}

func (f *fakeStore) List(ctx context.Context) ([]core.ManagedOrder, error) {
	var out []core.ManagedOrder
	for _, o := range f.records {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	delete(f.records, key)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func newTestOrchestrator(t *testing.T, broker *fakeBroker, advisor *fakeAdvisor, store *fakeStore, windows []config.SessionWindow) *Orchestrator {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.App.Instruments = []string{"BTCUSDT"}
	cfg.Session.Windows = windows

	gate, err := session.NewGate(cfg.Session)
	require.NoError(t, err)

	logger := noopLogger{}
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "test", MaxWorkers: 2, MaxCapacity: 8}, logger)
	t.Cleanup(pool.Stop)

	o := New(cfg, Deps{
		Broker:   broker,
		Advisor:  advisor,
		Calendar: &fakeCalendar{},
		Store:    store,
		Gate:     gate,
		Builder:  snapshot.NewBuilder(broker, pool, cfg.App.Instruments, "", logger),
		Engine: trading.NewEngine(trading.DecisionConfig{
			ConfidenceThreshold: cfg.Trading.ConfidenceThreshold,
			MinRiskReward:       cfg.Trading.MinRiskReward,
			RiskFraction:        cfg.Trading.RiskFraction,
			Leverage:            cfg.Trading.Leverage,
			MaxOpenPositions:    cfg.Trading.MaxOpenPositions,
			OrderExpiry:         cfg.OrderExpiry(),
			StopTolerancePct:    cfg.Trading.StopTolerancePct,
		}, logger),
		Executor: trading.NewExecutor(broker, store, logger),
		Alerts:   alert.NewManager(logger),
		Logger:   logger,
	})
	o.now = func() time.Time { return testNow }
	return o
}

func suggestion() core.AdvisorySuggestion {
	return core.AdvisorySuggestion{
		Instrument: "BTCUSDT",
		Direction:  core.DirectionLong,
		Entry:      decimal.NewFromInt(150),
		Stop:       decimal.NewFromInt(140),
		Targets:    []decimal.Decimal{decimal.NewFromInt(170)},
		Confidence: 9,
		RiskReward: 2,
		Timestamp:  testNow,
	}
}

func TestRunCycle_PlacesSuggestedEntry(t *testing.T) {
	broker := &fakeBroker{equity: decimal.NewFromInt(10000)}
	advisor := &fakeAdvisor{suggestions: []core.AdvisorySuggestion{suggestion()}}
	store := newFakeStore()

	err := newTestOrchestrator(t, broker, advisor, store, nil).RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, broker.placed, 1)
	assert.Equal(t, "BTCUSDT", broker.placed[0].Instrument)
	assert.Equal(t, core.SideLong, broker.placed[0].Side)

	_, ok := store.records["BTCUSDT-LONG"]
	assert.True(t, ok, "record written after broker confirmed")
}

func TestRunCycle_PrunesOrphanedRecord(t *testing.T) {
	broker := &fakeBroker{equity: decimal.NewFromInt(10000)}
	advisor := &fakeAdvisor{}
	store := newFakeStore()
	store.records["ETHUSDT-SHORT"] = core.ManagedOrder{
		Key: "ETHUSDT-SHORT", Instrument: "ETHUSDT", Side: core.SideShort,
		Status: core.OrderStatusWorking, CreatedAt: testNow.Add(-time.Hour),
	}

	err := newTestOrchestrator(t, broker, advisor, store, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.records, "record with no broker counterpart is pruned")
}

func TestRunCycle_AdvisoryFailureStillManages(t *testing.T) {
	broker := &fakeBroker{equity: decimal.NewFromInt(10000)}
	advisor := &fakeAdvisor{err: apperrors.ErrMalformedAdvisory}
	store := newFakeStore()
	store.records["ETHUSDT-SHORT"] = core.ManagedOrder{
		Key: "ETHUSDT-SHORT", Instrument: "ETHUSDT", Side: core.SideShort,
		Status: core.OrderStatusWorking, CreatedAt: testNow.Add(-time.Hour),
	}

	err := newTestOrchestrator(t, broker, advisor, store, nil).RunCycle(context.Background())
	require.NoError(t, err, "advisory failure degrades, it does not fail the cycle")
	assert.Empty(t, broker.placed)
	assert.Empty(t, store.records, "pruning proceeds without the model")
}

func TestRunCycle_ClosedSessionSkipsAdvisory(t *testing.T) {
	broker := &fakeBroker{equity: decimal.NewFromInt(10000)}
	advisor := &fakeAdvisor{suggestions: []core.AdvisorySuggestion{suggestion()}}
	store := newFakeStore()

	o := newTestOrchestrator(t, broker, advisor, store, []config.SessionWindow{
		{Start: "13:00", End: "14:00"}, // testNow is 12:00 UTC
	})
	err := o.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Zero(t, advisor.calls, "no advisory call outside the session")
	assert.Empty(t, broker.placed)
}

func TestRunCycle_ArmsUnprotectedFilledPosition(t *testing.T) {
	broker := &fakeBroker{
		equity: decimal.NewFromInt(10000),
		positions: []core.OpenPosition{{
			Instrument: "ETHUSDT", Side: core.SideLong,
			Entry: decimal.NewFromInt(100), MarkPrice: decimal.NewFromInt(95),
			Size: decimal.NewFromInt(2),
		}},
	}
	advisor := &fakeAdvisor{}
	store := newFakeStore()
	store.records["ETHUSDT-LONG"] = core.ManagedOrder{
		Key: "ETHUSDT-LONG", Instrument: "ETHUSDT", Side: core.SideLong,
		Entry: decimal.NewFromInt(100), Stop: decimal.NewFromInt(90),
		Targets: []decimal.Decimal{decimal.NewFromInt(120), decimal.NewFromInt(130)},
		Status:  core.OrderStatusWorking, CreatedAt: testNow.Add(-time.Hour),
	}

	err := newTestOrchestrator(t, broker, advisor, store, nil).RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, broker.stopsMoved, 1, "naked position gets its recorded stop back")
	assert.True(t, broker.stopsMoved[0].Equal(decimal.NewFromInt(90)))
	require.Len(t, broker.tpPlaced, 1)
	assert.True(t, broker.tpPlaced[0].Equal(decimal.NewFromInt(130)), "take-profit at the final target")

	assert.Equal(t, core.OrderStatusFilled, store.records["ETHUSDT-LONG"].Status,
		"fill carried into the record")
}

func TestRunCycle_StaleBrokerSuppressesEntriesButPrunes(t *testing.T) {
	broker := &fakeBroker{equity: decimal.NewFromInt(10000)}
	advisor := &fakeAdvisor{suggestions: []core.AdvisorySuggestion{suggestion()}}
	store := newFakeStore()
	store.records["ETHUSDT-SHORT"] = core.ManagedOrder{
		Key: "ETHUSDT-SHORT", Instrument: "ETHUSDT", Side: core.SideShort,
		Status: core.OrderStatusWorking, CreatedAt: testNow.Add(-time.Hour),
	}

	o := newTestOrchestrator(t, broker, advisor, store, nil)

	// First cycle succeeds and caches the reconciliation. Remove the entry
	// the engine placed so the next cycle's state is clean.
	require.NoError(t, o.RunCycle(context.Background()))
	broker.placed = nil
	delete(store.records, "BTCUSDT-LONG")
	store.records["ETHUSDT-SHORT"] = core.ManagedOrder{
		Key: "ETHUSDT-SHORT", Instrument: "ETHUSDT", Side: core.SideShort,
		Status: core.OrderStatusWorking, CreatedAt: testNow.Add(-time.Hour),
	}

	broker.fetchErr = apperrors.ErrBrokerUnavailable
	require.NoError(t, o.RunCycle(context.Background()))

	assert.Empty(t, broker.placed, "no entries against a stale broker view")
	assert.Empty(t, store.records, "prunes from the cached diff still apply")
}

func TestRunCycle_StaleBrokerWithoutHistoryDoesNothing(t *testing.T) {
	broker := &fakeBroker{fetchErr: apperrors.ErrBrokerUnavailable}
	advisor := &fakeAdvisor{suggestions: []core.AdvisorySuggestion{suggestion()}}
	store := newFakeStore()
	store.records["ETHUSDT-SHORT"] = core.ManagedOrder{
		Key: "ETHUSDT-SHORT", Instrument: "ETHUSDT", Side: core.SideShort,
		Status: core.OrderStatusWorking, CreatedAt: testNow.Add(-time.Hour),
	}

	err := newTestOrchestrator(t, broker, advisor, store, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, broker.placed)
	assert.Len(t, store.records, 1, "no diff to prune from on the first stale cycle")
}
