package snapshot

import (
	"context"
	"fmt"
	"time"

	"futures_orchestrator/internal/core"
	"futures_orchestrator/pkg/concurrency"

	"github.com/shopspring/decimal"
)

const (
	detailInterval = "15m"
	klineLimit     = 210 // enough history to warm up EMA200
	detailTail     = 20  // bars shipped to the advisory model
)

var contextIntervals = []string{"1h", "4h"}

// Builder assembles the market snapshot for one cycle. Instruments are
// fetched in parallel through a bounded worker pool; an instrument whose
// data fetch fails is dropped from the snapshot rather than failing the
// cycle, but a snapshot with zero instruments is an error.
type Builder struct {
	broker       core.Broker
	pool         *concurrency.WorkerPool
	logger       core.ILogger
	instruments  []string
	leaderSymbol string
}

// NewBuilder creates a snapshot builder. leaderSymbol names the instrument
// whose higher-timeframe trend is published as the market-leader bias;
// empty disables the bias report.
func NewBuilder(broker core.Broker, pool *concurrency.WorkerPool, instruments []string, leaderSymbol string, logger core.ILogger) *Builder {
	return &Builder{
		broker:       broker,
		pool:         pool,
		logger:       logger.WithField("component", "snapshot"),
		instruments:  instruments,
		leaderSymbol: leaderSymbol,
	}
}

// Build fetches candles for every instrument and computes indicators.
func (b *Builder) Build(ctx context.Context) (core.MarketSnapshot, error) {
	results := make([]*core.InstrumentSnapshot, len(b.instruments))

	group := b.pool.Group()
	for i, instrument := range b.instruments {
		i, instrument := i, instrument
		group.Submit(func() {
			snap, err := b.buildInstrument(ctx, instrument)
			if err != nil {
				b.logger.Warn("Instrument snapshot failed, dropping from payload",
					"instrument", instrument, "error", err)
				return
			}
			results[i] = snap
		})
	}
	group.Wait()

	snapshot := core.MarketSnapshot{TakenAt: time.Now().UTC()}
	for _, r := range results {
		if r != nil {
			snapshot.Instruments = append(snapshot.Instruments, *r)
		}
	}

	if len(snapshot.Instruments) == 0 {
		return core.MarketSnapshot{}, fmt.Errorf("snapshot failed for all %d instruments", len(b.instruments))
	}

	if b.leaderSymbol != "" {
		bias, err := b.buildLeaderBias(ctx)
		if err != nil {
			b.logger.Warn("Leader bias unavailable", "instrument", b.leaderSymbol, "error", err)
		} else {
			snapshot.LeaderBias = bias
		}
	}

	return snapshot, nil
}

func (b *Builder) buildInstrument(ctx context.Context, instrument string) (*core.InstrumentSnapshot, error) {
	detailCandles, err := b.broker.GetKlines(ctx, instrument, detailInterval, klineLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s klines: %w", detailInterval, err)
	}
	if len(detailCandles) == 0 {
		return nil, fmt.Errorf("no %s klines returned", detailInterval)
	}

	snap := &core.InstrumentSnapshot{
		Instrument: instrument,
		LastPrice:  detailCandles[len(detailCandles)-1].Close,
		Detail:     buildDetail(detailCandles),
		Context:    make(map[string]core.TrendReport, len(contextIntervals)),
	}

	for _, interval := range contextIntervals {
		candles, err := b.broker.GetKlines(ctx, instrument, interval, klineLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch %s klines: %w", interval, err)
		}
		if len(candles) == 0 {
			continue
		}
		snap.Context[interval] = buildTrendReport(candles)
	}

	return snap, nil
}

func (b *Builder) buildLeaderBias(ctx context.Context) (*core.TrendReport, error) {
	candles, err := b.broker.GetKlines(ctx, b.leaderSymbol, "1h", klineLimit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no klines returned")
	}
	report := buildTrendReport(candles)
	return &report, nil
}

// buildDetail computes the full indicator set over the history and ships
// only the last detailTail bars of each series.
func buildDetail(candles []core.Candle) core.TimeframeDetail {
	closes := Closes(candles)
	macdLine, _, _ := MACD(closes, 12, 26, 9)

	return core.TimeframeDetail{
		Candles: tail(candles, detailTail),
		EMA20:   tail(EMA(closes, 20), detailTail),
		EMA50:   tail(EMA(closes, 50), detailTail),
		EMA200:  tail(EMA(closes, 200), detailTail),
		RSI14:   tail(RSI(closes, 14), detailTail),
		MACD:    tail(macdLine, detailTail),
	}
}

func buildTrendReport(candles []core.Candle) core.TrendReport {
	closes := Closes(candles)
	ema20 := last(EMA(closes, 20))
	ema50 := last(EMA(closes, 50))
	rsi := last(RSI(closes, 14))
	macdLine, _, _ := MACD(closes, 12, 26, 9)

	return core.TrendReport{
		EMA20: ema20,
		EMA50: ema50,
		RSI:   rsi,
		MACD:  last(macdLine),
		Trend: TrendLabel(ema20, ema50, rsi),
	}
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func last(s []decimal.Decimal) decimal.Decimal {
	if len(s) == 0 {
		return decimal.Zero
	}
	return s[len(s)-1]
}
