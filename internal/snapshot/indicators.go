// Package snapshot assembles the per-cycle market payload with indicators
package snapshot

import (
	"github.com/shopspring/decimal"

	"futures_orchestrator/internal/core"
)

var (
	decOne     = decimal.NewFromInt(1)
	decTwo     = decimal.NewFromInt(2)
	decHundred = decimal.NewFromInt(100)
)

// EMA computes an exponential moving average with alpha = 2/(span+1).
// The first output equals the first input; the series has the same length
// as the input.
func EMA(values []decimal.Decimal, span int) []decimal.Decimal {
	if len(values) == 0 || span <= 0 {
		return nil
	}

	alpha := decTwo.Div(decimal.NewFromInt(int64(span) + 1))
	out := make([]decimal.Decimal, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		// ema = alpha*value + (1-alpha)*prev
		out[i] = alpha.Mul(values[i]).Add(decOne.Sub(alpha).Mul(out[i-1]))
	}
	return out
}

// RSI computes the relative strength index with Wilder smoothing
// (alpha = 1/period). Output length matches the input; the first value
// is neutral 50 since there is no prior close to diff against.
func RSI(values []decimal.Decimal, period int) []decimal.Decimal {
	if len(values) == 0 || period <= 0 {
		return nil
	}

	alpha := decOne.Div(decimal.NewFromInt(int64(period)))
	neutral := decimal.NewFromInt(50)

	out := make([]decimal.Decimal, len(values))
	out[0] = neutral

	var upAvg, downAvg decimal.Decimal
	for i := 1; i < len(values); i++ {
		change := values[i].Sub(values[i-1])
		up := decimal.Zero
		down := decimal.Zero
		if change.IsPositive() {
			up = change
		} else {
			down = change.Neg()
		}

		if i == 1 {
			upAvg = up
			downAvg = down
		} else {
			upAvg = alpha.Mul(up).Add(decOne.Sub(alpha).Mul(upAvg))
			downAvg = alpha.Mul(down).Add(decOne.Sub(alpha).Mul(downAvg))
		}

		if downAvg.IsZero() {
			if upAvg.IsZero() {
				out[i] = neutral
			} else {
				out[i] = decHundred
			}
			continue
		}

		rs := upAvg.Div(downAvg)
		out[i] = decHundred.Sub(decHundred.Div(decOne.Add(rs)))
	}
	return out
}

// MACD computes the MACD line (EMA12 - EMA26), its signal line (EMA9 of
// the MACD line), and the histogram.
func MACD(values []decimal.Decimal, fast, slow, signal int) (line, sig, hist []decimal.Decimal) {
	if len(values) == 0 {
		return nil, nil, nil
	}

	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)

	line = make([]decimal.Decimal, len(values))
	for i := range values {
		line[i] = emaFast[i].Sub(emaSlow[i])
	}

	sig = EMA(line, signal)

	hist = make([]decimal.Decimal, len(values))
	for i := range values {
		hist[i] = line[i].Sub(sig[i])
	}
	return line, sig, hist
}

// ATR computes the average true range as a simple moving average of the
// true range over the window. Entries before a full window are zero.
func ATR(candles []core.Candle, window int) []decimal.Decimal {
	if len(candles) == 0 || window <= 0 {
		return nil
	}

	out := make([]decimal.Decimal, len(candles))
	trs := make([]decimal.Decimal, len(candles))
	for i := 1; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1].Close)
		trs[i] = tr

		if i < window {
			continue
		}
		var sum decimal.Decimal
		for j := i; j > i-window; j-- {
			sum = sum.Add(trs[j])
		}
		out[i] = sum.Div(decimal.NewFromInt(int64(window)))
	}
	return out
}

// trueRange is Max(H-L, |H-PrevClose|, |L-PrevClose|)
func trueRange(c core.Candle, prevClose decimal.Decimal) decimal.Decimal {
	tr := c.High.Sub(c.Low)
	if hc := c.High.Sub(prevClose).Abs(); hc.GreaterThan(tr) {
		tr = hc
	}
	if lc := c.Low.Sub(prevClose).Abs(); lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// TrendLabel classifies trend direction from EMA alignment and RSI:
// 1 when EMA20 > EMA50 with RSI above 50, -1 for the mirror case, else 0.
func TrendLabel(ema20, ema50, rsi decimal.Decimal) int {
	fifty := decimal.NewFromInt(50)
	if ema20.GreaterThan(ema50) && rsi.GreaterThan(fifty) {
		return 1
	}
	if ema20.LessThan(ema50) && rsi.LessThan(fifty) {
		return -1
	}
	return 0
}

// Closes extracts the close series from candles
func Closes(candles []core.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
