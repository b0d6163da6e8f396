package strategy

import "github.com/strategylab/core/pkg/models"

// The indicator helpers below (SMA/RSI/ATR/MACD) operate on a per-stock
// bar slice the entry/exit built-ins pull from an OHLCVPanel.

// SMA returns the simple moving average of closes over the trailing
// `period` bars ending at index i (inclusive). ok is false if there
// aren't enough bars yet.
func SMA(bars []models.OHLCV, i, period int) (float64, bool) {
	if i+1 < period || period <= 0 {
		return 0, false
	}
	sum := 0.0
	for k := i - period + 1; k <= i; k++ {
		sum += bars[k].Close
	}
	return sum / float64(period), true
}

// RSI returns the Wilder relative-strength index over the trailing
// `period` bars ending at index i.
func RSI(bars []models.OHLCV, i, period int) (float64, bool) {
	if i < period || period <= 0 {
		return 0, false
	}
	var gainSum, lossSum float64
	for k := i - period + 1; k <= i; k++ {
		delta := bars[k].Close - bars[k-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// ATR returns the average true range over the trailing `period` bars
// ending at index i, using Wilder's simple-average variant.
func ATR(bars []models.OHLCV, i, period int) (float64, bool) {
	if i < period || period <= 0 {
		return 0, false
	}
	sum := 0.0
	for k := i - period + 1; k <= i; k++ {
		sum += trueRange(bars, k)
	}
	return sum / float64(period), true
}

func trueRange(bars []models.OHLCV, k int) float64 {
	hi, lo, prevClose := bars[k].High, bars[k].Low, bars[k-1].Close
	tr := hi - lo
	if v := abs(hi - prevClose); v > tr {
		tr = v
	}
	if v := abs(lo - prevClose); v > tr {
		tr = v
	}
	return tr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// MACDValue is one bar's MACD line and signal-line reading.
type MACDValue struct {
	MACD   float64
	Signal float64
}

// MACD computes the MACD/signal line series using simple (not
// exponential) moving averages over fast/slow/signal windows — a
// deliberate simplification suited to the daily rebalance cadence this
// engine operates at, versus a tick-level EMA implementation.
func MACD(bars []models.OHLCV, fast, slow, signal int) []MACDValue {
	n := len(bars)
	out := make([]MACDValue, n)
	macdLine := make([]float64, n)
	for i := range bars {
		fastSMA, fok := SMA(bars, i, fast)
		slowSMA, sok := SMA(bars, i, slow)
		if fok && sok {
			macdLine[i] = fastSMA - slowSMA
		}
	}
	for i := range bars {
		if i+1 < signal {
			continue
		}
		sum := 0.0
		for k := i - signal + 1; k <= i; k++ {
			sum += macdLine[k]
		}
		out[i] = MACDValue{MACD: macdLine[i], Signal: sum / float64(signal)}
	}
	return out
}

// SuperTrendValue is one bar's SuperTrend band value and trend direction.
type SuperTrendValue struct {
	Value float64
	Trend string // "UP" or "DOWN"
}

// SuperTrend computes the SuperTrend indicator over the bar series using
// an ATR-based band with the given period and multiplier.
func SuperTrend(bars []models.OHLCV, period int, mult float64) []SuperTrendValue {
	n := len(bars)
	out := make([]SuperTrendValue, n)
	trend := "UP"
	for i := 0; i < n; i++ {
		atr, ok := ATR(bars, i, period)
		if !ok {
			out[i] = SuperTrendValue{Trend: trend}
			continue
		}
		mid := (bars[i].High + bars[i].Low) / 2
		upperBand := mid + mult*atr
		lowerBand := mid - mult*atr
		switch {
		case bars[i].Close > upperBand:
			trend = "UP"
		case bars[i].Close < lowerBand:
			trend = "DOWN"
		}
		value := lowerBand
		if trend == "DOWN" {
			value = upperBand
		}
		out[i] = SuperTrendValue{Value: value, Trend: trend}
	}
	return out
}

// VWAP returns the cumulative volume-weighted average price up to and
// including index i.
func VWAP(bars []models.OHLCV, i int) float64 {
	var pvSum, vSum float64
	for k := 0; k <= i; k++ {
		typical := (bars[k].High + bars[k].Low + bars[k].Close) / 3
		pvSum += typical * bars[k].Volume
		vSum += bars[k].Volume
	}
	if vSum == 0 {
		return 0
	}
	return pvSum / vSum
}
