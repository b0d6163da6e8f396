package backtest

import (
	"math"

	"github.com/strategylab/core/internal/costs"
	"github.com/strategylab/core/pkg/models"
)

// Metrics is the extended performance report computed from a Result's
// equity curve and trade log: CAGR, Sharpe, Sortino, drawdown and
// win/loss streak statistics over the daily equity series.
type Metrics struct {
	TotalReturn     float64
	CAGR            float64
	AnnualizedVol   float64
	Sharpe          float64
	Sortino         float64
	Calmar          float64
	MaxDrawdown     float64
	WinRate         float64
	ProfitFactor    float64
	AverageWin      float64
	AverageLoss     float64
	MaxConsecWins   int
	MaxConsecLosses int
	TradeCount      int
}

const tradingDaysPerYear = 252

// ComputeMetrics derives the full Metrics report from a backtest Result.
func ComputeMetrics(res *Result, riskFreeRate float64) Metrics {
	var m Metrics
	if len(res.Equity) == 0 {
		return m
	}

	rets := dailyReturns(res.Equity)
	first, last := res.Equity[0].Equity, res.Equity[len(res.Equity)-1].Equity
	if first > 0 {
		m.TotalReturn = (last - first) / first
	}

	years := float64(len(res.Equity)) / tradingDaysPerYear
	if years > 0 && first > 0 && last > 0 {
		m.CAGR = math.Pow(last/first, 1/years) - 1
	}

	m.AnnualizedVol = stddev(rets) * math.Sqrt(tradingDaysPerYear)
	if m.AnnualizedVol > 0 {
		m.Sharpe = (mean(rets)*tradingDaysPerYear - riskFreeRate) / m.AnnualizedVol
	}

	downside := downsideDeviation(rets)
	if downside > 0 {
		m.Sortino = (mean(rets)*tradingDaysPerYear - riskFreeRate) / (downside * math.Sqrt(tradingDaysPerYear))
	}

	m.MaxDrawdown = maxDrawdown(res.Equity)
	if m.MaxDrawdown != 0 {
		m.Calmar = m.CAGR / math.Abs(m.MaxDrawdown)
	}

	tradeStats(res.Trades, &m)
	return m
}

func dailyReturns(equity costs.EquitySeries) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (equity[i].Equity-prev)/prev)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func downsideDeviation(xs []float64) float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if x < 0 {
			sum += x * x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func maxDrawdown(equity costs.EquitySeries) float64 {
	peak := equity[0].Equity
	worst := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (p.Equity - peak) / peak
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func tradeStats(trades []models.Trade, m *Metrics) {
	var wins, losses []float64
	var curWinStreak, curLossStreak int

	for _, t := range trades {
		if t.Action != models.ActionClose && t.Action != models.ActionReduce {
			continue
		}
		m.TradeCount++
		if t.RealizedPnL > 0 {
			wins = append(wins, t.RealizedPnL)
			curWinStreak++
			curLossStreak = 0
		} else if t.RealizedPnL < 0 {
			losses = append(losses, t.RealizedPnL)
			curLossStreak++
			curWinStreak = 0
		}
		if curWinStreak > m.MaxConsecWins {
			m.MaxConsecWins = curWinStreak
		}
		if curLossStreak > m.MaxConsecLosses {
			m.MaxConsecLosses = curLossStreak
		}
	}

	closedTrades := len(wins) + len(losses)
	if closedTrades > 0 {
		m.WinRate = float64(len(wins)) / float64(closedTrades)
	}
	if len(wins) > 0 {
		m.AverageWin = mean(wins)
	}
	if len(losses) > 0 {
		m.AverageLoss = mean(losses)
	}

	grossWin, grossLoss := sum(wins), math.Abs(sum(losses))
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}
