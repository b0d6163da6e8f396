package costs

import (
	"sort"
	"time"

	"github.com/strategylab/core/pkg/models"
)

// EquityPoint is one day's equity-curve observation, paired with the
// cumulative cost drag (commission + stamp tax) charged against the
// portfolio up to and including that day. Slippage is not part of CumCost:
// it is already folded into the fill prices.
type EquityPoint struct {
	Equity  float64
	CumCost float64
}

// EquitySeries is a date-ordered sequence of EquityPoint.
type EquitySeries []EquityPoint

// Breakdown is the aggregate cost attribution produced by Analyzer.Analyze:
// how much of the portfolio's friction came from each cost component, and
// how large turnover was relative to average capital.
type Breakdown struct {
	TotalCommission float64
	TotalStampTax   float64
	TotalSlippage   float64
	TotalCost       float64
	GrossTurnover   float64 // sum of |trade value| across all trades
	AverageCapital  float64
	TurnoverRatio   float64 // GrossTurnover / AverageCapital
	CostDragPct     float64 // TotalCost / AverageCapital
}

// Analyzer aggregates a recorded trade log into a cost Breakdown and
// supports replaying the equity curve under a rescaled cost assumption
// (the "what if costs were halved" scenario simulator), without re-running
// the backtest day-loop.
type Analyzer struct {
	Trades []models.Trade
	Equity EquitySeries
}

// New builds an Analyzer over a recorded trade log and equity series.
func New(trades []models.Trade, equity EquitySeries) *Analyzer {
	return &Analyzer{Trades: trades, Equity: equity}
}

// Analyze computes the full cost Breakdown.
func (a *Analyzer) Analyze() Breakdown {
	var b Breakdown
	for _, t := range a.Trades {
		b.TotalCommission += t.Commission
		b.TotalStampTax += t.StampTax
		b.TotalSlippage += t.SlippageCost
		b.GrossTurnover += t.GrossValue()
	}
	b.TotalCost = b.TotalCommission + b.TotalStampTax + b.TotalSlippage

	if len(a.Equity) > 0 {
		sum := 0.0
		for _, p := range a.Equity {
			sum += p.Equity
		}
		b.AverageCapital = sum / float64(len(a.Equity))
	}
	if b.AverageCapital > 0 {
		b.TurnoverRatio = b.GrossTurnover / b.AverageCapital
		b.CostDragPct = b.TotalCost / b.AverageCapital
	}
	return b
}

// StockCosts is the per-stock slice of the cost attribution.
type StockCosts struct {
	Stock      models.StockCode
	Commission float64
	StampTax   float64
	Slippage   float64
	Turnover   float64
	TradeCount int
}

// ByStock attributes costs to the stock each trade was filled in, sorted
// by total cost descending.
func (a *Analyzer) ByStock() []StockCosts {
	acc := make(map[models.StockCode]*StockCosts)
	for _, t := range a.Trades {
		sc, ok := acc[t.Stock]
		if !ok {
			sc = &StockCosts{Stock: t.Stock}
			acc[t.Stock] = sc
		}
		sc.Commission += t.Commission
		sc.StampTax += t.StampTax
		sc.Slippage += t.SlippageCost
		sc.Turnover += t.GrossValue()
		sc.TradeCount++
	}
	out := make([]StockCosts, 0, len(acc))
	for _, sc := range acc {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool {
		ti := out[i].Commission + out[i].StampTax + out[i].Slippage
		tj := out[j].Commission + out[j].StampTax + out[j].Slippage
		if ti != tj {
			return ti > tj
		}
		return out[i].Stock < out[j].Stock
	})
	return out
}

// DayCosts is one fill date's entry in the cumulative cost series.
type DayCosts struct {
	Date    time.Time
	Cost    float64
	CumCost float64
}

// ByDay returns the cumulative cost series keyed by fill date, in
// chronological order.
func (a *Analyzer) ByDay() []DayCosts {
	perDay := make(map[time.Time]float64)
	for _, t := range a.Trades {
		day := t.FillDate.Truncate(24 * time.Hour)
		perDay[day] += t.TotalCost()
	}
	days := make([]time.Time, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]DayCosts, 0, len(days))
	cum := 0.0
	for _, d := range days {
		cum += perDay[d]
		out = append(out, DayCosts{Date: d, Cost: perDay[d], CumCost: cum})
	}
	return out
}

// Rescale replays the recorded equity series under a scaled cost
// assumption: each day's equity is adjusted by adding back the originally
// charged cumulative cost and subtracting multiplier times that cost. A
// multiplier of 0.5 answers "what if costs were halved"; 0 answers "what if
// there were no trading costs at all". This does not re-run the day-loop —
// it is a linear replay valid because costs were charged additively against
// cash in the original engine run.
func (a *Analyzer) Rescale(multiplier float64) EquitySeries {
	out := make(EquitySeries, len(a.Equity))
	for i, p := range a.Equity {
		adjustedCost := p.CumCost * multiplier
		out[i] = EquityPoint{
			Equity:  p.Equity + p.CumCost - adjustedCost,
			CumCost: adjustedCost,
		}
	}
	return out
}
