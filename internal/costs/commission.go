// Package costs models A-share-style trading frictions: commission, stamp
// tax, four slippage models, short-sale interest accrual, and a
// cost-attribution analyzer.
package costs

import "github.com/strategylab/core/pkg/models"

// CommissionRates configures the commission calculation: a proportional
// rate applied to trade value, floored at a fixed minimum per trade.
type CommissionRates struct {
	Rate   float64 // e.g. 0.00025 for 2.5bps
	MinFee float64 // e.g. 5.0 yuan minimum per trade
}

// Commission computes max(rate*value, minFee).
func (r CommissionRates) Commission(value float64) float64 {
	fee := value * r.Rate
	if fee < r.MinFee {
		return r.MinFee
	}
	return fee
}

// StampTaxRate configures the sell-side-only stamp tax.
type StampTaxRate struct {
	Rate float64 // e.g. 0.0005 for 5bps, charged only on sells
}

// StampTax returns the stamp tax due for a trade of the given side/action.
// Sells are taxed, and a short open counts as a sell; buys and
// buy-to-cover fills are charged zero.
func (r StampTaxRate) StampTax(value float64, side models.TradeSide, action models.TradeAction) float64 {
	if isSellLike(side, action) {
		return value * r.Rate
	}
	return 0
}

func isSellLike(side models.TradeSide, action models.TradeAction) bool {
	switch {
	case side == models.SideLong && (action == models.ActionReduce || action == models.ActionClose):
		return true
	case side == models.SideShort && (action == models.ActionOpen || action == models.ActionAdd):
		return true
	default:
		return false
	}
}

// Model bundles the commission and stamp-tax schedules applied uniformly
// across a backtest run.
type Model struct {
	Commission CommissionRates
	StampTax   StampTaxRate
}

// DefaultModel returns the conventional A-share retail cost schedule:
// 2.5bps commission with a 5-yuan floor, 5bps sell-side stamp tax.
func DefaultModel() Model {
	return Model{
		Commission: CommissionRates{Rate: 0.00025, MinFee: 5.0},
		StampTax:   StampTaxRate{Rate: 0.0005},
	}
}

// Apply computes the commission and stamp tax due on a fill of the given
// value, side, and action.
func (m Model) Apply(value float64, side models.TradeSide, action models.TradeAction) (commission, stampTax float64) {
	return m.Commission.Commission(value), m.StampTax.StampTax(value, side, action)
}
