package models

import "time"

// TradeSide identifies whether a trade opened/added to a long book or a
// short book.
type TradeSide string

const (
	SideLong  TradeSide = "LONG"
	SideShort TradeSide = "SHORT"
)

// TradeAction identifies the lifecycle event a Trade record captures.
type TradeAction string

const (
	ActionOpen   TradeAction = "OPEN"
	ActionAdd    TradeAction = "ADD"
	ActionReduce TradeAction = "REDUCE"
	ActionClose  TradeAction = "CLOSE"
)

// Trade is an append-only record of one fill, including the full cost
// breakdown applied to it (commission, stamp tax, slippage) so the cost
// analyzer can reconstruct turnover and cost drag without re-deriving fills.
type Trade struct {
	Stock        StockCode   `json:"stock"`
	Side         TradeSide   `json:"side"`
	Action       TradeAction `json:"action"`
	DecisionDate time.Time   `json:"decision_date"`
	FillDate     time.Time   `json:"fill_date"`
	Quantity     int64       `json:"quantity"`
	FillPrice    float64     `json:"fill_price"`
	Commission   float64     `json:"commission"`
	StampTax     float64     `json:"stamp_tax"`
	SlippageCost float64     `json:"slippage_cost"`
	RealizedPnL  float64     `json:"realized_pnl"`
	Reason       string      `json:"reason"`
}

// GrossValue returns quantity * fill price, before any cost deduction.
func (t *Trade) GrossValue() float64 {
	return float64(t.Quantity) * t.FillPrice
}

// TotalCost returns the sum of all cost components charged against this fill.
func (t *Trade) TotalCost() float64 {
	return t.Commission + t.StampTax + t.SlippageCost
}

// NetCashFlow returns the signed cash impact of this trade: negative for a
// buy/short-cover (cash leaves), positive for a sell/short-open (cash
// arrives), net of all costs.
func (t *Trade) NetCashFlow() float64 {
	gross := t.GrossValue()
	switch {
	case t.Side == SideLong && (t.Action == ActionOpen || t.Action == ActionAdd):
		return -gross - t.TotalCost()
	case t.Side == SideLong && (t.Action == ActionReduce || t.Action == ActionClose):
		return gross - t.TotalCost()
	case t.Side == SideShort && (t.Action == ActionOpen || t.Action == ActionAdd):
		return gross - t.TotalCost()
	case t.Side == SideShort && (t.Action == ActionReduce || t.Action == ActionClose):
		return -gross - t.TotalCost()
	default:
		return -t.TotalCost()
	}
}
