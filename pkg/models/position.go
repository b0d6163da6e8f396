package models

import "time"

// LongPosition is a standard long holding, accumulated under the
// weighted-average-cost law: when shares are added, AvgCost becomes the
// quantity-weighted mean of the old cost basis and the new fill price.
type LongPosition struct {
	Stock    StockCode `json:"stock"`
	Quantity int64     `json:"quantity"`
	AvgCost  float64   `json:"avg_cost"`
	OpenDate time.Time `json:"open_date"`
}

// MarketValue returns the position's value at the given market price.
func (p *LongPosition) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}

// UnrealizedPnL returns the mark-to-market gain/loss at the given price.
func (p *LongPosition) UnrealizedPnL(price float64) float64 {
	return float64(p.Quantity) * (price - p.AvgCost)
}

// AddShares merges an additional fill into the position using the
// weighted-average cost law:
//
//	new_avg_cost = (old_qty*old_avg_cost + fill_qty*fill_price) / (old_qty+fill_qty)
func (p *LongPosition) AddShares(qty int64, price float64) {
	if qty <= 0 {
		return
	}
	totalQty := p.Quantity + qty
	if totalQty == 0 {
		p.AvgCost = 0
		p.Quantity = 0
		return
	}
	p.AvgCost = (float64(p.Quantity)*p.AvgCost + float64(qty)*price) / float64(totalQty)
	p.Quantity = totalQty
}

// RemoveShares reduces the position by qty shares; the average cost is
// unchanged by a partial sale (only realized P&L, computed by the caller,
// depends on the sale price). Returns an error if qty exceeds the holding.
func (p *LongPosition) RemoveShares(qty int64) error {
	if qty > p.Quantity {
		return errInsufficientShares(p.Stock, qty, p.Quantity)
	}
	p.Quantity -= qty
	return nil
}

// ShortPosition is a borrowed-and-sold holding. Quantity is stored positive
// (shares owed); AvgPrice is the weighted-average price at which the shares
// were sold short. Short-sale interest is accrued externally by
// internal/costs and added to AccruedInterest.
type ShortPosition struct {
	Stock           StockCode `json:"stock"`
	Quantity        int64     `json:"quantity"`
	AvgPrice        float64   `json:"avg_price"`
	OpenDate        time.Time `json:"open_date"`
	AccruedInterest float64   `json:"accrued_interest"`
}

// MarketValue returns the current liability value at the given market price.
func (p *ShortPosition) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}

// UnrealizedPnL returns the mark-to-market gain/loss for a short: profit
// when price has fallen below the average short-sale price.
func (p *ShortPosition) UnrealizedPnL(price float64) float64 {
	return float64(p.Quantity) * (p.AvgPrice - price)
}

// AddShares merges an additional short sale using the same weighted-average
// law as LongPosition, applied to the short-sale price.
func (p *ShortPosition) AddShares(qty int64, price float64) {
	if qty <= 0 {
		return
	}
	totalQty := p.Quantity + qty
	if totalQty == 0 {
		p.AvgPrice = 0
		p.Quantity = 0
		return
	}
	p.AvgPrice = (float64(p.Quantity)*p.AvgPrice + float64(qty)*price) / float64(totalQty)
	p.Quantity = totalQty
}

// CoverShares reduces the short by qty (a buy-to-cover). Returns an error if
// qty exceeds the outstanding short quantity.
func (p *ShortPosition) CoverShares(qty int64) error {
	if qty > p.Quantity {
		return errInsufficientShares(p.Stock, qty, p.Quantity)
	}
	p.Quantity -= qty
	return nil
}

func errInsufficientShares(stock StockCode, want, have int64) error {
	return &InsufficientSharesError{Stock: stock, Requested: want, Available: have}
}

// InsufficientSharesError is returned when a position reduction requests
// more shares than the position holds.
type InsufficientSharesError struct {
	Stock     StockCode
	Requested int64
	Available int64
}

func (e *InsufficientSharesError) Error() string {
	return "insufficient shares for " + string(e.Stock)
}
