// Package portfolio tracks a backtest's cash and position state. It holds
// both long and short books so market-neutral strategies can run
// alongside long-only ones.
package portfolio

import (
	"fmt"
	"time"

	"github.com/strategylab/core/pkg/models"
)

// Portfolio owns cash plus the long and short books. Every mutation keeps
// cash non-negative for long purchases (callers must check CanAfford before
// calling AddLong) and every position's quantity non-negative (enforced by
// the position types' own Remove/Cover methods).
type Portfolio struct {
	Cash   float64
	Longs  map[models.StockCode]*models.LongPosition
	Shorts map[models.StockCode]*models.ShortPosition
}

// New creates a Portfolio with the given starting cash and empty books.
func New(initialCash float64) *Portfolio {
	return &Portfolio{
		Cash:   initialCash,
		Longs:  make(map[models.StockCode]*models.LongPosition),
		Shorts: make(map[models.StockCode]*models.ShortPosition),
	}
}

// CanAfford reports whether buying qty shares at price (plus extraCost, the
// commission/stamp already computed by internal/costs; slippage is carried
// in price) would not drive cash negative.
func (p *Portfolio) CanAfford(qty int64, price, extraCost float64) bool {
	return p.Cash-float64(qty)*price-extraCost >= -1e-9
}

// AddLong executes a buy: deducts cash, merges the fill into the long book
// under the weighted-average-cost law.
func (p *Portfolio) AddLong(stock models.StockCode, qty int64, price, extraCost float64, date time.Time) error {
	if !p.CanAfford(qty, price, extraCost) {
		return fmt.Errorf("portfolio: insufficient cash to buy %d shares of %s at %.4f", qty, stock, price)
	}
	pos, ok := p.Longs[stock]
	if !ok {
		pos = &models.LongPosition{Stock: stock, OpenDate: date}
		p.Longs[stock] = pos
	}
	pos.AddShares(qty, price)
	p.Cash -= float64(qty)*price + extraCost
	return nil
}

// RemoveLong executes a sell: removes shares from the long book, credits
// cash net of cost, and drops the position entry once it reaches zero.
// Returns the realized P&L on the shares sold.
func (p *Portfolio) RemoveLong(stock models.StockCode, qty int64, price, extraCost float64) (float64, error) {
	pos, ok := p.Longs[stock]
	if !ok {
		return 0, fmt.Errorf("portfolio: no long position in %s", stock)
	}
	realized := float64(qty) * (price - pos.AvgCost)
	if err := pos.RemoveShares(qty); err != nil {
		return 0, err
	}
	p.Cash += float64(qty)*price - extraCost
	if pos.Quantity == 0 {
		delete(p.Longs, stock)
	}
	return realized, nil
}

// AddShort executes a short sale: credits proceeds to cash net of cost,
// merges into the short book under the weighted-average-price law.
func (p *Portfolio) AddShort(stock models.StockCode, qty int64, price, extraCost float64, date time.Time) error {
	pos, ok := p.Shorts[stock]
	if !ok {
		pos = &models.ShortPosition{Stock: stock, OpenDate: date}
		p.Shorts[stock] = pos
	}
	pos.AddShares(qty, price)
	p.Cash += float64(qty)*price - extraCost
	return nil
}

// CoverShort executes a buy-to-cover: debits cash, reduces the short book,
// drops the entry once flat. Returns the realized P&L on the shares covered.
func (p *Portfolio) CoverShort(stock models.StockCode, qty int64, price, extraCost float64) (float64, error) {
	pos, ok := p.Shorts[stock]
	if !ok {
		return 0, fmt.Errorf("portfolio: no short position in %s", stock)
	}
	realized := float64(qty) * (pos.AvgPrice - price)
	if err := pos.CoverShares(qty); err != nil {
		return 0, err
	}
	p.Cash -= float64(qty)*price + extraCost
	if pos.Quantity == 0 {
		delete(p.Shorts, stock)
	}
	return realized, nil
}

// AccrueShortInterest adds interest charges to outstanding short positions
// and debits cash for the total accrued.
func (p *Portfolio) AccrueShortInterest(prices map[models.StockCode]float64, dailyCharge func(marketValue float64) float64) {
	for stock, pos := range p.Shorts {
		price, ok := prices[stock]
		if !ok {
			continue
		}
		charge := dailyCharge(pos.MarketValue(price))
		pos.AccruedInterest += charge
		p.Cash -= charge
	}
}

// LongHoldingsValue returns the mark-to-market value of all long positions
// using the given price map; stocks missing a price are skipped.
func (p *Portfolio) LongHoldingsValue(prices map[models.StockCode]float64) float64 {
	total := 0.0
	for stock, pos := range p.Longs {
		if price, ok := prices[stock]; ok {
			total += pos.MarketValue(price)
		}
	}
	return total
}

// ShortLiabilityValue returns the mark-to-market liability of all short
// positions using the given price map.
func (p *Portfolio) ShortLiabilityValue(prices map[models.StockCode]float64) float64 {
	total := 0.0
	for stock, pos := range p.Shorts {
		if price, ok := prices[stock]; ok {
			total += pos.MarketValue(price)
		}
	}
	return total
}

// TotalValue returns net portfolio value: cash + long market value - short
// liability value. This is the quantity the engine records as the day's
// equity-curve point.
func (p *Portfolio) TotalValue(prices map[models.StockCode]float64) float64 {
	return p.Cash + p.LongHoldingsValue(prices) - p.ShortLiabilityValue(prices)
}

// StocksToSell returns the long holdings due for rotation at a rebalance:
// any held long absent from the keep set, plus — when holdingPeriod > 0 —
// any long whose heldPeriods reading has reached holdingPeriod even though
// it is still kept. heldPeriods is only consulted when holdingPeriod > 0,
// so callers with no holding-period rule may pass nil.
func (p *Portfolio) StocksToSell(keep map[models.StockCode]bool, holdingPeriod int, heldPeriods func(models.StockCode) int) []models.StockCode {
	var out []models.StockCode
	for stock := range p.Longs {
		if !keep[stock] || (holdingPeriod > 0 && heldPeriods(stock) >= holdingPeriod) {
			out = append(out, stock)
		}
	}
	return out
}

// StocksToCover returns the short positions due for rotation, the
// market-neutral analogue of StocksToSell with the same keep-set and
// holding-period semantics.
func (p *Portfolio) StocksToCover(keep map[models.StockCode]bool, holdingPeriod int, heldPeriods func(models.StockCode) int) []models.StockCode {
	var out []models.StockCode
	for stock := range p.Shorts {
		if !keep[stock] || (holdingPeriod > 0 && heldPeriods(stock) >= holdingPeriod) {
			out = append(out, stock)
		}
	}
	return out
}
