// Package backtest runs the day-loop state machine: at each rebalance date
// the composer's decision is computed from data available through that
// date, then filled at the next trading date's closing price (T+1
// settlement) — the engine never fills an order on the same date its
// decision was made. Each iteration marks the book to market, asks the
// composer for a decision, closes what rotated out, and fills new entries
// at the following date, accumulating a trade log and equity curve that
// feed the metrics and cost analysis afterwards.
package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/strategylab/core/internal/calendar"
	"github.com/strategylab/core/internal/costs"
	"github.com/strategylab/core/internal/portfolio"
	"github.com/strategylab/core/internal/strategy"
	"github.com/strategylab/core/pkg/models"
)

// Mode selects whether the engine runs long-only or long+short
// (market-neutral) books.
type Mode string

const (
	LongOnly      Mode = "long_only"
	MarketNeutral Mode = "market_neutral"
)

// Config parameterizes one backtest run.
type Config struct {
	InitialCapital float64
	Mode           Mode
	RebalanceFreq  calendar.Frequency
	CostModel      costs.Model
	Slippage       costs.SlippageModel
	ShortInterest  costs.ShortInterestRate
	// MaxPositions caps the number of concurrent long (and, in
	// MarketNeutral mode, short) holdings; zero means unbounded.
	MaxPositions int
	// HoldingPeriod is the minimum number of trading days (date positions)
	// a position is held before it becomes eligible for forced rotation: a
	// position still ranked in the selector's current top-N is sold anyway
	// once it has been held at
	// least this long. Zero disables this holding-period rule — a holding
	// is then only ever closed by an ExitStrategy decision or by falling
	// out of the selector's candidate list.
	HoldingPeriod int
	// ShortTopN is the number of lowest-ranked candidates (by the
	// selector's score map) shorted in MarketNeutral mode each rebalance;
	// zero disables shorting even when Mode is MarketNeutral.
	ShortTopN int
	// MarginRatio is the required-margin fraction of short notional that
	// must be available in cash before a new short is opened (defaults
	// to 0.5 if left zero).
	MarginRatio float64
	// LotSize is the board-lot increment order quantities are rounded down
	// to; fills that round below one lot are skipped. Defaults to the
	// A-share lot of 100 shares when zero.
	LotSize int64
	// ExternalScores feeds a selector that ranks by an externally-supplied
	// score (e.g. ValueSelector) rather than bar history; nil for
	// selectors that derive their own scores from price history.
	ExternalScores *models.ScorePanel
}

func (c Config) marginRatio() float64 {
	if c.MarginRatio > 0 {
		return c.MarginRatio
	}
	return 0.5
}

func (c Config) lotSize() int64 {
	if c.LotSize > 0 {
		return c.LotSize
	}
	return 100
}

// Engine runs a Composer's decisions through a day-loop, tracking a
// Portfolio and accumulating a Trade log and equity curve.
type Engine struct {
	Config   Config
	Universe []models.StockCode
	Prices   *models.OHLCVPanel
	Composer *strategy.Composer
}

// New builds an Engine.
func New(cfg Config, universe []models.StockCode, prices *models.OHLCVPanel, composer *strategy.Composer) *Engine {
	return &Engine{Config: cfg, Universe: universe, Prices: prices, Composer: composer}
}

// Result is the full output of a Run: the trade log, the equity curve
// (paired with cumulative cost, for the cost analyzer's scenario replay),
// and the final portfolio state.
type Result struct {
	Trades []models.Trade
	Equity costs.EquitySeries
	Dates  []int // date positions corresponding 1:1 with Equity
	Final  *portfolio.Portfolio
}

// externalScoresAt returns the cross-section of externally-supplied
// scores at pos, or nil when the engine has none configured.
func (e *Engine) externalScoresAt(pos int) map[models.StockCode]float64 {
	if e.Config.ExternalScores == nil {
		return nil
	}
	return e.Config.ExternalScores.Row(pos)
}

// entryRecord tracks what an ATR/time-based exit needs to know about an
// open position: the position index and price at which it was entered.
type entryRecord struct {
	pos   int
	price float64
}

// state carries everything that must survive a chunk boundary so a
// chunked run compounds identically to a single unchunked Run: the
// portfolio, the open-position entry records, and cumulative cost so far.
type state struct {
	portfolio    *portfolio.Portfolio
	longEntries  map[models.StockCode]entryRecord
	shortEntries map[models.StockCode]entryRecord
	cumCost      float64
}

func newState(initialCapital float64) *state {
	return &state{
		portfolio:    portfolio.New(initialCapital),
		longEntries:  make(map[models.StockCode]entryRecord),
		shortEntries: make(map[models.StockCode]entryRecord),
	}
}

// Run executes the day-loop over the engine's full date range.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	st := newState(e.Config.InitialCapital)
	res, _, err := e.runRange(ctx, 0, e.Prices.Dates.Len()-1, 0, st)
	return res, err
}

// runRange executes the day-loop over positions [startPos, endPos]
// inclusive, continuing from the given state (so chunk boundaries compound
// continuously), but only begins emitting equity/trade output once pos
// reaches emitFrom — positions in [startPos, emitFrom) are a warm-up
// window whose rebalance/fill activity still happens (so indicator and
// portfolio state is correct going into the emitted window) but whose
// output is discarded. RunChunked calls it with emitFrom equal to each
// chunk's start, so every position of a chunk is emitted and no warm-up
// window is used. It returns the state as of endPos so the caller can feed
// it into the next chunk.
func (e *Engine) runRange(ctx context.Context, startPos, endPos, emitFrom int, st *state) (*Result, *state, error) {
	cal := calendar.New(e.Prices.Dates)
	rebalancePositions, err := cal.RebalanceDates(e.Config.RebalanceFreq)
	if err != nil {
		return nil, nil, fmt.Errorf("backtest: %w", err)
	}
	rebalanceSet := make(map[int]bool, len(rebalancePositions))
	for _, p := range rebalancePositions {
		rebalanceSet[p] = true
	}

	p := st.portfolio
	longEntries := st.longEntries
	shortEntries := st.shortEntries

	var trades []models.Trade
	var equity costs.EquitySeries
	var dates []int
	cumCost := st.cumCost

	for pos := startPos; pos <= endPos; pos++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		prices := e.Prices.Slice(e.Universe, pos)
		priceMap := closeMap(prices)

		if e.Config.Mode == MarketNeutral {
			p.AccrueShortInterest(priceMap, e.Config.ShortInterest.AccrueDaily)
		}

		if rebalanceSet[pos] {
			fillPos, ok := cal.NextTradingPosition(pos)
			if ok {
				snap := strategy.MarketSnapshot{
					Pos:       pos,
					Bars:      prices,
					Scores:    e.externalScoresAt(pos),
					Portfolio: portfolioView(p),
				}
				held := heldStocks(p)
				decision, err := e.Composer.Decide(ctx, snap, e.Universe, held)
				if err != nil {
					return nil, nil, fmt.Errorf("backtest: composer decision at position %d: %w", pos, err)
				}
				shortList := e.shortCandidates(decision.Scores, decision.Candidates)
				decision.Exits = e.addForcedExits(p, decision.Exits, decision.Candidates, shortList, pos, longEntries, shortEntries)
				fillPrices := closeMap(e.Prices.Slice(e.Universe, fillPos))
				newTrades, cost := e.applyDecision(p, decision, pos, fillPos, fillPrices, longEntries, shortEntries)
				cumCost += cost
				if e.Config.Mode == MarketNeutral {
					shortTrades, shortCost := e.openShorts(p, shortList, pos, fillPos, fillPrices, shortEntries)
					newTrades = append(newTrades, shortTrades...)
					cumCost += shortCost
				}
				if pos >= emitFrom {
					trades = append(trades, newTrades...)
				}
			}
		}

		if pos >= emitFrom {
			equity = append(equity, costs.EquityPoint{Equity: p.TotalValue(priceMap), CumCost: cumCost})
			dates = append(dates, pos)
		}
	}

	st.cumCost = cumCost
	return &Result{Trades: trades, Equity: equity, Dates: dates, Final: p}, st, nil
}

// applyDecision executes a composer Decision's exits then entries at the
// T+1 fill date/prices, mutating the portfolio and returning the trades
// generated plus the total cost charged.
func (e *Engine) applyDecision(
	p *portfolio.Portfolio,
	decision strategy.Decision,
	decisionPos, fillPos int,
	fillPrices map[models.StockCode]float64,
	longEntries, shortEntries map[models.StockCode]entryRecord,
) ([]models.Trade, float64) {
	var trades []models.Trade
	totalCost := 0.0

	for _, ex := range decision.Exits {
		if !ex.Exit {
			continue
		}
		price, ok := fillPrices[ex.Stock]
		if !ok {
			continue
		}
		if pos, isLong := p.Longs[ex.Stock]; isLong {
			value := float64(pos.Quantity) * price
			commission, stamp := e.Config.CostModel.Apply(value, models.SideLong, models.ActionClose)
			slipPrice := e.applySlippage(ex.Stock, price, pos.Quantity, decisionPos, fillPos, costs.SellSide)
			realized, err := p.RemoveLong(ex.Stock, pos.Quantity, slipPrice, commission+stamp)
			if err == nil {
				trades = append(trades, models.Trade{
					Stock: ex.Stock, Side: models.SideLong, Action: models.ActionClose,
					DecisionDate: e.Prices.Dates.At(decisionPos), FillDate: e.Prices.Dates.At(fillPos),
					Quantity: pos.Quantity, FillPrice: slipPrice,
					Commission: commission, StampTax: stamp,
					SlippageCost: math.Abs(slipPrice-price) * float64(pos.Quantity),
					RealizedPnL:  realized, Reason: ex.Reason,
				})
				totalCost += commission + stamp
				delete(longEntries, ex.Stock)
			}
		}
		if pos, isShort := p.Shorts[ex.Stock]; isShort {
			value := float64(pos.Quantity) * price
			commission, stamp := e.Config.CostModel.Apply(value, models.SideShort, models.ActionClose)
			slipPrice := e.applySlippage(ex.Stock, price, pos.Quantity, decisionPos, fillPos, costs.BuySide)
			realized, err := p.CoverShort(ex.Stock, pos.Quantity, slipPrice, commission+stamp)
			if err == nil {
				trades = append(trades, models.Trade{
					Stock: ex.Stock, Side: models.SideShort, Action: models.ActionClose,
					DecisionDate: e.Prices.Dates.At(decisionPos), FillDate: e.Prices.Dates.At(fillPos),
					Quantity: pos.Quantity, FillPrice: slipPrice,
					Commission: commission, StampTax: stamp,
					SlippageCost: math.Abs(slipPrice-price) * float64(pos.Quantity),
					RealizedPnL:  realized, Reason: ex.Reason,
				})
				totalCost += commission + stamp
				delete(shortEntries, ex.Stock)
			}
		}
	}

	// The buy list is the entered candidates not already held long. Entry
	// weights need not sum to anything in particular: they are normalised
	// here so the full long budget (half the book in market-neutral mode)
	// is spread across the buy list in proportion to the weights returned.
	longBudget := 1.0
	if e.Config.Mode == MarketNeutral {
		longBudget = 0.5
	}
	var sumWeights float64
	for _, en := range decision.Entries {
		if !en.Enter {
			continue
		}
		if _, held := p.Longs[en.Stock]; held {
			continue
		}
		if price, ok := fillPrices[en.Stock]; ok && price > 0 {
			sumWeights += en.TargetWeight
		}
	}

	lot := e.Config.lotSize()
	for _, en := range decision.Entries {
		if !en.Enter {
			continue
		}
		if _, held := p.Longs[en.Stock]; held {
			continue
		}
		price, ok := fillPrices[en.Stock]
		if !ok || price <= 0 {
			continue
		}
		weight := en.TargetWeight
		if sumWeights > 0 {
			weight = en.TargetWeight / sumWeights * longBudget
		}
		targetValue := p.TotalValue(fillPrices) * weight
		qty := int64(targetValue/price) / lot * lot
		if qty < lot {
			continue
		}
		if e.Config.MaxPositions > 0 && len(p.Longs) >= e.Config.MaxPositions {
			continue
		}
		value := float64(qty) * price
		commission, stamp := e.Config.CostModel.Apply(value, models.SideLong, models.ActionOpen)
		slipPrice := e.applySlippage(en.Stock, price, qty, decisionPos, fillPos, costs.BuySide)
		// Step the order down one lot at a time until the fill plus its
		// costs fit inside available cash; a target computed from total
		// equity can exceed cash by the commission alone.
		for qty >= lot && !p.CanAfford(qty, slipPrice, commission+stamp) {
			qty -= lot
			value = float64(qty) * price
			commission, stamp = e.Config.CostModel.Apply(value, models.SideLong, models.ActionOpen)
			slipPrice = e.applySlippage(en.Stock, price, qty, decisionPos, fillPos, costs.BuySide)
		}
		if qty < lot {
			continue
		}
		if err := p.AddLong(en.Stock, qty, slipPrice, commission+stamp, e.Prices.Dates.At(fillPos)); err == nil {
			if _, exists := longEntries[en.Stock]; !exists {
				longEntries[en.Stock] = entryRecord{pos: fillPos, price: slipPrice}
			}
			trades = append(trades, models.Trade{
				Stock: en.Stock, Side: models.SideLong, Action: models.ActionOpen,
				DecisionDate: e.Prices.Dates.At(decisionPos), FillDate: e.Prices.Dates.At(fillPos),
				Quantity: qty, FillPrice: slipPrice,
				Commission: commission, StampTax: stamp,
				SlippageCost: math.Abs(slipPrice-price) * float64(qty),
				Reason:       en.Reason,
			})
			totalCost += commission + stamp
		}
	}

	return trades, totalCost
}

// applySlippage looks up the fill bar's volume and a trailing volatility
// estimate (computed only from bars up to the decision date, never the fill
// date, to avoid leaking T+1 information into the slippage model itself)
// and runs the configured SlippageModel.
func (e *Engine) applySlippage(stock models.StockCode, refPrice float64, qty int64, decisionPos, fillPos int, side costs.Side) float64 {
	if e.Config.Slippage == nil {
		return refPrice
	}
	return e.Config.Slippage.AdjustPrice(refPrice, qty, e.slipCtx(stock, decisionPos, fillPos), side)
}

const defaultVolatilityWindow = 20

// slipCtx builds the MarketContext a SlippageModel consumes: the fill bar's
// traded volume (participation-rate models) and a trailing close-to-close
// volatility estimate ending at decisionPos (market-impact and bid-ask
// models).
func (e *Engine) slipCtx(stock models.StockCode, decisionPos, fillPos int) costs.MarketContext {
	ctx := costs.MarketContext{}
	if bar, ok := e.Prices.BarAt(stock, fillPos); ok {
		ctx.Volume = bar.Volume
	}
	ctx.Volatility = e.trailingVolatility(stock, decisionPos, defaultVolatilityWindow)
	return ctx
}

// trailingVolatility returns the sample standard deviation of close-to-
// close returns over the window ending at pos (inclusive), using only bars
// at or before pos.
func (e *Engine) trailingVolatility(stock models.StockCode, pos, window int) float64 {
	bars := e.Prices.Bars(stock)
	if bars == nil || pos < 0 || pos >= len(bars) {
		return 0
	}
	start := pos - window
	if start < 0 {
		start = 0
	}
	var rets []float64
	for i := start + 1; i <= pos; i++ {
		if bars[i-1].Close > 0 {
			rets = append(rets, (bars[i].Close-bars[i-1].Close)/bars[i-1].Close)
		}
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var sq float64
	for _, r := range rets {
		sq += (r - mean) * (r - mean)
	}
	return math.Sqrt(sq / float64(len(rets)-1))
}

// shortCandidates picks the ShortTopN lowest-scoring stocks from the
// selector's full score map, excluding anything already picked long —
// the bottom-N mirror of the selector's own top-N truncation. Returns nil
// when shorting is disabled (ShortTopN == 0) or Mode isn't MarketNeutral.
func (e *Engine) shortCandidates(scores map[models.StockCode]float64, longPicks []models.StockCode) []models.StockCode {
	if e.Config.Mode != MarketNeutral || e.Config.ShortTopN <= 0 || len(scores) == 0 {
		return nil
	}
	longSet := make(map[models.StockCode]bool, len(longPicks))
	for _, s := range longPicks {
		longSet[s] = true
	}
	type scored struct {
		stock models.StockCode
		score float64
	}
	var ranked []scored
	for s, v := range scores {
		if longSet[s] {
			continue
		}
		ranked = append(ranked, scored{s, v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].stock < ranked[j].stock
	})
	n := e.Config.ShortTopN
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]models.StockCode, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].stock
	}
	return out
}

// addForcedExits appends the forced-rotation closes, delegating the
// rotation decision to Portfolio.StocksToSell/StocksToCover: a held
// long/short is closed once it has been held at least HoldingPeriod
// trading days (forced turnover, even if still ranked), or once it
// drops out of the current candidate list entirely. HoldingPeriod == 0
// disables the holding-day half of the rule, leaving "absent from the
// candidate list" as the only forced-exit trigger. Stocks already flagged
// to exit by the ExitStrategy are left as-is.
func (e *Engine) addForcedExits(
	p *portfolio.Portfolio,
	exits []strategy.ExitDecision,
	longCandidates, shortCandidates []models.StockCode,
	pos int,
	longEntries, shortEntries map[models.StockCode]entryRecord,
) []strategy.ExitDecision {
	already := make(map[models.StockCode]bool, len(exits))
	for _, ex := range exits {
		if ex.Exit {
			already[ex.Stock] = true
		}
	}

	heldPeriods := func(entries map[models.StockCode]entryRecord) func(models.StockCode) int {
		return func(stock models.StockCode) int {
			rec, ok := entries[stock]
			if !ok {
				return 0
			}
			return pos - rec.pos
		}
	}

	sellList := p.StocksToSell(toSet(longCandidates), e.Config.HoldingPeriod, heldPeriods(longEntries))
	coverList := p.StocksToCover(toSet(shortCandidates), e.Config.HoldingPeriod, heldPeriods(shortEntries))

	for _, stock := range append(sellList, coverList...) {
		if already[stock] {
			continue
		}
		exits = append(exits, strategy.ExitDecision{Stock: stock, Exit: true, Reason: "forced rotation: holding period elapsed or dropped from candidates"})
		already[stock] = true
	}
	return exits
}

func toSet(stocks []models.StockCode) map[models.StockCode]bool {
	out := make(map[models.StockCode]bool, len(stocks))
	for _, s := range stocks {
		out[s] = true
	}
	return out
}

// openShorts opens new short positions for any shortCandidates not already
// shorted, equally weighting the short half of the book's total value
// across them, gated by the required-margin check.
func (e *Engine) openShorts(
	p *portfolio.Portfolio,
	shortCandidates []models.StockCode,
	decisionPos, fillPos int,
	fillPrices map[models.StockCode]float64,
	shortEntries map[models.StockCode]entryRecord,
) ([]models.Trade, float64) {
	var toOpen []models.StockCode
	for _, s := range shortCandidates {
		if _, already := p.Shorts[s]; !already {
			toOpen = append(toOpen, s)
		}
	}
	if len(toOpen) == 0 {
		return nil, 0
	}

	var trades []models.Trade
	totalCost := 0.0
	targetWeight := 0.5 / float64(len(toOpen))
	total := p.TotalValue(fillPrices)

	for _, stock := range toOpen {
		if e.Config.MaxPositions > 0 && len(p.Shorts) >= e.Config.MaxPositions {
			break
		}
		price, ok := fillPrices[stock]
		if !ok || price <= 0 {
			continue
		}
		targetValue := total * targetWeight
		lot := e.Config.lotSize()
		qty := int64(targetValue/price) / lot * lot
		if qty < lot {
			continue
		}
		value := float64(qty) * price
		commission, stamp := e.Config.CostModel.Apply(value, models.SideShort, models.ActionOpen)
		slipPrice := e.applySlippage(stock, price, qty, decisionPos, fillPos, costs.SellSide)
		requiredMargin := float64(qty) * slipPrice * e.Config.marginRatio()
		if p.Cash < requiredMargin {
			continue
		}
		if err := p.AddShort(stock, qty, slipPrice, commission+stamp, e.Prices.Dates.At(fillPos)); err == nil {
			if _, exists := shortEntries[stock]; !exists {
				shortEntries[stock] = entryRecord{pos: fillPos, price: slipPrice}
			}
			trades = append(trades, models.Trade{
				Stock: stock, Side: models.SideShort, Action: models.ActionOpen,
				DecisionDate: e.Prices.Dates.At(decisionPos), FillDate: e.Prices.Dates.At(fillPos),
				Quantity: qty, FillPrice: slipPrice,
				Commission: commission, StampTax: stamp,
				SlippageCost: math.Abs(slipPrice-price) * float64(qty),
				Reason:       "market-neutral short entry",
			})
			totalCost += commission + stamp
		}
	}
	return trades, totalCost
}

func closeMap(bars map[models.StockCode]models.OHLCV) map[models.StockCode]float64 {
	out := make(map[models.StockCode]float64, len(bars))
	for s, b := range bars {
		out[s] = b.Close
	}
	return out
}

func heldStocks(p *portfolio.Portfolio) []models.StockCode {
	out := make([]models.StockCode, 0, len(p.Longs)+len(p.Shorts))
	for s := range p.Longs {
		out = append(out, s)
	}
	for s := range p.Shorts {
		out = append(out, s)
	}
	return out
}

func portfolioView(p *portfolio.Portfolio) strategy.PortfolioView {
	v := strategy.PortfolioView{
		Cash:          p.Cash,
		LongHoldings:  make(map[models.StockCode]int64, len(p.Longs)),
		ShortHoldings: make(map[models.StockCode]int64, len(p.Shorts)),
	}
	for s, pos := range p.Longs {
		v.LongHoldings[s] = pos.Quantity
	}
	for s, pos := range p.Shorts {
		v.ShortHoldings[s] = pos.Quantity
	}
	return v
}
