// Package models holds the data shapes shared across the backtest engine,
// the factor analyzer, the three-layer strategy protocol and the dynamic
// strategy loader: panel frames, positions, trade records, analysis
// artefacts, strategy metadata and the unified response envelope.
package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DateIndex is an immutable, strictly increasing sequence of trading dates.
// It is the only source of "what day is it" for the backtest engine — the
// engine never consults wall-clock time.
type DateIndex struct {
	dates []time.Time
	pos   map[int64]int // unix-day -> position, for O(1) lookups
}

// NewDateIndex builds a DateIndex from a slice of dates. Dates are sorted
// and de-duplicated (by calendar day); callers that need strict-increasing
// semantics enforced should use NewDateIndexStrict.
func NewDateIndex(dates []time.Time) *DateIndex {
	seen := make(map[int64]bool, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		key := dayKey(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	idx := &DateIndex{dates: out, pos: make(map[int64]int, len(out))}
	for i, d := range out {
		idx.pos[dayKey(d)] = i
	}
	return idx
}

// NewDateIndexStrict builds a DateIndex and returns an error if the input
// is not already strictly increasing with no duplicate days.
func NewDateIndexStrict(dates []time.Time) (*DateIndex, error) {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("date index not strictly increasing at position %d: %v <= %v", i, dates[i], dates[i-1])
		}
	}
	return NewDateIndex(dates), nil
}

func dayKey(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// Len returns the number of dates in the index.
func (d *DateIndex) Len() int { return len(d.dates) }

// At returns the date at position i.
func (d *DateIndex) At(i int) time.Time { return d.dates[i] }

// All returns the full ordered date slice (read-only; callers must not mutate).
func (d *DateIndex) All() []time.Time { return d.dates }

// IndexOf returns the position of date t in the index, or -1 if absent.
func (d *DateIndex) IndexOf(t time.Time) int {
	if i, ok := d.pos[dayKey(t)]; ok {
		return i
	}
	return -1
}

// Next returns the date immediately following i, and whether it exists.
// This is the T+1 lookup used by the backtest engine's decision/fill rule.
func (d *DateIndex) Next(i int) (time.Time, bool) {
	if i+1 >= len(d.dates) {
		return time.Time{}, false
	}
	return d.dates[i+1], true
}

// Intersect returns the ordered set of dates present in both indices.
func (d *DateIndex) Intersect(other *DateIndex) *DateIndex {
	out := make([]time.Time, 0, d.Len())
	for _, t := range d.dates {
		if other.IndexOf(t) >= 0 {
			out = append(out, t)
		}
	}
	return NewDateIndex(out)
}

// StockCode is an opaque, equality-comparable identifier for a stock.
type StockCode string

// PricePanel is a wide frame indexed by date, keyed by stock code, with
// close-price values. A missing cell means "no observation", never zero.
type PricePanel struct {
	Dates    *DateIndex
	columns  map[StockCode][]float64 // each column has length Dates.Len(); NaN = missing
	colOrder []StockCode
}

// NewPricePanel creates an empty PricePanel over the given date index.
func NewPricePanel(dates *DateIndex) *PricePanel {
	return &PricePanel{Dates: dates, columns: make(map[StockCode][]float64)}
}

// SetColumn installs (or replaces) a stock's full price column. The column
// must have exactly Dates.Len() entries; use math.NaN() for missing cells.
func (p *PricePanel) SetColumn(stock StockCode, values []float64) error {
	if len(values) != p.Dates.Len() {
		return fmt.Errorf("panel: column %q has %d values, want %d", stock, len(values), p.Dates.Len())
	}
	if _, exists := p.columns[stock]; !exists {
		p.colOrder = append(p.colOrder, stock)
	}
	p.columns[stock] = values
	return nil
}

// Stocks returns the stock codes present in the panel, insertion order.
func (p *PricePanel) Stocks() []StockCode {
	out := make([]StockCode, len(p.colOrder))
	copy(out, p.colOrder)
	return out
}

// At returns the value for (stock, date-position), and whether it's an
// observation (false means the cell is missing/NaN).
func (p *PricePanel) At(stock StockCode, pos int) (float64, bool) {
	col, ok := p.columns[stock]
	if !ok || pos < 0 || pos >= len(col) {
		return 0, false
	}
	v := col[pos]
	return v, !math.IsNaN(v)
}

// AtDate is a convenience wrapper over At using an explicit date rather than
// a position; returns false if the date is not in the index.
func (p *PricePanel) AtDate(stock StockCode, t time.Time) (float64, bool) {
	pos := p.Dates.IndexOf(t)
	if pos < 0 {
		return 0, false
	}
	return p.At(stock, pos)
}

// Row returns the cross-section of all stock prices at position pos, with
// missing stocks omitted (never returned as zero).
func (p *PricePanel) Row(pos int) map[StockCode]float64 {
	out := make(map[StockCode]float64)
	for _, s := range p.colOrder {
		if v, ok := p.At(s, pos); ok {
			out[s] = v
		}
	}
	return out
}

// SliceUpTo returns a new PricePanel containing only rows with position <=
// upTo, inclusive. Used to enforce the look-ahead prohibition in tests: a
// strategy callback for date d must behave identically whether given the
// full panel or SliceUpTo(d)'s truncated one.
func (p *PricePanel) SliceUpTo(upTo int) *PricePanel {
	n := upTo + 1
	if n > p.Dates.Len() {
		n = p.Dates.Len()
	}
	sub := NewPricePanel(NewDateIndex(p.Dates.All()[:n]))
	for _, s := range p.colOrder {
		col := p.columns[s]
		cp := make([]float64, n)
		copy(cp, col[:n])
		sub.SetColumn(s, cp)
	}
	return sub
}

// PctChange returns a new panel of h-period forward percent changes:
// out[pos] = (price[pos+h] - price[pos]) / price[pos], shifted back by h so
// that out[pos] represents the *forward* return as of pos (used by the
// factor analyzer's IC computation: future_return = pct_change(h).shift(-h)).
func (p *PricePanel) PctChange(h int) *PricePanel {
	out := NewPricePanel(p.Dates)
	n := p.Dates.Len()
	for _, s := range p.colOrder {
		col := p.columns[s]
		fwd := make([]float64, n)
		for i := range fwd {
			fwd[i] = math.NaN()
		}
		for i := 0; i+h < n; i++ {
			base := col[i]
			future := col[i+h]
			if math.IsNaN(base) || math.IsNaN(future) || base == 0 {
				continue
			}
			fwd[i] = (future - base) / base
		}
		out.SetColumn(s, fwd)
	}
	return out
}

// OHLCV is a single bar: open/high/low/close/volume for one stock on one date.
type OHLCV struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OHLCVPanel holds per-stock OHLCV series, rows = dates.
type OHLCVPanel struct {
	Dates *DateIndex
	bars  map[StockCode][]OHLCV
}

// NewOHLCVPanel creates an empty OHLCVPanel over the given date index.
func NewOHLCVPanel(dates *DateIndex) *OHLCVPanel {
	return &OHLCVPanel{Dates: dates, bars: make(map[StockCode][]OHLCV)}
}

// SetBars installs a stock's OHLCV series; must match Dates.Len() in length.
func (p *OHLCVPanel) SetBars(stock StockCode, bars []OHLCV) error {
	if len(bars) != p.Dates.Len() {
		return fmt.Errorf("panel: bars for %q has %d rows, want %d", stock, len(bars), p.Dates.Len())
	}
	p.bars[stock] = bars
	return nil
}

// Bars returns a stock's OHLCV series.
func (p *OHLCVPanel) Bars(stock StockCode) []OHLCV { return p.bars[stock] }

// BarAt returns the bar at position pos for a stock, and whether it exists.
func (p *OHLCVPanel) BarAt(stock StockCode, pos int) (OHLCV, bool) {
	bars, ok := p.bars[stock]
	if !ok || pos < 0 || pos >= len(bars) {
		return OHLCV{}, false
	}
	return bars[pos], true
}

// Slice returns per-stock OHLCV data as {stock -> OHLCV} for one bar
// position; this is the `stock_data: {stock→OHLCV}` shape EntryStrategy
// and ExitStrategy callbacks receive.
func (p *OHLCVPanel) Slice(stocks []StockCode, pos int) map[StockCode]OHLCV {
	out := make(map[StockCode]OHLCV, len(stocks))
	for _, s := range stocks {
		if bar, ok := p.BarAt(s, pos); ok {
			out[s] = bar
		}
	}
	return out
}

// SignalValue is a discrete trading signal: -1 sell, 0 hold, +1 buy.
type SignalValue int

const (
	SignalSellValue SignalValue = -1
	SignalHoldValue SignalValue = 0
	SignalBuyValue  SignalValue = 1
)

// SignalPanel holds discrete signal values per (date, stock).
type SignalPanel struct {
	Dates    *DateIndex
	columns  map[StockCode][]SignalValue
	colOrder []StockCode
}

// NewSignalPanel creates an empty SignalPanel over the given date index.
func NewSignalPanel(dates *DateIndex) *SignalPanel {
	return &SignalPanel{Dates: dates, columns: make(map[StockCode][]SignalValue)}
}

// SetColumn installs a stock's signal column.
func (p *SignalPanel) SetColumn(stock StockCode, values []SignalValue) error {
	if len(values) != p.Dates.Len() {
		return fmt.Errorf("panel: column %q has %d values, want %d", stock, len(values), p.Dates.Len())
	}
	if _, exists := p.columns[stock]; !exists {
		p.colOrder = append(p.colOrder, stock)
	}
	p.columns[stock] = values
	return nil
}

// Stocks returns the stock codes present.
func (p *SignalPanel) Stocks() []StockCode {
	out := make([]StockCode, len(p.colOrder))
	copy(out, p.colOrder)
	return out
}

// At returns the signal at (stock, pos).
func (p *SignalPanel) At(stock StockCode, pos int) (SignalValue, bool) {
	col, ok := p.columns[stock]
	if !ok || pos < 0 || pos >= len(col) {
		return 0, false
	}
	return col[pos], true
}

// ScorePanel holds real-valued scores per (date, stock); missing values
// are represented as NaN, never zero.
type ScorePanel struct {
	Dates    *DateIndex
	columns  map[StockCode][]float64
	colOrder []StockCode
}

// NewScorePanel creates an empty ScorePanel over the given date index.
func NewScorePanel(dates *DateIndex) *ScorePanel {
	return &ScorePanel{Dates: dates, columns: make(map[StockCode][]float64)}
}

// SetColumn installs a stock's score column.
func (p *ScorePanel) SetColumn(stock StockCode, values []float64) error {
	if len(values) != p.Dates.Len() {
		return fmt.Errorf("panel: column %q has %d values, want %d", stock, len(values), p.Dates.Len())
	}
	if _, exists := p.columns[stock]; !exists {
		p.colOrder = append(p.colOrder, stock)
	}
	p.columns[stock] = values
	return nil
}

// Stocks returns the stock codes present.
func (p *ScorePanel) Stocks() []StockCode {
	out := make([]StockCode, len(p.colOrder))
	copy(out, p.colOrder)
	return out
}

// At returns the score at (stock, pos); ok is false for missing (NaN) cells.
func (p *ScorePanel) At(stock StockCode, pos int) (float64, bool) {
	col, ok := p.columns[stock]
	if !ok || pos < 0 || pos >= len(col) {
		return 0, false
	}
	v := col[pos]
	return v, !math.IsNaN(v)
}

// Row returns the non-NaN cross-section at position pos.
func (p *ScorePanel) Row(pos int) map[StockCode]float64 {
	out := make(map[StockCode]float64)
	for _, s := range p.colOrder {
		if v, ok := p.At(s, pos); ok {
			out[s] = v
		}
	}
	return out
}

// TopN returns the n stocks with the largest score at position pos, NaN
// entries dropped, ties broken by stock code for determinism.
func (p *ScorePanel) TopN(pos int, n int) []StockCode {
	row := p.Row(pos)
	type kv struct {
		stock StockCode
		score float64
	}
	kvs := make([]kv, 0, len(row))
	for s, v := range row {
		kvs = append(kvs, kv{s, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].score != kvs[j].score {
			return kvs[i].score > kvs[j].score
		}
		return kvs[i].stock < kvs[j].stock
	})
	if n > len(kvs) {
		n = len(kvs)
	}
	out := make([]StockCode, n)
	for i := 0; i < n; i++ {
		out[i] = kvs[i].stock
	}
	return out
}

// BottomN returns the n stocks with the smallest score at position pos,
// used by the market-neutral backtest branch to pick short candidates.
func (p *ScorePanel) BottomN(pos int, n int) []StockCode {
	row := p.Row(pos)
	type kv struct {
		stock StockCode
		score float64
	}
	kvs := make([]kv, 0, len(row))
	for s, v := range row {
		kvs = append(kvs, kv{s, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].score != kvs[j].score {
			return kvs[i].score < kvs[j].score
		}
		return kvs[i].stock < kvs[j].stock
	})
	if n > len(kvs) {
		n = len(kvs)
	}
	out := make([]StockCode, n)
	for i := 0; i < n; i++ {
		out[i] = kvs[i].stock
	}
	return out
}
