// Package calendar resolves trading-date positions and rebalance schedules
// from an explicit date index. Nothing here consults wall-clock time: a
// backtest's notion of "today" is always an index into a supplied
// sequence of dates, never time.Now().
package calendar

import (
	"fmt"
	"time"

	"github.com/strategylab/core/pkg/models"
)

// Frequency names a rebalance cadence.
type Frequency string

const (
	Daily   Frequency = "D"
	Weekly  Frequency = "W"
	Monthly Frequency = "M"
)

// Calendar wraps a models.DateIndex with rebalance-schedule derivation.
type Calendar struct {
	Dates *models.DateIndex
}

// New builds a Calendar from a date index.
func New(dates *models.DateIndex) *Calendar {
	return &Calendar{Dates: dates}
}

// RebalanceDates returns the positions within the calendar's date index at
// which a rebalance should occur for the given frequency. Daily rebalances
// every position; Weekly rebalances on each date whose weekday is Monday;
// Monthly rebalances on the first trading day of each calendar month.
func (c *Calendar) RebalanceDates(freq Frequency) ([]int, error) {
	n := c.Dates.Len()
	if n == 0 {
		return nil, nil
	}
	switch freq {
	case Daily:
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	case Weekly:
		var out []int
		for i, d := range c.Dates.All() {
			if d.Weekday() == time.Monday {
				out = append(out, i)
			}
		}
		return out, nil
	case Monthly:
		return c.firstOfPeriod(func(t time.Time) (int, int) {
			y, m, _ := t.Date()
			return y, int(m)
		}), nil
	default:
		return nil, fmt.Errorf("calendar: unknown rebalance frequency %q", freq)
	}
}

// firstOfPeriod returns the index of the first date observed within each
// distinct (key1,key2) bucket, in ascending date order.
func (c *Calendar) firstOfPeriod(keyFn func(time.Time) (int, int)) []int {
	dates := c.Dates.All()
	var out []int
	var curA, curB int
	haveCur := false
	for i, d := range dates {
		a, b := keyFn(d)
		if !haveCur || a != curA || b != curB {
			out = append(out, i)
			curA, curB, haveCur = a, b, true
		}
	}
	return out
}

// NextTradingPosition returns the index immediately after pos, and whether
// it exists — the T+1 lookup used by the backtest engine's decision/fill
// rule (a decision made using data as of pos is filled at pos+1).
func (c *Calendar) NextTradingPosition(pos int) (int, bool) {
	if pos+1 >= c.Dates.Len() {
		return 0, false
	}
	return pos + 1, true
}

// Window returns the inclusive range of positions [start, end] clipped to
// the calendar's bounds, so a caller can carve windows without running
// past either edge.
func (c *Calendar) Window(start, end int) (int, int) {
	if start < 0 {
		start = 0
	}
	last := c.Dates.Len() - 1
	if end > last {
		end = last
	}
	return start, end
}
