package calendar

import (
	"testing"
	"time"

	"github.com/strategylab/core/pkg/models"
)

func mkDates(days []string) *models.DateIndex {
	var ts []time.Time
	for _, d := range days {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			panic(err)
		}
		ts = append(ts, t)
	}
	return models.NewDateIndex(ts)
}

func TestRebalanceDates(t *testing.T) {
	dates := mkDates([]string{
		"2026-01-05", "2026-01-06", "2026-01-07", // week 1
		"2026-01-12", "2026-01-13", // week 2
		"2026-02-02", "2026-02-03", // Feb, week 1 of Feb
	})
	cal := New(dates)

	t.Run("daily", func(t *testing.T) {
		got, err := cal.RebalanceDates(Daily)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != dates.Len() {
			t.Fatalf("expected %d daily rebalance points, got %d", dates.Len(), len(got))
		}
	})

	t.Run("weekly rebalances on Mondays", func(t *testing.T) {
		got, err := cal.RebalanceDates(Weekly)
		if err != nil {
			t.Fatal(err)
		}
		want := []int{0, 3, 5}
		if !equalInts(got, want) {
			t.Fatalf("weekly rebalance positions = %v, want %v", got, want)
		}
		for _, pos := range got {
			if dates.At(pos).Weekday() != time.Monday {
				t.Fatalf("position %d (%v) is not a Monday", pos, dates.At(pos))
			}
		}
	})

	t.Run("monthly rebalances on first trading day of month", func(t *testing.T) {
		got, err := cal.RebalanceDates(Monthly)
		if err != nil {
			t.Fatal(err)
		}
		want := []int{0, 5}
		if !equalInts(got, want) {
			t.Fatalf("monthly rebalance positions = %v, want %v", got, want)
		}
	})

	t.Run("unknown frequency errors", func(t *testing.T) {
		if _, err := cal.RebalanceDates("Q"); err == nil {
			t.Fatal("expected error for unknown frequency")
		}
	})
}

func TestNextTradingPosition(t *testing.T) {
	dates := mkDates([]string{"2026-01-05", "2026-01-06"})
	cal := New(dates)

	next, ok := cal.NextTradingPosition(0)
	if !ok || next != 1 {
		t.Fatalf("NextTradingPosition(0) = %d, %v; want 1, true", next, ok)
	}
	if _, ok := cal.NextTradingPosition(1); ok {
		t.Fatal("expected no next position at the last index")
	}
}

func TestWindowClipsToBounds(t *testing.T) {
	dates := mkDates([]string{"2026-01-05", "2026-01-06", "2026-01-07"})
	cal := New(dates)

	if s, e := cal.Window(-5, 100); s != 0 || e != 2 {
		t.Fatalf("Window(-5, 100) = %d, %d; want 0, 2", s, e)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
