package parallelbacktest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/strategylab/core/internal/backtest"
	"github.com/strategylab/core/internal/calendar"
	"github.com/strategylab/core/internal/costs"
	"github.com/strategylab/core/internal/strategy"
	"github.com/strategylab/core/pkg/models"
)

func mkDateIndex(n int) *models.DateIndex {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	var dates []time.Time
	for i := 0; i < n; i++ {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	return models.NewDateIndex(dates)
}

func mkPanel(dates *models.DateIndex, stocks map[models.StockCode][]float64) *models.OHLCVPanel {
	panel := models.NewOHLCVPanel(dates)
	for stock, closes := range stocks {
		bars := make([]models.OHLCV, len(closes))
		for i, c := range closes {
			bars[i] = models.OHLCV{Date: dates.At(i), Open: c, High: c, Low: c, Close: c, Volume: 10000}
		}
		panel.SetBars(stock, bars)
	}
	return panel
}

func baseConfig() backtest.Config {
	return backtest.Config{
		InitialCapital: 100000,
		Mode:           backtest.LongOnly,
		RebalanceFreq:  calendar.Daily,
		CostModel:      costs.DefaultModel(),
		Slippage:       costs.FixedSlippage{Pct: 0},
	}
}

func TestRunPreservesOrderAndProducesMetrics(t *testing.T) {
	dates := mkDateIndex(10)
	panel := mkPanel(dates, map[models.StockCode][]float64{
		"A": {10, 11, 12, 13, 14, 15, 16, 17, 18, 19},
		"B": {10, 10, 10, 10, 10, 10, 10, 10, 10, 10},
	})
	history := map[models.StockCode][]models.OHLCV{
		"A": panel.Bars("A"),
		"B": panel.Bars("B"),
	}
	universe := []models.StockCode{"A", "B"}

	variants := []Variant{
		{
			Label:  "momentum-2",
			Config: baseConfig(),
			Build: func() (*strategy.Composer, error) {
				return &strategy.Composer{
					Selector: strategy.NewMomentumSelector(2, 2, history),
					Entry:    strategy.NewImmediateEntry(0.5),
					Exit:     strategy.NewTimeBasedExit(10000, map[models.StockCode]int{}),
				}, nil
			},
		},
		{
			Label:  "momentum-1",
			Config: baseConfig(),
			Build: func() (*strategy.Composer, error) {
				return &strategy.Composer{
					Selector: strategy.NewMomentumSelector(1, 2, history),
					Entry:    strategy.NewImmediateEntry(0.5),
					Exit:     strategy.NewTimeBasedExit(10000, map[models.StockCode]int{}),
				}, nil
			},
		},
	}

	results, err := Run(context.Background(), universe, panel, variants, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Label != "momentum-2" || results[1].Label != "momentum-1" {
		t.Fatalf("Run() did not preserve input order: got [%s, %s]", results[0].Label, results[1].Label)
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("variant %s failed: %s", r.Label, r.Error)
		}
		if r.Metrics == nil {
			t.Fatalf("variant %s: missing metrics", r.Label)
		}
	}
}

func TestCompareSortsBySharpeDescendingAndFailuresLast(t *testing.T) {
	results := []VariantResult{
		{Label: "low", Success: true, Metrics: &backtest.Metrics{Sharpe: 0.2}},
		{Label: "broken", Success: false, Error: "boom"},
		{Label: "high", Success: true, Metrics: &backtest.Metrics{Sharpe: 1.5}},
	}
	report := Compare(results)
	if len(report.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(report.Rows))
	}
	if report.Rows[0].Label != "high" || report.Rows[1].Label != "low" {
		t.Fatalf("unexpected sharpe order: %v", report.Rows)
	}
	if report.Rows[2].Label != "broken" {
		t.Fatalf("failed variant should sort last, got %v", report.Rows)
	}
}

func TestComparisonReportCSVAndHTML(t *testing.T) {
	report := Compare([]VariantResult{
		{Label: "a", Success: true, Metrics: &backtest.Metrics{Sharpe: 1.1, TotalReturn: 0.1}},
	})
	csvOut, err := report.CSV()
	if err != nil {
		t.Fatalf("CSV() error: %v", err)
	}
	if !strings.Contains(string(csvOut), "a,") {
		t.Errorf("CSV output missing variant row: %s", csvOut)
	}

	html, err := report.HTML()
	if err != nil {
		t.Fatalf("HTML() error: %v", err)
	}
	if !strings.Contains(html, "<table") || !strings.Contains(html, "a</td>") {
		t.Errorf("HTML output missing table row: %s", html)
	}
}
