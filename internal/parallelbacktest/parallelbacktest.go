// Package parallelbacktest runs many strategy variants against one
// shared market dataset concurrently through internal/executor and
// produces a sharpe-sorted comparison report. Dispatch goes through
// internal/executor rather than a raw errgroup so it shares the same
// worker-count/ignore-errors
// semantics as the factor analyzer's batch mode.
package parallelbacktest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/strategylab/core/internal/backtest"
	"github.com/strategylab/core/internal/executor"
	"github.com/strategylab/core/internal/strategy"
	"github.com/strategylab/core/pkg/models"
)

// Variant names one strategy configuration to backtest. Build constructs
// a fresh Composer for this variant; it is invoked once per task rather
// than sharing one Composer instance across goroutines, so no strategy
// state is ever shared between concurrently running backtests.
type Variant struct {
	Label  string
	Config backtest.Config
	Build  func() (*strategy.Composer, error)
}

// VariantResult is one variant's outcome: either a full Result+Metrics
// pair or an error, plus how long the run took.
type VariantResult struct {
	Label         string            `json:"label"`
	Success       bool              `json:"success"`
	Result        *backtest.Result  `json:"result,omitempty"`
	Metrics       *backtest.Metrics `json:"metrics,omitempty"`
	Error         string            `json:"error,omitempty"`
	ExecutionTime time.Duration     `json:"execution_time_ns"`
}

// Options configures a Run call.
type Options struct {
	Workers      int
	IgnoreErrors bool
	RiskFreeRate float64
}

// Run backtests every variant against the shared universe/prices panel,
// dispatched through internal/executor.Map so output order matches input
// order regardless of completion order, and returns one VariantResult per
// variant.
func Run(ctx context.Context, universe []models.StockCode, prices *models.OHLCVPanel, variants []Variant, opts Options) ([]VariantResult, error) {
	tasks := make([]executor.Task, len(variants))
	for i, v := range variants {
		v := v
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			start := time.Now()
			composer, err := v.Build()
			if err != nil {
				return VariantResult{Label: v.Label, Success: false, Error: err.Error(), ExecutionTime: time.Since(start)}, nil
			}
			eng := backtest.New(v.Config, universe, prices, composer)
			res, err := eng.Run(ctx)
			elapsed := time.Since(start)
			if err != nil {
				return VariantResult{Label: v.Label, Success: false, Error: err.Error(), ExecutionTime: elapsed}, nil
			}
			metrics := backtest.ComputeMetrics(res, opts.RiskFreeRate)
			return VariantResult{Label: v.Label, Success: true, Result: res, Metrics: &metrics, ExecutionTime: elapsed}, nil
		}
	}

	results, err := executor.Map(ctx, tasks, executor.Options{Workers: opts.Workers, IgnoreErrors: opts.IgnoreErrors})
	if err != nil {
		return nil, fmt.Errorf("parallelbacktest: %w", err)
	}

	out := make([]VariantResult, len(results))
	for i, r := range results {
		if r.Err != nil {
			out[i] = VariantResult{Label: variants[i].Label, Success: false, Error: r.Err.Error()}
			continue
		}
		out[i] = r.Value.(VariantResult)
	}
	return out, nil
}

// Row is one line of a comparison report: a variant's label plus the
// handful of headline metrics the report table surfaces.
type Row struct {
	Label       string
	Success     bool
	Error       string
	TotalReturn float64
	CAGR        float64
	Sharpe      float64
	MaxDrawdown float64
	WinRate     float64
	TradeCount  int
}

// ComparisonReport is a sharpe-sorted table of variant results.
type ComparisonReport struct {
	Rows []Row
}

// Compare builds a ComparisonReport from Run's output, sorted by Sharpe
// ratio descending (failed variants sort last, in their original order).
func Compare(results []VariantResult) ComparisonReport {
	rows := make([]Row, len(results))
	for i, r := range results {
		row := Row{Label: r.Label, Success: r.Success, Error: r.Error}
		if r.Success && r.Metrics != nil {
			row.TotalReturn = r.Metrics.TotalReturn
			row.CAGR = r.Metrics.CAGR
			row.Sharpe = r.Metrics.Sharpe
			row.MaxDrawdown = r.Metrics.MaxDrawdown
			row.WinRate = r.Metrics.WinRate
			row.TradeCount = r.Metrics.TradeCount
		}
		rows[i] = row
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Success != rows[j].Success {
			return rows[i].Success
		}
		return rows[i].Sharpe > rows[j].Sharpe
	})
	return ComparisonReport{Rows: rows}
}
