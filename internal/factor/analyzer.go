package factor

import (
	"context"
	"fmt"

	"github.com/strategylab/core/internal/executor"
	"github.com/strategylab/core/pkg/models"
)

// AnalysisRequest names one factor's score panel to analyze against a
// shared forward-return panel.
type AnalysisRequest struct {
	Name   string
	Scores *models.ScorePanel
}

// Config parameterizes a batch factor analysis run.
type Config struct {
	Horizon         int
	MinSamples      int
	NumLayers       int
	Workers         int
	CorrelationOn   bool
	CorrelationMode CorrelationMode
	CombineMethod   models.CombinationMethod
	// LongShort appends a synthetic top-minus-bottom spread layer to every
	// layering result.
	LongShort bool
}

// Analyzer runs IC/layering/correlation/combination analysis across one or
// more factors, fanning the independent per-factor work out through
// internal/executor.
type Analyzer struct {
	Prices *models.PricePanel
	Config Config
}

// New builds an Analyzer over a price panel (forward returns are derived
// from it at the configured horizon).
func New(prices *models.PricePanel, cfg Config) *Analyzer {
	return &Analyzer{Prices: prices, Config: cfg}
}

// AnalyzeOne runs a single factor's IC series through ParallelSeriesIC
// (date-chunk parallel once the date axis is large enough) and returns its
// summary plus overall score — the entry point for ad hoc, non-batch
// factor vetting where BatchAnalyze's per-factor fan-out would have
// nothing else to overlap with.
func (a *Analyzer) AnalyzeOne(ctx context.Context, req AnalysisRequest) (models.ICSummary, models.LayerResult, float64, error) {
	forwardReturns := a.Prices.PctChange(a.Config.Horizon)
	series, err := ParallelSeriesIC(ctx, req.Name, req.Scores, forwardReturns, a.Config.Horizon, a.Config.MinSamples, a.Config.Workers)
	if err != nil {
		return models.ICSummary{}, models.LayerResult{}, 0, fmt.Errorf("factor: analyze %s: %w", req.Name, err)
	}
	summary := Summarize(req.Name, series)
	layering := Layer(req.Name, req.Scores, forwardReturns, a.Config.NumLayers, a.Config.LongShort)
	return summary, layering, OverallScore(summary, layering), nil
}

// BatchAnalyze runs IC and layering analysis for every requested factor in
// parallel (via internal/executor.Map), then computes an optional
// correlation matrix and factor combination report from the results.
func (a *Analyzer) BatchAnalyze(ctx context.Context, requests []AnalysisRequest) (models.FactorAnalysisReport, error) {
	forwardReturns := a.Prices.PctChange(a.Config.Horizon)

	tasks := make([]executor.Task, len(requests))
	for i, req := range requests {
		req := req
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			// Nested parallelism is disabled here: BatchAnalyze already fans
			// per-factor work out across workers, so each worker computes
			// its factor's IC series serially (ParallelSeriesIC is for the
			// single-factor, non-batch entry point only).
			series := SeriesIC(req.Name, req.Scores, forwardReturns, a.Config.Horizon, a.Config.MinSamples)
			summary := Summarize(req.Name, series)
			layering := Layer(req.Name, req.Scores, forwardReturns, a.Config.NumLayers, a.Config.LongShort)
			return struct {
				Summary  models.ICSummary
				Layering models.LayerResult
			}{summary, layering}, nil
		}
	}

	results, err := executor.Map(ctx, tasks, executor.Options{Workers: a.Config.Workers})
	if err != nil {
		return models.FactorAnalysisReport{}, fmt.Errorf("factor: batch analyze: %w", err)
	}

	report := models.FactorAnalysisReport{
		Horizon:        a.Config.Horizon,
		ICSummaries:    make(map[string]models.ICSummary, len(requests)),
		Layering:       make(map[string]models.LayerResult, len(requests)),
		OverallScore:   make(map[string]float64, len(requests)),
		Recommendation: make(map[string]string, len(requests)),
	}
	for i, req := range requests {
		v := results[i].Value.(struct {
			Summary  models.ICSummary
			Layering models.LayerResult
		})
		report.ICSummaries[req.Name] = v.Summary
		report.Layering[req.Name] = v.Layering
		score := OverallScore(v.Summary, v.Layering)
		report.OverallScore[req.Name] = score
		report.Recommendation[req.Name] = Recommend(score)
	}

	panels := make(map[string]*models.ScorePanel, len(requests))
	for _, req := range requests {
		panels[req.Name] = req.Scores
	}

	if a.Config.CorrelationOn && len(requests) > 1 {
		corr := Correlation(panels, a.Config.CorrelationMode)
		report.Correlation = &corr
	}

	if a.Config.CombineMethod != "" && len(requests) > 1 {
		_, optResult, err := Combine(panels, report.ICSummaries, a.Config.CombineMethod)
		if err != nil {
			return report, fmt.Errorf("factor: combination: %w", err)
		}
		report.Combination = &optResult
	}

	return report, nil
}
