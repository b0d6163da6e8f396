// Package factor computes Information Coefficient, layering (quantile
// spread), correlation, and combination statistics over a ScorePanel
// against forward returns.
package factor

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/strategylab/core/internal/executor"
	"github.com/strategylab/core/pkg/models"
)

// DailyIC computes the Pearson IC and rank (Spearman) IC between a score
// panel and a forward-return panel at one date position, over the stocks
// present in both.
func DailyIC(scores *models.ScorePanel, forwardReturns *models.PricePanel, pos int) (pearson, spearman float64, n int) {
	scoreRow := scores.Row(pos)
	stocks := make([]models.StockCode, 0, len(scoreRow))
	for stock := range scoreRow {
		stocks = append(stocks, stock)
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i] < stocks[j] })
	var sv, rv []float64
	for _, stock := range stocks {
		s := scoreRow[stock]
		if r, ok := forwardReturns.At(stock, pos); ok {
			sv = append(sv, s)
			rv = append(rv, r)
		}
	}
	n = len(sv)
	if n < 2 {
		return 0, 0, n
	}
	pearson = pearsonCorr(sv, rv)
	spearman = pearsonCorr(rankOf(sv), rankOf(rv))
	return pearson, spearman, n
}

// SeriesIC computes the per-date IC series for a factor across its whole
// date range, returning one ICResult per date that has enough samples.
func SeriesIC(factorName string, scores *models.ScorePanel, forwardReturns *models.PricePanel, horizon, minSamples int) []models.ICResult {
	var out []models.ICResult
	n := scores.Dates.Len()
	for pos := 0; pos < n; pos++ {
		pearson, spearman, count := DailyIC(scores, forwardReturns, pos)
		if count < minSamples {
			continue
		}
		out = append(out, models.ICResult{
			FactorName: factorName,
			Date:       scores.Dates.At(pos),
			Horizon:    horizon,
			IC:         pearson,
			RankIC:     spearman,
			SampleSize: count,
		})
	}
	return out
}

// parallelICThreshold is the date-count floor above which SeriesIC's
// cross-sectional loop is split across executor workers by date-chunk,
// per the per-date independence that makes IC computation embarrassingly
// parallel.
const parallelICThreshold = 100

// ParallelSeriesIC computes the same result as SeriesIC but, when the date
// axis has at least parallelICThreshold entries, splits the date range into
// chunks and runs them concurrently through internal/executor, recombining
// in date order so the chunked series equals the serial one element-wise.
func ParallelSeriesIC(ctx context.Context, factorName string, scores *models.ScorePanel, forwardReturns *models.PricePanel, horizon, minSamples, workers int) ([]models.ICResult, error) {
	n := scores.Dates.Len()
	if n < parallelICThreshold {
		return SeriesIC(factorName, scores, forwardReturns, horizon, minSamples), nil
	}

	chunks, err := executor.Partition(n, executor.Auto, 0, executor.Workers(workers))
	if err != nil {
		return nil, err
	}
	tasks := make([]executor.Task, len(chunks))
	for i, c := range chunks {
		c := c
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			var out []models.ICResult
			for pos := c.Start; pos < c.End; pos++ {
				pearson, spearman, count := DailyIC(scores, forwardReturns, pos)
				if count < minSamples {
					continue
				}
				out = append(out, models.ICResult{
					FactorName: factorName,
					Date:       scores.Dates.At(pos),
					Horizon:    horizon,
					IC:         pearson,
					RankIC:     spearman,
					SampleSize: count,
				})
			}
			return out, nil
		}
	}

	results, err := executor.Map(ctx, tasks, executor.Options{Workers: workers})
	if err != nil {
		return nil, err
	}
	var merged []models.ICResult
	for _, r := range results {
		if r.Value == nil {
			continue
		}
		merged = append(merged, r.Value.([]models.ICResult)...)
	}
	return merged, nil
}

// Summarize aggregates an IC series into the headline ICSummary stats:
// mean, std, IC-IR (mean/std), share of positive readings, and a
// Student's-t test of the series mean against zero.
func Summarize(factorName string, series []models.ICResult) models.ICSummary {
	if len(series) == 0 {
		return models.ICSummary{FactorName: factorName}
	}
	ics := make([]float64, len(series))
	positive := 0
	for i, r := range series {
		ics[i] = r.IC
		if r.IC > 0 {
			positive++
		}
	}
	m := mean(ics)
	s := stddev(ics)
	var icir float64
	if s > 0 {
		icir = m / s
	}
	tStat, pValue := tTest(m, s, len(ics))
	return models.ICSummary{
		FactorName:  factorName,
		MeanIC:      m,
		StdIC:       s,
		ICIR:        icir,
		PositiveIC:  float64(positive) / float64(len(series)),
		TStat:       tStat,
		PValue:      pValue,
		SampleCount: len(series),
	}
}

// tTest computes a one-sample two-sided Student's-t statistic and p-value
// for a series mean m with sample standard deviation s over n samples,
// testing against the null hypothesis mu=0.
func tTest(m, s float64, n int) (tStat, pValue float64) {
	if n < 2 || s == 0 {
		return 0, 1
	}
	se := s / math.Sqrt(float64(n))
	tStat = m / se
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	tail := t.CDF(-math.Abs(tStat))
	pValue = 2 * tail
	return tStat, pValue
}

func pearsonCorr(a, b []float64) float64 {
	n := len(a)
	if n < 2 {
		return 0
	}
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

func rankOf(xs []float64) []float64 {
	type kv struct {
		idx int
		val float64
	}
	kvs := make([]kv, len(xs))
	for i, v := range xs {
		kvs[i] = kv{i, v}
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].val < kvs[j].val })
	ranks := make([]float64, len(xs))
	i := 0
	for i < len(kvs) {
		j := i
		for j+1 < len(kvs) && kvs[j+1].val == kvs[i].val {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[kvs[k].idx] = avgRank
		}
		i = j + 1
	}
	return ranks
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
