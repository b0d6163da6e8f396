package factor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/strategylab/core/pkg/models"
)

func mkDates(n int) *models.DateIndex {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	var ts []time.Time
	for i := 0; i < n; i++ {
		ts = append(ts, start.AddDate(0, 0, i))
	}
	return models.NewDateIndex(ts)
}

func TestSeriesICPerfectPositiveCorrelation(t *testing.T) {
	dates := mkDates(10)
	scores := models.NewScorePanel(dates)
	prices := models.NewPricePanel(dates)

	stocks := []models.StockCode{"A", "B", "C", "D"}
	base := map[models.StockCode]float64{"A": 1, "B": 2, "C": 3, "D": 4}
	for _, s := range stocks {
		scoreCol := make([]float64, 10)
		priceCol := make([]float64, 10)
		for i := 0; i < 10; i++ {
			scoreCol[i] = base[s]
			priceCol[i] = 100 * math.Pow(1+0.01*base[s], float64(i))
		}
		scores.SetColumn(s, scoreCol)
		prices.SetColumn(s, priceCol)
	}

	fwd := prices.PctChange(1)
	series := SeriesIC("momentum", scores, fwd, 1, 3)
	if len(series) == 0 {
		t.Fatal("expected IC series with at least one reading")
	}
	for _, r := range series {
		if r.IC < 0.9 {
			t.Fatalf("expected near-perfect positive IC, got %v at %v", r.IC, r.Date)
		}
	}
}

func TestSummarizeICIR(t *testing.T) {
	series := []models.ICResult{{IC: 0.1}, {IC: 0.2}, {IC: 0.15}, {IC: -0.05}}
	summary := Summarize("f", series)
	if summary.SampleCount != 4 {
		t.Fatalf("sample count = %d, want 4", summary.SampleCount)
	}
	if summary.MeanIC <= 0 {
		t.Fatalf("expected positive mean IC, got %v", summary.MeanIC)
	}
}

func TestLayerMonotonicSpread(t *testing.T) {
	dates := mkDates(5)
	scores := models.NewScorePanel(dates)
	prices := models.NewPricePanel(dates)
	stocks := []models.StockCode{"A", "B", "C", "D"}
	rank := map[models.StockCode]float64{"A": 1, "B": 2, "C": 3, "D": 4}
	for _, s := range stocks {
		scoreCol := make([]float64, 5)
		priceCol := make([]float64, 5)
		for i := 0; i < 5; i++ {
			scoreCol[i] = rank[s]
			priceCol[i] = 100 * math.Pow(1+0.01*rank[s], float64(i))
		}
		scores.SetColumn(s, scoreCol)
		prices.SetColumn(s, priceCol)
	}
	fwd := prices.PctChange(1)
	result := Layer("momentum", scores, fwd, 2, true)
	if len(result.Layers) != 3 {
		t.Fatalf("expected 2 layers plus 1 synthetic long-short layer, got %d", len(result.Layers))
	}
	if result.Layers[1].MeanReturn <= result.Layers[0].MeanReturn {
		t.Fatalf("expected top layer to outperform bottom layer: %+v", result.Layers)
	}
	if !result.Layers[2].Synthetic {
		t.Fatalf("expected trailing layer to be the synthetic long-short spread: %+v", result.Layers[2])
	}
	if result.Monotonicity <= 0 {
		t.Fatalf("expected positive monotonicity for a strictly increasing layer spread, got %v", result.Monotonicity)
	}
}

func TestCombineEqualWeightsAverages(t *testing.T) {
	dates := mkDates(3)
	a := models.NewScorePanel(dates)
	b := models.NewScorePanel(dates)
	a.SetColumn("X", []float64{1, 2, 3})
	b.SetColumn("X", []float64{3, 2, 1})

	panels := map[string]*models.ScorePanel{"a": a, "b": b}
	combined, result, err := Combine(panels, map[string]models.ICSummary{}, models.CombineEqual)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := combined.At("X", 0)
	if !ok || v != 2 {
		t.Fatalf("combined score at pos 0 = %v, want 2", v)
	}
	if !result.Converged {
		t.Fatal("equal-weight combination should report converged")
	}
}

func TestMaxICIRWeightsSumToOne(t *testing.T) {
	names := []string{"a", "b", "c"}
	summaries := map[string]models.ICSummary{
		"a": {ICIR: 1.5}, "b": {ICIR: 0.5}, "c": {ICIR: -0.2},
	}
	weights, result, err := maxICIRWeights(names, summaries)
	if err != nil {
		t.Fatal(err)
	}
	total := 0.0
	for _, w := range weights {
		if w < 0 {
			t.Fatalf("weight went negative: %v", weights)
		}
		total += w
	}
	if math.Abs(total-1) > 1e-6 {
		t.Fatalf("weights sum to %v, want 1", total)
	}
	if result.Method != models.CombineMaxICIR {
		t.Fatalf("unexpected method: %v", result.Method)
	}
}

func TestBatchAnalyzeProducesReportForEachFactor(t *testing.T) {
	dates := mkDates(10)
	prices := models.NewPricePanel(dates)
	stocks := []models.StockCode{"A", "B", "C"}
	for i, s := range stocks {
		col := make([]float64, 10)
		for d := 0; d < 10; d++ {
			col[d] = 100 * math.Pow(1.01, float64(d*(i+1)))
		}
		prices.SetColumn(s, col)
	}

	scores1 := models.NewScorePanel(dates)
	scores2 := models.NewScorePanel(dates)
	for i, s := range stocks {
		col := make([]float64, 10)
		for d := range col {
			col[d] = float64(i + 1)
		}
		scores1.SetColumn(s, col)
		scores2.SetColumn(s, col)
	}

	a := New(prices, Config{Horizon: 1, MinSamples: 2, NumLayers: 2, Workers: 2, CorrelationOn: true, CombineMethod: models.CombineEqual})
	report, err := a.BatchAnalyze(context.Background(), []AnalysisRequest{
		{Name: "f1", Scores: scores1},
		{Name: "f2", Scores: scores2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.ICSummaries) != 2 {
		t.Fatalf("expected 2 IC summaries, got %d", len(report.ICSummaries))
	}
	if report.Correlation == nil {
		t.Fatal("expected correlation matrix to be computed")
	}
	if report.Combination == nil {
		t.Fatal("expected combination result")
	}
}

func TestParallelSeriesICMatchesSerial(t *testing.T) {
	n := 150 // above the date-chunk parallelism threshold
	dates := mkDates(n)
	scores := models.NewScorePanel(dates)
	prices := models.NewPricePanel(dates)

	stocks := []models.StockCode{"A", "B", "C", "D", "E"}
	for i, s := range stocks {
		scoreCol := make([]float64, n)
		priceCol := make([]float64, n)
		price := 100.0
		for d := 0; d < n; d++ {
			scoreCol[d] = float64((d*7+i*3)%11) - 5
			price *= 1 + 0.001*float64((d+i)%5-2)
			priceCol[d] = price
		}
		scores.SetColumn(s, scoreCol)
		prices.SetColumn(s, priceCol)
	}

	fwd := prices.PctChange(1)
	serial := SeriesIC("f", scores, fwd, 1, 3)
	parallel, err := ParallelSeriesIC(context.Background(), "f", scores, fwd, 1, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(serial) != len(parallel) {
		t.Fatalf("length mismatch: serial=%d parallel=%d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i].IC != parallel[i].IC || serial[i].RankIC != parallel[i].RankIC || !serial[i].Date.Equal(parallel[i].Date) {
			t.Fatalf("mismatch at %d: serial=%+v parallel=%+v", i, serial[i], parallel[i])
		}
	}
}
