package factor

import (
	"math"
	"sort"

	"github.com/strategylab/core/pkg/models"
)

// Layer computes a quantile layering (spread) test for one factor: at each
// date, stocks are bucketed into numLayers quantile groups by score, and
// each group's forward return is averaged. The top-minus-bottom spread
// measures how monotonically the factor separates future returns. When
// longShort is true, a synthetic trailing layer holding the per-date
// top-minus-bottom spread return is appended with its own mean, std,
// sharpe, win-rate and period-count stats.
func Layer(factorName string, scores *models.ScorePanel, forwardReturns *models.PricePanel, numLayers int, longShort bool) models.LayerResult {
	n := scores.Dates.Len()
	layerReturns := make([][]float64, numLayers)
	var spreadSeries []float64

	for pos := 0; pos < n; pos++ {
		row := scores.Row(pos)
		type kv struct {
			stock models.StockCode
			score float64
		}
		var kvs []kv
		for s, v := range row {
			if _, ok := forwardReturns.At(s, pos); ok {
				kvs = append(kvs, kv{s, v})
			}
		}
		if len(kvs) < numLayers {
			continue
		}
		sort.Slice(kvs, func(i, j int) bool {
			if kvs[i].score != kvs[j].score {
				return kvs[i].score < kvs[j].score
			}
			return kvs[i].stock < kvs[j].stock
		})

		groupSize := len(kvs) / numLayers
		dateLayerReturn := make([]float64, numLayers)
		dateLayerOK := make([]bool, numLayers)
		for layer := 0; layer < numLayers; layer++ {
			start := layer * groupSize
			end := start + groupSize
			if layer == numLayers-1 {
				end = len(kvs)
			}
			sum, count := 0.0, 0
			for i := start; i < end; i++ {
				if r, ok := forwardReturns.At(kvs[i].stock, pos); ok {
					sum += r
					count++
				}
			}
			if count > 0 {
				avg := sum / float64(count)
				layerReturns[layer] = append(layerReturns[layer], avg)
				dateLayerReturn[layer] = avg
				dateLayerOK[layer] = true
			}
		}
		if numLayers >= 2 && dateLayerOK[numLayers-1] && dateLayerOK[0] {
			spreadSeries = append(spreadSeries, dateLayerReturn[numLayers-1]-dateLayerReturn[0])
		}
	}

	stats := make([]models.LayerStat, numLayers)
	for i, rets := range layerReturns {
		stats[i] = models.LayerStat{
			Layer:      i + 1,
			MeanReturn: mean(rets),
			StdReturn:  stddev(rets),
			CumReturn:  cumulative(rets),
			Sharpe:     sharpeOf(rets),
			WinRate:    winRate(rets),
			Periods:    len(rets),
			StockCount: len(rets),
		}
	}

	var spreadReturn, spreadSharpe float64
	if numLayers >= 2 {
		top, bottom := stats[numLayers-1], stats[0]
		spreadReturn = top.CumReturn - bottom.CumReturn
		spreadSharpe = top.Sharpe - bottom.Sharpe
	}

	if longShort && numLayers >= 2 {
		stats = append(stats, models.LayerStat{
			Layer:      numLayers + 1,
			MeanReturn: mean(spreadSeries),
			StdReturn:  stddev(spreadSeries),
			CumReturn:  cumulative(spreadSeries),
			Sharpe:     sharpeOf(spreadSeries),
			WinRate:    winRate(spreadSeries),
			Periods:    len(spreadSeries),
			Synthetic:  true,
		})
	}

	return models.LayerResult{
		FactorName:   factorName,
		NumLayers:    numLayers,
		Layers:       stats,
		SpreadReturn: spreadReturn,
		SpreadSharpe: spreadSharpe,
		Monotonicity: monotonicity(stats[:numLayers]),
	}
}

func winRate(rets []float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	wins := 0
	for _, r := range rets {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(rets))
}

func cumulative(rets []float64) float64 {
	total := 1.0
	for _, r := range rets {
		total *= 1 + r
	}
	return total - 1
}

func sharpeOf(rets []float64) float64 {
	s := stddev(rets)
	if s == 0 {
		return 0
	}
	return mean(rets) / s * math.Sqrt(252)
}

// monotonicity returns the Spearman rank correlation between layer index
// (1..N) and each layer's mean return. +1 means strictly increasing
// across layers, -1 strictly decreasing, 0 for fewer than two layers.
func monotonicity(stats []models.LayerStat) float64 {
	if len(stats) < 2 {
		return 0
	}
	ranks := make([]float64, len(stats))
	means := make([]float64, len(stats))
	for i, s := range stats {
		ranks[i] = float64(i + 1)
		means[i] = s.MeanReturn
	}
	return pearsonCorr(ranks, rankOf(means))
}
