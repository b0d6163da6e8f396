package factor

import (
	"math"
	"sort"

	"github.com/strategylab/core/pkg/models"
)

// Combine blends multiple factor score panels into one composite
// ScorePanel using the given method and each factor's IC summary (needed
// by the IC/IR-weighted and max-ICIR methods).
func Combine(panels map[string]*models.ScorePanel, summaries map[string]models.ICSummary, method models.CombinationMethod) (*models.ScorePanel, models.OptimizationResult, error) {
	names := sortedNames(panels)
	weights, result, err := weightsFor(names, summaries, method)
	if err != nil {
		return nil, result, err
	}

	first := panels[names[0]]
	out := models.NewScorePanel(first.Dates)
	for _, stock := range first.Stocks() {
		n := first.Dates.Len()
		combined := make([]float64, n)
		for pos := 0; pos < n; pos++ {
			var sum, weightSum float64
			for _, name := range names {
				if v, ok := panels[name].At(stock, pos); ok {
					w := weights[name]
					sum += w * v
					weightSum += w
				}
			}
			if weightSum > 0 {
				combined[pos] = sum / weightSum
			} else {
				combined[pos] = math.NaN()
			}
		}
		out.SetColumn(stock, combined)
	}
	return out, result, nil
}

func sortedNames(panels map[string]*models.ScorePanel) []string {
	names := make([]string, 0, len(panels))
	for n := range panels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func weightsFor(names []string, summaries map[string]models.ICSummary, method models.CombinationMethod) (map[string]float64, models.OptimizationResult, error) {
	weights := make(map[string]float64, len(names))
	switch method {
	case models.CombineEqual:
		for _, n := range names {
			weights[n] = 1.0
		}
		return weights, models.OptimizationResult{Method: method, Weights: weights, Converged: true}, nil

	case models.CombineICWeight:
		for _, n := range names {
			weights[n] = math.Abs(summaries[n].MeanIC)
		}
		return normalize(weights, method), models.OptimizationResult{Method: method, Weights: normalize(weights, method), Converged: true}, nil

	case models.CombineIRWeight:
		// spec: weight only the subset with positive IR by their raw IR
		// value; degrade to equal weight if no factor has positive IR.
		anyPositive := false
		for _, n := range names {
			if summaries[n].ICIR > 0 {
				weights[n] = summaries[n].ICIR
				anyPositive = true
			} else {
				weights[n] = 0
			}
		}
		if !anyPositive {
			for _, n := range names {
				weights[n] = 1.0
			}
		}
		return normalize(weights, method), models.OptimizationResult{Method: method, Weights: normalize(weights, method), Converged: true}, nil

	case models.CombineMaxICIR:
		return maxICIRWeights(names, summaries)

	default:
		for _, n := range names {
			weights[n] = 1.0
		}
		return weights, models.OptimizationResult{Method: models.CombineEqual, Weights: weights, Converged: true}, nil
	}
}

func normalize(weights map[string]float64, method models.CombinationMethod) map[string]float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		for k := range weights {
			weights[k] = 1.0 / float64(len(weights))
		}
		return weights
	}
	out := make(map[string]float64, len(weights))
	for k, w := range weights {
		out[k] = w / total
	}
	return out
}

// maxICIRWeights solves for the weight vector maximizing the combined
// factor's ICIR, approximated (since we don't have the full covariance of
// factor ICs, only their marginal mean/std) by a simplex-projected
// gradient ascent starting from equal weights. No
// constrained-optimization library appears anywhere in the example pack,
// so this from-scratch projected-gradient loop is used rather than
// fabricating a dependency.
func maxICIRWeights(names []string, summaries map[string]models.ICSummary) (map[string]float64, models.OptimizationResult, error) {
	n := len(names)
	if n == 0 {
		return map[string]float64{}, models.OptimizationResult{Method: models.CombineMaxICIR}, nil
	}
	icir := make([]float64, n)
	for i, name := range names {
		icir[i] = summaries[name].ICIR
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}

	const lr = 0.05
	const iters = 200
	converged := false
	var lastObj float64
	for it := 0; it < iters; it++ {
		obj := dot(w, icir)
		for i := range w {
			w[i] += lr * icir[i]
		}
		w = projectSimplex(w)
		if it > 0 && math.Abs(obj-lastObj) < 1e-9 {
			converged = true
			lastObj = obj
			break
		}
		lastObj = obj
	}

	weights := make(map[string]float64, n)
	for i, name := range names {
		weights[name] = w[i]
	}
	return weights, models.OptimizationResult{
		Method:      models.CombineMaxICIR,
		Weights:     weights,
		ObjectiveIC: lastObj,
		Iterations:  iters,
		Converged:   converged,
	}, nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// projectSimplex projects a vector onto the probability simplex (weights
// sum to 1, all non-negative), using the standard sort-and-threshold
// algorithm.
func projectSimplex(v []float64) []float64 {
	n := len(v)
	sorted := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	cumsum := 0.0
	rho := -1
	var theta float64
	for i := 0; i < n; i++ {
		cumsum += sorted[i]
		t := (cumsum - 1) / float64(i+1)
		if sorted[i]-t > 0 {
			rho = i
			theta = t
		}
	}
	if rho == -1 {
		theta = (cumsum - 1) / float64(n)
	}

	out := make([]float64, n)
	for i, x := range v {
		out[i] = math.Max(x-theta, 0)
	}
	return out
}
