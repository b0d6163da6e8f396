package factor

import "github.com/strategylab/core/pkg/models"

// CorrelationMode selects how multi-date score panels are flattened into
// one vector per factor before computing pairwise correlation.
type CorrelationMode string

const (
	// Concat stacks every (date, stock) observation into one long vector
	// per factor — the default, uses all available data.
	Concat CorrelationMode = "concat"
	// MeanByDate first averages each factor's cross-section per date, then
	// correlates the resulting per-date mean series — suited to comparing
	// factors whose cross-sectional dispersion isn't meaningful to mix.
	MeanByDate CorrelationMode = "mean"
)

// Correlation computes the pairwise correlation matrix across named score
// panels, aligned by (date, stock) observation per Concat mode or by date
// per MeanByDate mode.
func Correlation(panels map[string]*models.ScorePanel, mode CorrelationMode) models.CorrelationMatrix {
	names := make([]string, 0, len(panels))
	for name := range panels {
		names = append(names, name)
	}
	sortStrings(names)

	vectors := make(map[string][]float64, len(names))
	switch mode {
	case MeanByDate:
		for _, name := range names {
			vectors[name] = meanByDateVector(panels[name])
		}
	default:
		stockOrder, dateLen := alignedKeys(panels, names)
		for _, name := range names {
			vectors[name] = concatVector(panels[name], stockOrder, dateLen)
		}
	}

	matrix := make([][]float64, len(names))
	for i := range matrix {
		matrix[i] = make([]float64, len(names))
	}
	for i, a := range names {
		for j, b := range names {
			if i == j {
				matrix[i][j] = 1
				continue
			}
			matrix[i][j] = pearsonCorr(vectors[a], vectors[b])
		}
	}
	return models.CorrelationMatrix{Factors: names, Matrix: matrix}
}

func meanByDateVector(panel *models.ScorePanel) []float64 {
	n := panel.Dates.Len()
	out := make([]float64, n)
	for pos := 0; pos < n; pos++ {
		row := panel.Row(pos)
		vals := make([]float64, 0, len(row))
		for _, v := range row {
			vals = append(vals, v)
		}
		out[pos] = mean(vals)
	}
	return out
}

// alignedKeys returns a stable stock ordering and date length used to
// build aligned concat vectors across panels (panels are assumed to share
// the same date index and universe, as produced by one analysis run).
func alignedKeys(panels map[string]*models.ScorePanel, names []string) ([]models.StockCode, int) {
	if len(names) == 0 {
		return nil, 0
	}
	first := panels[names[0]]
	return first.Stocks(), first.Dates.Len()
}

func concatVector(panel *models.ScorePanel, stocks []models.StockCode, dateLen int) []float64 {
	out := make([]float64, 0, dateLen*len(stocks))
	for pos := 0; pos < dateLen; pos++ {
		for _, s := range stocks {
			if v, ok := panel.At(s, pos); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// CorrelatedPair is one upper-triangle entry of a CorrelationMatrix whose
// absolute correlation meets a threshold.
type CorrelatedPair struct {
	A, B  string
	Value float64
}

// FindHighPairs returns every upper-triangle (i<j) entry of m whose
// absolute correlation is >= threshold.
func FindHighPairs(m models.CorrelationMatrix, threshold float64) []CorrelatedPair {
	var out []CorrelatedPair
	for i := 0; i < len(m.Factors); i++ {
		for j := i + 1; j < len(m.Factors); j++ {
			v := m.Matrix[i][j]
			if v < 0 {
				v = -v
			}
			if v >= threshold {
				out = append(out, CorrelatedPair{A: m.Factors[i], B: m.Factors[j], Value: m.Matrix[i][j]})
			}
		}
	}
	return out
}

// Cluster is one group of factors merged by hierarchical average-linkage
// clustering on the distance 1-|correlation|, stopping once the nearest
// remaining pair of clusters is farther apart than maxDistance.
type Cluster struct {
	Factors []string
}

// ClusterByCorrelation performs hierarchical agglomerative clustering
// (average linkage) on the distance metric 1-|rho| derived from m, merging
// the closest pair of clusters repeatedly until the closest remaining pair
// exceeds maxDistance.
func ClusterByCorrelation(m models.CorrelationMatrix, maxDistance float64) []Cluster {
	n := len(m.Factors)
	if n == 0 {
		return nil
	}
	clusters := make([]Cluster, n)
	dist := make([][]float64, n)
	for i := range clusters {
		clusters[i] = Cluster{Factors: []string{m.Factors[i]}}
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rho := m.Matrix[i][j]
			if rho < 0 {
				rho = -rho
			}
			dist[i][j] = 1 - rho
		}
	}
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}

	for {
		bestI, bestJ, bestD := -1, -1, maxDistance
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if dist[i][j] <= bestD {
					bestI, bestJ, bestD = i, j, dist[i][j]
				}
			}
		}
		if bestI < 0 {
			break
		}
		sizeI, sizeJ := len(clusters[bestI].Factors), len(clusters[bestJ].Factors)
		merged := append(append([]string{}, clusters[bestI].Factors...), clusters[bestJ].Factors...)
		clusters[bestI] = Cluster{Factors: merged}
		for k := 0; k < n; k++ {
			if !active[k] || k == bestI || k == bestJ {
				continue
			}
			dist[bestI][k] = (dist[bestI][k]*float64(sizeI) + dist[bestJ][k]*float64(sizeJ)) / float64(sizeI+sizeJ)
			dist[k][bestI] = dist[bestI][k]
		}
		active[bestJ] = false
	}

	var out []Cluster
	for i, ok := range active {
		if ok {
			out = append(out, clusters[i])
		}
	}
	return out
}

func sortStrings(xs []string) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}
