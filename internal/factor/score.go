package factor

import "github.com/strategylab/core/pkg/models"

// OverallScore blends an IC summary and a layering result into the
// headline 0-100 score the analyzer reports per factor: IC magnitude
// weighs 40 points, ICIR 30, positive rate 15, monotonicity 15.
func OverallScore(summary models.ICSummary, layering models.LayerResult) float64 {
	return icMagnitudeScore(summary.MeanIC) +
		icirScore(summary.ICIR) +
		positiveRateScore(summary.PositiveIC) +
		monotonicityScore(layering.Monotonicity)
}

// Recommend turns an overall score into a short human-readable verdict.
func Recommend(score float64) string {
	switch {
	case score >= 70:
		return "strong factor — retain and consider higher weight in combination"
	case score >= 50:
		return "moderate factor — usable but monitor IC stability"
	case score >= 30:
		return "weak factor — low combination weight or further research"
	default:
		return "discard — no measurable predictive power"
	}
}

func icMagnitudeScore(meanIC float64) float64 {
	abs := meanIC
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.10:
		return 40
	case abs >= 0.05:
		return 30
	case abs >= 0.02:
		return 15
	default:
		return 5 * clamp01(abs/0.02)
	}
}

func icirScore(icir float64) float64 {
	abs := icir
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.5:
		return 30
	case abs >= 0.3:
		return 22
	case abs >= 0.1:
		return 10
	default:
		return 5 * clamp01(abs/0.1)
	}
}

func positiveRateScore(rate float64) float64 {
	dist := rate
	if dist < 0.5 {
		dist = 1 - dist
	}
	switch {
	case dist >= 0.65:
		return 15
	case dist >= 0.55:
		return 10
	default:
		return 5 * clamp01((dist-0.5)/0.05)
	}
}

func monotonicityScore(monotonicity float64) float64 {
	abs := monotonicity
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.8:
		return 15
	case abs >= 0.5:
		return 10
	default:
		return 5 * clamp01(abs/0.5)
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
