package calculator

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinRecommendSamples is the shortest history RecommendThresholds accepts.
const MinRecommendSamples = 50

var ErrNoData = errors.New("no pb observations")

// Summary describes a PB series.
type Summary struct {
	Min    float64
	Max    float64
	Avg    float64
	Median float64
	Count  int
}

// Percentile returns the share (0~100) of values that are <= v.
func Percentile(values []float64, v float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoData
	}
	sorted := sortedCopy(values)
	return stat.CDF(v, stat.Empirical, sorted, nil) * 100, nil
}

// Summarize computes min/max/mean/median of values.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoData
	}
	sorted := sortedCopy(values)
	return Summary{
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Avg:    stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Count:  len(sorted),
	}, nil
}

// Recommendation holds threshold levels derived from history.
type Recommendation struct {
	BuyPB  float64 `json:"buy_pb"`  // 15th percentile
	AddPB  float64 `json:"add_pb"`  // 10th percentile
	SellPB float64 `json:"sell_pb"` // 75th percentile
}

// RecommendThresholds derives add/buy/sell levels from the empirical quantiles of values,
// rounded to two decimals. It needs at least MinRecommendSamples points.
func RecommendThresholds(values []float64) (Recommendation, error) {
	if len(values) < MinRecommendSamples {
		return Recommendation{}, errors.New("not enough pb history to recommend thresholds")
	}
	sorted := sortedCopy(values)
	q := func(p float64) float64 {
		return round2(stat.Quantile(p, stat.Empirical, sorted, nil))
	}
	return Recommendation{BuyPB: q(0.15), AddPB: q(0.10), SellPB: q(0.75)}, nil
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
