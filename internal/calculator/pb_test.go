package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	values := []float64{1.2, 0.8, 1.0, 0.6, 1.4}

	p, err := Percentile(values, 0.8)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, p, 1e-9)

	p, err = Percentile(values, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)

	p, err = Percentile(values, 2)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p)

	_, err = Percentile(nil, 1)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestPercentile_DoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	_, err := Percentile(values, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestSummarize(t *testing.T) {
	s, err := Summarize([]float64{1.2, 0.8, 1.0})
	require.NoError(t, err)
	assert.Equal(t, 0.8, s.Min)
	assert.Equal(t, 1.2, s.Max)
	assert.InDelta(t, 1.0, s.Avg, 1e-9)
	assert.Equal(t, 1.0, s.Median)
	assert.Equal(t, 3, s.Count)

	_, err = Summarize(nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRecommendThresholds(t *testing.T) {
	_, err := RecommendThresholds(make([]float64, MinRecommendSamples-1))
	assert.Error(t, err)

	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i+1) / 100 // 0.01 .. 1.00
	}
	r, err := RecommendThresholds(values)
	require.NoError(t, err)
	assert.Less(t, r.AddPB, r.BuyPB)
	assert.Less(t, r.BuyPB, r.SellPB)
	assert.InDelta(t, 0.15, r.BuyPB, 0.011)
	assert.InDelta(t, 0.10, r.AddPB, 0.011)
	assert.InDelta(t, 0.75, r.SellPB, 0.011)
}
