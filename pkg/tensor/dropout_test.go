package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropout_EvaluationMode(t *testing.T) {
	SetDropoutSeed(42)

	input, err := FromSlice([]float32{1, 2, 3, 4, 5}, []int{5})
	require.NoError(t, err)

	out := input.Dropout(0.5, false)

	// Evaluation mode is the identity, returned as a copy.
	assert.Equal(t, input.Data, out.Data)
	assert.NotSame(t, &input.Data[0], &out.Data[0])
}

func TestDropout_ZeroProbability(t *testing.T) {
	SetDropoutSeed(42)

	input, err := FromSlice([]float32{1, 2, 3, 4, 5}, []int{5})
	require.NoError(t, err)

	out := input.Dropout(0, true)
	assert.Equal(t, input.Data, out.Data)
}

func TestDropout_RateConvergesToP(t *testing.T) {
	SetDropoutSeed(42)

	const n = 10000
	data := make([]float32, n)
	for i := range data {
		data[i] = 1
	}
	input, err := FromSlice(data, []int{n})
	require.NoError(t, err)

	p := float32(0.3)
	out := input.Dropout(p, true)

	dropped := 0
	scale := 1 / (1 - p)
	for _, v := range out.Data {
		switch v {
		case 0:
			dropped++
		case scale:
			// kept and rescaled
		default:
			t.Fatalf("unexpected value %f (want 0 or %f)", v, scale)
		}
	}

	rate := float32(dropped) / n
	assert.InDelta(t, p, rate, 0.03, "dropped fraction should converge to p")
}

func TestDropout_RescalesSurvivors(t *testing.T) {
	SetDropoutSeed(7)

	input, err := FromSlice([]float32{2, 2, 2, 2, 2, 2, 2, 2}, []int{8})
	require.NoError(t, err)

	p := float32(0.5)
	out := input.Dropout(p, true)

	for _, v := range out.Data {
		if v != 0 {
			assert.Equal(t, float32(4), v, "survivors are scaled by 1/(1-p)")
		}
	}
}

func TestDropout_InvalidProbabilityPanics(t *testing.T) {
	input := NewTensor([]int{4})
	assert.Panics(t, func() { input.Dropout(1, true) })
	assert.Panics(t, func() { input.Dropout(-0.1, true) })
}
