package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReLU(t *testing.T) {
	input, err := FromSlice([]float32{-2, -0.5, 0, 0.5, 2}, []int{5})
	require.NoError(t, err)

	out := input.ReLU()
	assert.Equal(t, []float32{0, 0, 0, 0.5, 2}, out.Data)
	// Input untouched.
	assert.Equal(t, float32(-2), input.Data[0])
}

func TestGELU(t *testing.T) {
	t.Run("zero_maps_to_zero", func(t *testing.T) {
		input, _ := FromSlice([]float32{0}, []int{1})
		assert.Zero(t, input.GELU().Data[0])
	})

	t.Run("matches_tanh_approximation", func(t *testing.T) {
		xs := []float32{-3, -1, -0.5, 0.5, 1, 3}
		input, _ := FromSlice(xs, []int{len(xs)})
		out := input.GELU()

		for i, x := range xs {
			inner := float64(x) + 0.044715*float64(x)*float64(x)*float64(x)
			want := 0.5 * float64(x) * (1 + math.Tanh(0.7978845608*inner))
			assert.InDelta(t, want, float64(out.Data[i]), 1e-5)
		}
	})

	t.Run("large_positive_near_identity", func(t *testing.T) {
		input, _ := FromSlice([]float32{10}, []int{1})
		assert.InDelta(t, 10, input.GELU().Data[0], 1e-4)
	})
}
