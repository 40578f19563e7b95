package model

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cookie1111/transformer-scratch/pkg/tensor"
)

func randomTensor(t *testing.T, shape []int, seed int64) *tensor.Tensor {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	out := tensor.NewTensor(shape)
	for i := range out.Data {
		out.Data[i] = rng.Float32()*2 - 1
	}
	return out
}

func TestNewFeedForward_ConfigErrors(t *testing.T) {
	tests := []struct {
		name      string
		modelDim  int
		hiddenDim int
		dropout   float32
		wantErr   bool
	}{
		{"valid", 512, 2048, 0.1, false},
		{"zero_dropout", 64, 256, 0, false},
		{"zero_model_dim", 0, 2048, 0.1, true},
		{"negative_hidden_dim", 512, -1, 0.1, true},
		{"dropout_one", 512, 2048, 1, true},
		{"dropout_above_one", 512, 2048, 1.5, true},
		{"dropout_negative", 512, 2048, -0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ff, err := NewFeedForward(tt.modelDim, tt.hiddenDim, tt.dropout)
			if tt.wantErr {
				require.Error(t, err)
				var cfgErr *ConfigError
				assert.True(t, errors.As(err, &cfgErr), "want *ConfigError, got %T", err)
				assert.Nil(t, ff, "no partially constructed block on error")
			} else {
				require.NoError(t, err)
				assert.Equal(t, []int{tt.modelDim, tt.hiddenDim}, ff.W1.Shape)
				assert.Equal(t, []int{tt.hiddenDim, tt.modelDim}, ff.W2.Shape)
			}
		})
	}
}

func TestFeedForward_ShapePreserved(t *testing.T) {
	SetInitSeed(1)
	ff, err := NewFeedForward(512, 2048, 0.1)
	require.NoError(t, err)

	input := randomTensor(t, []int{16, 1, 512}, 2)
	output, err := ff.Forward(input, false)
	require.NoError(t, err)
	assert.Equal(t, []int{16, 1, 512}, output.Shape)
}

func TestFeedForward_EvalModeDeterministic(t *testing.T) {
	SetInitSeed(3)
	ff, err := NewFeedForward(64, 256, 0.5)
	require.NoError(t, err)

	input := randomTensor(t, []int{2, 4, 64}, 4)

	first, err := ff.Forward(input, false)
	require.NoError(t, err)
	second, err := ff.Forward(input, false)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data, "evaluation mode must be bit-identical across calls")
}

func TestFeedForward_DropoutZeroFraction(t *testing.T) {
	SetInitSeed(5)
	tensor.SetDropoutSeed(6)

	p := float32(0.4)
	ff, err := NewFeedForward(64, 128, p)
	require.NoError(t, err)

	// The block applies dropout once, after the second projection, so the
	// zeroed fraction is deliberately measured on the final output and not
	// on the hidden activation. Accumulate it over repeated training
	// passes; the pre-dropout values are almost surely nonzero, so zeros
	// come from the dropout mask.
	input := randomTensor(t, []int{4, 8, 64}, 7)
	zeroed, total := 0, 0
	for trial := 0; trial < 20; trial++ {
		output, err := ff.Forward(input, true)
		require.NoError(t, err)
		for _, v := range output.Data {
			if v == 0 {
				zeroed++
			}
			total++
		}
	}

	rate := float64(zeroed) / float64(total)
	assert.InDelta(t, float64(p), rate, 0.02, "zeroed fraction should converge to p")
}

func TestFeedForward_TrainingFalseSkipsDropout(t *testing.T) {
	SetInitSeed(8)
	ff, err := NewFeedForward(32, 64, 0.9)
	require.NoError(t, err)

	input := randomTensor(t, []int{2, 2, 32}, 9)
	output, err := ff.Forward(input, false)
	require.NoError(t, err)

	zeros := 0
	for _, v := range output.Data {
		if v == 0 {
			zeros++
		}
	}
	assert.Zero(t, zeros, "no dropout zeros in evaluation mode")
}

func TestFeedForward_ShapeMismatch(t *testing.T) {
	SetInitSeed(10)
	ff, err := NewFeedForward(512, 2048, 0.1)
	require.NoError(t, err)

	t.Run("wrong_trailing_dim", func(t *testing.T) {
		input := tensor.NewTensor([]int{16, 1, 256})
		out, err := ff.Forward(input, false)
		require.Error(t, err)
		assert.Nil(t, out, "no partial output on shape error")
		var shapeErr *tensor.ShapeError
		assert.True(t, errors.As(err, &shapeErr), "want *tensor.ShapeError, got %T", err)
	})

	t.Run("wrong_rank", func(t *testing.T) {
		input := tensor.NewTensor([]int{16, 512})
		_, err := ff.Forward(input, false)
		require.Error(t, err)
	})

	t.Run("empty_sequence", func(t *testing.T) {
		out, err := ff.Forward(tensor.NewTensor([]int{16, 0, 512}), false)
		require.Error(t, err)
		assert.Nil(t, out)
		var shapeErr *tensor.ShapeError
		assert.True(t, errors.As(err, &shapeErr))
	})

	t.Run("empty_batch", func(t *testing.T) {
		_, err := ff.Forward(tensor.NewTensor([]int{0, 1, 512}), false)
		require.Error(t, err)
		var shapeErr *tensor.ShapeError
		assert.True(t, errors.As(err, &shapeErr))
	})
}

func TestFeedForward_GELUActivationOption(t *testing.T) {
	SetInitSeed(11)
	ff, err := NewFeedForward(32, 64, 0)
	require.NoError(t, err)

	input := randomTensor(t, []int{1, 2, 32}, 12)
	reluOut, err := ff.Forward(input, false)
	require.NoError(t, err)

	ff.Activation = tensor.GELU
	geluOut, err := ff.Forward(input, false)
	require.NoError(t, err)

	assert.Equal(t, reluOut.Shape, geluOut.Shape)
	assert.NotEqual(t, reluOut.Data, geluOut.Data, "activation choice must affect the output")
}

func TestPipeline(t *testing.T) {
	SetInitSeed(13)
	ff1, err := NewFeedForward(32, 64, 0)
	require.NoError(t, err)
	ff2, err := NewFeedForward(32, 64, 0)
	require.NoError(t, err)

	input := randomTensor(t, []int{2, 3, 32}, 14)

	t.Run("applies_in_order", func(t *testing.T) {
		p := Pipeline{ff1, ff2}
		got, err := p.Forward(input, false)
		require.NoError(t, err)

		mid, err := ff1.Forward(input, false)
		require.NoError(t, err)
		want, err := ff2.Forward(mid, false)
		require.NoError(t, err)
		assert.Equal(t, want.Data, got.Data)
	})

	t.Run("layerfunc_adapter", func(t *testing.T) {
		double := LayerFunc(func(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
			return x.Scale(2), nil
		})
		p := Pipeline{double, double}
		got, err := p.Forward(input, false)
		require.NoError(t, err)
		assert.InDelta(t, float64(input.Data[0]*4), float64(got.Data[0]), 1e-6)
	})

	t.Run("error_stops_pipeline", func(t *testing.T) {
		p := Pipeline{ff1}
		_, err := p.Forward(tensor.NewTensor([]int{2, 3, 16}), false)
		require.Error(t, err)
	})
}
