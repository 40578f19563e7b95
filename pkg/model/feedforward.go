package model

import (
	"fmt"

	"github.com/cookie1111/transformer-scratch/pkg/tensor"
)

// FeedForward implements the position-wise feed-forward sub-layer.
//
// Architecture:
//
//	hidden = ReLU(x @ W1 + b1)   (batch, seq, hidden_dim)
//	output = Dropout(hidden @ W2 + b2)   (batch, seq, model_dim)
//
// The same two-layer transform is applied independently to every position
// in the sequence. Unlike the attention projections, W1 and W2 carry bias
// terms. Dropout is active only when the forward call is made with
// training=true.
type FeedForward struct {
	W1 *tensor.Tensor // (model_dim, hidden_dim)
	B1 *tensor.Tensor // (hidden_dim,)
	W2 *tensor.Tensor // (hidden_dim, model_dim)
	B2 *tensor.Tensor // (model_dim,)

	// Activation is applied after the first projection. ReLU by default;
	// callers can swap in tensor.GELU.
	Activation func(*tensor.Tensor) *tensor.Tensor

	ModelDim  int
	HiddenDim int
	Dropout   float32
}

// NewFeedForward creates a feed-forward block mapping model_dim ->
// hidden_dim -> model_dim. All parameters are allocated and initialized
// here and never resized afterwards. Invalid dimensions or a dropout
// probability outside [0, 1) return a *ConfigError before any allocation.
func NewFeedForward(modelDim, hiddenDim int, dropout float32) (*FeedForward, error) {
	if modelDim <= 0 {
		return nil, configErrorf("model_dim", "must be positive, got %d", modelDim)
	}
	if hiddenDim <= 0 {
		return nil, configErrorf("hidden_dim", "must be positive, got %d", hiddenDim)
	}
	if dropout < 0 || dropout >= 1 {
		return nil, configErrorf("dropout", "must be in [0, 1), got %g", dropout)
	}

	ff := &FeedForward{
		W1:         tensor.NewTensor([]int{modelDim, hiddenDim}),
		B1:         tensor.NewTensor([]int{hiddenDim}),
		W2:         tensor.NewTensor([]int{hiddenDim, modelDim}),
		B2:         tensor.NewTensor([]int{modelDim}),
		Activation: tensor.ReLU,
		ModelDim:   modelDim,
		HiddenDim:  hiddenDim,
		Dropout:    dropout,
	}
	InitXavier(ff.W1, modelDim, hiddenDim)
	InitXavier(ff.W2, hiddenDim, modelDim)
	return ff, nil
}

// Forward computes the feed-forward transformation.
//
// Input shape: (batch, seq, model_dim)
// Output shape: (batch, seq, model_dim)
//
// With training=false the output is fully deterministic; with training=true
// the output has inverted dropout applied after the second projection.
func (ff *FeedForward) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, &tensor.ShapeError{
			Op:     "feedforward",
			Detail: fmt.Sprintf("expected 3D input (batch, seq, model_dim), got shape %v", x.Shape),
		}
	}
	if x.Shape[0] == 0 || x.Shape[1] == 0 {
		return nil, &tensor.ShapeError{
			Op:     "feedforward",
			Detail: fmt.Sprintf("batch and sequence dimensions must be non-empty, got shape %v", x.Shape),
		}
	}
	if lastDim := x.Shape[len(x.Shape)-1]; lastDim != ff.ModelDim {
		return nil, &tensor.ShapeError{
			Op:     "feedforward",
			Detail: fmt.Sprintf("input dimension %d doesn't match model_dim %d", lastDim, ff.ModelDim),
		}
	}

	// x @ W1 + b1: (batch, seq, model_dim) -> (batch, seq, hidden_dim)
	hidden, err := tensor.Matmul(x, ff.W1)
	if err != nil {
		return nil, fmt.Errorf("failed to compute first projection: %w", err)
	}
	hidden, err = tensor.Add(hidden, ff.B1)
	if err != nil {
		return nil, fmt.Errorf("failed to add first bias: %w", err)
	}

	activated := ff.Activation(hidden)

	// activated @ W2 + b2: (batch, seq, hidden_dim) -> (batch, seq, model_dim)
	output, err := tensor.Matmul(activated, ff.W2)
	if err != nil {
		return nil, fmt.Errorf("failed to compute second projection: %w", err)
	}
	output, err = tensor.Add(output, ff.B2)
	if err != nil {
		return nil, fmt.Errorf("failed to add second bias: %w", err)
	}

	return output.Dropout(ff.Dropout, training), nil
}
