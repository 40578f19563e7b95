// Package attention implements scaled dot-product attention for the
// transformer encoder: single attention heads and their multi-head
// combination.
//
// Attention here is full and bidirectional: every position attends to every
// other position, with no masking.
package attention

import (
	"fmt"
	"math"

	"github.com/cookie1111/transformer-scratch/pkg/model"
	"github.com/cookie1111/transformer-scratch/pkg/tensor"
)

// Head computes scaled dot-product attention in one head_dim-wide subspace.
//
// It owns three independent, bias-free projections from model_dim to
// head_dim. The projections are allocated at construction and never
// resized; a forward pass reads them but never writes.
type Head struct {
	WQuery *tensor.Tensor // (model_dim, head_dim)
	WKey   *tensor.Tensor // (model_dim, head_dim)
	WValue *tensor.Tensor // (model_dim, head_dim)

	ModelDim int
	HeadDim  int
	Scale    float32 // 1/sqrt(head_dim)
}

// NewHead creates an attention head projecting model_dim down to head_dim.
// Non-positive dimensions return a *model.ConfigError before any parameter
// is allocated.
func NewHead(modelDim, headDim int) (*Head, error) {
	if modelDim <= 0 {
		return nil, model.NewConfigError("model_dim", fmt.Sprintf("must be positive, got %d", modelDim))
	}
	if headDim <= 0 {
		return nil, model.NewConfigError("head_dim", fmt.Sprintf("must be positive, got %d", headDim))
	}

	h := &Head{
		WQuery:   tensor.NewTensor([]int{modelDim, headDim}),
		WKey:     tensor.NewTensor([]int{modelDim, headDim}),
		WValue:   tensor.NewTensor([]int{modelDim, headDim}),
		ModelDim: modelDim,
		HeadDim:  headDim,
		Scale:    float32(1 / math.Sqrt(float64(headDim))),
	}
	model.InitXavier(h.WQuery, modelDim, headDim)
	model.InitXavier(h.WKey, modelDim, headDim)
	model.InitXavier(h.WValue, modelDim, headDim)
	return h, nil
}

// Forward computes scaled dot-product attention for this head.
//
// Input shape: (batch, seq, model_dim)
// Output shape: (batch, seq, head_dim)
//
// Steps:
//  1. Q = x @ WQuery, K = x @ WKey, V = x @ WValue
//  2. scores = Q @ K^T / sqrt(head_dim)
//  3. weights = softmax(scores) along the last axis
//  4. output = weights @ V
//
// The scaling keeps the softmax out of its saturated regime as head_dim
// grows. A *tensor.ShapeError is returned when the input is not 3D or its
// trailing dimension differs from model_dim.
func (h *Head) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkInput("attention-head", x, h.ModelDim); err != nil {
		return nil, err
	}

	// Step 1: project into the head's query/key/value subspaces.
	// Each of Q, K, V: (batch, seq, model_dim) @ (model_dim, head_dim)
	// -> (batch, seq, head_dim)
	Q, err := tensor.Matmul(x, h.WQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to compute Q: %w", err)
	}
	K, err := tensor.Matmul(x, h.WKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute K: %w", err)
	}
	V, err := tensor.Matmul(x, h.WValue)
	if err != nil {
		return nil, fmt.Errorf("failed to compute V: %w", err)
	}

	// Step 2: raw compatibility scores Q @ K^T.
	// (batch, seq, head_dim) @ (batch, head_dim, seq) -> (batch, seq, seq)
	KT, err := K.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose K: %w", err)
	}
	scores, err := tensor.Matmul(Q, KT)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention scores: %w", err)
	}
	scores = scores.Scale(h.Scale)

	// Step 3: each query's distribution over all keys.
	weights, err := tensor.Softmax(scores, len(scores.Shape)-1)
	if err != nil {
		return nil, fmt.Errorf("failed to apply softmax: %w", err)
	}

	// Step 4: attention-weighted values.
	// (batch, seq, seq) @ (batch, seq, head_dim) -> (batch, seq, head_dim)
	output, err := tensor.Matmul(weights, V)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention output: %w", err)
	}
	return output, nil
}

// Weights returns the post-softmax attention weights for the given input,
// shape (batch, seq, seq). Each row is non-negative and sums to 1.
func (h *Head) Weights(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkInput("attention-head", x, h.ModelDim); err != nil {
		return nil, err
	}

	Q, err := tensor.Matmul(x, h.WQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to compute Q: %w", err)
	}
	K, err := tensor.Matmul(x, h.WKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute K: %w", err)
	}
	KT, err := K.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose K: %w", err)
	}
	scores, err := tensor.Matmul(Q, KT)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention scores: %w", err)
	}
	return tensor.Softmax(scores.Scale(h.Scale), len(scores.Shape)-1)
}

func checkInput(op string, x *tensor.Tensor, modelDim int) error {
	if len(x.Shape) != 3 {
		return &tensor.ShapeError{
			Op:     op,
			Detail: fmt.Sprintf("expected 3D input (batch, seq, model_dim), got shape %v", x.Shape),
		}
	}
	if x.Shape[0] == 0 || x.Shape[1] == 0 {
		return &tensor.ShapeError{
			Op:     op,
			Detail: fmt.Sprintf("batch and sequence dimensions must be non-empty, got shape %v", x.Shape),
		}
	}
	if lastDim := x.Shape[2]; lastDim != modelDim {
		return &tensor.ShapeError{
			Op:     op,
			Detail: fmt.Sprintf("input dimension %d doesn't match model_dim %d", lastDim, modelDim),
		}
	}
	return nil
}
