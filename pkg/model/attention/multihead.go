package attention

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cookie1111/transformer-scratch/pkg/model"
	"github.com/cookie1111/transformer-scratch/pkg/tensor"
)

// MultiHeadAttention runs several independently parameterized attention
// heads over the same input, concatenates their outputs along the feature
// axis and mixes the result with a final linear projection.
//
// Architecture:
//
//	MHA(x) = Concat(head_0(x), ..., head_{n-1}(x)) @ OutProj
//
// Each head in Heads is a distinct instance with its own projections; no
// parameter storage is shared between indices. The output projection is
// what lets the heads' independently computed subspace representations
// interact after concatenation.
type MultiHeadAttention struct {
	Heads   []*Head
	OutProj *tensor.Tensor // (model_dim, model_dim)

	ModelDim int
	NumHeads int
	HeadDim  int
}

// NewMultiHeadAttention creates numHeads attention heads of width
// modelDim/numHeads plus the output projection. A *model.ConfigError is
// returned before any allocation when modelDim is not divisible by numHeads
// or either value is non-positive.
func NewMultiHeadAttention(modelDim, numHeads int) (*MultiHeadAttention, error) {
	if modelDim <= 0 {
		return nil, model.NewConfigError("model_dim", fmt.Sprintf("must be positive, got %d", modelDim))
	}
	if numHeads <= 0 {
		return nil, model.NewConfigError("num_heads", fmt.Sprintf("must be positive, got %d", numHeads))
	}
	if modelDim%numHeads != 0 {
		return nil, model.NewConfigError("num_heads",
			fmt.Sprintf("model_dim (%d) must be divisible by num_heads (%d)", modelDim, numHeads))
	}

	headDim := modelDim / numHeads
	heads := make([]*Head, numHeads)
	for i := range heads {
		h, err := NewHead(modelDim, headDim)
		if err != nil {
			return nil, err
		}
		heads[i] = h
	}

	mha := &MultiHeadAttention{
		Heads:    heads,
		OutProj:  tensor.NewTensor([]int{modelDim, modelDim}),
		ModelDim: modelDim,
		NumHeads: numHeads,
		HeadDim:  headDim,
	}
	model.InitXavier(mha.OutProj, modelDim, modelDim)
	return mha, nil
}

// NewMultiHeadAttentionFromConfig builds a MultiHeadAttention from a
// validated Config.
func NewMultiHeadAttentionFromConfig(cfg model.Config) (*MultiHeadAttention, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewMultiHeadAttention(cfg.ModelDim, cfg.NumHeads)
}

// Forward computes multi-head attention.
//
// Input shape: (batch, seq, model_dim)
// Output shape: (batch, seq, model_dim)
//
// The heads have no data dependency on one another, so they are evaluated
// concurrently. Their outputs are reassembled in head-index order before
// the concatenation, so the result does not depend on scheduling.
func (m *MultiHeadAttention) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkInput("multi-head-attention", x, m.ModelDim); err != nil {
		return nil, err
	}

	headOutputs := make([]*tensor.Tensor, len(m.Heads))
	var g errgroup.Group
	for i, head := range m.Heads {
		i, head := i, head
		g.Go(func() error {
			out, err := head.Forward(x)
			if err != nil {
				return fmt.Errorf("head %d: %w", i, err)
			}
			headOutputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Concatenate along the feature axis:
	// num_heads x (batch, seq, head_dim) -> (batch, seq, model_dim)
	concat, err := tensor.Concatenate(headOutputs, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to concatenate head outputs: %w", err)
	}

	output, err := tensor.Matmul(concat, m.OutProj)
	if err != nil {
		return nil, fmt.Errorf("failed to apply output projection: %w", err)
	}
	return output, nil
}
