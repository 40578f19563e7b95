package model

import (
	"fmt"

	"github.com/cookie1111/transformer-scratch/pkg/tensor"
)

// Layer is the single-method transform contract every sub-layer satisfies.
// The training flag selects mode-dependent behavior such as dropout; layers
// without such behavior ignore it.
type Layer interface {
	Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error)
}

// LayerFunc adapts an ordinary function to the Layer interface, e.g. to
// compose a layer whose Forward does not take a training flag.
type LayerFunc func(x *tensor.Tensor, training bool) (*tensor.Tensor, error)

// Forward calls f.
func (f LayerFunc) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	return f(x, training)
}

// Pipeline applies a fixed sequence of layers in order. The composition
// graph is static, so plain iteration replaces any dynamic dispatch
// machinery.
type Pipeline []Layer

// Forward threads x through every layer in order, stopping at the first
// error.
func (p Pipeline) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	out := x
	for i, layer := range p {
		var err error
		out, err = layer.Forward(out, training)
		if err != nil {
			return nil, fmt.Errorf("pipeline layer %d: %w", i, err)
		}
	}
	return out, nil
}
