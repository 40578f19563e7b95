package tensor

import "math"

// ReLU applies the rectified linear unit max(0, x) element-wise.
//
// Input: tensor of any shape
// Output: tensor of the same shape
func (t *Tensor) ReLU() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		if x > 0 {
			result.Data[i] = x
		}
	}
	return result
}

// GELU applies the Gaussian Error Linear Unit activation function.
//
// The tanh approximation is used:
//
//	GELU(x) = 0.5 * x * (1 + tanh(sqrt(2/π) * (x + 0.044715 * x^3)))
//
// Reference: https://arxiv.org/abs/1606.08415
//
// Input: tensor of any shape
// Output: tensor of the same shape with GELU applied element-wise
func (t *Tensor) GELU() *Tensor {
	result := NewTensor(t.Shape)

	const (
		sqrt2OverPi = 0.7978845608 // sqrt(2/π)
		coeff       = 0.044715
	)

	for i, x := range t.Data {
		inner := x + coeff*x*x*x
		tanhVal := float32(math.Tanh(float64(sqrt2OverPi * inner)))
		result.Data[i] = 0.5 * x * (1 + tanhVal)
	}
	return result
}

// ReLU is a standalone function form of Tensor.ReLU.
func ReLU(t *Tensor) *Tensor {
	return t.ReLU()
}

// GELU is a standalone function form of Tensor.GELU.
func GELU(t *Tensor) *Tensor {
	return t.GELU()
}
