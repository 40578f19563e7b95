package tensor

import (
	"math/rand"
	"sync"
	"time"
)

// dropoutRand is the package-level random source for dropout masks.
// Guarded by dropoutMu so concurrent forward passes stay safe.
var (
	dropoutMu   sync.Mutex
	dropoutRand *rand.Rand
)

// SetDropoutSeed seeds the dropout random source for reproducible tests.
func SetDropoutSeed(seed int64) {
	dropoutMu.Lock()
	defer dropoutMu.Unlock()
	dropoutRand = rand.New(rand.NewSource(seed))
}

// Dropout zeroes each element independently with probability p during
// training and rescales the survivors by 1/(1-p) so the expected magnitude
// is unchanged (inverted dropout). With training=false or p=0 it returns a
// copy of the input unchanged.
func (t *Tensor) Dropout(p float32, training bool) *Tensor {
	if !training || p == 0 {
		return t.Clone()
	}
	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}

	dropoutMu.Lock()
	defer dropoutMu.Unlock()
	if dropoutRand == nil {
		dropoutRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	result := NewTensor(t.Shape)
	scale := 1 / (1 - p)
	for i, x := range t.Data {
		if dropoutRand.Float32() >= p {
			result.Data[i] = x * scale
		}
	}
	return result
}

// ApplyDropout is the function form of Tensor.Dropout.
func ApplyDropout(t *Tensor, p float32, training bool) *Tensor {
	return t.Dropout(p, training)
}
