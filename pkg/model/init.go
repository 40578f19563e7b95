package model

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cookie1111/transformer-scratch/pkg/tensor"
)

// initRand is the package-level random source for weight initialization.
var (
	initMu   sync.Mutex
	initRand *rand.Rand
)

// SetInitSeed seeds weight initialization for reproducible tests.
func SetInitSeed(seed int64) {
	initMu.Lock()
	defer initMu.Unlock()
	initRand = rand.New(rand.NewSource(seed))
}

// InitXavier fills t in place with values drawn uniformly from
// [-limit, limit] where limit = sqrt(6 / (fanIn + fanOut)). Each call draws
// fresh values, so two projections initialized in sequence never share
// parameters.
func InitXavier(t *tensor.Tensor, fanIn, fanOut int) {
	initMu.Lock()
	defer initMu.Unlock()
	if initRand == nil {
		initRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	limit := float32(math.Sqrt(6 / float64(fanIn+fanOut)))
	for i := range t.Data {
		t.Data[i] = (initRand.Float32()*2 - 1) * limit
	}
}
