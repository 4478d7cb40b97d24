package tensor

import (
	"math/rand"
	"time"
)

// dropoutRand is the package-level generator used by Dropout.
var dropoutRand *rand.Rand

// SetDropoutSeed seeds the dropout generator, for reproducible training runs.
func SetDropoutSeed(seed int64) {
	dropoutRand = rand.New(rand.NewSource(seed))
}

// Dropout zeroes elements with probability p and rescales the survivors by
// 1/(1-p) (inverted dropout). When training is false the input is returned
// unchanged, so inference paths pay nothing for it.
func Dropout(t *Tensor, p float32, training bool) *Tensor {
	if !training || p == 0 {
		return t
	}
	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}

	if dropoutRand == nil {
		dropoutRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	result := New(t.Shape...)
	scale := 1.0 / (1.0 - p)
	for i := range t.Data {
		if dropoutRand.Float32() >= p {
			result.Data[i] = t.Data[i] * scale
		}
	}
	return result
}
