package model

// CausalMask is the precomputed lower-triangular buffer that keeps attention
// from looking at future positions. It is built once at model construction,
// sized maxSeqLen x maxSeqLen, never mutated afterwards, and shared by every
// attention layer; forward calls read only the top-left T x T corner.
type CausalMask struct {
	maxSeqLen int
	allowed   []bool
}

// NewCausalMask builds the mask for sequences up to maxSeqLen.
func NewCausalMask(maxSeqLen int) *CausalMask {
	m := &CausalMask{
		maxSeqLen: maxSeqLen,
		allowed:   make([]bool, maxSeqLen*maxSeqLen),
	}
	for i := 0; i < maxSeqLen; i++ {
		for j := 0; j <= i; j++ {
			m.allowed[i*maxSeqLen+j] = true
		}
	}
	return m
}

// Allowed reports whether query position i may attend to key position j.
func (m *CausalMask) Allowed(i, j int) bool {
	return m.allowed[i*m.maxSeqLen+j]
}

// MaxSeqLen returns the sequence length the mask was built for.
func (m *CausalMask) MaxSeqLen() int {
	return m.maxSeqLen
}
