package model

import (
	"math"

	"github.com/red9inja/red9inja-GPT/tensor"
)

// CausalSelfAttention is multi-head scaled dot-product attention restricted
// to non-future positions. Queries, keys and values come out of one combined
// projection; the causal mask is shared across all layers of the model.
type CausalSelfAttention struct {
	NumHeads int
	HeadDim  int
	EmbedDim int

	QKVWeight *tensor.Tensor // [embed_dim, 3*embed_dim]
	QKVBias   *tensor.Tensor // [3*embed_dim]
	OutWeight *tensor.Tensor // [embed_dim, embed_dim]
	OutBias   *tensor.Tensor // [embed_dim]

	mask        *CausalMask
	attnDropout float32
	residDrop   float32
}

func newCausalSelfAttention(cfg *Config, mask *CausalMask) *CausalSelfAttention {
	return &CausalSelfAttention{
		NumHeads:    cfg.NumHeads,
		HeadDim:     cfg.HeadDim(),
		EmbedDim:    cfg.EmbedDim,
		mask:        mask,
		attnDropout: cfg.AttentionDropout,
		residDrop:   cfg.Dropout,
	}
}

// Forward applies attention to x of shape (B, T, C), returning (B, T, C).
func (a *CausalSelfAttention) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	out, _ := a.forward(x, training, false)
	return out
}

// ForwardWeights is Forward plus the post-softmax attention weights of shape
// (B, num_heads, T, T), for inspection.
func (a *CausalSelfAttention) ForwardWeights(x *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	return a.forward(x, false, true)
}

func (a *CausalSelfAttention) forward(x *tensor.Tensor, training, keepWeights bool) (*tensor.Tensor, *tensor.Tensor) {
	batch := x.Shape[0]
	seqLen := x.Shape[1]
	C := a.EmbedDim
	H := a.NumHeads
	D := a.HeadDim

	// Combined projection to queries, keys and values: (B*T, 3C).
	qkv := tensor.MatMul(x.Reshape(batch*seqLen, C), a.QKVWeight)
	tensor.AddBias(qkv, a.QKVBias)

	scale := float32(1.0 / math.Sqrt(float64(D)))
	negInf := float32(math.Inf(-1))

	out := tensor.New(batch, seqLen, C)
	var weights *tensor.Tensor
	if keepWeights {
		weights = tensor.New(batch, H, seqLen, seqLen)
	}

	scores := make([]float32, seqLen)
	for b := 0; b < batch; b++ {
		for h := 0; h < H; h++ {
			qOff := h * D
			kOff := C + h*D
			vOff := 2*C + h*D

			for i := 0; i < seqLen; i++ {
				q := qkv.Data[(b*seqLen+i)*3*C+qOff : (b*seqLen+i)*3*C+qOff+D]

				// Raw scores against every key, future positions
				// pinned to -Inf before normalization.
				maxVal := negInf
				for j := 0; j < seqLen; j++ {
					if !a.mask.Allowed(i, j) {
						scores[j] = negInf
						continue
					}
					k := qkv.Data[(b*seqLen+j)*3*C+kOff : (b*seqLen+j)*3*C+kOff+D]
					s := float32(0)
					for d := 0; d < D; d++ {
						s += q[d] * k[d]
					}
					s *= scale
					scores[j] = s
					if s > maxVal {
						maxVal = s
					}
				}

				// Max-subtracted softmax over the unmasked prefix.
				sum := float32(0)
				for j := 0; j <= i; j++ {
					e := float32(math.Exp(float64(scores[j] - maxVal)))
					scores[j] = e
					sum += e
				}
				for j := 0; j <= i; j++ {
					scores[j] /= sum
				}
				for j := i + 1; j < seqLen; j++ {
					scores[j] = 0
				}

				if training && a.attnDropout > 0 {
					row := &tensor.Tensor{Data: scores[:seqLen], Shape: []int{seqLen}}
					dropped := tensor.Dropout(row, a.attnDropout, true)
					copy(scores, dropped.Data)
				}

				if keepWeights {
					dst := weights.Data[((b*H+h)*seqLen+i)*seqLen : ((b*H+h)*seqLen+i+1)*seqLen]
					copy(dst, scores[:seqLen])
				}

				// Weighted sum over values for this head slice.
				dst := out.Data[(b*seqLen+i)*C+h*D : (b*seqLen+i)*C+h*D+D]
				for j := 0; j <= i; j++ {
					w := scores[j]
					if w == 0 {
						continue
					}
					v := qkv.Data[(b*seqLen+j)*3*C+vOff : (b*seqLen+j)*3*C+vOff+D]
					for d := 0; d < D; d++ {
						dst[d] += w * v[d]
					}
				}
			}
		}
	}

	// Final output projection over the concatenated heads.
	proj := tensor.MatMul(out.Reshape(batch*seqLen, C), a.OutWeight)
	tensor.AddBias(proj, a.OutBias)
	result := tensor.Dropout(proj.Reshape(batch, seqLen, C), a.residDrop, training)

	return result, weights
}
