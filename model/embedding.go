package model

import (
	"fmt"
	"math"

	"github.com/red9inja/red9inja-GPT/tensor"
)

// TokenEmbedding maps token ids to dense vectors, scaled by sqrt(embed_dim).
// Its weight table doubles as the output projection (weight tying), so the
// model's LM head reads the same storage.
type TokenEmbedding struct {
	Weight   *tensor.Tensor // [vocab_size, embed_dim]
	embedDim int
}

func newTokenEmbedding(weight *tensor.Tensor) *TokenEmbedding {
	return &TokenEmbedding{
		Weight:   weight,
		embedDim: weight.Shape[1],
	}
}

// Forward looks up the embedding of each id, producing (B, T, embed_dim).
// Ids outside [0, vocab_size) are a programming error on the caller's side.
func (e *TokenEmbedding) Forward(ids [][]int) *tensor.Tensor {
	batch := len(ids)
	seqLen := len(ids[0])
	vocab := e.Weight.Shape[0]

	out := tensor.New(batch, seqLen, e.embedDim)
	for b := 0; b < batch; b++ {
		for t := 0; t < seqLen; t++ {
			id := ids[b][t]
			if id < 0 || id >= vocab {
				panic(fmt.Sprintf("token id %d out of range [0, %d)", id, vocab))
			}
			src := e.Weight.Data[id*e.embedDim : (id+1)*e.embedDim]
			dst := out.Data[(b*seqLen+t)*e.embedDim : (b*seqLen+t+1)*e.embedDim]
			copy(dst, src)
		}
	}
	return tensor.Scale(out, float32(math.Sqrt(float64(e.embedDim))))
}

// PositionEmbedding holds one learned vector per position. The same position
// index always yields the same vector; it does not depend on token identity.
type PositionEmbedding struct {
	Weight   *tensor.Tensor // [max_seq_len, embed_dim]
	embedDim int
}

func newPositionEmbedding(weight *tensor.Tensor) *PositionEmbedding {
	return &PositionEmbedding{
		Weight:   weight,
		embedDim: weight.Shape[1],
	}
}

// Forward returns the position embeddings for positions 0..seqLen-1,
// broadcast over the batch, shape (batch, seqLen, embed_dim).
func (e *PositionEmbedding) Forward(batch, seqLen int) *tensor.Tensor {
	out := tensor.New(batch, seqLen, e.embedDim)
	for b := 0; b < batch; b++ {
		for t := 0; t < seqLen; t++ {
			src := e.Weight.Data[t*e.embedDim : (t+1)*e.embedDim]
			dst := out.Data[(b*seqLen+t)*e.embedDim : (b*seqLen+t+1)*e.embedDim]
			copy(dst, src)
		}
	}
	return out
}
