package model

import "github.com/red9inja/red9inja-GPT/tensor"

// LayerNormParams is one learned LayerNorm scale/offset pair.
type LayerNormParams struct {
	Weight *tensor.Tensor // [embed_dim]
	Bias   *tensor.Tensor // [embed_dim]
	Eps    float32
}

// Forward normalizes the last dimension of x.
func (ln *LayerNormParams) Forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.LayerNorm(x, ln.Weight, ln.Bias, ln.Eps)
}

// TransformerBlock is one pre-norm residual layer:
//
//	x = x + Attention(LN1(x))
//	x = x + FeedForward(LN2(x))
//
// Normalizing before each transform (not after) is what the training recipe
// depends on; the two LayerNorms hold independent parameters.
type TransformerBlock struct {
	Attention *CausalSelfAttention
	FFN       *FeedForward
	LN1       *LayerNormParams
	LN2       *LayerNormParams
}

// Forward applies the block to x of shape (B, T, C), preserving shape.
func (block *TransformerBlock) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	x = tensor.Add(x, block.Attention.Forward(block.LN1.Forward(x), training))
	x = tensor.Add(x, block.FFN.Forward(block.LN2.Forward(x), training))
	return x
}
