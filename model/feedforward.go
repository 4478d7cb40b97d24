package model

import "github.com/red9inja/red9inja-GPT/tensor"

// FeedForward is the position-wise two-layer transform:
// linear(C -> ff_dim) -> activation -> dropout -> linear(ff_dim -> C) -> dropout.
type FeedForward struct {
	W1 *tensor.Tensor // [embed_dim, ff_dim]
	B1 *tensor.Tensor // [ff_dim]
	W2 *tensor.Tensor // [ff_dim, embed_dim]
	B2 *tensor.Tensor // [embed_dim]

	embedDim   int
	ffDim      int
	activation func(*tensor.Tensor) *tensor.Tensor
	dropout    float32
}

func newFeedForward(cfg *Config) *FeedForward {
	ffn := &FeedForward{
		embedDim: cfg.EmbedDim,
		ffDim:    cfg.FFDim,
		dropout:  cfg.Dropout,
	}
	// The activation is picked once here; cfg has already been validated,
	// so an unknown name can only mean a bug in this package.
	switch cfg.Activation {
	case ActivationGELU:
		ffn.activation = tensor.GELU
	case ActivationReLU:
		ffn.activation = tensor.ReLU
	case ActivationSwish:
		ffn.activation = tensor.SiLU
	default:
		panic("unreachable: unvalidated activation " + cfg.Activation)
	}
	return ffn
}

// Forward applies the transform to x of shape (B, T, C), preserving shape.
func (ffn *FeedForward) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	batch := x.Shape[0]
	seqLen := x.Shape[1]

	h := tensor.MatMul(x.Reshape(batch*seqLen, ffn.embedDim), ffn.W1)
	tensor.AddBias(h, ffn.B1)
	h = ffn.activation(h)
	h = tensor.Dropout(h, ffn.dropout, training)

	h = tensor.MatMul(h, ffn.W2)
	tensor.AddBias(h, ffn.B2)
	h = tensor.Dropout(h, ffn.dropout, training)

	return h.Reshape(batch, seqLen, ffn.embedDim)
}
