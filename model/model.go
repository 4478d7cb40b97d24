package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/red9inja/red9inja-GPT/tensor"
)

// IgnoreIndex is the label sentinel excluded from the loss.
const IgnoreIndex = -100

// GPT is the full model stack: embeddings, N pre-norm transformer blocks, a
// final LayerNorm and a weight-tied output head. The forward pass is a pure
// function of the inputs and the (read-only at inference) weights, so
// concurrent forward calls against one instance are safe as long as nothing
// is mutating the weights.
type GPT struct {
	Config *Config

	TokenEmbed *TokenEmbedding
	PosEmbed   *PositionEmbedding
	Blocks     []*TransformerBlock
	FinalNorm  *LayerNormParams
	Mask       *CausalMask

	Training bool
}

// NamedTensor pairs a stable weight name with its tensor. The slice returned
// by NamedWeights is the model's snapshot layout for persistence layers.
type NamedTensor struct {
	Name   string
	Tensor *tensor.Tensor
}

// New builds a model from cfg with weights drawn from the given seed:
// linear and embedding weights from N(0, init_std), biases zero, LayerNorm
// scales one and offsets zero. The same seed always yields the same weights.
func New(cfg *Config, seed int64) *GPT {
	rng := rand.New(rand.NewSource(seed))
	C := cfg.EmbedDim
	eps := cfg.LayerNormEps

	// One embedding table serves both the input lookup and the output
	// projection; there is no second copy to drift out of sync.
	tokenWeight := tensor.RandNormal(rng, cfg.InitStd, cfg.VocabSize, C)
	posWeight := tensor.RandNormal(rng, cfg.InitStd, cfg.MaxSeqLen, C)

	mask := NewCausalMask(cfg.MaxSeqLen)

	newNorm := func() *LayerNormParams {
		return &LayerNormParams{
			Weight: tensor.Ones(C),
			Bias:   tensor.New(C),
			Eps:    eps,
		}
	}

	blocks := make([]*TransformerBlock, cfg.NumLayers)
	for i := range blocks {
		attn := newCausalSelfAttention(cfg, mask)
		attn.QKVWeight = tensor.RandNormal(rng, cfg.InitStd, C, 3*C)
		attn.QKVBias = tensor.New(3 * C)
		attn.OutWeight = tensor.RandNormal(rng, cfg.InitStd, C, C)
		attn.OutBias = tensor.New(C)

		ffn := newFeedForward(cfg)
		ffn.W1 = tensor.RandNormal(rng, cfg.InitStd, C, cfg.FFDim)
		ffn.B1 = tensor.New(cfg.FFDim)
		ffn.W2 = tensor.RandNormal(rng, cfg.InitStd, cfg.FFDim, C)
		ffn.B2 = tensor.New(C)

		blocks[i] = &TransformerBlock{
			Attention: attn,
			FFN:       ffn,
			LN1:       newNorm(),
			LN2:       newNorm(),
		}
	}

	return &GPT{
		Config:     cfg,
		TokenEmbed: newTokenEmbedding(tokenWeight),
		PosEmbed:   newPositionEmbedding(posWeight),
		Blocks:     blocks,
		FinalNorm:  newNorm(),
		Mask:       mask,
	}
}

// SetTraining toggles training mode; dropout is a no-op when it is off.
func (m *GPT) SetTraining(training bool) {
	m.Training = training
}

// LMHeadWeight returns the output-projection weight. It is the token
// embedding table itself, not a copy.
func (m *GPT) LMHeadWeight() *tensor.Tensor {
	return m.TokenEmbed.Weight
}

func (m *GPT) checkInput(ids [][]int) (batch, seqLen int, err error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return 0, 0, fmt.Errorf("empty input batch")
	}
	batch = len(ids)
	seqLen = len(ids[0])
	for _, row := range ids {
		if len(row) != seqLen {
			return 0, 0, fmt.Errorf("ragged input batch: got lengths %d and %d", seqLen, len(row))
		}
	}
	if seqLen > m.Config.MaxSeqLen {
		return 0, 0, &SequenceTooLongError{SeqLen: seqLen, MaxSeqLen: m.Config.MaxSeqLen}
	}
	return batch, seqLen, nil
}

// Forward runs the stack over a batch of token-id rows of equal length T,
// returning logits of shape (B, T, vocab_size). T beyond the configured
// maximum yields a *SequenceTooLongError.
func (m *GPT) Forward(ids [][]int) (*tensor.Tensor, error) {
	batch, seqLen, err := m.checkInput(ids)
	if err != nil {
		return nil, err
	}

	x := tensor.Add(m.TokenEmbed.Forward(ids), m.PosEmbed.Forward(batch, seqLen))
	x = tensor.Dropout(x, m.Config.Dropout, m.Training)

	// Layer order is load-bearing: each block consumes the previous
	// block's output.
	for _, block := range m.Blocks {
		x = block.Forward(x, m.Training)
	}

	x = m.FinalNorm.Forward(x)

	// Weight-tied head: project onto the token embedding table.
	C := m.Config.EmbedDim
	logits := tensor.MatMul(x.Reshape(batch*seqLen, C), tensor.Transpose(m.TokenEmbed.Weight))
	return logits.Reshape(batch, seqLen, m.Config.VocabSize), nil
}

// ForwardLoss is Forward plus the next-token cross-entropy: logits at
// positions 0..T-2 against labels at 1..T-1, skipping labels equal to
// IgnoreIndex. labels must have the shape of ids. The loss is nil when
// every label is ignored, which is distinct from a loss of zero.
func (m *GPT) ForwardLoss(ids, labels [][]int) (*tensor.Tensor, *float32, error) {
	logits, err := m.Forward(ids)
	if err != nil {
		return nil, nil, err
	}

	batch := logits.Shape[0]
	seqLen := logits.Shape[1]
	vocab := logits.Shape[2]

	if len(labels) != batch {
		return nil, nil, fmt.Errorf("labels batch %d does not match input batch %d", len(labels), batch)
	}

	total := 0.0
	count := 0
	for b := 0; b < batch; b++ {
		if len(labels[b]) != seqLen {
			return nil, nil, fmt.Errorf("labels row %d has length %d, want %d", b, len(labels[b]), seqLen)
		}
		for t := 0; t < seqLen-1; t++ {
			target := labels[b][t+1]
			if target == IgnoreIndex {
				continue
			}
			if target < 0 || target >= vocab {
				return nil, nil, fmt.Errorf("label %d out of range [0, %d)", target, vocab)
			}

			row := logits.Data[(b*seqLen+t)*vocab : (b*seqLen+t+1)*vocab]
			maxVal := row[0]
			for _, v := range row[1:] {
				if v > maxVal {
					maxVal = v
				}
			}
			sum := 0.0
			for _, v := range row {
				sum += math.Exp(float64(v - maxVal))
			}
			// -log softmax(target)
			total += math.Log(sum) - float64(row[target]-maxVal)
			count++
		}
	}

	if count == 0 {
		return logits, nil, nil
	}
	loss := float32(total / float64(count))
	if math.IsNaN(float64(loss)) || math.IsInf(float64(loss), 0) {
		return nil, nil, &NumericalError{Op: "cross_entropy", Msg: "non-finite loss"}
	}
	return logits, &loss, nil
}

// NamedWeights returns every learned tensor with a stable name, in a fixed
// order. The weight-tied output head is not listed separately; it is
// token_embedding.weight.
func (m *GPT) NamedWeights() []NamedTensor {
	weights := []NamedTensor{
		{"token_embedding.weight", m.TokenEmbed.Weight},
		{"position_embedding.weight", m.PosEmbed.Weight},
	}
	for i, block := range m.Blocks {
		prefix := fmt.Sprintf("blocks.%d.", i)
		weights = append(weights,
			NamedTensor{prefix + "attention.qkv_weight", block.Attention.QKVWeight},
			NamedTensor{prefix + "attention.qkv_bias", block.Attention.QKVBias},
			NamedTensor{prefix + "attention.out_weight", block.Attention.OutWeight},
			NamedTensor{prefix + "attention.out_bias", block.Attention.OutBias},
			NamedTensor{prefix + "ffn.w1", block.FFN.W1},
			NamedTensor{prefix + "ffn.b1", block.FFN.B1},
			NamedTensor{prefix + "ffn.w2", block.FFN.W2},
			NamedTensor{prefix + "ffn.b2", block.FFN.B2},
			NamedTensor{prefix + "ln1.weight", block.LN1.Weight},
			NamedTensor{prefix + "ln1.bias", block.LN1.Bias},
			NamedTensor{prefix + "ln2.weight", block.LN2.Weight},
			NamedTensor{prefix + "ln2.bias", block.LN2.Bias},
		)
	}
	weights = append(weights,
		NamedTensor{"final_norm.weight", m.FinalNorm.Weight},
		NamedTensor{"final_norm.bias", m.FinalNorm.Bias},
	)
	return weights
}

// NumParameters counts the scalars actually allocated. It must agree with
// Config.NumParameters for every valid config.
func (m *GPT) NumParameters() int64 {
	total := int64(0)
	for _, w := range m.NamedWeights() {
		total += int64(w.Tensor.Size())
	}
	return total
}
