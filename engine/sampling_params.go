// Package engine drives autoregressive decoding over a model.GPT: it owns
// the growing token sequences, the temperature / top-k / top-p filtering
// policy and the greedy-or-sampled token selection. The loop is exposed one
// step at a time so a streaming caller can interleave I/O between tokens.
package engine

import "fmt"

// SamplingParams holds the decoding parameters for one generation request.
type SamplingParams struct {
	Temperature  float32 // logit divisor; must be > 0
	TopK         int     // keep the k highest logits; 0 disables
	TopP         float32 // nucleus threshold in (0, 1); 0 or 1 disables
	DoSample     bool    // sample from the distribution instead of argmax
	MaxNewTokens int     // tokens to generate per sequence
	EOS          int     // token id that ends a sequence early; -1 disables
	IgnoreEOS    bool    // keep generating even after EOS is produced
}

// SamplingOption is a functional option for SamplingParams.
type SamplingOption func(*SamplingParams)

// NewSamplingParams creates SamplingParams with defaults, applies the given
// options and validates the result. A temperature of zero is rejected here
// rather than treated as greedy; greedy decoding is requested explicitly
// with WithGreedy.
func NewSamplingParams(opts ...SamplingOption) (*SamplingParams, error) {
	sp := &SamplingParams{
		Temperature:  1.0,
		TopK:         0,
		TopP:         0,
		DoSample:     true,
		MaxNewTokens: 64,
		EOS:          -1,
	}

	for _, opt := range opts {
		opt(sp)
	}

	if err := sp.validate(); err != nil {
		return nil, err
	}
	return sp, nil
}

func (sp *SamplingParams) validate() error {
	if sp.Temperature <= 0 {
		return fmt.Errorf("temperature must be positive, got %g (use WithGreedy for deterministic decoding)", sp.Temperature)
	}
	if sp.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", sp.TopK)
	}
	if sp.TopP < 0 || sp.TopP > 1 {
		return fmt.Errorf("top_p must be in [0, 1], got %g", sp.TopP)
	}
	if sp.MaxNewTokens <= 0 {
		return fmt.Errorf("max_new_tokens must be positive, got %d", sp.MaxNewTokens)
	}
	return nil
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) SamplingOption {
	return func(sp *SamplingParams) { sp.Temperature = t }
}

// WithTopK keeps only the k highest-scoring logits per step.
func WithTopK(k int) SamplingOption {
	return func(sp *SamplingParams) { sp.TopK = k }
}

// WithTopP enables nucleus filtering with the given cumulative threshold.
func WithTopP(p float32) SamplingOption {
	return func(sp *SamplingParams) { sp.TopP = p }
}

// WithGreedy disables sampling; every step takes the argmax token.
func WithGreedy() SamplingOption {
	return func(sp *SamplingParams) { sp.DoSample = false }
}

// WithMaxNewTokens sets how many tokens to generate.
func WithMaxNewTokens(n int) SamplingOption {
	return func(sp *SamplingParams) { sp.MaxNewTokens = n }
}

// WithEOS enables early stop on the given token id.
func WithEOS(id int) SamplingOption {
	return func(sp *SamplingParams) { sp.EOS = id }
}

// WithIgnoreEOS keeps generating past EOS tokens.
func WithIgnoreEOS(b bool) SamplingOption {
	return func(sp *SamplingParams) { sp.IgnoreEOS = b }
}
