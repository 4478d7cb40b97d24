// Package model implements a GPT-style autoregressive transformer language
// model: token/position embeddings, stacked pre-norm causal self-attention
// and feed-forward blocks, and a weight-tied output head. The model operates
// purely on integer token-id sequences; tokenization, persistence and
// serving live outside this package.
package model

import "strings"

// Activation identifiers for the feed-forward nonlinearity.
const (
	ActivationGELU  = "gelu"
	ActivationReLU  = "relu"
	ActivationSwish = "swish"
)

// Config holds the model hyperparameters. It is immutable after NewConfig
// returns; nothing in this package mutates it.
type Config struct {
	VocabSize int // size of the token id space
	MaxSeqLen int // longest sequence accepted by one forward call
	EmbedDim  int // width of every hidden vector
	NumLayers int // number of stacked transformer blocks
	NumHeads  int // attention head count; must divide EmbedDim
	FFDim     int // feed-forward inner width; defaults to 4*EmbedDim

	Dropout          float32 // residual/embedding dropout rate, training only
	AttentionDropout float32 // attention-weight dropout rate, training only

	Activation string // one of gelu, relu, swish

	LayerNormEps float32
	InitStd      float64
}

// ConfigOption is a functional option for Config.
type ConfigOption func(*Config)

// NewConfig creates a Config with GPT-2-style defaults, applies the given
// options and validates the result. Invalid hyperparameters yield a
// *ConfigError.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := &Config{
		VocabSize:        50257,
		MaxSeqLen:        1024,
		EmbedDim:         768,
		NumLayers:        12,
		NumHeads:         12,
		FFDim:            0,
		Dropout:          0.1,
		AttentionDropout: 0.1,
		Activation:       ActivationGELU,
		LayerNormEps:     1e-5,
		InitStd:          0.02,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.FFDim == 0 {
		c.FFDim = 4 * c.EmbedDim
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the config invariants, returning a *ConfigError on the
// first violation. NewConfig calls it; deserialized configs should too.
func (c *Config) Validate() error {
	if c.VocabSize <= 0 {
		return configErrorf("vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.MaxSeqLen <= 0 {
		return configErrorf("max_seq_len must be positive, got %d", c.MaxSeqLen)
	}
	if c.EmbedDim <= 0 {
		return configErrorf("embed_dim must be positive, got %d", c.EmbedDim)
	}
	if c.NumLayers <= 0 {
		return configErrorf("num_layers must be positive, got %d", c.NumLayers)
	}
	if c.NumHeads <= 0 {
		return configErrorf("num_heads must be positive, got %d", c.NumHeads)
	}
	if c.EmbedDim%c.NumHeads != 0 {
		return configErrorf("embed_dim (%d) must be divisible by num_heads (%d)", c.EmbedDim, c.NumHeads)
	}
	if c.FFDim <= 0 {
		return configErrorf("ff_dim must be positive, got %d", c.FFDim)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return configErrorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.AttentionDropout < 0 || c.AttentionDropout >= 1 {
		return configErrorf("attention_dropout must be in [0, 1), got %g", c.AttentionDropout)
	}
	switch c.Activation {
	case ActivationGELU, ActivationReLU, ActivationSwish:
	default:
		return configErrorf("unknown activation: %q", c.Activation)
	}
	if c.LayerNormEps <= 0 {
		return configErrorf("layer_norm_eps must be positive, got %g", c.LayerNormEps)
	}
	return nil
}

// HeadDim returns the width of one attention head.
func (c *Config) HeadDim() int {
	return c.EmbedDim / c.NumHeads
}

// NumParameters returns the closed-form count of learned scalars in a model
// built from this config. The output head shares storage with the token
// embedding table (weight tying), so it contributes nothing beyond the
// embedding itself; the count matches exactly what New allocates.
func (c *Config) NumParameters() int64 {
	C := int64(c.EmbedDim)
	F := int64(c.FFDim)

	tokenEmbed := int64(c.VocabSize) * C
	posEmbed := int64(c.MaxSeqLen) * C

	// Per block: combined QKV projection, output projection, two FFN
	// linears (all with biases) and two LayerNorms.
	attn := C*3*C + 3*C + C*C + C
	ffn := C*F + F + F*C + C
	norms := int64(4) * C
	perLayer := attn + ffn + norms

	finalNorm := int64(2) * C

	return tokenEmbed + posEmbed + int64(c.NumLayers)*perLayer + finalNorm
}

// WithVocabSize sets the token id space size.
func WithVocabSize(n int) ConfigOption {
	return func(c *Config) { c.VocabSize = n }
}

// WithMaxSeqLen sets the maximum sequence length.
func WithMaxSeqLen(n int) ConfigOption {
	return func(c *Config) { c.MaxSeqLen = n }
}

// WithEmbedDim sets the embedding width.
func WithEmbedDim(n int) ConfigOption {
	return func(c *Config) { c.EmbedDim = n }
}

// WithNumLayers sets the number of transformer blocks.
func WithNumLayers(n int) ConfigOption {
	return func(c *Config) { c.NumLayers = n }
}

// WithNumHeads sets the attention head count.
func WithNumHeads(n int) ConfigOption {
	return func(c *Config) { c.NumHeads = n }
}

// WithFFDim sets the feed-forward inner width.
func WithFFDim(n int) ConfigOption {
	return func(c *Config) { c.FFDim = n }
}

// WithDropout sets both dropout rates.
func WithDropout(p float32) ConfigOption {
	return func(c *Config) {
		c.Dropout = p
		c.AttentionDropout = p
	}
}

// WithActivation selects the feed-forward nonlinearity.
func WithActivation(name string) ConfigOption {
	return func(c *Config) { c.Activation = name }
}

// WithInitStd sets the weight-initialization standard deviation.
func WithInitStd(std float64) ConfigOption {
	return func(c *Config) { c.InitStd = std }
}

// SmallConfig returns the 6-layer / 384-wide preset.
func SmallConfig() *Config {
	c, _ := NewConfig(
		WithMaxSeqLen(512),
		WithEmbedDim(384),
		WithNumLayers(6),
		WithNumHeads(6),
	)
	return c
}

// MediumConfig returns the 12-layer / 768-wide preset.
func MediumConfig() *Config {
	c, _ := NewConfig()
	return c
}

// LargeConfig returns the 24-layer / 1536-wide preset.
func LargeConfig() *Config {
	c, _ := NewConfig(
		WithMaxSeqLen(2048),
		WithEmbedDim(1536),
		WithNumLayers(24),
		WithNumHeads(16),
	)
	return c
}

// XLConfig returns the 32-layer / 2048-wide preset.
func XLConfig() *Config {
	c, _ := NewConfig(
		WithMaxSeqLen(2048),
		WithEmbedDim(2048),
		WithNumLayers(32),
		WithNumHeads(32),
	)
	return c
}

// GetConfig looks up a named preset. Unknown names yield a *ConfigError.
func GetConfig(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "small":
		return SmallConfig(), nil
	case "medium":
		return MediumConfig(), nil
	case "large":
		return LargeConfig(), nil
	case "xl":
		return XLConfig(), nil
	default:
		return nil, configErrorf("unknown config: %q (available: small, medium, large, xl)", name)
	}
}
