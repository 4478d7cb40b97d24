package engine

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/red9inja/red9inja-GPT/model"
)

// Generator runs the autoregressive decoding loop. Step advances every
// unfinished sequence by one token, so a streaming caller can forward each
// token before asking for the next; Generate drives Step to completion.
// Each generation step recomputes the full forward pass over the context
// window; there is no cross-step key/value reuse.
type Generator struct {
	model  *model.GPT
	params *SamplingParams
	rng    *rand.Rand
}

// GeneratorOption is a functional option for Generator.
type GeneratorOption func(*Generator)

// WithSeed seeds the sampling generator, for reproducible stochastic runs.
func WithSeed(seed int64) GeneratorOption {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

// NewGenerator creates a generator for the given model and parameters.
func NewGenerator(m *model.GPT, params *SamplingParams, opts ...GeneratorOption) *Generator {
	g := &Generator{
		model:  m,
		params: params,
		rng:    rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Step advances each unfinished sequence by one token. Sequences whose
// context windows have equal length share one batched forward pass. Any
// forward or sampling failure aborts the step; nothing is retried.
func (g *Generator) Step(seqs []*Sequence) error {
	maxSeqLen := g.model.Config.MaxSeqLen

	groups := make(map[int][]*Sequence)
	lengths := make([]int, 0, len(seqs))
	for _, seq := range seqs {
		if seq.IsFinished() {
			continue
		}
		seq.Status = StatusRunning
		n := len(seq.contextWindow(maxSeqLen))
		if _, ok := groups[n]; !ok {
			lengths = append(lengths, n)
		}
		groups[n] = append(groups[n], seq)
	}
	sort.Ints(lengths)

	vocab := g.model.Config.VocabSize
	for _, n := range lengths {
		group := groups[n]
		ids := make([][]int, len(group))
		for i, seq := range group {
			ids[i] = seq.contextWindow(maxSeqLen)
		}

		logits, err := g.model.Forward(ids)
		if err != nil {
			return errors.Wrap(err, "forward pass failed")
		}

		for i, seq := range group {
			// Only the final position predicts the next token.
			row := logits.Data[(i*n+n-1)*vocab : (i*n+n)*vocab]
			next, err := SampleLogits(row, g.params, g.rng)
			if err != nil {
				return errors.Wrapf(err, "sampling failed for sequence %d", seq.SeqID)
			}
			seq.AppendToken(next)

			if seq.NumCompletionTokens() >= g.params.MaxNewTokens {
				seq.Status = StatusFinished
			} else if g.params.EOS >= 0 && !g.params.IgnoreEOS && next == g.params.EOS {
				seq.Status = StatusFinished
			}
		}
	}

	return nil
}

// Generate extends each prompt by up to MaxNewTokens tokens and returns the
// full sequences, prompts included, in prompt order.
func (g *Generator) Generate(prompts [][]int) ([][]int, error) {
	return g.generate(prompts, nil)
}

// GenerateWithProgress is Generate with a progress bar over decode steps.
func (g *Generator) GenerateWithProgress(prompts [][]int) ([][]int, error) {
	bar := progressbar.NewOptions(g.params.MaxNewTokens,
		progressbar.OptionSetDescription("Generating"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return g.generate(prompts, bar)
}

func (g *Generator) generate(prompts [][]int, bar *progressbar.ProgressBar) ([][]int, error) {
	seqs := make([]*Sequence, len(prompts))
	for i, prompt := range prompts {
		if len(prompt) == 0 {
			return nil, errors.Errorf("prompt %d is empty", i)
		}
		seqs[i] = NewSequence(prompt)
	}

	for !allFinished(seqs) {
		if err := g.Step(seqs); err != nil {
			return nil, err
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	out := make([][]int, len(seqs))
	for i, seq := range seqs {
		out[i] = seq.TokenIDs
	}
	return out, nil
}

func allFinished(seqs []*Sequence) bool {
	for _, seq := range seqs {
		if !seq.IsFinished() {
			return false
		}
	}
	return true
}

// SampleLogits selects one token from a single position's logits. The
// filtering order is fixed: temperature, then top-k, then top-p, then a
// softmax over the survivors; do_sample picks stochastically, otherwise the
// argmax wins with ties broken by lowest index. Zero surviving probability
// mass is a *model.NumericalError, never a silent fallback.
func SampleLogits(logits []float32, params *SamplingParams, rng *rand.Rand) (int, error) {
	filtered := make([]float32, len(logits))
	for i, v := range logits {
		filtered[i] = v / params.Temperature
	}

	if params.TopK > 0 {
		topKFilter(filtered, params.TopK)
	}
	if params.TopP > 0 && params.TopP < 1 {
		topPFilter(filtered, params.TopP)
	}

	probs, ok := softmax(filtered)
	if !ok {
		return 0, &model.NumericalError{Op: "sample", Msg: "no probability mass after filtering"}
	}

	if !params.DoSample {
		best := 0
		for i, p := range probs {
			if p > probs[best] {
				best = i
			}
		}
		return best, nil
	}

	return multinomial(probs, rng)
}

// topKFilter keeps the k highest logits and pins the rest to -Inf. Values
// equal to the k-th largest all survive, matching the reference behavior.
func topKFilter(logits []float32, k int) {
	if k >= len(logits) {
		return
	}

	sorted := make([]float32, len(logits))
	copy(sorted, logits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	threshold := sorted[k-1]

	negInf := float32(math.Inf(-1))
	for i, v := range logits {
		if v < threshold {
			logits[i] = negInf
		}
	}
}

// topPFilter masks every token whose position in probability-sorted order
// comes after cumulative probability first exceeds p. The highest-probability
// token always survives, even when its own probability already exceeds p;
// top-k has already run by the time this is applied.
func topPFilter(logits []float32, p float32) {
	order := make([]int, len(logits))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return logits[order[a]] > logits[order[b]] })

	sortedLogits := make([]float32, len(logits))
	for pos, idx := range order {
		sortedLogits[pos] = logits[idx]
	}
	probs, ok := softmax(sortedLogits)
	if !ok {
		return
	}

	negInf := float32(math.Inf(-1))
	cum := float32(0)
	for pos, idx := range order {
		if pos > 0 && cum > p {
			logits[idx] = negInf
		}
		cum += probs[pos]
	}
}

// softmax returns the max-subtracted softmax of logits, or ok=false when the
// distribution is degenerate (all -Inf, or a NaN slipped in).
func softmax(logits []float32) ([]float32, bool) {
	maxVal := float32(math.Inf(-1))
	for _, v := range logits {
		if v > maxVal {
			maxVal = v
		}
	}
	if math.IsInf(float64(maxVal), -1) || math.IsNaN(float64(maxVal)) {
		return nil, false
	}

	probs := make([]float32, len(logits))
	sum := float32(0)
	for i, v := range logits {
		e := float32(math.Exp(float64(v - maxVal)))
		probs[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(float64(sum)) {
		return nil, false
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, true
}

// multinomial draws one index from a probability distribution.
func multinomial(probs []float32, rng *rand.Rand) (int, error) {
	cum := make([]float32, len(probs))
	total := float32(0)
	for i, p := range probs {
		total += p
		cum[i] = total
	}
	if total <= 0 || math.IsNaN(float64(total)) {
		return 0, &model.NumericalError{Op: "multinomial", Msg: "non-positive probability mass"}
	}

	// Strict comparison keeps a draw that lands exactly on a boundary
	// from selecting a zero-probability entry: leading zeros leave
	// cum[i] == r, not greater.
	r := rng.Float32() * total
	idx := sort.Search(len(cum), func(i int) bool { return cum[i] > r })
	if idx >= len(probs) {
		idx = len(probs) - 1
	}
	for idx > 0 && probs[idx] == 0 {
		idx--
	}
	return idx, nil
}
