// Command generate runs the autoregressive decoding loop from the command
// line. It operates on raw token ids; encoding text to ids and back is the
// job of an external tokenizer.
package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/red9inja/red9inja-GPT/checkpoint"
	"github.com/red9inja/red9inja-GPT/engine"
	"github.com/red9inja/red9inja-GPT/model"
)

func main() {
	preset := flag.String("preset", "small", "model preset: small, medium, large, xl")
	seed := flag.Int64("seed", 42, "weight initialization seed")
	ckptPath := flag.String("checkpoint", "", "load weights from this checkpoint instead of random init")
	savePath := flag.String("save", "", "write the model's weights to this checkpoint after generation")
	prompt := flag.String("prompt", "", "comma-separated prompt token ids")
	maxNewTokens := flag.Int("max-new-tokens", 64, "number of tokens to generate")
	temperature := flag.Float64("temperature", 1.0, "sampling temperature")
	topK := flag.Int("top-k", 0, "top-k filtering (0 disables)")
	topP := flag.Float64("top-p", 0, "nucleus filtering threshold (0 disables)")
	greedy := flag.Bool("greedy", false, "argmax decoding instead of sampling")
	sampleSeed := flag.Int64("sample-seed", 1, "sampling seed")
	eos := flag.Int("eos", -1, "stop early on this token id (-1 disables)")

	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	promptIDs, err := parseTokenIDs(*prompt)
	if err != nil {
		klog.Exitf("bad -prompt: %v", err)
	}

	var m *model.GPT
	if *ckptPath != "" {
		m, err = checkpoint.Load(*ckptPath)
		if err != nil {
			klog.Exitf("failed to load checkpoint: %v", err)
		}
	} else {
		cfg, err := model.GetConfig(*preset)
		if err != nil {
			klog.Exitf("%v", err)
		}
		m = model.New(cfg, *seed)
	}

	fmt.Printf("model: %d layers, %d heads, %s parameters, context %d\n",
		m.Config.NumLayers, m.Config.NumHeads,
		humanize.Comma(m.NumParameters()), m.Config.MaxSeqLen)

	opts := []engine.SamplingOption{
		engine.WithTemperature(float32(*temperature)),
		engine.WithMaxNewTokens(*maxNewTokens),
	}
	if *topK > 0 {
		opts = append(opts, engine.WithTopK(*topK))
	}
	if *topP > 0 {
		opts = append(opts, engine.WithTopP(float32(*topP)))
	}
	if *greedy {
		opts = append(opts, engine.WithGreedy())
	}
	if *eos >= 0 {
		opts = append(opts, engine.WithEOS(*eos))
	}

	params, err := engine.NewSamplingParams(opts...)
	if err != nil {
		klog.Exitf("bad sampling parameters: %v", err)
	}

	gen := engine.NewGenerator(m, params, engine.WithSeed(*sampleSeed))
	out, err := gen.GenerateWithProgress([][]int{promptIDs})
	if err != nil {
		klog.Exitf("generation failed: %v", err)
	}

	fmt.Printf("prompt:    %v\n", promptIDs)
	fmt.Printf("generated: %v\n", out[0][len(promptIDs):])

	if *savePath != "" {
		if err := checkpoint.Save(*savePath, m); err != nil {
			klog.Exitf("failed to save checkpoint: %v", err)
		}
		fmt.Printf("saved weights to %s\n", *savePath)
	}
}

func parseTokenIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("prompt is required, e.g. -prompt 5,7,2")
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("token id %q is not an integer", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
