package engine

import (
	"testing"
)

func TestSequenceCreation(t *testing.T) {
	seq := NewSequence([]int{1, 2, 3, 4, 5})

	if seq.Len() != 5 {
		t.Errorf("Expected length 5, got %d", seq.Len())
	}
	if seq.NumPromptTokens != 5 {
		t.Errorf("Expected 5 prompt tokens, got %d", seq.NumPromptTokens)
	}
	if seq.NumCompletionTokens() != 0 {
		t.Errorf("Expected 0 completion tokens, got %d", seq.NumCompletionTokens())
	}
	if seq.Status != StatusWaiting {
		t.Errorf("Expected status WAITING, got %v", seq.Status)
	}
}

func TestSequenceCopiesPrompt(t *testing.T) {
	prompt := []int{1, 2, 3}
	seq := NewSequence(prompt)

	prompt[0] = 99
	if seq.TokenIDs[0] != 1 {
		t.Error("sequence must own a copy of the prompt")
	}
}

func TestSequenceAppendToken(t *testing.T) {
	seq := NewSequence([]int{1, 2, 3})
	seq.AppendToken(4)

	if seq.Len() != 4 {
		t.Errorf("Expected length 4, got %d", seq.Len())
	}
	if seq.LastToken != 4 {
		t.Errorf("Expected last token 4, got %d", seq.LastToken)
	}
	if seq.NumCompletionTokens() != 1 {
		t.Errorf("Expected 1 completion token, got %d", seq.NumCompletionTokens())
	}
	if got := seq.CompletionTokenIDs(); len(got) != 1 || got[0] != 4 {
		t.Errorf("Unexpected completion tokens: %v", got)
	}
}

func TestSequenceContextWindow(t *testing.T) {
	seq := NewSequence([]int{0, 1, 2, 3, 4, 5, 6, 7})

	window := seq.contextWindow(4)
	if len(window) != 4 {
		t.Fatalf("Expected window of 4, got %d", len(window))
	}
	for i, want := range []int{4, 5, 6, 7} {
		if window[i] != want {
			t.Errorf("window[%d] = %d, want %d", i, window[i], want)
		}
	}

	full := seq.contextWindow(16)
	if len(full) != 8 {
		t.Errorf("short sequences should not be cropped, got %d", len(full))
	}
}
