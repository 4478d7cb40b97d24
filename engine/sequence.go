package engine

import "sync/atomic"

// SequenceStatus tracks where a sequence is in its lifetime.
type SequenceStatus int

const (
	StatusWaiting SequenceStatus = iota
	StatusRunning
	StatusFinished
)

var seqCounter int64

// Sequence is the growing token-id state of one generation request. It is
// owned by a single Generator call for its whole lifetime; independent
// requests never share one.
type Sequence struct {
	SeqID           int64
	Status          SequenceStatus
	TokenIDs        []int
	LastToken       int
	NumPromptTokens int
}

// NewSequence creates a sequence seeded with a copy of the prompt tokens.
func NewSequence(tokenIDs []int) *Sequence {
	tokens := make([]int, len(tokenIDs))
	copy(tokens, tokenIDs)

	return &Sequence{
		SeqID:           atomic.AddInt64(&seqCounter, 1) - 1,
		Status:          StatusWaiting,
		TokenIDs:        tokens,
		LastToken:       tokens[len(tokens)-1],
		NumPromptTokens: len(tokens),
	}
}

// Len returns the current number of tokens.
func (s *Sequence) Len() int {
	return len(s.TokenIDs)
}

// IsFinished reports whether generation for this sequence is done.
func (s *Sequence) IsFinished() bool {
	return s.Status == StatusFinished
}

// NumCompletionTokens returns how many tokens have been generated so far.
func (s *Sequence) NumCompletionTokens() int {
	return len(s.TokenIDs) - s.NumPromptTokens
}

// PromptTokenIDs returns the prompt portion of the sequence.
func (s *Sequence) PromptTokenIDs() []int {
	return s.TokenIDs[:s.NumPromptTokens]
}

// CompletionTokenIDs returns the generated portion of the sequence.
func (s *Sequence) CompletionTokenIDs() []int {
	return s.TokenIDs[s.NumPromptTokens:]
}

// AppendToken appends one generated token.
func (s *Sequence) AppendToken(tokenID int) {
	s.TokenIDs = append(s.TokenIDs, tokenID)
	s.LastToken = tokenID
}

// contextWindow returns the trailing window of at most maxSeqLen tokens that
// is fed to the model. Older tokens drop out of the model's view only; the
// sequence itself keeps them.
func (s *Sequence) contextWindow(maxSeqLen int) []int {
	if len(s.TokenIDs) <= maxSeqLen {
		return s.TokenIDs
	}
	return s.TokenIDs[len(s.TokenIDs)-maxSeqLen:]
}
