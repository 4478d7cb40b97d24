package model

import "fmt"

// ConfigError reports invalid hyperparameters discovered at construction
// time. It is always fatal: a model is never built from a bad config.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "invalid model config: " + e.Msg
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// SequenceTooLongError reports an input sequence that exceeds the model's
// maximum sequence length at forward-pass time. The caller may crop and
// retry; the model never does.
type SequenceTooLongError struct {
	SeqLen    int
	MaxSeqLen int
}

func (e *SequenceTooLongError) Error() string {
	return fmt.Sprintf("sequence length %d exceeds maximum %d", e.SeqLen, e.MaxSeqLen)
}

// NumericalError reports a non-finite or degenerate value produced during a
// forward pass or sampling step, such as zero probability mass after
// filtering. It surfaces loudly instead of letting garbage propagate.
type NumericalError struct {
	Op  string
	Msg string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("numerical error in %s: %s", e.Op, e.Msg)
}
