//go:build !whisper

package recognition

// WhisperRecognizer is a placeholder used when whisper.cpp is not linked.
// LoadModel always fails, so callers treat local recognition as absent.
type WhisperRecognizer struct {
	language string
	threads  int
}

// NewWhisperRecognizer creates a recognizer that cannot load models
func NewWhisperRecognizer(config Config) *WhisperRecognizer {
	return &WhisperRecognizer{language: config.Language, threads: config.Threads}
}

func (r *WhisperRecognizer) LoadModel(string) error { return ErrUnavailable }

func (r *WhisperRecognizer) Transcribe([]float32) (string, error) { return "", ErrUnavailable }

func (r *WhisperRecognizer) Close() error { return nil }
