package transcription

import (
	"context"
	"fmt"

	"github.com/yok-tottii/meetscribe/internal/audio"
	"github.com/yok-tottii/meetscribe/internal/recognition"
)

// Local runs a whisper model on this machine
type Local struct {
	rec recognition.Recognizer
}

// NewLocal loads modelPath into rec once. On failure the caller should treat
// the local backend as absent.
func NewLocal(rec recognition.Recognizer, modelPath string) (*Local, error) {
	if modelPath == "" {
		return nil, ErrNotConfigured
	}
	if err := rec.LoadModel(modelPath); err != nil {
		return nil, fmt.Errorf("failed to load local model: %w", err)
	}
	return &Local{rec: rec}, nil
}

func (l *Local) Name() string { return "Whisper" }

// Transcribe decodes the file and feeds the model 16 kHz mono samples
func (l *Local) Transcribe(ctx context.Context, path string) (string, error) {
	pcm, err := audio.ReadWAV(path)
	if err != nil {
		return "", err
	}

	mono := audio.Downmix(pcm.Samples, pcm.Channels)
	samples := audio.Resample(mono, pcm.SampleRate, recognition.SampleRate)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	return l.rec.Transcribe(samples)
}

// Close releases the model
func (l *Local) Close() error {
	return l.rec.Close()
}
