package transcription

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yok-tottii/meetscribe/internal/audio"
	"github.com/yok-tottii/meetscribe/internal/logger"
)

const (
	// MinFileSize is the smallest file, in bytes, considered to hold audio
	MinFileSize = 1000
	// SilenceThreshold is the peak amplitude below which a file is silent
	SilenceThreshold = 0.001
	// MinTextLength is the number of characters a transcript must exceed
	MinTextLength = 10
)

// AudioInfo is computed fresh for every transcription
type AudioInfo struct {
	Duration  float64 // seconds
	FileSize  int64
	Peak      float64
	TooSmall  bool
	NoContent bool
}

// Pipeline tries a primary backend, then a secondary one
type Pipeline struct {
	primary   Backend
	secondary Backend
	log       logger.Interface
	now       func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(log logger.Interface) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithClock overrides the time source used for report timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. Either backend may be nil; which ones are present
// is fixed for the life of the pipeline.
func New(primary, secondary Backend, opts ...Option) *Pipeline {
	p := &Pipeline{
		primary:   primary,
		secondary: secondary,
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Backends returns the names of the configured backends in call order
func (p *Pipeline) Backends() []string {
	var names []string
	for _, b := range []Backend{p.primary, p.secondary} {
		if b != nil {
			names = append(names, b.Name())
		}
	}
	return names
}

// Analyze decodes the file and reports its size, duration and peak.
// Files that cannot be decoded count as too small and silent.
func Analyze(path string) AudioInfo {
	stat, err := os.Stat(path)
	if err != nil {
		return AudioInfo{TooSmall: true, NoContent: true}
	}

	pcm, err := audio.ReadWAV(path)
	if err != nil {
		return AudioInfo{TooSmall: true, NoContent: true}
	}

	peak := pcm.Peak()
	return AudioInfo{
		Duration:  pcm.Duration(),
		FileSize:  stat.Size(),
		Peak:      peak,
		TooSmall:  stat.Size() < MinFileSize,
		NoContent: peak < SilenceThreshold,
	}
}

// Usable reports whether text is long enough to count as a transcript
func Usable(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > MinTextLength
}

// Transcribe runs the file through the backends. Expected failures are
// reported in the Result, never as an error.
func (p *Pipeline) Transcribe(ctx context.Context, path string) Result {
	res := Result{Path: path, Generated: p.now()}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		p.log.Warn("Audio file not found: %s", path)
		res.Outcome = NotFound
		return res
	}

	res.Info = Analyze(path)
	if res.Info.TooSmall || res.Info.NoContent {
		p.log.Info("No speech in %s (size=%d peak=%.4f)", path, res.Info.FileSize, res.Info.Peak)
		res.Outcome = NoSpeech
		return res
	}

	slots := []struct {
		name    string
		backend Backend
	}{
		{"primary", p.primary},
		{"secondary", p.secondary},
	}

	for _, slot := range slots {
		if slot.backend == nil {
			res.Attempts = append(res.Attempts, Attempt{Backend: slot.name, Err: ErrNotConfigured})
			continue
		}

		name := slot.backend.Name()
		if err := ctx.Err(); err != nil {
			res.Attempts = append(res.Attempts, Attempt{Backend: name, Err: err})
			continue
		}

		start := time.Now()
		text, err := slot.backend.Transcribe(ctx, path)
		if err != nil {
			p.log.Warn("%s transcription failed: %v", name, err)
			res.Attempts = append(res.Attempts, Attempt{Backend: name, Err: &BackendError{Backend: name, Err: err}})
			continue
		}

		text = strings.TrimSpace(text)
		if !Usable(text) {
			p.log.Info("%s returned %d characters, not usable", name, utf8.RuneCountInString(text))
			res.Attempts = append(res.Attempts, Attempt{Backend: name, Err: ErrNoUsableContent})
			continue
		}

		p.log.Info("%s transcribed %s in %v", name, path, time.Since(start))
		res.Attempts = append(res.Attempts, Attempt{Backend: name})
		res.Outcome = Success
		res.Text = text
		res.Backend = name
		return res
	}

	res.Outcome = Unavailable
	return res
}
