package transcription

import (
	"fmt"
	"path/filepath"
	"time"
)

// Outcome tags the kind of Result
type Outcome int

const (
	// Success means a backend produced usable text
	Success Outcome = iota
	// NoSpeech means the file was too small or silent; no backend was called
	NoSpeech
	// Unavailable means every backend was absent or failed
	Unavailable
	// NotFound means the audio file does not exist
	NotFound
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NoSpeech:
		return "no_speech"
	case Unavailable:
		return "unavailable"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Transcribe call
type Result struct {
	Outcome   Outcome
	Text      string
	Backend   string
	Path      string
	Info      AudioInfo
	Generated time.Time
	Attempts  []Attempt
}

const timestampLayout = "2006-01-02 15:04:05"

// Render formats the result as the plain-text transcript report
func (r Result) Render() string {
	ts := r.Generated.Format(timestampLayout)
	file := filepath.Base(r.Path)

	switch r.Outcome {
	case Success:
		return fmt.Sprintf(`MEETING TRANSCRIPT
Generated: %s
Service: %s
File: %s
Duration: %.1fs

TRANSCRIPT:
%s

Transcription completed successfully.`, ts, r.Backend, file, r.Info.Duration, r.Text)

	case NoSpeech:
		return fmt.Sprintf(`MEETING TRANSCRIPT - ERROR
Generated: %s
File: %s
Duration: %.1fs

No speech detected in audio file.
Please record with active speech.`, ts, file, r.Info.Duration)

	case NotFound:
		return fmt.Sprintf(`MEETING TRANSCRIPT - NOT FOUND
Generated: %s
File: %s

Audio file not found.`, ts, file)

	default:
		return fmt.Sprintf(`MEETING TRANSCRIPT - FAILED
Generated: %s
File: %s
Duration: %.1fs

Transcription services unavailable or failed.
Check AssemblyAI and Whisper setup.`, ts, file, r.Info.Duration)
	}
}
