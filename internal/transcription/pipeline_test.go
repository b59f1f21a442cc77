package transcription

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/meetscribe/internal/audio"
)

type fakeBackend struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Transcribe(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

func writeTone(t *testing.T, seconds float64, amplitude float32) string {
	t.Helper()
	frames := int(seconds * 44100)
	samples := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := amplitude * float32(math.Sin(2*math.Pi*440*float64(i)/44100))
		samples[2*i] = v
		samples[2*i+1] = v
	}
	path := filepath.Join(t.TempDir(), "meeting.wav")
	require.NoError(t, audio.WriteWAV(path, samples, 44100, 2))
	return path
}

var fixedTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedTime }

func TestAnalyze(t *testing.T) {
	path := writeTone(t, 1, 0.5)

	info := Analyze(path)
	assert.InDelta(t, 1.0, info.Duration, 1e-6)
	assert.InDelta(t, 0.5, info.Peak, 0.001)
	assert.Greater(t, info.FileSize, int64(MinFileSize))
	assert.False(t, info.TooSmall)
	assert.False(t, info.NoContent)
}

func TestAnalyze_DurationRoundTrip(t *testing.T) {
	samples := make([]float32, 3*1024*2)
	for i := range samples {
		samples[i] = 0.25
	}
	path := filepath.Join(t.TempDir(), "blocks.wav")
	require.NoError(t, audio.WriteWAV(path, samples, 44100, 2))

	info := Analyze(path)
	assert.InDelta(t, 0.0697, info.Duration, 0.0001)
}

func TestAnalyze_Undecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 4096)), 0644))

	info := Analyze(path)
	assert.Equal(t, AudioInfo{TooSmall: true, NoContent: true}, info)
}

func TestUsable(t *testing.T) {
	assert.False(t, Usable(""))
	assert.False(t, Usable("   0123456789   "))
	assert.True(t, Usable("0123456789a"))
	assert.False(t, Usable("こんにちは世界です"))
	assert.True(t, Usable("こんにちは、世界の皆さん"))
}

func TestTranscribe_SilenceShortCircuit(t *testing.T) {
	primary := &fakeBackend{name: "AssemblyAI", text: "should never be returned"}
	secondary := &fakeBackend{name: "Whisper", text: "should never be returned"}
	p := New(primary, secondary, WithClock(clock))

	res := p.Transcribe(context.Background(), writeTone(t, 1, 0))

	assert.Equal(t, NoSpeech, res.Outcome)
	assert.Zero(t, primary.calls)
	assert.Zero(t, secondary.calls)
	assert.Empty(t, res.Attempts)
	assert.Contains(t, res.Render(), "No speech detected in audio file.")
}

func TestTranscribe_TooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.wav")
	require.NoError(t, audio.WriteWAV(path, []float32{0.9, 0.9, -0.9, -0.9}, 44100, 2))

	primary := &fakeBackend{name: "AssemblyAI", text: "a perfectly fine transcript"}
	res := New(primary, nil).Transcribe(context.Background(), path)

	assert.Equal(t, NoSpeech, res.Outcome)
	assert.True(t, res.Info.TooSmall)
	assert.Zero(t, primary.calls)
}

func TestTranscribe_PrimaryWins(t *testing.T) {
	primary := &fakeBackend{name: "AssemblyAI", text: "  The quarterly numbers look good.  "}
	secondary := &fakeBackend{name: "Whisper", text: "unused local transcript"}
	p := New(primary, secondary, WithClock(clock))

	res := p.Transcribe(context.Background(), writeTone(t, 1, 0.5))

	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, "The quarterly numbers look good.", res.Text)
	assert.Equal(t, "AssemblyAI", res.Backend)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, secondary.calls)
	require.Len(t, res.Attempts, 1)
	assert.NoError(t, res.Attempts[0].Err)
}

func TestTranscribe_FallsThroughOnShortText(t *testing.T) {
	primary := &fakeBackend{name: "AssemblyAI", text: "uh huh"}
	secondary := &fakeBackend{name: "Whisper", text: "Let's move on to the roadmap."}
	p := New(primary, secondary)

	res := p.Transcribe(context.Background(), writeTone(t, 1, 0.5))

	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, "Whisper", res.Backend)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
	require.Len(t, res.Attempts, 2)
	assert.ErrorIs(t, res.Attempts[0].Err, ErrNoUsableContent)
	assert.NoError(t, res.Attempts[1].Err)
}

func TestTranscribe_FallsThroughOnError(t *testing.T) {
	boom := errors.New("503 service unavailable")
	primary := &fakeBackend{name: "AssemblyAI", err: boom}
	secondary := &fakeBackend{name: "Whisper", text: "Action items are assigned."}

	res := New(primary, secondary).Transcribe(context.Background(), writeTone(t, 1, 0.5))

	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, "Whisper", res.Backend)

	var backendErr *BackendError
	require.ErrorAs(t, res.Attempts[0].Err, &backendErr)
	assert.Equal(t, "AssemblyAI", backendErr.Backend)
	assert.ErrorIs(t, res.Attempts[0].Err, boom)
}

func TestTranscribe_Unavailable(t *testing.T) {
	primary := &fakeBackend{name: "AssemblyAI", err: errors.New("timeout")}
	secondary := &fakeBackend{name: "Whisper", text: "short"}
	p := New(primary, secondary, WithClock(clock))

	res := p.Transcribe(context.Background(), writeTone(t, 1, 0.5))

	assert.Equal(t, Unavailable, res.Outcome)
	assert.InDelta(t, 1.0, res.Info.Duration, 1e-6)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
	assert.Contains(t, res.Render(), "MEETING TRANSCRIPT - FAILED")
	assert.Contains(t, res.Render(), "Duration: 1.0s")
}

func TestTranscribe_NoBackends(t *testing.T) {
	res := New(nil, nil).Transcribe(context.Background(), writeTone(t, 1, 0.5))

	assert.Equal(t, Unavailable, res.Outcome)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, "primary", res.Attempts[0].Backend)
	assert.ErrorIs(t, res.Attempts[0].Err, ErrNotConfigured)
	assert.Equal(t, "secondary", res.Attempts[1].Backend)
	assert.ErrorIs(t, res.Attempts[1].Err, ErrNotConfigured)
}

func TestTranscribe_SecondaryOnly(t *testing.T) {
	secondary := &fakeBackend{name: "Whisper", text: "Only the local model is set up."}

	res := New(nil, secondary).Transcribe(context.Background(), writeTone(t, 1, 0.5))

	assert.Equal(t, Success, res.Outcome)
	assert.ErrorIs(t, res.Attempts[0].Err, ErrNotConfigured)
}

func TestTranscribe_NotFound(t *testing.T) {
	primary := &fakeBackend{name: "AssemblyAI"}
	p := New(primary, nil, WithClock(clock))

	res := p.Transcribe(context.Background(), filepath.Join(t.TempDir(), "gone.wav"))

	assert.Equal(t, NotFound, res.Outcome)
	assert.Zero(t, primary.calls)
	assert.Equal(t, `MEETING TRANSCRIPT - NOT FOUND
Generated: 2025-03-14 09:30:00
File: gone.wav

Audio file not found.`, res.Render())
}

func TestTranscribe_Cancelled(t *testing.T) {
	primary := &fakeBackend{name: "AssemblyAI", text: "never reached transcript"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(primary, nil).Transcribe(ctx, writeTone(t, 1, 0.5))

	assert.Equal(t, Unavailable, res.Outcome)
	assert.Zero(t, primary.calls)
	assert.ErrorIs(t, res.Attempts[0].Err, context.Canceled)
}

func TestBackends(t *testing.T) {
	assert.Empty(t, New(nil, nil).Backends())
	assert.Equal(t, []string{"Whisper"}, New(nil, &fakeBackend{name: "Whisper"}).Backends())
	assert.Equal(t, []string{"OpenAI", "Whisper"},
		New(&fakeBackend{name: "OpenAI"}, &fakeBackend{name: "Whisper"}).Backends())
}
