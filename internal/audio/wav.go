package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file is not a readable RIFF/WAVE PCM file
var ErrInvalidWAV = errors.New("not a valid WAV file")

// wavBitDepth is the on-disk sample width for recordings
const wavBitDepth = 16

// pcmScale maps between normalized floats and 16-bit integers. Using 2^15 in
// both directions keeps k/32768 values exact through a write/read cycle.
const pcmScale = 32768.0

// PCM is a decoded, normalized, interleaved sample sequence
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of multi-channel frames
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the length in seconds (frames / sample rate)
func (p *PCM) Duration() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// Peak returns the largest absolute sample value
func (p *PCM) Peak() float64 {
	var peak float64
	for _, s := range p.Samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

func floatToPCM16(s float32) int {
	v := math.Round(float64(s) * pcmScale)
	return int(math.Max(-pcmScale, math.Min(pcmScale-1, v)))
}

// WriteWAV writes interleaved float samples as 16-bit PCM
func WriteWAV(path string, samples []float32, sampleRate, channels int) error {
	if channels <= 0 || sampleRate <= 0 {
		return fmt.Errorf("invalid format: %d Hz, %d channels", sampleRate, channels)
	}
	if len(samples)%channels != 0 {
		return fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), channels)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = floatToPCM16(s)
	}

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: wavBitDepth,
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return f.Close()
}

// ReadWAV decodes a PCM WAV file into normalized float samples
func ReadWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if d.BitDepth < 8 || d.BitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav data: %w", err)
	}

	pcm := &PCM{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		Samples:    make([]float32, len(buf.Data)),
	}

	// 8-bit PCM is unsigned with silence at 128; wider depths are signed.
	var offset int
	if d.BitDepth == 8 {
		offset = 128
	}
	scale := float32(uint64(1) << (d.BitDepth - 1))
	for i, v := range buf.Data {
		pcm.Samples[i] = float32(v-offset) / scale
	}

	return pcm, nil
}
