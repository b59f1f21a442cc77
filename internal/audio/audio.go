package audio

import "errors"

// ErrInputOverflowed is returned by Input.Read when the device dropped frames
// before the read. The block is still filled and usable.
var ErrInputOverflowed = errors.New("input overflowed")

// Device represents an audio input device
type Device struct {
	ID        int
	Name      string
	Channels  int
	IsDefault bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// ParseLatency maps the config values "low" and "high" to a LatencyMode
func ParseLatency(s string) LatencyMode {
	if s == "low" {
		return LowLatency
	}
	return HighStability
}

// Config holds audio configuration
type Config struct {
	DeviceID       int
	SampleRate     int
	Channels       int
	FramesPerBlock int
	Latency        LatencyMode
}

// DefaultConfig returns the capture configuration used for meeting recordings
// Sample rate: 44.1kHz
// Channels: 2 (interleaved)
// Block: 1024 frames
func DefaultConfig() Config {
	return Config{
		DeviceID:       -1, // -1 means use default device
		SampleRate:     44100,
		Channels:       2,
		FramesPerBlock: 1024,
		Latency:        HighStability,
	}
}

// BlockLen returns the number of interleaved samples in one block
func (c Config) BlockLen() int {
	return c.FramesPerBlock * c.Channels
}

// Input is an open, running capture stream.
// Read blocks until one full block of interleaved float32 samples is available
// and copies it into block, which must be BlockLen() long.
type Input interface {
	Read(block []float32) error
	Close() error
}

// Driver is the interface for audio input
// This abstraction allows tests to substitute a synthetic device for PortAudio
type Driver interface {
	// ListDevices returns a list of available audio input devices
	ListDevices() ([]Device, error)

	// Open opens and starts an input stream with the given configuration
	Open(config Config) (Input, error)

	// Close releases all resources
	Close() error
}
