package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDriver implements Driver using PortAudio blocking streams
type PortAudioDriver struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioDriver creates a new PortAudio driver
func NewPortAudioDriver() (*PortAudioDriver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioDriver{initialized: true}, nil
}

// ListDevices returns a list of available audio input devices
func (d *PortAudioDriver) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// If we can't get the default device, continue without marking any as default
		defaultInput = nil
	}

	var result []Device
	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:        i,
			Name:      dev.Name,
			Channels:  dev.MaxInputChannels,
			IsDefault: defaultInput != nil && dev.Name == defaultInput.Name,
		})
	}

	return result, nil
}

func (d *PortAudioDriver) device(id int) (*portaudio.DeviceInfo, error) {
	if id == -1 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", id)
	}
	return devices[id], nil
}

// Open opens a blocking input stream and starts it
func (d *PortAudioDriver) Open(config Config) (Input, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, fmt.Errorf("driver not initialized")
	}

	device, err := d.device(config.DeviceID)
	if err != nil {
		return nil, err
	}

	if device.MaxInputChannels < config.Channels {
		return nil, fmt.Errorf("device '%s' (ID: %d) has %d input channels, need %d",
			device.Name, config.DeviceID, device.MaxInputChannels, config.Channels)
	}

	var latency time.Duration
	switch config.Latency {
	case LowLatency:
		latency = device.DefaultLowInputLatency
	default:
		latency = device.DefaultHighInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: config.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: config.FramesPerBlock,
	}

	// Passing a buffer instead of a callback selects blocking I/O; Read fills it.
	buf := make([]float32, config.BlockLen())
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	return &portAudioInput{stream: stream, buf: buf}, nil
}

// Close terminates PortAudio
func (d *PortAudioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}

	d.initialized = false
	return nil
}

type portAudioInput struct {
	stream *portaudio.Stream
	buf    []float32
}

// Read blocks on the device and copies the stream buffer into block.
// The stream buffer is reused by PortAudio on every read, so callers always
// receive their own copy.
func (in *portAudioInput) Read(block []float32) error {
	if len(block) != len(in.buf) {
		return fmt.Errorf("block length %d does not match stream buffer %d", len(block), len(in.buf))
	}

	err := in.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return fmt.Errorf("read from input stream: %w", err)
	}

	copy(block, in.buf)

	if err != nil {
		return ErrInputOverflowed
	}
	return nil
}

func (in *portAudioInput) Close() error {
	stopErr := in.stream.Stop()
	closeErr := in.stream.Close()
	if stopErr != nil {
		return fmt.Errorf("failed to stop stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close stream: %w", closeErr)
	}
	return nil
}
