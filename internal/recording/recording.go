package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/yok-tottii/meetscribe/internal/audio"
	"github.com/yok-tottii/meetscribe/internal/logger"
)

var (
	// ErrSessionActive is returned by Start while a session is recording or finalizing
	ErrSessionActive = errors.New("a capture session is already active")
	// ErrNotRecording is returned by Stop when no session was started
	ErrNotRecording = errors.New("no capture session is recording")
)

// DirectoryError reports that the target directory could not be created
type DirectoryError struct {
	Dir string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("cannot create recording directory %s: %v", e.Dir, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// DeviceError reports a failure opening or reading the input device.
// It ends the capture loop; blocks captured before it are kept.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s failed: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// State represents the current recording state
type State int

const (
	// Idle means no session is active
	Idle State = iota
	// Recording means the capture loop is running
	Recording
	// Finalizing means Stop is waiting for the loop and writing the file
	Finalizing
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Finalizing:
		return "Finalizing"
	default:
		return "Unknown"
	}
}

// Recorder captures one session at a time from an audio driver and persists
// it as a single WAV file on Stop.
//
// The blocks slice is owned by the capture goroutine while it runs. Stop reads
// it only after the goroutine has closed done, so no lock covers it.
//
// A device read that never returns keeps Stop waiting; there is no timeout.
type Recorder struct {
	driver audio.Driver
	config audio.Config
	log    logger.Interface

	mu        sync.Mutex
	state     State
	sessionID string
	dir       string
	done      chan struct{}

	running  atomic.Bool
	captured atomic.Int64
	blocks   [][]float32

	errMu     sync.Mutex
	deviceErr error
}

// New creates a recorder that opens driver with config for every session
func New(driver audio.Driver, config audio.Config, log logger.Interface) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		driver: driver,
		config: config,
		log:    log,
		state:  Idle,
	}
}

// Start creates dir if needed and launches the capture loop in the background.
// It returns without waiting for the device to open; device failures surface
// through DeviceErr.
func (r *Recorder) Start(sessionID, dir string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Idle {
		return fmt.Errorf("%w (current state: %s)", ErrSessionActive, r.state)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return &DirectoryError{Dir: dir, Err: err}
	}

	r.sessionID = sessionID
	r.dir = dir
	r.blocks = nil
	r.captured.Store(0)
	r.setDeviceErr(nil)
	r.done = make(chan struct{})
	r.running.Store(true)
	r.state = Recording

	go r.capture(r.done)

	r.log.Info("Recording started: session=%s dir=%s", sessionID, dir)
	return nil
}

func (r *Recorder) capture(done chan struct{}) {
	defer close(done)

	in, err := r.driver.Open(r.config)
	if err != nil {
		r.fail(&DeviceError{Op: "open", Err: err})
		return
	}
	defer func() {
		if err := in.Close(); err != nil {
			r.log.Warn("Failed to close input stream: %v", err)
		}
	}()

	blockLen := r.config.BlockLen()
	for r.running.Load() {
		block := make([]float32, blockLen)
		err := in.Read(block)
		switch {
		case errors.Is(err, audio.ErrInputOverflowed):
			r.log.Warn("Input overflow at block %d", len(r.blocks))
		case err != nil:
			r.fail(&DeviceError{Op: "read", Err: err})
			return
		}
		r.blocks = append(r.blocks, block)
		r.captured.Add(1)
	}
}

func (r *Recorder) fail(err *DeviceError) {
	r.log.Error("Capture stopped: %v", err)
	r.setDeviceErr(err)
}

func (r *Recorder) setDeviceErr(err error) {
	r.errMu.Lock()
	r.deviceErr = err
	r.errMu.Unlock()
}

// DeviceErr returns the device failure that ended the current or last session, if any
func (r *Recorder) DeviceErr() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.deviceErr
}

// Captured returns the number of blocks captured so far in the current session
func (r *Recorder) Captured() int {
	return int(r.captured.Load())
}

// Stop ends the session, waits for the capture loop to exit and writes
// {dir}/{sessionID}.wav. It returns "" with a nil error when nothing was captured.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if r.state != Recording {
		state := r.state
		r.mu.Unlock()
		if state == Finalizing {
			return "", fmt.Errorf("%w (current state: %s)", ErrSessionActive, state)
		}
		return "", ErrNotRecording
	}
	r.state = Finalizing
	done := r.done
	sessionID, dir := r.sessionID, r.dir
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = Idle
		r.mu.Unlock()
	}()

	r.running.Store(false)
	<-done

	if len(r.blocks) == 0 {
		r.log.Warn("No audio captured for session %s", sessionID)
		return "", nil
	}

	samples := make([]float32, 0, len(r.blocks)*r.config.BlockLen())
	for _, block := range r.blocks {
		samples = append(samples, block...)
	}

	path := filepath.Join(dir, sessionID+".wav")
	if err := audio.WriteWAV(path, samples, r.config.SampleRate, r.config.Channels); err != nil {
		return "", fmt.Errorf("failed to save recording: %w", err)
	}

	r.log.Info("Recording saved: %s (%d blocks)", path, len(r.blocks))
	return path, nil
}

// State returns the current recording state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SessionID returns the id of the current or last session
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}
