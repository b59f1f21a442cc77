package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yok-tottii/meetscribe/internal/archive"
	"github.com/yok-tottii/meetscribe/internal/export"
	"github.com/yok-tottii/meetscribe/internal/history"
	"github.com/yok-tottii/meetscribe/internal/logger"
	"github.com/yok-tottii/meetscribe/internal/recording"
	"github.com/yok-tottii/meetscribe/internal/transcription"
)

const sessionIDLayout = "20060102_150405"

// ErrInvalidURL is returned by Join for URLs that are not http(s) links
var ErrInvalidURL = errors.New("invalid meeting URL")

// NewSessionID formats now as YYYYMMDD_HHMMSS
func NewSessionID(now time.Time) string {
	return now.Format(sessionIDLayout)
}

// Capturer records one session at a time
type Capturer interface {
	Start(sessionID, dir string) error
	Stop() (string, error)
	State() recording.State
	DeviceErr() error
	Captured() int
}

// Transcriber turns a recording into a result
type Transcriber interface {
	Transcribe(ctx context.Context, path string) transcription.Result
	Backends() []string
}

// Exporter writes the rendered report to disk
type Exporter interface {
	All(report, session string) (export.Paths, error)
}

// History stores finished sessions
type History interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Archiver uploads session artifacts
type Archiver interface {
	UploadAll(ctx context.Context, sessionID string, paths ...string) ([]string, error)
}

// Notifier tells the local user about session events
type Notifier interface {
	RecordingStarted(session string) error
	TranscriptReady(session string) error
	RecordingFailed(reason string) error
	TranscriptionFailed(reason string) error
}

// Deps wires a Service. Capturer, Transcriber and RecordingsDir are required;
// the rest may be nil.
type Deps struct {
	Capturer      Capturer
	Transcriber   Transcriber
	Exporter      Exporter
	History       History
	Archiver      Archiver
	Notifier      Notifier
	Joiner        Joiner
	Logger        logger.Interface
	RecordingsDir string
	Now           func() time.Time
}

// Outcome is everything produced for one finished session
type Outcome struct {
	SessionID   string               `json:"session_id"`
	AudioPath   string               `json:"audio_path,omitempty"`
	Result      transcription.Result `json:"-"`
	Report      string               `json:"report,omitempty"`
	Files       export.Paths         `json:"files"`
	ArchiveKeys []string             `json:"archive_keys,omitempty"`
	HistoryID   string               `json:"history_id,omitempty"`
	DeviceErr   error                `json:"-"`
}

// Status is a snapshot of the service for the control surfaces
type Status struct {
	State      string    `json:"state"`
	SessionID  string    `json:"session_id,omitempty"`
	MeetingURL string    `json:"meeting_url,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Blocks     int       `json:"blocks"`
	DeviceErr  string    `json:"device_error,omitempty"`
	Backends   []string  `json:"backends"`
}

// Service runs the join, record, transcribe and export flow
type Service struct {
	deps Deps
	log  logger.Interface

	mu         sync.Mutex
	sessionID  string
	meetingURL string
	startedAt  time.Time
}

// New creates a Service
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Joiner == nil {
		deps.Joiner = Opener(OpenBrowser)
	}
	return &Service{deps: deps, log: deps.Logger}
}

// ValidateURL checks that meetingURL is an absolute http(s) link
func ValidateURL(meetingURL string) error {
	u, err := url.Parse(strings.TrimSpace(meetingURL))
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, meetingURL)
	}
	return nil
}

// Join enters the meeting and starts recording a new session.
// The meeting is left again if recording cannot start.
func (s *Service) Join(ctx context.Context, meetingURL string) (string, error) {
	if err := ValidateURL(meetingURL); err != nil {
		return "", err
	}
	if s.Active() {
		return "", recording.ErrSessionActive
	}

	if err := s.deps.Joiner.Join(ctx, meetingURL); err != nil {
		return "", fmt.Errorf("failed to join meeting: %w", err)
	}
	s.log.Info("Joined meeting %s", meetingURL)

	sessionID := NewSessionID(s.deps.Now())
	if err := s.start(sessionID, meetingURL); err != nil {
		s.leave(ctx)
		return "", err
	}
	return sessionID, nil
}

func (s *Service) leave(ctx context.Context) {
	if err := s.deps.Joiner.Leave(ctx); err != nil {
		s.log.Warn("Failed to leave meeting cleanly: %v", err)
	}
}

// Start begins recording. An empty sessionID is generated from the clock.
func (s *Service) Start(sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = NewSessionID(s.deps.Now())
	}
	if err := s.start(sessionID, ""); err != nil {
		return "", err
	}
	return sessionID, nil
}

func (s *Service) start(sessionID, meetingURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deps.Capturer.Start(sessionID, s.deps.RecordingsDir); err != nil {
		s.notify(func(n Notifier) error { return n.RecordingFailed(err.Error()) })
		return err
	}

	s.sessionID = sessionID
	s.meetingURL = meetingURL
	s.startedAt = s.deps.Now()

	s.notify(func(n Notifier) error { return n.RecordingStarted(sessionID) })
	return nil
}

// Active reports whether a session is recording or finalizing
func (s *Service) Active() bool {
	return s.deps.Capturer.State() != recording.Idle
}

// Status returns a snapshot of the current session
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.deps.Capturer.State()
	st := Status{
		State:    state.String(),
		Blocks:   s.deps.Capturer.Captured(),
		Backends: s.deps.Transcriber.Backends(),
	}
	if st.Backends == nil {
		st.Backends = []string{}
	}
	if state != recording.Idle {
		st.SessionID = s.sessionID
		st.MeetingURL = s.meetingURL
		st.StartedAt = s.startedAt
	}
	if err := s.deps.Capturer.DeviceErr(); err != nil {
		st.DeviceErr = err.Error()
	}
	return st
}

// Stop ends the session and leaves the meeting Join entered, if any.
// Captured audio is then transcribed and exported. An Outcome with an empty
// AudioPath means nothing was captured.
func (s *Service) Stop(ctx context.Context) (*Outcome, error) {
	s.mu.Lock()
	sessionID, meetingURL := s.sessionID, s.meetingURL
	s.mu.Unlock()

	path, err := s.deps.Capturer.Stop()
	if err != nil {
		return nil, err
	}
	if meetingURL != "" {
		s.leave(ctx)
	}

	deviceErr := s.deps.Capturer.DeviceErr()
	if path == "" {
		reason := "no audio captured"
		if deviceErr != nil {
			reason = deviceErr.Error()
		}
		s.log.Warn("Session %s ended without audio: %s", sessionID, reason)
		s.notify(func(n Notifier) error { return n.RecordingFailed(reason) })
		return &Outcome{SessionID: sessionID, DeviceErr: deviceErr}, nil
	}

	out := s.process(ctx, sessionID, meetingURL, path)
	out.DeviceErr = deviceErr
	return out, nil
}

// Transcribe runs an existing recording through the pipeline and exporters.
// The session id is taken from the file name.
func (s *Service) Transcribe(ctx context.Context, path string) (*Outcome, error) {
	if path == "" {
		return nil, fmt.Errorf("audio path is required")
	}
	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return s.process(ctx, sessionID, "", path), nil
}

func (s *Service) process(ctx context.Context, sessionID, meetingURL, path string) *Outcome {
	res := s.deps.Transcriber.Transcribe(ctx, path)
	out := &Outcome{
		SessionID: sessionID,
		AudioPath: path,
		Result:    res,
		Report:    res.Render(),
	}

	for _, a := range res.Attempts {
		if a.Err != nil {
			s.log.Debug("Backend %s: %v", a.Backend, a.Err)
		}
	}

	if s.deps.Exporter != nil {
		files, err := s.deps.Exporter.All(out.Report, sessionID)
		if err != nil {
			s.log.Error("Export incomplete for %s: %v", sessionID, err)
		}
		out.Files = files
	}

	if s.deps.Archiver != nil && res.Outcome != transcription.NotFound {
		keys, err := s.deps.Archiver.UploadAll(ctx, sessionID, path, out.Files.Text, out.Files.PDF)
		switch {
		case errors.Is(err, archive.ErrNotConfigured):
		case err != nil:
			s.log.Error("Archive upload failed for %s: %v", sessionID, err)
		}
		out.ArchiveKeys = keys
	}

	if s.deps.History != nil {
		entry, err := s.deps.History.Record(ctx, history.Entry{
			SessionID:   sessionID,
			MeetingURL:  meetingURL,
			AudioPath:   path,
			TextPath:    out.Files.Text,
			PDFPath:     out.Files.PDF,
			Outcome:     res.Outcome.String(),
			Backend:     res.Backend,
			Duration:    res.Info.Duration,
			ArchiveKeys: out.ArchiveKeys,
		})
		if err != nil {
			s.log.Error("Failed to record history for %s: %v", sessionID, err)
		} else {
			out.HistoryID = entry.ID
		}
	}

	if res.Outcome == transcription.Success {
		s.notify(func(n Notifier) error { return n.TranscriptReady(sessionID) })
	} else {
		s.notify(func(n Notifier) error { return n.TranscriptionFailed(res.Outcome.String()) })
	}

	return out
}

func (s *Service) notify(send func(Notifier) error) {
	if s.deps.Notifier == nil {
		return
	}
	if err := send(s.deps.Notifier); err != nil {
		s.log.Debug("Notification not sent: %v", err)
	}
}
