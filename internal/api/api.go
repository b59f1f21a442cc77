package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/yok-tottii/meetscribe/internal/audio"
	"github.com/yok-tottii/meetscribe/internal/config"
	"github.com/yok-tottii/meetscribe/internal/history"
	"github.com/yok-tottii/meetscribe/internal/logger"
	"github.com/yok-tottii/meetscribe/internal/meeting"
	"github.com/yok-tottii/meetscribe/internal/recording"
	"github.com/yok-tottii/meetscribe/internal/transcription"
)

// Service is the meeting flow driven by the API
type Service interface {
	Join(ctx context.Context, meetingURL string) (string, error)
	Start(sessionID string) (string, error)
	Stop(ctx context.Context) (*meeting.Outcome, error)
	Transcribe(ctx context.Context, path string) (*meeting.Outcome, error)
	Status() meeting.Status
}

// DeviceLister lists audio inputs
type DeviceLister interface {
	ListDevices() ([]audio.Device, error)
}

// HistoryReader reads finished sessions
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Get(ctx context.Context, id string) (history.Entry, error)
}

// Handler manages API endpoints
type Handler struct {
	config     *config.Config
	configPath string
	service    Service
	devices    DeviceLister
	history    HistoryReader
	log        logger.Interface
	validate   *validator.Validate
}

// Option configures a Handler
type Option func(*Handler)

// WithDevices enables GET /api/devices
func WithDevices(d DeviceLister) Option {
	return func(h *Handler) { h.devices = d }
}

// WithHistory enables GET /api/history
func WithHistory(r HistoryReader) Option {
	return func(h *Handler) { h.history = r }
}

// WithConfigPath sets where PUT /api/settings saves. Empty disables saving.
func WithConfigPath(path string) Option {
	return func(h *Handler) { h.configPath = path }
}

// WithLogger sets the handler logger
func WithLogger(log logger.Interface) Option {
	return func(h *Handler) { h.log = log }
}

// New creates a new API handler
func New(cfg *config.Config, svc Service, opts ...Option) *Handler {
	h := &Handler{
		config:   cfg,
		service:  svc,
		log:      logger.Nop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/session/start", h.handleSessionStart)
	mux.HandleFunc("/api/session/stop", h.handleSessionStop)
	mux.HandleFunc("/api/transcribe", h.handleTranscribe)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/settings", h.handleSettings)
}

// StartRequest is the body of POST /api/session/start.
// With a URL the meeting is opened before recording.
type StartRequest struct {
	URL       string `json:"url" validate:"omitempty,http_url"`
	SessionID string `json:"session_id" validate:"omitempty,max=64,excludesall=/\\.:"`
}

// TranscribeRequest is the body of POST /api/transcribe
type TranscribeRequest struct {
	Path string `json:"path" validate:"required,endswith=.wav"`
}

// SessionResponse describes a finished session
type SessionResponse struct {
	SessionID   string       `json:"session_id"`
	AudioPath   string       `json:"audio_path,omitempty"`
	Outcome     string       `json:"outcome"`
	Backend     string       `json:"backend,omitempty"`
	Duration    float64      `json:"duration"`
	Report      string       `json:"report,omitempty"`
	Files       filesPayload `json:"files"`
	ArchiveKeys []string     `json:"archive_keys,omitempty"`
	HistoryID   string       `json:"history_id,omitempty"`
	DeviceError string       `json:"device_error,omitempty"`
}

type filesPayload struct {
	Text string `json:"text,omitempty"`
	PDF  string `json:"pdf,omitempty"`
}

func newSessionResponse(out *meeting.Outcome) SessionResponse {
	resp := SessionResponse{
		SessionID:   out.SessionID,
		AudioPath:   out.AudioPath,
		Outcome:     "no_audio",
		Files:       filesPayload{Text: out.Files.Text, PDF: out.Files.PDF},
		ArchiveKeys: out.ArchiveKeys,
		HistoryID:   out.HistoryID,
	}
	if out.AudioPath != "" {
		resp.Outcome = out.Result.Outcome.String()
		resp.Backend = out.Result.Backend
		resp.Duration = out.Result.Info.Duration
		resp.Report = out.Report
	}
	if out.DeviceErr != nil {
		resp.DeviceError = out.DeviceErr.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into v and validates it. An empty body is
// accepted and validated as the zero value.
func (h *Handler) decode(r *http.Request, v interface{}) error {
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return fmt.Errorf("invalid request body: %w", err)
		}
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %s", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, recording.ErrSessionActive), errors.Is(err, recording.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, meeting.ErrInvalidURL):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleStatus handles GET /api/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Status())
}

// handleSessionStart handles POST /api/session/start
func (h *Handler) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StartRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sessionID string
	var err error
	if req.URL != "" {
		sessionID, err = h.service.Join(context.WithoutCancel(r.Context()), req.URL)
	} else {
		sessionID, err = h.service.Start(req.SessionID)
	}
	if err != nil {
		h.log.Warn("Session start rejected: %v", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "recording",
		"session_id": sessionID,
	})
}

// handleSessionStop handles POST /api/session/stop.
// It blocks until the recording is transcribed and exported. The work runs
// to completion even if the client disconnects.
func (h *Handler) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	out, err := h.service.Stop(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(out))
}

// handleTranscribe handles POST /api/transcribe
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TranscribeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.service.Transcribe(context.WithoutCancel(r.Context()), req.Path)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusOK
	if out.Result.Outcome == transcription.NotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, newSessionResponse(out))
}

// Device represents an audio device in the API response
type Device struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Channels  int    `json:"channels"`
	IsDefault bool   `json:"is_default"`
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.devices == nil {
		writeError(w, http.StatusServiceUnavailable, "audio driver not available")
		return
	}

	list, err := h.devices.ListDevices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audio devices: %v", err))
		return
	}

	devices := make([]Device, 0, len(list))
	for _, d := range list {
		devices = append(devices, Device{ID: d.ID, Name: d.Name, Channels: d.Channels, IsDefault: d.IsDefault})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices":  devices,
		"selected": h.config.Clone().AudioDeviceID,
	})
}

// handleHistory handles GET /api/history and GET /api/history?id=...
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not available")
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		entry, err := h.history.Get(r.Context(), id)
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, entry)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": entries})
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getSettings returns the current configuration with secrets redacted
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	snapshot := h.config.Clone()
	snapshot.S3 = snapshot.S3.Redacted()
	writeJSON(w, http.StatusOK, snapshot)
}

// putSettings applies a partial update and saves it
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.config.Update(updates); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to update config: %v", err))
		return
	}

	if h.configPath != "" {
		if err := h.config.Save(h.configPath); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save config: %v", err))
			return
		}
	}

	h.log.Info("Settings updated: %d field(s)", len(updates))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Backend and device changes apply to the next start",
	})
}
