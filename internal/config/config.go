package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/yok-tottii/meetscribe/internal/archive"
)

// Environment variables holding backend credentials. Credentials are never
// persisted in config.json.
const (
	EnvAssemblyAIKey = "ASSEMBLYAI_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
)

// Primary backend names accepted in primary_backend
const (
	BackendAssemblyAI = "assemblyai"
	BackendOpenAI     = "openai"
	BackendNone       = "none"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Config holds application configuration
type Config struct {
	RecordingsDir  string           `json:"recordings_dir" validate:"required"`
	TranscriptsDir string           `json:"transcripts_dir" validate:"required"`
	AudioDeviceID  int              `json:"audio_device_id" validate:"gte=-1"`
	Latency        string           `json:"latency" validate:"oneof=low high"`
	PrimaryBackend string           `json:"primary_backend" validate:"oneof=assemblyai openai none"`
	OpenAIModel    string           `json:"openai_model" validate:"required"`
	ModelPath      string           `json:"model_path"`
	Language       string           `json:"language" validate:"required"`
	ServerPort     int              `json:"server_port" validate:"gte=0,lte=65535"`
	LogLevel       string           `json:"log_level" validate:"oneof=debug info warn error"`
	Notifications  bool             `json:"notifications"`
	AutoJoin       bool             `json:"auto_join"`
	ChromePath     string           `json:"chrome_path"`
	S3             archive.S3Config `json:"s3"`
	mu             sync.RWMutex
}

// GetAppDir returns the base directory for configuration, history and artifacts
func GetAppDir() string {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		baseDir = "."
	}
	return filepath.Join(baseDir, "meetscribe")
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(GetAppDir(), "config.json")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	appDir := GetAppDir()
	return &Config{
		RecordingsDir:  filepath.Join(appDir, "recordings"),
		TranscriptsDir: filepath.Join(appDir, "transcripts"),
		AudioDeviceID:  -1, // -1 means use system default device
		Latency:        "high",
		PrimaryBackend: BackendAssemblyAI,
		OpenAIModel:    "whisper-1",
		ModelPath:      "", // no local model until the user points at one
		Language:       "auto",
		ServerPort:     18765,
		LogLevel:       "info",
		Notifications:  true,
		AutoJoin:       true, // drive Chrome through the join screen when it is installed
	}
}

// Load loads configuration from the specified path.
// Missing keys keep their default values; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// EnsureDirectories creates the recordings and transcript output folders.
// Call once before the first session.
func (c *Config) EnsureDirectories() error {
	c.mu.RLock()
	dirs := []string{
		c.RecordingsDir,
		filepath.Join(c.TranscriptsDir, "text"),
		filepath.Join(c.TranscriptsDir, "pdf"),
	}
	c.mu.RUnlock()

	for _, dir := range dirs {
		expanded, err := ExpandPath(dir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(expanded, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", expanded, err)
		}
	}
	return nil
}

// Update applies a partial update (as decoded from JSON). The update is
// validated as a whole and rejected without side effects when invalid.
func (c *Config) Update(updates map[string]interface{}) error {
	next := c.Clone()

	for key, value := range updates {
		switch key {
		case "recordings_dir", "transcripts_dir", "latency", "primary_backend",
			"openai_model", "model_path", "language", "log_level", "chrome_path":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid %s: expected string", key)
			}
			next.setString(key, v)
		case "audio_device_id", "server_port":
			v, ok := value.(float64)
			if !ok {
				return fmt.Errorf("invalid %s: expected number", key)
			}
			if key == "audio_device_id" {
				next.AudioDeviceID = int(v)
			} else {
				next.ServerPort = int(v)
			}
		case "notifications", "auto_join":
			v, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid %s: expected bool", key)
			}
			if key == "notifications" {
				next.Notifications = v
			} else {
				next.AutoJoin = v
			}
		default:
			return fmt.Errorf("unknown setting: %s", key)
		}
	}

	if err := next.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.copyFrom(next)
	return nil
}

func (c *Config) setString(key, v string) {
	switch key {
	case "recordings_dir":
		c.RecordingsDir = v
	case "transcripts_dir":
		c.TranscriptsDir = v
	case "latency":
		c.Latency = v
	case "primary_backend":
		c.PrimaryBackend = v
	case "openai_model":
		c.OpenAIModel = v
	case "model_path":
		c.ModelPath = v
	case "language":
		c.Language = v
	case "log_level":
		c.LogLevel = v
	case "chrome_path":
		c.ChromePath = v
	}
}

func (c *Config) copyFrom(o *Config) {
	c.RecordingsDir = o.RecordingsDir
	c.TranscriptsDir = o.TranscriptsDir
	c.AudioDeviceID = o.AudioDeviceID
	c.Latency = o.Latency
	c.PrimaryBackend = o.PrimaryBackend
	c.OpenAIModel = o.OpenAIModel
	c.ModelPath = o.ModelPath
	c.Language = o.Language
	c.ServerPort = o.ServerPort
	c.LogLevel = o.LogLevel
	c.Notifications = o.Notifications
	c.AutoJoin = o.AutoJoin
	c.ChromePath = o.ChromePath
	c.S3 = o.S3
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{}
	clone.copyFrom(c)
	return clone
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, formatValidationMessage(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func formatValidationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("%s out of range (%s %s), got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetModelPath returns the expanded local model path
func (c *Config) GetModelPath() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ExpandPath(c.ModelPath)
}

// IsValidModelExtension checks if the file has a valid Whisper model extension
func IsValidModelExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".bin" || ext == ".gguf"
}

// ValidateModelPath validates the local model file path
func (c *Config) ValidateModelPath() error {
	expandedPath, err := c.GetModelPath()
	if err != nil {
		return fmt.Errorf("failed to expand model path: %w", err)
	}
	if expandedPath == "" {
		return fmt.Errorf("model path is not set")
	}

	info, err := os.Stat(expandedPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", expandedPath)
	}
	if err != nil {
		return fmt.Errorf("failed to check model file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("model path is a directory, not a file: %s", expandedPath)
	}

	if !IsValidModelExtension(expandedPath) {
		return fmt.Errorf("model file must have .bin or .gguf extension: %s", expandedPath)
	}

	return nil
}

// APIKey returns the trimmed value of a credential environment variable
func APIKey(env string) string {
	return strings.TrimSpace(os.Getenv(env))
}
