package recognition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SampleRate is the input rate expected by whisper models
const SampleRate = 16000

// ErrUnavailable is returned by LoadModel when the binary was built without whisper.cpp
var ErrUnavailable = errors.New("local recognition not compiled in (build with -tags whisper)")

// Recognizer is the interface for speech recognition.
// Transcribe takes mono float32 samples at SampleRate.
type Recognizer interface {
	LoadModel(modelPath string) error
	Transcribe(samples []float32) (string, error)
	Close() error
}

// Config holds recognition configuration
type Config struct {
	Language string // "auto" lets the model detect the language
	Threads  int    // Number of threads, 0 = auto
}

// DefaultConfig returns the default recognition configuration
func DefaultConfig() Config {
	return Config{
		Language: "auto",
		Threads:  0,
	}
}

// GetDefaultModelPath returns the default directory for Whisper models
func GetDefaultModelPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(configDir, "meetscribe", "models")
}

// FindModel searches for a model file in the default model directory
func FindModel(modelName string) (string, error) {
	return findModelIn(GetDefaultModelPath(), modelName)
}

func findModelIn(modelDir, modelName string) (string, error) {
	if _, err := os.Stat(modelDir); os.IsNotExist(err) {
		return "", fmt.Errorf("model directory not found: %s", modelDir)
	}

	modelPath := filepath.Join(modelDir, modelName)
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return "", fmt.Errorf("model file not found: %s", modelPath)
	}

	return modelPath, nil
}
