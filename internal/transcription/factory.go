package transcription

import (
	"path/filepath"

	"github.com/yok-tottii/meetscribe/internal/config"
	"github.com/yok-tottii/meetscribe/internal/logger"
	"github.com/yok-tottii/meetscribe/internal/recognition"
)

// PrimaryFromConfig builds the cloud backend selected by primary_backend.
// It returns nil when the backend is disabled or its credential is missing.
func PrimaryFromConfig(cfg *config.Config, log logger.Interface) Backend {
	switch cfg.PrimaryBackend {
	case config.BackendAssemblyAI:
		b, err := NewAssemblyAI(config.APIKey(config.EnvAssemblyAIKey), cfg.Language)
		if err != nil {
			log.Warn("AssemblyAI disabled: %s not set", config.EnvAssemblyAIKey)
			return nil
		}
		return b
	case config.BackendOpenAI:
		b, err := NewOpenAI(config.APIKey(config.EnvOpenAIKey), cfg.OpenAIModel, cfg.Language)
		if err != nil {
			log.Warn("OpenAI disabled: %s not set", config.EnvOpenAIKey)
			return nil
		}
		return b
	default:
		return nil
	}
}

// SecondaryFromConfig loads the local whisper model from model_path.
// It returns nil when no model is configured or it fails to load.
func SecondaryFromConfig(cfg *config.Config, log logger.Interface) *Local {
	if cfg.ModelPath == "" {
		return nil
	}

	modelPath, err := resolveModelPath(cfg)
	if err != nil {
		log.Warn("Local model disabled: %v", err)
		return nil
	}

	rec := recognition.NewWhisperRecognizer(recognition.Config{Language: cfg.Language})
	local, err := NewLocal(rec, modelPath)
	if err != nil {
		log.Warn("Local model disabled: %v", err)
		return nil
	}

	log.Info("Local model loaded: %s", modelPath)
	return local
}

// resolveModelPath looks a bare file name such as "ggml-base.bin" up in the
// default model directory first, then treats model_path as a path.
func resolveModelPath(cfg *config.Config) (string, error) {
	if name := cfg.ModelPath; name == filepath.Base(name) && config.IsValidModelExtension(name) {
		if p, err := recognition.FindModel(name); err == nil {
			return p, nil
		}
	}

	if err := cfg.ValidateModelPath(); err != nil {
		return "", err
	}
	return cfg.GetModelPath()
}

// FromConfig builds a pipeline from the configured backends. The returned
// close function releases the local model, if one was loaded.
func FromConfig(cfg *config.Config, log logger.Interface) (*Pipeline, func() error) {
	primary := PrimaryFromConfig(cfg, log)
	local := SecondaryFromConfig(cfg, log)

	var secondary Backend
	closer := func() error { return nil }
	if local != nil {
		secondary = local
		closer = local.Close
	}

	if primary == nil && secondary == nil {
		log.Warn("No transcription backend available; recordings will be saved without transcripts")
	}

	return New(primary, secondary, WithLogger(log)), closer
}
