package transcription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/meetscribe/internal/config"
	"github.com/yok-tottii/meetscribe/internal/logger"
	"github.com/yok-tottii/meetscribe/internal/recognition"
)

func TestNewAssemblyAI_RequiresKey(t *testing.T) {
	_, err := NewAssemblyAI("", "auto")
	assert.ErrorIs(t, err, ErrNotConfigured)

	b, err := NewAssemblyAI("key", "en")
	require.NoError(t, err)
	assert.Equal(t, "AssemblyAI", b.Name())
	assert.Nil(t, b.params.LanguageDetection)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI("", "", "auto")
	assert.ErrorIs(t, err, ErrNotConfigured)

	b, err := NewOpenAI("key", "", "auto")
	require.NoError(t, err)
	assert.Equal(t, "whisper-1", b.model)
	assert.Equal(t, "OpenAI", b.Name())
}

func TestOpenAI_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "Thanks all, see you next week."}`))
	}))
	defer server.Close()

	b, err := NewOpenAI("test-key", "whisper-1", "en",
		option.WithBaseURL(server.URL+"/"),
		option.WithMaxRetries(0),
	)
	require.NoError(t, err)

	text, err := b.Transcribe(t.Context(), writeTone(t, 0.5, 0.5))
	require.NoError(t, err)
	assert.Equal(t, "Thanks all, see you next week.", text)
}

func TestOpenAI_TranscribeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded"}}`))
	}))
	defer server.Close()

	b, err := NewOpenAI("test-key", "", "auto",
		option.WithBaseURL(server.URL+"/"),
		option.WithMaxRetries(0),
	)
	require.NoError(t, err)

	_, err = b.Transcribe(t.Context(), writeTone(t, 0.5, 0.5))
	assert.Error(t, err)
}

func TestOpenAI_MissingFile(t *testing.T) {
	b, err := NewOpenAI("test-key", "", "auto")
	require.NoError(t, err)

	_, err = b.Transcribe(t.Context(), filepath.Join(t.TempDir(), "none.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type fakeRecognizer struct {
	loadErr    error
	loaded     string
	lastLen    int
	closed     bool
	transcript string
}

func (f *fakeRecognizer) LoadModel(path string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = path
	return nil
}

func (f *fakeRecognizer) Transcribe(samples []float32) (string, error) {
	f.lastLen = len(samples)
	return f.transcript, nil
}

func (f *fakeRecognizer) Close() error {
	f.closed = true
	return nil
}

func TestLocal_Transcribe(t *testing.T) {
	rec := &fakeRecognizer{transcript: " local words here "}
	local, err := NewLocal(rec, "/models/ggml-base.bin")
	require.NoError(t, err)
	assert.Equal(t, "/models/ggml-base.bin", rec.loaded)
	assert.Equal(t, "Whisper", local.Name())

	text, err := local.Transcribe(context.Background(), writeTone(t, 1, 0.5))
	require.NoError(t, err)
	assert.Equal(t, " local words here ", text)
	assert.Equal(t, recognition.SampleRate, rec.lastLen)

	require.NoError(t, local.Close())
	assert.True(t, rec.closed)
}

func TestNewLocal_Failures(t *testing.T) {
	_, err := NewLocal(&fakeRecognizer{}, "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	broken := errors.New("bad model")
	_, err = NewLocal(&fakeRecognizer{loadErr: broken}, "/models/x.bin")
	assert.ErrorIs(t, err, broken)
}

func TestPrimaryFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	log := logger.Nop()

	cfg.PrimaryBackend = config.BackendAssemblyAI
	t.Setenv(config.EnvAssemblyAIKey, "")
	assert.Nil(t, PrimaryFromConfig(cfg, log))

	t.Setenv(config.EnvAssemblyAIKey, "aai-key")
	assert.IsType(t, &AssemblyAI{}, PrimaryFromConfig(cfg, log))

	cfg.PrimaryBackend = config.BackendOpenAI
	t.Setenv(config.EnvOpenAIKey, "")
	assert.Nil(t, PrimaryFromConfig(cfg, log))

	t.Setenv(config.EnvOpenAIKey, "sk-test")
	assert.IsType(t, &OpenAI{}, PrimaryFromConfig(cfg, log))

	cfg.PrimaryBackend = config.BackendNone
	assert.Nil(t, PrimaryFromConfig(cfg, log))
}

func TestSecondaryFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	log := logger.Nop()

	assert.Nil(t, SecondaryFromConfig(cfg, log))

	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.bin")
	assert.Nil(t, SecondaryFromConfig(cfg, log))

	// Not a real model: loading fails with or without whisper.cpp linked.
	fake := filepath.Join(t.TempDir(), "ggml-fake.bin")
	require.NoError(t, os.WriteFile(fake, []byte("not a model"), 0644))
	cfg.ModelPath = fake
	assert.Nil(t, SecondaryFromConfig(cfg, log))
}

func TestResolveModelPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("AppData", filepath.Join(home, "AppData"))

	modelDir := recognition.GetDefaultModelPath()
	require.NotEmpty(t, modelDir)
	require.NoError(t, os.MkdirAll(modelDir, 0755))
	installed := filepath.Join(modelDir, "ggml-base.bin")
	require.NoError(t, os.WriteFile(installed, []byte("model"), 0644))

	cfg := config.DefaultConfig()

	cfg.ModelPath = "ggml-base.bin"
	p, err := resolveModelPath(cfg)
	require.NoError(t, err)
	assert.Equal(t, installed, p)

	explicit := filepath.Join(t.TempDir(), "ggml-small.bin")
	require.NoError(t, os.WriteFile(explicit, []byte("model"), 0644))
	cfg.ModelPath = explicit
	p, err = resolveModelPath(cfg)
	require.NoError(t, err)
	assert.Equal(t, explicit, p)

	cfg.ModelPath = "ggml-missing.bin"
	_, err = resolveModelPath(cfg)
	assert.Error(t, err)
}

func TestFromConfig_NoBackends(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PrimaryBackend = config.BackendNone

	p, closeFn := FromConfig(cfg, logger.Nop())
	defer closeFn()

	assert.Empty(t, p.Backends())
}
