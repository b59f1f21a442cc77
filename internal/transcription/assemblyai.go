package transcription

import (
	"context"
	"fmt"
	"os"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
)

// AssemblyAI is the cloud backend backed by the AssemblyAI transcript API
type AssemblyAI struct {
	client *aai.Client
	params *aai.TranscriptOptionalParams
}

// NewAssemblyAI creates the backend. language "auto" or "" enables language detection.
func NewAssemblyAI(apiKey, language string, opts ...aai.ClientOption) (*AssemblyAI, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	opts = append([]aai.ClientOption{aai.WithAPIKey(apiKey)}, opts...)

	params := &aai.TranscriptOptionalParams{}
	if language == "" || language == "auto" {
		params.LanguageDetection = aai.Bool(true)
	} else {
		params.LanguageCode = aai.TranscriptLanguageCode(language)
	}

	return &AssemblyAI{
		client: aai.NewClientWithOptions(opts...),
		params: params,
	}, nil
}

func (a *AssemblyAI) Name() string { return "AssemblyAI" }

// Transcribe uploads the file and waits for the transcript to complete
func (a *AssemblyAI) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	transcript, err := a.client.Transcripts.TranscribeFromReader(ctx, f, a.params)
	if err != nil {
		return "", err
	}

	if transcript.Status == aai.TranscriptStatusError {
		return "", fmt.Errorf("transcript %s failed: %s", aai.ToString(transcript.ID), aai.ToString(transcript.Error))
	}

	return aai.ToString(transcript.Text), nil
}
