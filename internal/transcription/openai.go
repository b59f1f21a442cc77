package transcription

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI is the cloud backend backed by the OpenAI audio transcription endpoint
type OpenAI struct {
	client   openai.Client
	model    string
	language string
}

// NewOpenAI creates the backend. An empty model defaults to whisper-1.
func NewOpenAI(apiKey, model, language string, opts ...option.RequestOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &OpenAI{
		client:   openai.NewClient(opts...),
		model:    model,
		language: language,
	}, nil
}

func (o *OpenAI) Name() string { return "OpenAI" }

func (o *OpenAI) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(o.model),
	}
	if o.language != "" && o.language != "auto" {
		params.Language = openai.String(o.language)
	}

	res, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}

	return res.Text, nil
}
