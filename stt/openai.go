package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"snip-assist/audio"
)

// OpenAI transcribes through the hosted transcription endpoint.
type OpenAI struct {
	client openai.Client
	model  string

	mu    sync.RWMutex
	ready bool
}

// OpenAIConfig configures the remote provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible gateways
	Model   string // optional, defaults to whisper-1
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		ready:  cfg.APIKey != "",
	}
}

func (o *OpenAI) Name() string { return "openai" }
func (o *OpenAI) Local() bool  { return false }

func (o *OpenAI) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ready
}

func (o *OpenAI) Setup(ctx context.Context, progress func(percent int)) error {
	if !o.Ready() {
		return fmt.Errorf("transcription API key missing")
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

// Transcribe uploads the audio as WAV and returns the recognized text.
func (o *OpenAI) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if !o.Ready() {
		return "", fmt.Errorf("transcription API key missing")
	}
	if sampleRate != audio.TargetSampleRate {
		samples = audio.Resample(samples, sampleRate, audio.TargetSampleRate)
	}
	wav := audio.EncodeWAV(samples, audio.TargetSampleRate)

	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (o *OpenAI) Close() error { return nil }
