// Package stt turns recorded PCM audio into text. Two providers exist: a
// local whisper.cpp runner and the OpenAI transcription API. Both consume
// mono float32 samples at 16kHz.
package stt

import "context"

// Provider is a speech-to-text backend.
type Provider interface {
	// Name identifies the provider in settings.
	Name() string

	// Local reports whether transcription runs without network access.
	Local() bool

	// Ready reports whether the provider can transcribe right now.
	Ready() bool

	// Setup performs one-time initialization such as a model download.
	// The callback receives progress percentages.
	Setup(ctx context.Context, progress func(percent int)) error

	// Transcribe converts samples at the given rate into text.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)

	// Close releases provider resources.
	Close() error
}

// Registry maps provider names to providers.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Close() error {
	var first error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
