// Package ocr extracts text from images with a local Tesseract engine.
// Nothing leaves the machine; the textgrab analyzer uses this instead of a
// vision model.
package ocr

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/otiai10/gosseract"
)

// Engine is the text extraction backend. The gosseract client satisfies it;
// tests substitute a fake.
type Engine interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	Text() (string, error)
	Close() error
}

// Extractor runs OCR over encoded image bytes. Tesseract clients are not
// safe for concurrent use, so calls are serialized.
type Extractor struct {
	mu        sync.Mutex
	newEngine func() Engine
	languages []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLanguages sets the Tesseract language packs to load.
func WithLanguages(langs ...string) Option {
	return func(e *Extractor) { e.languages = langs }
}

// WithEngineFactory overrides the engine constructor, for tests.
func WithEngineFactory(f func() Engine) Option {
	return func(e *Extractor) { e.newEngine = f }
}

// New builds an extractor backed by Tesseract.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		newEngine: func() Engine { return gosseract.NewClient() },
		languages: []string{"eng"},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExtractText runs the engine over one encoded image and returns the
// recognized text with surrounding whitespace trimmed.
func (e *Extractor) ExtractText(image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	engine := e.newEngine()
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("ocr: close engine: %v", err)
		}
	}()

	if len(e.languages) > 0 {
		if err := engine.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set ocr language: %w", err)
		}
	}
	if err := engine.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}
	text, err := engine.Text()
	if err != nil {
		return "", fmt.Errorf("run ocr: %w", err)
	}
	return strings.TrimSpace(text), nil
}
