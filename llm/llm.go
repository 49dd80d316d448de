// Package llm talks to an OpenRouter-compatible chat completions endpoint
// with vision support. Analyzers send one image plus instructions and get
// free text back; interpreting that text is the caller's problem.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nfnt/resize"
)

const (
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	maxRetries      = 3
	initialDelay    = 1 * time.Second

	// Images wider than this get downscaled before upload. Vision models
	// resize internally anyway; shipping full 4K screenshots just burns
	// upload time.
	maxImageWidth = 2048
)

// Config holds the connection settings.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string // optional, defaults to OpenRouter
}

// Client is a vision chat-completions client.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a client. The HTTP timeout bounds a single attempt, not the
// whole retry loop.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 45 * time.Second},
	}
}

// Wire structures for the chat completions API.
type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // string or number depending on provider
}

// VisionRequest is one image-plus-instructions query.
type VisionRequest struct {
	System string // optional system message
	Prompt string // user instructions
	Image  []byte // encoded JPEG or PNG
}

// QueryVision sends the request and returns the model's raw text output,
// retrying transient failures with backoff.
func (c *Client) QueryVision(ctx context.Context, req VisionRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("API key is required")
	}
	if c.cfg.Model == "" {
		return "", fmt.Errorf("model is required")
	}
	if len(req.Image) == 0 {
		return "", fmt.Errorf("image is required")
	}

	img := downscale(req.Image)
	dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(img))

	var messages []message
	if req.System != "" {
		messages = append(messages, message{
			Role:    "system",
			Content: []content{{Type: "text", Text: req.System}},
		})
	}
	messages = append(messages, message{
		Role: "user",
		Content: []content{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	})

	payload := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: 0.1,
		MaxTokens:   2000,
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(initialDelay) * 1.5 * float64(attempt))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, err := c.send(ctx, payload)
		if err != nil {
			lastErr = err
			log.Printf("llm: attempt %d/%d failed: %v", attempt+1, maxRetries, err)
			continue
		}
		return strings.TrimSpace(text), nil
	}
	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) send(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s (type %s, code %v)", parsed.Error.Message, parsed.Error.Type, parsed.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// downscale shrinks oversized screenshots to maxImageWidth and re-encodes
// as JPEG. Undecodable input passes through untouched; the API will reject
// it with a clearer error than we could produce here.
func downscale(data []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	if img.Bounds().Dx() <= maxImageWidth {
		return data
	}

	small := resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: 85}); err != nil {
		return data
	}
	log.Printf("llm: downscaled image %d -> %d bytes", len(data), buf.Len())
	return buf.Bytes()
}
