// Package dispatch routes a completed selection to one analyzer backend and
// normalizes every outcome into one envelope. Nothing escapes this boundary:
// backend failures become {success:false, error} and a model response we
// cannot parse degrades to a partial result instead of an error.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tidwall/gjson"

	"snip-assist/capture"
	"snip-assist/llm"
	"snip-assist/session"
)

// Response is the uniform result envelope crossing the UI boundary.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ScoreResult is the prompt analyzer's structured output.
type ScoreResult struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// TextResult carries plain text from the image, textgrab and speech
// analyzers.
type TextResult struct {
	Text string `json:"text"`
}

// Request is one analysis job.
type Request struct {
	Kind       session.AnalyzerKind
	Image      []byte // encoded screenshot, may be empty if pre-capture failed
	DisplayID  int    // re-capture target when Image is empty
	Prompt     string // user instructions for the prompt analyzer
	Audio      []float32
	SampleRate int
}

// Vision is the remote vision-model client.
type Vision interface {
	QueryVision(ctx context.Context, req llm.VisionRequest) (string, error)
}

// TextExtractor is the local OCR engine.
type TextExtractor interface {
	ExtractText(image []byte) (string, error)
}

// Transcriber is the speech-to-text backend.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Capturer supplies the fallback re-capture when a request arrives without
// a stored screenshot.
type Capturer interface {
	Capture(opts capture.Options) (*capture.Shot, error)
}

// Dispatcher holds the analyzer backends.
type Dispatcher struct {
	vision      Vision
	ocr         TextExtractor
	stt         Transcriber
	capturer    Capturer
	promptScore string // system instructions for the scoring analyzer
}

const defaultScoreInstructions = `You evaluate how well a screenshot satisfies the user's instructions.
Respond with a JSON object: {"score": <0-100 integer>, "feedback": "<one short paragraph>"}.
Respond with nothing except that JSON object.`

const describeInstructions = "Describe the contents of this image concisely. Return plain text only."

// New builds a dispatcher. Any backend may be nil; requests needing it
// fail with a clean envelope.
func New(vision Vision, ocr TextExtractor, stt Transcriber, capturer Capturer) *Dispatcher {
	return &Dispatcher{
		vision:      vision,
		ocr:         ocr,
		stt:         stt,
		capturer:    capturer,
		promptScore: defaultScoreInstructions,
	}
}

// Dispatch runs one request through its backend. It never panics outward
// and never returns a Go error; everything is folded into the envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: panic in %s analyzer: %v", req.Kind, r)
			resp = failf("internal error in %s analyzer", req.Kind)
		}
	}()

	switch req.Kind {
	case session.KindPrompt:
		return d.scorePrompt(ctx, req)
	case session.KindImage:
		return d.describeImage(ctx, req)
	case session.KindTextgrab:
		return d.extractText(req)
	case session.KindSpeech:
		return d.transcribe(ctx, req)
	default:
		return failf("unknown analyzer kind %q", req.Kind)
	}
}

func (d *Dispatcher) scorePrompt(ctx context.Context, req Request) Response {
	if d.vision == nil {
		return failf("vision backend not configured")
	}
	img, resp := d.ensureImage(req)
	if img == nil {
		return resp
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = "Evaluate this screenshot."
	}
	raw, err := d.vision.QueryVision(ctx, llm.VisionRequest{
		System: d.promptScore,
		Prompt: prompt,
		Image:  img,
	})
	if err != nil {
		return failf("analysis failed: %v", err)
	}
	return Response{Success: true, Data: parseScore(raw)}
}

func (d *Dispatcher) describeImage(ctx context.Context, req Request) Response {
	if d.vision == nil {
		return failf("vision backend not configured")
	}
	img, resp := d.ensureImage(req)
	if img == nil {
		return resp
	}

	text, err := d.vision.QueryVision(ctx, llm.VisionRequest{
		Prompt: describeInstructions,
		Image:  img,
	})
	if err != nil {
		return failf("description failed: %v", err)
	}
	return Response{Success: true, Data: TextResult{Text: text}}
}

func (d *Dispatcher) extractText(req Request) Response {
	if d.ocr == nil {
		return failf("ocr backend not configured")
	}
	img, resp := d.ensureImage(req)
	if img == nil {
		return resp
	}

	text, err := d.ocr.ExtractText(img)
	if err != nil {
		return failf("text extraction failed: %v", err)
	}
	return Response{Success: true, Data: TextResult{Text: text}}
}

func (d *Dispatcher) transcribe(ctx context.Context, req Request) Response {
	if d.stt == nil {
		return failf("transcription backend not configured")
	}
	if len(req.Audio) == 0 {
		return failf("no audio captured")
	}
	text, err := d.stt.Transcribe(ctx, req.Audio, req.SampleRate)
	if err != nil {
		return failf("transcription failed: %v", err)
	}
	return Response{Success: true, Data: TextResult{Text: text}}
}

// ensureImage returns the request's image, re-capturing the stored display
// when the pre-capture never happened. A nil first return means the second
// is a ready failure envelope.
func (d *Dispatcher) ensureImage(req Request) ([]byte, Response) {
	if len(req.Image) > 0 {
		return req.Image, Response{}
	}
	if d.capturer == nil {
		return nil, failf("no screenshot available")
	}
	log.Printf("dispatch: no stored screenshot, re-capturing display %d", req.DisplayID)
	shot, err := d.capturer.Capture(capture.Options{DisplayID: req.DisplayID})
	if err != nil {
		return nil, failf("screenshot failed: %v", err)
	}
	return shot.JPEG, Response{}
}

// parseScore pulls {"score", "feedback"} out of free model text. The model
// often wraps the JSON in prose or code fences; gjson finds it anyway. Text
// with no usable JSON degrades to a neutral score with the raw output as
// feedback rather than an error the user cannot act on.
func parseScore(raw string) ScoreResult {
	body := raw
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			body = body[start : end+1]
		}
	}

	if gjson.Valid(body) {
		score := gjson.Get(body, "score")
		feedback := gjson.Get(body, "feedback")
		if score.Exists() {
			s := int(score.Int())
			if s < 0 {
				s = 0
			} else if s > 100 {
				s = 100
			}
			return ScoreResult{Score: s, Feedback: feedback.String()}
		}
	}

	log.Printf("dispatch: unparsable score response, falling back to neutral")
	return ScoreResult{Score: 50, Feedback: truncate(strings.TrimSpace(raw), 500)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func failf(format string, args ...interface{}) Response {
	return Response{Success: false, Error: fmt.Sprintf(format, args...)}
}
