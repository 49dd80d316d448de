package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"snip-assist/capture"
	"snip-assist/llm"
	"snip-assist/session"
)

type fakeVision struct {
	reply string
	err   error
	got   llm.VisionRequest
}

func (f *fakeVision) QueryVision(ctx context.Context, req llm.VisionRequest) (string, error) {
	f.got = req
	return f.reply, f.err
}

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ExtractText(image []byte) (string, error) { return f.text, f.err }

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Transcribe(ctx context.Context, s []float32, r int) (string, error) {
	return f.text, f.err
}

type fakeCapturer struct {
	shot *capture.Shot
	err  error
	got  capture.Options
}

func (f *fakeCapturer) Capture(opts capture.Options) (*capture.Shot, error) {
	f.got = opts
	return f.shot, f.err
}

func TestPromptScoreParsesCleanJSON(t *testing.T) {
	v := &fakeVision{reply: `{"score": 87, "feedback": "looks right"}`}
	d := New(v, nil, nil, nil)

	resp := d.Dispatch(context.Background(), Request{
		Kind:   session.KindPrompt,
		Image:  []byte{1},
		Prompt: "check the form",
	})
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	got := resp.Data.(ScoreResult)
	if got.Score != 87 || got.Feedback != "looks right" {
		t.Errorf("score = %+v", got)
	}
	if v.got.Prompt != "check the form" {
		t.Errorf("prompt forwarded as %q", v.got.Prompt)
	}
}

func TestPromptScoreExtractsEmbeddedJSON(t *testing.T) {
	v := &fakeVision{reply: "Sure! Here is my rating:\n```json\n{\"score\": 42, \"feedback\": \"meh\"}\n```\nHope that helps."}
	d := New(v, nil, nil, nil)

	resp := d.Dispatch(context.Background(), Request{Kind: session.KindPrompt, Image: []byte{1}})
	got := resp.Data.(ScoreResult)
	if !resp.Success || got.Score != 42 || got.Feedback != "meh" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestPromptScoreFallsBackOnFreeText(t *testing.T) {
	v := &fakeVision{reply: "This screenshot shows a login form and it seems fine to me."}
	d := New(v, nil, nil, nil)

	resp := d.Dispatch(context.Background(), Request{Kind: session.KindPrompt, Image: []byte{1}})
	if !resp.Success {
		t.Fatalf("Fallback must still succeed: %+v", resp)
	}
	got := resp.Data.(ScoreResult)
	if got.Score != 50 {
		t.Errorf("Fallback score = %d, want 50", got.Score)
	}
	if !strings.Contains(got.Feedback, "login form") {
		t.Errorf("Fallback feedback = %q", got.Feedback)
	}
}

func TestPromptScoreClampsRange(t *testing.T) {
	cases := []struct {
		reply string
		want  int
	}{
		{`{"score": 150, "feedback": ""}`, 100},
		{`{"score": -3, "feedback": ""}`, 0},
	}
	for _, tc := range cases {
		d := New(&fakeVision{reply: tc.reply}, nil, nil, nil)
		resp := d.Dispatch(context.Background(), Request{Kind: session.KindPrompt, Image: []byte{1}})
		if got := resp.Data.(ScoreResult).Score; got != tc.want {
			t.Errorf("score for %s = %d, want %d", tc.reply, got, tc.want)
		}
	}
}

func TestPromptScoreTruncatesLongFallback(t *testing.T) {
	long := strings.Repeat("x", 2000)
	d := New(&fakeVision{reply: long}, nil, nil, nil)
	resp := d.Dispatch(context.Background(), Request{Kind: session.KindPrompt, Image: []byte{1}})
	if fb := resp.Data.(ScoreResult).Feedback; len(fb) > 510 {
		t.Errorf("Fallback feedback length = %d", len(fb))
	}
}

func TestBackendErrorBecomesEnvelope(t *testing.T) {
	d := New(&fakeVision{err: errors.New("connection refused")}, nil, nil, nil)
	resp := d.Dispatch(context.Background(), Request{Kind: session.KindPrompt, Image: []byte{1}})
	if resp.Success || !strings.Contains(resp.Error, "connection refused") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestTextgrabUsesOCR(t *testing.T) {
	d := New(nil, &fakeOCR{text: "extracted"}, nil, nil)
	resp := d.Dispatch(context.Background(), Request{Kind: session.KindTextgrab, Image: []byte{1}})
	if !resp.Success || resp.Data.(TextResult).Text != "extracted" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSpeechTranscribes(t *testing.T) {
	d := New(nil, nil, &fakeSTT{text: "hello"}, nil)
	resp := d.Dispatch(context.Background(), Request{
		Kind:       session.KindSpeech,
		Audio:      []float32{0.1},
		SampleRate: 16000,
	})
	if !resp.Success || resp.Data.(TextResult).Text != "hello" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSpeechWithoutAudioFails(t *testing.T) {
	d := New(nil, nil, &fakeSTT{}, nil)
	resp := d.Dispatch(context.Background(), Request{Kind: session.KindSpeech})
	if resp.Success || resp.Error == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestMissingImageRecaptures(t *testing.T) {
	cap := &fakeCapturer{shot: &capture.Shot{JPEG: []byte{9, 9}}}
	d := New(nil, &fakeOCR{text: "ok"}, nil, cap)

	resp := d.Dispatch(context.Background(), Request{Kind: session.KindTextgrab, DisplayID: 2})
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if cap.got.DisplayID != 2 {
		t.Errorf("Re-capture display = %d, want 2", cap.got.DisplayID)
	}
}

func TestMissingImageWithoutCapturerFails(t *testing.T) {
	d := New(nil, &fakeOCR{}, nil, nil)
	resp := d.Dispatch(context.Background(), Request{Kind: session.KindTextgrab})
	if resp.Success {
		t.Errorf("resp = %+v", resp)
	}
}

func TestUnknownKindFails(t *testing.T) {
	d := New(nil, nil, nil, nil)
	resp := d.Dispatch(context.Background(), Request{Kind: session.AnalyzerKind("bogus")})
	if resp.Success || resp.Error == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestMissingBackendsFailCleanly(t *testing.T) {
	d := New(nil, nil, nil, nil)
	for _, kind := range []session.AnalyzerKind{
		session.KindPrompt,
		session.KindImage,
		session.KindTextgrab,
		session.KindSpeech,
	} {
		resp := d.Dispatch(context.Background(), Request{Kind: kind, Image: []byte{1}, Audio: []float32{0}, SampleRate: 16000})
		if resp.Success || resp.Error == "" {
			t.Errorf("%s: resp = %+v", kind, resp)
		}
	}
}

func TestKindsRouteByWireValue(t *testing.T) {
	cases := []struct {
		kind string
		want string
	}{
		{"textgrab", "from ocr"},
		{"speech", "from stt"},
	}
	d := New(nil, &fakeOCR{text: "from ocr"}, &fakeSTT{text: "from stt"}, nil)
	for _, tc := range cases {
		resp := d.Dispatch(context.Background(), Request{
			Kind:       session.AnalyzerKind(tc.kind),
			Image:      []byte{1},
			Audio:      []float32{0},
			SampleRate: 16000,
		})
		if !resp.Success {
			t.Errorf("%s: %+v", tc.kind, resp)
			continue
		}
		if got := resp.Data.(TextResult).Text; got != tc.want {
			t.Errorf("%s routed to %q, want %q", tc.kind, got, tc.want)
		}
	}
}
