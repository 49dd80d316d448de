package eventloop

import (
	"context"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"snip-assist/capture"
	"snip-assist/coords"
	"snip-assist/dispatch"
	"snip-assist/display"
	"snip-assist/ipc"
	"snip-assist/popup"
	"snip-assist/session"
	"snip-assist/worker"
)

func testDisplays() []display.Display {
	return []display.Display{{
		ID:          1,
		Bounds:      image.Rect(0, 0, 200, 100),
		ScaleFactor: 1,
		Primary:     true,
	}}
}

func testCapturer() *capture.Capturer {
	grab := func(bounds image.Rectangle) (*image.RGBA, error) {
		return image.NewRGBA(bounds), nil
	}
	enumerate := func() []display.Display { return testDisplays() }
	pointer := func() image.Point { return image.Pt(10, 10) }
	return capture.NewWith(grab, enumerate, pointer)
}

type fakeSelector struct {
	mu        sync.Mutex
	bounds    coords.Rect
	cancelled bool
	err       error
	block     chan struct{} // when non-nil, Select waits on it
	blockOnce bool          // only the first call waits
	calls     int
	tornDown  bool // a waiting call saw its context cancelled
}

func (f *fakeSelector) Select(ctx context.Context, d display.Display) (coords.Rect, bool, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	if f.blockOnce && f.calls > 1 {
		block = nil
	}
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			f.mu.Lock()
			f.tornDown = true
			f.mu.Unlock()
			return coords.Rect{}, true, nil
		}
	}
	return f.bounds, f.cancelled, f.err
}

func (f *fakeSelector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeWindow struct {
	mu     sync.Mutex
	closed bool
}

func (w *fakeWindow) Close() { w.mu.Lock(); w.closed = true; w.mu.Unlock() }

func (w *fakeWindow) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed
}

type fakePresenter struct {
	mu    sync.Mutex
	texts []string
}

func (p *fakePresenter) Present(kind popup.Kind, text string) (popup.Window, error) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()
	return &fakeWindow{}, nil
}

func (p *fakePresenter) shown() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

type fakeOCR struct {
	mu      sync.Mutex
	text    string
	release chan struct{} // when non-nil, ExtractText waits on it
	calls   int
}

func (f *fakeOCR) ExtractText(img []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return f.text, nil
}

type fakeSTT struct{ text string }

func (f *fakeSTT) Transcribe(ctx context.Context, samples []float32, rate int) (string, error) {
	return f.text, nil
}

type loopFixture struct {
	loop      *Loop
	sess      *session.State
	presenter *fakePresenter
	selector  *fakeSelector
	ocr       *fakeOCR

	mu        sync.Mutex
	delivered []string
}

func newFixture(t *testing.T) *loopFixture {
	t.Helper()
	f := &loopFixture{
		sess:      session.New(),
		presenter: &fakePresenter{},
		selector:  &fakeSelector{bounds: coords.Rect{X: 10, Y: 10, Width: 80, Height: 40}},
		ocr:       &fakeOCR{text: "grabbed text"},
	}
	d := dispatch.New(nil, f.ocr, &fakeSTT{text: "spoken words"}, nil)
	f.loop = New(Deps{
		Session:    f.sess,
		Capturer:   testCapturer(),
		Selector:   f.selector,
		Pool:       worker.New(d, 1),
		Dispatcher: d,
		Popups:     popup.NewManager(f.presenter),
		Displays:   testDisplays,
		Deliver: func(text string) error {
			f.mu.Lock()
			f.delivered = append(f.delivered, text)
			f.mu.Unlock()
			return nil
		},
		SetBusy: func(bool) {},
	})
	return f
}

func (f *loopFixture) deliveredTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.delivered...)
}

func runLoop(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTextgrabFlowDeliversResult(t *testing.T) {
	f := newFixture(t)
	runLoop(t, f.loop)

	f.loop.PostAction(session.KindTextgrab)

	waitFor(t, "delivery", func() bool { return len(f.deliveredTexts()) > 0 })
	if got := f.deliveredTexts()[0]; got != "grabbed text" {
		t.Errorf("delivered %q, want %q", got, "grabbed text")
	}
	waitFor(t, "session clear", func() bool { return f.sess.Phase() == session.Idle })

	texts := f.presenter.shown()
	if len(texts) < 2 || texts[len(texts)-1] != "grabbed text" {
		t.Errorf("popup sequence = %q, want progress then result", texts)
	}
}

func TestCancelledSelectionClearsSession(t *testing.T) {
	f := newFixture(t)
	f.selector.cancelled = true
	runLoop(t, f.loop)

	f.loop.PostAction(session.KindTextgrab)

	waitFor(t, "session clear", func() bool { return f.sess.Phase() == session.Idle })
	if got := f.deliveredTexts(); len(got) != 0 {
		t.Errorf("cancelled selection still delivered %q", got)
	}
}

func TestSecondHotkeyTearsDownPendingSelection(t *testing.T) {
	f := newFixture(t)
	f.selector.block = make(chan struct{})
	f.selector.blockOnce = true
	runLoop(t, f.loop)

	f.loop.PostAction(session.KindTextgrab)
	waitFor(t, "first overlay open", func() bool { return f.selector.callCount() == 1 })

	// A second press while the overlay is up supersedes: the pending
	// overlay must be cancelled before the new one opens.
	f.loop.PostAction(session.KindTextgrab)
	waitFor(t, "first overlay teardown", func() bool {
		f.selector.mu.Lock()
		defer f.selector.mu.Unlock()
		return f.selector.tornDown
	})

	waitFor(t, "delivery", func() bool { return len(f.deliveredTexts()) == 1 })
	if got := f.deliveredTexts()[0]; got != "grabbed text" {
		t.Errorf("delivered %q, want %q", got, "grabbed text")
	}
	waitFor(t, "session clear", func() bool { return f.sess.Phase() == session.Idle })
}

func TestBusyLoopRejectsSecondAction(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.ocr.release = release
	runLoop(t, f.loop)

	f.loop.PostAction(session.KindTextgrab)
	waitFor(t, "first job start", func() bool {
		f.ocr.mu.Lock()
		defer f.ocr.mu.Unlock()
		return f.ocr.calls == 1
	})

	f.loop.PostAction(session.KindTextgrab)
	waitFor(t, "busy popup", func() bool {
		for _, text := range f.presenter.shown() {
			if strings.Contains(text, "Busy") {
				return true
			}
		}
		return false
	})

	close(release)
	waitFor(t, "delivery", func() bool { return len(f.deliveredTexts()) == 1 })
	f.ocr.mu.Lock()
	calls := f.ocr.calls
	f.ocr.mu.Unlock()
	if calls != 1 {
		t.Errorf("backend ran %d times, want 1", calls)
	}
}

func TestRemoteStoredShotAndCancel(t *testing.T) {
	f := newFixture(t)
	block := make(chan struct{})
	f.selector.block = block
	defer close(block)
	runLoop(t, f.loop)

	f.loop.PostAction(session.KindPrompt)
	waitFor(t, "awaiting selection", func() bool {
		return f.sess.Phase() == session.AwaitingSelection
	})

	resp := f.loop.HandleCall(ipc.Request{Op: ipc.OpStoredShot})
	if !resp.Success {
		t.Fatalf("get-stored-screenshot failed: %s", resp.Error)
	}
	img, ok := resp.Data.([]byte)
	if !ok || len(img) == 0 {
		t.Errorf("stored screenshot empty or wrong type: %T", resp.Data)
	}

	resp = f.loop.HandleCall(ipc.Request{Op: ipc.OpCancelSelection})
	if !resp.Success {
		t.Fatalf("cancel-selection failed: %s", resp.Error)
	}
	if f.sess.Phase() != session.Idle {
		t.Errorf("session phase after cancel = %s, want idle", f.sess.Phase())
	}
}

func TestRemoteReportSelectionAfterStart(t *testing.T) {
	f := newFixture(t)
	block := make(chan struct{})
	f.selector.block = block
	defer close(block)
	runLoop(t, f.loop)

	resp := f.loop.HandleCall(ipc.Request{Op: ipc.OpStartSelection, Kind: "textgrab"})
	if !resp.Success {
		t.Fatalf("start-selection failed: %s", resp.Error)
	}

	resp = f.loop.HandleCall(ipc.Request{
		Op:     ipc.OpReportSelection,
		Bounds: &coords.Rect{X: 5, Y: 5, Width: 60, Height: 30},
	})
	if !resp.Success {
		t.Fatalf("report-selection failed: %s", resp.Error)
	}

	waitFor(t, "delivery", func() bool { return len(f.deliveredTexts()) == 1 })
}

func TestRemoteTranscribe(t *testing.T) {
	f := newFixture(t)
	runLoop(t, f.loop)

	resp := f.loop.HandleCall(ipc.Request{
		Op:         ipc.OpTranscribe,
		Audio:      []float32{0, 0.25, -0.25},
		SampleRate: 16000,
	})
	if !resp.Success {
		t.Fatalf("transcribe failed: %s", resp.Error)
	}
	text, ok := resp.Data.(dispatch.TextResult)
	if !ok || text.Text != "spoken words" {
		t.Errorf("transcribe data = %#v", resp.Data)
	}
}

func TestRemoteUnknownOp(t *testing.T) {
	f := newFixture(t)
	runLoop(t, f.loop)

	resp := f.loop.HandleCall(ipc.Request{Op: "reticulate-splines"})
	if resp.Success || resp.Error == "" {
		t.Errorf("unknown op accepted: %+v", resp)
	}
}

func TestFormatResponse(t *testing.T) {
	cases := []struct {
		name string
		resp dispatch.Response
		want string
	}{
		{"score", dispatch.Response{Success: true, Data: dispatch.ScoreResult{Score: 72, Feedback: "close"}}, "Score: 72/100\nclose"},
		{"text", dispatch.Response{Success: true, Data: dispatch.TextResult{Text: "hello"}}, "hello"},
		{"failure", dispatch.Response{Error: "backend down"}, "backend down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatResponse(tc.resp); got != tc.want {
				t.Errorf("formatResponse = %q, want %q", got, tc.want)
			}
		})
	}
}
