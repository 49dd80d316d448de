// Package eventloop is the single-threaded coordinator. Hotkey presses,
// tray clicks, overlay callbacks, worker results and remote operation
// calls all funnel into one goroutine, so session state never needs more
// than the epoch checks to stay consistent.
package eventloop

import (
	"context"
	"fmt"
	"log"
	"time"

	"snip-assist/capture"
	"snip-assist/clipboard"
	"snip-assist/coords"
	"snip-assist/dispatch"
	"snip-assist/display"
	"snip-assist/history"
	"snip-assist/hotkey"
	"snip-assist/ipc"
	"snip-assist/overlay"
	"snip-assist/popup"
	"snip-assist/session"
	"snip-assist/speech"
	"snip-assist/tray"
	"snip-assist/worker"
)

// analysisDeadline bounds one analyzer job end to end.
const analysisDeadline = 120 * time.Second

// Deps collects everything the loop coordinates. Tests substitute fakes.
type Deps struct {
	Session    *session.State
	Capturer   *capture.Capturer
	Selector   overlay.Selector
	Pool       *worker.Pool
	Dispatcher *dispatch.Dispatcher
	Popups     *popup.Manager
	History    *history.Store
	Speech     *speech.Controller
	Router     *hotkey.Router
	Displays   display.Enumerator

	// Deliver puts a successful result where the user wants it. Defaults
	// to the clipboard.
	Deliver func(text string) error

	// SetBusy reflects in-flight analysis in the tray. Defaults to tray.SetBusy.
	SetBusy func(bool)
}

// Loop runs the coordinator.
type Loop struct {
	deps Deps

	busy bool

	// selCancel tears down the in-flight overlay when a new action
	// supersedes its session. Touched only on the loop goroutine.
	selCancel context.CancelFunc

	actions    chan session.AnalyzerKind
	selections chan selectionEvent
	results    chan loopResult
	calls      chan remoteCall
}

type selectionEvent struct {
	epoch     uint64
	bounds    coords.Rect
	cancelled bool
	err       error
}

type loopResult struct {
	kind   session.AnalyzerKind
	resp   dispatch.Response
	cancel context.CancelFunc
}

type remoteCall struct {
	req   ipc.Request
	reply chan ipc.Response
}

// New builds a loop over the given collaborators.
func New(deps Deps) *Loop {
	if deps.Displays == nil {
		deps.Displays = display.Enumerate
	}
	if deps.Deliver == nil {
		deps.Deliver = clipboard.Write
	}
	if deps.SetBusy == nil {
		deps.SetBusy = tray.SetBusy
	}
	return &Loop{
		deps:       deps,
		actions:    make(chan session.AnalyzerKind, 4),
		selections: make(chan selectionEvent, 4),
		results:    make(chan loopResult, 1),
		calls:      make(chan remoteCall, 4),
	}
}

// PostAction queues an analyzer request from the tray or a hotkey. Drops
// the event when the queue is full rather than blocking the caller.
func (l *Loop) PostAction(kind session.AnalyzerKind) {
	select {
	case l.actions <- kind:
	default:
		log.Printf("eventloop: action queue full, dropping %s", kind)
	}
}

// HandleHotkey is the router callback. Speech goes straight to its
// controller; everything else becomes a queued action.
func (l *Loop) HandleHotkey(action hotkey.Action, repeat bool) {
	switch action {
	case hotkey.ActionSpeech:
		if err := l.speechPress(repeat); err != nil {
			log.Printf("eventloop: speech press failed: %v", err)
		}
	case hotkey.ActionMaster:
		l.PostAction(session.KindNone)
	case hotkey.ActionPrompt:
		l.PostAction(session.KindPrompt)
	case hotkey.ActionImage:
		l.PostAction(session.KindImage)
	case hotkey.ActionTextgrab:
		l.PostAction(session.KindTextgrab)
	}
}

// HandleCall serves one remote operation. Safe to invoke from any
// goroutine; the reply arrives once the loop has processed the call.
func (l *Loop) HandleCall(req ipc.Request) ipc.Response {
	reply := make(chan ipc.Response, 1)
	select {
	case l.calls <- remoteCall{req: req, reply: reply}:
	case <-time.After(5 * time.Second):
		return ipc.Response{Error: "coordinator not responding"}
	}
	select {
	case resp := <-reply:
		return resp
	case <-time.After(analysisDeadline):
		return ipc.Response{Error: "operation timed out"}
	}
}

// Run processes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.deps.Pool.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case kind := <-l.actions:
			l.handleAction(ctx, kind)
		case ev := <-l.selections:
			l.handleSelection(ctx, ev)
		case res := <-l.results:
			l.handleResult(res)
		case call := <-l.calls:
			l.handleRemote(ctx, call)
		}
	}
}

func (l *Loop) setBusy(b bool) {
	l.busy = b
	l.deps.SetBusy(b)
}

// handleAction opens a selection session for kind. KindNone opens the
// picker popup instead.
func (l *Loop) handleAction(ctx context.Context, kind session.AnalyzerKind) {
	if kind == session.KindNone {
		l.showPicker()
		return
	}
	if l.busy {
		log.Printf("eventloop: busy, rejecting %s", kind)
		l.showPopup(popup.KindResult, "Busy, analyzing previous selection")
		return
	}

	// Superseding a pending session must also tear down its overlay
	// window before a new one opens; the selector serializes on it.
	if l.selCancel != nil {
		l.selCancel()
		l.selCancel = nil
	}

	snap, err := l.deps.Session.Begin(kind)
	if err != nil {
		log.Printf("eventloop: begin session: %v", err)
		return
	}

	shot, err := l.deps.Capturer.Capture(capture.Options{DisplayID: -1})
	if err != nil {
		// Dispatch re-captures on demand, so a failed pre-capture only
		// costs the lossless recrop path.
		log.Printf("eventloop: pre-capture failed: %v", err)
	} else {
		l.deps.Session.StoreShot(snap.Epoch, shot)
	}

	disp := l.resolveDisplay(shot.Meta.DisplayID)
	epoch := snap.Epoch
	selCtx, cancel := context.WithCancel(ctx)
	l.selCancel = cancel
	go func() {
		defer cancel()
		bounds, cancelled, err := l.deps.Selector.Select(selCtx, disp)
		l.selections <- selectionEvent{epoch: epoch, bounds: bounds, cancelled: cancelled, err: err}
	}()
}

func (l *Loop) resolveDisplay(id int) display.Display {
	displays := l.deps.Displays()
	if d, ok := display.Resolve(displays, id); ok {
		return d
	}
	if len(displays) > 0 {
		return displays[0]
	}
	return display.Display{}
}

func (l *Loop) handleSelection(ctx context.Context, ev selectionEvent) {
	if ev.epoch == l.deps.Session.Epoch() && l.selCancel != nil {
		l.selCancel()
		l.selCancel = nil
	}
	if ev.err != nil {
		log.Printf("eventloop: selection error: %v", ev.err)
		l.deps.Session.Cancel(ev.epoch)
		l.showPopup(popup.KindResult, "Selection failed")
		return
	}
	if ev.cancelled {
		l.deps.Session.Cancel(ev.epoch)
		return
	}

	snap, err := l.deps.Session.Resolve(ev.epoch, ev.bounds)
	if err != nil {
		if err == session.ErrBoundsTooSmall {
			l.deps.Session.Cancel(ev.epoch)
		}
		log.Printf("eventloop: resolve selection: %v", err)
		return
	}

	req := dispatch.Request{
		Kind:      snap.Kind,
		DisplayID: snap.Shot.Meta.DisplayID,
	}
	if len(snap.Shot.JPEG) > 0 {
		if img, err := capture.Recrop(snap.Shot, snap.Bounds); err == nil {
			req.Image = img
		} else {
			log.Printf("eventloop: recrop failed, will re-capture: %v", err)
		}
	}

	l.showPopup(popup.KindResult, "Analyzing...")

	jobCtx, cancel := context.WithTimeout(ctx, analysisDeadline)
	kind := snap.Kind
	l.setBusy(true)
	submitted := l.deps.Pool.Submit(jobCtx, req, func(resp dispatch.Response) {
		l.results <- loopResult{kind: kind, resp: resp, cancel: cancel}
	})
	if !submitted {
		cancel()
		l.setBusy(false)
		l.deps.Session.Clear()
		l.showPopup(popup.KindResult, "Busy, analyzing previous selection")
	}
}

func (l *Loop) handleResult(res loopResult) {
	defer func() {
		l.setBusy(false)
		if res.cancel != nil {
			res.cancel()
		}
	}()
	l.deps.Session.Clear()

	text := formatResponse(res.resp)
	if l.deps.History != nil {
		if _, err := l.deps.History.Record(string(res.kind), res.resp.Success, text); err != nil {
			log.Printf("eventloop: record history: %v", err)
		}
	}

	if !res.resp.Success {
		log.Printf("eventloop: %s analysis failed: %s", res.kind, res.resp.Error)
		l.showPopup(popup.KindResult, "Error: "+res.resp.Error)
		return
	}
	if err := l.deps.Deliver(text); err != nil {
		log.Printf("eventloop: delivery failed: %v", err)
		l.showPopup(popup.KindResult, "Clipboard error")
		return
	}
	l.showPopup(popup.KindResult, text)
}

func (l *Loop) showPopup(kind popup.Kind, text string) {
	if l.deps.Popups == nil {
		return
	}
	if err := l.deps.Popups.Show(kind, text); err != nil {
		log.Printf("eventloop: popup: %v", err)
	}
}

func (l *Loop) showPicker() {
	lines := "Pick an action:\n"
	for _, a := range []struct {
		action hotkey.Action
		label  string
	}{
		{hotkey.ActionPrompt, "Score region"},
		{hotkey.ActionImage, "Describe region"},
		{hotkey.ActionTextgrab, "Grab text"},
		{hotkey.ActionSpeech, "Hold to dictate"},
	} {
		if acc, ok := l.deps.Router.Binding(a.action); ok {
			lines += fmt.Sprintf("  %s  %s\n", acc.Raw, a.label)
		}
	}
	l.showPopup(popup.KindPicker, lines)
}

// speechPress routes a speech hotkey signal to the controller, passing
// along the rawcode groups its release watcher must poll.
func (l *Loop) speechPress(repeat bool) error {
	acc, ok := l.deps.Router.Binding(hotkey.ActionSpeech)
	if !ok {
		return fmt.Errorf("no speech binding registered")
	}
	var combo [][]uint16
	for _, key := range acc.Keys {
		combo = append(combo, hotkey.KeyRawcodes(key))
	}
	return l.deps.Speech.Press(combo, repeat)
}

// formatResponse flattens a dispatch envelope into popup/clipboard text.
func formatResponse(resp dispatch.Response) string {
	if !resp.Success {
		return resp.Error
	}
	switch data := resp.Data.(type) {
	case dispatch.ScoreResult:
		return fmt.Sprintf("Score: %d/100\n%s", data.Score, data.Feedback)
	case dispatch.TextResult:
		return data.Text
	case string:
		return data
	default:
		return fmt.Sprintf("%v", data)
	}
}
