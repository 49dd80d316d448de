package eventloop

import (
	"context"
	"log"

	"snip-assist/dispatch"
	"snip-assist/hotkey"
	"snip-assist/ipc"
	"snip-assist/session"
)

// handleRemote executes one remote operation on the loop goroutine.
// Analysis ops run on their own goroutine so a slow backend cannot stall
// hotkey handling; everything touching session or router state stays here.
func (l *Loop) handleRemote(ctx context.Context, call remoteCall) {
	req := call.req
	switch req.Op {
	case ipc.OpStartSelection:
		kind := session.AnalyzerKind(req.Kind)
		if !kind.Valid() {
			call.reply <- ipc.Response{Error: "unknown analyzer kind: " + req.Kind}
			return
		}
		l.handleAction(ctx, kind)
		call.reply <- ipc.Response{Success: true}

	case ipc.OpReportSelection:
		if req.Bounds == nil {
			call.reply <- ipc.Response{Error: "missing bounds"}
			return
		}
		l.handleSelection(ctx, selectionEvent{
			epoch:  l.deps.Session.Epoch(),
			bounds: *req.Bounds,
		})
		call.reply <- ipc.Response{Success: true}

	case ipc.OpCancelSelection:
		l.deps.Session.Cancel(l.deps.Session.Epoch())
		call.reply <- ipc.Response{Success: true}

	case ipc.OpStoredShot:
		shot, ok := l.deps.Session.StoredShot()
		if !ok {
			call.reply <- ipc.Response{Error: "no stored screenshot"}
			return
		}
		call.reply <- ipc.Response{Success: true, Data: shot.JPEG}

	case ipc.OpRegisterHotkey:
		action := hotkey.Action(req.Kind)
		if err := l.deps.Router.Register(action, req.Accelerator); err != nil {
			call.reply <- ipc.Response{Error: err.Error()}
			return
		}
		call.reply <- ipc.Response{Success: true}

	case ipc.OpUnregisterHotkey:
		if err := l.deps.Router.Unregister(hotkey.Action(req.Kind)); err != nil {
			call.reply <- ipc.Response{Error: err.Error()}
			return
		}
		call.reply <- ipc.Response{Success: true}

	case ipc.OpSpeechPress:
		if err := l.speechPress(false); err != nil {
			call.reply <- ipc.Response{Error: err.Error()}
			return
		}
		call.reply <- ipc.Response{Success: true}

	case ipc.OpShouldStop:
		call.reply <- ipc.Response{Success: true, Data: l.deps.Speech.ShouldStop()}

	case ipc.OpDispatch:
		kind := session.AnalyzerKind(req.Kind)
		l.dispatchAsync(ctx, call, dispatch.Request{
			Kind:      kind,
			Image:     req.Image,
			Prompt:    req.Prompt,
			DisplayID: -1,
		})

	case ipc.OpTranscribe:
		l.dispatchAsync(ctx, call, dispatch.Request{
			Kind:       session.KindSpeech,
			Audio:      req.Audio,
			SampleRate: req.SampleRate,
		})

	case ipc.OpHistory:
		limit := req.Limit
		if limit <= 0 {
			limit = 20
		}
		entries, err := l.deps.History.Recent(limit)
		if err != nil {
			call.reply <- ipc.Response{Error: err.Error()}
			return
		}
		call.reply <- ipc.Response{Success: true, Data: entries}

	default:
		call.reply <- ipc.Response{Error: "unknown op: " + req.Op}
	}
}

func (l *Loop) dispatchAsync(ctx context.Context, call remoteCall, req dispatch.Request) {
	go func() {
		jobCtx, cancel := context.WithTimeout(ctx, analysisDeadline)
		defer cancel()
		resp := l.deps.Dispatcher.Dispatch(jobCtx, req)
		if l.deps.History != nil {
			if _, err := l.deps.History.Record(string(req.Kind), resp.Success, formatResponse(resp)); err != nil {
				log.Printf("eventloop: record history: %v", err)
			}
		}
		call.reply <- ipc.Response{Success: resp.Success, Data: resp.Data, Error: resp.Error}
	}()
}
