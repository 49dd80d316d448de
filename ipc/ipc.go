// Package ipc exposes the resident process's operation set on a loopback
// TCP port. The same endpoint doubles as the single-instance detector: a
// second launch pings the port range, finds the resident and delegates
// instead of starting its own hotkey hook.
package ipc

import (
	"os"
	"strconv"

	"snip-assist/coords"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING"
	pongResponse = "PONG"

	defaultPortStart = 49600
	defaultPortEnd   = 49650
)

// Request is one JSON-line operation call.
type Request struct {
	Op          string       `json:"op"`
	Kind        string       `json:"kind,omitempty"`
	Accelerator string       `json:"accelerator,omitempty"`
	Bounds      *coords.Rect `json:"bounds,omitempty"`
	Prompt      string       `json:"prompt,omitempty"`
	Image       []byte       `json:"image,omitempty"`
	Audio       []float32    `json:"audio,omitempty"`
	SampleRate  int          `json:"sampleRate,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// Response mirrors the dispatch envelope on the wire.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Operation names accepted by the server.
const (
	OpStartSelection   = "start-selection"
	OpReportSelection  = "report-selection"
	OpCancelSelection  = "cancel-selection"
	OpStoredShot       = "get-stored-screenshot"
	OpRegisterHotkey   = "register-hotkey"
	OpUnregisterHotkey = "unregister-hotkey"
	OpDispatch         = "dispatch-analysis"
	OpSpeechPress      = "speech-press"
	OpShouldStop       = "should-stop-speech"
	OpTranscribe       = "transcribe"
	OpHistory          = "history"
)

func portRange() (int, int) {
	start, end := defaultPortStart, defaultPortEnd
	if v := os.Getenv("SNIP_ASSIST_PORT_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	if v := os.Getenv("SNIP_ASSIST_PORT_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			end = n
		}
	}
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	if end < start {
		start, end = end, start
	}
	return start, end
}
