package ipc

import (
	"testing"

	"snip-assist/coords"
)

func startTestServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	srv, err := NewServer(handler)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	go srv.Serve()
	t.Cleanup(srv.Close)
	return srv
}

func TestDetectFindsResident(t *testing.T) {
	srv := startTestServer(t, func(req Request) Response {
		return Response{Success: true}
	})

	port, found := Detect()
	if !found {
		t.Fatal("Detect did not find the running server")
	}
	if port != srv.Port() {
		t.Errorf("Detect port = %d, want %d", port, srv.Port())
	}
}

func TestCallRoundTrip(t *testing.T) {
	var got Request
	srv := startTestServer(t, func(req Request) Response {
		got = req
		return Response{Success: true, Data: map[string]interface{}{"text": "hello"}}
	})

	resp, err := Call(srv.Port(), Request{
		Op:   OpReportSelection,
		Kind: "prompt",
		Bounds: &coords.Rect{X: 10, Y: 20, Width: 300, Height: 200},
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !resp.Success {
		t.Errorf("response not successful: %+v", resp)
	}
	if got.Op != OpReportSelection || got.Kind != "prompt" {
		t.Errorf("server saw %+v", got)
	}
	if got.Bounds == nil || got.Bounds.Width != 300 {
		t.Errorf("bounds did not survive the wire: %+v", got.Bounds)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["text"] != "hello" {
		t.Errorf("data did not survive the wire: %+v", resp.Data)
	}
}

func TestCallErrorEnvelope(t *testing.T) {
	srv := startTestServer(t, func(req Request) Response {
		return Response{Error: "busy"}
	})

	resp, err := Call(srv.Port(), Request{Op: OpStartSelection})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.Success || resp.Error != "busy" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestMissingOpRejected(t *testing.T) {
	srv := startTestServer(t, func(req Request) Response {
		t.Error("handler should not run for a request without an op")
		return Response{}
	})

	resp, err := Call(srv.Port(), Request{})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("expected error envelope, got %+v", resp)
	}
}

func TestDetectWithoutResident(t *testing.T) {
	t.Setenv("SNIP_ASSIST_PORT_START", "49790")
	t.Setenv("SNIP_ASSIST_PORT_END", "49792")

	if _, found := Detect(); found {
		t.Error("Detect reported a resident on an empty range")
	}
}
