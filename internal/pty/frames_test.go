package pty

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestClientFrameRoundTrip(t *testing.T) {
	in := ClientFrame{
		Type: ClientStart,
		Cmd:  "echo hi",
		Cwd:  "/tmp",
		Env:  map[string]string{"FOO": "bar"},
		Cols: 80,
		Rows: 24,
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ClientFrame
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out, ClientFrame{Type: ClientStart, Cmd: "echo hi", Cwd: "/tmp", Env: map[string]string{"FOO": "bar"}, Cols: 80, Rows: 24}) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestClientFrameInputVariant(t *testing.T) {
	in := ClientFrame{Type: ClientInput, DataB64: "aGVsbG8="}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["type"] != "input" || raw["data_b64"] != "aGVsbG8=" {
		t.Fatalf("unexpected wire shape: %+v", raw)
	}
	if _, present := raw["cmd"]; present {
		t.Fatalf("omitempty fields should not appear: %+v", raw)
	}
}

func TestServerFrameExitCodeZeroIsPreserved(t *testing.T) {
	f := ServerFrame{Type: ServerExit, Code: 0}
	b, err := f.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	code, ok := raw["code"]
	if !ok {
		t.Fatalf("code field must be present even when zero, got %s", b)
	}
	if code.(float64) != 0 {
		t.Fatalf("expected code 0, got %v", code)
	}
}

func TestServerFrameErrorMessage(t *testing.T) {
	f := ServerFrame{Type: ServerError, Message: "boom"}
	b, err := f.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ServerFrame
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != ServerError || out.Message != "boom" {
		t.Fatalf("unexpected round trip: %+v", out)
	}
}
