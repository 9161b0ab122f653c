package pty

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestServeHTTPRunsCommandToCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(ServeHTTP))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ClientFrame{Type: ClientStart, Cmd: "exit 0"}); err != nil {
		t.Fatalf("write start frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var f ServerFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Type == ServerExit {
			if f.Code != 0 {
				t.Fatalf("expected exit code 0, got %d", f.Code)
			}
			return
		}
		if f.Type == ServerError {
			t.Fatalf("unexpected error frame: %s", f.Message)
		}
	}
}

func TestServeHTTPRejectsNonStartFirstFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(ServeHTTP))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ClientFrame{Type: ClientInput, DataB64: "aGk="}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var f ServerFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if f.Type != ServerError {
		t.Fatalf("expected error frame, got %+v", f)
	}
}
