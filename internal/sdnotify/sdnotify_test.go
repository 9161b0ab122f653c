package sdnotify

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestNotifyNoopWithoutNotifySocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if err := Ready(); err != nil {
		t.Fatalf("expected no-op without NOTIFY_SOCKET, got %v", err)
	}
}

func TestReadySendsReadyDatagram(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")
	addr := &net.UnixAddr{Name: sockPath, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		t.Fatalf("ListenUnixgram: %v", err)
	}
	defer conn.Close()

	t.Setenv("NOTIFY_SOCKET", sockPath)
	if err := Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(buf[:n]); got != "READY=1" {
		t.Fatalf("got %q, want READY=1", got)
	}
}

func TestStatusSendsStatusPrefixedDatagram(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify2.sock")
	addr := &net.UnixAddr{Name: sockPath, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		t.Fatalf("ListenUnixgram: %v", err)
	}
	defer conn.Close()

	t.Setenv("NOTIFY_SOCKET", sockPath)
	if err := Status("serving"); err != nil {
		t.Fatalf("Status: %v", err)
	}

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(buf[:n]); got != "STATUS=serving" {
		t.Fatalf("got %q, want STATUS=serving", got)
	}
}

func TestNotifyDialErrorIsReturned(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(os.TempDir(), "does-not-exist.sock"))
	if err := Ready(); err == nil {
		t.Fatal("expected an error dialing a nonexistent socket")
	}
}
