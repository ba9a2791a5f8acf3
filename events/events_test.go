package events

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitf(t *testing.T) {
	rec := NewRecorder()
	Emitf(rec, KindConnect, "epoch-1", "Connect (%d) = %d", 0, 1)

	evs := rec.Events()
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if evs[0].Message != "Connect (0) = 1" {
		t.Errorf("Message = %q", evs[0].Message)
	}
	if evs[0].Kind != KindConnect || evs[0].Epoch != "epoch-1" {
		t.Errorf("event = %+v", evs[0])
	}
	if evs[0].Time.IsZero() {
		t.Error("Time should be set")
	}

	// A nil sink is ignored.
	Emitf(nil, KindPolling, "", "Polling...")
}

func TestFanout(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	sink := Fanout(a, nil, b)
	Emitf(sink, KindPolling, "", "Polling...")

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("fanout delivered %d and %d events", len(a.Events()), len(b.Events()))
	}
}

func TestLogSink(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))
	Emitf(NewLogSink(log), KindChannelState, "abc", "Channel state = %s", "connected")

	out := buf.String()
	for _, want := range []string{"Channel state = connected", "kind=channel-state", "epochID=abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestRecorder_WaitFor(t *testing.T) {
	rec := NewRecorder()
	go func() {
		time.Sleep(10 * time.Millisecond)
		Emitf(rec, KindTrigger, "", "go")
	}()

	if !rec.WaitFor(time.Second, func(ev Event) bool { return ev.Message == "go" }) {
		t.Fatal("WaitFor did not see the event")
	}
	if rec.WaitFor(20*time.Millisecond, func(ev Event) bool { return ev.Message == "never" }) {
		t.Error("WaitFor matched an event that was never emitted")
	}
}

// shortSocketPath keeps unix socket paths under the platform length limit.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "er")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "ev.sock")
}

func TestServer_BroadcastAndBacklog(t *testing.T) {
	srv, err := NewServer(shortSocketPath(t), testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Start()
	srv.WaitReady()
	defer srv.Close()

	// Events emitted before the client connects arrive as backlog.
	Emitf(srv, KindBanner, "", "banner")

	c, err := Dial(srv.SocketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ev, err := c.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Message != "banner" || ev.Kind != KindBanner {
		t.Errorf("backlog event = %+v", ev)
	}

	Emitf(srv, KindConnect, "e1", "Connect (0) = 1")
	ev, err = c.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Message != "Connect (0) = 1" || ev.Epoch != "e1" {
		t.Errorf("live event = %+v", ev)
	}
}

func TestServer_BacklogIsBounded(t *testing.T) {
	srv, err := NewServer(shortSocketPath(t), testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Start()
	srv.WaitReady()
	defer srv.Close()

	for i := 0; i < BacklogSize+5; i++ {
		Emitf(srv, KindPolling, "", "line %d", i)
	}

	c, err := Dial(srv.SocketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	first, err := c.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if want := fmt.Sprintf("line %d", 5); first.Message != want {
		t.Errorf("first backlog event = %q, want %q", first.Message, want)
	}
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	path := shortSocketPath(t)
	srv, err := NewServer(path, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Start()
	srv.WaitReady()

	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	// Make sure the server registered the client before closing.
	Emitf(srv, KindBanner, "", "hello")
	if _, err := c.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := c.Next(); err == nil {
		t.Error("Next should fail after server close")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("socket file should be removed on close")
	}

	// Emit after close is a no-op.
	Emitf(srv, KindBanner, "", "late")
}
