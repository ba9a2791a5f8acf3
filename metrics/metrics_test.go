package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ConnectAttempt(true)
	m.EpochConnected()
	m.ChannelState(2)
	m.ObjectCreated(true)
	m.ObjectDestroyed(true)
	m.Invocation(InvocationForwarded)
	m.VariantReleased(true)
	m.QueueDepth(3)
	m.Trigger(true, time.Millisecond)
	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.ConnectAttempt(false)
	m.ConnectAttempt(false)
	m.ConnectAttempt(true)
	if got := testutil.ToFloat64(m.connectAttempts.WithLabelValues("failure")); got != 2 {
		t.Errorf("failed connect attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.connectAttempts.WithLabelValues("success")); got != 1 {
		t.Errorf("successful connect attempts = %v, want 1", got)
	}

	m.ObjectCreated(true)
	if got := testutil.ToFloat64(m.objectsLive); got != 1 {
		t.Errorf("objects live = %v, want 1", got)
	}
	m.ObjectDestroyed(false)
	if got := testutil.ToFloat64(m.objectsLive); got != 0 {
		t.Errorf("objects live after destroy = %v, want 0", got)
	}

	m.Invocation(InvocationForwarded)
	m.Invocation(InvocationDropped)
	m.Invocation(InvocationForwarded)
	if got := testutil.ToFloat64(m.invocations.WithLabelValues(InvocationForwarded)); got != 2 {
		t.Errorf("forwarded invocations = %v, want 2", got)
	}

	m.ChannelState(2)
	if got := testutil.ToFloat64(m.channelState); got != 2 {
		t.Errorf("channel state = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Trigger(true, 2*time.Millisecond)
	m.QueueDepth(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`eagleray_triggers_total{result="success"} 1`,
		"eagleray_command_queue_depth 4",
		"eagleray_trigger_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServeListener(t *testing.T) {
	m := New()
	m.EpochConnected()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.ServeListener(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "eagleray_connection_epochs_total 1") {
		t.Errorf("metrics output:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListener returned %v after cancel, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeListener did not stop after cancel")
	}

	if _, err := http.Get("http://" + listener.Addr().String() + "/metrics"); err == nil {
		t.Error("listener should be closed after shutdown")
	}
}

func TestServe_BadAddress(t *testing.T) {
	if err := New().Serve(context.Background(), "127.0.0.1:-1"); err == nil {
		t.Error("Serve should fail on an invalid address")
	}
}
