package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNoopCollectorDoesNotPanic(t *testing.T) {
	var c Collector = &NoopCollector{}
	c.MessageStaged()
	c.CommitSucceeded(3)
	c.CommitRolledBack()
	c.WorkerConnected()
	c.WorkerDisconnected()
	c.AuthRequest("PLAIN", "ok")
	c.AuthRequestRejected("saturated")
}

func TestPrometheusCollectorRegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.MessageStaged()
	c.CommitSucceeded(5)
	c.WorkerConnected()
	c.AuthRequest("PLAIN", "ok")
	c.AuthRequestRejected("busy")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one metric family after recording")
	}
}

func TestPrometheusServerStartAndShutdown(t *testing.T) {
	srv := NewPrometheusServer("127.0.0.1:0", "/metrics")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	if err := srv.Shutdown(context.Background()); err != nil && err != http.ErrServerClosed {
		t.Errorf("Shutdown() error = %v", err)
	}
}
