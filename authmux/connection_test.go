package authmux

import (
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDialConnectionHandshake(t *testing.T) {
	w := newFakeWorker(t, uint32(MechPlain))
	w.serveOne(t)

	c, err := dialConnection(w.path, 99, discardLogger(), nil)
	if err != nil {
		t.Fatalf("dialConnection: %v", err)
	}
	defer c.die(nil)

	if c.State() != connReady {
		t.Errorf("State() = %v, want connReady", c.State())
	}
	if !c.Advertises(MechPlain) {
		t.Error("Advertises(MechPlain) = false, want true")
	}
	if c.Advertises(MechCRAMMD5) {
		t.Error("Advertises(MechCRAMMD5) = true, want false")
	}
}

func TestDialConnectionRefusedSocket(t *testing.T) {
	_, err := dialConnection("/nonexistent/path/does/not/exist.sock", 1, discardLogger(), nil)
	if err == nil {
		t.Fatal("dialConnection to a nonexistent socket should fail")
	}
}

func TestConnectionRequestReplyRoundTrip(t *testing.T) {
	w := newFakeWorker(t, uint32(MechPlain))
	w.serveOne(t)

	c, err := dialConnection(w.path, 1, discardLogger(), nil)
	if err != nil {
		t.Fatalf("dialConnection: %v", err)
	}
	defer c.die(nil)

	var mu sync.Mutex
	var gotResult byte
	var gotData []byte
	done := make(chan struct{})

	req := &Request{id: 1, mech: MechPlain, conn: c, callback: func(r *Request, reply Reply) {
		mu.Lock()
		gotResult = reply.Result
		gotData = reply.Data
		mu.Unlock()
		close(done)
	}}
	c.register(req)

	if err := c.sendNew(req.id, 0, MechPlain); err != nil {
		t.Fatalf("sendNew: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotResult != ResultOK {
		t.Errorf("Result = %d, want ResultOK", gotResult)
	}
	if string(gotData) != "alice" {
		t.Errorf("Data = %q, want alice", string(gotData))
	}
}

func TestConnectionDieAbortsPendingRequests(t *testing.T) {
	w := newFakeWorker(t, uint32(MechPlain))
	w.serveOne(t)

	c, err := dialConnection(w.path, 1, discardLogger(), nil)
	if err != nil {
		t.Fatalf("dialConnection: %v", err)
	}

	done := make(chan Reply, 1)
	req := &Request{id: 7, conn: c, callback: func(r *Request, reply Reply) {
		done <- reply
	}}
	c.register(req)

	c.die(nil)

	select {
	case reply := <-done:
		if !reply.Aborted {
			t.Error("Aborted = false, want true after connection died")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for abort callback")
	}

	if c.State() != connDead {
		t.Errorf("State() = %v, want connDead", c.State())
	}
}

func TestConnectionDieIsIdempotent(t *testing.T) {
	w := newFakeWorker(t, uint32(MechPlain))
	w.serveOne(t)

	c, err := dialConnection(w.path, 1, discardLogger(), nil)
	if err != nil {
		t.Fatalf("dialConnection: %v", err)
	}

	var onDeadCalls int
	c.onDead = func(*Connection) { onDeadCalls++ }

	c.die(nil)
	c.die(nil)

	if onDeadCalls != 1 {
		t.Errorf("onDead called %d times, want 1", onDeadCalls)
	}
}

func TestOversizedHandshakeIsRejected(t *testing.T) {
	path := t.TempDir() + "/bad.sock"
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, handshakeInputSize)
		readFull(conn, buf)
		// send the handshake plus extra trailing bytes in one write.
		oversized := append(encodeHandshakeOutput(1, uint32(MechPlain)), 0xFF, 0xFF)
		conn.Write(oversized)
		time.Sleep(200 * time.Millisecond)
	}()

	_, err = dialConnection(path, 1, discardLogger(), nil)
	if err == nil {
		t.Fatal("dialConnection should reject an oversized handshake")
	}
}
