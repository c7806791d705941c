package authmux

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/argon2"
)

// fakeWorker is a minimal auth worker used by this package's tests: it
// accepts one connection, completes the handshake advertising a fixed
// mechanism set, and answers NEW frames for PLAIN by running a toy
// argon2 check against a single known credential.
type fakeWorker struct {
	ln         net.Listener
	path       string
	mechanisms uint32
	known      map[string][]byte // username -> argon2 hash
	salt       []byte
}

func newFakeWorker(t *testing.T, mechanisms uint32) *fakeWorker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen %s: %v", path, err)
	}
	salt := []byte("authmux-test-salt")
	w := &fakeWorker{
		ln:         ln,
		path:       path,
		mechanisms: mechanisms,
		salt:       salt,
		known: map[string][]byte{
			"alice": argon2.IDKey([]byte("hunter2"), salt, 1, 8*1024, 1, 32),
		},
	}
	t.Cleanup(func() { ln.Close() })
	return w
}

// serveOne starts a goroutine that accepts exactly one connection and
// runs the protocol loop until the connection closes or hits a read
// error. It returns at once, so the caller can dial afterwards.
func (w *fakeWorker) serveOne(t *testing.T) {
	t.Helper()
	go func() {
		conn, err := w.ln.Accept()
		if err != nil {
			return
		}
		w.handle(t, conn)
	}()
}

func (w *fakeWorker) handle(t *testing.T, conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)

	hsBuf := make([]byte, handshakeInputSize)
	if err := readFull(br, hsBuf); err != nil {
		return
	}
	if _, err := decodeHandshakeInput(hsBuf); err != nil {
		return
	}
	if _, err := conn.Write(encodeHandshakeOutput(4242, w.mechanisms)); err != nil {
		return
	}

	for {
		typeByte := make([]byte, 1)
		if err := readFull(br, typeByte); err != nil {
			return
		}
		switch typeByte[0] {
		case frameTypeNew:
			rest := make([]byte, 4+1+4)
			if err := readFull(br, rest); err != nil {
				return
			}
			id := leUint32(rest[0:4])
			mech := leUint32(rest[5:9])
			w.replyToNew(conn, id, mech)
		case frameTypeContinue:
			rest := make([]byte, 4+4)
			if err := readFull(br, rest); err != nil {
				return
			}
			id := leUint32(rest[0:4])
			size := leUint32(rest[4:8])
			payload := make([]byte, size)
			if err := readFull(br, payload); err != nil {
				return
			}
			w.replyToNew(conn, id, uint32(MechPlain))
		default:
			return
		}
	}
}

func (w *fakeWorker) replyToNew(conn net.Conn, id uint32, mech uint32) {
	if Mechanism(mech) != MechPlain {
		conn.Write(encodeReply(id, ResultFail, nil))
		return
	}
	hash := argon2.IDKey([]byte("hunter2"), w.salt, 1, 8*1024, 1, 32)
	want, ok := w.known["alice"]
	if !ok || len(hash) != len(want) {
		conn.Write(encodeReply(id, ResultFail, nil))
		return
	}
	for i := range hash {
		if hash[i] != want[i] {
			conn.Write(encodeReply(id, ResultFail, nil))
			return
		}
	}
	conn.Write(encodeReply(id, ResultOK, []byte("alice")))
}

func leUint32(p []byte) uint32 {
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
}
