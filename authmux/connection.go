package authmux

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// connState mirrors spec.md section 4.4's per-connection state
// machine. READING_REPLY_BODY is folded into the reader goroutine's
// call stack rather than tracked as a distinct atomic state: a Go
// goroutine blocked reading a reply body needs no separate state for
// other goroutines to observe, since readiness is implicit in the
// blocking read itself.
type connState int32

const (
	connConnecting connState = iota
	connWaitingHandshake
	connReady
	connDead
)

// maxPendingPerConnection bounds how many in-flight requests a single
// connection will accept before InitRequest treats it as saturated,
// standing in for the original "output-buffer headroom" check: a Go
// write is synchronous, so pending-request count is the equivalent
// backpressure signal.
const maxPendingPerConnection = 256

// Connection is one live local-socket connection to an auth worker,
// refcounted per spec.md section 3: the Multiplexer's registry holds
// one strong count for as long as the connection is registered, and
// each Request created against it holds one more for the duration of
// the exchange.
type Connection struct {
	path   string
	conn   net.Conn
	logger *slog.Logger

	refcount atomic.Int32
	state    atomic.Int32

	mu         sync.Mutex
	pending    map[uint32]*Request
	mechanisms Mechanism
	workerPID  uint32

	onDead func(*Connection)
}

func newConnection(path string, conn net.Conn, logger *slog.Logger, onDead func(*Connection)) *Connection {
	c := &Connection{
		path:    path,
		conn:    conn,
		logger:  logger,
		pending: make(map[uint32]*Request),
		onDead:  onDead,
	}
	c.refcount.Store(1) // the registry's strong count
	c.state.Store(int32(connConnecting))
	return c
}

// dialConnection connects to the worker socket at path, performs the
// blocking handshake, and on success starts the connection's reader
// goroutine. The returned Connection is in state READY.
func dialConnection(path string, pid uint32, logger *slog.Logger, onDead func(*Connection)) (*Connection, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("authmux: dial %s: %w", path, err)
	}

	c := newConnection(path, conn, logger, onDead)

	if _, err := conn.Write(encodeHandshakeInput(pid)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authmux: send handshake to %s: %w", path, err)
	}
	c.state.Store(int32(connWaitingHandshake))

	br := bufio.NewReaderSize(conn, handshakeOutputSize+1)
	buf := make([]byte, handshakeOutputSize)
	if err := readFull(br, buf); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authmux: read handshake from %s: %w", path, err)
	}
	if br.Buffered() > 0 {
		conn.Close()
		return nil, fmt.Errorf("authmux: handshake from %s carried trailing bytes: %w", path, errProtocolViolation)
	}
	workerPID, mechs, err := decodeHandshakeOutput(buf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("authmux: %s: %w", path, err)
	}

	c.workerPID = workerPID
	c.mechanisms = Mechanism(mechs)
	c.state.Store(int32(connReady))

	go c.readLoop(br)

	return c, nil
}

// State reports the connection's current state.
func (c *Connection) State() connState { return connState(c.state.Load()) }

// Mechanisms returns the bitset of mechanisms this worker advertised
// at handshake.
func (c *Connection) Mechanisms() Mechanism { return c.mechanisms }

// Advertises reports whether the connection's worker advertised mech.
func (c *Connection) Advertises(mech Mechanism) bool {
	return c.mechanisms&mech != 0
}

// Saturated reports whether the connection already has as many
// in-flight requests as it will accept.
func (c *Connection) Saturated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) >= maxPendingPerConnection
}

// acquire increments the refcount; used when a Request is created
// against this connection.
func (c *Connection) acquire() { c.refcount.Add(1) }

// release decrements the refcount. It never closes the socket itself:
// only die() does that, exactly once, regardless of refcount, since
// the socket belongs to the connection's lifetime, not to any single
// holder's.
func (c *Connection) release() { c.refcount.Add(-1) }

func (c *Connection) sendNew(id uint32, protocol byte, mech Mechanism) error {
	if _, err := c.conn.Write(encodeRequestNew(id, protocol, uint32(mech))); err != nil {
		c.die(fmt.Errorf("authmux: send NEW frame: %w", err))
		return err
	}
	return nil
}

func (c *Connection) sendContinue(id uint32, data []byte) error {
	if _, err := c.conn.Write(encodeRequestContinue(id, data)); err != nil {
		c.die(fmt.Errorf("authmux: send CONTINUE frame: %w", err))
		return err
	}
	return nil
}

// register tracks req in the pending table under its id.
func (c *Connection) register(req *Request) {
	c.mu.Lock()
	c.pending[req.id] = req
	c.mu.Unlock()
}

// abort removes req from the pending table without notifying the
// worker, matching spec.md section 4.5's abort_request: the worker
// will see a future frame referencing this id as unknown, which it
// logs and ignores.
func (c *Connection) abort(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop is the connection's sole reader, started once the
// handshake completes. It runs until the connection dies, dispatching
// each reply frame to its pending request's callback.
func (c *Connection) readLoop(br *bufio.Reader) {
	hdrBuf := make([]byte, replyHdrSize)
	for {
		if err := readFull(br, hdrBuf); err != nil {
			c.die(err)
			return
		}
		hdr, err := decodeReplyHeader(hdrBuf)
		if err != nil {
			c.die(err)
			return
		}

		var payload []byte
		if hdr.DataSize > 0 {
			payload = make([]byte, hdr.DataSize)
			if err := readFull(br, payload); err != nil {
				c.die(err)
				return
			}
		}

		c.dispatch(hdr, payload)
	}
}

func (c *Connection) dispatch(hdr replyHeader, payload []byte) {
	c.mu.Lock()
	req, ok := c.pending[hdr.ID]
	terminal := hdr.Result != ResultContinue
	if ok && terminal {
		delete(c.pending, hdr.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("authmux: reply for unknown request id, ignoring",
			slog.String("path", c.path), slog.Uint64("id", uint64(hdr.ID)))
		return
	}

	req.callback(req, Reply{Result: hdr.Result, Data: payload})
	if terminal {
		c.release()
	}
}

// die transitions the connection to DEAD, closes the socket, aborts
// every pending request with a (null reply, null data) callback, and
// notifies the owning registry. It is idempotent.
func (c *Connection) die(cause error) {
	if !c.state.CompareAndSwap(int32(connReady), int32(connDead)) &&
		!c.state.CompareAndSwap(int32(connWaitingHandshake), int32(connDead)) &&
		!c.state.CompareAndSwap(int32(connConnecting), int32(connDead)) {
		return // already dead
	}

	if cause != nil && !errors.Is(cause, io.EOF) {
		c.logger.Error("authmux: auth connection died",
			slog.String("path", c.path), slog.String("error", cause.Error()))
	} else {
		c.logger.Debug("authmux: auth connection closed", slog.String("path", c.path))
	}

	c.conn.Close()

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*Request)
	c.mu.Unlock()

	for _, req := range pending {
		req.callback(req, Reply{Aborted: true})
		c.release()
	}

	if c.onDead != nil {
		c.onDead(c)
	}

	c.release() // the registry's strong count
}
