package authmux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

// rescanInterval is the 1-second recurring timer spec.md section 4.5
// specifies for reconnect scans.
const rescanInterval = time.Second

// Multiplexer brokers login-process requests to a pool of auth
// workers reachable as unix sockets under one directory. Unlike the
// single process-wide singleton spec.md describes, a Multiplexer is
// an ordinary value: a login process owns one and passes it to
// whatever needs to call InitRequest, per the "Global mutable state"
// design note.
type Multiplexer struct {
	socketDir string
	pid       uint32
	logger    *slog.Logger

	mu          sync.RWMutex
	connections map[string]*Connection

	requestIDCounter atomic.Uint32
	reconnect        atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config groups Multiplexer construction parameters.
type Config struct {
	// SocketDir is the directory containing one unix socket per auth
	// worker. In the original design this is always ".", the chrooted
	// process's cwd; here it's an explicit path.
	SocketDir string
	// PID is sent to each worker in the handshake_input frame.
	PID    uint32
	Logger *slog.Logger
}

// New creates a Multiplexer. Call Init to perform the initial scan
// and start the reconnect timer.
func New(cfg Config) *Multiplexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		socketDir:   cfg.SocketDir,
		pid:         cfg.PID,
		logger:      logger,
		connections: make(map[string]*Connection),
	}
}

// Init scans the socket directory, connects to every entry that
// stats as a socket, and starts the 1-second rescan timer. Dial
// failures during the initial scan are logged and set the reconnect
// flag rather than failing Init outright: a worker that hasn't
// started yet should not prevent the login process from starting.
func (m *Multiplexer) Init(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.rescan()

	m.wg.Add(1)
	go m.rescanLoop(ctx)

	return nil
}

// Close stops the rescan timer and tears down every connection.
func (m *Multiplexer) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.die(nil)
	}
}

func (m *Multiplexer) rescanLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.reconnect.Load() {
				m.rescan()
			}
		}
	}
}

// rescan lists the socket directory and dials any entry not already
// represented in the registry. It's called both from Init and from
// the reconnect timer.
func (m *Multiplexer) rescan() {
	entries, err := os.ReadDir(m.socketDir)
	if err != nil {
		m.logger.Error("authmux: scan socket dir failed",
			slog.String("dir", m.socketDir), slog.String("error", err.Error()))
		m.reconnect.Store(true)
		return
	}

	stillMissing := false
	for _, entry := range entries {
		if entry.Type()&os.ModeSocket == 0 {
			continue
		}
		path := filepath.Join(m.socketDir, entry.Name())

		m.mu.RLock()
		_, connected := m.connections[path]
		m.mu.RUnlock()
		if connected {
			continue
		}

		if err := m.connectWithRetry(path); err != nil {
			m.logger.Debug("authmux: connect attempt failed, will retry on next rescan",
				slog.String("path", path), slog.String("error", err.Error()))
			stillMissing = true
		}
	}

	m.reconnect.Store(stillMissing)
}

// connectWithRetry dials path with a short bounded exponential
// backoff, to smooth over a worker that's mid-restart rather than
// genuinely gone (in which case the next 1-second rescan tries
// again).
func (m *Multiplexer) connectWithRetry(path string) error {
	b, err := retry.NewExponential(10 * time.Millisecond)
	if err != nil {
		return fmt.Errorf("authmux: build backoff: %w", err)
	}
	b = retry.WithMaxRetries(3, b)

	return retry.Do(context.Background(), b, func(ctx context.Context) error {
		c, err := dialConnection(path, m.pid, m.logger, m.onConnectionDead)
		if err != nil {
			return retry.RetryableError(err)
		}
		m.mu.Lock()
		m.connections[path] = c
		m.mu.Unlock()
		m.logger.Info("authmux: connected to auth worker",
			slog.String("path", path), slog.String("mechanisms", fmt.Sprintf("%#x", uint32(c.Mechanisms()))))
		return nil
	})
}

func (m *Multiplexer) onConnectionDead(c *Connection) {
	m.mu.Lock()
	if existing, ok := m.connections[c.path]; ok && existing == c {
		delete(m.connections, c.path)
	}
	m.mu.Unlock()
	m.reconnect.Store(true)
}

// IsConnected reports whether at least the steady-state condition of
// spec.md section 4.5 holds: no reconnect is pending and no
// connection is still in the handshake state. dialConnection performs
// the handshake synchronously before a Connection is ever registered,
// so in this port "still in the handshake state" can only describe a
// connect attempt currently in flight; reconnect pending covers that
// case, so this reduces to the reconnect flag together with having at
// least one connection.
func (m *Multiplexer) IsConnected() bool {
	if m.reconnect.Load() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections) > 0
}

// nextRequestID allocates the next id from the monotonic counter,
// skipping 0 on wraparound.
func (m *Multiplexer) nextRequestID() uint32 {
	for {
		id := m.requestIDCounter.Add(1)
		if id != 0 {
			return id
		}
	}
}

// InitRequest picks a connection advertising mech with room for
// another in-flight request, allocates a request id, registers it,
// and sends a NEW frame. See spec.md section 4.5 for the selection
// and error-precedence rules.
func (m *Multiplexer) InitRequest(mech Mechanism, protocol byte, callback Callback, userData any) (*Request, error) {
	if m.reconnect.Load() {
		m.rescan()
	}

	m.mu.RLock()
	var chosen *Connection
	sawMechanism := false
	for _, c := range m.connections {
		if c.State() != connReady || !c.Advertises(mech) {
			continue
		}
		sawMechanism = true
		if !c.Saturated() {
			chosen = c
			break
		}
	}
	total := len(m.connections)
	m.mu.RUnlock()

	if chosen == nil {
		if total == 0 {
			m.reconnect.Store(true)
			return nil, ErrNoConnectedWorker
		}
		if !sawMechanism {
			return nil, ErrUnsupportedMechanism
		}
		return nil, ErrAllWorkersBusy
	}

	req := &Request{
		id:       m.nextRequestID(),
		mech:     mech,
		protocol: protocol,
		conn:     chosen,
		callback: callback,
		UserData: userData,
	}
	chosen.acquire()
	chosen.register(req)

	if err := chosen.sendNew(req.id, protocol, mech); err != nil {
		chosen.abort(req.id)
		chosen.release()
		return nil, fmt.Errorf("authmux: send NEW to %s: %w", chosen.path, err)
	}

	return req, nil
}

// ContinueRequest sends a CONTINUE frame carrying data for an
// in-flight request. A send failure tears down the whole connection,
// which aborts every other request pending on it too.
func (m *Multiplexer) ContinueRequest(req *Request, data []byte) error {
	return req.conn.sendContinue(req.id, data)
}

// AbortRequest removes req from its connection's pending table and
// releases the connection reference it held. The worker is not
// notified; see spec.md section 4.5.
func (m *Multiplexer) AbortRequest(req *Request) {
	req.conn.abort(req.id)
	req.conn.release()
}
