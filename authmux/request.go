package authmux

// Reply is what a Callback receives: the decoded reply frame plus its
// payload. A zero-value Reply with Aborted set to true signals that
// the owning connection died before a terminal reply arrived, the
// (null reply, null data) case from spec.md section 4.4.
type Reply struct {
	Result  byte
	Data    []byte
	Aborted bool
}

// Callback is invoked once per reply frame addressed to a Request,
// and once more (with Reply.Aborted set) if the owning connection
// dies while the request is still pending.
type Callback func(req *Request, reply Reply)

// Request is one in-flight exchange with an auth worker. It is
// returned by Multiplexer.InitRequest and retired by either a
// terminal reply (OK or FAIL) or AbortRequest.
type Request struct {
	id       uint32
	mech     Mechanism
	protocol byte
	conn     *Connection
	callback Callback
	// UserData is opaque context the caller attached at InitRequest
	// time, handed back unchanged to the callback via the Request
	// pointer.
	UserData any
}

// ID returns the request's wire-protocol id.
func (r *Request) ID() uint32 { return r.id }

// Mechanism returns the mechanism this request was started with.
func (r *Request) Mechanism() Mechanism { return r.mech }
