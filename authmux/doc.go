// Package authmux brokers SASL-style login exchanges between
// concurrent client sessions and a pool of auth worker processes
// reachable over local stream sockets. A Multiplexer scans a socket
// directory, maintains one Connection per worker, and routes
// InitRequest calls to a worker that advertises the requested
// mechanism and has room for another in-flight request.
//
// Unlike the single-threaded event loop this package's wire protocol
// was originally specified for, each Connection here runs its own
// reader goroutine; callers interact with the Multiplexer and with
// individual Request handles from any goroutine.
package authmux
