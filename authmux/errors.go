package authmux

import "errors"

var (
	// ErrUnsupportedMechanism means no connected worker advertises the
	// requested mechanism.
	ErrUnsupportedMechanism = errors.New("unsupported auth mechanism")

	// ErrNoConnectedWorker means no worker is connected at all; the
	// multiplexer sets its reconnect flag and the caller should retry.
	ErrNoConnectedWorker = errors.New("no auth worker connected, try again later")

	// ErrAllWorkersBusy means at least one worker advertises the
	// requested mechanism, but all such workers are saturated.
	ErrAllWorkersBusy = errors.New("all matching auth workers are busy")

	// errConnectionDead names the state of a torn-down Connection; no
	// code path in this package returns it.
	errConnectionDead = errors.New("auth connection is dead")

	// errProtocolViolation marks a wire-format violation (oversized
	// handshake, oversized reply payload, wrong handshake size) that
	// always results in the connection being torn down.
	errProtocolViolation = errors.New("auth wire protocol violation")
)
