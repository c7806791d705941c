// Package metrics provides interfaces and implementations for
// instrumenting the maildir save engine and the auth multiplexer.
package metrics

import "context"

// Collector defines the interface for recording metrics across both
// cores: message delivery (maildeliver) and auth brokering (authbrokerd).
type Collector interface {
	// Delivery metrics (maildir save engine)
	MessageStaged()
	CommitSucceeded(messageCount int)
	CommitRolledBack()

	// Auth worker connection metrics
	WorkerConnected()
	WorkerDisconnected()

	// Auth request metrics
	AuthRequest(mechanism string, result string)
	AuthRequestRejected(reason string)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
