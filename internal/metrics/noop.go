package metrics

// NoopCollector is a no-op implementation of the Collector interface.
type NoopCollector struct{}

func (n *NoopCollector) MessageStaged()                           {}
func (n *NoopCollector) CommitSucceeded(messageCount int)         {}
func (n *NoopCollector) CommitRolledBack()                        {}
func (n *NoopCollector) WorkerConnected()                         {}
func (n *NoopCollector) WorkerDisconnected()                      {}
func (n *NoopCollector) AuthRequest(mechanism, result string)     {}
func (n *NoopCollector) AuthRequestRejected(reason string)        {}
