package metrics

import "time"

// ClusterMetrics records NM-side membership, routing, and replication
// activity. Implementations must be safe for concurrent use.
type ClusterMetrics interface {
	// ConnectionOpened/ConnectionClosed track live client+SS connections.
	ConnectionOpened()
	ConnectionClosed()

	// NodeRegistered/NodeMarkedDead track SS membership churn.
	NodeRegistered(ssID string)
	NodeMarkedDead(ssID string)

	// HeartbeatReceived records the latency between a node's previous
	// heartbeat and this one.
	HeartbeatReceived(ssID string, sinceLast time.Duration)

	// RouteLookup records a file-to-SS routing lookup and whether it hit.
	RouteLookup(hit bool)

	// ReplicationAttempt records the outcome of a fire-and-forget
	// replication dial to a replica.
	ReplicationAttempt(op string, ok bool)

	// AccessRequestPending/AccessRequestResolved track the size of the
	// pending cross-user access-request table.
	AccessRequestPending()
	AccessRequestResolved()
}

// FilestoreMetrics records SS-side file, lock, and checkpoint activity.
type FilestoreMetrics interface {
	ConnectionOpened()
	ConnectionClosed()

	// LockGranted/LockDenied track sentence-lock contention.
	LockGranted()
	LockDenied()

	// WriteSessionOpened/WriteSessionCommitted/WriteSessionAborted track
	// WRITE_BEGIN sessions and how each one ended.
	WriteSessionOpened()
	WriteSessionCommitted()
	WriteSessionAborted()

	// CheckpointCreated/CheckpointRestored track named-snapshot activity.
	CheckpointCreated()
	CheckpointRestored()

	// UndoRestored tracks single-level undo usage.
	UndoRestored()

	// RequestHandled records one op's outcome and duration.
	RequestHandled(op string, status int, d time.Duration)
}

// noop implementations let callers wire a metrics field unconditionally and
// skip nil checks at every call site.

type noopCluster struct{}

// NoopCluster returns a ClusterMetrics that discards everything.
func NoopCluster() ClusterMetrics { return noopCluster{} }

func (noopCluster) ConnectionOpened()                                {}
func (noopCluster) ConnectionClosed()                                {}
func (noopCluster) NodeRegistered(string)                            {}
func (noopCluster) NodeMarkedDead(string)                            {}
func (noopCluster) HeartbeatReceived(string, time.Duration)          {}
func (noopCluster) RouteLookup(bool)                                 {}
func (noopCluster) ReplicationAttempt(string, bool)                  {}
func (noopCluster) AccessRequestPending()                            {}
func (noopCluster) AccessRequestResolved()                           {}

type noopFilestore struct{}

// NoopFilestore returns a FilestoreMetrics that discards everything.
func NoopFilestore() FilestoreMetrics { return noopFilestore{} }

func (noopFilestore) ConnectionOpened()                      {}
func (noopFilestore) ConnectionClosed()                      {}
func (noopFilestore) LockGranted()                           {}
func (noopFilestore) LockDenied()                            {}
func (noopFilestore) WriteSessionOpened()                    {}
func (noopFilestore) WriteSessionCommitted()                 {}
func (noopFilestore) WriteSessionAborted()                   {}
func (noopFilestore) CheckpointCreated()                     {}
func (noopFilestore) CheckpointRestored()                    {}
func (noopFilestore) UndoRestored()                          {}
func (noopFilestore) RequestHandled(string, int, time.Duration) {}
