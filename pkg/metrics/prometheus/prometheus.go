// Package prometheus provides client_golang-backed implementations of the
// pkg/metrics collector interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/filegrid/filegrid/pkg/metrics"
)

// Cluster implements metrics.ClusterMetrics using promauto collectors
// registered against the registry returned by metrics.GetRegistry.
type Cluster struct {
	connections        prometheus.Gauge
	nodesRegistered    *prometheus.CounterVec
	nodesDead          *prometheus.CounterVec
	heartbeatLatency   *prometheus.HistogramVec
	routeLookups       *prometheus.CounterVec
	replicationResults *prometheus.CounterVec
	accessRequests     prometheus.Gauge
}

// NewCluster registers and returns NM-side collectors. Safe to call once
// per process; call metrics.InitRegistry before constructing it.
func NewCluster() *Cluster {
	reg := metrics.GetRegistry()
	return &Cluster{
		connections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "filegrid_nm_connections",
			Help: "Number of open connections to the name server.",
		}),
		nodesRegistered: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "filegrid_nm_nodes_registered_total",
			Help: "Storage server registrations observed by the name server.",
		}, []string{"ss_id"}),
		nodesDead: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "filegrid_nm_nodes_dead_total",
			Help: "Storage servers marked dead by the failure detector.",
		}, []string{"ss_id"}),
		heartbeatLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filegrid_nm_heartbeat_interval_seconds",
			Help:    "Observed interval between consecutive heartbeats per node.",
			Buckets: prometheus.DefBuckets,
		}, []string{"ss_id"}),
		routeLookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "filegrid_nm_route_lookups_total",
			Help: "File routing table lookups, partitioned by hit/miss.",
		}, []string{"result"}),
		replicationResults: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "filegrid_nm_replication_attempts_total",
			Help: "Async replication dials to replica storage servers.",
		}, []string{"op", "result"}),
		accessRequests: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "filegrid_nm_access_requests_pending",
			Help: "Pending cross-user access requests awaiting a response.",
		}),
	}
}

func (c *Cluster) ConnectionOpened() { c.connections.Inc() }
func (c *Cluster) ConnectionClosed() { c.connections.Dec() }

func (c *Cluster) NodeRegistered(ssID string) { c.nodesRegistered.WithLabelValues(ssID).Inc() }
func (c *Cluster) NodeMarkedDead(ssID string)  { c.nodesDead.WithLabelValues(ssID).Inc() }

func (c *Cluster) HeartbeatReceived(ssID string, sinceLast time.Duration) {
	c.heartbeatLatency.WithLabelValues(ssID).Observe(sinceLast.Seconds())
}

func (c *Cluster) RouteLookup(hit bool) {
	if hit {
		c.routeLookups.WithLabelValues("hit").Inc()
		return
	}
	c.routeLookups.WithLabelValues("miss").Inc()
}

func (c *Cluster) ReplicationAttempt(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.replicationResults.WithLabelValues(op, result).Inc()
}

func (c *Cluster) AccessRequestPending()  { c.accessRequests.Inc() }
func (c *Cluster) AccessRequestResolved() { c.accessRequests.Dec() }

// Filestore implements metrics.FilestoreMetrics using promauto collectors.
type Filestore struct {
	connections    prometheus.Gauge
	lockOutcomes   *prometheus.CounterVec
	writeSessions  *prometheus.CounterVec
	checkpoints    *prometheus.CounterVec
	undoRestores   prometheus.Counter
	requestLatency *prometheus.HistogramVec
}

// NewFilestore registers and returns SS-side collectors.
func NewFilestore() *Filestore {
	reg := metrics.GetRegistry()
	return &Filestore{
		connections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "filegrid_ss_connections",
			Help: "Number of open connections to this storage server.",
		}),
		lockOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "filegrid_ss_lock_outcomes_total",
			Help: "Sentence lock acquisition attempts, partitioned by outcome.",
		}, []string{"outcome"}),
		writeSessions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "filegrid_ss_write_sessions_total",
			Help: "WRITE_BEGIN sessions, partitioned by terminal state.",
		}, []string{"state"}),
		checkpoints: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "filegrid_ss_checkpoints_total",
			Help: "Checkpoint operations, partitioned by kind.",
		}, []string{"kind"}),
		undoRestores: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "filegrid_ss_undo_restores_total",
			Help: "Single-level undo restores performed.",
		}),
		requestLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filegrid_ss_request_duration_seconds",
			Help:    "Request handling duration by op and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
	}
}

func (f *Filestore) ConnectionOpened() { f.connections.Inc() }
func (f *Filestore) ConnectionClosed() { f.connections.Dec() }

func (f *Filestore) LockGranted() { f.lockOutcomes.WithLabelValues("granted").Inc() }
func (f *Filestore) LockDenied()  { f.lockOutcomes.WithLabelValues("denied").Inc() }

func (f *Filestore) WriteSessionOpened()    { f.writeSessions.WithLabelValues("opened").Inc() }
func (f *Filestore) WriteSessionCommitted() { f.writeSessions.WithLabelValues("committed").Inc() }
func (f *Filestore) WriteSessionAborted()   { f.writeSessions.WithLabelValues("aborted").Inc() }

func (f *Filestore) CheckpointCreated()   { f.checkpoints.WithLabelValues("created").Inc() }
func (f *Filestore) CheckpointRestored()  { f.checkpoints.WithLabelValues("restored").Inc() }
func (f *Filestore) UndoRestored()        { f.undoRestores.Inc() }

func (f *Filestore) RequestHandled(op string, status int, d time.Duration) {
	f.requestLatency.WithLabelValues(op, statusLabel(status)).Observe(d.Seconds())
}

func statusLabel(status int) string {
	const digits = "0123456789"
	if status < 0 || status > 9 {
		return "unknown"
	}
	return string(digits[status])
}
