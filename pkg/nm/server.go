// Package nm implements the name server: cluster membership, file
// routing, access requests, and control-plane op proxying to storage
// servers.
package nm

import (
	"context"
	"net"
	"time"

	"github.com/filegrid/filegrid/internal/logger"
	"github.com/filegrid/filegrid/pkg/cluster"
	clusterstore "github.com/filegrid/filegrid/pkg/cluster/store"
	"github.com/filegrid/filegrid/pkg/metrics"
	"github.com/filegrid/filegrid/pkg/netserver"
)

// Server is the name server process: a Cluster plus the accept loop and
// background failure detector that drive it.
type Server struct {
	cluster *cluster.Cluster
	store   clusterstore.Store
	metrics metrics.ClusterMetrics

	net *netserver.Server

	sweepInterval time.Duration
	deadAfter     time.Duration

	stopDetector chan struct{}
}

// Options configures a Server.
type Options struct {
	ListenAddr      string
	MaxConnections  int
	ShutdownTimeout time.Duration
	SweepInterval   time.Duration
	DeadAfter       time.Duration
	Store           clusterstore.Store
	Metrics         metrics.ClusterMetrics
}

// New creates a Server in a stopped state.
func New(opts Options) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.NoopCluster()
	}
	store := opts.Store
	if store == nil {
		store = clusterstore.NewMemory()
	}

	c := cluster.New(m)

	s := &Server{
		cluster:       c,
		store:         store,
		metrics:       m,
		sweepInterval: opts.SweepInterval,
		deadAfter:     opts.DeadAfter,
		stopDetector:  make(chan struct{}),
	}
	s.net = netserver.New("nm", netserver.Config{
		ListenAddr:      opts.ListenAddr,
		MaxConnections:  opts.MaxConnections,
		ShutdownTimeout: opts.ShutdownTimeout,
	}, connMetricsAdapter{m})

	s.restoreFromStore()

	return s
}

// connMetricsAdapter narrows metrics.ClusterMetrics to netserver.ConnMetrics.
type connMetricsAdapter struct{ m metrics.ClusterMetrics }

func (a connMetricsAdapter) ConnectionOpened() { a.m.ConnectionOpened() }
func (a connMetricsAdapter) ConnectionClosed() { a.m.ConnectionClosed() }

func (s *Server) restoreFromStore() {
	nodes, err := s.store.LoadNodes()
	if err != nil {
		logger.Warn("nm: failed to restore nodes from store", logger.Err(err))
	}
	for _, n := range nodes {
		s.cluster.RegisterSS(n.SSID, n.Host, n.ClientPort, n.NMPort, nil)
	}

	routes, err := s.store.LoadRoutes()
	if err != nil {
		logger.Warn("nm: failed to restore routes from store", logger.Err(err))
		return
	}
	for _, r := range routes {
		s.cluster.MapFile(r.File, r.PrimarySSID)
	}
}

// Serve runs the accept loop and the failure-detector background loop
// until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go s.runFailureDetector(ctx)
	return s.net.Serve(ctx, connFactory{srv: s})
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopDetector)
	return s.net.Stop(ctx)
}

// Addr returns the listener's bound address.
func (s *Server) Addr() string { return s.net.Addr() }

// Cluster exposes the underlying cluster state (used by the admin API).
func (s *Server) Cluster() *cluster.Cluster { return s.cluster }

// runFailureDetector sweeps for dead nodes every sweepInterval.
// Detection is advisory: nothing is promoted or moved, the next route
// lookup simply prefers a live replica.
func (s *Server) runFailureDetector(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopDetector:
			return
		case <-ticker.C:
			dead := s.cluster.SweepDead(s.deadAfter)
			for _, id := range dead {
				logger.Info("nm: storage server marked dead", logger.SSID(id))
			}
		}
	}
}

type connFactory struct {
	srv *Server
}

func (f connFactory) NewConnection(conn net.Conn) netserver.ConnectionHandler {
	return &connHandler{srv: f.srv, conn: conn}
}
