// Package ss implements the storage server: per-file sentence content,
// locking, ACLs, undo, checkpoints, and the background registration and
// heartbeat senders that keep the name server's membership table fresh.
package ss

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/filegrid/filegrid/internal/logger"
	"github.com/filegrid/filegrid/pkg/filestore"
	"github.com/filegrid/filegrid/pkg/metrics"
	"github.com/filegrid/filegrid/pkg/netserver"
	"github.com/filegrid/filegrid/pkg/wire"
)

// Server is the storage server process: a filestore.Store plus the
// accept loop and the goroutines that register and heartbeat this node
// with the name server.
type Server struct {
	id string

	store   *filestore.Store
	metrics metrics.FilestoreMetrics

	net *netserver.Server

	nmAddr              string
	advertiseHost       string
	advertiseClientPort int
	advertiseNMPort     int
	heartbeatInterval   time.Duration

	stopHeartbeat chan struct{}
}

// Options configures a Server.
type Options struct {
	ID                  string
	ListenAddr          string
	MaxConnections      int
	ShutdownTimeout     time.Duration
	NMAddr              string
	AdvertiseHost       string
	AdvertiseClientPort int
	AdvertiseNMPort     int
	HeartbeatInterval   time.Duration
	Store               *filestore.Store
	Metrics             metrics.FilestoreMetrics
}

// New creates a Server in a stopped state.
func New(opts Options) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.NoopFilestore()
	}

	s := &Server{
		id:                  opts.ID,
		store:               opts.Store,
		metrics:             m,
		nmAddr:              opts.NMAddr,
		advertiseHost:       opts.AdvertiseHost,
		advertiseClientPort: opts.AdvertiseClientPort,
		advertiseNMPort:     opts.AdvertiseNMPort,
		heartbeatInterval:   opts.HeartbeatInterval,
		stopHeartbeat:       make(chan struct{}),
	}
	s.net = netserver.New("ss", netserver.Config{
		ListenAddr:      opts.ListenAddr,
		MaxConnections:  opts.MaxConnections,
		ShutdownTimeout: opts.ShutdownTimeout,
	}, connMetricsAdapter{m})

	return s
}

type connMetricsAdapter struct{ m metrics.FilestoreMetrics }

func (a connMetricsAdapter) ConnectionOpened() { a.m.ConnectionOpened() }
func (a connMetricsAdapter) ConnectionClosed() { a.m.ConnectionClosed() }

// Serve runs the accept loop, registers with the NM, and starts the
// periodic heartbeat sender, until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.registerWithNM(); err != nil {
		logger.Warn("ss: initial NM registration failed", logger.Err(err))
	}
	go s.runHeartbeat(ctx)
	return s.net.Serve(ctx, connFactory{srv: s})
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopHeartbeat)
	return s.net.Stop(ctx)
}

// Addr returns the listener's bound address.
func (s *Server) Addr() string { return s.net.Addr() }

// Store exposes the underlying filestore (used by the admin API).
func (s *Server) Store() *filestore.Store { return s.store }

// registerWithNM dials the NM once and sends SS_REGISTER with this node's
// advertised address and current file list.
func (s *Server) registerWithNM() error {
	conn, err := net.DialTimeout("tcp", s.nmAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("ss: dial nm: %w", err)
	}
	defer conn.Close()

	writer := wire.NewWriter(conn)
	reader := wire.NewReader(conn)

	req := wire.SSRegisterRequest{
		Op:           wire.OpSSRegister,
		SSID:         s.id,
		SSHost:       s.advertiseHost,
		SSClientPort: s.advertiseClientPort,
		SSNMPort:     s.advertiseNMPort,
		Files:        s.store.List(),
	}
	if err := writer.WriteMessage(req); err != nil {
		return fmt.Errorf("ss: send SS_REGISTER: %w", err)
	}
	if _, err := reader.ReadMessage(); err != nil {
		return fmt.Errorf("ss: read SS_REGISTER reply: %w", err)
	}
	logger.Info("ss: registered with name server", logger.SSID(s.id))
	return nil
}

// runHeartbeat sends SS_HEARTBEAT every heartbeatInterval until ctx is
// cancelled or Stop is called. A failed send is logged and retried on
// the next tick; the NM's failure detector is the source of truth for
// liveness, not this sender.
func (s *Server) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopHeartbeat:
			return
		case <-ticker.C:
			if err := s.sendHeartbeat(); err != nil {
				logger.Debug("ss: heartbeat failed", logger.SSID(s.id), logger.Err(err))
			}
		}
	}
}

func (s *Server) sendHeartbeat() error {
	conn, err := net.DialTimeout("tcp", s.nmAddr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	writer := wire.NewWriter(conn)
	reader := wire.NewReader(conn)
	if err := writer.WriteMessage(wire.SSHeartbeatRequest{Op: wire.OpSSHeartbeat, SSID: s.id}); err != nil {
		return err
	}
	_, err = reader.ReadMessage()
	return err
}

type connFactory struct {
	srv *Server
}

func (f connFactory) NewConnection(conn net.Conn) netserver.ConnectionHandler {
	return &connHandler{srv: f.srv, conn: conn}
}
