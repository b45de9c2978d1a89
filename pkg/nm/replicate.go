package nm

import (
	"fmt"
	"net"
	"time"

	"github.com/filegrid/filegrid/internal/logger"
	"github.com/filegrid/filegrid/pkg/cluster"
	"github.com/filegrid/filegrid/pkg/wire"
)

// replicate ships op/payload to primary's paired replica SS, best-effort:
// no acknowledgement is awaited beyond a single read, no retry on
// failure, and a fresh connection is dialed for every event rather than
// held open. Used for the post-success fan-out on MOVE/CHECKPOINT/REVERT.
func (s *Server) replicate(primary cluster.SSNode, op wire.Op, payload any) {
	if primary.ReplicaOf != "" {
		// primary is itself a replica of some other node; it has no
		// replica of its own to fan out to.
		return
	}

	replica, ok := s.findReplicaOf(primary.SSID)
	if !ok {
		return
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", replica.Host, replica.ClientPort)
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			logger.Debug("nm: replication dial failed", logger.SSID(replica.SSID), logger.Op(op), logger.Err(err))
			s.metrics.ReplicationAttempt(op, false)
			return
		}
		defer conn.Close()

		writer := wire.NewWriter(conn)
		if err := writer.WriteMessage(payload); err != nil {
			logger.Debug("nm: replication write failed", logger.SSID(replica.SSID), logger.Op(op), logger.Err(err))
			s.metrics.ReplicationAttempt(op, false)
			return
		}

		reader := wire.NewReader(conn)
		if _, err := reader.ReadMessage(); err != nil {
			logger.Debug("nm: replication ack read failed", logger.SSID(replica.SSID), logger.Op(op), logger.Err(err))
			s.metrics.ReplicationAttempt(op, false)
			return
		}
		s.metrics.ReplicationAttempt(op, true)
	}()
}

// findReplicaOf returns the node registered as ssID's replica, if any.
func (s *Server) findReplicaOf(ssID string) (cluster.SSNode, bool) {
	for _, n := range s.cluster.Nodes() {
		if n.ReplicaOf == ssID && n.Alive {
			return n, true
		}
	}
	return cluster.SSNode{}, false
}
