// Package store provides a durable, pluggable backing for the name
// server's membership and routing tables, layered underneath the
// in-process Cluster (which remains the source of truth for live
// request handling). The memory driver is a no-op; sqlite and postgres
// snapshot state so it survives an NM restart.
package store

import (
	"time"

	"github.com/filegrid/filegrid/pkg/cluster"
)

// Store persists Cluster snapshots. Callers load at startup and save a
// row when it changes (SS registration, CREATE, MOVE); nothing reads it
// while serving requests, since it only needs to survive a restart.
type Store interface {
	// LoadNodes/LoadRoutes restore prior state, or return an empty slice
	// on a fresh store.
	LoadNodes() ([]cluster.SSNode, error)
	LoadRoutes() ([]cluster.FileRoute, error)

	// SaveNode/SaveRoute upsert a single row.
	SaveNode(n cluster.SSNode) error
	SaveRoute(r cluster.FileRoute) error

	Close() error
}

// ssNodeRow and fileRouteRow are the gorm models backing sqlite/postgres
// drivers; field names mirror pkg/cluster/store/migrations/0001_init.up.sql.
type ssNodeRow struct {
	SSID          string `gorm:"column:ss_id;primaryKey"`
	Host          string `gorm:"column:host"`
	ClientPort    int    `gorm:"column:client_port"`
	NMPort        int    `gorm:"column:nm_port"`
	Alive         bool   `gorm:"column:alive"`
	LastHeartbeat time.Time `gorm:"column:last_heartbeat"`
	ReplicaOf     string `gorm:"column:replica_of"`
}

func (ssNodeRow) TableName() string { return "ss_nodes" }

type fileRouteRow struct {
	File        string `gorm:"column:file;primaryKey"`
	PrimarySSID string `gorm:"column:primary_ss_id"`
	ReplicaSSID string `gorm:"column:replica_ss_id"`
}

func (fileRouteRow) TableName() string { return "file_routes" }

func nodeToRow(n cluster.SSNode) ssNodeRow {
	return ssNodeRow{
		SSID:          n.SSID,
		Host:          n.Host,
		ClientPort:    n.ClientPort,
		NMPort:        n.NMPort,
		Alive:         n.Alive,
		LastHeartbeat: n.LastHeartbeat,
		ReplicaOf:     n.ReplicaOf,
	}
}

func rowToNode(r ssNodeRow) cluster.SSNode {
	return cluster.SSNode{
		SSID:          r.SSID,
		Host:          r.Host,
		ClientPort:    r.ClientPort,
		NMPort:        r.NMPort,
		Alive:         r.Alive,
		LastHeartbeat: r.LastHeartbeat,
		ReplicaOf:     r.ReplicaOf,
	}
}

func routeToRow(r cluster.FileRoute) fileRouteRow {
	return fileRouteRow{File: r.File, PrimarySSID: r.PrimarySSID, ReplicaSSID: r.ReplicaSSID}
}

func rowToRoute(r fileRouteRow) cluster.FileRoute {
	return cluster.FileRoute{File: r.File, PrimarySSID: r.PrimarySSID, ReplicaSSID: r.ReplicaSSID}
}

// memoryStore is the default driver: nothing survives a restart, and
// the NM rebuilds its tables from SS re-registrations.
type memoryStore struct{}

// NewMemory returns a Store that persists nothing.
func NewMemory() Store { return memoryStore{} }

func (memoryStore) LoadNodes() ([]cluster.SSNode, error)    { return nil, nil }
func (memoryStore) LoadRoutes() ([]cluster.FileRoute, error) { return nil, nil }
func (memoryStore) SaveNode(cluster.SSNode) error            { return nil }
func (memoryStore) SaveRoute(cluster.FileRoute) error        { return nil }
func (memoryStore) Close() error                             { return nil }
