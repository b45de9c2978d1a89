package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filegrid/filegrid/pkg/cluster"
)

// runConformanceSuite exercises the Store contract against any driver;
// sqlite runs it directly, postgres runs it against a disposable
// testcontainers instance (see postgres_test.go). The memory driver
// persists nothing and has its own test instead.
func runConformanceSuite(t *testing.T, s Store) {
	t.Helper()

	t.Run("load on empty store returns no rows", func(t *testing.T) {
		nodes, err := s.LoadNodes()
		require.NoError(t, err)
		assert.Empty(t, nodes)

		routes, err := s.LoadRoutes()
		require.NoError(t, err)
		assert.Empty(t, routes)
	})

	t.Run("save and load node", func(t *testing.T) {
		n := cluster.SSNode{
			SSID:          "ss1",
			Host:          "host1",
			ClientPort:    4701,
			NMPort:        4702,
			Alive:         true,
			LastHeartbeat: time.Now().UTC().Truncate(time.Second),
			ReplicaOf:     "",
		}
		require.NoError(t, s.SaveNode(n))

		nodes, err := s.LoadNodes()
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, n.SSID, nodes[0].SSID)
		assert.Equal(t, n.Host, nodes[0].Host)
		assert.Equal(t, n.ClientPort, nodes[0].ClientPort)
	})

	t.Run("save node upserts by ss id", func(t *testing.T) {
		n := cluster.SSNode{SSID: "ss1", Host: "host1-new", ClientPort: 4701, NMPort: 4702}
		require.NoError(t, s.SaveNode(n))

		nodes, err := s.LoadNodes()
		require.NoError(t, err)

		var found bool
		for _, got := range nodes {
			if got.SSID == "ss1" {
				found = true
				assert.Equal(t, "host1-new", got.Host)
			}
		}
		assert.True(t, found)
	})

	t.Run("save and load route", func(t *testing.T) {
		r := cluster.FileRoute{File: "a.txt", PrimarySSID: "ss1", ReplicaSSID: "ss2"}
		require.NoError(t, s.SaveRoute(r))

		routes, err := s.LoadRoutes()
		require.NoError(t, err)

		var found cluster.FileRoute
		for _, got := range routes {
			if got.File == "a.txt" {
				found = got
			}
		}
		assert.Equal(t, r, found)
	})
}

func TestMemoryStoreConformance(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	nodes, err := s.LoadNodes()
	require.NoError(t, err)
	assert.Empty(t, nodes)

	// The memory driver is intentionally a no-op: writes never surface
	// on a later load, unlike sqlite/postgres below.
	require.NoError(t, s.SaveNode(cluster.SSNode{SSID: "ss1"}))
	nodes, err = s.LoadNodes()
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestSQLiteStoreConformance(t *testing.T) {
	s, err := NewSQLite(t.TempDir() + "/cluster.db")
	require.NoError(t, err)
	defer s.Close()

	runConformanceSuite(t, s)
}
