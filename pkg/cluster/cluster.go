// Package cluster is the name server's control plane: SS membership,
// active users, file routing, and pending cross-user access requests. All four tables
// are bundled into a single owner object protected by one mutex, per the
// source's coarse-locking design.
package cluster

import (
	"sync"
	"time"
)

// SSNode is a registered storage server.
type SSNode struct {
	SSID          string
	Host          string
	ClientPort    int
	NMPort        int
	Alive         bool
	LastHeartbeat time.Time
	ReplicaOf     string // ss_id this node replicates, or ""
}

// FileRoute maps a file to its primary (and optional replica) SS.
type FileRoute struct {
	File        string
	PrimarySSID string
	ReplicaSSID string
}

// AccessRequest is a pending cross-user access grant request.
type AccessRequest struct {
	File      string
	Requester string
	Owner     string
	Pending   bool
}

// Cluster owns the NM's membership, routing, and access-request tables.
type Cluster struct {
	mu sync.Mutex

	nodes  map[string]*SSNode
	routes map[string]*FileRoute
	users  map[string]struct{}

	// requests is a plain slice, scanned linearly on every lookup; the
	// table stays small enough that an index isn't worth carrying.
	requests []AccessRequest

	metrics Metrics
}

// Metrics lets the NM record membership/routing activity. Pass nil to
// disable.
type Metrics interface {
	NodeRegistered(ssID string)
	NodeMarkedDead(ssID string)
	HeartbeatReceived(ssID string, sinceLast time.Duration)
	RouteLookup(hit bool)
	AccessRequestPending()
	AccessRequestResolved()
}

// New creates an empty Cluster.
func New(metrics Metrics) *Cluster {
	return &Cluster{
		nodes:   make(map[string]*SSNode),
		routes:  make(map[string]*FileRoute),
		users:   make(map[string]struct{}),
		metrics: metrics,
	}
}

// RegisterSS implements SS_REGISTER: insert-or-refresh the node; if the
// most recently registered live node has no replica assignment yet, this
// new node becomes its replica (simple sequential pairing, skipping dead
// nodes). Each of files is mapped to this SS as primary, preserving any
// existing replica.
func (c *Cluster) RegisterSS(ssID, host string, clientPort, nmPort int, files []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, existed := c.nodes[ssID]
	if !existed {
		node = &SSNode{SSID: ssID}
		c.nodes[ssID] = node
	}
	node.Host = host
	node.ClientPort = clientPort
	node.NMPort = nmPort
	node.Alive = true
	node.LastHeartbeat = time.Now()

	if !existed {
		if prev := c.mostRecentLive(ssID); prev != nil && prev.ReplicaOf == "" {
			node.ReplicaOf = prev.SSID
		}
	}

	if c.metrics != nil {
		c.metrics.NodeRegistered(ssID)
	}

	for _, f := range files {
		route, ok := c.routes[f]
		if !ok {
			c.routes[f] = &FileRoute{File: f, PrimarySSID: ssID}
			continue
		}
		route.PrimarySSID = ssID
	}
}

// mostRecentLive scans registered nodes (excluding self) for the live
// node with the latest LastHeartbeat, which RegisterSS stamps with the
// registration time, so this picks the most recently registered node
// rather than an arbitrary one from Go's randomized map iteration.
func (c *Cluster) mostRecentLive(exclude string) *SSNode {
	var candidate *SSNode
	for id, n := range c.nodes {
		if id == exclude || !n.Alive {
			continue
		}
		if candidate == nil || n.LastHeartbeat.After(candidate.LastHeartbeat) {
			candidate = n
		}
	}
	return candidate
}

// HeartbeatSS implements SS_HEARTBEAT: refresh last_heartbeat; if the
// node was dead, mark it alive again (the caller is responsible for
// emitting SS_BACK_ONLINE).
func (c *Cluster) HeartbeatSS(ssID string) (backOnline bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, exists := c.nodes[ssID]
	if !exists {
		return false, false
	}

	sinceLast := time.Since(node.LastHeartbeat)
	wasDead := !node.Alive
	node.LastHeartbeat = time.Now()
	node.Alive = true

	if c.metrics != nil {
		c.metrics.HeartbeatReceived(ssID, sinceLast)
	}

	return wasDead, true
}

// SweepDead marks any node whose last heartbeat exceeds deadAfter as
// dead. Called by the failure detector's periodic loop. Advisory only:
// no promotion, no state movement.
func (c *Cluster) SweepDead(deadAfter time.Duration) (newlyDead []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, n := range c.nodes {
		if n.Alive && now.Sub(n.LastHeartbeat) > deadAfter {
			n.Alive = false
			newlyDead = append(newlyDead, id)
			if c.metrics != nil {
				c.metrics.NodeMarkedDead(id)
			}
		}
	}
	return newlyDead
}

// Node returns the node for ssID.
func (c *Cluster) Node(ssID string) (SSNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[ssID]
	if !ok {
		return SSNode{}, false
	}
	return *n, true
}

// Nodes returns a snapshot of every registered node.
func (c *Cluster) Nodes() []SSNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SSNode, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, *n)
	}
	return out
}

// Routes returns every known file-to-SS mapping, for admin introspection.
func (c *Cluster) Routes() []FileRoute {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FileRoute, 0, len(c.routes))
	for _, r := range c.routes {
		out = append(out, *r)
	}
	return out
}

// AnyLiveSS returns any currently live node, for VIEW_ROUTE.
func (c *Cluster) AnyLiveSS() (SSNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.nodes {
		if n.Alive {
			return *n, true
		}
	}
	return SSNode{}, false
}

// RouteFor implements READ_ROUTE/WRITE_ROUTE/STREAM_ROUTE: return the
// primary if alive, else the replica if present and alive, else miss.
func (c *Cluster) RouteFor(file string) (node SSNode, isReplica bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	route, exists := c.routes[file]
	if !exists {
		if c.metrics != nil {
			c.metrics.RouteLookup(false)
		}
		return SSNode{}, false, false
	}

	if primary, exists := c.nodes[route.PrimarySSID]; exists && primary.Alive {
		if c.metrics != nil {
			c.metrics.RouteLookup(true)
		}
		return *primary, false, true
	}

	if route.ReplicaSSID != "" {
		if replica, exists := c.nodes[route.ReplicaSSID]; exists && replica.Alive {
			if c.metrics != nil {
				c.metrics.RouteLookup(true)
			}
			return *replica, true, true
		}
	}

	if c.metrics != nil {
		c.metrics.RouteLookup(false)
	}
	return SSNode{}, false, false
}

// RouteMeta returns the raw route entry, for replication lookups.
func (c *Cluster) RouteMeta(file string) (FileRoute, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.routes[file]
	if !ok {
		return FileRoute{}, false
	}
	return *r, true
}

// MapFile records file's primary SS on CREATE success, pairing it with
// the primary's registered replica (if any) as the route's replica.
func (c *Cluster) MapFile(file, ssID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	replicaID := ""
	for _, n := range c.nodes {
		if n.ReplicaOf == ssID {
			replicaID = n.SSID
			break
		}
	}
	c.routes[file] = &FileRoute{File: file, PrimarySSID: ssID, ReplicaSSID: replicaID}
}

// RenameFile implements the NM-side half of MOVE: rewrite the routing
// key to newFile, preserving the route's SS assignments.
func (c *Cluster) RenameFile(oldFile, newFile string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	route, ok := c.routes[oldFile]
	if !ok {
		return
	}
	delete(c.routes, oldFile)
	route.File = newFile
	c.routes[newFile] = route
}

// DeleteRoute drops file's routing entry so later lookups miss at the
// NM instead of routing to an SS that no longer holds the file.
func (c *Cluster) DeleteRoute(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.routes, file)
}

// RegisterUser implements CLI_REGISTER (idempotent).
func (c *Cluster) RegisterUser(user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[user] = struct{}{}
}

// DeregisterUser implements CLI_DEREGISTER (idempotent).
func (c *Cluster) DeregisterUser(user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, user)
}

// Users returns every currently registered user, for LIST_USERS.
func (c *Cluster) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.users))
	for u := range c.users {
		out = append(out, u)
	}
	return out
}

// RequestAccess implements REQUESTACCESS: create a new pending request
// unless one already exists for (file, requester).
func (c *Cluster) RequestAccess(file, requester, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.requests {
		if r.File == file && r.Requester == requester && r.Pending {
			return ErrAlreadyExists
		}
	}
	c.requests = append(c.requests, AccessRequest{File: file, Requester: requester, Owner: owner, Pending: true})
	if c.metrics != nil {
		c.metrics.AccessRequestPending()
	}
	return nil
}

// ViewRequests implements VIEWREQUESTS: every pending request where
// owner == user.
func (c *Cluster) ViewRequests(user string) []AccessRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []AccessRequest
	for _, r := range c.requests {
		if r.Pending && r.Owner == user {
			out = append(out, r)
		}
	}
	return out
}

// RespondRequest implements RESPONDREQUEST: marks the matching request
// resolved and reports whether the actor was indeed its owner and
// approve was set, which callers use to decide whether to grant access
// on the SS.
func (c *Cluster) RespondRequest(file, requester, actor string, approve bool) (grant bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.requests {
		r := &c.requests[i]
		if r.File == file && r.Requester == requester && r.Pending {
			r.Pending = false
			if c.metrics != nil {
				c.metrics.AccessRequestResolved()
			}
			return approve && actor == r.Owner, true
		}
	}
	return false, false
}

// ErrAlreadyExists is returned by RequestAccess for a duplicate pending
// request; the NM surfaces this to the client as a CONFLICT status.
var ErrAlreadyExists = errAlreadyExists{}

type errAlreadyExists struct{}

func (errAlreadyExists) Error() string { return "cluster: access request already pending" }
