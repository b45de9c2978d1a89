package nm

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/filegrid/filegrid/internal/logger"
	"github.com/filegrid/filegrid/internal/telemetry"
	"github.com/filegrid/filegrid/pkg/cluster"
	"github.com/filegrid/filegrid/pkg/wire"
)

// connHandler serves one accepted connection: either a client issuing
// control-plane/routing ops, or a storage server issuing SS_REGISTER /
// SS_HEARTBEAT. Which role the connection plays is determined by the op
// of its first (and, for SS connections, every subsequent) message; the
// wire protocol does not separate client and SS traffic onto distinct
// ports.
type connHandler struct {
	srv  *Server
	conn net.Conn

	// user is the claimed username of the most recent CLI_REGISTER on
	// this connection, used to clean up the active-users list on
	// disconnect if CLI_DEREGISTER was never received.
	user string
}

func (h *connHandler) Serve(ctx context.Context) {
	defer h.conn.Close()

	reader := wire.NewReader(h.conn)
	writer := wire.NewWriter(h.conn)
	lc := logger.NewLogContext(h.conn.RemoteAddr().String())

	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			h.onDisconnect()
			return
		}

		start := time.Now()
		reqCtx, span := telemetry.StartSpan(ctx, "nm."+msg.Op)
		reqCtx = logger.WithContext(reqCtx,
			lc.WithOp(msg.Op).WithTrace(telemetry.TraceID(reqCtx), telemetry.SpanID(reqCtx)))
		resp := h.dispatch(reqCtx, msg)
		status := wire.StatusInternal
		if sg, ok := resp.(wire.StatusGetter); ok {
			status = sg.GetStatus()
		}
		span.SetAttributes(
			attribute.String("filegrid.op", msg.Op),
			attribute.Int("filegrid.status", status),
		)
		span.End()
		logger.DebugCtx(reqCtx, "nm request handled",
			logger.Status(status), logger.DurationMs(logger.Duration(start)))

		if err := writer.WriteMessage(resp); err != nil {
			return
		}
	}
}

// onDisconnect runs the connection-loss cleanup: if
// this connection last claimed a user via CLI_REGISTER and never sent a
// matching CLI_DEREGISTER, remove that user from the active-users list.
func (h *connHandler) onDisconnect() {
	if h.user != "" {
		h.srv.cluster.DeregisterUser(h.user)
	}
}

func (h *connHandler) dispatch(ctx context.Context, msg wire.Message) any {
	switch msg.Op {
	case wire.OpSSRegister:
		return h.handleSSRegister(msg)
	case wire.OpSSHeartbeat:
		return h.handleSSHeartbeat(msg)

	case wire.OpCLIRegister:
		return h.handleCLIRegister(msg)
	case wire.OpCLIDeregister:
		return h.handleCLIDeregister(msg)
	case wire.OpListUsers:
		return h.handleListUsers(msg)

	case wire.OpViewRoute:
		return h.handleViewRoute(msg)
	case wire.OpReadRoute, wire.OpWriteRoute, wire.OpStreamRoute:
		return h.handleFileRoute(msg)

	case wire.OpRequestAccess:
		return h.handleRequestAccess(msg)
	case wire.OpViewRequests:
		return h.handleViewRequests(msg)
	case wire.OpRespondRequest:
		return h.handleRespondRequest(msg)

	case wire.OpCreate:
		return h.proxyCreate(ctx, msg)
	case wire.OpDelete:
		return h.proxyDelete(ctx, msg)
	case wire.OpMove:
		return h.proxyMove(ctx, msg)
	case wire.OpCheckpoint:
		return h.proxyCheckpoint(ctx, msg)
	case wire.OpRevert:
		return h.proxySimpleFileOp(ctx, msg, wire.OpRevert)
	case wire.OpAddAccess:
		return h.proxyAccess(ctx, msg, "R")
	case wire.OpRemAccess:
		return h.proxyAccess(ctx, msg, "REVOKE")
	case wire.OpExec:
		return h.proxyExec(ctx, msg)
	case wire.OpInfo, wire.OpView, wire.OpViewCheckpoint, wire.OpListCheckpoints,
		wire.OpCreateFolder, wire.OpViewFolder, wire.OpList:
		return h.proxyGeneric(ctx, msg)

	default:
		return wire.Reply(msg.Op, wire.StatusBadRequest, "unknown op")
	}
}

func (h *connHandler) handleSSRegister(msg wire.Message) any {
	var req wire.SSRegisterRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	h.srv.cluster.RegisterSS(req.SSID, req.SSHost, req.SSClientPort, req.SSNMPort, req.Files)
	logger.Info("nm: storage server registered", logger.SSID(req.SSID), logger.RemoteAddr(h.conn.RemoteAddr().String()))

	if node, ok := h.srv.cluster.Node(req.SSID); ok {
		if err := h.srv.store.SaveNode(node); err != nil {
			logger.Warn("nm: failed to persist node", logger.SSID(req.SSID), logger.Err(err))
		}
	}
	for _, f := range req.Files {
		if route, ok := h.srv.cluster.RouteMeta(f); ok {
			if err := h.srv.store.SaveRoute(route); err != nil {
				logger.Warn("nm: failed to persist route", logger.File(f), logger.Err(err))
			}
		}
	}

	return wire.OK(msg.Op)
}

func (h *connHandler) handleSSHeartbeat(msg wire.Message) any {
	var req wire.SSHeartbeatRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	backOnline, ok := h.srv.cluster.HeartbeatSS(req.SSID)
	if !ok {
		return wire.Reply(msg.Op, wire.StatusNotFound, "unknown ss_id")
	}
	if backOnline {
		logger.Info("nm: SS_BACK_ONLINE", logger.SSID(req.SSID))
	}
	return wire.OK(msg.Op)
}

func (h *connHandler) handleCLIRegister(msg wire.Message) any {
	var req wire.CLIRegisterRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	h.srv.cluster.RegisterUser(req.User)
	h.user = req.User
	return wire.OK(msg.Op)
}

func (h *connHandler) handleCLIDeregister(msg wire.Message) any {
	var req wire.CLIDeregisterRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	h.srv.cluster.DeregisterUser(req.User)
	if h.user == req.User {
		h.user = ""
	}
	return wire.OK(msg.Op)
}

func (h *connHandler) handleListUsers(msg wire.Message) any {
	resp := wire.ListUsersResponse{Envelope: wire.OK(msg.Op), Users: h.srv.cluster.Users()}
	return resp
}

func (h *connHandler) handleViewRoute(msg wire.Message) any {
	node, ok := h.srv.cluster.AnyLiveSS()
	if !ok {
		return wire.Reply(msg.Op, wire.StatusNotFound, "no live storage server")
	}
	return wire.RouteResponse{
		Envelope:   wire.OK(msg.Op),
		SSID:       node.SSID,
		Host:       node.Host,
		ClientPort: node.ClientPort,
	}
}

func (h *connHandler) handleFileRoute(msg wire.Message) any {
	var req wire.FileOpRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	node, isReplica, ok := h.srv.cluster.RouteFor(req.File)
	if !ok {
		return wire.Reply(msg.Op, wire.StatusNotFound, "no route for file")
	}
	return wire.RouteResponse{
		Envelope:   wire.OK(msg.Op),
		SSID:       node.SSID,
		Host:       node.Host,
		ClientPort: node.ClientPort,
		IsReplica:  isReplica,
	}
}

func (h *connHandler) handleRequestAccess(msg wire.Message) any {
	var req wire.RequestAccessRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	if err := h.srv.cluster.RequestAccess(req.File, req.Requester, req.Owner); err != nil {
		if err == cluster.ErrAlreadyExists {
			return wire.Reply(msg.Op, wire.StatusConflict, "access request already pending")
		}
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.OK(msg.Op)
}

func (h *connHandler) handleViewRequests(msg wire.Message) any {
	var req wire.ViewRequestsRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	pending := h.srv.cluster.ViewRequests(req.User)
	encoded := ""
	for i, r := range pending {
		if i > 0 {
			encoded += ";;"
		}
		encoded += r.File + ":" + r.Requester
	}
	return wire.ViewRequestsResponse{Envelope: wire.OK(msg.Op), Requests: encoded}
}

func (h *connHandler) handleRespondRequest(msg wire.Message) any {
	var req wire.RespondRequestRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	grant, ok := h.srv.cluster.RespondRequest(req.File, req.Requester, req.User, req.Approve)
	if !ok {
		return wire.Reply(msg.Op, wire.StatusNotFound, "no matching pending request")
	}
	if grant {
		// Best-effort: the response to the approver never reflects this
		// outcome.
		go h.grantAccessOnSS(req.File, req.Requester, req.User)
	}
	return wire.OK(msg.Op)
}

// grantAccessOnSS issues NM_ACCESS ADD R to the file's SS on the
// requester's behalf, acting as the approving owner (the SS only accepts
// ACL changes from the owner).
func (h *connHandler) grantAccessOnSS(file, requester, owner string) {
	node, _, ok := h.srv.cluster.RouteFor(file)
	if !ok {
		return
	}
	addr := fmt.Sprintf("%s:%d", node.Host, node.ClientPort)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		logger.Debug("nm: access grant dial failed", logger.File(file), logger.Err(err))
		return
	}
	defer conn.Close()

	writer := wire.NewWriter(conn)
	reader := wire.NewReader(conn)
	_ = writer.WriteMessage(wire.AccessRequest{
		Op: wire.OpNMAccess, File: file, User: owner, Target: requester, Mode: "R",
	})
	_, _ = reader.ReadMessage()
}

// --- Control-plane proxying ---

// dialContext dials addr with a bounded timeout, honoring ctx cancellation.
func dialContext(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// dialSS opens a short-lived connection to the SS for file, if a route
// exists.
func (h *connHandler) dialSS(ctx context.Context, file string) (net.Conn, cluster.SSNode, error) {
	node, _, ok := h.srv.cluster.RouteFor(file)
	if !ok {
		return nil, cluster.SSNode{}, fmt.Errorf("no route for file")
	}
	addr := fmt.Sprintf("%s:%d", node.Host, node.ClientPort)
	conn, err := dialContext(ctx, addr)
	return conn, node, err
}

// proxyOne dials the SS for file, writes req, reads exactly one response,
// and returns that message alongside the node dialed.
func proxyOne(ctx context.Context, h *connHandler, file string, op wire.Op, req any) (wire.Message, cluster.SSNode, error) {
	conn, node, err := h.dialSS(ctx, file)
	if err != nil {
		return wire.Message{}, node, err
	}
	defer conn.Close()

	writer := wire.NewWriter(conn)
	reader := wire.NewReader(conn)
	if err := writer.WriteMessage(req); err != nil {
		return wire.Message{}, node, err
	}
	resp, err := reader.ReadMessage()
	if err != nil {
		return wire.Message{}, node, err
	}
	return resp, node, nil
}

func (h *connHandler) proxyCreate(ctx context.Context, msg wire.Message) any {
	var req wire.CreateRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}

	node, ok := h.srv.cluster.AnyLiveSS()
	if !ok {
		return wire.Reply(msg.Op, wire.StatusInternal, "no storage server available")
	}
	addr := fmt.Sprintf("%s:%d", node.Host, node.ClientPort)
	conn, err := dialContext(ctx, addr)
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	defer conn.Close()

	writer := wire.NewWriter(conn)
	reader := wire.NewReader(conn)
	if err := writer.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: req.File, User: req.User}); err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	resp, err := reader.ReadMessage()
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}

	if resp.Status != nil && *resp.Status == wire.StatusOK {
		h.srv.cluster.MapFile(req.File, node.SSID)
		if route, ok := h.srv.cluster.RouteMeta(req.File); ok {
			_ = h.srv.store.SaveRoute(route)
		}
	}
	return wire.Reply(msg.Op, statusOf(resp), resp.Msg)
}

func (h *connHandler) proxyDelete(ctx context.Context, msg wire.Message) any {
	var req wire.DeleteRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	resp, _, err := proxyOne(ctx, h, req.File, wire.OpNMDelete, wire.DeleteRequest{Op: wire.OpNMDelete, File: req.File, User: req.User})
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	// Drop the routing entry so later lookups fail at the NM instead of
	// routing to an SS that no longer holds the file.
	if resp.Status != nil && *resp.Status == wire.StatusOK {
		h.srv.cluster.DeleteRoute(req.File)
	}
	return wire.Reply(msg.Op, statusOf(resp), resp.Msg)
}

func (h *connHandler) proxyMove(ctx context.Context, msg wire.Message) any {
	var req wire.MoveRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	resp, node, err := proxyOne(ctx, h, req.File, wire.OpMove, wire.MoveRequest{Op: wire.OpMove, File: req.File, Folder: req.Folder, User: req.User})
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	if resp.Status != nil && *resp.Status == wire.StatusOK {
		newFile := req.Folder + "/" + req.File
		h.srv.cluster.RenameFile(req.File, newFile)
		if route, ok := h.srv.cluster.RouteMeta(newFile); ok {
			_ = h.srv.store.SaveRoute(route)
		}
		h.replicateAsync(node, wire.OpMove, req)
	}
	return wire.Reply(msg.Op, statusOf(resp), resp.Msg)
}

func (h *connHandler) proxyCheckpoint(ctx context.Context, msg wire.Message) any {
	var req wire.CheckpointRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	resp, node, err := proxyOne(ctx, h, req.File, wire.OpCheckpoint, wire.CheckpointRequest{Op: wire.OpCheckpoint, File: req.File, Tag: req.Tag, User: req.User})
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	if resp.Status != nil && *resp.Status == wire.StatusOK {
		h.replicateAsync(node, wire.OpCheckpoint, req)
	}
	return wire.Reply(msg.Op, statusOf(resp), resp.Msg)
}

// proxySimpleFileOp proxies an op whose payload is a CheckpointRequest
// shape (file/tag/user), replicating on success (used by REVERT).
func (h *connHandler) proxySimpleFileOp(ctx context.Context, msg wire.Message, forwardOp wire.Op) any {
	var req wire.CheckpointRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	req.Op = forwardOp
	resp, node, err := proxyOne(ctx, h, req.File, forwardOp, req)
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	if resp.Status != nil && *resp.Status == wire.StatusOK {
		h.replicateAsync(node, forwardOp, req)
	}
	return wire.Reply(msg.Op, statusOf(resp), resp.Msg)
}

// proxyAccess handles ADDACCESS/REMACCESS: both are forwarded to the SS
// as NM_ACCESS, the only access-control op the SS understands. mode is
// "REVOKE" for REMACCESS, or the client-supplied R/W grant mode for
// ADDACCESS.
func (h *connHandler) proxyAccess(ctx context.Context, msg wire.Message, mode string) any {
	var req wire.AccessRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	if mode == "R" && req.Mode != "" {
		mode = req.Mode
	}
	resp, _, err := proxyOne(ctx, h, req.File, wire.OpNMAccess, wire.AccessRequest{
		Op: wire.OpNMAccess, File: req.File, User: req.User, Target: req.Target, Mode: mode,
	})
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.Reply(msg.Op, statusOf(resp), resp.Msg)
}

// proxyExec fetches file content for the client to run locally; the NM
// only fetches, it never executes anything itself.
func (h *connHandler) proxyExec(ctx context.Context, msg wire.Message) any {
	var req wire.ExecRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	resp, _, err := proxyOne(ctx, h, req.File, wire.OpGetContent, wire.FileOpRequest{Op: wire.OpGetContent, File: req.File, User: req.User})
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	var content wire.GetContentResponse
	_ = resp.Decode(&content)
	return wire.GetContentResponse{Envelope: wire.Reply(msg.Op, statusOf(resp), resp.Msg), Content: content.Content}
}

// proxyGeneric forwards any op whose request carries a "file" field (or,
// for CREATEFOLDER/VIEWFOLDER, a "folder" field) straight through to the
// SS and relays its raw response verbatim. Used for ops that never
// mutate NM-side routing state (INFO, VIEW, LIST, CREATEFOLDER,
// VIEWFOLDER, checkpoint listing/viewing).
func (h *connHandler) proxyGeneric(ctx context.Context, msg wire.Message) any {
	var probe struct {
		File   string `json:"file"`
		Folder string `json:"folder"`
	}
	_ = msg.Decode(&probe)

	key := probe.File
	if key == "" {
		key = probe.Folder
	}

	node, _, ok := h.srv.cluster.RouteFor(key)
	if !ok {
		// Folder ops and LIST have no per-file route; fall back to any
		// live SS.
		n, live := h.srv.cluster.AnyLiveSS()
		if !live {
			return wire.Reply(msg.Op, wire.StatusInternal, "no storage server available")
		}
		node = n
	}

	addr := fmt.Sprintf("%s:%d", node.Host, node.ClientPort)
	conn, err := dialContext(ctx, addr)
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	defer conn.Close()

	writer := wire.NewWriter(conn)
	reader := wire.NewReader(conn)
	if err := writer.WriteMessage(wire.NewPassthrough(msg)); err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	resp, err := reader.ReadMessage()
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.NewPassthrough(resp)
}

func statusOf(msg wire.Message) int {
	if msg.Status == nil {
		return wire.StatusInternal
	}
	return *msg.Status
}

func (h *connHandler) replicateAsync(primary cluster.SSNode, op wire.Op, payload any) {
	h.srv.replicate(primary, op, payload)
}
