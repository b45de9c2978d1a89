package ss

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/filegrid/filegrid/internal/logger"
	"github.com/filegrid/filegrid/internal/telemetry"
	"github.com/filegrid/filegrid/pkg/filestore"
	"github.com/filegrid/filegrid/pkg/wire"
)

// connHandler serves one accepted connection: a client issuing data-plane
// ops (READ/WRITE session/UNDO/STREAM), or the name server proxying a
// control-plane op. A connection may hold at most one open write
// session at a time, tracked here rather than per-request since
// WRITE_EDIT/WRITE_COMMIT don't repeat the user on the wire.
type connHandler struct {
	srv  *Server
	conn net.Conn

	writeFile string
	writeUser string
}

func (h *connHandler) Serve(ctx context.Context) {
	defer h.conn.Close()
	defer h.onDisconnect()

	reader := wire.NewReader(h.conn)
	writer := wire.NewWriter(h.conn)
	lc := logger.NewLogContext(h.conn.RemoteAddr().String())

	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			return
		}

		if msg.Op == wire.OpStream {
			h.handleStream(msg, writer)
			continue
		}

		start := time.Now()
		reqCtx, span := telemetry.StartSpan(ctx, "ss."+msg.Op)
		reqCtx = logger.WithContext(reqCtx,
			lc.WithOp(msg.Op).WithTrace(telemetry.TraceID(reqCtx), telemetry.SpanID(reqCtx)))
		resp := h.dispatch(msg)
		status := wire.StatusInternal
		if sg, ok := resp.(wire.StatusGetter); ok {
			status = sg.GetStatus()
		}
		span.SetAttributes(
			attribute.String("filegrid.op", msg.Op),
			attribute.Int("filegrid.status", status),
		)
		span.End()
		logger.DebugCtx(reqCtx, "ss request handled",
			logger.Status(status), logger.DurationMs(logger.Duration(start)))
		h.srv.metrics.RequestHandled(msg.Op, status, time.Since(start))

		if err := writer.WriteMessage(resp); err != nil {
			return
		}
	}
}

// onDisconnect releases any sentence lock left open by a client that
// disconnected mid write-session; losing the connection is the only
// cancel signal the protocol has.
func (h *connHandler) onDisconnect() {
	if h.writeFile == "" {
		return
	}
	if fs, ok := h.srv.store.Get(h.writeFile); ok {
		fs.ReleaseUser(h.writeUser)
		h.srv.metrics.WriteSessionAborted()
	}
}

func (h *connHandler) dispatch(msg wire.Message) any {
	switch msg.Op {
	case wire.OpRead:
		return h.handleRead(msg)
	case wire.OpWriteBegin:
		return h.handleWriteBegin(msg)
	case wire.OpWriteEdit:
		return h.handleWriteEdit(msg)
	case wire.OpWriteCommit:
		return h.handleWriteCommit(msg)
	case wire.OpUndo:
		return h.handleUndo(msg)

	case wire.OpNMCreate:
		return h.handleCreate(msg)
	case wire.OpNMDelete:
		return h.handleDelete(msg)
	case wire.OpInfo:
		return h.handleInfo(msg)
	case wire.OpList:
		return h.handleList(msg)
	case wire.OpNMAccess:
		return h.handleAccess(msg)
	case wire.OpGetContent:
		return h.handleGetContent(msg)
	case wire.OpView:
		// VIEW is LIST restricted to what the user can see.
		return h.handleList(msg)
	case wire.OpCreateFolder:
		return h.handleCreateFolder(msg)
	case wire.OpViewFolder:
		return h.handleViewFolder(msg)
	case wire.OpMove:
		return h.handleMove(msg)
	case wire.OpCheckpoint:
		return h.handleCheckpoint(msg)
	case wire.OpViewCheckpoint:
		return h.handleViewCheckpoint(msg)
	case wire.OpRevert:
		return h.handleRevert(msg)
	case wire.OpListCheckpoints:
		return h.handleListCheckpoints(msg)

	default:
		return wire.Reply(msg.Op, wire.StatusBadRequest, "unknown op")
	}
}

func (h *connHandler) lookup(msg wire.Message, file string) (*filestore.FileState, any) {
	fs, ok := h.srv.store.Get(file)
	if !ok {
		return nil, wire.Reply(msg.Op, wire.StatusNotFound, "file not found")
	}
	return fs, nil
}

func (h *connHandler) handleRead(msg wire.Message) any {
	var req wire.ReadRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanRead(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "read access denied")
	}
	content := fs.Text()
	fs.TouchRead(req.User)
	return wire.ReadResponse{Envelope: wire.OK(msg.Op), Content: content}
}

func (h *connHandler) handleWriteBegin(msg wire.Message) any {
	var req wire.WriteBeginRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanWrite(req.User) {
		h.srv.metrics.LockDenied()
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "write access denied")
	}

	status := fs.BeginWrite(req.User, req.SentenceIdx)
	if status == wire.StatusOK {
		h.writeFile = req.File
		h.writeUser = req.User
		h.srv.metrics.LockGranted()
		h.srv.metrics.WriteSessionOpened()
	} else {
		h.srv.metrics.LockDenied()
	}
	return wire.Reply(msg.Op, status, wire.StatusText(status))
}

func (h *connHandler) handleWriteEdit(msg wire.Message) any {
	var req wire.WriteEditRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	if h.writeFile == "" {
		return wire.Reply(msg.Op, wire.StatusBadRequest, "no open write session")
	}
	fs, ok := h.srv.store.Get(h.writeFile)
	if !ok {
		return wire.Reply(msg.Op, wire.StatusNotFound, "file not found")
	}
	status := fs.EditWrite(h.writeUser, req.WordIndex, req.Content)
	return wire.Reply(msg.Op, status, wire.StatusText(status))
}

func (h *connHandler) handleWriteCommit(msg wire.Message) any {
	var req wire.WriteCommitRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	if h.writeFile == "" || (req.File != "" && req.File != h.writeFile) {
		return wire.Reply(msg.Op, wire.StatusBadRequest, "no open write session for file")
	}

	fs, ok := h.srv.store.Get(h.writeFile)
	if !ok {
		return wire.Reply(msg.Op, wire.StatusNotFound, "file not found")
	}

	if !fs.HoldsLock(h.writeUser) {
		h.writeFile, h.writeUser = "", ""
		return wire.Reply(msg.Op, wire.StatusBadRequest, "no lock held")
	}

	fs.Touch(h.writeUser)
	if err := h.srv.store.Persist(fs); err != nil {
		logger.Warn("ss: persist failed", logger.File(h.writeFile), logger.Err(err))
		fs.ReleaseUser(h.writeUser)
		h.writeFile, h.writeUser = "", ""
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	fs.ReleaseUser(h.writeUser)
	h.srv.metrics.WriteSessionCommitted()

	h.writeFile, h.writeUser = "", ""
	return wire.OK(msg.Op)
}

func (h *connHandler) handleUndo(msg wire.Message) any {
	var req wire.UndoRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanWrite(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "write access denied")
	}
	if err := h.srv.store.Undo(req.File); err != nil {
		if err == filestore.ErrNotFound {
			return wire.Reply(msg.Op, wire.StatusNotFound, "no undo snapshot")
		}
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	h.srv.metrics.UndoRestored()
	return wire.OK(msg.Op)
}

// handleStream implements STREAM: emit every word of the file as a
// sequence of TOK messages followed by a single STOP, bypassing the
// one-request-one-response loop in Serve.
func (h *connHandler) handleStream(msg wire.Message, writer *wire.Writer) {
	var req wire.StreamRequest
	if err := msg.Decode(&req); err != nil {
		_ = writer.WriteMessage(wire.Reply(msg.Op, wire.StatusBadRequest, err.Error()))
		return
	}

	fs, ok := h.srv.store.Get(req.File)
	if !ok {
		_ = writer.WriteMessage(wire.Reply(msg.Op, wire.StatusNotFound, "file not found"))
		return
	}
	if !fs.Meta.CanRead(req.User) {
		_ = writer.WriteMessage(wire.Reply(msg.Op, wire.StatusUnauthorized, "read access denied"))
		return
	}

	fs.TouchRead(req.User)
	for _, word := range strings.Fields(fs.Text()) {
		if err := writer.WriteMessage(wire.TokMessage{Op: wire.OpTok, W: word}); err != nil {
			return
		}
	}
	_ = writer.WriteMessage(wire.StopMessage{Op: wire.OpStop})
}

func (h *connHandler) handleCreate(msg wire.Message) any {
	var req wire.CreateRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	if _, err := h.srv.store.Create(req.File, req.User); err != nil {
		if err == filestore.ErrExists {
			return wire.Reply(msg.Op, wire.StatusAlreadyExists, "file already exists")
		}
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.OK(msg.Op)
}

func (h *connHandler) handleDelete(msg wire.Message) any {
	var req wire.DeleteRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if fs.Meta.Owner != req.User {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "only the owner may delete")
	}
	if fs.LocksHeld() {
		return wire.Reply(msg.Op, wire.StatusLocked, "write sessions still open")
	}
	if err := h.srv.store.Delete(req.File); err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.OK(msg.Op)
}

func (h *connHandler) handleInfo(msg wire.Message) any {
	var req wire.InfoRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanRead(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "read access denied")
	}
	size, err := h.srv.store.Size(req.File)
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.InfoResponse{Envelope: wire.OK(msg.Op), Info: fs.InfoString(size)}
}

// handleList implements LIST: without flag 'a', only files owned
// by or ACL-granted to req.User are listed; with flag 'l', each entry is
// rendered with owner/word/char/modified detail instead of a bare name.
func (h *connHandler) handleList(msg wire.Message) any {
	var req wire.ListRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}

	all := strings.Contains(req.Flags, "a")
	long := strings.Contains(req.Flags, "l")

	var entries []string
	for _, name := range h.srv.store.List() {
		fs, ok := h.srv.store.Get(name)
		if !ok {
			continue
		}
		if !all && fs.Meta.Owner != req.User && fs.Meta.FindACL(req.User) == nil {
			continue
		}
		if long {
			entries = append(entries, listDetail(name, fs))
		} else {
			entries = append(entries, name)
		}
	}
	return wire.ListResponse{Envelope: wire.OK(msg.Op), Entries: strings.Join(entries, ";;")}
}

// listDetail renders one LIST -l entry: "name | Owner: X | Words: N |
// Chars: M | Modified: YYYY-MM-DD HH:MM:SS".
func listDetail(name string, fs *filestore.FileState) string {
	return fmt.Sprintf("%s | Owner: %s | Words: %d | Chars: %d | Modified: %s",
		name, fs.Meta.Owner, fs.WordCount(), fs.CharCount(), fs.Meta.Modified.Format("2006-01-02 15:04:05"))
}

func (h *connHandler) handleAccess(msg wire.Message) any {
	var req wire.AccessRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}

	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if fs.Meta.Owner != req.User {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "only the owner may change access")
	}

	removed := true
	err := h.srv.store.UpdateACL(req.File, func(meta *filestore.Metadata) {
		if req.Mode == "REVOKE" {
			removed = meta.RemoveACL(req.Target)
			return
		}
		meta.UpsertACL(req.Target, true, req.Mode == "W")
	})
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	if !removed {
		return wire.Reply(msg.Op, wire.StatusNotFound, "no access entry for target")
	}
	return wire.OK(msg.Op)
}

func (h *connHandler) handleGetContent(msg wire.Message) any {
	var req wire.FileOpRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanRead(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "read access denied")
	}
	content := fs.Text()
	fs.TouchRead(req.User)
	return wire.GetContentResponse{Envelope: wire.OK(msg.Op), Content: content}
}

func (h *connHandler) handleCreateFolder(msg wire.Message) any {
	var req wire.CreateFolderRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	if err := h.srv.store.CreateFolder(req.Folder); err != nil {
		if err == filestore.ErrExists {
			return wire.Reply(msg.Op, wire.StatusAlreadyExists, "folder already exists")
		}
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.OK(msg.Op)
}

func (h *connHandler) handleViewFolder(msg wire.Message) any {
	var req wire.ViewFolderRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	entries, err := h.srv.store.ViewFolder(req.Folder)
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.ViewFolderResponse{Envelope: wire.OK(msg.Op), Entries: strings.Join(entries, ";;")}
}

func (h *connHandler) handleMove(msg wire.Message) any {
	var req wire.MoveRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanWrite(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "write access denied")
	}
	if _, err := h.srv.store.Move(req.File, req.Folder); err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.OK(msg.Op)
}

func (h *connHandler) handleCheckpoint(msg wire.Message) any {
	var req wire.CheckpointRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanRead(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "read access denied")
	}
	if err := h.srv.store.Checkpoint(req.File, req.Tag); err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	h.srv.metrics.CheckpointCreated()
	return wire.OK(msg.Op)
}

func (h *connHandler) handleViewCheckpoint(msg wire.Message) any {
	var req wire.CheckpointRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanRead(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "read access denied")
	}
	data, err := h.srv.store.ViewCheckpoint(req.File, req.Tag)
	if err != nil {
		if err == filestore.ErrNotFound {
			return wire.Reply(msg.Op, wire.StatusNotFound, "no such checkpoint")
		}
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.ViewCheckpointResponse{Envelope: wire.OK(msg.Op), Content: string(data)}
}

func (h *connHandler) handleRevert(msg wire.Message) any {
	var req wire.CheckpointRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanWrite(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "write access denied")
	}
	if err := h.srv.store.Revert(req.File, req.Tag); err != nil {
		if err == filestore.ErrNotFound {
			return wire.Reply(msg.Op, wire.StatusNotFound, "no such checkpoint")
		}
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	h.srv.metrics.CheckpointRestored()
	return wire.OK(msg.Op)
}

func (h *connHandler) handleListCheckpoints(msg wire.Message) any {
	var req wire.CheckpointRequest
	if err := msg.Decode(&req); err != nil {
		return wire.Reply(msg.Op, wire.StatusBadRequest, err.Error())
	}
	fs, errResp := h.lookup(msg, req.File)
	if errResp != nil {
		return errResp
	}
	if !fs.Meta.CanRead(req.User) {
		return wire.Reply(msg.Op, wire.StatusUnauthorized, "read access denied")
	}
	tags, err := h.srv.store.ListCheckpoints(req.File)
	if err != nil {
		return wire.Reply(msg.Op, wire.StatusInternal, err.Error())
	}
	return wire.ListCheckpointsResponse{Envelope: wire.OK(msg.Op), Tags: strings.Join(tags, ",")}
}
