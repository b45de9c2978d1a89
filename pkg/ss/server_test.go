package ss

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filegrid/filegrid/pkg/filestore"
	"github.com/filegrid/filegrid/pkg/wire"
)

// fakeNM accepts connections in a loop and replies OK to every message on
// each until the peer closes; enough to satisfy registerWithNM and the
// heartbeat sender without standing up a real nm.Server for tests scoped
// to this package.
func fakeNM(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := wire.NewReader(c)
				w := wire.NewWriter(c)
				for {
					msg, err := r.ReadMessage()
					if err != nil {
						return
					}
					_ = w.WriteMessage(wire.OK(msg.Op))
				}
			}(conn)
		}
	}()
	return l.Addr().String()
}

func startTestSS(t *testing.T) func() (*wire.Reader, *wire.Writer) {
	t.Helper()

	root := t.TempDir()
	store, err := filestore.NewStore(root, filestore.NewJSONMetastore(root), filestore.NewDiskCheckpointStore(root))
	require.NoError(t, err)

	srv := New(Options{
		ID:                  "ss1",
		ListenAddr:          "127.0.0.1:0",
		MaxConnections:      16,
		ShutdownTimeout:     time.Second,
		NMAddr:              fakeNM(t),
		AdvertiseHost:       "127.0.0.1",
		AdvertiseClientPort: 0,
		AdvertiseNMPort:     0,
		HeartbeatInterval:   time.Hour,
		Store:               store,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	addr := srv.Addr()

	t.Cleanup(func() {
		cancel()
		_ = srv.Stop(context.Background())
		<-done
	})

	return func() (*wire.Reader, *wire.Writer) {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return wire.NewReader(conn), wire.NewWriter(conn)
	}
}

func TestCreateReadWriteCommitRoundTrip(t *testing.T) {
	dial := startTestSS(t)
	r, w := dial()

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "a.txt", User: "alice"}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)

	require.NoError(t, w.WriteMessage(wire.WriteBeginRequest{Op: wire.OpWriteBegin, File: "a.txt", User: "alice", SentenceIdx: 0}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, *msg.Status)

	require.NoError(t, w.WriteMessage(wire.WriteEditRequest{Op: wire.OpWriteEdit, WordIndex: 0, Content: "hello world."}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, *msg.Status)

	require.NoError(t, w.WriteMessage(wire.WriteCommitRequest{Op: wire.OpWriteCommit, File: "a.txt"}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, *msg.Status)

	require.NoError(t, w.WriteMessage(wire.ReadRequest{Op: wire.OpRead, File: "a.txt", User: "alice"}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	var readResp wire.ReadResponse
	require.NoError(t, msg.Decode(&readResp))
	assert.Equal(t, "hello world.", readResp.Content)
}

func TestWriteBeginConflictsAcrossConnections(t *testing.T) {
	dial := startTestSS(t)
	r1, w1 := dial()
	r2, w2 := dial()

	require.NoError(t, w1.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "b.txt", User: "alice"}))
	_, err := r1.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w1.WriteMessage(wire.WriteBeginRequest{Op: wire.OpWriteBegin, File: "b.txt", User: "alice", SentenceIdx: 0}))
	msg, err := r1.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)

	// bob needs write access, so the lock is the only thing in his way.
	require.NoError(t, w1.WriteMessage(wire.AccessRequest{Op: wire.OpNMAccess, File: "b.txt", User: "alice", Target: "bob", Mode: "W"}))
	msg, err = r1.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)

	require.NoError(t, w2.WriteMessage(wire.WriteBeginRequest{Op: wire.OpWriteBegin, File: "b.txt", User: "bob", SentenceIdx: 0}))
	msg, err = r2.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.StatusLocked, *msg.Status)
}

func TestReadUnauthorizedWithoutAccess(t *testing.T) {
	dial := startTestSS(t)
	r, w := dial()

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "c.txt", User: "alice"}))
	_, err := r.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(wire.ReadRequest{Op: wire.OpRead, File: "c.txt", User: "mallory"}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.StatusUnauthorized, *msg.Status)
}

func TestStreamEmitsTokensThenStop(t *testing.T) {
	dial := startTestSS(t)
	r, w := dial()

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "d.txt", User: "alice"}))
	_, err := r.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(wire.WriteBeginRequest{Op: wire.OpWriteBegin, File: "d.txt", User: "alice", SentenceIdx: 0}))
	_, err = r.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(wire.WriteEditRequest{Op: wire.OpWriteEdit, WordIndex: 0, Content: "one two three."}))
	_, err = r.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(wire.WriteCommitRequest{Op: wire.OpWriteCommit, File: "d.txt"}))
	_, err = r.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(wire.StreamRequest{Op: wire.OpStream, File: "d.txt", User: "alice"}))

	var tokens []string
	for {
		msg, err := r.ReadMessage()
		require.NoError(t, err)
		if msg.Op == wire.OpStop {
			break
		}
		var tok wire.TokMessage
		require.NoError(t, msg.Decode(&tok))
		tokens = append(tokens, tok.W)
	}
	assert.Equal(t, []string{"one", "two", "three."}, tokens)
}

func TestListFiltersByOwnerAndACLUnlessAllFlag(t *testing.T) {
	dial := startTestSS(t)
	r, w := dial()

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "mine.txt", User: "charlie"}))
	_, err := r.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "shared.txt", User: "alice"}))
	_, err = r.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(wire.AccessRequest{Op: wire.OpNMAccess, File: "shared.txt", User: "alice", Target: "charlie", Mode: "R"}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "private.txt", User: "alice"}))
	_, err = r.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(wire.ListRequest{Op: wire.OpList, Flags: "", User: "charlie"}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	var listResp wire.ListResponse
	require.NoError(t, msg.Decode(&listResp))
	assert.ElementsMatch(t, []string{"mine.txt", "shared.txt"}, splitListEntries(listResp.Entries))

	require.NoError(t, w.WriteMessage(wire.ListRequest{Op: wire.OpList, Flags: "a", User: "charlie"}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, msg.Decode(&listResp))
	assert.ElementsMatch(t, []string{"mine.txt", "shared.txt", "private.txt"}, splitListEntries(listResp.Entries))
}

func TestListLongFlagFormatsDetail(t *testing.T) {
	dial := startTestSS(t)
	r, w := dial()

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "f.txt", User: "alice"}))
	_, err := r.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(wire.WriteBeginRequest{Op: wire.OpWriteBegin, File: "f.txt", User: "alice", SentenceIdx: 0}))
	_, err = r.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(wire.WriteEditRequest{Op: wire.OpWriteEdit, WordIndex: 0, Content: "one two three."}))
	_, err = r.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(wire.WriteCommitRequest{Op: wire.OpWriteCommit, File: "f.txt"}))
	_, err = r.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(wire.ListRequest{Op: wire.OpList, Flags: "l", User: "alice"}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	var listResp wire.ListResponse
	require.NoError(t, msg.Decode(&listResp))
	entries := splitListEntries(listResp.Entries)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], "f.txt | Owner: alice | Words: 3 | Chars: ")
}

func splitListEntries(entries string) []string {
	if entries == "" {
		return nil
	}
	return strings.Split(entries, ";;")
}

// commitSentence runs one full write session over the wire: BEGIN on
// idx, a single EDIT at word 0, COMMIT.
func commitSentence(t *testing.T, r *wire.Reader, w *wire.Writer, file, user string, idx int, content string) {
	t.Helper()

	require.NoError(t, w.WriteMessage(wire.WriteBeginRequest{Op: wire.OpWriteBegin, File: file, User: user, SentenceIdx: idx}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)

	require.NoError(t, w.WriteMessage(wire.WriteEditRequest{Op: wire.OpWriteEdit, WordIndex: 0, Content: content}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)

	require.NoError(t, w.WriteMessage(wire.WriteCommitRequest{Op: wire.OpWriteCommit, File: file}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)
}

func readContent(t *testing.T, r *wire.Reader, w *wire.Writer, file, user string) string {
	t.Helper()
	require.NoError(t, w.WriteMessage(wire.ReadRequest{Op: wire.OpRead, File: file, User: user}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	var resp wire.ReadResponse
	require.NoError(t, msg.Decode(&resp))
	require.Equal(t, wire.StatusOK, resp.Status)
	return resp.Content
}

func TestUndoWithoutPriorCommitReturnsNotFound(t *testing.T) {
	dial := startTestSS(t)
	r, w := dial()

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "e.txt", User: "alice"}))
	_, err := r.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(wire.UndoRequest{Op: wire.OpUndo, File: "e.txt", User: "alice"}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.StatusNotFound, *msg.Status, "no prior write to undo")
}

func TestUndoRestoresPriorCommit(t *testing.T) {
	dial := startTestSS(t)
	r, w := dial()

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "undo.txt", User: "alice"}))
	_, err := r.ReadMessage()
	require.NoError(t, err)

	commitSentence(t, r, w, "undo.txt", "alice", 0, "hello world.")
	commitSentence(t, r, w, "undo.txt", "alice", 1, "more.")
	require.Equal(t, "hello world. more.", readContent(t, r, w, "undo.txt", "alice"))

	require.NoError(t, w.WriteMessage(wire.UndoRequest{Op: wire.OpUndo, File: "undo.txt", User: "alice"}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)
	assert.Equal(t, "hello world.", readContent(t, r, w, "undo.txt", "alice"))

	// The snapshot is not consumed: a second undo returns the same text.
	require.NoError(t, w.WriteMessage(wire.UndoRequest{Op: wire.OpUndo, File: "undo.txt", User: "alice"}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)
	assert.Equal(t, "hello world.", readContent(t, r, w, "undo.txt", "alice"))
}

func TestCheckpointRevertRestoresTaggedContent(t *testing.T) {
	dial := startTestSS(t)
	r, w := dial()

	require.NoError(t, w.WriteMessage(wire.CreateRequest{Op: wire.OpNMCreate, File: "cp.txt", User: "alice"}))
	_, err := r.ReadMessage()
	require.NoError(t, err)

	commitSentence(t, r, w, "cp.txt", "alice", 0, "hello world.")

	require.NoError(t, w.WriteMessage(wire.CheckpointRequest{Op: wire.OpCheckpoint, File: "cp.txt", Tag: "v1", User: "alice"}))
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)

	commitSentence(t, r, w, "cp.txt", "alice", 1, "more.")
	require.Equal(t, "hello world. more.", readContent(t, r, w, "cp.txt", "alice"))

	require.NoError(t, w.WriteMessage(wire.CheckpointRequest{Op: wire.OpListCheckpoints, File: "cp.txt", User: "alice"}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	var listResp wire.ListCheckpointsResponse
	require.NoError(t, msg.Decode(&listResp))
	assert.Equal(t, "v1", listResp.Tags)

	require.NoError(t, w.WriteMessage(wire.CheckpointRequest{Op: wire.OpViewCheckpoint, File: "cp.txt", Tag: "v1", User: "alice"}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	var viewResp wire.ViewCheckpointResponse
	require.NoError(t, msg.Decode(&viewResp))
	assert.Equal(t, "hello world.", viewResp.Content)

	require.NoError(t, w.WriteMessage(wire.CheckpointRequest{Op: wire.OpRevert, File: "cp.txt", Tag: "v1", User: "alice"}))
	msg, err = r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, *msg.Status)
	assert.Equal(t, "hello world.", readContent(t, r, w, "cp.txt", "alice"))
}
