package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginWriteAppendsSentenceAtEnd(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("Done."), Metadata{Owner: "alice"})
	status := fs.BeginWrite("alice", 1)
	require.Equal(t, 0, status)
	assert.Len(t, fs.Sentences, 2)
}

func TestBeginWriteRejectsOutOfRange(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("Done."), Metadata{Owner: "alice"})
	status := fs.BeginWrite("alice", 5)
	assert.Equal(t, 4, status) // BAD_REQUEST
}

func TestBeginWriteIsIdempotent(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("Done."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	assert.Equal(t, 0, fs.BeginWrite("alice", 0))
}

func TestBeginWriteConflictsAcrossUsers(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("Done."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	assert.Equal(t, 3, fs.BeginWrite("bob", 0)) // LOCKED
}

func TestBeginWriteRejectsSecondSentenceForSameUser(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("One. Two."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	assert.Equal(t, 3, fs.BeginWrite("alice", 1))
}

func TestEditWriteInsertsWordsWithoutSealing(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("The cat sat."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	require.Equal(t, 0, fs.EditWrite("alice", 1, "big fat"))
	assert.Equal(t, "The big fat cat sat.", fs.Text())
}

func TestEditWriteSplitsSentenceOnEmbeddedDelimiter(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("The cat sat."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	require.Equal(t, 0, fs.EditWrite("alice", 1, "big. And"))
	fs.ReleaseUser("alice")

	// The delimiter found in the inserted content seals the whole
	// (extended) current sentence; anything after it starts a new
	// trailing sentence.
	assert.Equal(t, "The big cat sat. And", fs.Text())
	assert.Len(t, fs.Sentences, 2)
}

func TestEditWriteShiftsLocksPastSplitSentence(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("One. Two."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("bob", 1))
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	require.Equal(t, 0, fs.EditWrite("alice", 1, "more. Extra"))

	idx, ok := fs.Locks.LockOf("bob")
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestEditWriteDiscardsContentPastSecondEmbeddedDelimiter(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("The cat sat."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	require.Equal(t, 0, fs.EditWrite("alice", 1, "big. And then! More"))
	fs.ReleaseUser("alice")

	// Only the first sentence found past the inserted delimiter is kept;
	// a further delimiter in the remaining text ("then!") seals that one
	// new sentence, and anything past it ("More") is silently discarded
	// rather than spliced in as yet another sentence.
	assert.Equal(t, "The big cat sat. And then!", fs.Text())
	assert.Len(t, fs.Sentences, 2)
}

func TestEditWriteShiftsLocksByOneDespiteMultipleEmbeddedDelimiters(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("One. Two."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("bob", 1))
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	require.Equal(t, 0, fs.EditWrite("alice", 1, "more. Extra! Dropped"))

	idx, ok := fs.Locks.LockOf("bob")
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestEditWriteRejectsWithoutOpenSession(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("Done."), Metadata{Owner: "alice"})
	assert.Equal(t, 4, fs.EditWrite("alice", 0, "x"))
}

func TestReleaseUserDropsLock(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("Done."), Metadata{Owner: "alice"})
	require.Equal(t, 0, fs.BeginWrite("alice", 0))
	assert.True(t, fs.HoldsLock("alice"))
	fs.ReleaseUser("alice")
	assert.True(t, fs.Locks.Empty())
	assert.False(t, fs.HoldsLock("alice"))
}

func TestInfoStringFormat(t *testing.T) {
	fs := LoadFileState("a.txt", []byte("Done."), Metadata{Owner: "alice"})
	info := fs.InfoString(5)
	assert.Contains(t, info, "File:a.txt")
	assert.Contains(t, info, "Owner:alice")
	assert.Contains(t, info, "Size:5")
	assert.Contains(t, info, "Access:alice (RW)")
}
