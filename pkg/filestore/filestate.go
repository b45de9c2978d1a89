package filestore

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// FileState is one SS's in-memory view of a single file: its tokenized
// content, metadata, and active sentence locks. All mutation goes
// through its mutex.
type FileState struct {
	mu sync.Mutex

	Filename  string
	Sentences []Sentence
	Meta      Metadata
	Locks     *LockSet
}

// NewFileState creates an empty FileState owned by owner.
func NewFileState(filename, owner string) *FileState {
	now := time.Now()
	return &FileState{
		Filename: filename,
		Meta: Metadata{
			Owner:    owner,
			Created:  now,
			Modified: now,
			Accessed: now,
		},
		Locks: newLockSet(),
	}
}

// LoadFileState rebuilds a FileState from on-disk bytes and metadata.
func LoadFileState(filename string, data []byte, meta Metadata) *FileState {
	return &FileState{
		Filename:  filename,
		Sentences: Tokenize(data),
		Meta:      meta,
		Locks:     newLockSet(),
	}
}

// Text renders the file's current sentences back to text.
func (fs *FileState) Text() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return RebuildText(fs.Sentences)
}

// WordCount returns the total word count across all sentences.
func (fs *FileState) WordCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return WordCount(fs.Sentences)
}

// CharCount returns len(Text()) in bytes.
func (fs *FileState) CharCount() int {
	return len(fs.Text())
}

// BeginWrite implements WRITE_BEGIN: acquire an exclusive lock on
// sentenceIdx for user. This is the system's single check-and-install
// critical section: it must run under fs.mu for the whole check, not
// just the install.
func (fs *FileState) BeginWrite(user string, sentenceIdx int) (status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if sentenceIdx == len(fs.Sentences) {
		canAppend := len(fs.Sentences) == 0 || fs.Sentences[len(fs.Sentences)-1].Sealed()
		if canAppend {
			fs.Sentences = append(fs.Sentences, Sentence{})
		}
	}

	if sentenceIdx < 0 || sentenceIdx >= len(fs.Sentences) {
		return 4 // BAD_REQUEST
	}

	if held, ok := fs.Locks.LockOf(user); ok {
		if held == sentenceIdx {
			return 0 // idempotent re-BEGIN
		}
		return 3 // already holds a different sentence: LOCKED
	}

	if holder := fs.Locks.HolderOf(sentenceIdx); holder != "" {
		return 3 // LOCKED
	}

	fs.Locks.Acquire(sentenceIdx, user)
	return 0
}

// EditWrite implements WRITE_EDIT against the sentence user has locked.
// content's whitespace-separated tokens are inserted starting at
// wordIndex; an embedded `. ? !` seals the sentence and moves any
// remaining text into a freshly inserted sentence.
func (fs *FileState) EditWrite(user string, wordIndex int, content string) (status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sentenceIdx, ok := fs.Locks.LockOf(user)
	if !ok {
		return 4 // BAD_REQUEST: no open write session
	}
	if sentenceIdx < 0 || sentenceIdx >= len(fs.Sentences) {
		return 4
	}
	if wordIndex < 0 || wordIndex > len(fs.Sentences[sentenceIdx].Words) {
		return 4
	}

	inserted, rest, delim, hasDelim := splitOnDelimiter(content)

	sent := fs.Sentences[sentenceIdx]
	words := make([]string, 0, len(sent.Words)+len(inserted))
	words = append(words, sent.Words[:wordIndex]...)
	words = append(words, inserted...)
	words = append(words, sent.Words[wordIndex:]...)
	sent.Words = words

	if !hasDelim {
		fs.Sentences[sentenceIdx] = sent
		return 0
	}

	sent.Delim = delim
	fs.Sentences[sentenceIdx] = sent

	// Only the first sentence found in the remaining text is spliced in;
	// an edit never creates more than one new sentence, so anything past
	// a second embedded delimiter is discarded.
	restSentences := Tokenize([]byte(rest))
	var newSentence []Sentence
	if len(restSentences) > 0 {
		newSentence = restSentences[:1]
	}

	tail := make([]Sentence, 0, len(fs.Sentences)-sentenceIdx-1+len(newSentence))
	tail = append(tail, newSentence...)
	tail = append(tail, fs.Sentences[sentenceIdx+1:]...)

	fs.Sentences = append(fs.Sentences[:sentenceIdx+1], tail...)

	// At most one new sentence is ever spliced in, so every lock past
	// the edited sentence shifts by exactly one to preserve identity;
	// when nothing was spliced in, the locks stay where they are.
	if len(newSentence) > 0 {
		fs.Locks.ShiftFrom(sentenceIdx)
	}

	return 0
}

// splitOnDelimiter scans content for the first of `. ? !`. It returns the
// whitespace-separated words before the delimiter, the raw text after it,
// the delimiter found, and whether one was found at all.
func splitOnDelimiter(content string) (words []string, rest string, delim Delim, found bool) {
	for i := 0; i < len(content); i++ {
		if IsTerminator(content[i]) {
			words = strings.Fields(content[:i])
			rest = content[i+1:]
			delim = Delim(content[i])
			found = true
			return
		}
	}
	words = strings.Fields(content)
	return
}

// HoldsLock reports whether user has an open write session on this file.
func (fs *FileState) HoldsLock(user string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.Locks.LockOf(user)
	return ok
}

// LocksHeld reports whether any write session is open on this file.
func (fs *FileState) LocksHeld() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return !fs.Locks.Empty()
}

// ReleaseUser drops any lock held by user, for disconnect/cancellation.
func (fs *FileState) ReleaseUser(user string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.Locks.Release(user)
}

// Touch updates Modified/Accessed/LastAccessUser after a successful
// write commit.
func (fs *FileState) Touch(user string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	now := time.Now()
	fs.Meta.Modified = now
	fs.Meta.Accessed = now
	fs.Meta.LastAccessUser = user
}

// TouchRead updates Accessed/LastAccessUser after a read.
func (fs *FileState) TouchRead(user string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.Meta.Accessed = time.Now()
	fs.Meta.LastAccessUser = user
}

// Reload replaces the tokenized content in place (used by UNDO/REVERT).
func (fs *FileState) Reload(data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.Sentences = Tokenize(data)
}

// Rename updates the cached filename (used by MOVE).
func (fs *FileState) Rename(newName string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.Filename = newName
}

// InfoString renders the INFO payload: "Key:Value" pairs joined by "||".
func (fs *FileState) InfoString(size int64) string {
	fs.mu.Lock()
	meta := fs.Meta
	fs.mu.Unlock()

	access := fmt.Sprintf("%s (RW)", meta.Owner)
	for _, e := range meta.ACL {
		access += ", " + e.User + " (" + aclMode(e) + ")"
	}

	fields := []string{
		"File:" + fs.Filename,
		"Owner:" + meta.Owner,
		"Created:" + meta.Created.Format(time.RFC3339),
		"LastModified:" + meta.Modified.Format(time.RFC3339),
		fmt.Sprintf("Size:%d", size),
		"Access:" + access,
		"LastAccessed:" + meta.Accessed.Format(time.RFC3339),
		"LastAccessUser:" + meta.LastAccessUser,
	}
	return strings.Join(fields, "||")
}

func aclMode(e ACLEntry) string {
	switch {
	case e.CanRead && e.CanWrite:
		return "RW"
	case e.CanWrite:
		return "W"
	case e.CanRead:
		return "R"
	default:
		return "-"
	}
}
