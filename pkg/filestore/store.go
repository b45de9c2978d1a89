package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/filegrid/filegrid/internal/logger"
)

// Store owns every FileState on one storage server: the on-disk layout
// under root (files/meta/undo/checkpoints) and the in-memory cache,
// protected by a single mutex.
type Store struct {
	root string

	mu    sync.RWMutex
	files map[string]*FileState

	metastore       Metastore
	checkpointStore CheckpointStore
}

// Metastore is the pluggable backing for per-file metadata lookups:
// JSON-on-disk by default, or an embedded KV accelerator.
type Metastore interface {
	Load(path string) (Metadata, bool, error)
	Save(path string, meta Metadata) error
	Delete(path string) error
}

// CheckpointStore is the pluggable backing for named checkpoints:
// local disk by default, or S3.
type CheckpointStore interface {
	Put(file, tag string, data []byte) error
	Get(file, tag string) ([]byte, error)
	List(file string) ([]string, error)
}

// NewStore opens (creating if necessary) the on-disk layout rooted at
// root, and scans it recursively for existing files and metadata.
func NewStore(root string, metastore Metastore, checkpoints CheckpointStore) (*Store, error) {
	for _, sub := range []string{"files", "meta", "undo", "checkpoints"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("filestore: create %s dir: %w", sub, err)
		}
	}

	s := &Store{
		root:            root,
		files:           make(map[string]*FileState),
		metastore:       metastore,
		checkpointStore: checkpoints,
	}

	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) filesRoot() string       { return filepath.Join(s.root, "files") }
func (s *Store) undoPath(f string) string { return filepath.Join(s.root, "undo", f+".bak") }

// scan recursively walks filesRoot, loading each file's bytes and any
// persisted metadata into the cache.
func (s *Store) scan() error {
	return filepath.WalkDir(s.filesRoot(), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.filesRoot(), path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		meta, found, err := s.metastore.Load(rel)
		if err != nil {
			return err
		}
		if !found {
			meta = Metadata{}
		}
		s.files[rel] = LoadFileState(rel, data, meta)
		return nil
	})
}

// Get returns the cached FileState for path. It does not read the disk:
// a path missing from the cache reports false.
func (s *Store) Get(path string) (*FileState, bool) {
	s.mu.RLock()
	fs, ok := s.files[path]
	s.mu.RUnlock()
	return fs, ok
}

// Create registers a brand-new, empty file owned by owner. Fails with
// ErrExists if the file already exists on disk or in cache.
func (s *Store) Create(path, owner string) (*FileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[path]; ok {
		return nil, ErrExists
	}
	full := filepath.Join(s.filesRoot(), path)
	if _, err := os.Stat(full); err == nil {
		return nil, ErrExists
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(full, nil, 0644); err != nil {
		return nil, err
	}

	fs := NewFileState(path, owner)
	if err := s.metastore.Save(path, fs.Meta); err != nil {
		return nil, err
	}
	s.files[path] = fs
	return fs, nil
}

// Delete removes path's content, metadata, and undo backup, and evicts
// the cache entry. Checkpoints are left intact.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := filepath.Join(s.filesRoot(), path)
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := s.metastore.Delete(path); err != nil {
		logger.Debug("filestore: metadata delete failed", logger.File(path), logger.Err(err))
	}
	if err := os.Remove(s.undoPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("filestore: undo delete failed", logger.File(path), logger.Err(err))
	}
	delete(s.files, path)
	return nil
}

// List returns every cached file path, for LIST/VIEWFOLDER enumeration.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	return paths
}

// Persist writes fs's current text to disk, backing up the prior content
// to the undo snapshot first (one-level undo), then saves metadata.
func (s *Store) Persist(fs *FileState) error {
	full := filepath.Join(s.filesRoot(), fs.Filename)

	if existing, err := os.ReadFile(full); err == nil {
		if err := os.MkdirAll(filepath.Dir(s.undoPath(fs.Filename)), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(s.undoPath(fs.Filename), existing, 0644); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, []byte(fs.Text()), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, full); err != nil {
		return err
	}

	return s.metastore.Save(fs.Filename, fs.Meta)
}

// Undo restores path's content from its undo snapshot. The snapshot is
// not consumed: a second Undo restores the same bytes.
func (s *Store) Undo(path string) error {
	data, err := os.ReadFile(s.undoPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}

	full := filepath.Join(s.filesRoot(), path)
	if err := os.WriteFile(full, data, 0644); err != nil {
		return err
	}

	if fs, ok := s.Get(path); ok {
		fs.Reload(data)
	}
	return nil
}

// Checkpoint snapshots path's current on-disk bytes under tag.
func (s *Store) Checkpoint(path, tag string) error {
	full := filepath.Join(s.filesRoot(), path)
	data, err := os.ReadFile(full)
	if err != nil {
		return err
	}
	return s.checkpointStore.Put(path, tag, data)
}

// ViewCheckpoint returns tag's bytes verbatim.
func (s *Store) ViewCheckpoint(path, tag string) ([]byte, error) {
	return s.checkpointStore.Get(path, tag)
}

// Revert overwrites path's live content with tag's checkpoint bytes and
// re-tokenizes the cached FileState in place from those bytes.
func (s *Store) Revert(path, tag string) error {
	data, err := s.checkpointStore.Get(path, tag)
	if err != nil {
		return err
	}

	full := filepath.Join(s.filesRoot(), path)
	if err := os.WriteFile(full, data, 0644); err != nil {
		return err
	}

	if fs, ok := s.Get(path); ok {
		fs.Reload(data)
	}
	return nil
}

// ListCheckpoints returns tag names for path.
func (s *Store) ListCheckpoints(path string) ([]string, error) {
	return s.checkpointStore.List(path)
}

// UpdateACL mutates path's ACL under its FileState's lock and persists
// the metadata change alone, without touching file content or bumping
// Modified (ACL changes aren't content writes).
func (s *Store) UpdateACL(path string, mutate func(meta *Metadata)) error {
	fs, ok := s.Get(path)
	if !ok {
		return ErrNotFound
	}

	fs.mu.Lock()
	mutate(&fs.Meta)
	meta := fs.Meta
	fs.mu.Unlock()

	return s.metastore.Save(path, meta)
}

// Move renames path's on-disk content, metadata, and undo backup to
// folder/path, updating the cached FileState's filename.
func (s *Store) Move(path, folder string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newPath := filepath.ToSlash(filepath.Join(folder, filepath.Base(path)))

	oldFull := filepath.Join(s.filesRoot(), path)
	newFull := filepath.Join(s.filesRoot(), newPath)
	if err := os.MkdirAll(filepath.Dir(newFull), 0755); err != nil {
		return "", err
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		return "", err
	}

	if data, err := os.ReadFile(s.undoPath(path)); err == nil {
		_ = os.MkdirAll(filepath.Dir(s.undoPath(newPath)), 0755)
		_ = os.WriteFile(s.undoPath(newPath), data, 0644)
		_ = os.Remove(s.undoPath(path))
	}

	if meta, found, err := s.metastore.Load(path); err == nil && found {
		_ = s.metastore.Save(newPath, meta)
		_ = s.metastore.Delete(path)
	}

	if fs, ok := s.files[path]; ok {
		fs.Rename(newPath)
		delete(s.files, path)
		s.files[newPath] = fs
	}

	return newPath, nil
}

// CreateFolder creates a subdirectory under the files root.
func (s *Store) CreateFolder(folder string) error {
	full := filepath.Join(s.filesRoot(), folder)
	if _, err := os.Stat(full); err == nil {
		return ErrExists
	}
	return os.MkdirAll(full, 0755)
}

// ViewFolder enumerates non-recursive entries under folder.
func (s *Store) ViewFolder(folder string) ([]string, error) {
	full := filepath.Join(s.filesRoot(), folder)
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Size returns path's on-disk byte size.
func (s *Store) Size(path string) (int64, error) {
	info, err := os.Stat(filepath.Join(s.filesRoot(), path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Errors surfaced by Store operations, mapped to wire status codes by
// the SS request handler.
var (
	ErrNotFound = errors.New("filestore: not found")
	ErrExists   = errors.New("filestore: already exists")
)

// jsonMetastore is the default Metastore: one JSON file per tracked path
// under data/meta.
type jsonMetastore struct {
	root string
}

// NewJSONMetastore returns the default on-disk JSON metadata backend.
func NewJSONMetastore(root string) Metastore {
	return &jsonMetastore{root: root}
}

func (m *jsonMetastore) metaPath(path string) string {
	return filepath.Join(m.root, "meta", path+".json")
}

func (m *jsonMetastore) Load(path string) (Metadata, bool, error) {
	data, err := os.ReadFile(m.metaPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false, err
	}
	return meta, true, nil
}

func (m *jsonMetastore) Save(path string, meta Metadata) error {
	full := m.metaPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(full, data, 0644)
}

func (m *jsonMetastore) Delete(path string) error {
	err := os.Remove(m.metaPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// diskCheckpointStore is the default CheckpointStore: one file per tag
// under data/checkpoints/<path>/<tag>.
type diskCheckpointStore struct {
	root string
}

// NewDiskCheckpointStore returns the default on-disk checkpoint backend.
func NewDiskCheckpointStore(root string) CheckpointStore {
	return &diskCheckpointStore{root: root}
}

func (c *diskCheckpointStore) dir(file string) string {
	return filepath.Join(c.root, "checkpoints", file)
}

func (c *diskCheckpointStore) Put(file, tag string, data []byte) error {
	dir := c.dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, tag), data, 0644)
}

func (c *diskCheckpointStore) Get(file, tag string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(c.dir(file), tag))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (c *diskCheckpointStore) List(file string) ([]string, error) {
	entries, err := os.ReadDir(c.dir(file))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	tags := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			tags = append(tags, e.Name())
		}
	}
	return tags, nil
}
