package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FileStore keeps documents as indented JSON files on an afero filesystem.
// Saves write a temp file in the target directory and rename it into place.
type FileStore struct {
	fs   afero.Fs
	now  func() time.Time
	perm os.FileMode
	mu   sync.Mutex
}

// FileStoreOption customises a FileStore.
type FileStoreOption func(*FileStore)

// WithClock overrides the clock used for Meta.UpdatedAt.
func WithClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFileMode sets the permission bits of written files. Defaults to 0o644.
func WithFileMode(perm os.FileMode) FileStoreOption {
	return func(s *FileStore) {
		s.perm = perm
	}
}

// NewFileStore returns a store rooted at fsys. A nil fsys uses the OS
// filesystem.
func NewFileStore(fsys afero.Fs, opts ...FileStoreOption) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	store := &FileStore{fs: fsys, now: time.Now, perm: 0o644}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Fs exposes the underlying filesystem.
func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

func (s *FileStore) Stat(_ context.Context, ref Ref) (Stamp, error) {
	if _, err := ref.Identifier(); err != nil {
		return Stamp{}, err
	}
	return s.stat(ref.Path)
}

func (s *FileStore) stat(path string) (Stamp, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return Stamp{}, nil
		}
		return Stamp{}, fmt.Errorf("state: stat %q: %w", path, err)
	}
	if info.IsDir() {
		return Stamp{}, fmt.Errorf("state: %q is a directory", path)
	}
	return Stamp{Exists: true, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// Raw returns the stored bytes of ref, or ErrNotFound.
func (s *FileStore) Raw(_ context.Context, ref Ref) ([]byte, Meta, error) {
	if _, err := ref.Identifier(); err != nil {
		return nil, Meta{}, err
	}
	return s.read(ref.Path)
}

func (s *FileStore) read(path string) ([]byte, Meta, error) {
	stamp, err := s.stat(path)
	if err != nil {
		return nil, Meta{}, err
	}
	if !stamp.Exists {
		return nil, Meta{}, ErrNotFound
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, ErrNotFound
		}
		return nil, Meta{}, fmt.Errorf("state: read %q: %w", path, err)
	}
	return data, Meta{ETag: ETag(data), UpdatedAt: stamp.ModTime, Stamp: stamp}, nil
}

func (s *FileStore) Load(_ context.Context, ref Ref) (groups.Document, Meta, bool, error) {
	if _, err := ref.Identifier(); err != nil {
		return groups.Document{}, Meta{}, false, err
	}
	data, meta, err := s.read(ref.Path)
	if errors.Is(err, ErrNotFound) {
		return groups.Document{}, Meta{Absent: true}, false, nil
	}
	if err != nil {
		return groups.Document{}, Meta{}, false, err
	}
	doc, err := groups.ParseLayerDocument(ref.Layer, ref.Path, data)
	if err != nil {
		return groups.Document{}, meta, false, err
	}
	return doc, meta, true, nil
}

// Save writes doc when meta.ETag is empty or still matches the stored bytes.
// With meta.Absent set the file must not exist yet.
func (s *FileStore) Save(_ context.Context, ref Ref, doc groups.Document, meta Meta) (Meta, error) {
	if _, err := ref.Identifier(); err != nil {
		return Meta{}, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := "", false
	if _, existing, err := s.read(ref.Path); err == nil {
		current, exists = existing.ETag, true
	} else if !errors.Is(err, ErrNotFound) {
		return Meta{}, err
	}
	if err := CheckExpected(meta, current, exists); err != nil {
		return Meta{}, err
	}

	if err := s.writeAtomic(ref.Path, data); err != nil {
		return Meta{}, err
	}
	stamp, err := s.stat(ref.Path)
	if err != nil {
		return Meta{}, err
	}

	out := cloneMeta(meta)
	out.SnapshotID = uuid.NewString()
	out.ETag = ETag(data)
	out.UpdatedAt = s.now()
	out.Stamp = stamp
	out.Absent = false
	return out, nil
}

func (s *FileStore) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create %q: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("state: temp file for %q: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("state: write %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("state: sync %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("state: close %q: %w", tmpName, err)
	}
	if err := s.fs.Chmod(tmpName, s.perm); err != nil {
		cleanup()
		return fmt.Errorf("state: chmod %q: %w", tmpName, err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("state: rename %q: %w", path, err)
	}
	return nil
}
