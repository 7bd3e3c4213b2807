package state

import (
	"context"
	"sync"
	"time"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and examples. It keys records
// by Ref.Identifier and keeps raw bytes so malformed documents can be seeded.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	data []byte
	meta Meta
}

// NewMemoryStore returns an empty store. now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{records: map[string]memoryRecord{}, now: now}
}

// Put stores raw bytes for ref without validation, as a hand edit would.
func (s *MemoryStore) Put(ref Ref, data []byte) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.stampLocked(key, data, Meta{})
	s.records[key] = memoryRecord{data: append([]byte(nil), data...), meta: meta}
	return cloneMeta(meta), nil
}

// Delete removes ref.
func (s *MemoryStore) Delete(ref Ref) error {
	key, err := ref.Identifier()
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Stat(_ context.Context, ref Ref) (Stamp, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Stamp{}, err
	}
	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return Stamp{}, nil
	}
	return record.meta.Stamp, nil
}

// Raw returns the stored bytes of ref, or ErrNotFound.
func (s *MemoryStore) Raw(_ context.Context, ref Ref) ([]byte, Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, err
	}
	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, ErrNotFound
	}
	return append([]byte(nil), record.data...), cloneMeta(record.meta), nil
}

func (s *MemoryStore) Load(ctx context.Context, ref Ref) (groups.Document, Meta, bool, error) {
	data, meta, err := s.Raw(ctx, ref)
	if err == ErrNotFound {
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

func (s *MemoryStore) Save(_ context.Context, ref Ref, doc groups.Document, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.records[key]
	if err := CheckExpected(meta, current.meta.ETag, exists); err != nil {
		return Meta{}, err
	}
	saved := s.stampLocked(key, data, meta)
	saved.SnapshotID = uuid.NewString()
	s.records[key] = memoryRecord{data: data, meta: saved}
	return cloneMeta(saved), nil
}

// stampLocked builds the meta for data. Modification times strictly increase
// per key so every write changes the stamp.
func (s *MemoryStore) stampLocked(key string, data []byte, meta Meta) Meta {
	now := s.now()
	if previous, ok := s.records[key]; ok && !now.After(previous.meta.Stamp.ModTime) {
		now = previous.meta.Stamp.ModTime.Add(time.Nanosecond)
	}
	out := cloneMeta(meta)
	out.ETag = ETag(data)
	out.UpdatedAt = now
	out.Stamp = Stamp{Exists: true, ModTime: now, Size: int64(len(data))}
	out.Absent = false
	return out
}
