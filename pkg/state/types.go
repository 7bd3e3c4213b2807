package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	groups "github.com/goliatone/go-overlay-groups"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

var ErrNotFound = errors.New("state: document not found")

var ErrInvalidRef = errors.New("state: invalid ref")

// Ref identifies one persisted document.
type Ref struct {
	Layer groups.Layer
	Path  string
}

// ShippedRef is a Ref for the read-only shipped document.
func ShippedRef(path string) Ref {
	return Ref{Layer: groups.LayerShipped, Path: path}
}

// UserRef is a Ref for the user override document.
func UserRef(path string) Ref {
	return Ref{Layer: groups.LayerUser, Path: path}
}

// Identifier returns the deterministic storage key `<layer>:<clean path>`.
func (r Ref) Identifier() (string, error) {
	if r.Layer != groups.LayerShipped && r.Layer != groups.LayerUser {
		return "", fmt.Errorf("%w: unsupported layer %q", ErrInvalidRef, r.Layer)
	}
	trimmed := strings.TrimSpace(r.Path)
	if trimmed == "" {
		return "", fmt.Errorf("%w: path is required", ErrInvalidRef)
	}
	return fmt.Sprintf("%s:%s", r.Layer, path.Clean(strings.ReplaceAll(trimmed, "\\", "/"))), nil
}

// Stamp is the cheap change indicator for one document.
type Stamp struct {
	Exists  bool      `json:"exists"`
	ModTime time.Time `json:"mod_time,omitempty"`
	Size    int64     `json:"size,omitempty"`
}

// String renders the stamp for signatures: "missing" or "<unix nanos>:<size>".
func (s Stamp) String() string {
	if !s.Exists {
		return "missing"
	}
	return fmt.Sprintf("%d:%d", s.ModTime.UnixNano(), s.Size)
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	// Extra travels with the Meta handed to and returned by Save. FileStore
	// does not persist it.
	Extra map[string]string `json:"extra,omitempty"`
	Stamp Stamp             `json:"stamp"`
	// Absent marks a document that was not stored when loaded. On a Save
	// it requires that nothing is stored yet.
	Absent bool `json:"absent,omitempty"`
}

// Store loads and saves one document for a single Ref.
//
// Load reports ok=false with a nil error when nothing is stored. A stored
// document that cannot be parsed yields a *groups.DocumentError together with
// the Meta of the bytes that failed.
type Store interface {
	Stat(ctx context.Context, ref Ref) (Stamp, error)
	Load(ctx context.Context, ref Ref) (doc groups.Document, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, doc groups.Document, meta Meta) (Meta, error)
}

// Mutator transforms a loaded document into the document to save. Returning
// changed=false skips the write.
type Mutator func(doc groups.Document) (next groups.Document, changed bool, err error)

// Mutate loads ref, applies fn and saves the result guarded by the loaded
// ETag. A missing document is presented to fn as an empty one and the save
// then requires it to still be missing. When expected carries an ETag it must
// match the stored one. The returned Meta is the
// saved one, or the loaded one when nothing was written.
func Mutate(ctx context.Context, store Store, ref Ref, expected Meta, fn Mutator) (groups.Document, Meta, bool, error) {
	if store == nil {
		return groups.Document{}, Meta{}, false, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return groups.Document{}, Meta{}, false, fmt.Errorf("state: mutator is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return groups.Document{}, Meta{}, false, err
	}

	doc, loaded, ok, err := store.Load(ctx, ref)
	if err != nil {
		return groups.Document{}, loaded, false, fmt.Errorf("state: load %s %q: %w", ref.Layer, ref.Path, err)
	}
	if !ok {
		doc = groups.NewDocument()
		loaded = Meta{Absent: true}
	}
	if err := CheckExpected(expected, loaded.ETag, ok); err != nil {
		return groups.Document{}, loaded, false, err
	}

	next, changed, err := fn(doc.Clone())
	if err != nil {
		return groups.Document{}, loaded, false, err
	}
	if !changed {
		return doc, loaded, false, nil
	}

	saveMeta := mergeMeta(loaded, expected)
	saveMeta.ETag = loaded.ETag
	saved, err := store.Save(ctx, ref, next, saveMeta)
	if err != nil {
		return groups.Document{}, loaded, false, fmt.Errorf("state: save %s %q: %w", ref.Layer, ref.Path, err)
	}
	return next, saved, true, nil
}

// ETag returns the content hash used for conditional saves.
func ETag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CheckETag fails with ErrETagMismatch when expected is set and differs from
// current.
func CheckETag(expected, current string) error {
	if expected == "" || expected == current {
		return nil
	}
	return fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, expected, current)
}

// CheckExpected checks a Save expectation against what is stored. Absent
// fails when a document exists; otherwise the ETag rule of CheckETag applies.
func CheckExpected(expected Meta, current string, exists bool) error {
	if expected.Absent && exists {
		return fmt.Errorf("%w: expected no document, found %q", ErrETagMismatch, current)
	}
	return CheckETag(expected.ETag, current)
}

func encodeDocument(doc groups.Document) ([]byte, error) {
	data, err := doc.Indent()
	if err != nil {
		return nil, fmt.Errorf("state: encode document: %w", err)
	}
	return data, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	if override.Absent {
		out.Absent = true
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
