// Package state persists the two overlay group documents.
//
// A Store loads and saves exactly one document per Ref. Stores never merge;
// layering stays in the root groups package and the loader engine.
//
// Stamps:
//
//	Stat reports (exists, mtime, size) without reading content. The loader
//	combines the shipped and user stamps into its change signature.
//
// Concurrency:
//
//	Every load reports an ETag (sha256 of the stored bytes). Passing that ETag
//	back on Save makes the write conditional: if the stored bytes changed in
//	between, Save fails with ErrETagMismatch and nothing is written. An empty
//	ETag saves unconditionally.
package state
