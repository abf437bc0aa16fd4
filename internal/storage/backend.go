// SPDX-License-Identifier: Apache-2.0

// Package storage defines the StorageBackend abstraction every concrete
// repository connector (filesystem, git) implements, plus the shared
// walk/diff/subscribe contracts built on top of it.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by ListDir/ReadObject/PathHash implementations
// when the requested path doesn't exist at the given version. Index
// building treats a missing category root (e.g. a namespace with no
// /links documents at all) as an empty category rather than a fatal
// error; any other failure still aborts the build.
var ErrNotFound = errors.New("storage: path not found")

// VersionItem identifies one immutable snapshot of the backing repository
// (a commit id for git, an opaque monotonic token for filesystem).
type VersionItem struct {
	ID string
}

// DirItem is one entry returned by ListDir: either a sub-directory or a
// leaf object, named relative to its parent directory.
type DirItem struct {
	Name  string
	IsDir bool
	// Hash identifies the object's content at this version: a git blob
	// id for the git backend, and an xxhash64 of the file's contents
	// (not its path) for the filesystem backend, so two files with
	// identical contents share a Hash there.
	Hash string
}

// WalkDecision tells WalkDir how to proceed after visiting an entry.
type WalkDecision int

// Walk decisions.
const (
	WalkNext WalkDecision = iota
	WalkSkip
	WalkStop
)

// WalkVisitor is invoked for every entry WalkDir descends into. path is
// the absolute repository path of the entry.
type WalkVisitor func(path string, item DirItem) WalkDecision

// StorageChangeEvent describes a transition between two versions that a
// watcher detected.
type StorageChangeEvent struct {
	OldVersion VersionItem
	NewVersion VersionItem
}

// Backend is the storage abstraction every repository connector
// implements. Implementations must be safe for concurrent use; readers
// (ListDir, ReadObject, WalkDir) always operate against an explicit
// VersionItem so callers can pin a consistent view while a watcher
// advances the backend to newer versions concurrently.
type Backend interface {
	// CurrentVersion returns the latest version the backend has observed.
	CurrentVersion(ctx context.Context) (VersionItem, error)

	// ListVersions returns the backend's known version history, oldest
	// first. Backends that don't retain history (the filesystem backend)
	// may return a single-element slice containing only the current
	// version.
	ListVersions(ctx context.Context) ([]VersionItem, error)

	// ListDir lists the immediate children of dir at version.
	ListDir(ctx context.Context, version VersionItem, dir string) ([]DirItem, error)

	// ReadObject returns the raw bytes of the object at path, at version.
	ReadObject(ctx context.Context, version VersionItem, path string) ([]byte, error)

	// PathHash returns the content identity of path at version, without
	// reading its bytes. It is the same value ListDir/WalkDir report as
	// DirItem.Hash for that entry.
	PathHash(ctx context.Context, version VersionItem, path string) (string, error)

	// Diff reports every path under namespace whose content hash differs
	// between old and new. An empty result means no change was observed
	// for that namespace between the two versions: it is not an error,
	// but it is the signal the update protocol uses to skip this
	// namespace's rebuild for this event -- the root center's version
	// pointer still advances regardless.
	Diff(ctx context.Context, old, new VersionItem, namespace string) ([]string, error)

	// Subscribe registers the single callback invoked whenever the
	// backend observes a new version. Only one watcher is supported per
	// backend instance; calling Subscribe a second time fails with
	// ErrAlreadySubscribed rather than replacing the existing callback.
	// The returned stop function halts the watcher goroutine, is
	// idempotent, and frees the backend to accept a new Subscribe call.
	Subscribe(ctx context.Context, onChange func(StorageChangeEvent)) (stop func(), err error)
}
