// SPDX-License-Identifier: Apache-2.0

// Package fsbackend is a development/testing storage.Backend that reads
// directly off the local filesystem. It has no real version history --
// every read simply re-reads the file, and Diff between two differing
// versions conservatively reports everything under the namespace as
// changed. Production deployments should prefer gitbackend, which
// retains commit history.
package fsbackend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/model"
	"github.com/cfgcenter/cfgcenter/internal/storage"
)

// Backend implements storage.Backend over a directory tree rooted at
// BasePath. It is intended for local development and tests.
type Backend struct {
	basePath   string
	subscribed atomic.Bool
}

// New returns a Backend rooted at basePath.
func New(basePath string) *Backend {
	return &Backend{basePath: filepath.Clean(basePath)}
}

// headMarkerFile is an optional file at the backend's root whose contents
// are treated as an opaque version token. A deployment that wants this
// backend's watcher to fire writes a new token to this file after it
// finishes updating the tree underneath, the same way a git ref update
// marks "the tree is now at commit X". Absent the marker file, the
// backend reports the constant version fallbackVersion and the watcher
// never fires.
const headMarkerFile = "head"

// fallbackVersion is reported when no head marker file exists.
const fallbackVersion = "head"

func (b *Backend) resolve(path string) string {
	rel := strings.TrimPrefix(path, "/")
	return filepath.Join(b.basePath, rel)
}

func (b *Backend) readHeadMarker() (string, error) {
	data, err := os.ReadFile(filepath.Join(b.basePath, headMarkerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fallbackVersion, nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// CurrentVersion implements storage.Backend.
func (b *Backend) CurrentVersion(context.Context) (storage.VersionItem, error) {
	v, err := b.readHeadMarker()
	if err != nil {
		return storage.VersionItem{}, cfgerr.Wrap(cfgerr.ErrStorageIO, "fsbackend: read head marker", err)
	}
	return storage.VersionItem{ID: v}, nil
}

// ListVersions implements storage.Backend. The filesystem backend keeps
// no history, so it always reports the single current version.
func (b *Backend) ListVersions(ctx context.Context) ([]storage.VersionItem, error) {
	cur, err := b.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	return []storage.VersionItem{cur}, nil
}

// ListDir implements storage.Backend. version is ignored: every read sees
// the tree as it is on disk at the time of the call.
func (b *Backend) ListDir(_ context.Context, _ storage.VersionItem, dir string) ([]storage.DirItem, error) {
	entries, err := os.ReadDir(b.resolve(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("fsbackend: list dir %q", dir), storage.ErrNotFound)
		}
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("fsbackend: list dir %q", dir), err)
	}
	items := make([]storage.DirItem, 0, len(entries))
	for _, e := range entries {
		item := storage.DirItem{Name: e.Name(), IsDir: e.IsDir()}
		if !item.IsDir {
			abs := filepath.Join(b.resolve(dir), e.Name())
			data, err := os.ReadFile(abs)
			if err != nil {
				return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("fsbackend: hash %q", abs), err)
			}
			item.Hash = contentHash(data)
		}
		items = append(items, item)
	}
	return items, nil
}

// ReadObject implements storage.Backend.
func (b *Backend) ReadObject(_ context.Context, _ storage.VersionItem, path string) ([]byte, error) {
	data, err := os.ReadFile(b.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("fsbackend: read object %q", path), storage.ErrNotFound)
		}
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("fsbackend: read object %q", path), err)
	}
	return data, nil
}

// PathHash implements storage.Backend, hashing the file's current
// contents with xxhash64 -- the same fast non-cryptographic hash the
// teacher uses to detect whether a watched resource's content actually
// changed, rather than just its mtime.
func (b *Backend) PathHash(_ context.Context, _ storage.VersionItem, path string) (string, error) {
	data, err := os.ReadFile(b.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("fsbackend: hash %q", path), storage.ErrNotFound)
		}
		return "", cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("fsbackend: hash %q", path), err)
	}
	return contentHash(data), nil
}

func contentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Diff implements storage.Backend. Since the filesystem backend has no
// version history, any call with old != new reports every object under
// namespace as changed (conservative: we cannot know what actually
// changed between two timestamps we don't track). A namespace's
// documents live under three category roots (/rules<ns>, /reses<ns>,
// /links<ns>), so each is walked in turn; a namespace that hasn't
// populated a given category yet is skipped rather than failing.
func (b *Backend) Diff(ctx context.Context, old, newV storage.VersionItem, namespace string) ([]string, error) {
	if old.ID == newV.ID {
		return nil, nil
	}
	var changed []string
	for _, category := range []string{model.CategoryRules, model.CategoryReses, model.CategoryLinks} {
		root := model.CategoryPath(category, namespace)
		err := storage.WalkDir(ctx, b, newV, root, func(path string, item storage.DirItem) storage.WalkDecision {
			if !item.IsDir {
				changed = append(changed, path)
			}
			return storage.WalkNext
		})
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
	}
	return changed, nil
}

// Subscribe implements storage.Backend by delegating to a polling
// watcher; see watch.go. It fails with ErrAlreadySubscribed if a watcher
// is already installed.
func (b *Backend) Subscribe(ctx context.Context, onChange func(storage.StorageChangeEvent)) (func(), error) {
	if !b.subscribed.CompareAndSwap(false, true) {
		return nil, cfgerr.Wrap(cfgerr.ErrAlreadySubscribed, "fsbackend: subscribe", nil)
	}
	stop, err := b.startWatch(ctx, onChange)
	if err != nil {
		b.subscribed.Store(false)
		return nil, err
	}
	return func() {
		stop()
		b.subscribed.Store(false)
	}, nil
}
