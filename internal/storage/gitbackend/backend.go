// SPDX-License-Identifier: Apache-2.0

// Package gitbackend is the production storage.Backend: it reads
// configuration documents out of a git repository, using commit ids as
// versions and blob ids as content hashes. It never writes to the
// repository; all history comes from following a single tracked branch,
// whose local ref the watcher repoints after each fetch.
package gitbackend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/model"
	"github.com/cfgcenter/cfgcenter/internal/storage"
)

// remoteName is the single remote this backend ever configures.
const remoteName = "origin"

// Config configures a Backend.
type Config struct {
	// RemoteURL is the git remote to read from (https:// or ssh://).
	RemoteURL string
	// Branch is the branch to track, e.g. "main".
	Branch string
	// Auth is used for both the initial clone and subsequent fetches.
	// nil means unauthenticated (public http(s) remotes only).
	Auth transport.AuthMethod
	// PathCacheSize bounds the in-memory path->blob hash cache. Zero
	// selects DefaultPathCacheSize.
	PathCacheSize int
	// PollInterval overrides DefaultPollInterval for the remote-ref
	// watcher. Zero selects the default.
	PollInterval time.Duration
}

// Backend implements storage.Backend against an in-memory clone of a
// single git repository, refreshed by fetching the tracked branch.
type Backend struct {
	cfg    Config
	repo   *git.Repository
	branch plumbing.ReferenceName
	cache  *PathCache

	subscribed atomic.Bool
}

// Open clones cfg.RemoteURL in-memory and returns a Backend tracking
// cfg.Branch. The clone happens eagerly so CurrentVersion never needs to
// hit the network on a caller's behalf.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	branch := plumbing.NewBranchReferenceName(cfg.Branch)
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:           cfg.RemoteURL,
		Auth:          cfg.Auth,
		ReferenceName: branch,
		SingleBranch:  true,
		Tags:          git.NoTags,
	})
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrCreateBackend, fmt.Sprintf("gitbackend: clone %q", cfg.RemoteURL), err)
	}

	size := cfg.PathCacheSize
	if size <= 0 {
		size = DefaultPathCacheSize
	}

	return &Backend{
		cfg:    cfg,
		repo:   repo,
		branch: branch,
		cache:  NewPathCache(size),
	}, nil
}

func (b *Backend) headRef() (*plumbing.Reference, error) {
	ref, err := b.repo.Reference(b.branch, true)
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, "gitbackend: resolve tracked branch", err)
	}
	return ref, nil
}

// CurrentVersion implements storage.Backend.
func (b *Backend) CurrentVersion(context.Context) (storage.VersionItem, error) {
	ref, err := b.headRef()
	if err != nil {
		return storage.VersionItem{}, err
	}
	return storage.VersionItem{ID: ref.Hash().String()}, nil
}

// ListVersions implements storage.Backend by walking commit ancestry
// from the tracked branch tip.
func (b *Backend) ListVersions(context.Context) ([]storage.VersionItem, error) {
	ref, err := b.headRef()
	if err != nil {
		return nil, err
	}
	iter, err := b.repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, "gitbackend: walk commit log", err)
	}
	defer iter.Close()

	var versions []storage.VersionItem
	err = iter.ForEach(func(c *object.Commit) error {
		versions = append(versions, storage.VersionItem{ID: c.Hash.String()})
		return nil
	})
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, "gitbackend: walk commit log", err)
	}
	// oldest first, matching the ancestry a caller would replay forward.
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

func (b *Backend) treeAt(version storage.VersionItem) (*object.Tree, error) {
	commit, err := b.repo.CommitObject(plumbing.NewHash(version.ID))
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: resolve commit %q", version.ID), err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: tree for commit %q", version.ID), err)
	}
	return tree, nil
}

func treePath(repoPath string) string {
	return strings.TrimPrefix(filepath.Clean(repoPath), "/")
}

// ListDir implements storage.Backend.
func (b *Backend) ListDir(_ context.Context, version storage.VersionItem, dir string) ([]storage.DirItem, error) {
	tree, err := b.treeAt(version)
	if err != nil {
		return nil, err
	}
	sub := tree
	if clean := treePath(dir); clean != "." && clean != "" {
		sub, err = tree.Tree(clean)
		if err != nil {
			if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
				return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: list dir %q", dir), storage.ErrNotFound)
			}
			return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: list dir %q", dir), err)
		}
	}
	items := make([]storage.DirItem, 0, len(sub.Entries))
	for _, e := range sub.Entries {
		items = append(items, storage.DirItem{
			Name:  e.Name,
			IsDir: e.Mode == filemode.Dir,
			Hash:  e.Hash.String(),
		})
	}
	return items, nil
}

// ReadObject implements storage.Backend.
func (b *Backend) ReadObject(_ context.Context, version storage.VersionItem, path string) ([]byte, error) {
	tree, err := b.treeAt(version)
	if err != nil {
		return nil, err
	}
	file, err := tree.File(treePath(path))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: open %q", path), storage.ErrNotFound)
		}
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: open %q", path), err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: read %q", path), err)
	}
	return []byte(contents), nil
}

// PathHash implements storage.Backend, caching blob ids per (version,
// path) so repeated lookups of the same path at the same version don't
// re-walk the tree each time.
func (b *Backend) PathHash(_ context.Context, version storage.VersionItem, path string) (string, error) {
	key := version.ID + ":" + path
	if hash, ok := b.cache.Get(key); ok {
		return hash, nil
	}
	tree, err := b.treeAt(version)
	if err != nil {
		return "", err
	}
	entry, err := tree.FindEntry(treePath(path))
	if err != nil {
		if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return "", cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: stat %q", path), storage.ErrNotFound)
		}
		return "", cfgerr.Wrap(cfgerr.ErrStorageIO, fmt.Sprintf("gitbackend: stat %q", path), err)
	}
	hash := entry.Hash.String()
	b.cache.Put(key, hash)
	return hash, nil
}

// Diff implements storage.Backend using go-git's tree diff between the
// two commits, restricted to entries under namespace's three category
// roots (/rules<ns>, /reses<ns>, /links<ns>) -- a namespace's documents
// never live directly under its bare name, so the prefix check must
// include the category prefix to match anything.
func (b *Backend) Diff(_ context.Context, old, newV storage.VersionItem, namespace string) ([]string, error) {
	if old.ID == newV.ID {
		return nil, nil
	}
	oldTree, err := b.treeAt(old)
	if err != nil {
		return nil, err
	}
	newTree, err := b.treeAt(newV)
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(oldTree, newTree)
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageIO, "gitbackend: diff trees", err)
	}

	// treePath drops the namespace's trailing slash, so it is put back:
	// without it "reses/a" would also match a sibling namespace "reses/ab/".
	prefixes := []string{
		treePath(model.CategoryPath(model.CategoryRules, namespace)) + "/",
		treePath(model.CategoryPath(model.CategoryReses, namespace)) + "/",
		treePath(model.CategoryPath(model.CategoryLinks, namespace)) + "/",
	}
	var changed []string
	for _, c := range changes {
		name := c.To.Name
		if name == "" {
			name = c.From.Name
		}
		matched := false
		for _, prefix := range prefixes {
			if prefix != "." && prefix != "" && strings.HasPrefix(name, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		changed = append(changed, "/"+name)
	}
	return changed, nil
}

// remoteRefURLFetcher is satisfied by *git.Remote; declared so watch.go's
// polling loop is testable against a fake.
type remoteRefURLFetcher interface {
	List(o *git.ListOptions) ([]*plumbing.Reference, error)
}

func (b *Backend) newRemote() remoteRefURLFetcher {
	return git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: remoteName,
		URLs: []string{b.cfg.RemoteURL},
	})
}
