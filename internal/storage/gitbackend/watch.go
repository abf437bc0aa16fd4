// SPDX-License-Identifier: Apache-2.0

package gitbackend

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/storage"
)

// DefaultPollInterval is how often the watcher polls the remote's
// advertised refs for the tracked branch and fast-forwards on change.
const DefaultPollInterval = 2 * time.Second

// PollInterval returns Config.PollInterval, or DefaultPollInterval when
// that is zero.
func (b *Backend) PollInterval() time.Duration {
	if b.cfg.PollInterval > 0 {
		return b.cfg.PollInterval
	}
	return DefaultPollInterval
}

// Subscribe implements storage.Backend. It polls the remote's advertised
// refs for the tracked branch; when the advertised hash differs from the
// local tip, it fetches and fast-forwards the in-memory clone before
// firing onChange. It fails with ErrAlreadySubscribed if a watcher is
// already installed.
func (b *Backend) Subscribe(ctx context.Context, onChange func(storage.StorageChangeEvent)) (func(), error) {
	if !b.subscribed.CompareAndSwap(false, true) {
		return nil, cfgerr.Wrap(cfgerr.ErrAlreadySubscribed, "gitbackend: subscribe", nil)
	}

	watchCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(b.PollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				b.pollOnce(watchCtx, onChange)
			}
		}
	}()

	return func() {
		cancel()
		b.subscribed.Store(false)
	}, nil
}

func (b *Backend) pollOnce(ctx context.Context, onChange func(storage.StorageChangeEvent)) {
	oldRef, err := b.headRef()
	if err != nil {
		return
	}

	refs, err := b.newRemote().List(&git.ListOptions{Auth: b.cfg.Auth})
	if err != nil {
		return
	}
	var advertised plumbing.Hash
	found := false
	for _, r := range refs {
		if r.Name() == b.branch {
			advertised = r.Hash()
			found = true
			break
		}
	}
	if !found || advertised == oldRef.Hash() {
		return
	}

	err = b.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       b.cfg.Auth,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return
	}

	// The backend's clone is bare (no worktree), so "fast-forward" is
	// just repointing the local branch ref at what the fetch just
	// brought in, mirroring what the remote advertised.
	newHash := plumbing.NewHash(advertised.String())
	if err := b.repo.Storer.SetReference(plumbing.NewHashReference(b.branch, newHash)); err != nil {
		return
	}

	onChange(storage.StorageChangeEvent{
		OldVersion: storage.VersionItem{ID: oldRef.Hash().String()},
		NewVersion: storage.VersionItem{ID: newHash.String()},
	})
}
