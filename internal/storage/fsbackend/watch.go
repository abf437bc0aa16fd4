// SPDX-License-Identifier: Apache-2.0

package fsbackend

import (
	"context"
	"time"

	"github.com/cfgcenter/cfgcenter/internal/storage"
)

// pollInterval is how often the watcher rereads the head marker file.
const pollInterval = 2 * time.Second

// startWatch polls the head marker file on a ticker and fires onChange
// whenever its content changes. There is no filesystem-event mechanism
// here by design: this backend exists for development and tests, where a
// slow poll is simpler to reason about than wiring fsnotify.
func (b *Backend) startWatch(ctx context.Context, onChange func(storage.StorageChangeEvent)) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)

	last, err := b.readHeadMarker()
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				cur, err := b.readHeadMarker()
				if err != nil {
					continue
				}
				if cur != last {
					onChange(storage.StorageChangeEvent{
						OldVersion: storage.VersionItem{ID: last},
						NewVersion: storage.VersionItem{ID: cur},
					})
					last = cur
				}
			}
		}
	}()

	return cancel, nil
}
