// SPDX-License-Identifier: Apache-2.0

// Package center implements the concurrency and lifecycle core (C7-C9):
// a namespace-scoped center holding the current snapshot behind a
// reader-preferring lock, a root center fanning backend change events out
// to every namespace at its chosen notify level, and the Differ passed to
// update callbacks.
package center

import (
	"context"
	"sync"
	"time"

	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/index"
	"github.com/cfgcenter/cfgcenter/internal/model"
	"github.com/cfgcenter/cfgcenter/internal/querier"
	"github.com/cfgcenter/cfgcenter/internal/telemetry"
)

// NotifyLevel controls when and with what detail a namespace's update
// callback fires during the root center's update protocol.
type NotifyLevel int

// Supported notify levels.
const (
	// NoNotify never rebuilds or invokes the callback for this namespace.
	NoNotify NotifyLevel = iota
	// NotifyWithoutChangedKeysByGlobal rebuilds and invokes the callback
	// on every version change, regardless of whether this namespace's
	// paths actually changed.
	NotifyWithoutChangedKeysByGlobal
	// NotifyWithoutChangedKeysInNamespace only rebuilds when the backend
	// reports a non-empty diff for this namespace.
	NotifyWithoutChangedKeysInNamespace
	// NotifyWithMaybeChangedKeys behaves like
	// NotifyWithoutChangedKeysInNamespace but also threads the changed
	// path list into the Differ so changed_keys() can be populated.
	NotifyWithMaybeChangedKeys
)

// UpdateCallback is invoked synchronously from the root center's update
// worker, before the new snapshot becomes visible to queries. It must be
// cheap and must not re-enter any namespace's query path with write
// intention.
type UpdateCallback func(d *Differ)

// Namespace is the namespace-scoped center (C7): it owns the current
// MemStorage snapshot and serves queries against it, swapping the
// snapshot wholesale on update.
type Namespace struct {
	name        string
	notifyLevel NotifyLevel
	callback    UpdateCallback
	metrics     *telemetry.Metrics

	mu      sync.RWMutex
	current *index.MemStorage
}

// NewNamespace validates name (must begin and end with "/") and wraps an
// initial snapshot. Construction fails fast on a malformed namespace
// string; it never reaches for a lock failure this early. metrics may be
// nil, disabling per-query/per-snapshot telemetry for this namespace.
func NewNamespace(name string, initial *index.MemStorage, notifyLevel NotifyLevel, callback UpdateCallback, metrics *telemetry.Metrics) (*Namespace, error) {
	if err := model.ValidateNamespace(name); err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrNamespace, "center: new namespace", err)
	}
	return &Namespace{
		name:        name,
		notifyLevel: notifyLevel,
		callback:    callback,
		metrics:     metrics,
		current:     initial,
	}, nil
}

// Name returns the namespace string.
func (n *Namespace) Name() string { return n.name }

// NotifyLevel returns the namespace's configured notify level.
func (n *Namespace) NotifyLevel() NotifyLevel { return n.notifyLevel }

// Snapshot returns the currently-served MemStorage under a read lock held
// only for the duration of this call -- callers that need it to outlive
// the call (e.g. Get) must take their own lock instead.
func (n *Namespace) Snapshot() *index.MemStorage {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// Get resolves keys against who, acquiring a shared read lock on the
// current snapshot for the duration of the call. The read lock is
// never held across a rebuild: rebuilding happens before the writer
// lock is acquired in applyUpdate.
func (n *Namespace) Get(_ context.Context, who model.WhoAmI, keys []string, view querier.ViewMode, needExplain bool) []querier.CFGResult {
	n.mu.RLock()
	defer n.mu.RUnlock()
	snap := n.current

	start := time.Now()
	results := querier.Run(querier.Query{
		Index:       snap.Index,
		WhoAmI:      who,
		Keys:        keys,
		View:        view,
		NeedExplain: needExplain,
	})
	if n.metrics != nil {
		n.metrics.ObserveQuery(n.name, view.String(), time.Since(start).Seconds())
		n.metrics.SetSnapshotAge(n.name, time.Since(snap.BuiltAt).Seconds())
	}
	return results
}

// applyUpdate is invoked by the root center's update worker with a
// freshly built snapshot and the changed-path list the backend reported
// (nil if not applicable to this namespace's notify level). It invokes
// the user callback, if set, bridging old and new snapshots via a
// Differ, then atomically swaps the snapshot -- the write lock is held
// only across the swap itself, never across the callback.
func (n *Namespace) applyUpdate(newSnapshot *index.MemStorage, changedPaths []string) {
	oldSnapshot := n.Snapshot()

	if n.callback != nil {
		d := &Differ{
			old:          oldSnapshot,
			new:          newSnapshot,
			changedPaths: changedPaths,
			notifyLevel:  n.notifyLevel,
		}
		n.callback(d)
		d.invalidate()
	}

	n.mu.Lock()
	n.current = newSnapshot
	n.mu.Unlock()
}
