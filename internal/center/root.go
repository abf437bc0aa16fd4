// SPDX-License-Identifier: Apache-2.0

package center

import (
	"context"
	"fmt"
	"sync"

	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/eventqueue"
	"github.com/cfgcenter/cfgcenter/internal/index"
	"github.com/cfgcenter/cfgcenter/internal/model"
	"github.com/cfgcenter/cfgcenter/internal/storage"
	"github.com/cfgcenter/cfgcenter/internal/telemetry"
	"github.com/go-logr/logr"
)

// NamespaceSpec describes one namespace to register when creating a Root
// center.
type NamespaceSpec struct {
	Name        string
	NotifyLevel NotifyLevel
	Callback    UpdateCallback
}

// Root owns the storage backend, the namespace table, and the current
// revision (C9). It fans a single backend change event out to every
// registered namespace at that namespace's chosen notify level.
type Root struct {
	backend storage.Backend
	builder *index.Builder
	log     logr.Logger
	metrics *telemetry.Metrics

	tableMu sync.RWMutex
	table   map[string]*Namespace

	versionMu sync.RWMutex
	current   storage.VersionItem

	queue      *eventqueue.Queue
	stopWatch  func()
	workerDone chan struct{}
	workerStop chan struct{}
}

// Option configures New.
type Option func(*Root)

// WithLogger attaches a structured logger used for background build
// failures, gated by cfgerr's process-wide print-background-errors
// toggle.
func WithLogger(log logr.Logger) Option {
	return func(r *Root) { r.log = log }
}

// WithMetrics attaches a telemetry.Metrics bundle the root center reports
// query and rebuild outcomes to. Nil (the default) disables metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Root) { r.metrics = m }
}

// New creates a Root center over backend, building an initial snapshot
// for every namespace in specs at the backend's current version, then
// starts the backend's change watcher. Namespace creation validates each
// namespace string and fails fast on a malformed one or a build failure.
func New(ctx context.Context, backend storage.Backend, parser model.ConditionParser, specs []NamespaceSpec, opts ...Option) (*Root, error) {
	r := &Root{
		backend:    backend,
		builder:    index.NewBuilder(backend, parser),
		log:        logr.Discard(),
		table:      make(map[string]*Namespace),
		queue:      eventqueue.New(),
		workerDone: make(chan struct{}),
		workerStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	version, err := backend.CurrentVersion(ctx)
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageBackend, "center: resolve current version", err)
	}
	r.current = version

	for _, spec := range specs {
		if err := r.CreateNamespace(ctx, spec); err != nil {
			return nil, err
		}
	}

	stop, err := backend.Subscribe(ctx, func(ev storage.StorageChangeEvent) {
		r.queue.Push(ev)
	})
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrStorageBackend, "center: subscribe to backend", err)
	}
	r.stopWatch = stop

	go r.runWorker(ctx)

	return r, nil
}

// CreateNamespace builds an initial snapshot for spec.Name at the root
// center's current version and registers it. It fails with
// NamespaceError if the name is malformed or already registered, and
// with MemoryIndexError if the initial build fails -- unlike an update
// rebuild, a failed initial build has no previous snapshot to fall back
// to, so it aborts registration.
func (r *Root) CreateNamespace(ctx context.Context, spec NamespaceSpec) error {
	r.tableMu.Lock()
	defer r.tableMu.Unlock()

	if _, exists := r.table[spec.Name]; exists {
		return cfgerr.Wrap(cfgerr.ErrNamespaceDuplicate, fmt.Sprintf("center: create namespace %q", spec.Name), nil)
	}

	r.versionMu.RLock()
	version := r.current
	r.versionMu.RUnlock()

	idx, err := r.builder.Build(ctx, version, spec.Name)
	if err != nil {
		return err
	}

	ns, err := NewNamespace(spec.Name, index.NewMemStorage(version, idx), spec.NotifyLevel, spec.Callback, r.metrics)
	if err != nil {
		return err
	}
	r.table[spec.Name] = ns
	return nil
}

// Namespace returns the registered namespace by name.
func (r *Root) Namespace(name string) (*Namespace, error) {
	r.tableMu.RLock()
	defer r.tableMu.RUnlock()
	ns, ok := r.table[name]
	if !ok {
		return nil, cfgerr.Wrap(cfgerr.ErrNamespaceNotFound, fmt.Sprintf("center: namespace %q", name), nil)
	}
	return ns, nil
}

// CurrentVersion returns the revision every namespace was most recently
// asked to build against (individual namespaces may still be serving an
// older snapshot if their last rebuild failed).
func (r *Root) CurrentVersion() storage.VersionItem {
	r.versionMu.RLock()
	defer r.versionMu.RUnlock()
	return r.current
}

// Close stops the backend watcher and the update worker. It is
// idempotent.
func (r *Root) Close() {
	if r.stopWatch != nil {
		r.stopWatch()
	}
	select {
	case <-r.workerStop:
	default:
		close(r.workerStop)
	}
	<-r.workerDone
}

func (r *Root) runWorker(ctx context.Context) {
	defer close(r.workerDone)
	for {
		select {
		case <-r.workerStop:
			return
		case <-ctx.Done():
			return
		case <-r.queue.Wait():
			ev, ok := r.queue.Pop()
			if !ok {
				continue
			}
			r.handleUpdate(ctx, ev)
		}
	}
}

// handleUpdate implements the update protocol: acquire the table lock,
// dispatch every namespace on its notify level, build and publish
// where required, then advance the current version.
func (r *Root) handleUpdate(ctx context.Context, ev storage.StorageChangeEvent) {
	r.tableMu.RLock()
	namespaces := make([]*Namespace, 0, len(r.table))
	for _, ns := range r.table {
		namespaces = append(namespaces, ns)
	}
	r.tableMu.RUnlock()

	for _, ns := range namespaces {
		r.updateOneNamespace(ctx, ns, ev)
	}

	r.versionMu.Lock()
	r.current = ev.NewVersion
	r.versionMu.Unlock()
}

func (r *Root) updateOneNamespace(ctx context.Context, ns *Namespace, ev storage.StorageChangeEvent) {
	var changedPaths []string

	switch ns.NotifyLevel() {
	case NoNotify:
		return
	case NotifyWithoutChangedKeysByGlobal:
		// Unconditional rebuild.
	case NotifyWithoutChangedKeysInNamespace, NotifyWithMaybeChangedKeys:
		diff, err := r.backend.Diff(ctx, ev.OldVersion, ev.NewVersion, ns.Name())
		if err != nil {
			r.logBackgroundError(ns.Name(), "diff", err)
			return
		}
		if len(diff) == 0 {
			return
		}
		changedPaths = diff
	}

	idx, err := r.builder.Build(ctx, ev.NewVersion, ns.Name())
	if r.metrics != nil {
		r.metrics.ObserveRebuild(ns.Name(), err == nil)
	}
	if err != nil {
		r.logBackgroundError(ns.Name(), "rebuild", err)
		return
	}

	newSnapshot := index.NewMemStorage(ev.NewVersion, idx)
	ns.applyUpdate(newSnapshot, changedPaths)
}

func (r *Root) logBackgroundError(namespace, op string, err error) {
	if cfgerr.PrintBackgroundErrors() {
		r.log.Error(err, "background update failed, namespace keeps serving previous snapshot", "namespace", namespace, "op", op)
	}
}
