// SPDX-License-Identifier: Apache-2.0

package center

import (
	"path"
	"strings"

	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/index"
	"github.com/cfgcenter/cfgcenter/internal/model"
	"github.com/cfgcenter/cfgcenter/internal/querier"
)

// Differ is the ephemeral dual-snapshot handle (C8) passed to a
// namespace's update callback. It borrows the old and new snapshots plus
// the changed-path list and is only valid for the duration of the
// callback invocation; invalidate() is called immediately after the
// callback returns so any reference the callback leaked can't be used to
// query a torn Differ later.
type Differ struct {
	old          *index.MemStorage
	new          *index.MemStorage
	changedPaths []string
	notifyLevel  NotifyLevel
	done         bool
}

// ErrDifferExpired is returned by every Differ method once the callback
// that received it has returned.
var ErrDifferExpired = cfgerr.Wrap(cfgerr.ErrDiffer, "differ: used after callback returned", nil)

func (d *Differ) invalidate() { d.done = true }

// GetFromOld evaluates a query against the pre-update snapshot. Its
// signature mirrors Namespace.Get.
func (d *Differ) GetFromOld(who model.WhoAmI, keys []string, view querier.ViewMode, needExplain bool) ([]querier.CFGResult, error) {
	if d.done {
		return nil, ErrDifferExpired
	}
	return querier.Run(querier.Query{Index: d.old.Index, WhoAmI: who, Keys: keys, View: view, NeedExplain: needExplain}), nil
}

// GetFromNew evaluates a query against the post-update snapshot. Its
// signature mirrors Namespace.Get.
func (d *Differ) GetFromNew(who model.WhoAmI, keys []string, view querier.ViewMode, needExplain bool) ([]querier.CFGResult, error) {
	if d.done {
		return nil, ErrDifferExpired
	}
	return querier.Run(querier.Query{Index: d.new.Index, WhoAmI: who, Keys: keys, View: view, NeedExplain: needExplain}), nil
}

// ChangedKeys returns a best-effort list of keys that may have changed
// between the old and new snapshot, derived from the changed-path list.
// At NoNotify/NotifyWithoutChangedKeysByGlobal/
// NotifyWithoutChangedKeysInNamespace this is always empty: only
// NotifyWithMaybeChangedKeys threads path information through.
func (d *Differ) ChangedKeys() []string {
	if d.done || d.notifyLevel != NotifyWithMaybeChangedKeys {
		return nil
	}
	seen := make(map[string]struct{})
	var keys []string
	for _, p := range d.changedPaths {
		for _, k := range resourceKeysForPath(d.new, p) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		for _, k := range resourceKeysForPath(d.old, p) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// resourceKeysForPath returns every key a changed resource path supplies
// in snap, used to translate a raw repository path into the
// configuration keys it might affect. Non-resource paths (rules, links)
// contribute nothing here -- a rule/link change can ripple into any key,
// which NotifyWithMaybeChangedKeys deliberately doesn't attempt to model
// precisely; it's a best-effort hint, not a guarantee.
func resourceKeysForPath(snap *index.MemStorage, changedPath string) []string {
	if snap == nil {
		return nil
	}
	internal, category, ok := model.StripCategoryPrefix(path.Clean("/" + strings.TrimPrefix(changedPath, "/")))
	if !ok || category != model.CategoryReses {
		return nil
	}
	res, ok := snap.Index.Resource(internal)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		keys = append(keys, item.Key)
	}
	return keys
}
