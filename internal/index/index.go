// SPDX-License-Identifier: Apache-2.0

// Package index holds the in-memory query-ready snapshot of one
// namespace's rules/resources/links (CFGIndex), the builder that walks a
// storage backend revision to produce one, and the MemStorage pairing a
// built index with the revision id it came from.
package index

import "github.com/cfgcenter/cfgcenter/internal/model"

// RuleEntry is one indexed rule: its parsed condition plus the absolute
// repository path it was loaded from (still carrying the /rules category
// prefix; RuleIndex keys are the stripped, namespace-internal form).
type RuleEntry struct {
	Condition model.Condition
	AbsPath   string
}

// ResEntry is one indexed resource: its items plus the absolute repository
// path it was loaded from (still carrying the /reses category prefix;
// ResIndex keys are the stripped, namespace-internal form).
type ResEntry struct {
	Items   []model.ResItem
	ResPath string
}

// Get returns the first item with the given key, honoring first-match-wins
// semantics for repeated keys.
func (r *ResEntry) Get(key string) (model.ResItem, bool) {
	for _, item := range r.Items {
		if item.Key == key {
			return item, true
		}
	}
	return model.ResItem{}, false
}

// LinkEntry is one (link, resource) pairing produced by expanding a
// repository link document that cites k resources into k entries, all
// sharing the link's identity (pri, is_neg, rule/link path). Entries are
// grouped by RulePath in LinkIndex for O(1) lookup from a matched rule.
//
// LinkEntry is shared by pointer across every rule-scan result that
// surfaces it, so "explain" has zero-copy cost.
type LinkEntry struct {
	Pri      float32
	IsNeg    bool
	RulePath string
	ResPath  string
	LinkPath string
}

// CFGIndex is the read-only indexed snapshot built for one namespace at
// one revision. It is immutable once constructed; a snapshot is swapped
// wholesale, never mutated in place.
type CFGIndex struct {
	rules RuleIndex
	reses ResIndex
	links LinkIndex
}

// RuleIndex maps a namespace-internal rule path to its entry.
type RuleIndex map[string]*RuleEntry

// ResIndex maps a namespace-internal resource path to its entry.
type ResIndex map[string]*ResEntry

// LinkIndex maps a rule path to every LinkEntry whose link cites that
// rule.
type LinkIndex map[string][]*LinkEntry

// New builds a CFGIndex from already-populated maps. Builder is the only
// non-test caller; it is exported so tests can also construct fixtures
// directly without going through a storage backend.
func New(rules RuleIndex, reses ResIndex, links LinkIndex) *CFGIndex {
	if rules == nil {
		rules = RuleIndex{}
	}
	if reses == nil {
		reses = ResIndex{}
	}
	if links == nil {
		links = LinkIndex{}
	}
	return &CFGIndex{rules: rules, reses: reses, links: links}
}

// Rules returns every indexed rule, keyed by namespace-internal path.
// Callers must not mutate the returned map.
func (idx *CFGIndex) Rules() RuleIndex { return idx.rules }

// Resource looks up a resource by namespace-internal path.
func (idx *CFGIndex) Resource(path string) (*ResEntry, bool) {
	r, ok := idx.reses[path]
	return r, ok
}

// LinksForRule returns the LinkEntry list for a rule path, or nil if no
// link cites it.
func (idx *CFGIndex) LinksForRule(rulePath string) []*LinkEntry {
	return idx.links[rulePath]
}

// RuleCount, ResourceCount and LinkCount report index sizes, mostly for
// tests and diagnostics.
func (idx *CFGIndex) RuleCount() int { return len(idx.rules) }
func (idx *CFGIndex) ResourceCount() int { return len(idx.reses) }
func (idx *CFGIndex) LinkCount() int {
	n := 0
	for _, entries := range idx.links {
		n += len(entries)
	}
	return n
}
