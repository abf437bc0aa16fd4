// SPDX-License-Identifier: Apache-2.0

// Package querier implements the resolution algorithm (C6): scanning
// every rule in a CFGIndex against a WhoAmI, collecting the links whose
// rule matched, and assembling either an OverlaidView (one winning value
// per key) or an AllLinkedResView (every matching link/item pair).
package querier

import (
	"sort"

	"github.com/cfgcenter/cfgcenter/internal/index"
	"github.com/cfgcenter/cfgcenter/internal/model"
)

// ViewMode selects how candidate links are assembled into results.
type ViewMode int

// Supported view modes.
const (
	// OverlaidView resolves one winning value per key: the highest
	// priority link that supplies it, with same-priority negative links
	// breaking ties ahead of positive ones so they can veto.
	OverlaidView ViewMode = iota
	// AllLinkedResView emits one result per (link, item) pair that
	// supplies a requested key, in link-iteration order, performing no
	// priority sort and no negative filtering.
	AllLinkedResView
)

// String renders the view mode as the label value telemetry reports it
// under.
func (v ViewMode) String() string {
	switch v {
	case AllLinkedResView:
		return "all_linked_res"
	default:
		return "overlaid"
	}
}

// Reason explains which link produced a CFGResult, populated only when a
// query asks for explanations.
type Reason struct {
	Pri      float32
	IsNeg    bool
	RulePath string
	LinkPath string
	ResPath  string
}

// CFGResult is one resolved value for a requested key.
type CFGResult struct {
	Key         string
	ContentType string
	Value       string
	Reason      *Reason
}

// Query holds every input to one resolution call.
type Query struct {
	Index       *index.CFGIndex
	WhoAmI      model.WhoAmI
	Keys        []string
	View        ViewMode
	NeedExplain bool
}

// Run evaluates every rule in q.Index against q.WhoAmI, collects the
// links reachable from matching rules, and assembles the requested view.
// A key absent from the winning link set yields no CFGResult for it.
func Run(q Query) []CFGResult {
	candidates := matchedLinks(q.Index, q.WhoAmI)
	if len(candidates) == 0 {
		return nil
	}

	switch q.View {
	case AllLinkedResView:
		return runAllLinkedRes(q.Index, sortLinkIdentity(candidates), q.Keys, q.NeedExplain)
	default:
		return runOverlaid(q.Index, candidates, q.Keys, q.NeedExplain)
	}
}

// matchedLinks evaluates every rule's condition against who and returns
// every LinkEntry reachable from a matching rule.
func matchedLinks(idx *index.CFGIndex, who model.WhoAmI) []*index.LinkEntry {
	var out []*index.LinkEntry
	for rulePath, rule := range idx.Rules() {
		if !rule.Condition.Eval(who) {
			continue
		}
		out = append(out, idx.LinksForRule(rulePath)...)
	}
	return out
}

// sortOverlaid orders candidates by (pri DESC, is_neg before is_pos on
// ties), the OverlaidView ordering.
func sortOverlaid(candidates []*index.LinkEntry) []*index.LinkEntry {
	sorted := make([]*index.LinkEntry, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Pri != b.Pri {
			return a.Pri > b.Pri
		}
		if a.IsNeg != b.IsNeg {
			return a.IsNeg
		}
		return linkIdentityLess(a, b)
	})
	return sorted
}

// sortLinkIdentity orders candidates purely by link identity
// (RulePath, LinkPath, ResPath), with no priority or is_neg weighting.
// Rule iteration order (map range) is randomized per call; AllLinkedResView
// has no overlay ordering of its own to fall back on, so this is what
// makes its "link-iteration order" reproducible across repeated queries
// against the same snapshot.
func sortLinkIdentity(candidates []*index.LinkEntry) []*index.LinkEntry {
	sorted := make([]*index.LinkEntry, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return linkIdentityLess(sorted[i], sorted[j])
	})
	return sorted
}

func linkIdentityLess(a, b *index.LinkEntry) bool {
	if a.RulePath != b.RulePath {
		return a.RulePath < b.RulePath
	}
	if a.LinkPath != b.LinkPath {
		return a.LinkPath < b.LinkPath
	}
	return a.ResPath < b.ResPath
}

func runOverlaid(idx *index.CFGIndex, candidates []*index.LinkEntry, keys []string, explain bool) []CFGResult {
	sorted := sortOverlaid(candidates)
	var results []CFGResult
	for _, key := range keys {
		for _, link := range sorted {
			res, ok := idx.Resource(link.ResPath)
			if !ok {
				continue
			}
			item, ok := res.Get(key)
			if !ok {
				continue
			}
			if link.IsNeg {
				// A veto for this key: stop scanning without emitting.
				break
			}
			results = append(results, CFGResult{
				Key:         key,
				ContentType: item.ContentType,
				Value:       item.Value,
				Reason:      buildReason(link, explain),
			})
			break
		}
	}
	return results
}

func runAllLinkedRes(idx *index.CFGIndex, candidates []*index.LinkEntry, keys []string, explain bool) []CFGResult {
	var results []CFGResult
	for _, key := range keys {
		for _, link := range candidates {
			res, ok := idx.Resource(link.ResPath)
			if !ok {
				continue
			}
			for _, item := range res.Items {
				if item.Key != key {
					continue
				}
				results = append(results, CFGResult{
					Key:         key,
					ContentType: item.ContentType,
					Value:       item.Value,
					Reason:      buildReason(link, explain),
				})
			}
		}
	}
	return results
}

func buildReason(link *index.LinkEntry, explain bool) *Reason {
	if !explain {
		return nil
	}
	return &Reason{
		Pri:      link.Pri,
		IsNeg:    link.IsNeg,
		RulePath: link.RulePath,
		LinkPath: link.LinkPath,
		ResPath:  link.ResPath,
	}
}
