// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Sentinel decode errors. internal/loader wraps these into its
// DataLoaderError taxonomy; tests and callers elsewhere can still match
// them directly with errors.Is.
var (
	ErrEmptyRuleExpr    = errors.New("model: rule spec.rule is empty")
	ErrTrailingRuleExpr = errors.New("model: rule expression has trailing input")
	ErrNonFinitePri     = errors.New("model: link spec.pri must be finite")
	ErrBadLinkRef       = errors.New("model: link rule/res reference missing \"path:\" prefix")
	ErrUnknownDocKind   = errors.New("model: unrecognized document kind")
)

// ConditionParser parses a rule expression string into a Condition tree.
// internal/ruleparser implements this; model stays independent of it to
// avoid an import cycle (ruleparser depends on model for Condition/Value).
type ConditionParser interface {
	// Parse must consume the entire expression. A non-nil tail error
	// (ErrTrailingRuleExpr) is returned by DecodeRule, not by Parse
	// itself, if the parser reports unconsumed input via consumed.
	Parse(expr string) (cond Condition, consumed int, err error)
}

// DecodeRule decodes a RootCommon whose Kind is KindRule into a Rule,
// compiling its expression string with parser.
func DecodeRule(doc RootCommon, parser ConditionParser) (Rule, error) {
	var meta ruleMetaDoc
	if len(doc.Meta) > 0 {
		if err := json.Unmarshal(doc.Meta, &meta); err != nil {
			return Rule{}, fmt.Errorf("model: decode rule meta: %w", err)
		}
	}
	var spec ruleSpecDoc
	if err := json.Unmarshal(doc.Spec, &spec); err != nil {
		return Rule{}, fmt.Errorf("model: decode rule spec: %w", err)
	}
	if spec.Rule == "" {
		return Rule{}, ErrEmptyRuleExpr
	}
	cond, consumed, err := parser.Parse(spec.Rule)
	if err != nil {
		return Rule{}, fmt.Errorf("model: parse rule expression: %w", err)
	}
	if consumed != len(spec.Rule) {
		return Rule{}, fmt.Errorf("%w: at byte %d", ErrTrailingRuleExpr, consumed)
	}
	return Rule{
		Meta: RuleMeta{Desc: meta.Desc, Tags: meta.Tags},
		Spec: RuleSpec{Condition: cond},
	}, nil
}

// DecodeLink decodes a RootCommon whose Kind is KindLink into a Link.
func DecodeLink(doc RootCommon) (Link, error) {
	var meta linkMetaDoc
	if len(doc.Meta) > 0 {
		if err := json.Unmarshal(doc.Meta, &meta); err != nil {
			return Link{}, fmt.Errorf("model: decode link meta: %w", err)
		}
	}
	var spec linkSpecDoc
	if err := json.Unmarshal(doc.Spec, &spec); err != nil {
		return Link{}, fmt.Errorf("model: decode link spec: %w", err)
	}
	if math.IsNaN(float64(spec.Pri)) || math.IsInf(float64(spec.Pri), 0) {
		return Link{}, ErrNonFinitePri
	}
	rulePath, ok := StripLinkPathPrefix(spec.Rule)
	if !ok {
		return Link{}, fmt.Errorf("%w: rule=%q", ErrBadLinkRef, spec.Rule)
	}
	resPaths := make([]string, len(spec.Res))
	for i, ref := range spec.Res {
		p, ok := StripLinkPathPrefix(ref)
		if !ok {
			return Link{}, fmt.Errorf("%w: res=%q", ErrBadLinkRef, ref)
		}
		resPaths[i] = p
	}
	return Link{
		Meta: LinkMeta{Desc: meta.Desc, Tags: meta.Tags},
		Spec: LinkSpec{
			Pri:           spec.Pri,
			IsNeg:         spec.IsNeg,
			SchemaVersion: spec.Ver,
			RulePath:      rulePath,
			ResPaths:      resPaths,
		},
	}, nil
}

// DecodeResource decodes a RootCommon whose Kind is KindRes into a
// Resource.
func DecodeResource(doc RootCommon) (Resource, error) {
	var meta resMetaDoc
	if len(doc.Meta) > 0 {
		if err := json.Unmarshal(doc.Meta, &meta); err != nil {
			return Resource{}, fmt.Errorf("model: decode res meta: %w", err)
		}
	}
	var spec resSpecDoc
	if err := json.Unmarshal(doc.Spec, &spec); err != nil {
		return Resource{}, fmt.Errorf("model: decode res spec: %w", err)
	}
	items := make([]ResItem, len(spec))
	for i, it := range spec {
		items[i] = ResItem{ContentType: it.ContentType, Key: it.Key, Value: it.Data}
	}
	return Resource{
		Meta:  ResMeta{Name: meta.Name, Desc: meta.Desc, Tags: meta.Tags},
		Items: items,
	}, nil
}
