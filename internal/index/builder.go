// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/loader"
	"github.com/cfgcenter/cfgcenter/internal/model"
	"github.com/cfgcenter/cfgcenter/internal/storage"
)

// categoryMissing reports whether root simply doesn't exist at version --
// a namespace need not populate all three categories -- versus some other
// backend failure, which is fatal to the build.
func categoryMissing(ctx context.Context, backend storage.Backend, version storage.VersionItem, root string) bool {
	_, err := backend.ListDir(ctx, version, root)
	return errors.Is(err, storage.ErrNotFound)
}

// Builder walks one namespace of a storage backend revision and produces
// a CFGIndex (C3). It is stateless; a single Builder may build many
// namespaces/revisions concurrently.
type Builder struct {
	Backend storage.Backend
	Parser  model.ConditionParser
}

// NewBuilder returns a Builder reading from backend and compiling rule
// expressions with parser.
func NewBuilder(backend storage.Backend, parser model.ConditionParser) *Builder {
	return &Builder{Backend: backend, Parser: parser}
}

// Build walks /rules<ns>, /reses<ns>, /links<ns> at version and returns
// the resulting CFGIndex. Any error -- a backend read failure or a
// document that fails to decode -- is fatal to this build; the caller
// keeps serving its previous snapshot.
func (b *Builder) Build(ctx context.Context, version storage.VersionItem, namespace string) (*CFGIndex, error) {
	if err := model.ValidateNamespace(namespace); err != nil {
		return nil, cfgerr.Wrap(cfgerr.ErrNamespace, "index: build", err)
	}

	rules, err := b.walkRules(ctx, version, namespace)
	if err != nil {
		return nil, err
	}
	reses, err := b.walkReses(ctx, version, namespace)
	if err != nil {
		return nil, err
	}
	links, err := b.walkLinks(ctx, version, namespace, rules, reses)
	if err != nil {
		return nil, err
	}

	return New(rules, reses, links), nil
}

// internalPath strips a category prefix from absPath, returning the
// namespace-internal path every index keys its entries by.
func internalPath(absPath string) (string, bool) {
	stripped, _, ok := model.StripCategoryPrefix(absPath)
	return stripped, ok
}

func (b *Builder) walkRules(ctx context.Context, version storage.VersionItem, namespace string) (RuleIndex, error) {
	rules := RuleIndex{}
	root := model.CategoryPath(model.CategoryRules, namespace)
	if categoryMissing(ctx, b.Backend, version, root) {
		return rules, nil
	}
	var walkErr error
	err := storage.WalkDir(ctx, b.Backend, version, root, func(path string, item storage.DirItem) storage.WalkDecision {
		if item.IsDir {
			return storage.WalkNext
		}
		raw, rerr := b.Backend.ReadObject(ctx, version, path)
		if rerr != nil {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: read rule %q", path), rerr)
			return storage.WalkStop
		}
		doc, derr := loader.Decode(raw, b.Parser)
		if derr != nil {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: decode rule %q", path), derr)
			return storage.WalkStop
		}
		key, ok := internalPath(path)
		if !ok {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: rule path %q outside /rules", path), model.ErrUnknownDocKind)
			return storage.WalkStop
		}
		rules[key] = &RuleEntry{Condition: doc.Rule.Spec.Condition, AbsPath: path}
		return storage.WalkNext
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return rules, nil
}

func (b *Builder) walkReses(ctx context.Context, version storage.VersionItem, namespace string) (ResIndex, error) {
	reses := ResIndex{}
	root := model.CategoryPath(model.CategoryReses, namespace)
	if categoryMissing(ctx, b.Backend, version, root) {
		return reses, nil
	}
	var walkErr error
	err := storage.WalkDir(ctx, b.Backend, version, root, func(path string, item storage.DirItem) storage.WalkDecision {
		if item.IsDir {
			return storage.WalkNext
		}
		raw, rerr := b.Backend.ReadObject(ctx, version, path)
		if rerr != nil {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: read resource %q", path), rerr)
			return storage.WalkStop
		}
		doc, derr := loader.Decode(raw, b.Parser)
		if derr != nil {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: decode resource %q", path), derr)
			return storage.WalkStop
		}
		key, ok := internalPath(path)
		if !ok {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: resource path %q outside /reses", path), model.ErrUnknownDocKind)
			return storage.WalkStop
		}
		reses[key] = &ResEntry{Items: doc.Resource.Items, ResPath: path}
		return storage.WalkNext
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return reses, nil
}

func (b *Builder) walkLinks(ctx context.Context, version storage.VersionItem, namespace string, rules RuleIndex, reses ResIndex) (LinkIndex, error) {
	links := LinkIndex{}
	root := model.CategoryPath(model.CategoryLinks, namespace)
	if categoryMissing(ctx, b.Backend, version, root) {
		return links, nil
	}
	var walkErr error
	err := storage.WalkDir(ctx, b.Backend, version, root, func(path string, item storage.DirItem) storage.WalkDecision {
		if item.IsDir {
			return storage.WalkNext
		}
		raw, rerr := b.Backend.ReadObject(ctx, version, path)
		if rerr != nil {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: read link %q", path), rerr)
			return storage.WalkStop
		}
		doc, derr := loader.Decode(raw, b.Parser)
		if derr != nil {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: decode link %q", path), derr)
			return storage.WalkStop
		}

		rulePath, ok := internalPath(doc.Link.Spec.RulePath)
		if !ok {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: link %q rule ref %q outside /rules", path, doc.Link.Spec.RulePath), model.ErrBadLinkRef)
			return storage.WalkStop
		}
		if _, exists := rules[rulePath]; !exists {
			walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: link %q references missing rule %q", path, rulePath), model.ErrBadLinkRef)
			return storage.WalkStop
		}

		for _, resRef := range doc.Link.Spec.ResPaths {
			resPath, ok := internalPath(resRef)
			if !ok {
				walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: link %q res ref %q outside /reses", path, resRef), model.ErrBadLinkRef)
				return storage.WalkStop
			}
			if _, exists := reses[resPath]; !exists {
				walkErr = cfgerr.MemoryIndexFromLoader(fmt.Sprintf("index: link %q references missing resource %q", path, resPath), model.ErrBadLinkRef)
				return storage.WalkStop
			}
			links[rulePath] = append(links[rulePath], &LinkEntry{
				Pri:      doc.Link.Spec.Pri,
				IsNeg:    doc.Link.Spec.IsNeg,
				RulePath: rulePath,
				ResPath:  resPath,
				LinkPath: path,
			})
		}
		return storage.WalkNext
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return links, nil
}
