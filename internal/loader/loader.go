// SPDX-License-Identifier: Apache-2.0

// Package loader turns the raw bytes read from a storage backend into
// typed model documents, translating every failure into the
// DataLoaderError branch of the cfgerr taxonomy.
package loader

import (
	"encoding/json"
	"fmt"

	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/model"
)

// Document is the decoded form of one repository object, tagged by Kind
// so a caller knows which of Rule/Link/Resource is populated.
type Document struct {
	Kind     model.DocKind
	Rule     model.Rule
	Link     model.Link
	Resource model.Resource
}

// Decode parses raw document bytes (the contents of one object read from
// a StorageBackend) according to its declared kind. parser compiles Rule
// expression strings; it is unused for Link and Res documents.
func Decode(raw []byte, parser model.ConditionParser) (Document, error) {
	var common model.RootCommon
	if err := json.Unmarshal(raw, &common); err != nil {
		return Document{}, cfgerr.Wrap(cfgerr.ErrUnmarshal, "loader: decode document envelope", err)
	}

	switch common.Kind {
	case model.KindRule:
		rule, err := model.DecodeRule(common, parser)
		if err != nil {
			return Document{}, cfgerr.Wrap(cfgerr.ErrSpecParse, "loader: decode rule document", err)
		}
		return Document{Kind: model.KindRule, Rule: rule}, nil
	case model.KindLink:
		link, err := model.DecodeLink(common)
		if err != nil {
			return Document{}, cfgerr.Wrap(cfgerr.ErrSpecParse, "loader: decode link document", err)
		}
		return Document{Kind: model.KindLink, Link: link}, nil
	case model.KindRes:
		res, err := model.DecodeResource(common)
		if err != nil {
			return Document{}, cfgerr.Wrap(cfgerr.ErrSpecParse, "loader: decode res document", err)
		}
		return Document{Kind: model.KindRes, Resource: res}, nil
	default:
		return Document{}, cfgerr.Wrap(cfgerr.ErrUnmarshal, "loader: decode document", fmt.Errorf("%w: %q", model.ErrUnknownDocKind, common.Kind))
	}
}
