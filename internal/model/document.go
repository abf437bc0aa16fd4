// SPDX-License-Identifier: Apache-2.0

package model

import "encoding/json"

// DocKind is the `kind` discriminator on every repository document.
type DocKind string

// Recognized document kinds.
const (
	KindRule DocKind = "Rule"
	KindLink DocKind = "Link"
	KindRes  DocKind = "Res"
)

// RootCommon is the envelope every document in the repository shares,
// before its `spec` is decoded according to `kind`.
type RootCommon struct {
	Version uint32          `json:"version"`
	Kind    DocKind         `json:"kind"`
	Meta    json.RawMessage `json:"meta"`
	Spec    json.RawMessage `json:"spec"`
}

// ruleMetaDoc/ruleSpecDoc etc. are the wire shapes decoded straight off
// json.RawMessage by the loader, kept unexported since callers only ever
// see the resulting model.Rule/Link/Resource.

type ruleMetaDoc struct {
	Desc string   `json:"desc"`
	Tags []string `json:"tags"`
}

type ruleSpecDoc struct {
	Rule string `json:"rule"`
}

type linkMetaDoc struct {
	Desc string   `json:"desc"`
	Tags []string `json:"tags"`
}

type linkSpecDoc struct {
	Pri   float32  `json:"pri"`
	IsNeg bool     `json:"is_neg"`
	Ver   string   `json:"ver"`
	Rule  string   `json:"rule"`
	Res   []string `json:"res"`
}

type resMetaDoc struct {
	Name string   `json:"name"`
	Desc string   `json:"desc"`
	Tags []string `json:"tags"`
}

type resItemDoc struct {
	ContentType string `json:"content_type"`
	Key         string `json:"key"`
	Data        string `json:"data"`
}

type resSpecDoc []resItemDoc
