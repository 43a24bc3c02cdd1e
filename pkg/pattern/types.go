// Package pattern defines the simplified dependence graph shared by mined
// patterns and analysed targets.
package pattern

import (
	"sort"
	"strings"
)

// Part tells whether a vertex belongs to the code before or after a change.
type Part string

const (
	PartBefore Part = "before"
	PartAfter  Part = "after"
)

// Kind is the concrete class of the flow-graph node behind a vertex.
type Kind string

const (
	KindDecl      Kind = "decl"
	KindUsage     Kind = "usage"
	KindSubscript Kind = "subscript"
	KindLiteral   Kind = "literal"
	KindKeyword   Kind = "keyword"
	KindOperation Kind = "operation"
	KindControl   Kind = "control"
	KindEntry     Kind = "entry"
)

// Generalized labels.
const (
	LabelVariable  = "var"
	LabelLiteral   = "lit"
	LabelSubscript = "subscript"
	LabelEntry     = "entry"
)

// IsData reports whether k is one of the data node kinds.
func (k Kind) IsData() bool {
	switch k {
	case KindDecl, KindUsage, KindSubscript, KindLiteral, KindKeyword:
		return true
	}
	return false
}

// Vertex is one node of a pattern graph.
type Vertex struct {
	ID            int               `json:"id" msgpack:"id"`
	Label         string            `json:"label" msgpack:"label"`
	OriginalLabel string            `json:"original_label" msgpack:"original_label"`
	Kind          Kind              `json:"kind" msgpack:"kind"`
	Part          Part              `json:"part" msgpack:"part"`
	Labels        *LabelsGroup      `json:"labels,omitempty" msgpack:"labels,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// IsVariable reports whether the vertex stands for a variable.
func (v *Vertex) IsVariable() bool {
	return v.Label == LabelVariable
}

// String renders the vertex the way it is shown in artifacts.
func (v *Vertex) String() string {
	return v.Label + " (" + v.OriginalLabel + ")"
}

func (v Vertex) clone() *Vertex {
	out := v
	if v.Labels != nil {
		lg := v.Labels.clone()
		out.Labels = &lg
	}
	if v.Metadata != nil {
		out.Metadata = make(map[string]string, len(v.Metadata))
		for k, val := range v.Metadata {
			out.Metadata[k] = val
		}
	}
	return &out
}

// SubEdge is one concrete relation inside a bundle.
type SubEdge struct {
	Label       string `json:"label" msgpack:"label"`
	FromClosure bool   `json:"from_closure" msgpack:"from_closure"`
	BranchKind  bool   `json:"branch_kind" msgpack:"branch_kind"`
}

// MultipleEdge bundles every relation between an ordered vertex pair.
type MultipleEdge struct {
	From  int       `json:"from" msgpack:"from"`
	To    int       `json:"to" msgpack:"to"`
	Edges []SubEdge `json:"edges" msgpack:"edges"`
}

// Has reports whether the bundle carries a relation with the given label and
// branch kind.
func (e *MultipleEdge) Has(label string, kind bool) bool {
	for _, s := range e.Edges {
		if s.Label == label && s.BranchKind == kind {
			return true
		}
	}
	return false
}

// Labels returns the distinct sub-edge labels in sorted order.
func (e *MultipleEdge) Labels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range e.Edges {
		if !seen[s.Label] {
			seen[s.Label] = true
			out = append(out, s.Label)
		}
	}
	sort.Strings(out)
	return out
}

func (e *MultipleEdge) String() string {
	return strings.Join(e.Labels(), ",")
}

// normalize sorts and deduplicates the sub-edges.
func (e MultipleEdge) normalize() *MultipleEdge {
	subs := append([]SubEdge(nil), e.Edges...)
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		if a.BranchKind != b.BranchKind {
			return !a.BranchKind
		}
		return !a.FromClosure && b.FromClosure
	})
	var out []SubEdge
	for _, s := range subs {
		if len(out) > 0 && out[len(out)-1] == s {
			continue
		}
		out = append(out, s)
	}
	e.Edges = out
	return &e
}
