// Package isomorph implements subgraph isomorphism search over pattern graphs.
package isomorph

import (
	"strconv"
	"strings"

	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

// VertexMatcher decides whether pattern vertex p may be mapped to target vertex t.
type VertexMatcher func(p, t *pattern.Vertex) bool

// EdgeMatcher decides whether pattern bundle p is satisfied by target bundle t.
type EdgeMatcher func(p, t *pattern.MultipleEdge) bool

// Exact compares generalized and original labels, ignoring case. It is used
// to check that two independently built graphs describe the same program.
func Exact(p, t *pattern.Vertex) bool {
	return strings.EqualFold(p.Label, t.Label) && strings.EqualFold(p.OriginalLabel, t.OriginalLabel)
}

// SuperWeak compares generalized labels only.
func SuperWeak(p, t *pattern.Vertex) bool {
	return strings.EqualFold(p.Label, t.Label)
}

// Weak is the detection comparator. Variables match according to the
// pattern vertex's labels group and must play the same declaration/usage
// role; literals match when numerically equal or, failing that, by kind;
// subscripts always match each other.
func Weak(p, t *pattern.Vertex) bool {
	switch {
	case p.IsVariable() && t.IsVariable():
		if p.Kind != "" && t.Kind != "" && p.Kind != t.Kind {
			return false
		}
		if p.Labels != nil {
			return p.Labels.Matches(t.OriginalLabel)
		}
		return p.OriginalLabel == t.OriginalLabel
	case p.Label == pattern.LabelLiteral && t.Label == pattern.LabelLiteral:
		a, aok := numeric(p.OriginalLabel)
		b, bok := numeric(t.OriginalLabel)
		if aok && bok {
			return a == b
		}
		return true
	case p.Label == pattern.LabelSubscript && t.Label == pattern.LabelSubscript:
		return true
	default:
		return Exact(p, t)
	}
}

func numeric(s string) (float64, bool) {
	s = strings.ReplaceAll(s, "_", "")
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return float64(i), true
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// BundleCovers reports whether every relation of the pattern bundle appears
// in the target bundle with the same branch kind. Whether an edge was added
// by the closure is not compared, so a derived edge in one graph can stand
// for a direct edge in the other.
func BundleCovers(p, t *pattern.MultipleEdge) bool {
	for _, s := range p.Edges {
		if !t.Has(s.Label, s.BranchKind) {
			return false
		}
	}
	return true
}

// BundleEqual reports whether two bundles carry exactly the same relations,
// closure flags included.
func BundleEqual(p, t *pattern.MultipleEdge) bool {
	if len(p.Edges) != len(t.Edges) {
		return false
	}
	for i := range p.Edges {
		if p.Edges[i] != t.Edges[i] {
			return false
		}
	}
	return true
}
