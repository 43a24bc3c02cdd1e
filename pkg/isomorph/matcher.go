package isomorph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

// Mapping maps pattern vertex ids to target vertex ids.
type Mapping map[int]int

// Inverse returns the target -> pattern mapping.
func (m Mapping) Inverse() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Keys returns the pattern vertex ids in ascending order.
func (m Mapping) Keys() []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (m Mapping) String() string {
	parts := make([]string, 0, len(m))
	for _, k := range m.Keys() {
		parts = append(parts, fmt.Sprintf("%d:%d", k, m[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func (m Mapping) clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Matcher searches for injective mappings of a pattern graph into a target
// graph that preserve vertex compatibility and every pattern edge. The target
// may have additional vertices and edges.
//
// The search extends a partial mapping one pattern vertex at a time, in an
// order that keeps each new vertex connected to the mapped ones, and only
// when the pair is feasible: compatible vertices, compatible bundles towards
// every mapped neighbour and enough degree left in the target.
type Matcher struct {
	vertex VertexMatcher
	edge   EdgeMatcher
}

// NewMatcher returns a matcher using the given predicates.
func NewMatcher(v VertexMatcher, e EdgeMatcher) *Matcher {
	return &Matcher{vertex: v, edge: e}
}

// ExactMatcher compares full labels and requires equal bundles.
func ExactMatcher() *Matcher { return NewMatcher(Exact, BundleEqual) }

// WeakMatcher is the matcher used for detection.
func WeakMatcher() *Matcher { return NewMatcher(Weak, BundleCovers) }

// SuperWeakMatcher compares generalized labels only.
func SuperWeakMatcher() *Matcher { return NewMatcher(SuperWeak, BundleCovers) }

// Find returns the first mapping of p into t.
func (m *Matcher) Find(p, t *pattern.Graph) (Mapping, bool) {
	var found Mapping
	m.Each(p, t, func(mp Mapping) bool {
		found = mp
		return false
	})
	return found, found != nil
}

// FindAll returns up to limit mappings of p into t; limit <= 0 means no limit.
func (m *Matcher) FindAll(p, t *pattern.Graph, limit int) []Mapping {
	var out []Mapping
	m.Each(p, t, func(mp Mapping) bool {
		out = append(out, mp)
		return limit <= 0 || len(out) < limit
	})
	return out
}

// Each calls fn with every mapping of p into t until fn returns false.
// Mappings are produced in a deterministic order.
func (m *Matcher) Each(p, t *pattern.Graph, fn func(Mapping) bool) {
	m.search(p, t, false, fn)
}

// Isomorphic returns a bijection between a and b when the two graphs are
// isomorphic under the matcher's predicates.
func (m *Matcher) Isomorphic(a, b *pattern.Graph) (Mapping, bool) {
	if a.Len() != b.Len() || a.EdgeCount() != b.EdgeCount() {
		return nil, false
	}
	var found Mapping
	m.search(a, b, true, func(mp Mapping) bool {
		found = mp
		return false
	})
	return found, found != nil
}

// IsomorphicAll returns up to limit bijections between a and b.
func (m *Matcher) IsomorphicAll(a, b *pattern.Graph, limit int) []Mapping {
	if a.Len() != b.Len() || a.EdgeCount() != b.EdgeCount() {
		return nil
	}
	var out []Mapping
	m.search(a, b, true, func(mp Mapping) bool {
		out = append(out, mp)
		return limit <= 0 || len(out) < limit
	})
	return out
}

type state struct {
	m      *Matcher
	p, t   *pattern.Graph
	full   bool
	order  []int
	compat map[int][]int
	core   Mapping
	used   map[int]int // target -> pattern
	emit   func(Mapping) bool
	done   bool
}

func (m *Matcher) search(p, t *pattern.Graph, full bool, fn func(Mapping) bool) {
	if p.Len() == 0 || p.Len() > t.Len() {
		return
	}
	s := &state{
		m:      m,
		p:      p,
		t:      t,
		full:   full,
		compat: make(map[int][]int, p.Len()),
		core:   make(Mapping, p.Len()),
		used:   make(map[int]int, p.Len()),
		emit:   fn,
	}
	for _, pv := range p.Vertices() {
		for _, tv := range t.Vertices() {
			if s.degreeFits(pv.ID, tv.ID) && m.vertex(pv, tv) {
				s.compat[pv.ID] = append(s.compat[pv.ID], tv.ID)
			}
		}
		if len(s.compat[pv.ID]) == 0 {
			return
		}
	}
	s.order = s.searchOrder()
	s.extend(0)
}

func (s *state) degreeFits(pid, tid int) bool {
	po, pi := len(s.p.Successors(pid)), len(s.p.Predecessors(pid))
	to, ti := len(s.t.Successors(tid)), len(s.t.Predecessors(tid))
	if s.full {
		return po == to && pi == ti
	}
	return po <= to && pi <= ti
}

// searchOrder starts from the most constrained vertex and then prefers
// vertices with the most already ordered neighbours.
func (s *state) searchOrder() []int {
	vertices := s.p.Vertices()
	placed := make(map[int]bool, len(vertices))
	links := make(map[int]int, len(vertices))
	order := make([]int, 0, len(vertices))
	degree := func(id int) int { return len(s.p.Successors(id)) + len(s.p.Predecessors(id)) }

	for len(order) < len(vertices) {
		best := -1
		for _, v := range vertices {
			id := v.ID
			if placed[id] {
				continue
			}
			if best < 0 {
				best = id
				continue
			}
			switch {
			case links[id] != links[best]:
				if links[id] > links[best] {
					best = id
				}
			case len(s.compat[id]) != len(s.compat[best]):
				if len(s.compat[id]) < len(s.compat[best]) {
					best = id
				}
			case degree(id) > degree(best):
				best = id
			}
		}
		placed[best] = true
		order = append(order, best)
		for _, n := range s.p.Successors(best) {
			links[n]++
		}
		for _, n := range s.p.Predecessors(best) {
			links[n]++
		}
	}
	return order
}

// candidates narrows the compatible targets of u through a mapped neighbour.
func (s *state) candidates(u int) []int {
	for _, w := range s.p.Predecessors(u) {
		if tw, ok := s.core[w]; ok {
			return s.t.Successors(tw)
		}
	}
	for _, w := range s.p.Successors(u) {
		if tw, ok := s.core[w]; ok {
			return s.t.Predecessors(tw)
		}
	}
	return s.compat[u]
}

func (s *state) extend(depth int) {
	if s.done {
		return
	}
	if depth == len(s.order) {
		if !s.emit(s.core.clone()) {
			s.done = true
		}
		return
	}
	u := s.order[depth]
	allowed := make(map[int]bool, len(s.compat[u]))
	for _, c := range s.compat[u] {
		allowed[c] = true
	}
	for _, c := range s.candidates(u) {
		if _, taken := s.used[c]; taken || !allowed[c] || !s.feasible(u, c) {
			continue
		}
		s.core[u] = c
		s.used[c] = u
		s.extend(depth + 1)
		delete(s.core, u)
		delete(s.used, c)
		if s.done {
			return
		}
	}
}

func (s *state) feasible(u, c int) bool {
	for _, w := range s.p.Predecessors(u) {
		tw, ok := s.core[w]
		if !ok {
			continue
		}
		te := s.t.Edge(tw, c)
		if te == nil || !s.m.edge(s.p.Edge(w, u), te) {
			return false
		}
	}
	for _, w := range s.p.Successors(u) {
		tw, ok := s.core[w]
		if !ok {
			continue
		}
		te := s.t.Edge(c, tw)
		if te == nil || !s.m.edge(s.p.Edge(u, w), te) {
			return false
		}
	}
	if !s.full {
		return true
	}
	// A bijection must not map onto target edges the pattern lacks.
	for _, tw := range s.t.Predecessors(c) {
		if w, ok := s.used[tw]; ok && s.p.Edge(w, u) == nil {
			return false
		}
	}
	for _, tw := range s.t.Successors(c) {
		if w, ok := s.used[tw]; ok && s.p.Edge(u, w) == nil {
			return false
		}
	}
	return true
}
