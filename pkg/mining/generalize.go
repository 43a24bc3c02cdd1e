// Package mining groups example fragments into patterns and generalizes
// their variables.
package mining

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-pattern-miner/pkg/isomorph"
	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

// ErrNoRepresentativeMapping is returned when an occurrence cannot be mapped
// onto the representative of its group.
var ErrNoRepresentativeMapping = errors.New("no mapping from representative to occurrence")

// Generalize derives a labels group for every variable vertex of rep from
// the labels the corresponding vertices carry in rep and each occurrence.
//
// Several bijections may exist between two fragments. Up to maxMappings are
// enumerated per occurrence. A representative vertex keeps its label only if
// every occurrence has some candidate mapping sending it to the same label,
// and each occurrence then uses the mapping that keeps statement order and
// agrees with the most of those labels.
func Generalize(rep *pattern.Graph, occurrences []*pattern.Graph, maxMappings int) (map[int]pattern.LabelsGroup, error) {
	observed := make(map[int][]string)
	for _, v := range rep.Vertices() {
		if v.IsVariable() {
			observed[v.ID] = []string{v.OriginalLabel}
		}
	}

	matcher := isomorph.SuperWeakMatcher()
	candidates := make([][]isomorph.Mapping, len(occurrences))
	for i, occ := range occurrences {
		candidates[i] = matcher.IsomorphicAll(rep, occ, maxMappings)
		if len(candidates[i]) == 0 {
			return nil, fmt.Errorf("%w: %s -> %s (occurrence %d)", ErrNoRepresentativeMapping, rep.Name(), occ.Name(), i)
		}
	}

	stable := stableLabels(rep, occurrences, candidates)
	for i, occ := range occurrences {
		m := preferMapping(occ, candidates[i], stable)
		for id := range observed {
			observed[id] = append(observed[id], occ.Vertex(m[id]).OriginalLabel)
		}
	}

	groups := make(map[int]pattern.LabelsGroup, len(observed))
	for id, labels := range observed {
		groups[id] = pattern.NewLabelsGroup(labels)
	}
	return groups, nil
}

// stableLabels intersects, per representative vertex, its own label with the
// labels its images carry under the candidate mappings of each occurrence.
// The result holds the vertices whose label survives in all of them.
func stableLabels(rep *pattern.Graph, occurrences []*pattern.Graph, candidates [][]isomorph.Mapping) map[int]string {
	stable := make(map[int]string)
	for _, v := range rep.Vertices() {
		kept := true
		for i, occ := range occurrences {
			if !imageLabelled(occ, candidates[i], v.ID, v.OriginalLabel) {
				kept = false
				break
			}
		}
		if kept {
			stable[v.ID] = v.OriginalLabel
		}
	}
	return stable
}

func imageLabelled(occ *pattern.Graph, mappings []isomorph.Mapping, id int, label string) bool {
	for _, m := range mappings {
		if t, ok := m[id]; ok && occ.Vertex(t).OriginalLabel == label {
			return true
		}
	}
	return false
}

// preferMapping picks an order-preserving mapping if there is one, then the
// one that agrees with the most stable labels, then the first.
func preferMapping(occ *pattern.Graph, mappings []isomorph.Mapping, stable map[int]string) isomorph.Mapping {
	best, bestOrdered, bestAgree := mappings[0], false, -1
	for _, m := range mappings {
		ordered := preservesOrder(m)
		agree := 0
		for p, t := range m {
			if label, ok := stable[p]; ok && occ.Vertex(t).OriginalLabel == label {
				agree++
			}
		}
		switch {
		case ordered && !bestOrdered:
		case ordered == bestOrdered && agree > bestAgree:
		default:
			continue
		}
		best, bestOrdered, bestAgree = m, ordered, agree
	}
	return best
}

// preservesOrder reports whether the mapping is monotonic in vertex ids,
// i.e. statement order is the same in both fragments.
func preservesOrder(m isomorph.Mapping) bool {
	prev := -1
	for _, k := range m.Keys() {
		if m[k] <= prev {
			return false
		}
		prev = m[k]
	}
	return true
}
