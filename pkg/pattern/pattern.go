package pattern

import "fmt"

// Pattern is a mined code shape: the generalized representative graph, the
// occurrences it was generalized from, and optionally the graph of the fix.
type Pattern struct {
	ID string
	// Graph is Samples[0] with labels groups attached to its variables.
	Graph   *Graph
	Samples []*Graph
	Fix     *Graph
}

// New assembles a pattern from its representative sample and labels groups.
func New(id string, samples []*Graph, groups map[int]LabelsGroup, fix *Graph) (*Pattern, error) {
	if id == "" {
		return nil, fmt.Errorf("pattern without id")
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("pattern %s: no samples", id)
	}
	g, err := samples[0].WithLabels(groups)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", id, err)
	}
	return &Pattern{ID: id, Graph: g, Samples: samples, Fix: fix}, nil
}
