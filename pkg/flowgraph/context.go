package flowgraph

import "sort"

// BuildingContext maps variable keys to the declarations that currently reach
// the point being visited.
type BuildingContext struct {
	defs map[string][]*DataNode
}

// NewBuildingContext returns an empty context.
func NewBuildingContext() *BuildingContext {
	return &BuildingContext{defs: make(map[string][]*DataNode)}
}

// Define makes decl the only reaching definition of its key.
func (c *BuildingContext) Define(decl *DataNode) {
	c.defs[decl.Key] = []*DataNode{decl}
}

// Definitions returns the reaching definitions of key ordered by statement number.
func (c *BuildingContext) Definitions(key string) []*DataNode {
	return c.defs[key]
}

// Keys returns the defined keys in sorted order.
func (c *BuildingContext) Keys() []string {
	keys := make([]string, 0, len(c.defs))
	for k, v := range c.defs {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Fork returns an independent copy for a nested scope or branch.
func (c *BuildingContext) Fork() *BuildingContext {
	out := NewBuildingContext()
	for k, v := range c.defs {
		out.defs[k] = append([]*DataNode(nil), v...)
	}
	return out
}

// RemoveVariables drops every definition created under stack. It is called
// when a branch exits through return, raise, break or continue.
func (c *BuildingContext) RemoveVariables(stack BranchStack) {
	for k, v := range c.defs {
		kept := v[:0:0]
		for _, d := range v {
			if !d.BranchStack().HasPrefix(stack) {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(c.defs, k)
			continue
		}
		c.defs[k] = kept
	}
}

// Union merges the reaching definitions of several branch contexts.
func Union(contexts ...*BuildingContext) *BuildingContext {
	out := NewBuildingContext()
	for _, c := range contexts {
		if c == nil {
			continue
		}
		for k, v := range c.defs {
			out.defs[k] = append(out.defs[k], v...)
		}
	}
	for k, v := range out.defs {
		sort.Slice(v, func(i, j int) bool { return v[i].ID() < v[j].ID() })
		var dedup []*DataNode
		for _, d := range v {
			if len(dedup) > 0 && dedup[len(dedup)-1] == d {
				continue
			}
			dedup = append(dedup, d)
		}
		out.defs[k] = dedup
	}
	return out
}
