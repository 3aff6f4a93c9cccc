package terminology

import (
	"fmt"
	"sort"
)

// orderOverrides validates the declared override pairs and returns them in
// topological order (Kahn's algorithm over the dominant->dominated graph).
// Ties are broken by name so the order is stable across loads.
func orderOverrides(known map[Category]Points, pairs []Override) ([]Override, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	indegree := make(map[Category]int)
	edges := make(map[Category][]Override)
	seen := make(map[Override]struct{})
	for _, p := range pairs {
		if _, ok := known[p.Dominant]; !ok {
			return nil, fmt.Errorf("%w: override dominant %q", ErrUnknownCategory, p.Dominant)
		}
		if _, ok := known[p.Dominated]; !ok {
			return nil, fmt.Errorf("%w: override dominated %q", ErrUnknownCategory, p.Dominated)
		}
		if p.Dominant == p.Dominated {
			return nil, fmt.Errorf("%w: %s overrides itself", ErrOverrideCycle, p.Dominant)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		edges[p.Dominant] = append(edges[p.Dominant], p)
		indegree[p.Dominated]++
		if _, ok := indegree[p.Dominant]; !ok {
			indegree[p.Dominant] = 0
		}
	}

	var ready []Category
	for c, d := range indegree {
		if d == 0 {
			ready = append(ready, c)
		}
	}
	sortCategories(ready)

	ordered := make([]Override, 0, len(seen))
	visited := 0
	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		visited++
		out := edges[c]
		sort.Slice(out, func(i, j int) bool { return out[i].Dominated < out[j].Dominated })
		var next []Category
		for _, e := range out {
			ordered = append(ordered, e)
			indegree[e.Dominated]--
			if indegree[e.Dominated] == 0 {
				next = append(next, e.Dominated)
			}
		}
		ready = append(ready, next...)
		sortCategories(ready)
	}
	if visited != len(indegree) {
		return nil, fmt.Errorf("%w", ErrOverrideCycle)
	}
	return ordered, nil
}

func sortCategories(cs []Category) {
	sort.Slice(cs, func(i, j int) bool { return cs[i] < cs[j] })
}
