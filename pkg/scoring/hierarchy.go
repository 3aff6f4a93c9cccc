package scoring

import "github.com/synaptica-ai/comorbidity/pkg/terminology"

// Resolver drops categories dominated by a more severe flagged category.
type Resolver struct {
	overrides []terminology.Override
}

func NewResolver(scheme *terminology.Scheme) *Resolver {
	return &Resolver{overrides: scheme.Overrides()}
}

func (r *Resolver) Enabled() bool {
	return r != nil && len(r.overrides) > 0
}

// Resolve makes one pass over the topologically ordered override pairs.
// A dominated category is marked covered even when it was not flagged, so
// dominance carries through chains (a > b > c drops c when only a and c are
// flagged). The input set is not modified.
func (r *Resolver) Resolve(flags FlagSet) FlagSet {
	out := make(FlagSet, len(flags))
	for c := range flags {
		out[c] = struct{}{}
	}
	if !r.Enabled() {
		return out
	}
	covered := make(map[terminology.Category]bool, len(flags))
	for c := range flags {
		covered[c] = true
	}
	for _, o := range r.overrides {
		if covered[o.Dominant] {
			covered[o.Dominated] = true
			delete(out, o.Dominated)
		}
	}
	return out
}
