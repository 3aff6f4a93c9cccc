package scoring

import (
	"sort"

	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

// FlagSet is the set of categories flagged for one admission.
type FlagSet map[terminology.Category]struct{}

func NewFlagSet(categories ...terminology.Category) FlagSet {
	fs := make(FlagSet, len(categories))
	for _, c := range categories {
		fs.Add(c)
	}
	return fs
}

func (fs FlagSet) Add(c terminology.Category) {
	if c != terminology.Unmapped {
		fs[c] = struct{}{}
	}
}

func (fs FlagSet) Has(c terminology.Category) bool {
	_, ok := fs[c]
	return ok
}

func (fs FlagSet) Sorted() []terminology.Category {
	out := make([]terminology.Category, 0, len(fs))
	for c := range fs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (fs FlagSet) Equal(other FlagSet) bool {
	if len(fs) != len(other) {
		return false
	}
	for c := range fs {
		if !other.Has(c) {
			return false
		}
	}
	return true
}
