package scoring

import (
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

// Mapper resolves (code, version, scheme) to categories. Lookups only ever
// consult the table of the code's own ICD version; a code whose version has
// no table in the scheme is unmapped.
type Mapper struct {
	catalog *terminology.Catalog
}

func NewMapper(catalog *terminology.Catalog) *Mapper {
	return &Mapper{catalog: catalog}
}

// Map returns the primary category or terminology.Unmapped.
func (m *Mapper) Map(code string, version models.ICDVersion, scheme models.SchemeID) terminology.Category {
	rule, ok := m.Lookup(code, version, scheme)
	if !ok {
		return terminology.Unmapped
	}
	return rule.Category
}

// Lookup returns the full matching rule, including secondary categories.
func (m *Mapper) Lookup(code string, version models.ICDVersion, scheme models.SchemeID) (terminology.Rule, bool) {
	if !version.Valid() {
		return terminology.Rule{}, false
	}
	s, ok := m.catalog.Scheme(scheme)
	if !ok {
		return terminology.Rule{}, false
	}
	table, ok := s.Table(version)
	if !ok {
		return terminology.Rule{}, false
	}
	return table.Match(terminology.NormalizeCode(code))
}

// Categories returns every category the code flags: the primary first, then
// any secondary categories the rule declares.
func (m *Mapper) Categories(code string, version models.ICDVersion, scheme models.SchemeID) []terminology.Category {
	rule, ok := m.Lookup(code, version, scheme)
	if !ok {
		return nil
	}
	return rule.Categories()
}
