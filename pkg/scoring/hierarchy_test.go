package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

func TestResolveDropsDominatedCategories(t *testing.T) {
	charlson, _ := terminology.MustDefaultCatalog().Scheme(models.SchemeCharlson)
	r := NewResolver(charlson)
	require.True(t, r.Enabled())

	got := r.Resolve(NewFlagSet("diabetes_with_cc", "diabetes_without_cc", "malignant_cancer", "dementia"))
	assert.Equal(t, []terminology.Category{"dementia", "diabetes_with_cc", "malignant_cancer"}, got.Sorted())
}

func TestResolveIsTransitiveAndIdempotent(t *testing.T) {
	doc := []byte(`
id: chain
categories:
  - {id: a, weight: 3}
  - {id: b, weight: 2}
  - {id: c, weight: 1}
  - {id: d, weight: 1}
overrides:
  - {dominant: b, dominated: c}
  - {dominant: a, dominated: b}
tables:
  - version: 10
    rules:
      - {category: a, codes: ["A01"]}
`)
	scheme, err := terminology.ParseScheme(doc)
	require.NoError(t, err)
	r := NewResolver(scheme)

	inputs := []FlagSet{
		NewFlagSet("a", "c"),
		NewFlagSet("a", "b", "c", "d"),
		NewFlagSet("b", "c"),
		NewFlagSet("c", "d"),
		NewFlagSet(),
	}
	want := [][]terminology.Category{
		{"a"},
		{"a", "d"},
		{"b"},
		{"c", "d"},
		{},
	}
	for i, in := range inputs {
		once := r.Resolve(in)
		assert.Equal(t, want[i], once.Sorted(), "input %d", i)
		assert.True(t, once.Equal(r.Resolve(once)), "input %d not idempotent", i)
	}
}

func TestResolveLeavesInputUntouched(t *testing.T) {
	charlson, _ := terminology.MustDefaultCatalog().Scheme(models.SchemeCharlson)
	in := NewFlagSet("severe_liver_disease", "mild_liver_disease")
	NewResolver(charlson).Resolve(in)
	assert.True(t, in.Has("mild_liver_disease"))
}

func TestResolveWithoutOverridesIsIdentity(t *testing.T) {
	elix, _ := terminology.MustDefaultCatalog().Scheme(models.SchemeVanWalraven)
	r := NewResolver(elix)
	assert.False(t, r.Enabled())
	in := NewFlagSet("renal_failure", "obesity")
	assert.True(t, in.Equal(r.Resolve(in)))
}
