package scoring

import (
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

const liverScheme = `
id: liver
categories:
  - {id: mild, weight: 1}
  - {id: severe, weight: 3}
%s
risk_bands:
  - {label: Low, max: 3}
  - {label: High, min: 3, min_exclusive: true}
tables:
  - version: 9
    source: test
    rules:
      - {category: %s, codes: ["5712"]}
      - {category: %s, codes: ["5715"]}
`

func liverEngine(t *testing.T, overrides, first, second string) *Engine {
	t.Helper()
	doc := []byte(fmt.Sprintf(liverScheme, overrides, first, second))
	catalog, err := terminology.LoadFS(fstest.MapFS{"tables/liver.yaml": {Data: doc}}, "tables")
	require.NoError(t, err)
	engine, err := NewEngine(catalog, Options{})
	require.NoError(t, err)
	return engine
}

func TestFingerprintTracksReferenceTableContent(t *testing.T) {
	withOverride := "overrides:\n  - {dominant: severe, dominated: mild}"

	base := liverEngine(t, withOverride, "mild", "severe")
	swapped := liverEngine(t, withOverride, "severe", "mild")
	noOverride := liverEngine(t, "", "mild", "severe")
	same := liverEngine(t, withOverride, "mild", "severe")

	input := models.ScoringInput{
		Admission: models.Admission{AdmissionID: "a1"},
		Diagnoses: []models.DiagnosisCode{dx("a1", "5712", models.ICD9, 1), dx("a1", "5715", models.ICD9, 2)},
	}
	scheme := models.SchemeID("liver")

	fp := base.Fingerprint(input, scheme, PrimaryPolicy{})
	assert.Equal(t, fp, same.Fingerprint(input, scheme, PrimaryPolicy{}))
	assert.NotEqual(t, fp, swapped.Fingerprint(input, scheme, PrimaryPolicy{}))
	assert.NotEqual(t, fp, noOverride.Fingerprint(input, scheme, PrimaryPolicy{}))

	assert.Equal(t, 3.0, base.Score(input, scheme).TotalScore)
	assert.Equal(t, 4.0, noOverride.Score(input, scheme).TotalScore)
}
