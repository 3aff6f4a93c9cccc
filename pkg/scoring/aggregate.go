package scoring

import (
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

const agePointsComponent = "age"

// Aggregate sums the weights of the resolved categories, adds the age score
// for schemes that carry age bands, and labels the total with the scheme's
// risk bands. Every declared category appears in ComponentFlags so results
// line up as covariate columns.
func Aggregate(flags FlagSet, scheme *terminology.Scheme, age *float64) models.ScoreResult {
	var total terminology.Points
	componentFlags := make(map[string]bool, len(scheme.Categories()))
	components := make(map[string]float64)

	for _, c := range scheme.Categories() {
		flagged := flags.Has(c)
		componentFlags[string(c)] = flagged
		if !flagged {
			continue
		}
		w, _ := scheme.Weight(c)
		total += w
		components[string(c)] = w.Float()
	}

	metadata := map[string]string{}
	if scheme.AgeScoring() {
		if age != nil {
			ap := scheme.AgePoints(*age)
			total += ap
			components[agePointsComponent] = ap.Float()
		} else {
			metadata["age"] = "missing"
		}
	}

	score := total.Float()
	return models.ScoreResult{
		Scheme:         scheme.ID,
		TotalScore:     score,
		RiskCategory:   scheme.RiskCategory(score),
		ComponentFlags: componentFlags,
		Components:     components,
		Metadata:       metadata,
	}
}
