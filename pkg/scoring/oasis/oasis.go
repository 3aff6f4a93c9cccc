// Package oasis implements the Oxford Acute Severity of Illness Score
// (Johnson 2013): ten first-day ICU components scored against fixed
// breakpoints and mapped to hospital mortality with a logistic model.
//
// Totals are not clamped. The published component maxima sum to 75, so a
// total above 67 is reachable and is converted by the same model.
package oasis

import (
	"sort"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/ml/linear"
)

// Published coefficients: p = 1 / (1 + exp(-(-6.1746 + 0.1275 * total))).
const (
	Intercept = -6.1746
	Slope     = 0.1275
)

const (
	ComponentAge             = "age"
	ComponentPreICULOS       = "preiculos"
	ComponentGCS             = "gcs"
	ComponentHeartRate       = "heartrate"
	ComponentMeanBP          = "meanbp"
	ComponentRespRate        = "resprate"
	ComponentTemp            = "temp"
	ComponentUrineOutput     = "urineoutput"
	ComponentMechVent        = "mechvent"
	ComponentElectiveSurgery = "electivesurgery"
)

type Result struct {
	Total       int
	Probability float64
	Components  map[string]int
	// Missing lists components without data; they contribute 0.
	Missing []string
}

type Model struct {
	weights linear.Weights
}

func NewModel() *Model {
	return &Model{weights: linear.Weights{Bias: Intercept, Coefficients: []float64{Slope}}}
}

func (m *Model) Coefficients() linear.Weights {
	return linear.Weights{Bias: m.weights.Bias, Coefficients: append([]float64(nil), m.weights.Coefficients...)}
}

func (m *Model) Probability(total int) float64 {
	return linear.Predict(m.weights, []float64{float64(total)})
}

func (m *Model) Score(in models.OasisInputs) Result {
	res := Result{Components: make(map[string]int, 10)}
	add := func(name string, points int, ok bool) {
		res.Components[name] = points
		res.Total += points
		if !ok {
			res.Missing = append(res.Missing, name)
		}
	}

	scalars := []struct {
		name  string
		table table
		value *float64
	}{
		{ComponentAge, ageTable, in.Age},
		{ComponentPreICULOS, preICULOSTable, in.PreICULOSMinutes},
		{ComponentGCS, gcsTable, in.GCS},
		{ComponentUrineOutput, urineOutputTable, in.UrineOutput24h},
	}
	for _, c := range scalars {
		points, ok := scoreScalar(c.table, c.value)
		add(c.name, points, ok)
	}

	ranges := []struct {
		name  string
		table table
		value models.Range
	}{
		{ComponentHeartRate, heartRateTable, in.HeartRate},
		{ComponentMeanBP, meanBPTable, in.MeanBP},
		{ComponentRespRate, respRateTable, in.RespRate},
		{ComponentTemp, tempTable, in.Temp},
	}
	for _, c := range ranges {
		points, ok := scoreRange(c.table, c.value)
		add(c.name, points, ok)
	}

	// No ventilation evidence means not ventilated.
	if in.MechVent {
		add(ComponentMechVent, 9, true)
	} else {
		add(ComponentMechVent, 0, true)
	}

	switch {
	case in.ElectiveSurgery == nil:
		add(ComponentElectiveSurgery, 0, false)
	case *in.ElectiveSurgery:
		add(ComponentElectiveSurgery, 0, true)
	default:
		add(ComponentElectiveSurgery, 6, true)
	}

	sort.Strings(res.Missing)
	res.Probability = m.Probability(res.Total)
	return res
}

// Outcome is one observed ICU stay used for local recalibration.
type Outcome struct {
	Total int
	Died  bool
}

// Recalibrate refits intercept and slope on local outcomes, starting from
// the current coefficients. The receiver is left unchanged.
func (m *Model) Recalibrate(outcomes []Outcome, opts linear.Options) (*Model, linear.Metrics, error) {
	samples := make([][]float64, 0, len(outcomes))
	labels := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		samples = append(samples, []float64{float64(o.Total)})
		if o.Died {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}
	if opts.Initial == nil {
		start := m.Coefficients()
		opts.Initial = &start
	}
	weights, metrics, err := linear.TrainLogistic(samples, labels, opts)
	if err != nil {
		return nil, linear.Metrics{}, err
	}
	return &Model{weights: weights}, metrics, nil
}
