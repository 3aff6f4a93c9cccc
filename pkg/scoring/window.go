package scoring

import (
	"time"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

// Collector gathers the diagnosis codes in scope for one admission and scheme.
type Collector struct {
	// Lookback replaces the scheme's calendar-year lookback when positive.
	Lookback time.Duration
}

// Collect returns the codes a scheme scores for the target admission.
//
// Current-admission schemes see only codes attached to the target admission
// (minus the primary diagnosis when the scheme supports exclusion and the
// policy enables it). Emergency-lookback schemes additionally pool codes from
// every prior emergency admission of the same patient admitted within the
// lookback window, deduplicated by (version, code) so each code counts once.
// A nil history degrades to the current admission only.
func (c *Collector) Collect(target models.Admission, current []models.DiagnosisCode, history []models.AdmissionRecord, scheme *terminology.Scheme, policy PrimaryPolicy) []models.DiagnosisCode {
	codes := make([]models.DiagnosisCode, 0, len(current))
	for _, d := range current {
		if belongsTo(d, target) {
			codes = append(codes, d)
		}
	}

	switch scheme.Window {
	case terminology.WindowEmergencyLookback:
		for _, prior := range c.qualifying(target, history, scheme) {
			codes = append(codes, prior.Diagnoses...)
		}
		return dedupeCodes(codes)
	default:
		if scheme.PrimaryExclusion {
			codes = FilterPrimary(codes, target, policy)
		}
		return codes
	}
}

func (c *Collector) qualifying(target models.Admission, history []models.AdmissionRecord, scheme *terminology.Scheme) []models.AdmissionRecord {
	if len(history) == 0 {
		return nil
	}
	lower := target.AdmitTime.AddDate(-scheme.LookbackYears, 0, 0)
	if c != nil && c.Lookback > 0 {
		lower = target.AdmitTime.Add(-c.Lookback)
	}
	var out []models.AdmissionRecord
	for _, rec := range history {
		prior := rec.Admission
		if prior.AdmissionID == target.AdmissionID {
			continue
		}
		if prior.PatientID != "" && target.PatientID != "" && prior.PatientID != target.PatientID {
			continue
		}
		if !prior.IsEmergency() {
			continue
		}
		if prior.AdmitTime.Before(lower) || !prior.AdmitTime.Before(target.AdmitTime) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func dedupeCodes(codes []models.DiagnosisCode) []models.DiagnosisCode {
	type key struct {
		version models.ICDVersion
		code    string
	}
	seen := make(map[key]struct{}, len(codes))
	out := make([]models.DiagnosisCode, 0, len(codes))
	for _, d := range codes {
		k := key{version: d.Version, code: terminology.NormalizeCode(d.Code)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
