package scoring

import "github.com/synaptica-ai/comorbidity/pkg/common/models"

const defaultPrimarySeqNum = 1

// PrimaryPolicy controls exclusion of the index diagnosis. Billing sequence
// numbers are an unreliable proxy for clinical primacy in both MIMIC-IV and
// eICU, so exclusion is off unless asked for.
type PrimaryPolicy struct {
	ExcludeBySeqNum bool
	PrimarySeqNum   int
}

func (p PrimaryPolicy) seqNum() int {
	if p.PrimarySeqNum <= 0 {
		return defaultPrimarySeqNum
	}
	return p.PrimarySeqNum
}

// FilterPrimary removes the admission's code at the primary sequence
// position when the policy enables it. The input slice is never modified.
func FilterPrimary(codes []models.DiagnosisCode, admission models.Admission, policy PrimaryPolicy) []models.DiagnosisCode {
	out := make([]models.DiagnosisCode, 0, len(codes))
	primary := policy.seqNum()
	for _, c := range codes {
		if policy.ExcludeBySeqNum && c.SequenceNumber == primary && belongsTo(c, admission) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func belongsTo(c models.DiagnosisCode, admission models.Admission) bool {
	return c.AdmissionID == "" || c.AdmissionID == admission.AdmissionID
}
