// Package clinical reads admissions, coded diagnoses and first-day ICU
// observations from the clinical data store. It never writes to it.
package clinical

import (
	"context"
	"errors"
	"time"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
)

var (
	ErrAdmissionNotFound = errors.New("admission not found")
	ErrVitalsNotFound    = errors.New("first-day vitals not found")
)

type Store interface {
	GetAdmission(ctx context.Context, admissionID string) (models.Admission, error)
	GetDiagnoses(ctx context.Context, admissionID string) ([]models.DiagnosisCode, error)
	// GetAdmissions returns the patient's admissions with from <= admit_time < to,
	// oldest first.
	GetAdmissions(ctx context.Context, patientID string, from, to time.Time) ([]models.Admission, error)
	GetFirst24hVitals(ctx context.Context, icuStayID string) (models.OasisInputs, error)
}
