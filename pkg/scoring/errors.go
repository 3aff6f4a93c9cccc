package scoring

import (
	"context"
	"errors"

	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

var (
	// ErrUnmappableCode classifies log lines only; unmapped codes are
	// excluded from scoring and never fail a result.
	ErrUnmappableCode   = errors.New("code matches no category")
	ErrMissingAdmission = errors.New("admission not found")
	ErrMissingVitals    = errors.New("first-day vitals not found")
	ErrUnknownScheme    = errors.New("unknown scoring scheme")
	ErrScoringPanic     = errors.New("scoring fault")
)

const (
	CodeInvalidICDVersion = "invalid_icd_version"
	CodeMissingAdmission  = "missing_admission"
	CodeMissingVitals     = "missing_vitals"
	CodeUnknownScheme     = "unknown_scheme"
	CodeCanceled          = "canceled"
	CodeInternal          = "internal"
)

// AdmissionError is a fault scoped to one admission. It is recorded in that
// admission's result and never aborts sibling computations.
type AdmissionError struct {
	AdmissionID string
	reason      error
}

func (e AdmissionError) Error() string {
	if e.AdmissionID == "" {
		return e.reason.Error()
	}
	return "admission " + e.AdmissionID + ": " + e.reason.Error()
}

func (e AdmissionError) Unwrap() error {
	return e.reason
}

func IsAdmissionError(err error) bool {
	var ae AdmissionError
	return errors.As(err, &ae)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, terminology.ErrInvalidICDVersion):
		return CodeInvalidICDVersion
	case errors.Is(err, ErrMissingAdmission):
		return CodeMissingAdmission
	case errors.Is(err, ErrMissingVitals):
		return CodeMissingVitals
	case errors.Is(err, ErrUnknownScheme):
		return CodeUnknownScheme
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
