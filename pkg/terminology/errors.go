package terminology

import (
	"errors"
	"fmt"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
)

var (
	ErrAmbiguousMapping = errors.New("ambiguous mapping")
	ErrOverrideCycle    = errors.New("override graph has a cycle")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidTable     = errors.New("invalid reference table")
)

// LoadError rejects a scheme at load time. Any LoadError is fatal: no
// scoring may start from a catalog that failed validation.
type LoadError struct {
	Scheme  models.SchemeID
	Version models.ICDVersion
	reason  error
}

func (e *LoadError) Error() string {
	switch {
	case e.Scheme == "":
		return e.reason.Error()
	case e.Version == 0:
		return fmt.Sprintf("scheme %s: %v", e.Scheme, e.reason)
	default:
		return fmt.Sprintf("scheme %s %s: %v", e.Scheme, e.Version.Key(), e.reason)
	}
}

func (e *LoadError) Unwrap() error {
	return e.reason
}

func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
