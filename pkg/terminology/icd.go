package terminology

import (
	"errors"
	"fmt"
	"strings"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
)

var ErrInvalidICDVersion = errors.New("invalid ICD version")

// ParseVersion accepts 9 and 10 only.
func ParseVersion(v int) (models.ICDVersion, error) {
	version := models.ICDVersion(v)
	if !version.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidICDVersion, v)
	}
	return version, nil
}

// NormalizeCode upper-cases a diagnosis code and strips dots and whitespace,
// so "428.0", " 4280 " and "4280" compare equal.
func NormalizeCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		switch r {
		case '.', ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
