package clinical

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
)

// MemoryStore is an in-process Store for inline scoring payloads and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	admissions map[string]models.Admission
	diagnoses  map[string][]models.DiagnosisCode
	vitals     map[string]models.OasisInputs
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		admissions: make(map[string]models.Admission),
		diagnoses:  make(map[string][]models.DiagnosisCode),
		vitals:     make(map[string]models.OasisInputs),
	}
}

func (s *MemoryStore) AddAdmission(a models.Admission, codes ...models.DiagnosisCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admissions[a.AdmissionID] = a
	for _, c := range codes {
		if c.AdmissionID == "" {
			c.AdmissionID = a.AdmissionID
		}
		if c.PatientID == "" {
			c.PatientID = a.PatientID
		}
		s.diagnoses[a.AdmissionID] = append(s.diagnoses[a.AdmissionID], c)
	}
}

func (s *MemoryStore) AddVitals(in models.OasisInputs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vitals[in.ICUStayID] = in
}

func (s *MemoryStore) GetAdmission(_ context.Context, admissionID string) (models.Admission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.admissions[admissionID]
	if !ok {
		return models.Admission{}, fmt.Errorf("%w: %s", ErrAdmissionNotFound, admissionID)
	}
	return a, nil
}

func (s *MemoryStore) GetDiagnoses(_ context.Context, admissionID string) ([]models.DiagnosisCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := s.diagnoses[admissionID]
	out := make([]models.DiagnosisCode, len(codes))
	copy(out, codes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *MemoryStore) GetAdmissions(_ context.Context, patientID string, from, to time.Time) ([]models.Admission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Admission
	for _, a := range s.admissions {
		if a.PatientID != patientID || a.AdmitTime.Before(from) || !a.AdmitTime.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmitTime.Before(out[j].AdmitTime) })
	return out, nil
}

func (s *MemoryStore) GetFirst24hVitals(_ context.Context, icuStayID string) (models.OasisInputs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.vitals[icuStayID]
	if !ok {
		return models.OasisInputs{}, fmt.Errorf("%w: %s", ErrVitalsNotFound, icuStayID)
	}
	return in, nil
}
