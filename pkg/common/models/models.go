package models

import (
	"strings"
	"time"
)

// ICDVersion is the coding-system generation of a diagnosis code.
type ICDVersion int

const (
	ICD9  ICDVersion = 9
	ICD10 ICDVersion = 10
)

func (v ICDVersion) Valid() bool {
	return v == ICD9 || v == ICD10
}

func (v ICDVersion) Key() string {
	switch v {
	case ICD9:
		return "icd9"
	case ICD10:
		return "icd10"
	default:
		return ""
	}
}

// SchemeID names a scoring scheme.
type SchemeID string

const (
	SchemeCharlson    SchemeID = "charlson_original"
	SchemeVanWalraven SchemeID = "van_walraven"
	SchemeHFRS        SchemeID = "hfrs"
	SchemeOASIS       SchemeID = "oasis"
)

// Clinical input records, owned by the data store and never mutated here.
type DiagnosisCode struct {
	Code           string     `json:"code"`
	Version        ICDVersion `json:"icd_version"`
	AdmissionID    string     `json:"admission_id"`
	PatientID      string     `json:"patient_id"`
	SequenceNumber int        `json:"seq_num"`
	RecordedAt     time.Time  `json:"recorded_at,omitempty"`
}

type Admission struct {
	AdmissionID   string    `json:"admission_id"`
	PatientID     string    `json:"patient_id"`
	AdmitTime     time.Time `json:"admit_time"`
	DischargeTime time.Time `json:"discharge_time,omitempty"`
	AdmissionType string    `json:"admission_type"`
	// Age at admission in years, when the store can derive it.
	Age *float64 `json:"age,omitempty"`
}

var emergencyAdmissionTypes = map[string]struct{}{
	"EMERGENCY": {},
	"URGENT":    {},
	"EW EMER.":  {},
}

func (a Admission) IsEmergency() bool {
	_, ok := emergencyAdmissionTypes[strings.ToUpper(strings.TrimSpace(a.AdmissionType))]
	return ok
}

// AdmissionRecord is one admission together with its coded diagnoses.
type AdmissionRecord struct {
	Admission Admission       `json:"admission"`
	Diagnoses []DiagnosisCode `json:"diagnoses"`
}

// Range holds the worst-case bounds of a vital sign over the first ICU day.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func Point(v float64) Range {
	return Range{Min: &v, Max: &v}
}

func Between(min, max float64) Range {
	return Range{Min: &min, Max: &max}
}

func (r Range) Empty() bool {
	return r.Min == nil && r.Max == nil
}

type OasisInputs struct {
	ICUStayID        string   `json:"icu_stay_id,omitempty"`
	Age              *float64 `json:"age,omitempty"`
	PreICULOSMinutes *float64 `json:"preiculos_minutes,omitempty"`
	GCS              *float64 `json:"gcs,omitempty"`
	HeartRate        Range    `json:"heartrate"`
	MeanBP           Range    `json:"meanbp"`
	RespRate         Range    `json:"resprate"`
	Temp             Range    `json:"temp"`
	UrineOutput24h   *float64 `json:"urineoutput_24h,omitempty"`
	MechVent         bool     `json:"mechvent"`
	ElectiveSurgery  *bool    `json:"electivesurgery,omitempty"`
}

// ScoringInput is everything one admission's scores are computed from.
type ScoringInput struct {
	Admission Admission         `json:"admission"`
	Diagnoses []DiagnosisCode   `json:"diagnoses"`
	History   []AdmissionRecord `json:"history,omitempty"`
	Oasis     *OasisInputs      `json:"oasis,omitempty"`
}

type ScoreResult struct {
	AdmissionID    string             `json:"admission_id"`
	Scheme         SchemeID           `json:"scheme"`
	TotalScore     float64            `json:"total_score"`
	RiskCategory   string             `json:"risk_category,omitempty"`
	ComponentFlags map[string]bool    `json:"component_flags,omitempty"`
	Components     map[string]float64 `json:"components,omitempty"`
	Probability    *float64           `json:"probability,omitempty"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
	Fingerprint    string             `json:"fingerprint,omitempty"`
	ErrorCode      string             `json:"error_code,omitempty"`
	Error          string             `json:"error,omitempty"`
}

func (r ScoreResult) Failed() bool {
	return r.Error != ""
}

// Scoring requests
type ScoreRequest struct {
	AdmissionID     string     `json:"admission_id"`
	ICUStayID       string     `json:"icu_stay_id,omitempty"`
	Schemes         []SchemeID `json:"schemes"`
	ExcludeBySeqNum *bool      `json:"exclude_by_seq_num,omitempty"`
}

type BatchScoreRequest struct {
	Requests    []ScoreRequest `json:"requests"`
	RequestedBy string         `json:"requested_by,omitempty"`
}

type BatchScoreResponse struct {
	RunID     string        `json:"run_id"`
	Results   []ScoreResult `json:"results"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
}

type ComputeRequest struct {
	Input           ScoringInput `json:"input"`
	Schemes         []SchemeID   `json:"schemes"`
	ExcludeBySeqNum *bool        `json:"exclude_by_seq_num,omitempty"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // score.computed, score.failed, scoring.batch
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
