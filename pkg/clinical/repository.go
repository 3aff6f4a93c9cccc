package clinical

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"gorm.io/gorm"
)

// Repository reads the MIMIC-IV hosp tables plus the derived first-day OASIS
// input table. Identifiers are numeric in the database and strings in the
// domain model.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type admissionRow struct {
	HadmID        int64
	SubjectID     int64
	AdmitTime     time.Time
	DischTime     *time.Time
	AdmissionType string
	Age           *float64
}

func (r admissionRow) toModel() models.Admission {
	a := models.Admission{
		AdmissionID:   strconv.FormatInt(r.HadmID, 10),
		PatientID:     strconv.FormatInt(r.SubjectID, 10),
		AdmitTime:     r.AdmitTime,
		AdmissionType: r.AdmissionType,
		Age:           r.Age,
	}
	if r.DischTime != nil {
		a.DischargeTime = *r.DischTime
	}
	return a
}

type diagnosisRow struct {
	SubjectID  int64  `gorm:"column:subject_id"`
	HadmID     int64  `gorm:"column:hadm_id"`
	SeqNum     int    `gorm:"column:seq_num"`
	ICDCode    string `gorm:"column:icd_code"`
	ICDVersion int    `gorm:"column:icd_version"`
}

func (diagnosisRow) TableName() string { return "diagnoses_icd" }

type oasisInputRow struct {
	StayID          int64    `gorm:"column:stay_id"`
	HadmID          int64    `gorm:"column:hadm_id"`
	Age             *float64 `gorm:"column:age"`
	PreICULOS       *float64 `gorm:"column:preiculos"`
	GCS             *float64 `gorm:"column:gcs_min"`
	HeartRateMin    *float64 `gorm:"column:heart_rate_min"`
	HeartRateMax    *float64 `gorm:"column:heart_rate_max"`
	MBPMin          *float64 `gorm:"column:mbp_min"`
	MBPMax          *float64 `gorm:"column:mbp_max"`
	RespRateMin     *float64 `gorm:"column:resp_rate_min"`
	RespRateMax     *float64 `gorm:"column:resp_rate_max"`
	TempMin         *float64 `gorm:"column:temperature_min"`
	TempMax         *float64 `gorm:"column:temperature_max"`
	UrineOutput     *float64 `gorm:"column:urineoutput"`
	MechVent        *bool    `gorm:"column:mechvent"`
	ElectiveSurgery *bool    `gorm:"column:electivesurgery"`
}

func (oasisInputRow) TableName() string { return "first_day_oasis_inputs" }

func (r oasisInputRow) toModel() models.OasisInputs {
	in := models.OasisInputs{
		ICUStayID:        strconv.FormatInt(r.StayID, 10),
		Age:              r.Age,
		PreICULOSMinutes: r.PreICULOS,
		GCS:              r.GCS,
		HeartRate:        models.Range{Min: r.HeartRateMin, Max: r.HeartRateMax},
		MeanBP:           models.Range{Min: r.MBPMin, Max: r.MBPMax},
		RespRate:         models.Range{Min: r.RespRateMin, Max: r.RespRateMax},
		Temp:             models.Range{Min: r.TempMin, Max: r.TempMax},
		UrineOutput24h:   r.UrineOutput,
		ElectiveSurgery:  r.ElectiveSurgery,
	}
	if r.MechVent != nil {
		in.MechVent = *r.MechVent
	}
	return in
}

// Age follows the MIMIC-IV anchor convention.
const admissionQuery = `SELECT a.hadm_id, a.subject_id, a.admittime AS admit_time, a.dischtime AS disch_time, a.admission_type,
       p.anchor_age + (EXTRACT(YEAR FROM a.admittime) - p.anchor_year) AS age
FROM admissions a
LEFT JOIN patients p ON p.subject_id = a.subject_id`

func (r *Repository) GetAdmission(ctx context.Context, admissionID string) (models.Admission, error) {
	id, err := parseID(admissionID)
	if err != nil {
		return models.Admission{}, fmt.Errorf("%w: %s", ErrAdmissionNotFound, admissionID)
	}
	var row admissionRow
	result := r.db.WithContext(ctx).Raw(admissionQuery+" WHERE a.hadm_id = ?", id).Scan(&row)
	if result.Error != nil {
		return models.Admission{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Admission{}, fmt.Errorf("%w: %s", ErrAdmissionNotFound, admissionID)
	}
	return row.toModel(), nil
}

func (r *Repository) GetDiagnoses(ctx context.Context, admissionID string) ([]models.DiagnosisCode, error) {
	id, err := parseID(admissionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAdmissionNotFound, admissionID)
	}
	var rows []diagnosisRow
	result := r.db.WithContext(ctx).
		Where("hadm_id = ?", id).
		Order("seq_num").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	out := make([]models.DiagnosisCode, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.DiagnosisCode{
			Code:           row.ICDCode,
			Version:        models.ICDVersion(row.ICDVersion),
			AdmissionID:    strconv.FormatInt(row.HadmID, 10),
			PatientID:      strconv.FormatInt(row.SubjectID, 10),
			SequenceNumber: row.SeqNum,
		})
	}
	return out, nil
}

func (r *Repository) GetAdmissions(ctx context.Context, patientID string, from, to time.Time) ([]models.Admission, error) {
	id, err := parseID(patientID)
	if err != nil {
		return nil, nil
	}
	var rows []admissionRow
	result := r.db.WithContext(ctx).
		Raw(admissionQuery+" WHERE a.subject_id = ? AND a.admittime >= ? AND a.admittime < ? ORDER BY a.admittime", id, from, to).
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	out := make([]models.Admission, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *Repository) GetFirst24hVitals(ctx context.Context, icuStayID string) (models.OasisInputs, error) {
	id, err := parseID(icuStayID)
	if err != nil {
		return models.OasisInputs{}, fmt.Errorf("%w: %s", ErrVitalsNotFound, icuStayID)
	}
	var row oasisInputRow
	result := r.db.WithContext(ctx).Where("stay_id = ?", id).Take(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.OasisInputs{}, fmt.Errorf("%w: %s", ErrVitalsNotFound, icuStayID)
	}
	if result.Error != nil {
		return models.OasisInputs{}, result.Error
	}
	return row.toModel(), nil
}

func parseID(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}
