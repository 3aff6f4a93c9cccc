package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrResultNotFound = errors.New("score result not found")

// ScoreRecord is the persisted form of one (admission, scheme) result. A
// rescore overwrites the previous row.
type ScoreRecord struct {
	AdmissionID    string            `gorm:"primaryKey;column:admission_id"`
	Scheme         string            `gorm:"primaryKey;column:scheme"`
	RunID          string            `gorm:"column:run_id;index"`
	TotalScore     float64           `gorm:"column:total_score"`
	RiskCategory   string            `gorm:"column:risk_category"`
	Probability    *float64          `gorm:"column:probability"`
	ComponentFlags datatypes.JSON    `gorm:"column:component_flags"`
	Components     datatypes.JSON    `gorm:"column:components"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata"`
	Fingerprint    string            `gorm:"column:fingerprint"`
	ErrorCode      string            `gorm:"column:error_code"`
	ErrorMessage   string            `gorm:"column:error_message"`
	ComputedAt     time.Time         `gorm:"column:computed_at"`
}

func (ScoreRecord) TableName() string {
	return "score_results"
}

type ResultRepository struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&ScoreRecord{})
}

// SaveResults upserts one row per (admission_id, scheme). When a batch
// carries the same key more than once the last result wins; Postgres rejects
// an upsert that touches one row twice.
func (r *ResultRepository) SaveResults(ctx context.Context, runID string, results []models.ScoreResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]ScoreRecord, 0, len(results))
	for _, res := range results {
		rec, err := toRecord(runID, res, now)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	records = lastPerKey(records)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "admission_id"}, {Name: "scheme"}},
			UpdateAll: true,
		}).
		Create(&records).Error
}

func lastPerKey(records []ScoreRecord) []ScoreRecord {
	type key struct{ admissionID, scheme string }
	pos := make(map[key]int, len(records))
	out := make([]ScoreRecord, 0, len(records))
	for _, rec := range records {
		k := key{rec.AdmissionID, rec.Scheme}
		if i, dup := pos[k]; dup {
			out[i] = rec
			continue
		}
		pos[k] = len(out)
		out = append(out, rec)
	}
	return out
}

func (r *ResultRepository) Latest(ctx context.Context, admissionID string, scheme models.SchemeID) (models.ScoreResult, error) {
	var rec ScoreRecord
	result := r.db.WithContext(ctx).
		Where("admission_id = ? AND scheme = ?", admissionID, string(scheme)).
		Take(&rec)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.ScoreResult{}, ErrResultNotFound
	}
	if result.Error != nil {
		return models.ScoreResult{}, result.Error
	}
	return fromRecord(rec)
}

func toRecord(runID string, res models.ScoreResult, computedAt time.Time) (ScoreRecord, error) {
	flags, err := json.Marshal(res.ComponentFlags)
	if err != nil {
		return ScoreRecord{}, fmt.Errorf("failed to encode component flags: %w", err)
	}
	components, err := json.Marshal(res.Components)
	if err != nil {
		return ScoreRecord{}, fmt.Errorf("failed to encode components: %w", err)
	}
	metadata := datatypes.JSONMap{}
	for k, v := range res.Metadata {
		metadata[k] = v
	}
	return ScoreRecord{
		AdmissionID:    res.AdmissionID,
		Scheme:         string(res.Scheme),
		RunID:          runID,
		TotalScore:     res.TotalScore,
		RiskCategory:   res.RiskCategory,
		Probability:    res.Probability,
		ComponentFlags: datatypes.JSON(flags),
		Components:     datatypes.JSON(components),
		Metadata:       metadata,
		Fingerprint:    res.Fingerprint,
		ErrorCode:      res.ErrorCode,
		ErrorMessage:   res.Error,
		ComputedAt:     computedAt,
	}, nil
}

func fromRecord(rec ScoreRecord) (models.ScoreResult, error) {
	res := models.ScoreResult{
		AdmissionID:  rec.AdmissionID,
		Scheme:       models.SchemeID(rec.Scheme),
		TotalScore:   rec.TotalScore,
		RiskCategory: rec.RiskCategory,
		Probability:  rec.Probability,
		Fingerprint:  rec.Fingerprint,
		ErrorCode:    rec.ErrorCode,
		Error:        rec.ErrorMessage,
	}
	if len(rec.ComponentFlags) > 0 {
		if err := json.Unmarshal(rec.ComponentFlags, &res.ComponentFlags); err != nil {
			return models.ScoreResult{}, fmt.Errorf("failed to decode component flags: %w", err)
		}
	}
	if len(rec.Components) > 0 {
		if err := json.Unmarshal(rec.Components, &res.Components); err != nil {
			return models.ScoreResult{}, fmt.Errorf("failed to decode components: %w", err)
		}
	}
	if len(rec.Metadata) > 0 {
		res.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			res.Metadata[k] = fmt.Sprint(v)
		}
	}
	return res, nil
}
