package clinical

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupMockRepo(t *testing.T) (sqlmock.Sqlmock, *Repository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return mock, NewRepository(gdb)
}

func TestRepositoryGetAdmission(t *testing.T) {
	mock, repo := setupMockRepo(t)
	admit := time.Date(2150, 1, 2, 3, 4, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"hadm_id", "subject_id", "admit_time", "disch_time", "admission_type", "age"}).
		AddRow(int64(20001), int64(10001), admit, nil, "EW EMER.", 67.0)
	mock.ExpectQuery(`SELECT a.hadm_id`).WithArgs(int64(20001)).WillReturnRows(rows)

	a, err := repo.GetAdmission(context.Background(), "20001")
	require.NoError(t, err)
	assert.Equal(t, "20001", a.AdmissionID)
	assert.Equal(t, "10001", a.PatientID)
	assert.True(t, a.IsEmergency())
	require.NotNil(t, a.Age)
	assert.Equal(t, 67.0, *a.Age)
	assert.True(t, a.DischargeTime.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetAdmissionNotFound(t *testing.T) {
	mock, repo := setupMockRepo(t)
	mock.ExpectQuery(`SELECT a.hadm_id`).
		WillReturnRows(sqlmock.NewRows([]string{"hadm_id", "subject_id", "admit_time", "disch_time", "admission_type", "age"}))

	_, err := repo.GetAdmission(context.Background(), "404")
	assert.True(t, errors.Is(err, ErrAdmissionNotFound))

	_, err = repo.GetAdmission(context.Background(), "not-a-number")
	assert.True(t, errors.Is(err, ErrAdmissionNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetDiagnoses(t *testing.T) {
	mock, repo := setupMockRepo(t)
	rows := sqlmock.NewRows([]string{"subject_id", "hadm_id", "seq_num", "icd_code", "icd_version"}).
		AddRow(int64(10001), int64(20001), 1, "I214", 10).
		AddRow(int64(10001), int64(20001), 2, "N189", 10)
	mock.ExpectQuery(`SELECT \* FROM "diagnoses_icd" WHERE hadm_id = \$1 ORDER BY seq_num`).
		WithArgs(int64(20001)).
		WillReturnRows(rows)

	codes, err := repo.GetDiagnoses(context.Background(), "20001")
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, models.DiagnosisCode{Code: "I214", Version: models.ICD10, AdmissionID: "20001", PatientID: "10001", SequenceNumber: 1}, codes[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetFirst24hVitals(t *testing.T) {
	mock, repo := setupMockRepo(t)
	rows := sqlmock.NewRows([]string{"stay_id", "hadm_id", "age", "gcs_min", "heart_rate_min", "heart_rate_max", "mechvent", "electivesurgery"}).
		AddRow(int64(30001), int64(20001), 70.0, 9.0, 55.0, 118.0, nil, false)
	mock.ExpectQuery(`SELECT \* FROM "first_day_oasis_inputs" WHERE stay_id = \$1`).
		WillReturnRows(rows)

	in, err := repo.GetFirst24hVitals(context.Background(), "30001")
	require.NoError(t, err)
	assert.Equal(t, "30001", in.ICUStayID)
	assert.False(t, in.MechVent)
	require.NotNil(t, in.ElectiveSurgery)
	assert.False(t, *in.ElectiveSurgery)
	assert.Equal(t, 118.0, *in.HeartRate.Max)
	assert.True(t, in.Temp.Empty())

	mock.ExpectQuery(`SELECT \* FROM "first_day_oasis_inputs"`).
		WillReturnRows(sqlmock.NewRows([]string{"stay_id"}))
	_, err = repo.GetFirst24hVitals(context.Background(), "30002")
	assert.True(t, errors.Is(err, ErrVitalsNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreWindow(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s.AddAdmission(models.Admission{AdmissionID: "a", PatientID: "p", AdmitTime: base})
	s.AddAdmission(models.Admission{AdmissionID: "b", PatientID: "p", AdmitTime: base.AddDate(1, 0, 0)},
		models.DiagnosisCode{Code: "N18", Version: models.ICD10, SequenceNumber: 2},
		models.DiagnosisCode{Code: "I21", Version: models.ICD10, SequenceNumber: 1})
	s.AddAdmission(models.Admission{AdmissionID: "c", PatientID: "q", AdmitTime: base})

	got, err := s.GetAdmissions(context.Background(), "p", base, base.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].AdmissionID)

	codes, _ := s.GetDiagnoses(context.Background(), "b")
	require.Len(t, codes, 2)
	assert.Equal(t, "I21", codes[0].Code)
	assert.Equal(t, "b", codes[0].AdmissionID)
	assert.Equal(t, "p", codes[0].PatientID)

	_, err = s.GetAdmission(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrAdmissionNotFound)
}
