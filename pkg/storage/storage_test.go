package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func sampleResult() models.ScoreResult {
	return models.ScoreResult{
		AdmissionID:    "20001",
		Scheme:         models.SchemeCharlson,
		TotalScore:     4,
		RiskCategory:   "Moderate",
		ComponentFlags: map[string]bool{"myocardial_infarct": true, "dementia": false},
		Components:     map[string]float64{"myocardial_infarct": 1, "age": 1},
		Metadata:       map[string]string{"codes": "2"},
		Fingerprint:    "abc123",
	}
}

func TestResultCacheRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewResultCache(client, time.Hour)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, sampleResult()))
	got, ok, err := cache.Get(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleResult(), got)
	assert.True(t, mr.Exists("score:abc123"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = cache.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResultCacheSkipsFailedResults(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewResultCache(client, time.Hour)

	failed := sampleResult()
	failed.Error = "admission 20001: admission not found"
	require.NoError(t, cache.Set(context.Background(), failed))
	assert.Empty(t, mr.Keys())
}

func setupMockRepo(t *testing.T) (sqlmock.Sqlmock, *ResultRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return mock, NewResultRepository(gdb)
}

func TestSaveResultsUpserts(t *testing.T) {
	mock, repo := setupMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "score_results" .* ON CONFLICT \("admission_id","scheme"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveResults(context.Background(), "run-1", []models.ScoreResult{sampleResult()}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResultsCollapsesDuplicateKeys(t *testing.T) {
	mock, repo := setupMockRepo(t)
	mock.ExpectBegin()
	// A single VALUES tuple: no "),(" between VALUES and ON CONFLICT.
	mock.ExpectExec(`INSERT INTO "score_results" .* VALUES \([^)]*\) ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	first := sampleResult()
	second := sampleResult()
	second.TotalScore = 5
	require.NoError(t, repo.SaveResults(context.Background(), "run-1", []models.ScoreResult{first, second}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastPerKeyKeepsLatestResult(t *testing.T) {
	records := []ScoreRecord{
		{AdmissionID: "1", Scheme: "hfrs", TotalScore: 1},
		{AdmissionID: "1", Scheme: "charlson_original", TotalScore: 2},
		{AdmissionID: "1", Scheme: "hfrs", TotalScore: 3},
	}
	got := lastPerKey(records)
	require.Len(t, got, 2)
	assert.Equal(t, "hfrs", got[0].Scheme)
	assert.Equal(t, 3.0, got[0].TotalScore)
	assert.Equal(t, "charlson_original", got[1].Scheme)
}

func TestSaveResultsEmptyIsNoop(t *testing.T) {
	mock, repo := setupMockRepo(t)
	require.NoError(t, repo.SaveResults(context.Background(), "run-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestDecodesJSONColumns(t *testing.T) {
	mock, repo := setupMockRepo(t)
	rows := sqlmock.NewRows([]string{"admission_id", "scheme", "run_id", "total_score", "risk_category", "component_flags", "components", "metadata", "fingerprint"}).
		AddRow("20001", "charlson_original", "run-1", 4.0, "Moderate",
			[]byte(`{"myocardial_infarct":true}`), []byte(`{"myocardial_infarct":1}`), []byte(`{"codes":"2"}`), "abc123")
	mock.ExpectQuery(`SELECT \* FROM "score_results" WHERE admission_id = \$1 AND scheme = \$2`).WillReturnRows(rows)

	got, err := repo.Latest(context.Background(), "20001", models.SchemeCharlson)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.TotalScore)
	assert.True(t, got.ComponentFlags["myocardial_infarct"])
	assert.Equal(t, 1.0, got.Components["myocardial_infarct"])
	assert.Equal(t, "2", got.Metadata["codes"])

	mock.ExpectQuery(`SELECT \* FROM "score_results"`).WillReturnRows(sqlmock.NewRows([]string{"admission_id"}))
	_, err = repo.Latest(context.Background(), "nope", models.SchemeCharlson)
	assert.ErrorIs(t, err, ErrResultNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
