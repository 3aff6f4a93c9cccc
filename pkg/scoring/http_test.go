package scoring

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	NewHandler(NewRunner(newTestEngine(t, Options{}), seedStore())).Register(api)
	return router
}

func serve(router http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func TestHandleBatch(t *testing.T) {
	router := newTestRouter(t)
	rec := serve(router, http.MethodPost, "/api/v1/scores/batch", models.BatchScoreRequest{
		Requests: []models.ScoreRequest{{AdmissionID: "100", Schemes: []models.SchemeID{models.SchemeCharlson}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.BatchScoreResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 5.0, resp.Results[0].TotalScore)
}

func TestHandleBatchRejectsBadBodies(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scores/batch", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/api/v1/scores/batch", models.BatchScoreRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/api/v1/scores/batch", models.BatchScoreRequest{
		Requests: []models.ScoreRequest{{Schemes: []models.SchemeID{models.SchemeCharlson}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetScores(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/v1/scores/100?scheme=hfrs&scheme=charlson_original", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.BatchScoreResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, models.SchemeHFRS, resp.Results[0].Scheme)
	assert.Equal(t, models.SchemeCharlson, resp.Results[1].Scheme)

	rec = serve(router, http.MethodGet, "/api/v1/scores/404?scheme=charlson_original", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCompute(t *testing.T) {
	router := newTestRouter(t)
	rec := serve(router, http.MethodPost, "/api/v1/scores/compute", models.ComputeRequest{
		Input: models.ScoringInput{
			Admission: models.Admission{AdmissionID: "inline", Age: age(55)},
			Diagnoses: []models.DiagnosisCode{dx("inline", "I21", models.ICD10, 1), dx("inline", "N18", models.ICD10, 2)},
		},
		Schemes: []models.SchemeID{models.SchemeCharlson},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []models.ScoreResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, 4.0, body.Results[0].TotalScore)
	assert.Equal(t, "Moderate", body.Results[0].RiskCategory)
}

func TestHandleComputeDefaultsToEveryScheme(t *testing.T) {
	router := newTestRouter(t)
	rec := serve(router, http.MethodPost, "/api/v1/scores/compute", models.ComputeRequest{
		Input: models.ScoringInput{
			Admission: models.Admission{AdmissionID: "inline"},
			Oasis:     &models.OasisInputs{MechVent: true},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []models.ScoreResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Results, 4)
	last := body.Results[3]
	assert.Equal(t, models.SchemeOASIS, last.Scheme)
	assert.Equal(t, 9.0, last.TotalScore)
}

func TestHandleSchemes(t *testing.T) {
	router := newTestRouter(t)
	rec := serve(router, http.MethodGet, "/api/v1/schemes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Schemes []struct {
			ID         models.SchemeID `json:"id"`
			Categories []struct {
				ID     string  `json:"id"`
				Weight float64 `json:"weight"`
			} `json:"categories"`
			Tables []struct {
				Confidence string `json:"confidence"`
			} `json:"tables"`
		} `json:"schemes"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Schemes, 4)

	ids := make([]models.SchemeID, 0, len(body.Schemes))
	for _, s := range body.Schemes {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []models.SchemeID{models.SchemeCharlson, models.SchemeHFRS, models.SchemeVanWalraven, models.SchemeOASIS}, ids)
	assert.Len(t, body.Schemes[0].Categories, 17)
	assert.NotEmpty(t, body.Schemes[0].Tables)
}
