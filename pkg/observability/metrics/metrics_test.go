package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveResultLabels(t *testing.T) {
	ObserveResult("test_scheme", false, time.Millisecond)
	ObserveResult("test_scheme", true, time.Millisecond)
	ObserveUnmapped("test_scheme", "icd10", 3)
	ObserveUnmapped("test_scheme", "icd9", 0)

	body := scrape(t)
	assert.Contains(t, body, `scoring_results_total{scheme="test_scheme",status="ok"} 1`)
	assert.Contains(t, body, `scoring_results_total{scheme="test_scheme",status="failed"} 1`)
	assert.Contains(t, body, `scoring_unmapped_codes_total{icd_version="icd10",scheme="test_scheme"} 3`)
	assert.NotContains(t, body, `icd_version="icd9",scheme="test_scheme"`)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Middleware)
	router.HandleFunc("/probe/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	body := scrape(t)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/probe/{id}",status="418"} 2`)
	assert.NotContains(t, body, `path="/probe/1"`)
}
