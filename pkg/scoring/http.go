package scoring

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/ml/linear"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

// MaxBatchRequests bounds one HTTP batch; larger batches go through Kafka.
const MaxBatchRequests = 1000

type Handler struct {
	runner *Runner
}

func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/scores/batch", h.handleBatch).Methods(http.MethodPost)
	r.HandleFunc("/scores/compute", h.handleCompute).Methods(http.MethodPost)
	r.HandleFunc("/scores/{admission_id}", h.handleGetScores).Methods(http.MethodGet)
	r.HandleFunc("/schemes", h.handleSchemes).Methods(http.MethodGet)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Requests) == 0 {
		http.Error(w, "requests is required", http.StatusBadRequest)
		return
	}
	if len(req.Requests) > MaxBatchRequests {
		http.Error(w, "too many requests in batch", http.StatusRequestEntityTooLarge)
		return
	}
	for _, sr := range req.Requests {
		if sr.AdmissionID == "" {
			http.Error(w, "admission_id is required", http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.runner.Run(r.Context(), req))
}

func (h *Handler) handleGetScores(w http.ResponseWriter, r *http.Request) {
	admissionID := mux.Vars(r)["admission_id"]
	query := r.URL.Query()
	req := models.ScoreRequest{
		AdmissionID: admissionID,
		ICUStayID:   query.Get("icu_stay_id"),
	}
	for _, s := range query["scheme"] {
		req.Schemes = append(req.Schemes, models.SchemeID(s))
	}

	resp := h.runner.Run(r.Context(), models.BatchScoreRequest{Requests: []models.ScoreRequest{req}})
	for _, res := range resp.Results {
		if res.ErrorCode == CodeMissingAdmission {
			http.Error(w, "admission not found", http.StatusNotFound)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCompute scores caller-supplied inputs without touching the clinical
// store or any result sink.
func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req models.ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	engine := h.runner.Engine()

	schemes := req.Schemes
	if len(schemes) == 0 {
		for _, s := range engine.Catalog().Schemes() {
			schemes = append(schemes, s.ID)
		}
		if req.Input.Oasis != nil {
			schemes = append(schemes, models.SchemeOASIS)
		}
	}
	var policy *PrimaryPolicy
	if req.ExcludeBySeqNum != nil {
		p := engine.Policy()
		p.ExcludeBySeqNum = *req.ExcludeBySeqNum
		policy = &p
	}

	jobs := make([]Job, 0, len(schemes))
	for _, s := range schemes {
		jobs = append(jobs, Job{Input: req.Input, Scheme: s, Policy: policy})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": engine.ScoreBatch(r.Context(), jobs),
	})
}

type tableView struct {
	Version    models.ICDVersion      `json:"icd_version"`
	Source     string                 `json:"source"`
	Confidence terminology.Confidence `json:"confidence"`
	Rules      int                    `json:"rules"`
}

type categoryView struct {
	ID     terminology.Category `json:"id"`
	Weight float64              `json:"weight"`
}

type schemeView struct {
	ID               models.SchemeID        `json:"id"`
	Name             string                 `json:"name"`
	Reference        string                 `json:"reference,omitempty"`
	Window           terminology.Window     `json:"window,omitempty"`
	LookbackYears    int                    `json:"lookback_years,omitempty"`
	PrimaryExclusion bool                   `json:"primary_exclusion,omitempty"`
	Categories       []categoryView         `json:"categories,omitempty"`
	Overrides        []terminology.Override `json:"overrides,omitempty"`
	AgeBands         []terminology.AgeBand  `json:"age_bands,omitempty"`
	RiskBands        []terminology.RiskBand `json:"risk_bands,omitempty"`
	Tables           []tableView            `json:"tables,omitempty"`
	Model            *linear.Weights        `json:"model,omitempty"`
}

func (h *Handler) handleSchemes(w http.ResponseWriter, _ *http.Request) {
	engine := h.runner.Engine()
	var out []schemeView
	for _, s := range engine.Catalog().Schemes() {
		view := schemeView{
			ID:               s.ID,
			Name:             s.Name,
			Reference:        s.Reference,
			Window:           s.Window,
			LookbackYears:    s.LookbackYears,
			PrimaryExclusion: s.PrimaryExclusion,
			Overrides:        s.Overrides(),
			AgeBands:         s.AgeBands,
			RiskBands:        s.RiskBands,
		}
		for _, c := range s.Categories() {
			weight, _ := s.Weight(c)
			view.Categories = append(view.Categories, categoryView{ID: c, Weight: weight.Float()})
		}
		for _, v := range s.Versions() {
			t, _ := s.Table(v)
			view.Tables = append(view.Tables, tableView{Version: v, Source: t.Source, Confidence: t.Confidence, Rules: t.Len()})
		}
		out = append(out, view)
	}
	weights := engine.oasis.Coefficients()
	out = append(out, schemeView{
		ID:    models.SchemeOASIS,
		Name:  "Oxford Acute Severity of Illness Score",
		Model: &weights,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"schemes": out})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
