package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/comorbidity/pkg/clinical"
	"github.com/synaptica-ai/comorbidity/pkg/common/kafka"
	"github.com/synaptica-ai/comorbidity/pkg/common/logger"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/observability/metrics"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

const eventSource = "scoring-service"

// ResultCache is keyed by Engine.Fingerprint.
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) (models.ScoreResult, bool, error)
	Set(ctx context.Context, result models.ScoreResult) error
}

type ResultStore interface {
	SaveResults(ctx context.Context, runID string, results []models.ScoreResult) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, key, eventType, source string, data map[string]interface{}) error
}

type RunnerOption func(*Runner)

func WithCache(c ResultCache) RunnerOption {
	return func(r *Runner) { r.cache = c }
}

func WithResultStore(s ResultStore) RunnerOption {
	return func(r *Runner) { r.results = s }
}

func WithPublisher(p EventPublisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// Runner loads admissions from the clinical store and scores them. Sinks
// (cache, result store, publisher) are optional and their failures are
// logged without changing the computed results.
type Runner struct {
	engine    *Engine
	store     clinical.Store
	cache     ResultCache
	results   ResultStore
	publisher EventPublisher
}

func NewRunner(engine *Engine, store clinical.Store, opts ...RunnerOption) *Runner {
	r := &Runner{engine: engine, store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Engine() *Engine {
	return r.engine
}

// Run scores every (admission, scheme) pair of the batch. It always returns
// one result per pair; per-admission faults are recorded in the results.
func (r *Runner) Run(ctx context.Context, batch models.BatchScoreRequest) models.BatchScoreResponse {
	started := time.Now().UTC()
	runID := uuid.New().String()
	log := logger.Log.WithFields(logrus.Fields{"run_id": runID, "requested_by": batch.RequestedBy})

	// results keeps request order; slots maps each job to its position.
	var jobs []Job
	var slots []int
	var results []models.ScoreResult
	for _, req := range batch.Requests {
		prepared, failed := r.prepare(ctx, req)
		for _, job := range prepared {
			slots = append(slots, len(results))
			jobs = append(jobs, job)
			results = append(results, models.ScoreResult{})
		}
		results = append(results, failed...)
	}
	metrics.ObserveBatch(len(results))

	for k, res := range r.scoreWithCache(ctx, jobs) {
		results[slots[k]] = res
	}

	resp := models.BatchScoreResponse{
		RunID:     runID,
		Results:   results,
		StartedAt: started,
	}
	for _, res := range results {
		if res.Failed() {
			resp.Failed++
		}
	}

	r.persist(ctx, runID, results)
	r.publish(ctx, runID, results)

	resp.Duration = time.Since(started)
	log.WithFields(logrus.Fields{
		"results":  len(results),
		"failed":   resp.Failed,
		"duration": resp.Duration.String(),
	}).Info("Scoring run completed")
	return resp
}

// prepare loads one request's inputs and expands it into jobs. A request
// whose admission cannot be loaded yields one failed result per scheme.
func (r *Runner) prepare(ctx context.Context, req models.ScoreRequest) ([]Job, []models.ScoreResult) {
	schemes := req.Schemes
	if len(schemes) == 0 {
		schemes = r.defaultSchemes()
	}
	var policy *PrimaryPolicy
	if req.ExcludeBySeqNum != nil {
		p := r.engine.Policy()
		p.ExcludeBySeqNum = *req.ExcludeBySeqNum
		policy = &p
	}

	input, err := r.loadInput(ctx, req, schemes)
	if err != nil {
		out := make([]models.ScoreResult, 0, len(schemes))
		for _, s := range schemes {
			out = append(out, failedResult(req.AdmissionID, s, err))
		}
		return nil, out
	}

	jobs := make([]Job, 0, len(schemes))
	for _, s := range schemes {
		jobs = append(jobs, Job{Input: input, Scheme: s, Policy: policy})
	}
	return jobs, nil
}

func (r *Runner) loadInput(ctx context.Context, req models.ScoreRequest, schemes []models.SchemeID) (models.ScoringInput, error) {
	admission, err := r.store.GetAdmission(ctx, req.AdmissionID)
	if err != nil {
		if errors.Is(err, clinical.ErrAdmissionNotFound) {
			return models.ScoringInput{}, AdmissionError{AdmissionID: req.AdmissionID, reason: ErrMissingAdmission}
		}
		return models.ScoringInput{}, AdmissionError{AdmissionID: req.AdmissionID, reason: err}
	}
	input := models.ScoringInput{Admission: admission}

	needsCodes, lookbackYears, needsVitals := false, 0, false
	for _, id := range schemes {
		if id == models.SchemeOASIS {
			needsVitals = true
			continue
		}
		needsCodes = true
		if s, ok := r.engine.Catalog().Scheme(id); ok && s.Window == terminology.WindowEmergencyLookback && s.LookbackYears > lookbackYears {
			lookbackYears = s.LookbackYears
		}
	}

	if needsCodes {
		input.Diagnoses, err = r.store.GetDiagnoses(ctx, admission.AdmissionID)
		if err != nil {
			return models.ScoringInput{}, AdmissionError{AdmissionID: admission.AdmissionID, reason: fmt.Errorf("load diagnoses: %w", err)}
		}
	}
	if lookbackYears > 0 {
		input.History = r.loadHistory(ctx, admission, lookbackYears)
	}
	if needsVitals && req.ICUStayID != "" {
		vitals, err := r.store.GetFirst24hVitals(ctx, req.ICUStayID)
		switch {
		case err == nil:
			input.Oasis = &vitals
		case errors.Is(err, clinical.ErrVitalsNotFound):
			// scored as missing vitals by the engine
		default:
			return models.ScoringInput{}, AdmissionError{AdmissionID: admission.AdmissionID, reason: fmt.Errorf("load vitals: %w", err)}
		}
	}
	return input, nil
}

// loadHistory degrades to no history on any store error.
func (r *Runner) loadHistory(ctx context.Context, admission models.Admission, years int) []models.AdmissionRecord {
	from := admission.AdmitTime.AddDate(-years, 0, 0)
	if lb := r.engine.collector.Lookback; lb > 0 {
		from = admission.AdmitTime.Add(-lb)
	}
	log := logger.Log.WithField("admission_id", admission.AdmissionID)

	prior, err := r.store.GetAdmissions(ctx, admission.PatientID, from, admission.AdmitTime)
	if err != nil {
		log.WithError(err).Warn("Admission history unavailable, scoring current admission only")
		return nil
	}
	history := make([]models.AdmissionRecord, 0, len(prior))
	for _, a := range prior {
		if a.AdmissionID == admission.AdmissionID || !a.IsEmergency() {
			continue
		}
		codes, err := r.store.GetDiagnoses(ctx, a.AdmissionID)
		if err != nil {
			log.WithError(err).WithField("prior_admission_id", a.AdmissionID).Warn("Skipping prior admission")
			continue
		}
		history = append(history, models.AdmissionRecord{Admission: a, Diagnoses: codes})
	}
	return history
}

func (r *Runner) scoreWithCache(ctx context.Context, jobs []Job) []models.ScoreResult {
	if r.cache == nil {
		return r.engine.ScoreBatch(ctx, jobs)
	}

	results := make([]models.ScoreResult, len(jobs))
	var misses []Job
	var missIdx []int
	for i, job := range jobs {
		policy := r.engine.Policy()
		if job.Policy != nil {
			policy = *job.Policy
		}
		fp := r.engine.Fingerprint(job.Input, job.Scheme, policy)
		cached, ok, err := r.cache.Get(ctx, fp)
		if err != nil {
			logger.Log.WithError(err).Warn("Result cache lookup failed")
		}
		if ok {
			results[i] = cached
			continue
		}
		misses = append(misses, job)
		missIdx = append(missIdx, i)
	}

	for k, res := range r.engine.ScoreBatch(ctx, misses) {
		results[missIdx[k]] = res
		if err := r.cache.Set(ctx, res); err != nil {
			logger.Log.WithError(err).Warn("Result cache write failed")
		}
	}
	return results
}

func (r *Runner) persist(ctx context.Context, runID string, results []models.ScoreResult) {
	if r.results == nil {
		return
	}
	if err := r.results.SaveResults(ctx, runID, results); err != nil {
		logger.Log.WithError(err).WithField("run_id", runID).Error("Failed to persist score results")
	}
}

func (r *Runner) publish(ctx context.Context, runID string, results []models.ScoreResult) {
	if r.publisher == nil {
		return
	}
	for _, res := range results {
		eventType := kafka.EventScoreComputed
		if res.Failed() {
			eventType = kafka.EventScoreFailed
		}
		data := map[string]interface{}{
			"run_id": runID,
			"result": res,
		}
		if err := r.publisher.PublishEvent(ctx, res.AdmissionID, eventType, eventSource, data); err != nil {
			logger.Log.WithError(err).WithField("admission_id", res.AdmissionID).Warn("Failed to publish score result")
		}
	}
}

func (r *Runner) defaultSchemes() []models.SchemeID {
	var out []models.SchemeID
	for _, s := range r.engine.Catalog().Schemes() {
		out = append(out, s.ID)
	}
	return out
}
