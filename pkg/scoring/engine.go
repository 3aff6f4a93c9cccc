package scoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/comorbidity/pkg/common/logger"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"github.com/synaptica-ai/comorbidity/pkg/observability/metrics"
	"github.com/synaptica-ai/comorbidity/pkg/scoring/oasis"
	"github.com/synaptica-ai/comorbidity/pkg/terminology"
)

type Options struct {
	Primary PrimaryPolicy
	// HFRSLookback overrides the two calendar-year lookback when positive.
	HFRSLookback time.Duration
	Workers      int
}

// Engine scores admissions against a loaded catalog. A catalog is only
// handed to NewEngine after it validated, so constructing an Engine is the
// startup barrier; afterwards the engine holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	catalog   *terminology.Catalog
	mapper    *Mapper
	resolvers map[models.SchemeID]*Resolver
	collector *Collector
	oasis     *oasis.Model
	policy    PrimaryPolicy
	workers   int
	digest    uint64
}

func NewEngine(catalog *terminology.Catalog, opts Options) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("scoring engine requires a reference catalog")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	e := &Engine{
		catalog:   catalog,
		mapper:    NewMapper(catalog),
		resolvers: make(map[models.SchemeID]*Resolver),
		collector: &Collector{Lookback: opts.HFRSLookback},
		oasis:     oasis.NewModel(),
		policy:    opts.Primary,
		workers:   opts.Workers,
		digest:    catalogDigest(catalog),
	}
	for _, s := range catalog.Schemes() {
		e.resolvers[s.ID] = NewResolver(s)
	}
	return e, nil
}

// WithOASISModel returns a copy of the engine that converts OASIS totals
// with a recalibrated model.
func (e *Engine) WithOASISModel(m *oasis.Model) *Engine {
	clone := *e
	clone.oasis = m
	return &clone
}

func (e *Engine) Catalog() *terminology.Catalog {
	return e.catalog
}

func (e *Engine) Policy() PrimaryPolicy {
	return e.policy
}

// Supports reports whether the engine can score the scheme.
func (e *Engine) Supports(id models.SchemeID) bool {
	if id == models.SchemeOASIS {
		return true
	}
	_, ok := e.catalog.Scheme(id)
	return ok
}

// Job is one (admission, scheme) computation. A nil Policy uses the
// engine's configured primary-diagnosis policy.
type Job struct {
	Input  models.ScoringInput
	Scheme models.SchemeID
	Policy *PrimaryPolicy
}

func (e *Engine) Score(input models.ScoringInput, scheme models.SchemeID) models.ScoreResult {
	return e.ScoreJob(Job{Input: input, Scheme: scheme})
}

// ScoreJob never returns an error: faults are recorded in the result.
func (e *Engine) ScoreJob(job Job) (result models.ScoreResult) {
	start := time.Now()
	policy := e.policy
	if job.Policy != nil {
		policy = *job.Policy
	}
	admissionID := job.Input.Admission.AdmissionID

	defer func() {
		if r := recover(); r != nil {
			err := AdmissionError{AdmissionID: admissionID, reason: fmt.Errorf("%w: %v", ErrScoringPanic, r)}
			result = failedResult(admissionID, job.Scheme, err)
		}
		if result.Failed() {
			logger.Log.WithFields(logrus.Fields{
				"admission_id": admissionID,
				"scheme":       job.Scheme,
				"error_code":   result.ErrorCode,
			}).Warn(result.Error)
		}
		label := string(job.Scheme)
		if !e.Supports(job.Scheme) {
			label = metrics.SchemeUnknown
		}
		metrics.ObserveResult(label, result.Failed(), time.Since(start))
	}()

	var err error
	if job.Scheme == models.SchemeOASIS {
		result, err = e.scoreOASIS(job.Input)
	} else {
		result, err = e.scoreDiagnoses(job.Input, job.Scheme, policy)
	}
	if err != nil {
		return failedResult(admissionID, job.Scheme, err)
	}
	result.AdmissionID = admissionID
	result.Scheme = job.Scheme
	result.Fingerprint = e.Fingerprint(job.Input, job.Scheme, policy)
	return result
}

// ScoreBatch scores every job on a bounded worker pool. Results keep the
// order of jobs. Jobs not started before ctx is done are reported as
// canceled; a fault in one job never affects another.
func (e *Engine) ScoreBatch(ctx context.Context, jobs []Job) []models.ScoreResult {
	results := make([]models.ScoreResult, len(jobs))
	workers := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		if ctx.Err() != nil {
			results[i] = failedResult(job.Input.Admission.AdmissionID, job.Scheme, ctx.Err())
			continue
		}
		select {
		case <-ctx.Done():
			results[i] = failedResult(job.Input.Admission.AdmissionID, job.Scheme, ctx.Err())
			continue
		case workers <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-workers }()
			results[i] = e.ScoreJob(job)
		}(i, job)
	}
	wg.Wait()
	return results
}

func (e *Engine) scoreDiagnoses(input models.ScoringInput, id models.SchemeID, policy PrimaryPolicy) (models.ScoreResult, error) {
	admissionID := input.Admission.AdmissionID
	scheme, ok := e.catalog.Scheme(id)
	if !ok {
		return models.ScoreResult{}, AdmissionError{AdmissionID: admissionID, reason: fmt.Errorf("%w: %q", ErrUnknownScheme, id)}
	}
	if err := validateVersions(admissionID, input.Diagnoses); err != nil {
		return models.ScoreResult{}, err
	}

	history := input.History
	if scheme.Window == terminology.WindowEmergencyLookback {
		history = validHistory(admissionID, history)
	}
	codes := e.collector.Collect(input.Admission, input.Diagnoses, history, scheme, policy)

	flags := NewFlagSet()
	unmapped := make(map[models.ICDVersion]int)
	contributing := make(map[models.ICDVersion]bool)
	for _, d := range codes {
		categories := e.mapper.Categories(d.Code, d.Version, id)
		if len(categories) == 0 {
			unmapped[d.Version]++
			if logger.Log.IsLevelEnabled(logrus.DebugLevel) {
				logger.Log.WithFields(logrus.Fields{
					"scheme":       id,
					"icd_version":  d.Version.Key(),
					"code":         d.Code,
					"admission_id": admissionID,
				}).WithError(ErrUnmappableCode).Debug("code excluded from scoring")
			}
			continue
		}
		contributing[d.Version] = true
		for _, c := range categories {
			flags.Add(c)
		}
	}

	result := Aggregate(e.resolvers[id].Resolve(flags), scheme, input.Admission.Age)

	var totalUnmapped int
	for version, n := range unmapped {
		metrics.ObserveUnmapped(string(id), version.Key(), n)
		totalUnmapped += n
	}
	result.Metadata["codes"] = strconv.Itoa(len(codes))
	result.Metadata["unmapped_codes"] = strconv.Itoa(totalUnmapped)
	for _, v := range scheme.Versions() {
		if !contributing[v] {
			continue
		}
		if table, ok := scheme.Table(v); ok {
			result.Metadata["confidence_"+v.Key()] = string(table.Confidence)
		}
	}
	if scheme.PrimaryExclusion {
		result.Metadata["exclude_by_seq_num"] = strconv.FormatBool(policy.ExcludeBySeqNum)
	}
	if scheme.Window == terminology.WindowEmergencyLookback {
		result.Metadata["window"] = string(scheme.Window)
	}
	return result, nil
}

func (e *Engine) scoreOASIS(input models.ScoringInput) (models.ScoreResult, error) {
	if input.Oasis == nil {
		return models.ScoreResult{}, AdmissionError{AdmissionID: input.Admission.AdmissionID, reason: ErrMissingVitals}
	}
	res := e.oasis.Score(*input.Oasis)
	components := make(map[string]float64, len(res.Components))
	for name, points := range res.Components {
		components[name] = float64(points)
	}
	probability := res.Probability
	result := models.ScoreResult{
		TotalScore:  float64(res.Total),
		Components:  components,
		Probability: &probability,
		Metadata:    map[string]string{},
	}
	if input.Oasis.ICUStayID != "" {
		result.Metadata["icu_stay_id"] = input.Oasis.ICUStayID
	}
	if len(res.Missing) > 0 {
		result.Metadata["missing_components"] = strings.Join(res.Missing, ",")
	}
	return result, nil
}

func validateVersions(admissionID string, codes []models.DiagnosisCode) error {
	for _, d := range codes {
		if _, err := terminology.ParseVersion(int(d.Version)); err != nil {
			return AdmissionError{AdmissionID: admissionID, reason: fmt.Errorf("code %q: %w", d.Code, err)}
		}
	}
	return nil
}

// validHistory drops prior admissions carrying a code of unknown ICD
// version, the same way other history faults degrade to fewer priors.
func validHistory(admissionID string, history []models.AdmissionRecord) []models.AdmissionRecord {
	out := make([]models.AdmissionRecord, 0, len(history))
	for _, rec := range history {
		if err := validateVersions(rec.Admission.AdmissionID, rec.Diagnoses); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"admission_id":       admissionID,
				"prior_admission_id": rec.Admission.AdmissionID,
			}).WithError(err).Warn("Skipping prior admission")
			continue
		}
		out = append(out, rec)
	}
	return out
}

func failedResult(admissionID string, scheme models.SchemeID, err error) models.ScoreResult {
	return models.ScoreResult{
		AdmissionID: admissionID,
		Scheme:      scheme,
		ErrorCode:   errorCode(err),
		Error:       err.Error(),
	}
}
