// Package pipeline runs the per-unit expense analysis batch.
//
// A run has two stages:
//   - the shared upfront stage extracts the ledger and the budget, fills
//     missing dimensions, classifies projects as exclusive or shared and
//     integrates realized spend with the annual budget
//   - the unit loop slices that dataset per business unit, computes every
//     aggregate and insight, and hands the resulting report to the writer
//
// A failure in the upfront stage aborts the run. A failure inside one unit
// is logged at critical severity and the loop moves on to the next unit.
//
// Example usage:
//
//	p, err := pipeline.New(config, source, writer, log)
//	p.AddProgressCallback(func(progress *pipeline.Progress) {
//		fmt.Printf("%.0f%% %s\n", progress.PercentComplete, progress.CurrentUnit)
//	})
//	result, err := p.Run(ctx)
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"expense-analyzer/internal/aggregation"
	"expense-analyzer/internal/extract"
	"expense-analyzer/internal/insights"
	"expense-analyzer/internal/models"
	"expense-analyzer/internal/reporter"
	"expense-analyzer/pkg/errors"
	"expense-analyzer/pkg/logger"
)

// ArtifactWriter persists the report of one unit
type ArtifactWriter interface {
	WriteArtifacts(report *reporter.UnitReport) ([]reporter.Artifact, error)
}

// Progress tracks the unit loop of a run
type Progress struct {
	RunID           string        `json:"run_id"`
	TotalUnits      int           `json:"total_units"`
	CompletedUnits  int           `json:"completed_units"`
	FailedUnits     int           `json:"failed_units"`
	CurrentUnit     string        `json:"current_unit"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called after every unit
type ProgressCallback func(*Progress)

// Pipeline runs the batch over a source
type Pipeline struct {
	config     Config
	source     extract.Source
	writer     ArtifactWriter
	detector   *insights.ContextualDetector
	clusterer  *insights.AccountClusterer
	logger     logger.Logger
	clock      func() time.Time
	newRunID   func() string
	callbacks  []ProgressCallback
	progress   Progress
	progressMu sync.RWMutex
}

// New creates a pipeline. The configuration is copied and validated.
func New(config Config, source extract.Source, writer ArtifactWriter, log logger.Logger) (*Pipeline, error) {
	if source == nil {
		return nil, errors.ValidationError(
			errors.CodeMissingField,
			"source",
			nil,
			nil,
		).WithSuggestion("Provide a ledger source (csv or postgres)")
	}
	if writer == nil {
		return nil, errors.ValidationError(
			errors.CodeMissingField,
			"artifact_writer",
			nil,
			nil,
		).WithSuggestion("Provide a report writer")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"pipeline",
			config.Year,
			err,
		).WithSuggestion("Check the run parameters")
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("pipeline")

	return &Pipeline{
		config:    config,
		source:    source,
		writer:    writer,
		detector:  insights.NewContextualDetector(config.Contextual, log),
		clusterer: insights.NewAccountClusterer(config.Clusters, log),
		logger:    log,
		clock:     time.Now,
		newRunID:  uuid.NewString,
	}, nil
}

// AddProgressCallback adds a progress callback function
func (p *Pipeline) AddProgressCallback(callback ProgressCallback) {
	p.callbacks = append(p.callbacks, callback)
}

// GetProgress returns a copy of the current progress
func (p *Pipeline) GetProgress() Progress {
	p.progressMu.RLock()
	defer p.progressMu.RUnlock()
	return p.progress
}

// Dataset is the output of the upfront stage shared by every unit
type Dataset struct {
	// Transactions are the cleaned, sharing-classified ledger rows
	Transactions []models.Transaction
	// Integrated joins realized spend with the annual budget
	Integrated []models.IntegratedRow
	// GlobalProjects is the participation denominator of every unit
	GlobalProjects aggregation.ProjectTotals
}

// UnitStatus is the outcome of one unit
type UnitStatus = reporter.UnitStatus

// UnitOutcome records what happened to one unit
type UnitOutcome struct {
	Unit      string              `json:"unit"`
	Status    UnitStatus          `json:"status"`
	Error     error               `json:"-"`
	Artifacts []reporter.Artifact `json:"artifacts,omitempty"`
	Duration  time.Duration       `json:"duration"`
}

// BatchResult is the outcome of a run
type BatchResult struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	Year       int           `json:"year"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Units      []UnitOutcome `json:"units"`
}

// Failed returns the units that did not complete
func (r *BatchResult) Failed() []UnitOutcome {
	var out []UnitOutcome
	for _, u := range r.Units {
		if u.Status == reporter.UnitFailed {
			out = append(out, u)
		}
	}
	return out
}

// Err summarizes the unit failures, nil when every unit completed
func (r *BatchResult) Err() error {
	var failures []*errors.AnalyzerError
	for _, u := range r.Failed() {
		failures = append(failures, errors.WrapIfNeeded(u.Error, errors.CategoryProcessing, errors.CodeUnitFailed, "unit "+u.Unit+" failed"))
	}
	if len(failures) == 0 {
		return nil
	}
	return errors.NewErrorSummary(failures)
}

// Manifest converts the result into the run manifest
func (r *BatchResult) Manifest() *reporter.Manifest {
	m := &reporter.Manifest{
		RunID:      r.RunID,
		Source:     r.Source,
		Year:       r.Year,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, u := range r.Units {
		entry := reporter.ManifestUnit{Unit: u.Unit, Status: u.Status, Artifacts: u.Artifacts}
		if u.Error != nil {
			entry.Error = u.Error.Error()
		}
		m.Units = append(m.Units, entry)
	}
	return m
}

// Run executes the batch: the upfront stage, then every unit in order
func (p *Pipeline) Run(ctx context.Context) (*BatchResult, error) {
	result := &BatchResult{
		RunID:     p.newRunID(),
		Source:    p.source.Name(),
		Year:      p.config.Year,
		StartedAt: p.clock(),
	}
	log := p.logger.WithFields(logger.Fields{
		"run_id": result.RunID,
		"source": result.Source,
		"year":   result.Year,
	})
	log.Info("Starting expense analysis run")

	dataset, err := p.Prepare(ctx)
	if err != nil {
		log.WithError(err).Critical("Upfront stage failed, aborting run")
		return nil, err
	}

	units := p.selectUnits(dataset.Transactions)
	p.initializeProgress(result.RunID, len(units))
	tracker := logger.NewProgressTracker("unit_analysis", len(units), log)

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("Run cancelled, remaining units skipped")
			break
		}
		outcome := p.runUnit(ctx, result.RunID, dataset, unit)
		result.Units = append(result.Units, outcome)
		tracker.Step(unit, outcome.Error)
		p.updateProgress(unit, outcome.Status == reporter.UnitFailed)
	}
	tracker.Complete()

	result.FinishedAt = p.clock()
	log.WithFields(logger.Fields{
		"units":    len(result.Units),
		"failed":   len(result.Failed()),
		"duration": result.FinishedAt.Sub(result.StartedAt),
	}).Info("Expense analysis run completed")
	return result, nil
}

// Prepare runs the upfront stage. Any error is fatal for the run.
func (p *Pipeline) Prepare(ctx context.Context) (dataset *Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.InternalError(errors.CodePanic, "upfront_stage", fmt.Errorf("%v", r)).
				WithContext("stack", string(debug.Stack()))
		}
	}()

	filter := extract.Filter{Year: p.config.Year}
	var raw *extract.Dataset
	err = logger.TimedOperation("extract", p.logger, func() (loadErr error) {
		raw, loadErr = extract.Load(ctx, p.source, filter, p.config.BudgetPeriod)
		return loadErr
	})
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryExtraction, errors.CodeQueryFailed, "failed to extract ledger and budget")
	}
	if len(raw.Transactions) == 0 {
		return nil, errors.ExtractionError(
			errors.CodeEmptyExtraction,
			p.source.Name(),
			fmt.Errorf("no ledger rows for %d", p.config.Year),
		).WithSuggestion("Check the year and the source filters")
	}
	p.logger.WithFields(logger.Fields{
		"ledger_rows": len(raw.Transactions),
		"budget_rows": len(raw.Budget),
	}).Info("Extraction completed")

	txs := aggregation.FillMissing(raw.Transactions)
	if p.config.MonthOverride > 0 {
		// sharing and integration still see the whole year
		p.logger.WithField("month", p.config.MonthOverride).Warn("Month override active, unit analyses ignore later months")
	}

	sharing := aggregation.ClassifySharing(txs)
	txs = aggregation.ApplySharing(txs, sharing)
	integrated := aggregation.Integrate(txs, aggregation.AnnualBudget(raw.Budget))
	if len(raw.Budget) == 0 {
		p.logger.Warn("No budget rows, every project is integrated with a zero budget")
	}

	p.logger.WithFields(logger.Fields{
		"projects":        len(sharing),
		"integrated_rows": len(integrated),
	}).Info("Integration completed")

	return &Dataset{
		Transactions:   txs,
		Integrated:     integrated,
		GlobalProjects: aggregation.GlobalProjectTotals(txs),
	}, nil
}

// selectUnits returns the configured units, or every unit of the ledger
func (p *Pipeline) selectUnits(txs []models.Transaction) []string {
	if len(p.config.Units) > 0 {
		return p.config.Units
	}
	return aggregation.BusinessUnits(txs)
}

// runUnit analyzes and writes one unit. Panics and errors are contained here.
func (p *Pipeline) runUnit(ctx context.Context, runID string, dataset *Dataset, unit string) (outcome UnitOutcome) {
	start := p.clock()
	outcome = UnitOutcome{Unit: unit, Status: reporter.UnitOK}
	log := p.logger.WithFields(logger.Fields{"run_id": runID, "unit": unit})

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = reporter.UnitFailed
			outcome.Error = errors.InternalError(errors.CodePanic, "unit_analysis", fmt.Errorf("%v", r)).
				WithContext("unit", unit)
			log.WithField("stack", string(debug.Stack())).WithError(outcome.Error).Critical("Unit processing panicked, skipping")
		}
		outcome.Duration = p.clock().Sub(start)
	}()

	log.Info("Processing unit")
	analysis, err := p.AnalyzeUnit(ctx, dataset, unit)
	if err != nil {
		outcome.Status = reporter.UnitFailed
		outcome.Error = err
		log.WithError(err).Critical("Unit processing failed, skipping")
		return outcome
	}

	report := p.BuildReport(runID, analysis)
	artifacts, err := p.writer.WriteArtifacts(report)
	outcome.Artifacts = artifacts
	if err != nil {
		outcome.Status = reporter.UnitFailed
		outcome.Error = err
		log.WithError(err).Critical("Unit report could not be written")
		return outcome
	}

	log.WithField("artifacts", len(artifacts)).Info("Unit completed")
	return outcome
}

func (p *Pipeline) initializeProgress(runID string, total int) {
	p.progressMu.Lock()
	p.progress = Progress{
		RunID:      runID,
		TotalUnits: total,
		StartTime:  p.clock(),
	}
	p.progressMu.Unlock()
}

func (p *Pipeline) updateProgress(unit string, failed bool) {
	p.progressMu.Lock()
	p.progress.CompletedUnits++
	if failed {
		p.progress.FailedUnits++
	}
	p.progress.CurrentUnit = unit
	if p.progress.TotalUnits > 0 {
		p.progress.PercentComplete = float64(p.progress.CompletedUnits) / float64(p.progress.TotalUnits) * 100
	}
	p.progress.ElapsedTime = p.clock().Sub(p.progress.StartTime)
	snapshot := p.progress
	p.progressMu.Unlock()

	for _, callback := range p.callbacks {
		callback(&snapshot)
	}
}
