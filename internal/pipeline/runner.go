// Package pipeline orchestrates the four-stage retention pipeline:
// prepare, aggregate, export, publish. Stages run strictly in order;
// each stage's output is the next stage's input.
package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"retflow/internal/dashboard"
	"retflow/internal/notify"
	"retflow/internal/observability"
	"retflow/internal/retention"
	"retflow/internal/storage"
	"retflow/internal/warehouse"
	"retflow/pkg/errors"
	"retflow/pkg/models"
)

// Stage names, in execution order.
const (
	StagePrepare   = "prepare"
	StageAggregate = "aggregate"
	StageExport    = "export"
	StagePublish   = "publish"
)

// RunOptions controls a pipeline run.
type RunOptions struct {
	SkipPrepare bool
	DryRun      bool
	Apply       bool // execute the tuning plan instead of just printing it
	Backup      bool // snapshot the sessions table before layout changes
	Verify      bool // re-tally a sample after aggregation
	KeepLocal   bool
	Offsets     []int
}

// StageResult is one stage's outcome.
type StageResult struct {
	Stage    string
	Duration time.Duration
	Detail   string
	Err      error
}

// Result is the outcome of a full pipeline run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Status     string
	Stages     []StageResult
	Err        error
}

// Runner wires the stages together.
type Runner struct {
	cfg      *models.Config
	logger   *observability.Logger
	wh       *warehouse.Service
	store    storage.ObjectStorage
	pub      *dashboard.Publisher
	notifier *notify.Notifier
	history  *History
}

// NewRunner creates a pipeline runner over the given services.
func NewRunner(cfg *models.Config, wh *warehouse.Service, store storage.ObjectStorage, pub *dashboard.Publisher, notifier *notify.Notifier, logger *observability.Logger) *Runner {
	if logger == nil {
		logger = observability.Default()
	}
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		wh:       wh,
		store:    store,
		pub:      pub,
		notifier: notifier,
		history:  NewHistory(),
	}
}

// WithHistory overrides the history sink, for tests.
func (r *Runner) WithHistory(h *History) *Runner {
	r.history = h
	return r
}

// NewRunID generates a run identifier.
func NewRunID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return fmt.Sprintf("run-%x", bytes)
}

// Offsets returns the effective offsets for a run.
func (r *Runner) Offsets(opts RunOptions) []int {
	if len(opts.Offsets) > 0 {
		return opts.Offsets
	}
	if len(r.cfg.Retention.Offsets) > 0 {
		return r.cfg.Retention.Offsets
	}
	return retention.DefaultOffsets
}

// DesiredLayout derives the target physical layout for the sessions
// table from the aggregation shape: distribute by user so distinct
// counts stay node-local, order by the dates the scan groups and
// filters on.
func DesiredLayout(cfg models.Retention) warehouse.Layout {
	return warehouse.Layout{
		DistKey:  cfg.UserColumn,
		SortKeys: []string{cfg.CohortDateColumn, cfg.SessionDateColumn},
	}
}

// Run executes the full pipeline. Any stage failure terminates the
// run; the partial result is still recorded and returned alongside
// the error.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	runID := NewRunID()
	result := &Result{
		RunID:     runID,
		StartedAt: time.Now(),
		Status:    "completed",
	}
	log := r.logger.WithField("run_id", runID)
	log.Info("pipeline run starting", map[string]interface{}{
		"offsets":      r.Offsets(opts),
		"skip_prepare": opts.SkipPrepare,
		"dry_run":      opts.DryRun,
	})

	stages := []struct {
		name string
		skip bool
		fn   func(context.Context) (string, error)
	}{
		{StagePrepare, opts.SkipPrepare, func(ctx context.Context) (string, error) {
			return r.prepareStage(ctx, runID, opts)
		}},
		{StageAggregate, false, func(ctx context.Context) (string, error) {
			return r.aggregateStage(ctx, opts)
		}},
		{StageExport, false, func(ctx context.Context) (string, error) {
			return r.exportStage(ctx, runID, opts)
		}},
		{StagePublish, false, func(ctx context.Context) (string, error) {
			return r.publishStage(ctx, runID, opts)
		}},
	}

	for _, stage := range stages {
		if stage.skip {
			continue
		}

		stageLog := log.WithField("stage", stage.name)
		stageLog.Info("stage starting")
		start := time.Now()

		detail, err := stage.fn(ctx)
		sr := StageResult{
			Stage:    stage.name,
			Duration: time.Since(start),
			Detail:   detail,
			Err:      err,
		}
		result.Stages = append(result.Stages, sr)

		if err != nil {
			stageLog.Error("stage failed", map[string]interface{}{
				"duration": sr.Duration.String(),
				"error":    err.Error(),
			})
			result.Status = "failed"
			result.Err = err
			break
		}
		stageLog.Info("stage completed", map[string]interface{}{
			"duration": sr.Duration.String(),
			"detail":   detail,
		})
	}

	result.Duration = time.Since(result.StartedAt)
	r.record(ctx, result, opts)

	if result.Err != nil {
		return result, result.Err
	}
	log.Info("pipeline run completed", map[string]interface{}{"duration": result.Duration.String()})
	return result, nil
}

func (r *Runner) prepareStage(ctx context.Context, runID string, opts RunOptions) (string, error) {
	_, steps, err := r.PreparePlan(ctx, opts)
	if err != nil {
		return "", err
	}

	if len(steps) == 0 {
		return "layout already satisfactory", nil
	}
	if opts.DryRun || !opts.Apply {
		return fmt.Sprintf("%d tuning steps planned (not applied)", len(steps)), nil
	}

	if opts.Backup {
		tuner := warehouse.NewTuner(r.wh)
		backup, err := tuner.BackupTable(ctx, r.cfg.Retention.SessionsTable, runID)
		if err != nil {
			return "", err
		}
		r.logger.Info("sessions table backed up", map[string]interface{}{
			"run_id": runID,
			"backup": backup,
		})
	}

	results, err := warehouse.NewTuner(r.wh).Apply(ctx, steps)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d tuning steps applied", len(results)), nil
}

// PreparePlan inspects the sessions table and plans tuning steps
// without applying them.
func (r *Runner) PreparePlan(ctx context.Context, opts RunOptions) (*warehouse.TableReport, []warehouse.TuningStep, error) {
	if err := r.wh.Connect(ctx); err != nil {
		return nil, nil, err
	}

	tuner := warehouse.NewTuner(r.wh)
	sample := retention.BuildAggregateQuery(r.wh.Dialect(), r.cfg.Retention, r.Offsets(opts))
	report, err := tuner.Inspect(ctx, r.cfg.Warehouse.Schema, r.cfg.Retention.SessionsTable, DesiredLayout(r.cfg.Retention), sample)
	if err != nil {
		return nil, nil, err
	}

	return report, tuner.Plan(report), nil
}

func (r *Runner) aggregateStage(ctx context.Context, opts RunOptions) (string, error) {
	if err := r.wh.Connect(ctx); err != nil {
		return "", err
	}

	agg, err := retention.NewAggregator(r.wh, r.cfg.Retention, r.Offsets(opts))
	if err != nil {
		return "", err
	}

	if opts.DryRun {
		return fmt.Sprintf("would materialize %s", r.cfg.Retention.AggregateTable), nil
	}

	rows, err := agg.Run(ctx)
	if err != nil {
		return "", err
	}

	if opts.Verify {
		if err := agg.Verify(ctx, r.cfg.Retention.VerifySampleDays); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d cohort rows materialized and verified", rows), nil
	}
	return fmt.Sprintf("%d cohort rows materialized", rows), nil
}

func (r *Runner) exportStage(ctx context.Context, runID string, opts RunOptions) (string, error) {
	if opts.DryRun {
		paths := PathsFor(r.cfg.Storage)
		return fmt.Sprintf("would unload to %s and convert to %s", paths.ParquetKey, paths.ConvertedKey), nil
	}

	if err := r.wh.Connect(ctx); err != nil {
		return "", err
	}

	exporter := NewExporter(r.wh, r.store, r.cfg, r.Offsets(opts), r.logger)
	res, err := exporter.Export(ctx, runID, opts.KeepLocal)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d rows converted, stored at %s", res.Rows, res.ConvertedKey), nil
}

func (r *Runner) publishStage(ctx context.Context, runID string, opts RunOptions) (string, error) {
	if opts.DryRun {
		return fmt.Sprintf("would publish to folder %q", r.cfg.Dashboard.Folder), nil
	}
	if r.pub == nil {
		return "", errors.New(errors.ErrCodeConfigMissing, "Dashboard is not configured").
			WithSuggestions("Run 'retflow setup' to configure the dashboard server")
	}

	workDir, err := os.MkdirTemp("", "retflow-publish-*")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create work directory")
	}
	if !opts.KeepLocal {
		defer os.RemoveAll(workDir)
	}

	paths := PathsFor(r.cfg.Storage)
	localPath := filepath.Join(workDir, "retention.db")

	res, err := r.pub.Publish(ctx, paths.ConvertedKey, localPath, runID)
	if err != nil {
		return "", err
	}
	if res.AlreadyPublished {
		return fmt.Sprintf("data source %q already current in folder %q", res.DataSource, res.Folder), nil
	}
	return fmt.Sprintf("data source %q created in folder %q", res.DataSource, res.Folder), nil
}

// record appends the run to history and fires the webhook. Neither
// failure affects the run outcome.
func (r *Runner) record(ctx context.Context, result *Result, opts RunOptions) {
	rec := Record{
		RunID:      result.RunID,
		StartedAt:  result.StartedAt,
		FinishedAt: result.StartedAt.Add(result.Duration),
		Status:     result.Status,
		Offsets:    r.Offsets(opts),
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}

	stageDurations := make(map[string]string, len(result.Stages))
	for _, s := range result.Stages {
		status := "completed"
		errText := ""
		if s.Err != nil {
			status = "failed"
			errText = s.Err.Error()
		}
		rec.Stages = append(rec.Stages, StageRecord{
			Stage:    s.Stage,
			Status:   status,
			Duration: s.Duration.String(),
			Detail:   s.Detail,
			Error:    errText,
		})
		stageDurations[s.Stage] = s.Duration.String()
	}

	if err := r.history.Append(rec); err != nil {
		r.logger.Warn("failed to record run history", map[string]interface{}{
			"run_id": result.RunID,
			"error":  err.Error(),
		})
	}

	if result.Err != nil {
		r.notifier.RunFailed(ctx, result.RunID, result.Err, stageDurations)
	} else {
		r.notifier.RunCompleted(ctx, result.RunID, result.Duration, stageDurations)
	}
}
