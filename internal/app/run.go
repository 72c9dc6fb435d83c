package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/encodelab/fmripipe/internal/config"
	"github.com/encodelab/fmripipe/internal/ctxlog"
	"github.com/encodelab/fmripipe/internal/pipeline"
	"github.com/encodelab/fmripipe/internal/pipespec"
	"github.com/encodelab/fmripipe/internal/splitter"
	"github.com/encodelab/fmripipe/internal/stages"
)

// Run executes the experiment: it builds and fits the task graph, loads
// the per-run data, and computes the fitted pipeline once per
// cross-validation fold.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("app run started")

	vars, err := pipespec.Variables(experimentVars(a.experiment))
	if err != nil {
		return fmt.Errorf("exposing experiment variables: %w", err)
	}
	root, err := a.pipeline.Build(ctx, vars, a.registry.Resolve)
	if err != nil {
		return fmt.Errorf("building pipeline %q: %w", a.pipeline.Name, err)
	}

	pl := pipeline.New()
	if err := pl.Fit(ctx, root); err != nil {
		return err
	}
	a.logger.Info("pipeline fitted", "pipeline", a.pipeline.Name, "order", pl.Order())

	featureRuns, signalRuns, err := a.loadData(ctx)
	if err != nil {
		return err
	}

	runs := a.experiment.Runs()
	folds, err := splitter.Split(runs, a.experiment.NbRunsTest)
	if err != nil {
		return err
	}
	a.logger.Info("cross-validation folds prepared",
		"runs", len(runs), "folds", len(folds), "held_out_per_fold", a.experiment.NbRunsTest)

	index := make(map[int]int, len(runs))
	for i, run := range runs {
		index[run] = i
	}
	for i, f := range folds {
		foldLogger := a.logger.With("execution_id", uuid.New().String(), "fold", i)
		foldCtx := ctxlog.WithLogger(ctx, foldLogger)
		foldLogger.Info("computing fold", "run_test", f.Test)

		out, err := pl.Compute(foldCtx, stages.NewPayload(assembleFold(featureRuns, signalRuns, index, f)))
		if err != nil {
			return fmt.Errorf("computing fold %d: %w", i, err)
		}
		if paths, ok := out[stages.KeySaved].([]string); ok {
			foldLogger.Info("fold artifacts saved", "count", len(paths))
		}
	}

	a.logger.Info("run finished", "folds", len(folds))
	return nil
}

// experimentVars exposes the experiment parameters pipeline definitions
// may reference in option expressions.
func experimentVars(e *config.Experiment) map[string]map[string]any {
	return map[string]map[string]any{
		"experiment": {
			"language":       e.Language,
			"subject":        e.Subject,
			"subject_label":  e.SubjectLabel(),
			"tr":             e.TR,
			"nb_runs":        e.NbRuns,
			"nb_runs_test":   e.NbRunsTest,
			"hrf":            e.HRF,
			"oversampling":   e.Oversampling,
			"scaling_axis":   e.ScalingAxis,
			"temporal_shift": e.TemporalShift,
			"model_set":      e.ModelSetName(),
		},
	}
}
