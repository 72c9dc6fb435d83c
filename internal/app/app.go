package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/encodelab/fmripipe/internal/artifacts"
	"github.com/encodelab/fmripipe/internal/compress"
	"github.com/encodelab/fmripipe/internal/config"
	"github.com/encodelab/fmripipe/internal/ctxlog"
	"github.com/encodelab/fmripipe/internal/estimator"
	"github.com/encodelab/fmripipe/internal/events"
	"github.com/encodelab/fmripipe/internal/hrf"
	"github.com/encodelab/fmripipe/internal/pipespec"
	"github.com/encodelab/fmripipe/internal/stages"
	"github.com/encodelab/fmripipe/internal/transform"
)

// App encapsulates one experiment's dependencies, configuration and
// lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	experiment *config.Experiment
	pipeline   *pipespec.Pipeline
	registry   *stages.Registry
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registry. A
// failure to load or derive configuration is a fatal startup error and
// panics; entrypoints recover it into a clean exit.
func NewApp(outW io.Writer, appConfig *Config, est estimator.Estimator) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("logger configured")

	experiment, err := config.Load(appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load experiment configuration: %w", err))
	}
	logger.Debug("experiment configuration loaded",
		"language", experiment.Language, "subject", experiment.SubjectLabel(),
		"models", len(experiment.Models))

	deps, err := buildDeps(experiment, est)
	if err != nil {
		panic(fmt.Errorf("failed to derive pipeline collaborators: %w", err))
	}
	registry := stages.DefaultRegistry(deps)
	logger.Debug("stage ops registered", "ops", registry.Ops())

	file, err := pipespec.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		panic(fmt.Errorf("failed to load pipeline definition: %w", err))
	}
	pipeline, err := file.Pipeline(appConfig.PipelineName)
	if err != nil {
		panic(fmt.Errorf("failed to select pipeline: %w", err))
	}
	logger.Debug("pipeline definition loaded",
		"pipeline", pipeline.Name, "stages", len(pipeline.Stages))

	return &App{
		outW:       outW,
		logger:     logger,
		experiment: experiment,
		pipeline:   pipeline,
		registry:   registry,
	}
}

// buildDeps derives the stage collaborators from the experiment: the
// compression and transformation engines, the event stores backing them
// and the artifact store outputs land in.
func buildDeps(e *config.Experiment, est estimator.Estimator) (stages.Deps, error) {
	comp, err := compress.New(e.CompressionSpecs())
	if err != nil {
		return stages.Deps{}, fmt.Errorf("building compressor: %w", err)
	}
	scans, err := e.ScanCounts()
	if err != nil {
		return stages.Deps{}, err
	}
	model, err := hrf.ParseModel(e.HRF)
	if err != nil {
		return stages.Deps{}, err
	}

	tf, err := transform.New(transform.Params{
		TR:            e.TR,
		NScans:        scans,
		Language:      e.Language,
		HRF:           model,
		Oversampling:  e.Oversampling,
		TemporalShift: e.TemporalShift,
		ScalingAxis:   e.ScalingAxis,
		WithMean:      e.WithMean,
		WithStd:       e.WithStd,
		Models:        e.TransformModels(comp.OutputColumns()),
		Offsets:       events.DirOffsetStore{Root: e.OffsetPath},
		Durations:     events.DirDurationStore{Root: e.DurationPath},
	})
	if err != nil {
		return stages.Deps{}, fmt.Errorf("building transformer: %w", err)
	}

	store := artifacts.Store{
		Root:     e.OutputPath,
		Language: e.Language,
		Subject:  e.SubjectLabel(),
	}
	return stages.Deps{
		Transformer: tf,
		Compressor:  comp,
		Artifacts:   &store,
		ModelSet:    e.ModelSetName(),
		Estimator:   est,
	}, nil
}

// Registry returns the application's stage registry. This is primarily
// for testing.
func (a *App) Registry() *stages.Registry {
	return a.registry
}

// Experiment returns the loaded experiment configuration. This is
// primarily for testing.
func (a *App) Experiment() *config.Experiment {
	return a.experiment
}
