package app

import (
	"context"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/estimator"
	"github.com/encodelab/fmripipe/internal/features"
	"github.com/encodelab/fmripipe/internal/splitter"
)

// loadData reads the per-run representation matrices and, when an fMRI
// data root is configured, the matching signal matrices. Both lists are
// ordered by run.
func (a *App) loadData(ctx context.Context) (featureRuns, signalRuns []*mat.Dense, err error) {
	source := features.Source{Root: a.experiment.InputPath, Language: a.experiment.Language}
	paths := make([][]string, len(a.experiment.Models))
	for i, m := range a.experiment.Models {
		paths[i], err = source.RunPaths(m.Name, m.InputTemplate)
		if err != nil {
			return nil, nil, err
		}
	}
	featureRuns, err = features.LoadRuns(ctx, paths, a.experiment.FeatureModels())
	if err != nil {
		return nil, nil, err
	}
	if len(featureRuns) != a.experiment.NbRuns {
		return nil, nil, fmt.Errorf("found %d feature runs, experiment declares %d",
			len(featureRuns), a.experiment.NbRuns)
	}

	if a.experiment.FMRIDataPath == "" {
		return featureRuns, nil, nil
	}
	signalPaths, err := features.SignalPaths(a.experiment.FMRIDataPath,
		a.experiment.Language, a.experiment.SubjectLabel())
	if err != nil {
		return nil, nil, err
	}
	signalRuns, err = features.LoadSignals(ctx, signalPaths)
	if err != nil {
		return nil, nil, err
	}
	if len(signalRuns) != len(featureRuns) {
		return nil, nil, fmt.Errorf("loaded %d signal runs for %d feature runs",
			len(signalRuns), len(featureRuns))
	}
	if a.experiment.AddNoise {
		features.JitterConstantColumns(signalRuns, rand.New(rand.NewSource(a.experiment.Seed)))
	}
	return featureRuns, signalRuns, nil
}

// assembleFold gathers one fold's matrices by run number. The signal list
// may be nil.
func assembleFold(featureRuns, signalRuns []*mat.Dense, index map[int]int, f splitter.Fold) estimator.Fold {
	fold := estimator.Fold{
		XTrain:   pick(featureRuns, index, f.Train),
		XTest:    pick(featureRuns, index, f.Test),
		RunTrain: f.Train,
		RunTest:  f.Test,
	}
	if signalRuns != nil {
		fold.YTrain = pick(signalRuns, index, f.Train)
		fold.YTest = pick(signalRuns, index, f.Test)
	}
	return fold
}

func pick(matrices []*mat.Dense, index map[int]int, runs []int) []*mat.Dense {
	out := make([]*mat.Dense, len(runs))
	for i, run := range runs {
		out[i] = matrices[index[run]]
	}
	return out
}
