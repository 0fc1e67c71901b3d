// Package training runs one configuration end to end: it extracts the train
// and test windows, weighs the classes, resumes or creates the checkpoint
// for the hyperparameter key, fits when required and scores the test split.
package training

import (
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/menta2k/frontlearn/internal/config"
	"github.com/menta2k/frontlearn/pkg/balance"
	"github.com/menta2k/frontlearn/pkg/checkpoint"
	"github.com/menta2k/frontlearn/pkg/extraction"
	"github.com/menta2k/frontlearn/pkg/model"
	"github.com/menta2k/frontlearn/pkg/types"
)

// ValidationSplit is the trailing fraction of training samples held out from
// gradient updates
const ValidationSplit = 0.1

// Result is the outcome of one configuration
type Result struct {
	Accuracy float64
	Loss     float64

	Decision       checkpoint.Decision
	CheckpointPath string
	// Saves counts checkpoint writes during this run
	Saves int

	Topology     model.Topology
	ClassWeights balance.Weights
	Seed         uint64

	Train *extraction.Dataset
	Test  *extraction.Dataset

	// History is nil when the model was not fitted
	History *model.History
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger used for progress output
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithClassifierFactory replaces the model constructor
func WithClassifierFactory(f model.Factory) Option {
	return func(o *Orchestrator) {
		o.newClassifier = f
	}
}

// Orchestrator drives the train-or-resume workflow over a filesystem
type Orchestrator struct {
	fs            afero.Fs
	store         *checkpoint.Store
	newClassifier model.Factory
	log           logrus.FieldLogger
}

// New creates an Orchestrator; a nil fs means the OS filesystem
func New(fs afero.Fs, opts ...Option) *Orchestrator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	o := &Orchestrator{
		fs:            fs,
		store:         checkpoint.NewStore(fs),
		newClassifier: model.NewClassifier,
		log:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TrainOrResume runs cfg to completion. Configuration problems are returned
// as *types.ConfigurationError, extraction failures unchanged, and anything
// failing in the model or checkpoint as *types.TrainingError.
func (o *Orchestrator) TrainOrResume(cfg *config.Config) (*Result, error) {
	if cfg == nil {
		return nil, &types.ConfigurationError{Field: "config", Reason: "required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := rand.Uint64()
	if cfg.Sampling.Seed != nil {
		seed = *cfg.Sampling.Seed
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	log := o.log.WithFields(logrus.Fields{
		"glacier": cfg.Dataset.GlacierName,
		"suffix":  cfg.Dataset.Suffix,
	})

	extractor, err := extraction.New(o.fs, extraction.Config{
		Window:   cfg.Window(),
		NWindows: cfg.Sampling.NWindows,
		Suffix:   cfg.Dataset.Suffix,
		ImageExt: cfg.Dataset.ImageExt,
		MaskFrom: cfg.Dataset.MaskFrom,
		MaskTo:   cfg.Dataset.MaskTo,
	}, rng)
	if err != nil {
		return nil, err
	}

	result := &Result{
		CheckpointPath: cfg.CheckpointPath(),
		Topology:       model.Sliding(cfg.Window(), cfg.Training.NRelu),
		Seed:           seed,
	}
	for _, split := range types.Splits() {
		ds, err := extractor.Extract(cfg.SplitDir(split))
		if err != nil {
			return nil, err
		}
		switch split {
		case types.Train:
			result.Train = ds
		case types.Test:
			result.Test = ds
		}
	}
	negative, positive := result.Train.Counts()
	log.WithFields(logrus.Fields{
		"train":     result.Train.Len(),
		"test":      result.Test.Len(),
		"positives": positive,
		"negatives": negative,
	}).Info("Extracted windows")

	result.ClassWeights, err = balance.Compute(result.Train.Labels, cfg.Training.ImbalanceRatio)
	if err != nil {
		return nil, &types.TrainingError{Op: "compute class weights", Err: err}
	}

	artifact, err := o.store.Resolve(result.CheckpointPath)
	if err != nil {
		return nil, &types.TrainingError{Op: "resolve checkpoint", Err: err}
	}
	result.Decision = checkpoint.Decide(artifact, cfg.Training.Retrain)
	log.WithFields(logrus.Fields{
		"decision":      result.Decision,
		"checkpoint":    result.CheckpointPath,
		"class_weights": result.ClassWeights.String(),
		"topology":      result.Topology.String(),
	}).Info("Resolved checkpoint")

	clf, err := o.newClassifier(result.Topology, rng)
	if err != nil {
		return nil, &types.TrainingError{Op: "build model", Err: err}
	}
	if result.Decision.LoadsWeights() {
		if err := clf.SetWeights(artifact.Weights); err != nil {
			return nil, &types.TrainingError{Op: "load checkpoint", Err: err}
		}
	}
	if err := clf.Compile(cfg.Training.LearningRate); err != nil {
		return nil, &types.TrainingError{Op: "compile model", Err: err}
	}

	if result.Decision.Fits() {
		saver := checkpoint.NewBestLossSaver(o.store, result.CheckpointPath, log)
		result.History, err = clf.Fit(result.Train.Patches, result.Train.Labels, model.FitOptions{
			Epochs:          cfg.Training.Epochs,
			BatchSize:       cfg.Training.Batches,
			ValidationSplit: ValidationSplit,
			Shuffle:         true,
			ClassWeights:    result.ClassWeights,
			Callbacks:       []model.Callback{saver},
			Logger:          log,
		})
		result.Saves = saver.Saves()
		if err != nil {
			return nil, &types.TrainingError{Op: "fit", Err: err}
		}
	}

	eval, err := clf.Evaluate(result.Test.Patches, result.Test.Labels)
	if err != nil {
		return nil, &types.TrainingError{Op: "evaluate", Err: err}
	}
	result.Accuracy, result.Loss = eval.Accuracy, eval.Loss

	log.WithFields(logrus.Fields{
		"accuracy": result.Accuracy,
		"loss":     result.Loss,
		"decision": result.Decision,
	}).Info("Evaluated test split")
	return result, nil
}
