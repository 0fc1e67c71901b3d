// Package frontlearn learns to find glacier calving fronts in satellite
// imagery with a sliding-window classifier.
//
// Each training run reads a glacier dataset laid out as
//
//	<root>/<GLACIER>.dir/data/{train,test}/images<SUFFIX>/*.png
//	<root>/<GLACIER>.dir/data/{train,test}/labels/*.png
//
// draws random windows from every image, labels a window 1 when more than 1%
// of its mask pixels are front pixels, and trains a small dense classifier on
// the windows. Trained weights are kept in a checkpoint named after every
// hyperparameter, so running the same parameters again resumes instead of
// retraining.
//
// Basic usage:
//
//	package main
//
//	import (
//		"fmt"
//		"log"
//
//		"github.com/menta2k/frontlearn"
//	)
//
//	func main() {
//		learner := frontlearn.New(frontlearn.WithStrict(false))
//
//		reports, err := learner.RunAll([]string{"helheim.params", "jakobshavn.params"})
//		for _, r := range reports {
//			if r.Err == nil {
//				fmt.Printf("%s: accuracy %.4f (%s)\n", r.Label, r.Result.Accuracy, r.Result.Decision)
//			}
//		}
//		if err != nil {
//			log.Fatal(err)
//		}
//	}
//
// A parameter file holds whitespace separated NAME VALUE lines:
//
//	GLACIER_NAME    helheim
//	HALF_HEIGHT     10
//	HALF_WIDTH      10
//	N_WINDOWS       500
//	EPOCHS          20
//	BATCHES         64
//	N_RELU          32
//	IMBALANCE_RATIO 0
//	RETRAIN         n
//
// The package consists of these components:
//
// 1. Extraction (pkg/extraction): sliding-window patches and labels
// 2. Balance (pkg/balance): class weights for the rare front class
// 3. Model (pkg/model): the dense classifier and its fit loop
// 4. Checkpoint (pkg/checkpoint): weight persistence and resume decisions
// 5. Training (pkg/training): the per-configuration workflow
package frontlearn

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/menta2k/frontlearn/internal/config"
	"github.com/menta2k/frontlearn/internal/utils"
	"github.com/menta2k/frontlearn/pkg/extraction"
	"github.com/menta2k/frontlearn/pkg/model"
	"github.com/menta2k/frontlearn/pkg/processing"
	"github.com/menta2k/frontlearn/pkg/training"
	"github.com/menta2k/frontlearn/pkg/types"
)

// Version of the frontlearn library
const Version = "1.0.0"

// FrontLearner runs training configurations one after another
type FrontLearner struct {
	fs        afero.Fs
	log       logrus.FieldLogger
	strict    bool
	base      *config.Config
	factory   model.Factory
	processor *processing.Processor
	trainer   *training.Orchestrator
}

// Option configures a FrontLearner
type Option func(*FrontLearner)

// WithFs sets the filesystem datasets and checkpoints live on
func WithFs(fs afero.Fs) Option {
	return func(fl *FrontLearner) {
		fl.fs = fs
	}
}

// WithLogger sets the logger for progress output
func WithLogger(log logrus.FieldLogger) Option {
	return func(fl *FrontLearner) {
		fl.log = log
	}
}

// WithStrict stops RunAll at the first failing configuration
func WithStrict(strict bool) Option {
	return func(fl *FrontLearner) {
		fl.strict = strict
	}
}

// WithBase sets the defaults parameter files are applied over. A nil
// config restores config.Default().
func WithBase(cfg *config.Config) Option {
	return func(fl *FrontLearner) {
		fl.base = cfg
	}
}

// WithClassifierFactory replaces the model constructor
func WithClassifierFactory(f model.Factory) Option {
	return func(fl *FrontLearner) {
		fl.factory = f
	}
}

// New creates a FrontLearner on the OS filesystem unless WithFs is given
func New(opts ...Option) *FrontLearner {
	fl := &FrontLearner{
		fs:      afero.NewOsFs(),
		log:     logrus.StandardLogger(),
		base:    config.Default(),
		factory: model.NewClassifier,
	}
	for _, opt := range opts {
		opt(fl)
	}
	if fl.base == nil {
		fl.base = config.Default()
	}

	fl.processor = processing.NewProcessor(fl.fs)
	fl.trainer = training.New(fl.fs,
		training.WithLogger(fl.log),
		training.WithClassifierFactory(fl.factory),
	)
	return fl
}

// Report is the outcome of one parameter source in a batch
type Report struct {
	Source string
	Label  string
	Result *training.Result
	Err    error
}

// Run trains or resumes a single configuration
func (fl *FrontLearner) Run(cfg *config.Config) (*training.Result, error) {
	return fl.trainer.TrainOrResume(cfg)
}

// LoadSource reads a parameter file or JSON config over the learner's defaults
func (fl *FrontLearner) LoadSource(path string) (*config.Config, error) {
	return config.LoadSource(fl.fs, path, fl.base.Clone())
}

// RunParameterFile loads a parameter source and runs it
func (fl *FrontLearner) RunParameterFile(path string) (*training.Result, error) {
	cfg, err := fl.LoadSource(path)
	if err != nil {
		return nil, err
	}
	return fl.Run(cfg)
}

// RunAll processes sources strictly in order. A failing source is reported
// and the next one attempted, unless the learner is strict. The returned
// error combines every failure.
func (fl *FrontLearner) RunAll(sources []string) ([]Report, error) {
	if len(sources) == 0 {
		return nil, &types.ConfigurationError{Field: "sources", Reason: "at least one parameter file is required"}
	}

	reports := make([]Report, 0, len(sources))
	var errs error
	for i, src := range sources {
		label := Label(src)
		log := fl.log.WithFields(logrus.Fields{
			"run":    label,
			"source": src,
			"index":  fmt.Sprintf("%d/%d", i+1, len(sources)),
		})
		log.Info("Processing configuration")

		res, err := fl.RunParameterFile(src)
		reports = append(reports, Report{Source: src, Label: label, Result: res, Err: err})
		if err != nil {
			log.WithError(err).Error("Configuration failed")
			errs = multierr.Append(errs, errors.WithMessage(err, src))
			if fl.strict {
				break
			}
			continue
		}

		log.WithFields(logrus.Fields{
			"accuracy": res.Accuracy,
			"loss":     res.Loss,
			"decision": res.Decision,
		}).Info("Test accuracy")
	}
	return reports, errs
}

// ExportPatches writes up to limit samples of ds into dir as images named
// after their index, label and window center. limit <= 0 writes all.
func (fl *FrontLearner) ExportPatches(ds *extraction.Dataset, dir, format string, limit int) (int, error) {
	if err := utils.EnsureDir(fl.fs, dir); err != nil {
		return 0, errors.Wrapf(err, "failed to create %s", dir)
	}

	n := ds.Len()
	if limit > 0 {
		n = min(n, limit)
	}
	rows, cols := ds.Shape()
	ext := strings.ToLower(format)
	for i := 0; i < n; i++ {
		s := ds.Sample(i)
		img, err := processing.PatchImage(s.Patch, rows, cols)
		if err != nil {
			return i, errors.Wrapf(err, "sample %d", i)
		}

		src := strings.TrimSuffix(s.Source, filepath.Ext(s.Source))
		name := fmt.Sprintf("%05d_label%d_r%d_c%d_%s.%s", i, s.Label, s.Center.Row, s.Center.Col, utils.SanitizeFilename(src), ext)
		if err := fl.processor.SaveImage(img, filepath.Join(dir, name), format, 95, true); err != nil {
			return i, errors.Wrapf(err, "failed to write patch %d", i)
		}
	}
	return n, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// Label identifies a run by the base name of its source
func Label(source string) string {
	return filepath.Base(source)
}
