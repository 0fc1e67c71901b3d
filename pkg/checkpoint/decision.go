package checkpoint

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/frontlearn/pkg/model"
)

// Decision is the branch a run takes given the resolved artifact
type Decision int

const (
	// NoCheckpoint trains a fresh model and saves it on improvement
	NoCheckpoint Decision = iota
	// CheckpointNoRetrain loads the stored weights and skips fitting
	CheckpointNoRetrain
	// CheckpointRetrain loads the stored weights and keeps fitting from them
	CheckpointRetrain
)

func (d Decision) String() string {
	switch d {
	case NoCheckpoint:
		return "NO_CHECKPOINT"
	case CheckpointNoRetrain:
		return "CHECKPOINT_NO_RETRAIN"
	case CheckpointRetrain:
		return "CHECKPOINT_RETRAIN"
	default:
		return "UNKNOWN"
	}
}

// LoadsWeights reports whether the stored weights initialise the model
func (d Decision) LoadsWeights() bool {
	return d != NoCheckpoint
}

// Fits reports whether the model is trained in this branch
func (d Decision) Fits() bool {
	return d != CheckpointNoRetrain
}

// Decide maps an artifact and the retrain flag to a Decision
func Decide(a Artifact, retrain bool) Decision {
	switch {
	case a.State == Absent:
		return NoCheckpoint
	case retrain:
		return CheckpointRetrain
	default:
		return CheckpointNoRetrain
	}
}

// BestLossSaver is a fit callback that saves the weights whenever the epoch
// training loss improves on the best seen during this fit
type BestLossSaver struct {
	store *Store
	path  string
	log   logrus.FieldLogger
	best  float64
	saves int
}

// NewBestLossSaver starts with no best loss, so the first finite epoch saves
func NewBestLossSaver(store *Store, path string, log logrus.FieldLogger) *BestLossSaver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BestLossSaver{store: store, path: path, log: log, best: math.Inf(1)}
}

func (b *BestLossSaver) OnEpochEnd(logs model.EpochLogs, m model.Snapshotter) error {
	if !(logs.Loss < b.best) {
		b.log.WithFields(logrus.Fields{
			"epoch": logs.Epoch,
			"loss":  logs.Loss,
			"best":  b.best,
		}).Debug("Loss did not improve")
		return nil
	}

	if err := b.store.Save(b.path, m.Weights()); err != nil {
		return err
	}
	b.log.WithFields(logrus.Fields{
		"epoch":    logs.Epoch,
		"loss":     logs.Loss,
		"previous": b.best,
		"path":     b.path,
	}).Debug("Loss improved, checkpoint saved")
	b.best = logs.Loss
	b.saves++
	return nil
}

// Best returns the lowest loss saved so far
func (b *BestLossSaver) Best() float64 {
	return b.best
}

// Saves returns how many times the artifact was written
func (b *BestLossSaver) Saves() int {
	return b.saves
}
