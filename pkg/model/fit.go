package model

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FitOptions configures a training run
type FitOptions struct {
	Epochs    int
	BatchSize int

	// ValidationSplit holds out the trailing fraction of the samples. They
	// are scored after every epoch and never used for gradient updates.
	ValidationSplit float64
	Shuffle         bool

	// ClassWeights scales the loss of each sample by the weight of its
	// label. A nil ClassWeights weighs every sample 1.
	ClassWeights ClassWeighter

	Callbacks []Callback
	Logger    logrus.FieldLogger
}

// ClassWeighter returns the loss weight of a class label.
// balance.Weights satisfies it.
type ClassWeighter interface {
	Of(class int) float64
}

// EpochLogs are the metrics of one finished epoch. Epoch counts from 1.
type EpochLogs struct {
	Epoch         int
	Loss          float64
	Accuracy      float64
	HasValidation bool
	ValLoss       float64
	ValAccuracy   float64
}

// History collects the logs of every epoch of a fit
type History struct {
	Epochs []EpochLogs
}

// Last returns the logs of the final epoch
func (h *History) Last() (EpochLogs, bool) {
	if h == nil || len(h.Epochs) == 0 {
		return EpochLogs{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

// Snapshotter exposes the current weights of a model
type Snapshotter interface {
	Weights() Weights
}

// Callback runs after every epoch. A returned error stops the fit.
type Callback interface {
	OnEpochEnd(logs EpochLogs, model Snapshotter) error
}

// CallbackFunc adapts a function to Callback
type CallbackFunc func(logs EpochLogs, model Snapshotter) error

func (f CallbackFunc) OnEpochEnd(logs EpochLogs, model Snapshotter) error {
	return f(logs, model)
}

// Evaluation is the result of scoring a labeled set
type Evaluation struct {
	Loss     float64
	Accuracy float64
}

// Fit trains the network with mini-batch Adam. The epoch loss is the
// sample-weighted mean of the batch losses.
func (n *Network) Fit(x [][]float64, y []int, opts FitOptions) (*History, error) {
	if n.opt == nil {
		return nil, errors.New("model must be compiled before fitting")
	}
	if opts.Epochs < 1 {
		return nil, errors.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.BatchSize < 1 {
		return nil, errors.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.ValidationSplit < 0 || opts.ValidationSplit >= 1 {
		return nil, errors.Errorf("validation split must be in [0,1), got %g", opts.ValidationSplit)
	}
	if err := n.checkInputs(x, y); err != nil {
		return nil, err
	}

	splitAt := len(y)
	if opts.ValidationSplit > 0 {
		splitAt = int(float64(len(y)) * (1 - opts.ValidationSplit))
	}
	if splitAt == 0 {
		return nil, errors.Errorf("no training samples left out of %d after validation split %g", len(y), opts.ValidationSplit)
	}
	order := seq(splitAt)
	validation := seq(len(y))[splitAt:]

	weights := make([]float64, len(y))
	for i, label := range y {
		weights[i] = 1
		if opts.ClassWeights != nil {
			weights[i] = opts.ClassWeights.Of(label)
		}
	}

	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	history := &History{}
	batchLabels := make([]int, 0, opts.BatchSize)
	batchWeights := make([]float64, 0, opts.BatchSize)
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		if opts.Shuffle {
			n.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var lossSum float64
		var correct int
		for start := 0; start < len(order); start += opts.BatchSize {
			idx := order[start:min(start+opts.BatchSize, len(order))]
			batchLabels, batchWeights = batchLabels[:0], batchWeights[:0]
			for _, i := range idx {
				batchLabels = append(batchLabels, y[i])
				batchWeights = append(batchWeights, weights[i])
			}

			loss, c, grads := n.gradients(n.batch(x, idx), batchLabels, batchWeights)
			if !finite(loss) {
				return history, errors.Wrapf(ErrDiverged, "epoch %d, batch starting at %d", epoch, start)
			}
			n.opt.Step(n.params(), grads)
			lossSum += loss * float64(len(idx))
			correct += c
		}

		logs := EpochLogs{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(order)),
			Accuracy: float64(correct) / float64(len(order)),
		}
		fields := logrus.Fields{
			"epoch":    epoch,
			"loss":     logs.Loss,
			"accuracy": logs.Accuracy,
		}
		if len(validation) > 0 {
			logs.HasValidation = true
			logs.ValLoss, logs.ValAccuracy = n.score(x, y, validation)
			fields["val_loss"] = logs.ValLoss
			fields["val_accuracy"] = logs.ValAccuracy
		}
		history.Epochs = append(history.Epochs, logs)
		log.WithFields(fields).Debug("Epoch finished")

		for _, cb := range opts.Callbacks {
			if err := cb.OnEpochEnd(logs, n); err != nil {
				return history, errors.Wrapf(err, "callback failed after epoch %d", epoch)
			}
		}
	}
	return history, nil
}

// Evaluate scores the network on x without updating it. The loss is the
// unweighted mean cross-entropy.
func (n *Network) Evaluate(x [][]float64, y []int) (Evaluation, error) {
	if err := n.checkInputs(x, y); err != nil {
		return Evaluation{}, err
	}
	if len(y) == 0 {
		return Evaluation{}, errors.New("cannot evaluate an empty set")
	}
	loss, acc := n.score(x, y, seq(len(y)))
	if !finite(loss) {
		return Evaluation{Loss: loss, Accuracy: acc}, errors.Wrap(ErrDiverged, "evaluation")
	}
	return Evaluation{Loss: loss, Accuracy: acc}, nil
}
