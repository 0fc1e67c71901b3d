package model

// Classifier is the model surface the training workflow drives
type Classifier interface {
	Snapshotter
	SetWeights(w Weights) error
	Compile(learningRate float64) error
	Fit(x [][]float64, y []int, opts FitOptions) (*History, error)
	Evaluate(x [][]float64, y []int) (Evaluation, error)
}

// Factory builds an untrained classifier for a topology
type Factory func(topo Topology, rng Source) (Classifier, error)

// NewClassifier is the Factory backed by Network
func NewClassifier(topo Topology, rng Source) (Classifier, error) {
	n, err := New(topo, rng)
	if err != nil {
		return nil, err
	}
	return n, nil
}

var _ Classifier = (*Network)(nil)
