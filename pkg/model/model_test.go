package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/menta2k/frontlearn/pkg/balance"
	"github.com/menta2k/frontlearn/pkg/types"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func flat(rows, cols, hidden int) Topology {
	return Topology{Layers: []LayerSpec{
		{Kind: Flatten, Rows: rows, Cols: cols},
		{Kind: Dense, Units: hidden, Activation: ReLU},
		{Kind: Dense, Units: 2, Activation: Softmax},
	}}
}

// separable returns two well separated clusters in a 1x2 input space
func separable(rng *rand.Rand, n int) ([][]float64, []int) {
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		u, v := 0.2*rng.Float64(), 0.2*rng.Float64()
		if i%2 == 0 {
			x[i], y[i] = []float64{0.8 + u, v}, 1
		} else {
			x[i], y[i] = []float64{u, 0.8 + v}, 0
		}
	}
	return x, y
}

func zeroed(t *testing.T, n *Network) {
	w := n.Weights()
	for i := range w.Layers {
		clear(w.Layers[i].Kernel)
		clear(w.Layers[i].Bias)
	}
	require.NoError(t, n.SetWeights(w))
}

func TestSlidingTopology(t *testing.T) {
	topo := Sliding(types.WindowSize{HalfHeight: 1, HalfWidth: 2}, 16)
	require.NoError(t, topo.Validate())
	assert.Equal(t, 15, topo.InputSize())
	assert.Equal(t, 2, topo.Classes())
	assert.Equal(t, "flatten(3x5) -> dense(16, relu) -> dense(2, softmax)", topo.String())
	assert.True(t, topo.Equal(Sliding(types.WindowSize{HalfHeight: 1, HalfWidth: 2}, 16)))
	assert.False(t, topo.Equal(Sliding(types.WindowSize{HalfHeight: 1, HalfWidth: 2}, 8)))
}

func TestTopologyValidate(t *testing.T) {
	tests := []struct {
		name string
		topo Topology
	}{
		{"empty", Topology{}},
		{"no flatten", Topology{Layers: []LayerSpec{
			{Kind: Dense, Units: 4, Activation: ReLU},
			{Kind: Dense, Units: 2, Activation: Softmax},
		}}},
		{"zero input", flat(0, 3, 4)},
		{"zero hidden", flat(3, 3, 0)},
		{"linear output", Topology{Layers: []LayerSpec{
			{Kind: Flatten, Rows: 1, Cols: 1},
			{Kind: Dense, Units: 2, Activation: Linear},
		}}},
		{"softmax hidden", Topology{Layers: []LayerSpec{
			{Kind: Flatten, Rows: 1, Cols: 1},
			{Kind: Dense, Units: 3, Activation: Softmax},
			{Kind: Dense, Units: 2, Activation: Softmax},
		}}},
		{"single class", Topology{Layers: []LayerSpec{
			{Kind: Flatten, Rows: 1, Cols: 1},
			{Kind: Dense, Units: 1, Activation: Softmax},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.topo.Validate())
			_, err := New(tt.topo, newRand(1))
			assert.Error(t, err)
		})
	}
}

func TestNewInitialisation(t *testing.T) {
	n, err := New(flat(3, 3, 16), newRand(7))
	require.NoError(t, err)

	w := n.Weights()
	require.Len(t, w.Layers, 2)
	assert.Equal(t, 9, w.Layers[0].Rows)
	assert.Equal(t, 16, w.Layers[0].Cols)

	for i, lw := range w.Layers {
		limit := math.Sqrt(6 / float64(lw.Rows+lw.Cols))
		for _, v := range lw.Kernel {
			assert.LessOrEqual(t, math.Abs(v), limit, "layer %d", i)
		}
		assert.Equal(t, make([]float64, lw.Cols), lw.Bias)
	}

	_, err = New(flat(3, 3, 16), nil)
	assert.Error(t, err)
}

func TestPredictIsDistribution(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(3))
	require.NoError(t, err)

	x, _ := separable(newRand(4), 10)
	p, err := n.Predict(x)
	require.NoError(t, err)

	rows, cols := p.Dims()
	assert.Equal(t, 10, rows)
	assert.Equal(t, 2, cols)
	for r := 0; r < rows; r++ {
		assert.InDelta(t, 1.0, floats.Sum(p.RawRowView(r)), 1e-12)
	}

	_, err = n.Predict([][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	rng := newRand(11)
	n, err := New(flat(1, 3, 5), rng)
	require.NoError(t, err)
	for _, p := range n.params() {
		for j := range p {
			p[j] += 0.1 * (rng.Float64() - 0.5)
		}
	}

	x := mat.NewDense(4, 3, []float64{
		0.1, 0.5, 0.9,
		0.7, 0.2, 0.3,
		0.4, 0.8, 0.6,
		0.9, 0.1, 0.2,
	})
	y := []int{0, 1, 1, 0}
	sw := []float64{1, 3, 3, 1}

	_, _, grads := n.gradients(x, y, sw)
	const h = 1e-6
	for k, p := range n.params() {
		for j := range p {
			orig := p[j]
			p[j] = orig + h
			up, _, _ := n.gradients(x, y, sw)
			p[j] = orig - h
			down, _, _ := n.gradients(x, y, sw)
			p[j] = orig

			assert.InDelta(t, (up-down)/(2*h), grads[k][j], 1e-6, "param %d[%d]", k, j)
		}
	}
}

func TestFitRequiresCompile(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(1))
	require.NoError(t, err)
	x, y := separable(newRand(2), 10)

	_, err = n.Fit(x, y, FitOptions{Epochs: 1, BatchSize: 4})
	assert.Error(t, err)
	assert.False(t, n.Compiled())

	assert.Error(t, n.Compile(0))
	require.NoError(t, n.Compile(0.001))
	assert.True(t, n.Compiled())
}

func TestFitLearnsSeparableData(t *testing.T) {
	n, err := New(flat(1, 2, 8), newRand(5))
	require.NoError(t, err)
	require.NoError(t, n.Compile(0.01))

	x, y := separable(newRand(6), 200)
	hist, err := n.Fit(x, y, FitOptions{
		Epochs:          30,
		BatchSize:       16,
		ValidationSplit: 0.1,
		Shuffle:         true,
	})
	require.NoError(t, err)
	require.Len(t, hist.Epochs, 30)

	first := hist.Epochs[0]
	last, ok := hist.Last()
	require.True(t, ok)
	assert.Less(t, last.Loss, first.Loss)
	assert.True(t, last.HasValidation)

	ev, err := n.Evaluate(x, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.Accuracy, 0.95)
}

func TestFitWeightsLossByClass(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(1))
	require.NoError(t, err)
	zeroed(t, n)
	require.NoError(t, n.Compile(0.001))

	x := [][]float64{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}, {0.7, 0.8}}
	y := []int{0, 0, 0, 1}

	// a single batch is scored before the update, with uniform predictions
	hist, err := n.Fit(x, y, FitOptions{
		Epochs:       1,
		BatchSize:    4,
		ClassWeights: balance.Weights{1: 3},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.5*math.Ln2, hist.Epochs[0].Loss, 1e-12)
	assert.False(t, hist.Epochs[0].HasValidation)
}

func TestFitHoldsOutValidationTail(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(8))
	require.NoError(t, err)
	require.NoError(t, n.Compile(0.001))

	x, y := separable(newRand(9), 20)
	// poisoned tail: any gradient step through it would diverge
	x[18] = []float64{math.NaN(), math.NaN()}
	x[19] = []float64{math.NaN(), math.NaN()}

	hist, err := n.Fit(x, y, FitOptions{Epochs: 3, BatchSize: 4, ValidationSplit: 0.1, Shuffle: true})
	require.NoError(t, err)
	for _, e := range hist.Epochs {
		assert.True(t, finite(e.Loss))
		assert.True(t, e.HasValidation)
		assert.True(t, math.IsNaN(e.ValLoss))
	}
}

func TestFitDiverges(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(8))
	require.NoError(t, err)
	require.NoError(t, n.Compile(0.001))

	x := [][]float64{{math.NaN(), 0}, {0, 1}}
	_, err = n.Fit(x, []int{0, 1}, FitOptions{Epochs: 2, BatchSize: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDiverged))
}

func TestFitErrors(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(8))
	require.NoError(t, err)
	require.NoError(t, n.Compile(0.001))
	x, y := separable(newRand(9), 4)

	tests := []struct {
		name string
		x    [][]float64
		y    []int
		opts FitOptions
	}{
		{"no epochs", x, y, FitOptions{BatchSize: 2}},
		{"no batch size", x, y, FitOptions{Epochs: 1}},
		{"bad split", x, y, FitOptions{Epochs: 1, BatchSize: 2, ValidationSplit: 1}},
		{"split leaves nothing", x[:1], y[:1], FitOptions{Epochs: 1, BatchSize: 2, ValidationSplit: 0.1}},
		{"label out of range", x, []int{0, 1, 2, 0}, FitOptions{Epochs: 1, BatchSize: 2}},
		{"label count", x, y[:3], FitOptions{Epochs: 1, BatchSize: 2}},
		{"feature count", [][]float64{{1}}, []int{0}, FitOptions{Epochs: 1, BatchSize: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Fit(tt.x, tt.y, tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestFitCallbacks(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(1))
	require.NoError(t, err)
	require.NoError(t, n.Compile(0.001))
	x, y := separable(newRand(2), 20)

	var seen []int
	record := CallbackFunc(func(logs EpochLogs, m Snapshotter) error {
		seen = append(seen, logs.Epoch)
		assert.Equal(t, WeightsFormat, m.Weights().Format)
		return nil
	})
	_, err = n.Fit(x, y, FitOptions{Epochs: 4, BatchSize: 8, Callbacks: []Callback{record}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, seen)

	stop := errors.New("stop")
	hist, err := n.Fit(x, y, FitOptions{Epochs: 4, BatchSize: 8, Callbacks: []Callback{
		CallbackFunc(func(logs EpochLogs, _ Snapshotter) error {
			if logs.Epoch == 2 {
				return stop
			}
			return nil
		}),
	}})
	assert.True(t, errors.Is(err, stop))
	assert.Len(t, hist.Epochs, 2)
}

func TestEvaluate(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(1))
	require.NoError(t, err)
	zeroed(t, n)

	// uniform outputs: loss ln 2, ties resolve to class 0
	x := [][]float64{{1, 0}, {0, 1}, {1, 1}, {0, 0}}
	ev, err := n.Evaluate(x, []int{0, 1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, ev.Loss, 1e-12)
	assert.InDelta(t, 0.25, ev.Accuracy, 1e-12)

	_, err = n.Evaluate(nil, nil)
	assert.Error(t, err)
}

func TestEvaluateLeavesWeights(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(1))
	require.NoError(t, err)
	require.NoError(t, n.Compile(0.001))
	before := n.Weights()

	x, y := separable(newRand(2), 40)
	_, err = n.Evaluate(x, y)
	require.NoError(t, err)
	assert.True(t, before.Equal(n.Weights()))
}

func TestSetWeights(t *testing.T) {
	a, err := New(flat(1, 2, 4), newRand(1))
	require.NoError(t, err)
	b, err := New(flat(1, 2, 4), newRand(2))
	require.NoError(t, err)
	require.False(t, a.Weights().Equal(b.Weights()))

	require.NoError(t, b.SetWeights(a.Weights()))
	assert.True(t, a.Weights().Equal(b.Weights()))

	x, _ := separable(newRand(3), 6)
	pa, err := a.Predict(x)
	require.NoError(t, err)
	pb, err := b.Predict(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(pa, pb))

	// detached copy
	w := a.Weights()
	w.Layers[0].Kernel[0] += 1
	assert.False(t, w.Equal(a.Weights()))
}

func TestSetWeightsRejectsMismatch(t *testing.T) {
	n, err := New(flat(1, 2, 4), newRand(1))
	require.NoError(t, err)
	other, err := New(flat(1, 2, 8), newRand(1))
	require.NoError(t, err)

	assert.Error(t, n.SetWeights(other.Weights()))

	w := n.Weights()
	w.Format = "other/v0"
	assert.Error(t, n.SetWeights(w))

	w = n.Weights()
	w.Layers[1].Bias = w.Layers[1].Bias[:1]
	assert.Error(t, n.SetWeights(w))

	w = n.Weights()
	w.Layers[0].Kernel = w.Layers[0].Kernel[:3]
	assert.Error(t, n.SetWeights(w))
}

func TestAdamStep(t *testing.T) {
	a := NewAdam(0.1)
	p := [][]float64{{1, -1}}
	a.Step(p, [][]float64{{2, -0.5}})

	// the first bias-corrected step moves each parameter by ~lr against the gradient sign
	assert.InDelta(t, 0.9, p[0][0], 1e-5)
	assert.InDelta(t, -0.9, p[0][1], 1e-5)
	assert.Equal(t, 1, a.Iterations())
}
