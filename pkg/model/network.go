package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Source provides the randomness used for initialisation and shuffling.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// ErrDiverged is returned when a loss stops being finite
var ErrDiverged = errors.New("loss is not finite")

const evalBatchSize = 32

type layer struct {
	kernel *mat.Dense // in x out
	bias   []float64
	act    Activation
}

// Network is a dense feed-forward classifier built from a Topology
type Network struct {
	topo   Topology
	layers []*layer
	rng    Source
	opt    *Adam
}

// New builds a network with Glorot-uniform kernels and zero biases
func New(topo Topology, rng Source) (*Network, error) {
	if err := topo.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid topology")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}

	n := &Network{topo: topo, rng: rng}
	in := topo.InputSize()
	for _, spec := range topo.Layers[1:] {
		l := &layer{
			kernel: mat.NewDense(in, spec.Units, nil),
			bias:   make([]float64, spec.Units),
			act:    spec.Activation,
		}
		limit := math.Sqrt(6 / float64(in+spec.Units))
		raw := l.kernel.RawMatrix().Data
		for i := range raw {
			raw[i] = (2*rng.Float64() - 1) * limit
		}
		n.layers = append(n.layers, l)
		in = spec.Units
	}
	return n, nil
}

// Topology returns the layer sequence the network was built from
func (n *Network) Topology() Topology {
	return n.topo
}

// Compile attaches a fresh Adam optimiser
func (n *Network) Compile(learningRate float64) error {
	if learningRate <= 0 || math.IsNaN(learningRate) {
		return errors.Errorf("learning rate must be positive, got %g", learningRate)
	}
	n.opt = NewAdam(learningRate)
	return nil
}

// Compiled reports whether an optimiser is attached
func (n *Network) Compiled() bool {
	return n.opt != nil
}

// Predict returns the class probabilities of every row of x
func (n *Network) Predict(x [][]float64) (*mat.Dense, error) {
	if err := n.checkInputs(x, nil); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, errors.New("nothing to predict")
	}
	acts, _ := n.forward(n.batch(x, seq(len(x))))
	return acts[len(acts)-1], nil
}

// forward returns the activation of every layer (input first) and the
// pre-softmax logits of the output layer
func (n *Network) forward(x *mat.Dense) ([]*mat.Dense, *mat.Dense) {
	acts := make([]*mat.Dense, 0, len(n.layers)+1)
	acts = append(acts, x)

	var logits *mat.Dense
	a := x
	for i, l := range n.layers {
		z := new(mat.Dense)
		z.Mul(a, l.kernel)
		rows, _ := z.Dims()
		for r := 0; r < rows; r++ {
			floats.Add(z.RawRowView(r), l.bias)
		}
		if i == len(n.layers)-1 {
			logits = mat.DenseCopyOf(z)
		}
		l.act.apply(z)
		acts = append(acts, z)
		a = z
	}
	return acts, logits
}

// gradients runs one forward/backward pass. sw holds per-sample loss weights;
// the loss is their weighted cross-entropy sum divided by the batch size.
func (n *Network) gradients(x *mat.Dense, y []int, sw []float64) (loss float64, correct int, grads [][]float64) {
	acts, logits := n.forward(x)
	probs := acts[len(acts)-1]
	size := float64(len(y))

	delta := mat.DenseCopyOf(probs)
	for i, label := range y {
		z := logits.RawRowView(i)
		loss += sw[i] * (floats.LogSumExp(z) - z[label])
		if floats.MaxIdx(probs.RawRowView(i)) == label {
			correct++
		}
		d := delta.RawRowView(i)
		d[label]--
		floats.Scale(sw[i]/size, d)
	}
	loss /= size

	grads = make([][]float64, 2*len(n.layers))
	for li := len(n.layers) - 1; li >= 0; li-- {
		l := n.layers[li]

		gw := new(mat.Dense)
		gw.Mul(acts[li].T(), delta)
		rows, cols := delta.Dims()
		gb := make([]float64, cols)
		for r := 0; r < rows; r++ {
			floats.Add(gb, delta.RawRowView(r))
		}
		grads[2*li] = gw.RawMatrix().Data
		grads[2*li+1] = gb

		if li > 0 {
			prev := new(mat.Dense)
			prev.Mul(delta, l.kernel.T())
			n.layers[li-1].act.derive(prev, acts[li])
			delta = prev
		}
	}
	return loss, correct, grads
}

// params returns the trainable slices in the order gradients reports them
func (n *Network) params() [][]float64 {
	out := make([][]float64, 0, 2*len(n.layers))
	for _, l := range n.layers {
		out = append(out, l.kernel.RawMatrix().Data, l.bias)
	}
	return out
}

// score returns the unweighted mean cross-entropy and accuracy over idx
func (n *Network) score(x [][]float64, y []int, idx []int) (loss, accuracy float64) {
	var correct int
	for start := 0; start < len(idx); start += evalBatchSize {
		part := idx[start:min(start+evalBatchSize, len(idx))]
		acts, logits := n.forward(n.batch(x, part))
		probs := acts[len(acts)-1]
		for i, s := range part {
			z := logits.RawRowView(i)
			loss += floats.LogSumExp(z) - z[y[s]]
			if floats.MaxIdx(probs.RawRowView(i)) == y[s] {
				correct++
			}
		}
	}
	total := float64(len(idx))
	return loss / total, float64(correct) / total
}

func (n *Network) batch(x [][]float64, idx []int) *mat.Dense {
	in := n.topo.InputSize()
	data := make([]float64, 0, len(idx)*in)
	for _, i := range idx {
		data = append(data, x[i]...)
	}
	return mat.NewDense(len(idx), in, data)
}

// checkInputs validates row widths and, when y is given, label range
func (n *Network) checkInputs(x [][]float64, y []int) error {
	in := n.topo.InputSize()
	for i, row := range x {
		if len(row) != in {
			return errors.Errorf("sample %d has %d features, model expects %d", i, len(row), in)
		}
	}
	if y == nil {
		return nil
	}
	if len(y) != len(x) {
		return errors.Errorf("got %d samples but %d labels", len(x), len(y))
	}
	classes := n.topo.Classes()
	for i, label := range y {
		if label < 0 || label >= classes {
			return errors.Errorf("label %d of sample %d is outside [0,%d)", label, i, classes)
		}
	}
	return nil
}

func (a Activation) apply(z *mat.Dense) {
	rows, _ := z.Dims()
	for r := 0; r < rows; r++ {
		row := z.RawRowView(r)
		switch a {
		case ReLU:
			for j, v := range row {
				if v < 0 {
					row[j] = 0
				}
			}
		case Softmax:
			softmax(row)
		}
	}
}

// derive multiplies d by the activation derivative, given the activation output
func (a Activation) derive(d, out *mat.Dense) {
	if a != ReLU {
		return
	}
	rows, _ := d.Dims()
	for r := 0; r < rows; r++ {
		dr, or := d.RawRowView(r), out.RawRowView(r)
		for j := range dr {
			if or[j] <= 0 {
				dr[j] = 0
			}
		}
	}
}

func softmax(row []float64) {
	m := floats.Max(row)
	for j, v := range row {
		row[j] = math.Exp(v - m)
	}
	floats.Scale(1/floats.Sum(row), row)
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
