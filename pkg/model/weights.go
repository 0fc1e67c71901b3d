package model

import "github.com/pkg/errors"

// WeightsFormat tags serialized weights so foreign artifacts are rejected
const WeightsFormat = "frontlearn/dense/v1"

// LayerWeights holds one dense layer: a row-major Rows x Cols kernel and a
// bias of length Cols
type LayerWeights struct {
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Kernel []float64 `json:"kernel"`
	Bias   []float64 `json:"bias"`
}

// Weights is a detached copy of the trainable state of a network together
// with the topology it belongs to
type Weights struct {
	Format   string         `json:"format"`
	Topology Topology       `json:"topology"`
	Layers   []LayerWeights `json:"layers"`
}

// Weights returns a copy of the current weights
func (n *Network) Weights() Weights {
	w := Weights{
		Format:   WeightsFormat,
		Topology: Topology{Layers: append([]LayerSpec(nil), n.topo.Layers...)},
		Layers:   make([]LayerWeights, len(n.layers)),
	}
	for i, l := range n.layers {
		rows, cols := l.kernel.Dims()
		w.Layers[i] = LayerWeights{
			Rows:   rows,
			Cols:   cols,
			Kernel: append([]float64(nil), l.kernel.RawMatrix().Data...),
			Bias:   append([]float64(nil), l.bias...),
		}
	}
	return w
}

// SetWeights replaces the trainable state. The weights must come from a
// network with the same topology.
func (n *Network) SetWeights(w Weights) error {
	if w.Format != WeightsFormat {
		return errors.Errorf("unsupported weights format %q", w.Format)
	}
	if !w.Topology.Equal(n.topo) {
		return errors.Errorf("weights topology %s does not match model topology %s", w.Topology, n.topo)
	}
	if len(w.Layers) != len(n.layers) {
		return errors.Errorf("weights hold %d layers, model has %d", len(w.Layers), len(n.layers))
	}
	for i, lw := range w.Layers {
		rows, cols := n.layers[i].kernel.Dims()
		if lw.Rows != rows || lw.Cols != cols || len(lw.Kernel) != rows*cols {
			return errors.Errorf("layer %d: kernel is %dx%d with %d values, expected %dx%d", i, lw.Rows, lw.Cols, len(lw.Kernel), rows, cols)
		}
		if len(lw.Bias) != cols {
			return errors.Errorf("layer %d: bias has %d values, expected %d", i, len(lw.Bias), cols)
		}
	}

	for i, lw := range w.Layers {
		copy(n.layers[i].kernel.RawMatrix().Data, lw.Kernel)
		copy(n.layers[i].bias, lw.Bias)
	}
	return nil
}

// Equal reports whether two weight sets are identical
func (w Weights) Equal(o Weights) bool {
	if w.Format != o.Format || !w.Topology.Equal(o.Topology) || len(w.Layers) != len(o.Layers) {
		return false
	}
	for i := range w.Layers {
		a, b := w.Layers[i], o.Layers[i]
		if a.Rows != b.Rows || a.Cols != b.Cols || !equalFloats(a.Kernel, b.Kernel) || !equalFloats(a.Bias, b.Bias) {
			return false
		}
	}
	return true
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
