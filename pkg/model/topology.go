// Package model implements the fixed feed-forward classifier used to tell
// calving-front windows from background: a data-described topology, a dense
// network on gonum matrices, the Adam optimiser and a mini-batch fit loop.
package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/menta2k/frontlearn/pkg/types"
)

// LayerKind identifies a layer in a Topology
type LayerKind string

const (
	Flatten LayerKind = "flatten"
	Dense   LayerKind = "dense"
)

// Activation is applied to the output of a dense layer
type Activation string

const (
	Linear  Activation = "linear"
	ReLU    Activation = "relu"
	Softmax Activation = "softmax"
)

// LayerSpec describes one layer. Flatten layers use Rows and Cols, dense
// layers use Units and Activation.
type LayerSpec struct {
	Kind       LayerKind  `json:"kind"`
	Rows       int        `json:"rows,omitempty"`
	Cols       int        `json:"cols,omitempty"`
	Units      int        `json:"units,omitempty"`
	Activation Activation `json:"activation,omitempty"`
}

// Topology is the layer sequence of a network. The first layer flattens a
// 2D patch; the last is a softmax dense layer over the classes.
type Topology struct {
	Layers []LayerSpec `json:"layers"`
}

// Sliding returns flatten(2HH+1, 2HW+1) -> dense(hidden, relu) -> dense(2, softmax)
func Sliding(win types.WindowSize, hidden int) Topology {
	return Topology{Layers: []LayerSpec{
		{Kind: Flatten, Rows: win.Rows(), Cols: win.Cols()},
		{Kind: Dense, Units: hidden, Activation: ReLU},
		{Kind: Dense, Units: 2, Activation: Softmax},
	}}
}

// Validate checks the layer sequence can be built and trained
func (t Topology) Validate() error {
	if len(t.Layers) < 2 {
		return fmt.Errorf("topology needs a flatten layer and at least one dense layer, got %d layers", len(t.Layers))
	}
	in := t.Layers[0]
	if in.Kind != Flatten {
		return fmt.Errorf("first layer must be %s, got %s", Flatten, in.Kind)
	}
	if in.Rows < 1 || in.Cols < 1 {
		return fmt.Errorf("flatten input must be at least 1x1, got %dx%d", in.Rows, in.Cols)
	}

	last := len(t.Layers) - 1
	for i, l := range t.Layers[1:] {
		idx := i + 1
		if l.Kind != Dense {
			return fmt.Errorf("layer %d: expected %s, got %s", idx, Dense, l.Kind)
		}
		if l.Units < 1 {
			return fmt.Errorf("layer %d: units must be positive, got %d", idx, l.Units)
		}
		switch {
		case idx == last && l.Activation != Softmax:
			return fmt.Errorf("layer %d: output activation must be %s, got %s", idx, Softmax, l.Activation)
		case idx != last && l.Activation != ReLU && l.Activation != Linear:
			return fmt.Errorf("layer %d: unsupported hidden activation %q", idx, l.Activation)
		}
	}
	if t.Classes() < 2 {
		return fmt.Errorf("output layer needs at least 2 classes, got %d", t.Classes())
	}
	return nil
}

// InputSize returns the flattened input width
func (t Topology) InputSize() int {
	if len(t.Layers) == 0 {
		return 0
	}
	return t.Layers[0].Rows * t.Layers[0].Cols
}

// Classes returns the width of the output layer
func (t Topology) Classes() int {
	if len(t.Layers) == 0 {
		return 0
	}
	return t.Layers[len(t.Layers)-1].Units
}

func (t Topology) Equal(o Topology) bool {
	return slices.Equal(t.Layers, o.Layers)
}

func (t Topology) String() string {
	parts := make([]string, len(t.Layers))
	for i, l := range t.Layers {
		if l.Kind == Flatten {
			parts[i] = fmt.Sprintf("flatten(%dx%d)", l.Rows, l.Cols)
			continue
		}
		parts[i] = fmt.Sprintf("%s(%d, %s)", l.Kind, l.Units, l.Activation)
	}
	return strings.Join(parts, " -> ")
}
