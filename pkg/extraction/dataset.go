package extraction

import "github.com/menta2k/frontlearn/pkg/types"

// Sample is one labeled window
type Sample struct {
	Patch  []float64
	Label  int
	Center types.Window
	Source string
}

// Dataset is the ordered sample sequence of one split. Patches[i] pairs with Labels[i].
type Dataset struct {
	Window  types.WindowSize
	Patches [][]float64
	Labels  []int
	Centers []types.Window
	Sources []string
}

func newDataset(win types.WindowSize, capacity int) *Dataset {
	return &Dataset{
		Window:  win,
		Patches: make([][]float64, 0, capacity),
		Labels:  make([]int, 0, capacity),
		Centers: make([]types.Window, 0, capacity),
		Sources: make([]string, 0, capacity),
	}
}

func (d *Dataset) append(s Sample) {
	d.Patches = append(d.Patches, s.Patch)
	d.Labels = append(d.Labels, s.Label)
	d.Centers = append(d.Centers, s.Center)
	d.Sources = append(d.Sources, s.Source)
}

// Len returns the number of samples
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Shape returns the patch shape (rows, cols)
func (d *Dataset) Shape() (rows, cols int) {
	return d.Window.Rows(), d.Window.Cols()
}

// Sample returns the i-th sample
func (d *Dataset) Sample(i int) Sample {
	return Sample{
		Patch:  d.Patches[i],
		Label:  d.Labels[i],
		Center: d.Centers[i],
		Source: d.Sources[i],
	}
}

// Counts returns the number of samples per label
func (d *Dataset) Counts() (negative, positive int) {
	for _, l := range d.Labels {
		if l == 1 {
			positive++
		} else {
			negative++
		}
	}
	return negative, positive
}
