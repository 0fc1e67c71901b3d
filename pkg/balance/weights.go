// Package balance computes the per-class loss weights used to counter the
// scarcity of calving-front windows.
package balance

import (
	"fmt"
	"sort"
)

// Weights maps a class label to its loss weight
type Weights map[int]float64

// Of returns the weight of a class; classes without an entry weigh 1
func (w Weights) Of(class int) float64 {
	if v, ok := w[class]; ok {
		return v
	}
	return 1
}

// String renders the weights in class order
func (w Weights) String() string {
	classes := make([]int, 0, len(w))
	for c := range w {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	s := "{"
	for i, c := range classes {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d: %g", c, w[c])
	}
	return s + "}"
}

// Counts tallies labels per class
func Counts(labels []int) map[int]int {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

// Balanced weighs each class present in labels by N / (n_classes * count(c))
func Balanced(labels []int) (Weights, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("cannot balance an empty label sequence")
	}
	counts := Counts(labels)
	n := float64(len(labels))
	k := float64(len(counts))

	w := make(Weights, len(counts))
	for c, count := range counts {
		w[c] = n / (k * float64(count))
	}
	return w, nil
}

// Fixed weighs the majority class 0 by 1 and the boundary class 1 by ratio
func Fixed(ratio int) Weights {
	return Weights{0: 1, 1: float64(ratio)}
}

// Compute selects Balanced for ratio 0 and Fixed otherwise
func Compute(labels []int, ratio int) (Weights, error) {
	if ratio < 0 {
		return nil, fmt.Errorf("imbalance ratio must be non-negative, got %d", ratio)
	}
	if ratio == 0 {
		return Balanced(labels)
	}
	return Fixed(ratio), nil
}
