package types

// Split names one disjoint partition of a glacier dataset
type Split string

const (
	Train Split = "train"
	Test  Split = "test"
)

// Splits returns the splits in the order they are extracted
func Splits() []Split {
	return []Split{Train, Test}
}

// Window is the center of an extracted window in source pixel coordinates
type Window struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// WindowSize describes the half extents of an extraction window
type WindowSize struct {
	HalfHeight int `json:"half_height"`
	HalfWidth  int `json:"half_width"`
}

// Rows returns the window height (2*HalfHeight+1)
func (s WindowSize) Rows() int {
	return 2*s.HalfHeight + 1
}

// Cols returns the window width (2*HalfWidth+1)
func (s WindowSize) Cols() int {
	return 2*s.HalfWidth + 1
}

// Pixels returns the total number of pixels in a window
func (s WindowSize) Pixels() int {
	return s.Rows() * s.Cols()
}

// Fits reports whether at least one valid center exists in a height x width image
func (s WindowSize) Fits(height, width int) bool {
	return height >= s.Rows() && width >= s.Cols()
}

// Bounds returns the window's top-left (inclusive) and bottom-right (exclusive) corners
func (s WindowSize) Bounds(w Window) (top, left, bottom, right int) {
	return w.Row - s.HalfHeight, w.Col - s.HalfWidth, w.Row + s.HalfHeight + 1, w.Col + s.HalfWidth + 1
}
