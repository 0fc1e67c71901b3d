// Package extraction turns full-size images and their boundary masks into a
// dataset of fixed-size patches with binary calving-front labels.
//
// Windows are drawn uniformly at random from the interior of each source
// image so that the whole window lies inside the image. A window is labeled 1
// when more than 1% of its mask pixels are boundary pixels (value 0).
package extraction

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/menta2k/frontlearn/internal/utils"
	"github.com/menta2k/frontlearn/pkg/processing"
	"github.com/menta2k/frontlearn/pkg/types"
)

// Source draws uniform integers in [0,n). *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// Config holds configuration for window extraction
type Config struct {
	Window   types.WindowSize
	NWindows int
	Suffix   string
	ImageExt string
	MaskFrom string
	MaskTo   string
}

// DefaultConfig returns the extraction settings used by the glacier datasets
func DefaultConfig() Config {
	return Config{
		NWindows: 1,
		ImageExt: ".png",
		MaskFrom: "Subset",
		MaskTo:   "Front",
	}
}

// Extractor draws labeled windows from a split directory
type Extractor struct {
	fs        afero.Fs
	processor *processing.Processor
	config    Config
	rng       Source
}

// New creates an Extractor. It fails with an ExtractionError when the window
// parameters can never produce a sample.
func New(fs afero.Fs, config Config, rng Source) (*Extractor, error) {
	if config.Window.HalfHeight < 0 || config.Window.HalfWidth < 0 {
		return nil, &types.ExtractionError{Reason: fmt.Sprintf("negative half extents %dx%d", config.Window.HalfHeight, config.Window.HalfWidth)}
	}
	if config.NWindows < 1 {
		return nil, &types.ExtractionError{Reason: fmt.Sprintf("n_windows must be positive, got %d", config.NWindows)}
	}
	if rng == nil {
		return nil, &types.ExtractionError{Reason: "no random source"}
	}
	if config.ImageExt == "" {
		config.ImageExt = ".png"
	}
	if !utils.IsImageFile("x" + config.ImageExt) {
		return nil, &types.ExtractionError{Reason: fmt.Sprintf("unsupported image extension %q", config.ImageExt)}
	}
	return &Extractor{
		fs:        fs,
		processor: processing.NewProcessor(fs),
		config:    config,
		rng:       rng,
	}, nil
}

// Config returns the extraction settings
func (e *Extractor) Config() Config {
	return e.config
}

// ImageDir returns the directory images are listed from
func (e *Extractor) ImageDir(splitDir string) string {
	return filepath.Join(splitDir, "images"+e.config.Suffix)
}

// LabelDir returns the directory masks are read from
func (e *Extractor) LabelDir(splitDir string) string {
	return filepath.Join(splitDir, "labels")
}

// Extract reads every image of a split with its mask and draws NWindows labeled
// windows from each. Sample i*NWindows+j is window j of the i-th image in name order.
func (e *Extractor) Extract(splitDir string) (*Dataset, error) {
	imageDir := e.ImageDir(splitDir)
	if !utils.DirExists(e.fs, imageDir) {
		return nil, &types.ExtractionError{Path: imageDir, Reason: "no source images found", Err: os.ErrNotExist}
	}
	files, err := utils.ListImageFiles(e.fs, imageDir, e.config.ImageExt)
	if err != nil {
		return nil, &types.ExtractionError{Path: imageDir, Reason: "failed to list images", Err: err}
	}
	if len(files) == 0 {
		return nil, &types.ExtractionError{Path: imageDir, Reason: "no source images found"}
	}

	ds := newDataset(e.config.Window, len(files)*e.config.NWindows)
	for _, name := range files {
		if err := e.extractSource(ds, imageDir, splitDir, name); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (e *Extractor) extractSource(ds *Dataset, imageDir, splitDir, name string) error {
	imagePath := filepath.Join(imageDir, name)
	maskPath := filepath.Join(e.LabelDir(splitDir), utils.MaskName(name, e.config.MaskFrom, e.config.MaskTo))

	if !utils.FileExists(e.fs, maskPath) {
		return &types.ExtractionError{Path: maskPath, Reason: "missing mask for " + name}
	}

	img, err := e.processor.LoadGrayscale(imagePath)
	if err != nil {
		return &types.ExtractionError{Path: imagePath, Reason: "failed to load image", Err: err}
	}
	mask, err := e.processor.LoadGrayscale(maskPath)
	if err != nil {
		return &types.ExtractionError{Path: maskPath, Reason: "failed to load mask", Err: err}
	}

	if img.Height != mask.Height || img.Width != mask.Width {
		return &types.ExtractionError{
			Path:   maskPath,
			Reason: fmt.Sprintf("mask is %dx%d, image %s is %dx%d", mask.Height, mask.Width, name, img.Height, img.Width),
		}
	}

	win := e.config.Window
	if !win.Fits(img.Height, img.Width) {
		return &types.ExtractionError{
			Path:   imagePath,
			Reason: fmt.Sprintf("image is %dx%d, smaller than the %dx%d window", img.Height, img.Width, win.Rows(), win.Cols()),
		}
	}

	for _, center := range DrawWindows(e.rng, win, img.Height, img.Width, e.config.NWindows) {
		top, left, bottom, right := win.Bounds(center)
		boundary := mask.CountZero(top, left, bottom, right)
		ds.append(Sample{
			Patch:  img.Crop(top, left, bottom, right),
			Label:  Label(boundary, win.Pixels()),
			Center: center,
			Source: name,
		})
	}
	return nil
}

// DrawWindows draws n centers uniformly with row in [HH, height-HH) and col in
// [HW, width-HW). All rows are drawn before all columns.
func DrawWindows(rng Source, win types.WindowSize, height, width, n int) []types.Window {
	rows := height - 2*win.HalfHeight
	cols := width - 2*win.HalfWidth

	centers := make([]types.Window, n)
	for i := range centers {
		centers[i].Row = win.HalfHeight + rng.IntN(rows)
	}
	for i := range centers {
		centers[i].Col = win.HalfWidth + rng.IntN(cols)
	}
	return centers
}

// Label returns 1 when boundary pixels make up strictly more than 1% of total
func Label(boundary, total int) int {
	if 100*boundary > total {
		return 1
	}
	return 0
}
