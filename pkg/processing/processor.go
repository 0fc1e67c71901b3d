package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Grid is a single-channel image with values normalized to [0,1], stored row-major
type Grid struct {
	Height int
	Width  int
	Pix    []float64
}

// NewGrid allocates a zero grid
func NewGrid(height, width int) *Grid {
	return &Grid{Height: height, Width: width, Pix: make([]float64, height*width)}
}

// At returns the value at row r, column c
func (g *Grid) At(r, c int) float64 {
	return g.Pix[r*g.Width+c]
}

// Crop copies the rectangle [top,bottom) x [left,right) into a new row-major slice
func (g *Grid) Crop(top, left, bottom, right int) []float64 {
	w := right - left
	out := make([]float64, (bottom-top)*w)
	for r := top; r < bottom; r++ {
		copy(out[(r-top)*w:(r-top+1)*w], g.Pix[r*g.Width+left:r*g.Width+right])
	}
	return out
}

// CountZero counts pixels equal to 0 in the rectangle [top,bottom) x [left,right)
func (g *Grid) CountZero(top, left, bottom, right int) int {
	n := 0
	for r := top; r < bottom; r++ {
		for _, v := range g.Pix[r*g.Width+left : r*g.Width+right] {
			if v == 0 {
				n++
			}
		}
	}
	return n
}

// Processor handles image loading and conversion operations
type Processor struct {
	fs afero.Fs
}

// NewProcessor creates a new image processor reading from fs
func NewProcessor(fs afero.Fs) *Processor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Processor{fs: fs}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return nil, err
	}
	return decodeImageFromBytes(data, path)
}

// LoadGrayscale loads an image, converts it to luma and normalizes it to [0,1]
func (p *Processor) LoadGrayscale(path string) (*Grid, error) {
	img, err := p.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return ToGrid(img), nil
}

// decodeImageFromBytes decodes an image from byte data with WebP fallback
func decodeImageFromBytes(data []byte, name string) (image.Image, error) {
	// Try registered decoders first
	if img, err := imaging.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if strings.EqualFold(filepath.Ext(name), ".webp") {
		if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
			return img, nil
		}
	}
	return nil, errors.Errorf("image: unknown or unsupported format for %s", name)
}

// ToGrid converts an image to a normalized grayscale grid. Colour images are
// reduced with ITU-R 601-2 luma weights.
func ToGrid(img image.Image) *Grid {
	b := img.Bounds()
	g := NewGrid(b.Dy(), b.Dx())

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < g.Height; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+g.Width]
			for x, v := range row {
				g.Pix[y*g.Width+x] = float64(v) / 255
			}
		}
		return g
	}

	nrgba := imaging.Grayscale(img)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			g.Pix[y*g.Width+x] = float64(nrgba.Pix[y*nrgba.Stride+x*4]) / 255
		}
	}
	return g
}

// PatchImage converts a row-major patch with values in [0,1] back into an 8-bit gray image
func PatchImage(patch []float64, rows, cols int) (*image.Gray, error) {
	if len(patch) != rows*cols {
		return nil, fmt.Errorf("patch has %d values, want %dx%d", len(patch), rows, cols)
	}
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for i, v := range patch {
		img.Pix[i] = uint8(clamp(v, 0, 1)*255 + 0.5)
	}
	return img, nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	f, err := p.fs.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeImage(f, img, format, quality, lossless); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return f.Close()
}

// EncodeImage writes img in the given format: png, webp or jpg
func EncodeImage(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(w, img, opts)
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	case "jpg", "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
