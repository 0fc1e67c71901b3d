package processing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a gray gradient image
func createTestImage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((y*width + x) % 256)})
		}
	}
	return img
}

func writePNG(t *testing.T, fs afero.Fs, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0644))
}

func TestLoadGrayscale(t *testing.T) {
	fs := afero.NewMemMapFs()
	writePNG(t, fs, "/img.png", createTestImage(7, 5))

	g, err := NewProcessor(fs).LoadGrayscale("/img.png")
	require.NoError(t, err)
	assert.Equal(t, 5, g.Height)
	assert.Equal(t, 7, g.Width)
	assert.Len(t, g.Pix, 35)
	assert.Equal(t, 0.0, g.At(0, 0))
	assert.InDelta(t, 10.0/255, g.At(1, 3), 1e-12)
	for _, v := range g.Pix {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestLoadGrayscaleColour(t *testing.T) {
	fs := afero.NewMemMapFs()
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	img.Set(1, 0, color.RGBA{255, 0, 0, 255})
	writePNG(t, fs, "/rgb.png", img)

	g, err := NewProcessor(fs).LoadGrayscale("/rgb.png")
	require.NoError(t, err)
	assert.Equal(t, 1.0, g.At(0, 0))
	// 0.299 * 255 rounds to 76
	assert.InDelta(t, 76.0/255, g.At(0, 1), 1e-12)
}

func TestLoadImageErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewProcessor(fs)

	_, err := p.LoadImage("/missing.png")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/junk.png", []byte("not an image"), 0644))
	_, err = p.LoadImage("/junk.png")
	assert.Error(t, err)
}

func TestGridCropAndCount(t *testing.T) {
	g := &Grid{Height: 3, Width: 4, Pix: []float64{
		0, 1, 2, 3,
		4, 0, 6, 7,
		8, 9, 0, 0,
	}}

	assert.Equal(t, []float64{1, 2, 0, 6}, g.Crop(0, 1, 2, 3))
	assert.Equal(t, 4, g.CountZero(0, 0, 3, 4))
	assert.Equal(t, 1, g.CountZero(0, 1, 2, 3))
	assert.Equal(t, 0, g.CountZero(1, 2, 2, 4))
}

func TestPatchImageRoundTrip(t *testing.T) {
	patch := []float64{0, 0.5, 1, 0.25, 0.75, 1}
	img, err := PatchImage(patch, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	g := ToGrid(img)
	for i, v := range patch {
		assert.InDelta(t, v, g.Pix[i], 1.0/255)
	}

	_, err = PatchImage(patch, 4, 4)
	assert.Error(t, err)
}

func TestSaveImageFormats(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewProcessor(fs)
	img := createTestImage(16, 8)

	for _, format := range []string{"png", "jpg", "webp"} {
		path := "/out/patch." + format
		require.NoError(t, fs.MkdirAll("/out", 0755))
		require.NoError(t, p.SaveImage(img, path, format, 90, true), format)

		loaded, err := p.LoadImage(path)
		require.NoError(t, err, format)
		assert.Equal(t, img.Bounds(), loaded.Bounds(), format)
	}

	assert.Error(t, p.SaveImage(img, "/out/patch.gif", "gif", 90, false))
}

func TestSaveImageLosslessValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewProcessor(fs)
	img := createTestImage(5, 5)

	require.NoError(t, p.SaveImage(img, "/lossless.webp", "webp", 100, true))
	g, err := p.LoadGrayscale("/lossless.webp")
	require.NoError(t, err)
	want := ToGrid(img)
	for i := range want.Pix {
		assert.InDelta(t, want.Pix[i], g.Pix[i], 1.0/255)
	}
}
