// Package fixtures writes small synthetic glacier datasets for tests and demos
package fixtures

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/menta2k/frontlearn/internal/utils"
)

// Source is one image/mask pair. Name is the image file name; the mask is
// written under the Subset->Front substituted name.
type Source struct {
	Name  string
	Image *image.Gray
	Mask  *image.Gray
}

// Gradient returns an image whose pixels encode their position
func Gradient(height, width int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((y*width + x) % 256)})
		}
	}
	return img
}

// Blank returns a mask without boundary pixels
func Blank(height, width int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

// Front returns a mask with a vertical calving front (value 0) at column col
func Front(height, width, col int) *image.Gray {
	img := Blank(height, width)
	for y := 0; y < height; y++ {
		img.SetGray(col, y, color.Gray{Y: 0})
	}
	return img
}

// WriteSplit writes sources to <splitDir>/images<suffix>/ and <splitDir>/labels/
func WriteSplit(fs afero.Fs, splitDir, suffix string, sources []Source) error {
	imageDir := filepath.Join(splitDir, "images"+suffix)
	labelDir := filepath.Join(splitDir, "labels")
	for _, dir := range []string{imageDir, labelDir} {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	for _, s := range sources {
		if err := WritePNG(fs, filepath.Join(imageDir, s.Name), s.Image); err != nil {
			return err
		}
		if s.Mask == nil {
			continue
		}
		if err := WritePNG(fs, filepath.Join(labelDir, MaskName(s.Name)), s.Mask); err != nil {
			return err
		}
	}
	return nil
}

// WriteGlacier writes a <root>/<glacier>.dir/data/{train,test} tree with n
// height x width sources per split, each with a front at the middle column
func WriteGlacier(fs afero.Fs, root, glacier, suffix string, n, height, width int) error {
	for _, split := range []string{"train", "test"} {
		sources := make([]Source, n)
		for i := range sources {
			sources[i] = Source{
				Name:  fmt.Sprintf("%s_Subset_%02d.png", glacier, i),
				Image: Gradient(height, width),
				Mask:  Front(height, width, width/2),
			}
		}
		dir := filepath.Join(root, glacier+".dir", "data", split)
		if err := WriteSplit(fs, dir, suffix, sources); err != nil {
			return err
		}
	}
	return nil
}

// WritePNG encodes img as PNG at path
func WritePNG(fs afero.Fs, path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, buf.Bytes(), 0644)
}

// MaskName applies the Subset->Front naming convention
func MaskName(name string) string {
	return utils.MaskName(name, "Subset", "Front")
}
