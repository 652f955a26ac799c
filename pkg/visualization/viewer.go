// Package visualization renders quality-control slices of a volume with the
// brain mask overlaid.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"brainextract/internal/models"
)

// Overlay colors
var (
	surfaceColor = color.RGBA{R: 255, A: 255}
	interiorTint = color.RGBA{G: 80, A: 255}
)

// Viewer renders 2D slices of a volume, optionally overlaid with a mask
type Viewer struct {
	volume *models.Volume
	mask   *models.Mask
}

// NewViewer creates a new slice viewer. mask may be nil.
func NewViewer(v *models.Volume, mask *models.Mask) (*Viewer, error) {
	if mask != nil && (mask.Width != v.Width || mask.Height != v.Height || mask.Depth != v.Depth) {
		return nil, fmt.Errorf("mask extents %dx%dx%d do not match volume %dx%dx%d",
			mask.Width, mask.Height, mask.Depth, v.Width, v.Height, v.Depth)
	}
	return &Viewer{volume: v, mask: mask}, nil
}

// extent returns the number of slices along axis
func (v *Viewer) extent(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.volume.Width, nil
	case "y", "Y":
		return v.volume.Height, nil
	case "z", "Z":
		return v.volume.Depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice renders the slice at position along the given axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	n, err := v.extent(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, n, axis)
	}

	vol := v.volume
	var img *image.RGBA
	switch axis {
	case "x", "X":
		// YZ plane
		img = image.NewRGBA(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetRGBA(z, y, v.pixel(vol.Index(position, y, z)))
			}
		}
	case "y", "Y":
		// XZ plane
		img = image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetRGBA(x, z, v.pixel(vol.Index(x, position, z)))
			}
		}
	default:
		// XY plane
		img = image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetRGBA(x, y, v.pixel(vol.Index(x, y, position)))
			}
		}
	}
	return img, nil
}

// pixel maps voxel i to a gray level and blends in the mask
func (v *Viewer) pixel(i int) color.RGBA {
	vol := v.volume
	g := uint8(0)
	if span := vol.Max - vol.Min; span > 0 {
		g = uint8((vol.Data[i]-vol.Min)/span*255 + 0.5)
	}
	c := color.RGBA{R: g, G: g, B: g, A: 255}
	if v.mask == nil {
		return c
	}
	switch v.mask.Data[i] {
	case models.Surface:
		return surfaceColor
	case models.Interior:
		c.R = uint8(float64(g) * 0.7)
		c.B = c.R
		c.G = uint8(math.Min(255, float64(g)*0.7+float64(interiorTint.G)))
	}
	return c
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		return err
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	n, err := v.extent(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < n; pos++ {
		if err := v.saveAt(axis, pos, outputDir); err != nil {
			return err
		}
	}
	return nil
}

// SaveMidSlices saves the central slice along each axis and returns the file names
func (v *Viewer) SaveMidSlices(outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	var files []string
	for _, axis := range []string{"x", "y", "z"} {
		n, _ := v.extent(axis)
		if err := v.saveAt(axis, n/2, outputDir); err != nil {
			return files, err
		}
		files = append(files, sliceName(outputDir, axis, n/2))
	}
	return files, nil
}

func (v *Viewer) saveAt(axis string, pos int, outputDir string) error {
	img, err := v.ExtractSlice(axis, pos)
	if err != nil {
		return err
	}
	return v.SaveSlice(img, sliceName(outputDir, axis, pos))
}

func sliceName(outputDir, axis string, pos int) string {
	return filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
}
