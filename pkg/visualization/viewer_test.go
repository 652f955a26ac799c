package visualization

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"brainextract/internal/models"
)

// gradientVolume fills each z slice with a unique value
func gradientVolume(width, height, depth int) *models.Volume {
	v := models.NewVolume(width, height, depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v.Data[v.Index(x, y, z)] = float64(z)
			}
		}
	}
	v.CalcMinMax()
	return v
}

// TestNewViewer verifies that mismatched masks are rejected
func TestNewViewer(t *testing.T) {
	v := gradientVolume(10, 8, 5)

	if _, err := NewViewer(v, nil); err != nil {
		t.Errorf("Unexpected error without mask: %v", err)
	}
	if _, err := NewViewer(v, models.NewMask(10, 8, 5)); err != nil {
		t.Errorf("Unexpected error with matching mask: %v", err)
	}
	if _, err := NewViewer(v, models.NewMask(10, 8, 4)); err == nil {
		t.Error("Expected an error for a mismatched mask")
	}
}

// TestExtractSlice verifies slice extents and gray levels along every axis
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer, err := NewViewer(gradientVolume(width, height, depth), nil)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		axis  string
		pos   int
		w, h  int
		probe image.Point
		gray  uint8
	}{
		{"x", 3, depth, height, image.Pt(4, 0), 255},
		{"y", 2, width, depth, image.Pt(0, 2), 128},
		{"z", 0, width, height, image.Pt(5, 5), 0},
		{"Z", 4, width, height, image.Pt(9, 7), 255},
	}

	for _, tc := range testCases {
		img, err := viewer.ExtractSlice(tc.axis, tc.pos)
		if err != nil {
			t.Fatalf("Failed to extract %s slice at position %d: %v", tc.axis, tc.pos, err)
		}
		b := img.Bounds()
		if b.Dx() != tc.w || b.Dy() != tc.h {
			t.Errorf("Axis %s: expected %dx%d slice, got %dx%d", tc.axis, tc.w, tc.h, b.Dx(), b.Dy())
		}
		c := img.At(tc.probe.X, tc.probe.Y).(color.RGBA)
		if c.R != tc.gray || c.G != tc.gray || c.B != tc.gray {
			t.Errorf("Axis %s: expected gray %d at %v, got %v", tc.axis, tc.gray, tc.probe, c)
		}
	}

	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Error("Expected an error for an invalid axis")
	}
	if _, err := viewer.ExtractSlice("z", depth); err == nil {
		t.Error("Expected an error for an out of range position")
	}
	if _, err := viewer.ExtractSlice("x", -1); err == nil {
		t.Error("Expected an error for a negative position")
	}
}

// TestMaskOverlay verifies surface and interior voxels are colored
func TestMaskOverlay(t *testing.T) {
	v := gradientVolume(6, 6, 6)
	mask := models.NewMask(6, 6, 6)
	mask.Data[mask.Index(1, 1, 3)] = models.Surface
	mask.Data[mask.Index(2, 2, 3)] = models.Interior

	viewer, err := NewViewer(v, mask)
	if err != nil {
		t.Fatal(err)
	}
	img, err := viewer.ExtractSlice("z", 3)
	if err != nil {
		t.Fatal(err)
	}

	if c := img.At(1, 1).(color.RGBA); c != surfaceColor {
		t.Errorf("Expected surface color, got %v", c)
	}
	interior := img.At(2, 2).(color.RGBA)
	if interior.G <= interior.R {
		t.Errorf("Expected a green tint inside the mask, got %v", interior)
	}
	outside := img.At(4, 4).(color.RGBA)
	if outside.R != outside.G || outside.G != outside.B {
		t.Errorf("Expected plain gray outside the mask, got %v", outside)
	}
}

// TestSaveMidSlices verifies that the three central slices are written as JPEG
func TestSaveMidSlices(t *testing.T) {
	viewer, err := NewViewer(gradientVolume(10, 8, 6), models.NewMask(10, 8, 6))
	if err != nil {
		t.Fatal(err)
	}

	outputDir := filepath.Join(t.TempDir(), "qc")
	files, err := viewer.SaveMidSlices(outputDir)
	if err != nil {
		t.Fatalf("Failed to save slices: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(files))
	}

	want := []string{"slice_x_005.jpg", "slice_y_004.jpg", "slice_z_003.jpg"}
	for i, file := range files {
		if filepath.Base(file) != want[i] {
			t.Errorf("Expected %s, got %s", want[i], filepath.Base(file))
		}
		f, err := os.Open(file)
		if err != nil {
			t.Fatalf("Failed to open %s: %v", file, err)
		}
		if _, err := jpeg.Decode(f); err != nil {
			t.Errorf("Failed to decode %s: %v", file, err)
		}
		f.Close()
	}
}

// TestSaveSliceSequence verifies one file per slice
func TestSaveSliceSequence(t *testing.T) {
	viewer, err := NewViewer(gradientVolume(4, 4, 3), nil)
	if err != nil {
		t.Fatal(err)
	}

	outputDir := t.TempDir()
	if err := viewer.SaveSliceSequence("z", outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected 3 slices, got %d", len(entries))
	}

	if err := viewer.SaveSliceSequence("q", outputDir); err == nil {
		t.Error("Expected an error for an invalid axis")
	}
}
