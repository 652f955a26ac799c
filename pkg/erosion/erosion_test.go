package erosion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainextract/internal/models"
)

// ringVolume builds a stack of identical slices holding a disk of radius 6
// (value 50) wrapped in a bright ring out to radius 8 (value 100)
func ringVolume() *models.Volume {
	v := models.NewVolume(21, 21, 3)
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				dx, dy := x-10, y-10
				r2 := dx*dx + dy*dy
				switch {
				case r2 <= 36:
					v.Data[v.Index(x, y, z)] = 50
				case r2 <= 64:
					v.Data[v.Index(x, y, z)] = 100
				}
			}
		}
	}
	v.CalcMinMax()
	return v
}

func TestErodeRemovesBrightRing(t *testing.T) {
	v := ringVolume()
	original := v.Clone()

	out, stats := Erode(v, nil, 511.5, DefaultAboveMedian)
	require.NotNil(t, out)

	assert.InDelta(t, 75, stats.Threshold, 1e-9)
	assert.Equal(t, original.Data, v.Data, "input must not change")

	for z := 0; z < out.Depth; z++ {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				val := out.At(x, y, z)
				assert.NotEqual(t, 100.0, val, "bright voxel (%d,%d,%d) survived", x, y, z)
				dx, dy := x-10, y-10
				if dx*dx+dy*dy <= 25 {
					assert.Equal(t, 50.0, val, "disk voxel (%d,%d,%d) eroded", x, y, z)
				}
			}
		}
	}

	ring := 0
	for _, val := range original.Data {
		if val == 100 {
			ring++
		}
	}
	assert.Equal(t, ring, stats.Eroded)
	// the four one-pixel tips of each digital disk
	assert.Equal(t, 12, stats.Cleaned)
	assert.Greater(t, stats.Reached, 0)
	assert.Equal(t, 50.0, out.Max)
}

func TestErodeHighThresholdKeepsRing(t *testing.T) {
	v := ringVolume()
	out, stats := Erode(v, nil, 1023, 2)

	assert.InDelta(t, 200, stats.Threshold, 1e-9)
	assert.Equal(t, 0, stats.Eroded)
	assert.Equal(t, 100.0, out.Max)
}

func TestErodeThinLine(t *testing.T) {
	v := models.NewVolume(11, 11, 3)
	for x := 3; x <= 7; x++ {
		v.Data[v.Index(x, 5, 1)] = 50
	}
	v.CalcMinMax()

	out, stats := Erode(v, nil, 1023, DefaultAboveMedian)
	assert.Equal(t, 5, stats.Cleaned)
	assert.Equal(t, 0, InsideCount(out))
	assert.Equal(t, 5, InsideCount(v))
}

func TestErodeMaskedNoisyBackground(t *testing.T) {
	v := ringVolume()
	ring := 0
	for i, val := range v.Data {
		switch val {
		case 0:
			v.Data[i] = 5
		case 100:
			ring++
		}
	}
	v.Data[v.Index(0, 0, 0)] = 0
	v.CalcMinMax()

	// no border voxel sits at the minimum
	_, stats := Erode(v, nil, 511.5, DefaultAboveMedian)
	assert.Equal(t, 0, stats.Eroded)

	mask := models.NewMask(v.Width, v.Height, v.Depth)
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				dx, dy := x-10, y-10
				if dx*dx+dy*dy <= 64 {
					mask.Data[mask.Index(x, y, z)] = models.Interior
				}
			}
		}
	}
	out, stats := Erode(v, mask, 511.5, DefaultAboveMedian)
	assert.InDelta(t, 75, stats.Threshold, 1e-9)
	assert.Equal(t, ring, stats.Eroded)
	assert.Equal(t, 12, stats.Cleaned)
	assert.Equal(t, 50.0, out.Max)
	assert.Equal(t, 0.0, out.At(20, 20, 1))
	assert.Equal(t, 5.0, v.At(20, 20, 1), "input must not change")
}

func TestInsideCount(t *testing.T) {
	v := ringVolume()
	n := 0
	for _, val := range v.Data {
		if val > 0 {
			n++
		}
	}
	assert.Equal(t, n, InsideCount(v))
}
