package surface

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"brainextract/internal/models"
)

// MedianIntensity returns the median remapped intensity of the above-background
// voxels inside the initial ellipsoid. It returns ErrEmptySurface when no voxel
// qualifies.
func MedianIntensity(img []int, v *models.Volume, th models.Thresholds, p models.SurfaceParams) (float64, error) {
	res := v.Resolution
	rot := p.Rotation

	// Voxel bounding box of the ellipsoid
	var lo, hi [3]int
	dims := v.Dims()
	center := [3]float64{p.Center.X, p.Center.Y, p.Center.Z}
	for j := 0; j < 3; j++ {
		ext := 0.0
		for k := 0; k < 3; k++ {
			e := rot[j][k] * p.Lengths[k]
			ext += e * e
		}
		ext = math.Sqrt(ext) / res[j]
		lo[j] = clampInt(int(math.Floor(center[j]-ext)), 0, dims[j]-1)
		hi[j] = clampInt(int(math.Ceil(center[j]+ext)), 0, dims[j]-1)
	}

	var inv [3]float64
	for k := 0; k < 3; k++ {
		if !(p.Lengths[k] > 0) {
			return 0, fmt.Errorf("median intensity: %w", models.ErrEmptySurface)
		}
		inv[k] = 1 / p.Lengths[k]
	}

	var values []int
	for z := lo[2]; z <= hi[2]; z++ {
		dz := (float64(z) - p.Center.Z) * res[2]
		for y := lo[1]; y <= hi[1]; y++ {
			dy := (float64(y) - p.Center.Y) * res[1]
			for x := lo[0]; x <= hi[0]; x++ {
				val := img[v.Index(x, y, z)]
				if val <= th.Back {
					continue
				}
				dx := (float64(x) - p.Center.X) * res[0]
				sum := 0.0
				for k := 0; k < 3; k++ {
					q := (rot[0][k]*dx + rot[1][k]*dy + rot[2][k]*dz) * inv[k]
					sum += q * q
				}
				if sum <= 1 {
					values = append(values, val)
				}
			}
		}
	}

	if len(values) == 0 {
		return 0, fmt.Errorf("median intensity: %w", models.ErrEmptySurface)
	}
	sort.Ints(values)
	return float64(values[len(values)/2]), nil
}

// GlobalMedian returns the median remapped intensity over every voxel above
// background. It is the fallback when the initial surface is empty.
func GlobalMedian(img []int, th models.Thresholds) (float64, error) {
	var values []float64
	for _, val := range img {
		if val > th.Back {
			values = append(values, float64(val))
		}
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("global median: %w", models.ErrNoForeground)
	}
	sort.Float64s(values)
	return stat.Quantile(0.5, stat.Empirical, values, nil), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
