// Package surface estimates the initial ellipsoid (or sphere) enclosing the
// brain and the median intensity inside it.
package surface

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"brainextract/internal/models"
	"brainextract/pkg/config"
)

var log = config.NamedLogger("surface")

// minFitPoints is the number of unknowns of the quadric fit
const minFitPoints = 9

// maxLengthFraction bounds each semi-axis relative to the largest physical extent
const maxLengthFraction = 0.75

// Options controls the initial surface estimation
type Options struct {
	// UseSphere skips the ellipsoid fit
	UseSphere bool

	// ReductionFactors scale the fitted semi-axis lengths
	ReductionFactors [3]float64

	// Center, when set, is used as the sphere center in voxel coordinates
	Center *r3.Vec
}

// DefaultReductionFactors shrink the fitted ellipsoid so the surface grows outward
func DefaultReductionFactors() [3]float64 {
	return [3]float64{0.6, 0.4, 0.6}
}

// Estimate returns the initial surface, fitting an ellipsoid unless a sphere
// is requested or the fit fails.
func Estimate(img []int, v *models.Volume, th models.Thresholds, opts Options) (models.SurfaceParams, error) {
	if !opts.UseSphere {
		if p, ok := EstimateEllipsoid(img, v, th, opts.ReductionFactors); ok {
			log.Debugf("ellipsoid fit: center=%v lengths=%v", p.Center, p.Lengths)
			return p, nil
		}
		log.Info("ellipsoid fit failed, falling back to sphere")
	}
	p, err := EstimateSphere(img, v, th, opts.Center)
	if err != nil {
		return p, err
	}
	log.Debugf("sphere estimate: center=%v lengths=%v", p.Center, p.Lengths)
	return p, nil
}

// EstimateEllipsoid fits a quadric to the boundary of the bright voxels in the
// upper part of the head. It reports false if the fit is degenerate.
func EstimateEllipsoid(img []int, v *models.Volume, th models.Thresholds, reduction [3]float64) (models.SurfaceParams, bool) {
	var p models.SurfaceParams

	whole, upper := brightBoundary(img, v, th.Bright)
	points := upper
	if len(points) < minFitPoints {
		points = whole
	}
	if len(points) < minFitPoints {
		return p, false
	}

	res := v.Resolution
	phys := make([]r3.Vec, len(points))
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i, q := range points {
		pp := r3.Vec{X: q.X * res[0], Y: q.Y * res[1], Z: q.Z * res[2]}
		phys[i] = pp
		lo = r3.Vec{X: math.Min(lo.X, pp.X), Y: math.Min(lo.Y, pp.Y), Z: math.Min(lo.Z, pp.Z)}
		hi = r3.Vec{X: math.Max(hi.X, pp.X), Y: math.Max(hi.Y, pp.Y), Z: math.Max(hi.Z, pp.Z)}
	}
	mid := r3.Scale(0.5, r3.Add(lo, hi))
	half := 0.5 * math.Max(hi.X-lo.X, math.Max(hi.Y-lo.Y, hi.Z-lo.Z))
	if !(half > 0) {
		return p, false
	}
	for i := range phys {
		phys[i] = r3.Scale(1/half, r3.Sub(phys[i], mid))
	}

	center, rot, lengths, ok := fitQuadric(phys)
	if !ok {
		return p, false
	}

	maxExtent := math.Max(float64(v.Width)*res[0], math.Max(float64(v.Height)*res[1], float64(v.Depth)*res[2]))
	limit := maxLengthFraction * maxExtent
	axes := gridAxes(rot)
	for i := range lengths {
		l := lengths[i] * half
		if l > limit {
			l = limit
		}
		p.Lengths[i] = l * reduction[axes[i]]
		if !(p.Lengths[i] > 0) {
			return p, false
		}
	}

	c := r3.Add(mid, r3.Scale(half, center))
	p.Center = r3.Vec{X: c.X / res[0], Y: c.Y / res[1], Z: c.Z / res[2]}
	p.Rotation = rot
	return p, true
}

// fitQuadric solves the least-squares problem xᵀMx + gᵀx = 1 and returns the
// center, the proper rotation of the principal axes and the semi-axis lengths.
func fitQuadric(points []r3.Vec) (center r3.Vec, rot [3][3]float64, lengths [3]float64, ok bool) {
	ata := mat.NewSymDense(9, nil)
	atb := mat.NewVecDense(9, nil)
	row := make([]float64, 9)
	for _, q := range points {
		row[0], row[1], row[2] = q.X*q.X, q.Y*q.Y, q.Z*q.Z
		row[3], row[4], row[5] = q.X*q.Y, q.X*q.Z, q.Y*q.Z
		row[6], row[7], row[8] = q.X, q.Y, q.Z
		for i := 0; i < 9; i++ {
			atb.SetVec(i, atb.AtVec(i)+row[i])
			for j := i; j < 9; j++ {
				ata.SetSym(i, j, ata.At(i, j)+row[i]*row[j])
			}
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(ata) {
		return center, rot, lengths, false
	}
	var coef mat.VecDense
	if err := chol.SolveVecTo(&coef, atb); err != nil {
		return center, rot, lengths, false
	}

	a := coef.RawVector().Data
	m := mat.NewSymDense(3, []float64{
		a[0], a[3] / 2, a[4] / 2,
		a[3] / 2, a[1], a[5] / 2,
		a[4] / 2, a[5] / 2, a[2],
	})
	g := mat.NewVecDense(3, []float64{-a[6] / 2, -a[7] / 2, -a[8] / 2})

	var cv mat.VecDense
	if err := cv.SolveVec(m, g); err != nil {
		return center, rot, lengths, false
	}
	center = r3.Vec{X: cv.AtVec(0), Y: cv.AtVec(1), Z: cv.AtVec(2)}

	var mc mat.VecDense
	mc.MulVec(m, &cv)
	k := 1 + mat.Dot(&cv, &mc)

	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return center, rot, lengths, false
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	for i, d := range values {
		ratio := k / d
		if !(ratio > 0) || math.IsInf(ratio, 0) {
			return center, rot, lengths, false
		}
		lengths[i] = math.Sqrt(ratio)
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rot[r][c] = vectors.At(r, c)
		}
	}
	if mat.Det(&vectors) < 0 {
		for r := 0; r < 3; r++ {
			rot[r][2] = -rot[r][2]
		}
	}
	return center, rot, lengths, true
}

// axisPermutations lists every assignment of the three principal axes to x, y and z
var axisPermutations = [6][3]int{
	{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
}

// gridAxes returns, for each principal axis (column of rot), the grid axis it
// is matched to. The matching is the permutation with the largest total
// alignment, so every grid axis is used exactly once.
func gridAxes(rot [3][3]float64) [3]int {
	best, bestScore := axisPermutations[0], math.Inf(-1)
	for _, perm := range axisPermutations {
		score := 0.0
		for i, axis := range perm {
			score += math.Abs(rot[axis][i])
		}
		if score > bestScore {
			best, bestScore = perm, score
		}
	}
	return best
}

// brightBoundary collects the voxels at or above bright that have a 6-neighbor
// below it (or on the grid border). upper holds the subset in the upper half
// of the head for the volume's orientation.
func brightBoundary(img []int, v *models.Volume, bright int) (whole, upper []r3.Vec) {
	w, h, d := v.Width, v.Height, v.Depth
	isBright := func(x, y, z int) bool {
		if x < 0 || y < 0 || z < 0 || x >= w || y >= h || z >= d {
			return false
		}
		return img[x+w*(y+h*z)] >= bright
	}

	minY, maxY := h, -1
	minZ, maxZ := d, -1
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if !isBright(x, y, z) {
					continue
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
				if z < minZ {
					minZ = z
				}
				if z > maxZ {
					maxZ = z
				}
				if isBright(x-1, y, z) && isBright(x+1, y, z) &&
					isBright(x, y-1, z) && isBright(x, y+1, z) &&
					isBright(x, y, z-1) && isBright(x, y, z+1) {
					continue
				}
				whole = append(whole, r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)})
			}
		}
	}

	midY := 0.5 * float64(minY+maxY)
	midZ := 0.5 * float64(minZ+maxZ)
	for _, q := range whole {
		switch v.Orientation {
		case models.Axial:
			if q.Z >= midZ {
				upper = append(upper, q)
			}
		case models.Coronal, models.Sagittal:
			if q.Y <= midY {
				upper = append(upper, q)
			}
		default:
			upper = append(upper, q)
		}
	}
	return whole, upper
}

// EstimateSphere derives a sphere from the number of voxels above background.
// The lengths are 0.45r, 0.45r and 0.3r in x-voxel units, expressed in mm.
func EstimateSphere(img []int, v *models.Volume, th models.Thresholds, center *r3.Vec) (models.SurfaceParams, error) {
	p := models.SurfaceParams{Rotation: models.Identity()}

	count := 0
	var sum r3.Vec
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				if img[v.Index(x, y, z)] >= th.Back {
					count++
					sum = r3.Add(sum, r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)})
				}
			}
		}
	}
	if count == 0 {
		return p, fmt.Errorf("sphere estimate: %w", models.ErrNoForeground)
	}

	r := math.Cbrt(0.75 / math.Pi * float64(count))
	dx := v.Resolution[0]
	p.Lengths = [3]float64{0.45 * r * dx, 0.45 * r * dx, 0.3 * r * dx}

	if center != nil {
		p.Center = *center
	} else {
		p.Center = r3.Scale(1/float64(count), sum)
	}
	return p, nil
}
