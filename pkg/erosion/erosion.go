// Package erosion removes bright non-brain tissue (scalp fat, marrow) that
// the surface may have captured, working slice by slice from the outside in.
package erosion

import (
	"brainextract/internal/models"
	"brainextract/pkg/config"
	"brainextract/pkg/histogram"
)

var log = config.NamedLogger("erosion")

// DefaultAboveMedian scales the median intensity into the erosion threshold
const DefaultAboveMedian = 1.5

// Stats summarizes one erosion run
type Stats struct {
	// Threshold in the volume's own intensity range
	Threshold float64

	// Reached is the number of background voxels connected to the slice border
	Reached int

	// Eroded is the number of bright voxels removed from the outside in
	Eroded int

	// Cleaned is the number of thin-feature voxels removed
	Cleaned int
}

// slice is the 2D working view of one z plane
type slice struct {
	w, h   int
	values []float64
	chk    []bool
}

// Erode returns a copy of v with bright rims connected to the outer
// background set to v.Min. median is a remapped intensity in [0, 1023] of v.
// When mask is non-nil every voxel outside it starts at v.Min, so the outer
// background is whatever the mask excluded.
func Erode(v *models.Volume, mask *models.Mask, median, factor float64) (*models.Volume, Stats) {
	out := v.Clone()
	if mask != nil {
		for i := range out.Data {
			if !mask.Inside(i) {
				out.Data[i] = v.Min
			}
		}
	}
	stats := Stats{Threshold: histogram.ToPhysical(v, median) * factor}

	plane := v.Width * v.Height
	s := slice{w: v.Width, h: v.Height, chk: make([]bool, plane)}
	for z := 0; z < v.Depth; z++ {
		s.values = out.Data[z*plane : (z+1)*plane]
		for i := range s.chk {
			s.chk[i] = false
		}
		stats.Reached += s.markOutside(v.Min)
		stats.Eroded += s.erodeBright(v.Min, stats.Threshold)
		stats.Cleaned += s.cleanThin(v.Min)
	}

	out.CalcMinMax()
	log.Debugf("erosion: threshold=%.2f reached=%d eroded=%d cleaned=%d",
		stats.Threshold, stats.Reached, stats.Eroded, stats.Cleaned)
	return out, stats
}

// neighbors calls fn with the index of every in-slice 4-neighbor of i
func (s *slice) neighbors(i int, fn func(j int)) {
	x, y := i%s.w, i/s.w
	if x > 0 {
		fn(i - 1)
	}
	if x < s.w-1 {
		fn(i + 1)
	}
	if y > 0 {
		fn(i - s.w)
	}
	if y < s.h-1 {
		fn(i + s.w)
	}
}

// markOutside flags the background pixels connected to the slice border
func (s *slice) markOutside(background float64) int {
	n := 0
	for i, val := range s.values {
		x, y := i%s.w, i/s.w
		onBorder := x == 0 || y == 0 || x == s.w-1 || y == s.h-1
		if onBorder && val <= background {
			s.chk[i] = true
			n++
		}
	}

	for changed := true; changed; {
		changed = false
		for i, val := range s.values {
			if s.chk[i] || val > background {
				continue
			}
			reached := false
			s.neighbors(i, func(j int) {
				if s.chk[j] {
					reached = true
				}
			})
			if reached {
				s.chk[i] = true
				n++
				changed = true
			}
		}
	}
	return n
}

// erodeBright removes pixels at or above threshold that touch an eroded
// pixel and have at least one more bright or eroded neighbor
func (s *slice) erodeBright(background, threshold float64) int {
	n := 0
	for changed := true; changed; {
		changed = false
		for i, val := range s.values {
			if s.chk[i] || val < threshold {
				continue
			}
			eroded, support := 0, 0
			s.neighbors(i, func(j int) {
				if s.chk[j] {
					eroded++
					support++
				} else if s.values[j] >= threshold {
					support++
				}
			})
			if eroded > 0 && support >= 2 {
				s.values[i] = background
				s.chk[i] = true
				n++
				changed = true
			}
		}
	}
	return n
}

// cleanThin removes above-background pixels with at most one
// above-background neighbor
func (s *slice) cleanThin(background float64) int {
	n := 0
	for changed := true; changed; {
		changed = false
		for i, val := range s.values {
			if val <= background {
				continue
			}
			kept := 0
			s.neighbors(i, func(j int) {
				if s.values[j] > background {
					kept++
				}
			})
			if kept <= 1 {
				s.values[i] = background
				s.chk[i] = true
				n++
				changed = true
			}
		}
	}
	return n
}

// InsideCount returns the number of voxels above the volume minimum
func InsideCount(v *models.Volume) int {
	n := 0
	for _, val := range v.Data {
		if val > v.Min {
			n++
		}
	}
	return n
}
