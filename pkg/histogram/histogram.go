// Package histogram derives the background, minimum and brightness thresholds
// that drive the brain surface evolution from a 1024-bin intensity histogram.
package histogram

import (
	"math"

	"brainextract/internal/models"
)

// Bins is the number of histogram bins; images are remapped onto [0, Bins-1]
const Bins = 1024

const (
	// backgroundSearch is the number of low bins searched for the background peak
	backgroundSearch = 64

	// lowFraction and highFraction are the cumulative cutoffs of the fallback method
	lowFraction  = 0.03
	highFraction = 0.98

	// brightFraction of the reduced quantity lies below the bright threshold
	brightFraction = 0.95
)

// Remap linearly rescales the volume intensities from [v.Min, v.Max] onto
// [0, Bins-1]. A constant volume maps to all zeros.
func Remap(v *models.Volume) []int {
	out := make([]int, len(v.Data))
	span := v.Max - v.Min
	if !(span > 0) {
		return out
	}
	scale := float64(Bins-1) / span
	for i, val := range v.Data {
		iv := int((val - v.Min) * scale)
		if iv < 0 {
			iv = 0
		} else if iv >= Bins {
			iv = Bins - 1
		}
		out[i] = iv
	}
	return out
}

// ToPhysical maps a remapped intensity back into the volume's original range
func ToPhysical(v *models.Volume, value float64) float64 {
	return v.Min + value/float64(Bins-1)*(v.Max-v.Min)
}

// Build counts the remapped intensities
func Build(image []int) []int {
	hist := make([]int, Bins)
	for _, val := range image {
		if val < 0 {
			val = 0
		} else if val >= Bins {
			val = Bins - 1
		}
		hist[val]++
	}
	return hist
}

// Analyze computes the intensity thresholds of a remapped image. It never
// fails: degenerate histograms produce degenerate but ordered thresholds.
func Analyze(image []int) models.Thresholds {
	return FromHistogram(Build(image))
}

// FromHistogram computes the thresholds from a Bins-sized histogram
func FromHistogram(hist []int) models.Thresholds {
	var th models.Thresholds

	total := 0
	for _, c := range hist {
		total += c
	}

	peak := 0
	for i := 1; i < backgroundSearch; i++ {
		if hist[i] > hist[peak] {
			peak = i
		}
	}

	low := cumulativeIndex(hist, total, lowFraction)
	th.Max = cumulativeIndex(hist, total, highFraction)

	// Above-background voxels counted from this bin upward
	reducedFrom := peak + 1
	if peak == backgroundSearch-1 {
		th.Min = low
		th.Back = int(math.Floor(0.9*float64(low) + 0.1*float64(th.Max)))
		reducedFrom = low + 1
	} else {
		th.Back = peak + 1
	}

	reduced := 0
	for i := reducedFrom; i < len(hist); i++ {
		reduced += hist[i]
	}
	cutoff := brightFraction * float64(reduced)

	th.Bright = th.Back
	cum := 0
	for i := th.Back; i < len(hist); i++ {
		cum += hist[i]
		if float64(cum) > cutoff {
			break
		}
		th.Bright = i
	}

	switch th.Back {
	case 0:
		th.Back = 1
		th.Min = 0
	case 1:
		th.Min = 0
	default:
		th.Min = th.Back / 2
	}
	if th.Min == th.Back {
		th.Back++
	}
	if th.Bright < th.Back {
		th.Bright = th.Back
	}
	if th.Max < th.Back {
		th.Max = th.Back
	}
	return th
}

// cumulativeIndex returns the first bin at which the cumulative count reaches
// fraction of total
func cumulativeIndex(hist []int, total int, fraction float64) int {
	target := fraction * float64(total)
	cum := 0
	for i, c := range hist {
		cum += c
		if float64(cum) >= target && cum > 0 {
			return i
		}
	}
	return 0
}
