package models

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Thresholds holds the intensity levels derived from the histogram of the
// remapped [0,1023] image, plus the median intensity inside the initial surface.
type Thresholds struct {
	Min    int
	Back   int
	Max    int
	Bright int

	Median float64
}

// String formats the thresholds for logging
func (t Thresholds) String() string {
	return fmt.Sprintf("min=%d back=%d max=%d bright=%d median=%.1f", t.Min, t.Back, t.Max, t.Bright, t.Median)
}

// SurfaceParams describes the initial ellipsoid (or sphere).
type SurfaceParams struct {
	// Center in voxel coordinates
	Center r3.Vec

	// Rotation is a proper rotation in physical space; column i is the
	// direction of semi-axis i
	Rotation [3][3]float64

	// Lengths are the semi-axis lengths in mm
	Lengths [3]float64
}

// Axis returns the unit direction of semi-axis i
func (p SurfaceParams) Axis(i int) r3.Vec {
	return r3.Vec{X: p.Rotation[0][i], Y: p.Rotation[1][i], Z: p.Rotation[2][i]}
}

// Identity returns the identity rotation
func Identity() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// EvolutionParams are the tunables of one evolution phase
type EvolutionParams struct {
	// MaxDepth is the number of samples taken along the inward normal
	MaxDepth int

	// HalfMaxDepth is the number of leading samples that feed the maximum
	HalfMaxDepth int

	// RayDelta is the step between samples in voxels
	RayDelta float64

	// Stiffness scales the curvature-driven normal term
	Stiffness float64

	// ImageFactor scales the image-driven normal term
	ImageFactor float64

	// BrainSelection is subtracted from the normalized intensity ratio
	BrainSelection float64
}

// PhaseA returns the stiff, short first phase preset
func PhaseA() EvolutionParams {
	return EvolutionParams{
		MaxDepth:       7,
		HalfMaxDepth:   3,
		RayDelta:       1.0,
		Stiffness:      0.2,
		ImageFactor:    0.1,
		BrainSelection: 0.5,
	}
}

// DefaultPhaseB returns the default looser second phase
func DefaultPhaseB() EvolutionParams {
	return EvolutionParams{
		MaxDepth:       7,
		HalfMaxDepth:   3,
		RayDelta:       1.0,
		Stiffness:      0.15,
		ImageFactor:    0.08,
		BrainSelection: 0.5,
	}
}
