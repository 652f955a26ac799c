package models

import (
	"fmt"
	"math"
	"strings"
)

// MaxVoxels is the largest volume the engine accepts. Flood fill keeps voxel
// indices on an int32 stack, so larger grids cannot be addressed.
const MaxVoxels = math.MaxInt32

// Orientation describes how the scan axes map onto the head.
type Orientation int

const (
	Unknown Orientation = iota
	Axial
	Coronal
	Sagittal
)

// String returns the lower-case name used in configuration files
func (o Orientation) String() string {
	switch o {
	case Axial:
		return "axial"
	case Coronal:
		return "coronal"
	case Sagittal:
		return "sagittal"
	default:
		return "unknown"
	}
}

// ParseOrientation converts a configuration string into an Orientation.
// Empty strings map to Unknown.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return Unknown, nil
	case "axial":
		return Axial, nil
	case "coronal":
		return Coronal, nil
	case "sagittal":
		return Sagittal, nil
	}
	return Unknown, fmt.Errorf("invalid orientation %q (must be axial, coronal, sagittal or unknown)", s)
}

// Volume represents a 3D scalar MRI volume
type Volume struct {
	// Data is the volume data as a 1D array, index = x + Width*(y + Height*z)
	Data []float64

	// Width, Height and Depth are the extents along x, y and z in voxels
	Width  int
	Height int
	Depth  int

	// Resolution is the physical size of a voxel along x, y and z in mm
	Resolution [3]float64

	// Origin is the physical position of voxel (0,0,0) in mm
	Origin [3]float64

	// Orientation of the acquisition, used to pick the upper head region
	Orientation Orientation

	// Min and Max are the intensity range, refreshed by CalcMinMax
	Min float64
	Max float64
}

// NewVolume allocates a zero-filled volume with unit resolution
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:       make([]float64, width*height*depth),
		Width:      width,
		Height:     height,
		Depth:      depth,
		Resolution: [3]float64{1, 1, 1},
	}
}

// Dims returns the extents as an array
func (v *Volume) Dims() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// Len returns the number of voxels
func (v *Volume) Len() int {
	return v.Width * v.Height * v.Depth
}

// Index returns the linear index of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return x + v.Width*(y+v.Height*z)
}

// At returns the intensity at voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// VoxelVolume returns the physical volume of one voxel in mm³
func (v *Volume) VoxelVolume() float64 {
	return v.Resolution[0] * v.Resolution[1] * v.Resolution[2]
}

// CalcMinMax recomputes Min and Max from the data
func (v *Volume) CalcMinMax() {
	if len(v.Data) == 0 {
		v.Min, v.Max = 0, 0
		return
	}
	v.Min, v.Max = v.Data[0], v.Data[0]
	for _, val := range v.Data[1:] {
		if val < v.Min {
			v.Min = val
		}
		if val > v.Max {
			v.Max = val
		}
	}
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	c := *v
	c.Data = make([]float64, len(v.Data))
	copy(c.Data, v.Data)
	return &c
}

// Validate checks that the volume can be processed
func (v *Volume) Validate() error {
	if v == nil || v.Data == nil {
		return fmt.Errorf("%w: no image data", ErrInvalidVolume)
	}
	if v.Width < 3 || v.Height < 3 || v.Depth < 3 {
		return fmt.Errorf("%w: extents %dx%dx%d are not a 3D volume", ErrInvalidVolume, v.Width, v.Height, v.Depth)
	}
	n := int64(v.Width) * int64(v.Height) * int64(v.Depth)
	if n > MaxVoxels {
		return fmt.Errorf("%w: %d voxels exceeds limit of %d", ErrResourceExhausted, n, int64(MaxVoxels))
	}
	if int64(len(v.Data)) != n {
		return fmt.Errorf("%w: data length %d does not match extents %dx%dx%d", ErrInvalidVolume, len(v.Data), v.Width, v.Height, v.Depth)
	}
	for i, r := range v.Resolution {
		if !(r > 0) {
			return fmt.Errorf("%w: resolution[%d] = %g must be positive", ErrInvalidVolume, i, r)
		}
	}
	return nil
}
