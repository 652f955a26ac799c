package models

// Mask voxel codes
const (
	Outside  byte = 0
	Surface  byte = 1
	Interior byte = 2
)

// Mask is a byte-valued 3D array with the same extents and indexing as a Volume
type Mask struct {
	Data []byte

	Width  int
	Height int
	Depth  int
}

// NewMask allocates a mask filled with Outside
func NewMask(width, height, depth int) *Mask {
	return &Mask{
		Data:   make([]byte, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Index returns the linear index of voxel (x, y, z)
func (m *Mask) Index(x, y, z int) int {
	return x + m.Width*(y+m.Height*z)
}

// InBounds reports whether (x, y, z) lies inside the grid
func (m *Mask) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < m.Width && y < m.Height && z < m.Depth
}

// Inside reports whether voxel i is on the surface or in the interior
func (m *Mask) Inside(i int) bool {
	return m.Data[i] != Outside
}

// Count returns the number of inside voxels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Data {
		if b != Outside {
			n++
		}
	}
	return n
}

// CountValue returns the number of voxels holding the given code
func (m *Mask) CountValue(code byte) int {
	n := 0
	for _, b := range m.Data {
		if b == code {
			n++
		}
	}
	return n
}
