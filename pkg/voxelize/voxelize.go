// Package voxelize turns the evolved surface mesh into a filled voxel mask.
//
// The mesh is rasterized along all three grid axes so the resulting shell has
// no pinholes, optionally dilated, and then flood filled from the centroid of
// the shell.
package voxelize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"brainextract/internal/models"
	"brainextract/pkg/mesh"
)

// dilated tags voxels reached by dilation before they collapse to Surface
const dilated byte = 3

// Rasterize marks every voxel crossed by the mesh surface along rays parallel
// to the x, y and z axes.
func Rasterize(m *mesh.Mesh, dims [3]int) *models.Mask {
	mask := models.NewMask(dims[0], dims[1], dims[2])
	for t := range m.Triangles {
		p0, p1, p2 := m.Triangle(t)
		for axis := 0; axis < 3; axis++ {
			rasterizeAlong(mask, axis, p0, p1, p2)
		}
	}
	return mask
}

func component(v r3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// rasterizeAlong intersects the triangle with the grid lines parallel to axis
func rasterizeAlong(mask *models.Mask, axis int, p0, p1, p2 r3.Vec) {
	dims := [3]int{mask.Width, mask.Height, mask.Depth}
	ui, vi := (axis+1)%3, (axis+2)%3

	au, av, aw := component(p0, ui), component(p0, vi), component(p0, axis)
	bu, bv, bw := component(p1, ui), component(p1, vi), component(p1, axis)
	cu, cv, cw := component(p2, ui), component(p2, vi), component(p2, axis)

	det := (bu-au)*(cv-av) - (bv-av)*(cu-au)
	if det == 0 {
		return
	}
	sign := 1.0
	if det < 0 {
		det, sign = -det, -1
	}

	uLo := int(math.Ceil(math.Min(au, math.Min(bu, cu))))
	uHi := int(math.Floor(math.Max(au, math.Max(bu, cu))))
	vLo := int(math.Ceil(math.Min(av, math.Min(bv, cv))))
	vHi := int(math.Floor(math.Max(av, math.Max(bv, cv))))
	if uLo < 0 {
		uLo = 0
	}
	if vLo < 0 {
		vLo = 0
	}
	if uHi > dims[ui]-1 {
		uHi = dims[ui] - 1
	}
	if vHi > dims[vi]-1 {
		vHi = dims[vi] - 1
	}

	var idx [3]int
	for u := uLo; u <= uHi; u++ {
		qu := float64(u) - au
		for v := vLo; v <= vHi; v++ {
			qv := float64(v) - av
			wb := sign * (qu*(cv-av) - qv*(cu-au))
			if wb < 0 || wb > det {
				continue
			}
			wc := sign * ((bu-au)*qv - (bv-av)*qu)
			if wc < 0 || wc > det {
				continue
			}
			wa := det - wb - wc
			if wa < 0 || wa > det {
				continue
			}
			w := int(math.Round((wa*aw + wb*bw + wc*cw) / det))
			if w < 0 || w >= dims[axis] {
				continue
			}
			idx[axis], idx[ui], idx[vi] = w, u, v
			mask.Data[mask.Index(idx[0], idx[1], idx[2])] = models.Surface
		}
	}
}

// Dilate grows the surface by a (2r+1)³ cube around every surface voxel
func Dilate(mask *models.Mask, radius int) {
	if radius <= 0 {
		return
	}
	for z := 0; z < mask.Depth; z++ {
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				if mask.Data[mask.Index(x, y, z)] != models.Surface {
					continue
				}
				for dz := -radius; dz <= radius; dz++ {
					for dy := -radius; dy <= radius; dy++ {
						for dx := -radius; dx <= radius; dx++ {
							if !mask.InBounds(x+dx, y+dy, z+dz) {
								continue
							}
							i := mask.Index(x+dx, y+dy, z+dz)
							if mask.Data[i] == models.Outside {
								mask.Data[i] = dilated
							}
						}
					}
				}
			}
		}
	}
	for i, b := range mask.Data {
		if b == dilated {
			mask.Data[i] = models.Surface
		}
	}
}

// Centroid returns the rounded mean position of the surface voxels away from
// the grid border. ok is false when there are none.
func Centroid(mask *models.Mask) (x, y, z int, ok bool) {
	var xs, ys, zs []float64
	for k := 1; k < mask.Depth-1; k++ {
		for j := 1; j < mask.Height-1; j++ {
			for i := 1; i < mask.Width-1; i++ {
				if mask.Data[mask.Index(i, j, k)] == models.Surface {
					xs = append(xs, float64(i))
					ys = append(ys, float64(j))
					zs = append(zs, float64(k))
				}
			}
		}
	}
	if len(xs) == 0 {
		return 0, 0, 0, false
	}
	x = int(math.Round(stat.Mean(xs, nil)))
	y = int(math.Round(stat.Mean(ys, nil)))
	z = int(math.Round(stat.Mean(zs, nil)))
	return x, y, z, true
}

// FloodFill marks every Outside voxel 6-connected to the seed as Interior and
// returns how many were marked. A seed on the surface fills nothing.
func FloodFill(mask *models.Mask, x, y, z int) (int, error) {
	if int64(len(mask.Data)) > models.MaxVoxels {
		return 0, fmt.Errorf("flood fill: %w: %d voxels", models.ErrResourceExhausted, len(mask.Data))
	}
	if !mask.InBounds(x, y, z) {
		return 0, fmt.Errorf("flood fill: seed (%d,%d,%d) outside %dx%dx%d grid", x, y, z, mask.Width, mask.Height, mask.Depth)
	}
	seed := mask.Index(x, y, z)
	if mask.Data[seed] != models.Outside {
		return 0, nil
	}

	w, h, d := mask.Width, mask.Height, mask.Depth
	plane := w * h
	stack := make([]int32, 0, 6*(w+h+d))
	mask.Data[seed] = models.Interior
	stack = append(stack, int32(seed))
	filled := 1

	push := func(i int) {
		if mask.Data[i] == models.Outside {
			mask.Data[i] = models.Interior
			stack = append(stack, int32(i))
			filled++
		}
	}

	for len(stack) > 0 {
		i := int(stack[len(stack)-1])
		stack = stack[:len(stack)-1]

		cx := i % w
		cy := (i / w) % h
		cz := i / plane
		if cx > 0 {
			push(i - 1)
		}
		if cx < w-1 {
			push(i + 1)
		}
		if cy > 0 {
			push(i - w)
		}
		if cy < h-1 {
			push(i + w)
		}
		if cz > 0 {
			push(i - plane)
		}
		if cz < d-1 {
			push(i + plane)
		}
	}
	return filled, nil
}

// Fill rasterizes the mesh, dilates the shell and flood fills its interior.
// It returns the mask and the number of interior voxels.
func Fill(m *mesh.Mesh, dims [3]int, dilation int) (*models.Mask, int, error) {
	mask := Rasterize(m, dims)
	Dilate(mask, dilation)

	x, y, z, ok := Centroid(mask)
	if !ok {
		return nil, 0, fmt.Errorf("voxelize: %w", models.ErrEmptySurface)
	}
	n, err := FloodFill(mask, x, y, z)
	if err != nil {
		return nil, 0, err
	}
	return mask, n, nil
}

// Apply sets every voxel outside the mask to the volume minimum and refreshes
// the intensity range.
func Apply(v *models.Volume, mask *models.Mask) {
	for i := range v.Data {
		if !mask.Inside(i) {
			v.Data[i] = v.Min
		}
	}
	v.CalcMinMax()
}

// Extract returns a binary selection mask, 1 for every voxel inside the surface
func Extract(mask *models.Mask) []byte {
	out := make([]byte, len(mask.Data))
	for i := range mask.Data {
		if mask.Inside(i) {
			out[i] = 1
		}
	}
	return out
}
