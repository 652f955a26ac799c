package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// VertexInfo holds the per-vertex quantities recomputed every evolution step
type VertexInfo struct {
	// Mean is the average position of the adjacent vertices
	Mean r3.Vec

	// NormalPart and TangentPart decompose Mean minus the vertex position
	// along the vertex normal and within the tangent plane
	NormalPart  r3.Vec
	TangentPart r3.Vec

	// Curvature is 2|NormalPart| / L², L the mean edge length
	Curvature float64
}

// MeanEdgeLength returns the average length over all unique edges
func (m *Mesh) MeanEdgeLength() float64 {
	sum := 0.0
	n := 0
	for i, adj := range m.Adjacency {
		for _, j := range adj {
			if j > i {
				sum += r3.Norm(r3.Sub(m.Vertices[j], m.Vertices[i]))
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// VertexNormals accumulates the un-normalized triangle normals onto each
// corner and normalizes the sums. Vertices whose sum vanishes keep a zero
// normal. dst is reused when it has the right length.
func (m *Mesh) VertexNormals(dst []r3.Vec) []r3.Vec {
	if len(dst) != len(m.Vertices) {
		dst = make([]r3.Vec, len(m.Vertices))
	} else {
		for i := range dst {
			dst[i] = r3.Vec{}
		}
	}

	for _, tri := range m.Triangles {
		p0, p1, p2 := m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]]
		n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
		dst[tri[0]] = r3.Add(dst[tri[0]], n)
		dst[tri[1]] = r3.Add(dst[tri[1]], n)
		dst[tri[2]] = r3.Add(dst[tri[2]], n)
	}

	for i, n := range dst {
		if l := r3.Norm(n); l > 0 {
			dst[i] = r3.Scale(1/l, n)
		}
	}
	return dst
}

// VertexInformation fills dst with the neighbor mean, its normal/tangent
// decomposition and the curvature of every vertex, and returns the global
// curvature range.
func (m *Mesh) VertexInformation(normals []r3.Vec, meanEdge float64, dst []VertexInfo) (info []VertexInfo, minCurv, maxCurv float64) {
	if len(dst) != len(m.Vertices) {
		dst = make([]VertexInfo, len(m.Vertices))
	}

	invL2 := 0.0
	if meanEdge > 0 {
		invL2 = 1 / (meanEdge * meanEdge)
	}

	minCurv, maxCurv = math.Inf(1), math.Inf(-1)
	for i, v := range m.Vertices {
		var mean r3.Vec
		adj := m.Adjacency[i]
		for _, j := range adj {
			mean = r3.Add(mean, m.Vertices[j])
		}
		if len(adj) > 0 {
			mean = r3.Scale(1/float64(len(adj)), mean)
		} else {
			mean = v
		}

		s := r3.Sub(mean, v)
		sn := r3.Scale(r3.Dot(s, normals[i]), normals[i])
		st := r3.Sub(s, sn)
		curv := 2 * r3.Norm(sn) * invL2

		dst[i] = VertexInfo{
			Mean:        mean,
			NormalPart:  sn,
			TangentPart: st,
			Curvature:   curv,
		}
		if curv < minCurv {
			minCurv = curv
		}
		if curv > maxCurv {
			maxCurv = curv
		}
	}
	if len(m.Vertices) == 0 {
		minCurv, maxCurv = 0, 0
	}
	return dst, minCurv, maxCurv
}

// Volume returns the enclosed volume in voxel units from the signed volumes
// of the tetrahedra formed with the origin
func (m *Mesh) Volume() float64 {
	sum := 0.0
	for t := range m.Triangles {
		p0, p1, p2 := m.Triangle(t)
		sum += r3.Dot(p0, r3.Cross(p1, p2))
	}
	return math.Abs(sum / 6)
}

// Bounds returns the axis-aligned bounding box of the vertices
func (m *Mesh) Bounds() (lo, hi r3.Vec) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		lo = r3.Vec{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vec{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi
}

// Centroid returns the mean vertex position
func (m *Mesh) Centroid() r3.Vec {
	var c r3.Vec
	for _, v := range m.Vertices {
		c = r3.Add(c, v)
	}
	if len(m.Vertices) > 0 {
		c = r3.Scale(1/float64(len(m.Vertices)), c)
	}
	return c
}
