// Package mesh builds the closed triangle mesh that is evolved onto the brain
// surface and computes the per-iteration geometric quantities of that mesh.
//
// The mesh starts as a unit octahedron, is refined by edge-midpoint
// subdivision with every new vertex projected back onto the unit sphere, and is
// finally mapped affinely onto the initial ellipsoid. Topology (triangles and
// adjacency) is fixed after construction; only vertex positions change.
package mesh

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"brainextract/internal/models"
)

// ErrInvalidLevel is returned for a non-positive subdivision level
var ErrInvalidLevel = errors.New("subdivision level must be positive")

// DefaultLevel gives 8192 triangles and 4098 vertices
const DefaultLevel = 5

// Mesh is a closed triangle mesh stored as flat arrays indexed by vertex id
type Mesh struct {
	Vertices  []r3.Vec
	Triangles [][3]int

	// Adjacency[i] lists the vertices sharing an edge with vertex i
	Adjacency [][]int
}

// edgeKey identifies an undirected edge by its ordered endpoint pair
type edgeKey struct {
	a, b int
}

func newEdgeKey(i, j int) edgeKey {
	if i > j {
		i, j = j, i
	}
	return edgeKey{i, j}
}

// octahedron returns the unit octahedron with outward (counter-clockwise) winding
func octahedron() ([]r3.Vec, [][3]int) {
	vertices := []r3.Vec{
		{X: 1}, {X: -1},
		{Y: 1}, {Y: -1},
		{Z: 1}, {Z: -1},
	}
	triangles := [][3]int{
		{0, 2, 4}, {2, 1, 4}, {1, 3, 4}, {3, 0, 4},
		{2, 0, 5}, {1, 2, 5}, {3, 1, 5}, {0, 3, 5},
	}
	return vertices, triangles
}

// NewUnitSphere tessellates the unit sphere by subdividing an octahedron
// level times.
func NewUnitSphere(level int) (*Mesh, error) {
	if level < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLevel, level)
	}

	vertices, triangles := octahedron()

	for l := 0; l < level; l++ {
		edges := make(map[edgeKey]int, 3*len(triangles)/2)
		midpoint := func(i, j int) int {
			key := newEdgeKey(i, j)
			if idx, ok := edges[key]; ok {
				return idx
			}
			mid := r3.Unit(r3.Scale(0.5, r3.Add(vertices[i], vertices[j])))
			vertices = append(vertices, mid)
			idx := len(vertices) - 1
			edges[key] = idx
			return idx
		}

		n := len(triangles)
		for t := 0; t < n; t++ {
			a, b, c := triangles[t][0], triangles[t][1], triangles[t][2]
			ab := midpoint(a, b)
			bc := midpoint(b, c)
			ca := midpoint(c, a)

			triangles[t] = [3]int{ab, bc, ca}
			triangles = append(triangles,
				[3]int{a, ab, ca},
				[3]int{ab, b, bc},
				[3]int{ca, bc, c},
			)
		}
	}

	m := &Mesh{
		Vertices:  vertices,
		Triangles: triangles,
	}
	m.buildAdjacency()
	return m, nil
}

// buildAdjacency inserts both endpoints of every triangle edge into each
// other's neighbor list
func (m *Mesh) buildAdjacency() {
	m.Adjacency = make([][]int, len(m.Vertices))
	for i := range m.Adjacency {
		m.Adjacency[i] = make([]int, 0, 6)
	}
	for _, tri := range m.Triangles {
		for k := 0; k < 3; k++ {
			i, j := tri[k], tri[(k+1)%3]
			m.link(i, j)
			m.link(j, i)
		}
	}
}

func (m *Mesh) link(i, j int) {
	for _, n := range m.Adjacency[i] {
		if n == j {
			return
		}
	}
	m.Adjacency[i] = append(m.Adjacency[i], j)
}

// Counts returns the number of vertices and triangles
func (m *Mesh) Counts() (vertices, triangles int) {
	return len(m.Vertices), len(m.Triangles)
}

// EdgeCount returns the number of unique edges
func (m *Mesh) EdgeCount() int {
	n := 0
	for _, adj := range m.Adjacency {
		n += len(adj)
	}
	return n / 2
}

// Clone returns a copy sharing topology but with its own vertex positions
func (m *Mesh) Clone() *Mesh {
	vertices := make([]r3.Vec, len(m.Vertices))
	copy(vertices, m.Vertices)
	return &Mesh{
		Vertices:  vertices,
		Triangles: m.Triangles,
		Adjacency: m.Adjacency,
	}
}

// Triangle returns the corner positions of triangle t
func (m *Mesh) Triangle(t int) (p0, p1, p2 r3.Vec) {
	tri := m.Triangles[t]
	return m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]]
}

// AxisCorrection converts physical offsets into voxel offsets along x, y and z
func AxisCorrection(resolution [3]float64) r3.Vec {
	return r3.Vec{X: 1 / resolution[0], Y: 1 / resolution[1], Z: 1 / resolution[2]}
}

// Transform maps the unit sphere mesh onto the ellipsoid in voxel coordinates:
// each vertex is scaled by the semi-axis lengths, rotated, converted from mm to
// voxels per axis and translated to the center.
func (m *Mesh) Transform(p models.SurfaceParams, resolution [3]float64) {
	corr := AxisCorrection(resolution)
	rot := p.Rotation
	for i, u := range m.Vertices {
		s := r3.Vec{X: u.X * p.Lengths[0], Y: u.Y * p.Lengths[1], Z: u.Z * p.Lengths[2]}
		r := r3.Vec{
			X: rot[0][0]*s.X + rot[0][1]*s.Y + rot[0][2]*s.Z,
			Y: rot[1][0]*s.X + rot[1][1]*s.Y + rot[1][2]*s.Z,
			Z: rot[2][0]*s.X + rot[2][1]*s.Y + rot[2][2]*s.Z,
		}
		m.Vertices[i] = r3.Vec{
			X: p.Center.X + r.X*corr.X,
			Y: p.Center.Y + r.Y*corr.Y,
			Z: p.Center.Z + r.Z*corr.Z,
		}
	}
}

// Generate builds a unit sphere at the given level and maps it onto the ellipsoid
func Generate(level int, p models.SurfaceParams, resolution [3]float64) (*Mesh, error) {
	m, err := NewUnitSphere(level)
	if err != nil {
		return nil, err
	}
	m.Transform(p, resolution)
	return m, nil
}
