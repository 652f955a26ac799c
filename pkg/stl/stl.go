// Package stl writes and reads binary STL files of the brain surface mesh.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"brainextract/pkg/mesh"
)

const (
	headerSize   = 80
	triangleSize = 50
)

// Triangle is one facet of an STL file
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

func toArray(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func toVec(a [3]float32) r3.Vec {
	return r3.Vec{X: float64(a[0]), Y: float64(a[1]), Z: float64(a[2])}
}

// FromMesh converts the mesh into STL facets. transform maps each vertex
// into output coordinates; nil keeps voxel coordinates.
func FromMesh(m *mesh.Mesh, transform func(r3.Vec) r3.Vec) []Triangle {
	if transform == nil {
		transform = func(v r3.Vec) r3.Vec { return v }
	}
	triangles := make([]Triangle, 0, len(m.Triangles))
	for t := range m.Triangles {
		p0, p1, p2 := m.Triangle(t)
		p0, p1, p2 = transform(p0), transform(p1), transform(p2)

		n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		triangles = append(triangles, Triangle{
			Normal:  toArray(n),
			Vertex1: toArray(p0),
			Vertex2: toArray(p1),
			Vertex3: toArray(p2),
		})
	}
	return triangles
}

// SaveToSTL writes the triangles as a binary STL file
func SaveToSTL(filename string, triangles []Triangle) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating STL file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := Write(w, triangles); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("error writing STL file: %w", err)
	}
	return f.Close()
}

// Write encodes the triangles in binary STL form
func Write(w io.Writer, triangles []Triangle) error {
	var header [headerSize]byte
	copy(header[:], "brainextract surface")
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("error writing STL header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("error writing triangle count: %w", err)
	}

	buf := make([]byte, triangleSize)
	for _, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(c))
				off += 4
			}
		}
		binary.LittleEndian.PutUint16(buf[off:], 0)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("error writing triangle: %w", err)
		}
	}
	return nil
}

// ReadSTL reads a binary STL file
func ReadSTL(filename string) ([]Triangle, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}

// Read decodes a binary STL stream
func Read(r io.Reader) ([]Triangle, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("error reading STL header: %w", err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("error reading triangle count: %w", err)
	}

	triangles := make([]Triangle, 0, count)
	buf := make([]byte, triangleSize)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("error reading triangle %d of %d: %w", i, count, err)
		}
		var vs [4][3]float32
		off := 0
		for j := range vs {
			for k := range vs[j] {
				vs[j][k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
				off += 4
			}
		}
		triangles = append(triangles, Triangle{Normal: vs[0], Vertex1: vs[1], Vertex2: vs[2], Vertex3: vs[3]})
	}
	return triangles, nil
}

// SurfaceArea returns the total area of the triangles
func SurfaceArea(triangles []Triangle) float64 {
	area := 0.0
	for _, t := range triangles {
		a, b, c := toVec(t.Vertex1), toVec(t.Vertex2), toVec(t.Vertex3)
		area += 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
	}
	return area
}

// Volume returns the enclosed volume of a closed, consistently oriented set
// of triangles
func Volume(triangles []Triangle) float64 {
	volume := 0.0
	for _, t := range triangles {
		a, b, c := toVec(t.Vertex1), toVec(t.Vertex2), toVec(t.Vertex3)
		volume += r3.Dot(a, r3.Cross(b, c))
	}
	return math.Abs(volume / 6)
}
