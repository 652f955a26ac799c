package stl

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"brainextract/internal/models"
	"brainextract/pkg/mesh"
)

func sphereMesh(t testing.TB, radius float64) *mesh.Mesh {
	m, err := mesh.Generate(4, models.SurfaceParams{
		Center:   r3.Vec{X: 32, Y: 32, Z: 32},
		Rotation: models.Identity(),
		Lengths:  [3]float64{radius, radius, radius},
	}, [3]float64{1, 1, 1})
	if err != nil {
		t.Fatalf("Failed to generate mesh: %v", err)
	}
	return m
}

// TestFromMesh verifies the facets follow the mesh with outward normals
func TestFromMesh(t *testing.T) {
	m := sphereMesh(t, 10)
	triangles := FromMesh(m, nil)

	if len(triangles) != len(m.Triangles) {
		t.Fatalf("Expected %d triangles, got %d", len(m.Triangles), len(triangles))
	}

	for i, triangle := range triangles {
		cx := (triangle.Vertex1[0]+triangle.Vertex2[0]+triangle.Vertex3[0])/3 - 32
		cy := (triangle.Vertex1[1]+triangle.Vertex2[1]+triangle.Vertex3[1])/3 - 32
		cz := (triangle.Vertex1[2]+triangle.Vertex2[2]+triangle.Vertex3[2])/3 - 32
		mag := float32(math.Sqrt(float64(cx*cx + cy*cy + cz*cz)))

		dot := (cx*triangle.Normal[0] + cy*triangle.Normal[1] + cz*triangle.Normal[2]) / mag
		if dot < 0.9 {
			t.Errorf("Triangle %d normal appears to point inward, dot product: %f", i, dot)
		}
	}
}

// TestFromMeshTransform verifies that the transform is applied to every vertex
func TestFromMeshTransform(t *testing.T) {
	m := sphereMesh(t, 10)
	res := [3]float64{2.5, 1.5, 3.0}
	triangles := FromMesh(m, func(v r3.Vec) r3.Vec {
		return r3.Vec{X: v.X * res[0], Y: v.Y * res[1], Z: v.Z * res[2]}
	})

	want := m.Volume() * res[0] * res[1] * res[2]
	got := Volume(triangles)
	if math.Abs(got-want)/want > 1e-3 {
		t.Errorf("Expected scaled volume %f, got %f", want, got)
	}
}

// TestSaveToSTL verifies that the STL file can be written and read back
func TestSaveToSTL(t *testing.T) {
	triangles := []Triangle{
		{
			Normal:  [3]float32{0, 0, 1},
			Vertex1: [3]float32{0, 0, 0},
			Vertex2: [3]float32{1, 0, 0},
			Vertex3: [3]float32{0, 1, 0},
		},
		{
			Normal:  [3]float32{0, 0, -1},
			Vertex1: [3]float32{0, 0, 0},
			Vertex2: [3]float32{0, 1, 0},
			Vertex3: [3]float32{1, 0, 0},
		},
	}

	filename := filepath.Join(t.TempDir(), "test.stl")
	if err := SaveToSTL(filename, triangles); err != nil {
		t.Fatalf("Failed to save STL: %v", err)
	}

	// STL header: 80 bytes
	// Number of triangles: 4 bytes
	// Triangle: 50 bytes (12 bytes per vertex, 12 bytes per normal, 2 bytes attribute)
	info, err := os.Stat(filename)
	if err != nil {
		t.Fatalf("Failed to stat output file: %v", err)
	}
	if want := int64(80 + 4 + 2*50); info.Size() != want {
		t.Errorf("Expected %d bytes, got %d", want, info.Size())
	}

	got, err := ReadSTL(filename)
	if err != nil {
		t.Fatalf("Failed to read STL: %v", err)
	}
	if len(got) != len(triangles) {
		t.Fatalf("Expected %d triangles, got %d", len(triangles), len(got))
	}
	for i := range triangles {
		if got[i] != triangles[i] {
			t.Errorf("Triangle %d: expected %v, got %v", i, triangles[i], got[i])
		}
	}

	if area := SurfaceArea(got); math.Abs(area-1) > 1e-6 {
		t.Errorf("Expected surface area 1, got %f", area)
	}
}

// TestReadTruncated verifies that a short stream is reported
func TestReadTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FromMesh(sphereMesh(t, 5), nil)); err != nil {
		t.Fatalf("Failed to encode STL: %v", err)
	}
	data := buf.Bytes()[:buf.Len()-10]

	if _, err := Read(bytes.NewReader(data)); err == nil {
		t.Error("Expected an error for a truncated STL stream")
	}
}

// BenchmarkWrite benchmarks encoding a default-level surface
func BenchmarkWrite(b *testing.B) {
	m, err := mesh.NewUnitSphere(mesh.DefaultLevel)
	if err != nil {
		b.Fatal(err)
	}
	triangles := FromMesh(m, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := Write(&buf, triangles); err != nil {
			b.Fatal(err)
		}
	}
}
