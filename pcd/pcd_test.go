package pcd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	lzf "github.com/zhuyie/golzf"

	"github.com/scanreg/scanreg/mat"
	"github.com/scanreg/scanreg/pc"
)

func TestWriteParseRoundtrip(t *testing.T) {
	in := &pc.PointCloud{
		Points: []mat.Vec3{
			mat.NewVec3(1, 2, 3),
			mat.NewVec3(-4.5, 0.25, 6),
			mat.NewVec3(0, 0, 0),
		},
		Intensity: []float32{0.1, 0.5, 1},
		Normals: []mat.Vec3{
			mat.NewVec3(1, 0, 0),
			mat.NewVec3(0, 1, 0),
			mat.NewVec3(0, 0, 1),
		},
	}

	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatal(err)
	}
	out, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != in.Len() {
		t.Fatalf("expected %d points, got %d", in.Len(), out.Len())
	}
	if !out.HasIntensity() || !out.HasNormals() {
		t.Fatal("intensity and normals must survive the roundtrip")
	}
	for i := 0; i < in.Len(); i++ {
		if in.Vec3At(i) != out.Vec3At(i) {
			t.Errorf("point %d: expected %v, got %v", i, in.Vec3At(i), out.Vec3At(i))
		}
		if in.Intensity[i] != out.Intensity[i] {
			t.Errorf("intensity %d: expected %f, got %f", i, in.Intensity[i], out.Intensity[i])
		}
		if in.NormalAt(i) != out.NormalAt(i) {
			t.Errorf("normal %d: expected %v, got %v", i, in.NormalAt(i), out.NormalAt(i))
		}
	}
}

func TestParseAscii(t *testing.T) {
	src := `# generated by a scanner
VERSION 0.7
FIELDS x y z intensity
SIZE 4 4 4 4
TYPE F F F F
COUNT 1 1 1 1
WIDTH 2
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 2
DATA ascii
1.0 2.0 3.0 0.5
-1.5 0.0 2.25 1.0
`
	out, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", out.Len())
	}
	expected := []mat.Vec3{
		mat.NewVec3(1, 2, 3),
		mat.NewVec3(-1.5, 0, 2.25),
	}
	for i, e := range expected {
		if out.Vec3At(i) != e {
			t.Errorf("point %d: expected %v, got %v", i, e, out.Vec3At(i))
		}
	}
	if !out.HasIntensity() {
		t.Fatal("intensity column must be extracted")
	}
	if out.Intensity[0] != 0.5 || out.Intensity[1] != 1.0 {
		t.Errorf("unexpected intensity values: %v", out.Intensity)
	}
}

func TestParseAsciiPointCountMismatch(t *testing.T) {
	src := `VERSION 0.7
FIELDS x y z
SIZE 4 4 4
TYPE F F F
COUNT 1 1 1
WIDTH 3
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 3
DATA ascii
1 2 3
4 5 6
`
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatal("expected point count mismatch error")
	}
}

func TestParseBinaryCompressed(t *testing.T) {
	points := []mat.Vec3{
		mat.NewVec3(1, 2, 3),
		mat.NewVec3(4, 5, 6),
		mat.NewVec3(7, 8, 9),
		mat.NewVec3(10, 11, 12),
	}

	// binary_compressed stores fields struct-of-arrays
	var soa bytes.Buffer
	for axis := 0; axis < 3; axis++ {
		for _, p := range points {
			binary.Write(&soa, binary.LittleEndian, float32(p[axis]))
		}
	}
	compressed := make([]byte, soa.Len()*2+64)
	n, err := lzf.Compress(soa.Bytes(), compressed)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `VERSION 0.7
FIELDS x y z
SIZE 4 4 4
TYPE F F F
COUNT 1 1 1
WIDTH %d
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS %d
DATA binary_compressed
`, len(points), len(points))
	binary.Write(&buf, binary.LittleEndian, int32(n))
	binary.Write(&buf, binary.LittleEndian, int32(soa.Len()))
	buf.Write(compressed[:n])

	out, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), out.Len())
	}
	for i, e := range points {
		if out.Vec3At(i) != e {
			t.Errorf("point %d: expected %v, got %v", i, e, out.Vec3At(i))
		}
	}
}

func TestParseBinaryTruncated(t *testing.T) {
	var buf bytes.Buffer
	fmt.Fprint(&buf, `VERSION 0.7
FIELDS x y z
SIZE 4 4 4
TYPE F F F
COUNT 1 1 1
WIDTH 2
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 2
DATA binary
`)
	// only one of the two promised points
	for i := 0; i < 3; i++ {
		binary.Write(&buf, binary.LittleEndian, float32(i))
	}
	if _, err := Parse(&buf); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestParseMissingPositionFields(t *testing.T) {
	src := `VERSION 0.7
FIELDS intensity
SIZE 4
TYPE F
COUNT 1
WIDTH 1
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 1
DATA ascii
0.5
`
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatal("expected missing x/y/z error")
	}
}

func TestParseHeaderMismatch(t *testing.T) {
	src := `VERSION 0.7
FIELDS x y z
SIZE 4 4
TYPE F F F
COUNT 1 1 1
WIDTH 1
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 1
DATA ascii
1 2 3
`
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatal("expected header validation error")
	}
}

func TestHeaderStrideAndOffset(t *testing.T) {
	h := &Header{
		Fields: []string{"x", "y", "z", "rgb"},
		Size:   []int{4, 4, 4, 4},
		Count:  []int{1, 1, 1, 1},
	}
	if h.Stride() != 16 {
		t.Errorf("expected stride 16, got %d", h.Stride())
	}
	off, size, ok := h.fieldOffset("z")
	if !ok || off != 8 || size != 4 {
		t.Errorf("unexpected z offset: %d %d %v", off, size, ok)
	}
	if _, _, ok := h.fieldOffset("normal_x"); ok {
		t.Error("unknown field must not resolve")
	}
}

func TestRoundtripPreservesFloat32Precision(t *testing.T) {
	in := &pc.PointCloud{Points: []mat.Vec3{
		mat.NewVec3(math.Pi, -math.E, 1e-7),
	}}
	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatal(err)
	}
	out, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for k := 0; k < 3; k++ {
		if out.Points[0][k] != float64(float32(in.Points[0][k])) {
			t.Errorf("axis %d: expected float32 rounding of %v, got %v",
				k, in.Points[0][k], out.Points[0][k])
		}
	}
}
