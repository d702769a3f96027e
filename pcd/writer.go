package pcd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/scanreg/scanreg/pc"
)

// Write stores the cloud in binary PCD format. Intensity and normals
// are written when the cloud carries them.
func Write(w io.Writer, pp *pc.PointCloud) error {
	fields := []string{"x", "y", "z"}
	if pp.HasIntensity() {
		fields = append(fields, "intensity")
	}
	if pp.HasNormals() {
		fields = append(fields, "normal_x", "normal_y", "normal_z")
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "VERSION 0.7")
	fmt.Fprint(bw, "FIELDS")
	for _, f := range fields {
		fmt.Fprint(bw, " ", f)
	}
	fmt.Fprintln(bw)
	fmt.Fprint(bw, "SIZE")
	for range fields {
		fmt.Fprint(bw, " 4")
	}
	fmt.Fprintln(bw)
	fmt.Fprint(bw, "TYPE")
	for range fields {
		fmt.Fprint(bw, " F")
	}
	fmt.Fprintln(bw)
	fmt.Fprint(bw, "COUNT")
	for range fields {
		fmt.Fprint(bw, " 1")
	}
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "WIDTH %d\n", pp.Len())
	fmt.Fprintln(bw, "HEIGHT 1")
	fmt.Fprintln(bw, "VIEWPOINT 0 0 0 1 0 0 0")
	fmt.Fprintf(bw, "POINTS %d\n", pp.Len())
	fmt.Fprintln(bw, "DATA binary")

	put := func(v float64) error {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
		_, err := bw.Write(b[:])
		return err
	}
	for i := 0; i < pp.Len(); i++ {
		p := pp.Vec3At(i)
		for _, v := range p {
			if err := put(v); err != nil {
				return err
			}
		}
		if pp.HasIntensity() {
			if err := put(float64(pp.Intensity[i])); err != nil {
				return err
			}
		}
		if pp.HasNormals() {
			n := pp.NormalAt(i)
			for _, v := range n {
				if err := put(v); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// WriteFile stores the cloud at path in binary PCD format.
func WriteFile(path string, pp *pc.PointCloud) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, pp); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
