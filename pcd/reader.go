package pcd

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	lzf "github.com/zhuyie/golzf"

	"github.com/scanreg/scanreg/mat"
	"github.com/scanreg/scanreg/pc"
)

// Parse reads a PCD stream. Positions come from the x/y/z fields;
// intensity and normal_x/normal_y/normal_z are extracted when present,
// all other fields are ignored.
func Parse(r io.Reader) (*pc.PointCloud, error) {
	rb := bufio.NewReader(r)
	h := &Header{}

L_HEADER:
	for {
		line, _, err := rb.ReadLine()
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(string(line), "#") {
			continue
		}
		args := strings.Fields(string(line))
		if len(args) < 2 {
			return nil, errors.New("header field must have value")
		}
		switch args[0] {
		case "VERSION":
			f, err := strconv.ParseFloat(args[1], 32)
			if err != nil {
				return nil, err
			}
			h.Version = float32(f)
		case "FIELDS":
			h.Fields = args[1:]
		case "SIZE":
			h.Size = make([]int, len(args)-1)
			for i, s := range args[1:] {
				h.Size[i], err = strconv.Atoi(s)
				if err != nil {
					return nil, err
				}
			}
		case "TYPE":
			h.Type = args[1:]
		case "COUNT":
			h.Count = make([]int, len(args)-1)
			for i, s := range args[1:] {
				h.Count[i], err = strconv.Atoi(s)
				if err != nil {
					return nil, err
				}
			}
		case "WIDTH":
			h.Width, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "HEIGHT":
			h.Height, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "VIEWPOINT":
			h.Viewpoint = make([]float32, len(args)-1)
			for i, s := range args[1:] {
				f, err := strconv.ParseFloat(s, 32)
				if err != nil {
					return nil, err
				}
				h.Viewpoint[i] = float32(f)
			}
		case "POINTS":
			h.Points, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "DATA":
			switch args[1] {
			case "ascii":
				h.Format = Ascii
			case "binary":
				h.Format = Binary
			case "binary_compressed":
				h.Format = BinaryCompressed
			default:
				return nil, errors.New("unknown data format")
			}
			break L_HEADER
		}
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	if h.Format == Ascii {
		return parseAscii(rb, h)
	}

	data, err := readPayload(rb, h)
	if err != nil {
		return nil, err
	}
	return decodeBinary(data, h)
}

// ParseFile reads a PCD file from disk.
func ParseFile(path string) (*pc.PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// readPayload returns the point records in array-of-structs layout.
// binary_compressed payloads are lzf-decompressed and transposed from
// the per-field layout.
func readPayload(rb *bufio.Reader, h *Header) ([]byte, error) {
	if h.Format == Binary {
		b, err := io.ReadAll(rb)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	var nCompressed, nUncompressed int32
	if err := binary.Read(rb, binary.LittleEndian, &nCompressed); err != nil {
		return nil, err
	}
	if err := binary.Read(rb, binary.LittleEndian, &nUncompressed); err != nil {
		return nil, err
	}

	b, err := io.ReadAll(rb)
	if err != nil {
		return nil, err
	}
	if int(nCompressed) > len(b) {
		return nil, errors.New("compressed payload is truncated")
	}

	dec := make([]byte, nUncompressed)
	n, err := lzf.Decompress(b[:nCompressed], dec)
	if err != nil {
		return nil, err
	}
	if int(nUncompressed) != n {
		return nil, errors.New("wrong uncompressed size")
	}

	head := make([]int, len(h.Fields))
	offset := make([]int, len(h.Fields))
	var pos, off int
	for i := range h.Fields {
		head[i] = pos
		offset[i] = off
		pos += h.Size[i] * h.Count[i] * h.Points
		off += h.Size[i] * h.Count[i]
	}

	stride := h.Stride()
	data := make([]byte, n)
	for p := 0; p < h.Points; p++ {
		for i := range head {
			size := h.Size[i] * h.Count[i]
			to := p*stride + offset[i]
			from := head[i] + p*size
			copy(data[to:to+size], dec[from:from+size])
		}
	}
	return data, nil
}

func decodeBinary(data []byte, h *Header) (*pc.PointCloud, error) {
	stride := h.Stride()
	if stride*h.Points > len(data) {
		return nil, errors.New("point data is truncated")
	}

	xOff, xSize, ok := h.fieldOffset("x")
	yOff, _, okY := h.fieldOffset("y")
	zOff, _, okZ := h.fieldOffset("z")
	if !ok || !okY || !okZ || xSize != 4 {
		return nil, errors.New("x/y/z float fields are required")
	}
	iOff, _, hasIntensity := h.fieldOffset("intensity")
	nxOff, _, hasNX := h.fieldOffset("normal_x")
	nyOff, _, hasNY := h.fieldOffset("normal_y")
	nzOff, _, hasNZ := h.fieldOffset("normal_z")
	hasNormals := hasNX && hasNY && hasNZ

	f32 := func(base, off int) float64 {
		return float64(math.Float32frombits(
			binary.LittleEndian.Uint32(data[base+off : base+off+4])))
	}

	out := &pc.PointCloud{Points: make([]mat.Vec3, h.Points)}
	if hasIntensity {
		out.Intensity = make([]float32, h.Points)
	}
	if hasNormals {
		out.Normals = make([]mat.Vec3, h.Points)
	}
	for p := 0; p < h.Points; p++ {
		base := p * stride
		out.Points[p] = mat.NewVec3(f32(base, xOff), f32(base, yOff), f32(base, zOff))
		if hasIntensity {
			out.Intensity[p] = float32(f32(base, iOff))
		}
		if hasNormals {
			out.Normals[p] = mat.NewVec3(f32(base, nxOff), f32(base, nyOff), f32(base, nzOff))
		}
	}
	return out, nil
}

func parseAscii(rb *bufio.Reader, h *Header) (*pc.PointCloud, error) {
	col := map[string]int{}
	var n int
	for i, f := range h.Fields {
		col[f] = n
		n += h.Count[i]
	}
	xi, ok := col["x"]
	yi, okY := col["y"]
	zi, okZ := col["z"]
	if !ok || !okY || !okZ {
		return nil, errors.New("x/y/z fields are required")
	}
	ii, hasIntensity := col["intensity"]
	nxi, hasNX := col["normal_x"]
	nyi, hasNY := col["normal_y"]
	nzi, hasNZ := col["normal_z"]
	hasNormals := hasNX && hasNY && hasNZ

	out := &pc.PointCloud{}
	for {
		line, err := rb.ReadString('\n')
		if len(line) == 0 && err != nil {
			break
		}
		vals := strings.Fields(line)
		if len(vals) == 0 {
			continue
		}
		if len(vals) < n {
			return nil, errors.New("short ascii point record")
		}
		get := func(i int) (float64, error) {
			return strconv.ParseFloat(vals[i], 64)
		}
		x, errX := get(xi)
		y, errY := get(yi)
		z, errZ := get(zi)
		if errX != nil || errY != nil || errZ != nil {
			return nil, errors.New("invalid ascii point record")
		}
		out.Points = append(out.Points, mat.NewVec3(x, y, z))
		if hasIntensity {
			v, err := get(ii)
			if err != nil {
				return nil, err
			}
			out.Intensity = append(out.Intensity, float32(v))
		}
		if hasNormals {
			nx, errX := get(nxi)
			ny, errY := get(nyi)
			nz, errZ := get(nzi)
			if errX != nil || errY != nil || errZ != nil {
				return nil, errors.New("invalid ascii normal record")
			}
			out.Normals = append(out.Normals, mat.NewVec3(nx, ny, nz))
		}
		if err != nil {
			break
		}
	}
	if h.Points > 0 && len(out.Points) != h.Points {
		return nil, errors.New("ascii point count mismatch")
	}
	return out, nil
}
