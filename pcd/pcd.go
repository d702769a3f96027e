// Package pcd reads and writes PCD files, converting between the
// on-disk layout and the in-memory point-cloud model. It implements
// the point-cloud provider collaborator of the registration core.
package pcd

import (
	"errors"
)

type Format int

const (
	Ascii Format = iota
	Binary
	BinaryCompressed
)

// Header is the parsed PCD file header.
type Header struct {
	Version   float32
	Fields    []string
	Size      []int
	Type      []string
	Count     []int
	Width     int
	Height    int
	Viewpoint []float32
	Points    int
	Format    Format
}

// Stride returns the byte size of one point record.
func (h *Header) Stride() int {
	var stride int
	for i := range h.Fields {
		stride += h.Size[i] * h.Count[i]
	}
	return stride
}

func (h *Header) fieldOffset(name string) (offset, size int, ok bool) {
	for i, f := range h.Fields {
		if f == name {
			return offset, h.Size[i], true
		}
		offset += h.Size[i] * h.Count[i]
	}
	return 0, 0, false
}

func (h *Header) validate() error {
	if len(h.Fields) != len(h.Size) {
		return errors.New("size field size is wrong")
	}
	if len(h.Fields) != len(h.Type) {
		return errors.New("type field size is wrong")
	}
	if len(h.Fields) != len(h.Count) {
		return errors.New("count field size is wrong")
	}
	return nil
}
