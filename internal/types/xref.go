package types

import (
	"slices"

	"golang.org/x/exp/maps"
)

// InStream locates an object stored inside an object stream.
type InStream struct {
	Stream uint32 // object number of the containing stream
	Index  int    // position of the object within the stream
}

// Xref is the merged cross-reference information of a file.
//
// Entries are only ever added when absent: the resolver reads sections
// starting with the one closest to the end of the file, so the first
// entry recorded for an object is the one that wins.
type Xref struct {
	offsets    map[uint16]map[uint32]int64
	compressed map[uint32]InStream
}

func NewXref() *Xref {
	return &Xref{
		offsets:    make(map[uint16]map[uint32]int64),
		compressed: make(map[uint32]InStream),
	}
}

// AddOffset records that object (id, gen) starts at offset off.
// It reports whether the entry was stored.
func (x *Xref) AddOffset(gen uint16, id uint32, off int64) bool {
	ids := x.offsets[gen]
	if ids == nil {
		ids = make(map[uint32]int64)
		x.offsets[gen] = ids
	}
	if _, ok := ids[id]; ok {
		return false
	}
	ids[id] = off
	return true
}

// AddCompressed records that object id lives in an object stream.
// It reports whether the entry was stored.
func (x *Xref) AddCompressed(id uint32, loc InStream) bool {
	if _, ok := x.compressed[id]; ok {
		return false
	}
	x.compressed[id] = loc
	return true
}

// Used reports whether id already has an entry for gen, either as a byte
// offset or as a compressed object.
func (x *Xref) Used(gen uint16, id uint32) bool {
	if _, ok := x.offsets[gen][id]; ok {
		return true
	}
	_, ok := x.compressed[id]
	return ok
}

func (x *Xref) Offset(gen uint16, id uint32) (int64, bool) {
	off, ok := x.offsets[gen][id]
	return off, ok
}

func (x *Xref) Compressed(id uint32) (InStream, bool) {
	loc, ok := x.compressed[id]
	return loc, ok
}

// Generations returns the generation numbers with offset entries, ascending.
func (x *Xref) Generations() []uint16 {
	gens := maps.Keys(x.offsets)
	slices.Sort(gens)
	return gens
}

// IDs returns the object numbers recorded for gen, ascending.
func (x *Xref) IDs(gen uint16) []uint32 {
	ids := maps.Keys(x.offsets[gen])
	slices.Sort(ids)
	return ids
}

// Renumber subtracts delta from every object number of the gen bucket.
func (x *Xref) Renumber(gen uint16, delta uint32) {
	old := x.offsets[gen]
	ids := make(map[uint32]int64, len(old))
	for id, off := range old {
		if id < delta {
			continue
		}
		ids[id-delta] = off
	}
	x.offsets[gen] = ids
}

// Len returns the number of recorded objects.
func (x *Xref) Len() int {
	n := len(x.compressed)
	for _, ids := range x.offsets {
		n += len(ids)
	}
	return n
}
