package pdfread

import (
	"fmt"
	"log/slog"

	"github.com/ScriptRock/pdfread/internal/types"
)

// GetObject returns the indirect object ptr. Objects are read from the file
// on first use and cached for the lifetime of the Reader.
func (r *Reader) GetObject(ptr Objptr) (Value, error) {
	obj, err := r.getObject(ptr)
	if err != nil {
		return Value{}, err
	}
	return Value{r: r, ptr: ptr, data: obj}, nil
}

func (r *Reader) getObject(ptr types.Objptr) (obj types.Object, err error) {
	if obj, ok := r.cache.get(ptr); ok {
		return obj, nil
	}
	if r.resolving[ptr] {
		return nil, readErrorf(-1, "circular reference to object %v", ptr)
	}
	r.resolving[ptr] = true
	defer delete(r.resolving, ptr)

	if loc, ok := r.xref.Compressed(ptr.ID); ok && ptr.Gen == 0 {
		// Objects in object streams were decrypted with their container.
		obj, err = r.objectFromStream(ptr, loc)
	} else if off, ok := r.xref.Offset(ptr.Gen, ptr.ID); ok {
		obj, err = r.objectAt(ptr, off)
		if err == nil && r.encrypted && ptr != r.encryptRef {
			obj, err = r.decryptObject(ptr, obj)
		}
	} else {
		r.log.Warn(fmt.Sprintf("Object %d %d not defined.", ptr.ID, ptr.Gen))
		return nil, readErrorf(-1, "Could not find object %v", ptr)
	}
	if err != nil {
		return nil, err
	}

	if err := r.cache.put(ptr, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// objectAt reads the object ptr whose definition starts at off.
func (r *Reader) objectAt(ptr types.Objptr, off int64) (obj types.Object, err error) {
	defer catch(&err)

	if off < 0 || off >= r.size {
		return nil, readErrorf(off, "offset of object %v out of range", ptr)
	}
	b := r.newBuffer(off)
	got, err := r.readObjectHeader(b)
	if err != nil {
		return nil, err
	}
	switch {
	case got.ID != ptr.ID && r.xrefIndex != 0:
		if r.strict {
			return nil, readErrorf(off, "Expected object ID (%d %d) does not match actual (%d %d); xref table not zero-indexed.",
				ptr.ID, ptr.Gen, got.ID, got.Gen)
		}
		// The table was renumbered while it was read.
	case got.ID != ptr.ID:
		return nil, readErrorf(off, "Expected object ID (%d %d) does not match actual (%d %d).",
			ptr.ID, ptr.Gen, got.ID, got.Gen)
	case got.Gen != ptr.Gen:
		return nil, readErrorf(off, "Expected object ID (%d %d) does not match actual (%d %d).",
			ptr.ID, ptr.Gen, got.ID, got.Gen)
	}
	return b.readObject(), nil
}

// An objectStream is the decoded payload of an object stream.
type objectStream struct {
	hdr  *types.Dict
	data []byte
}

func (r *Reader) loadObjectStream(id uint32) (objectStream, error) {
	if s, ok := r.objStm[id]; ok {
		return s, nil
	}
	ptr := types.Objptr{ID: id}
	obj, err := r.getObject(ptr)
	if err != nil {
		return objectStream{}, err
	}
	strm, ok := obj.(types.Stream)
	if !ok || strm.Hdr.Get("Type") != types.Name("ObjStm") {
		return objectStream{}, readErrorf(-1, "object %v is not an object stream", ptr)
	}
	data, err := decodeStream(Value{r: r, ptr: ptr, data: strm})
	if err != nil {
		return objectStream{}, &ReadError{Msg: fmt.Sprintf("object stream %v", ptr), Pos: -1, Err: err}
	}
	s := objectStream{hdr: strm.Hdr, data: data}
	r.objStm[id] = s
	return s, nil
}

// objectFromStream extracts object ptr from the object stream named by loc,
// following /Extends to the streams it continues.
func (r *Reader) objectFromStream(ptr types.Objptr, loc types.InStream) (types.Object, error) {
	seen := make(map[uint32]bool)
	for id := loc.Stream; !seen[id]; {
		seen[id] = true
		s, err := r.loadObjectStream(id)
		if err != nil {
			return nil, err
		}
		n, _ := s.hdr.Get("N").(types.Integer)
		first, ok := s.hdr.Get("First").(types.Integer)
		if !ok || first < 0 {
			return nil, readErrorf(-1, "object stream %d missing /First", id)
		}
		if id == loc.Stream && int64(loc.Index) >= int64(n) {
			return nil, readErrorf(-1, "object %v index %d beyond object stream %d", ptr, loc.Index, id)
		}

		obj, found, err := r.searchObjectStream(ptr, loc.Index, s.data, int(n), int64(first))
		if err != nil || found {
			return obj, err
		}

		ext, ok := s.hdr.Get("Extends").(types.Objptr)
		if !ok {
			break
		}
		id = ext.ID
	}

	if r.strict {
		return nil, readErrorf(-1, "object %v not found in object stream %d", ptr, loc.Stream)
	}
	r.log.Warn("object not found in object stream", slog.Any("ref", ptr), slog.Int("stream", int(loc.Stream)))
	return nil, nil
}

func (r *Reader) searchObjectStream(ptr types.Objptr, index int, data []byte, n int, first int64) (obj types.Object, found bool, err error) {
	defer catch(&err)

	b := newBytesBuffer(data)
	b.rd = r
	for i := 0; i < n; i++ {
		id, ok1 := b.readToken().(types.Integer)
		off, ok2 := b.readToken().(types.Integer)
		if !ok1 || !ok2 {
			return nil, false, readErrorf(-1, "malformed object stream header")
		}
		if uint32(id) != ptr.ID {
			continue
		}
		if r.strict && i != index {
			return nil, false, readErrorf(-1, "Object is in wrong index.")
		}

		b.seek(first + int64(off))
		obj, err := readEmbedded(b)
		if err != nil {
			if r.strict {
				return nil, false, &ReadError{Msg: "Can't read object stream", Pos: -1, Err: err}
			}
			r.log.Warn("invalid object within object stream", slog.Any("ref", ptr), slog.Int("index", i), slog.Any("error", err))
			return nil, true, nil
		}
		return obj, true, nil
	}
	return nil, false, nil
}

func readEmbedded(b *buffer) (obj types.Object, err error) {
	defer catch(&err)
	return b.readObject(), nil
}

func (r *Reader) decryptObject(ptr types.Objptr, obj types.Object) (types.Object, error) {
	if r.handler == nil || r.handler.Key() == nil {
		if isXrefStream(obj) {
			return obj, nil
		}
		return nil, &ReadError{Msg: fmt.Sprintf("object %v", ptr), Pos: -1, Err: ErrNotDecrypted}
	}
	out, err := r.handler.DecryptObject(ptr, obj)
	if err != nil {
		return nil, &ReadError{Msg: fmt.Sprintf("decrypting object %v", ptr), Pos: -1, Err: err}
	}
	return out, nil
}

func isXrefStream(obj types.Object) bool {
	strm, ok := obj.(types.Stream)
	return ok && strm.Hdr.Get("Type") == types.Name("XRef")
}

// resolve returns x as a Value, reading it from the file if it is a
// reference. Errors are logged and produce a null Value.
func (r *Reader) resolve(parent types.Objptr, x types.Object) Value {
	ptr, ok := x.(types.Objptr)
	if !ok {
		return Value{r: r, ptr: parent, data: x}
	}
	if r == nil {
		return Value{}
	}
	obj, err := r.getObject(ptr)
	if err != nil {
		r.log.Warn("cannot resolve reference", slog.Any("ref", ptr), slog.Any("error", err))
		return Value{}
	}
	return Value{r: r, ptr: ptr, data: obj}
}
