package pdfread

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ScriptRock/pdfread/internal/types"
)

// readXref locates the last cross-reference section and reads the chain of
// sections linked by /Prev. Sections closer to the end of the file are read
// first and their entries take precedence: entries and trailer keys are
// only ever added when absent.
func (r *Reader) readXref() (err error) {
	defer catch(&err)

	startxref, err := r.findStartxref()
	if err != nil {
		return err
	}

	r.trailer = types.NewDict()
	r.xref = types.NewXref()
	b := r.newBuffer(0)
	visited := make(map[int64]bool)
	for {
		if visited[startxref] {
			if err := r.deviation(startxref, "xref /Prev points to a section that was already read"); err != nil {
				return err
			}
			break
		}
		if startxref < 0 || startxref >= r.size {
			return readErrorf(startxref, "Could not find xref table at specified location")
		}

		b.seek(startxref)
		var prev types.Object
		switch c := b.peekByte(); {
		case c == 'x':
			visited[startxref] = true
			prev, err = r.readXrefTable(b, visited)
		case isDigit(c):
			visited[startxref] = true
			prev, err = r.readXrefStream(b)
		default:
			off, ok := r.recoverXref(b, startxref)
			if !ok {
				return readErrorf(startxref, "Could not find xref table at specified location")
			}
			r.log.Debug("xref section found near startxref", slog.Int64("startxref", startxref), slog.Int64("offset", off))
			startxref = off
			continue
		}
		if err != nil {
			return err
		}
		if prev == nil {
			break
		}
		off, ok := prev.(types.Integer)
		if !ok {
			return readErrorf(startxref, "xref /Prev is not an integer: %v", objfmt(prev))
		}
		startxref = int64(off)
	}

	if r.xrefIndex != 0 && !r.strict {
		r.fixXrefIndex()
	}
	return nil
}

// findStartxref reads the offset given after the startxref keyword at the
// end of the file.
func (r *Reader) findStartxref() (int64, error) {
	last1K := r.size - 1024
	pos := r.size - 1
	for {
		if pos < last1K {
			return 0, readErrorf(r.size, "EOF marker not found")
		}
		line, prev, err := readPreviousLine(r.f, pos)
		if err != nil {
			return 0, &ReadError{Msg: "EOF marker not found", Pos: pos, Err: err}
		}
		pos = prev
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("%%EOF")) {
			break
		}
	}

	line, pos, err := readPreviousLine(r.f, pos)
	if err != nil {
		return 0, &ReadError{Msg: "startxref not found", Pos: pos, Err: err}
	}
	line = bytes.TrimSpace(line)
	if n, err := strconv.ParseInt(string(line), 10, 64); err == nil {
		kw, _, err := readPreviousLine(r.f, pos)
		if err != nil || !bytes.HasPrefix(bytes.TrimSpace(kw), []byte("startxref")) {
			return 0, readErrorf(pos, "startxref not found")
		}
		return n, nil
	}
	if rest, ok := bytes.CutPrefix(line, []byte("startxref")); ok {
		if n, err := strconv.ParseInt(string(bytes.TrimSpace(rest)), 10, 64); err == nil {
			r.log.Warn("startxref on same line as offset", slog.Int64("startxref", n))
			return n, nil
		}
	}
	return 0, readErrorf(pos, "startxref not found")
}

// recoverXref looks for a cross-reference section close to a startxref
// offset that points at neither.
func (r *Reader) recoverXref(b *buffer, startxref int64) (int64, bool) {
	from := max(0, startxref-10)
	window := make([]byte, min(20, r.size-from))
	n, _ := r.f.ReadAt(window, from)
	if i := bytes.Index(window[:n], []byte("xref")); i >= 0 {
		return from + int64(i), true
	}
	for look := int64(0); look < 5 && startxref+look < r.size; look++ {
		b.seek(startxref + look)
		if isDigit(b.readByte()) {
			return startxref + look, true
		}
	}
	return 0, false
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// readXrefTable reads a classic cross-reference table and its trailer, and
// returns the trailer's /Prev entry.
func (r *Reader) readXrefTable(b *buffer, visited map[int64]bool) (types.Object, error) {
	start := b.readOffset()
	if b.readToken() != keyword("xref") {
		return nil, readErrorf(start, "xref table read error")
	}

	first := true
	for {
		id, ok1 := b.readToken().(types.Integer)
		n, ok2 := b.readToken().(types.Integer)
		if !ok1 || !ok2 || id < 0 || n < 0 {
			return nil, readErrorf(b.readOffset(), "xref table read error")
		}
		if first && id != 0 {
			r.xrefIndex = uint32(id)
			r.log.Warn("Xref table not zero-indexed. ID numbers for objects will be corrected.",
				slog.Int64("offset", start), slog.Int64("first", int64(id)))
		}
		first = false

		b.skipWhitespace()
		for i := int64(0); i < int64(n); i++ {
			off, gen, used, err := readXrefRecord(b)
			if err != nil {
				return nil, err
			}
			if used {
				r.xref.AddOffset(gen, uint32(int64(id)+i), off)
			}
		}

		b.skipWhitespace()
		pos := b.readOffset()
		if tag, ok := b.readBytes(7); ok && string(tag) == "trailer" {
			break
		}
		b.seek(pos)
	}

	trailer, ok := b.readObject().(*types.Dict)
	if !ok {
		return nil, readErrorf(b.readOffset(), "xref table not followed by trailer dictionary")
	}
	for _, k := range trailer.Keys() {
		r.trailer.SetIfAbsent(k, trailer.Get(k))
	}

	if xs, ok := trailer.Get("XRefStm").(types.Integer); ok && !visited[int64(xs)] {
		visited[int64(xs)] = true
		if err := r.readHybridStream(int64(xs)); err != nil {
			return nil, err
		}
	}
	return trailer.Get("Prev"), nil
}

// readXrefRecord reads one "oooooooooo ggggg n" record. Records are 20 bytes
// long, but files with CR LF line ends and files with a single-byte line end
// and no preceding space are accepted too.
func readXrefRecord(b *buffer) (off int64, gen uint16, used bool, err error) {
	line, ok := b.readBytes(20)
	if !ok {
		return 0, 0, false, readErrorf(b.readOffset(), "xref table read error")
	}
	for isEOL(line[0]) {
		b.seek(b.readOffset() - 19)
		if line, ok = b.readBytes(20); !ok {
			return 0, 0, false, readErrorf(b.readOffset(), "xref table read error")
		}
	}
	if bytes.IndexByte([]byte("0123456789t"), line[19]) >= 0 {
		b.seek(b.readOffset() - 1)
	}

	fields := bytes.Fields(line)
	if len(fields) < 3 || len(fields[2]) == 0 {
		return 0, 0, false, readErrorf(b.readOffset(), "xref table read error")
	}
	off, err1 := strconv.ParseInt(string(fields[0]), 10, 64)
	g, err2 := strconv.ParseUint(string(fields[1]), 10, 16)
	if err1 != nil || err2 != nil {
		return 0, 0, false, readErrorf(b.readOffset(), "xref table read error")
	}
	switch fields[2][0] {
	case 'n':
		return off, uint16(g), true, nil
	case 'f':
		return off, uint16(g), false, nil
	}
	return 0, 0, false, readErrorf(b.readOffset(), "xref table read error")
}

// readHybridStream reads the cross-reference stream named by /XRefStm in
// the trailer of a hybrid-reference file. Its /Prev is not followed.
func (r *Reader) readHybridStream(off int64) error {
	if off < 0 || off >= r.size {
		return r.deviation(off, "/XRefStm offset out of range")
	}
	_, err := r.readXrefStream(r.newBuffer(off))
	return err
}

// readXrefStream reads a cross-reference stream object and returns its
// /Prev entry.
func (r *Reader) readXrefStream(b *buffer) (types.Object, error) {
	start := b.readOffset()
	ptr, err := r.readObjectHeader(b)
	if err != nil {
		return nil, err
	}
	strm, ok := b.readObject().(types.Stream)
	if !ok || strm.Hdr.Get("Type") != types.Name("XRef") {
		return nil, readErrorf(start, "xref stream does not have type XRef")
	}

	// The stream is cached before its payload is validated, so that
	// references to it resolve while the rest of the chain is read.
	if _, ok := r.cache.get(ptr); !ok {
		if err := r.cache.put(ptr, strm); err != nil {
			return nil, err
		}
	}

	data, err := decodeStream(Value{r: r, ptr: ptr, data: strm})
	if err != nil {
		return nil, &ReadError{Msg: "xref stream", Pos: start, Err: err}
	}

	ww, _ := strm.Hdr.Get("W").(types.Array)
	var w []int
	for _, x := range ww {
		i, ok := x.(types.Integer)
		if !ok || i < 0 || i > 8 {
			return nil, readErrorf(start, "invalid xref stream /W %v", objfmt(ww))
		}
		w = append(w, int(i))
	}
	if len(w) < 3 {
		return nil, readErrorf(start, "invalid xref stream /W %v", objfmt(ww))
	}
	if len(w) > 3 {
		if err := r.deviation(start, fmt.Sprintf("Too many entry sizes: %v", w)); err != nil {
			return nil, err
		}
	}
	entrySize := 0
	for _, x := range w {
		entrySize += x
	}

	index, ok := strm.Hdr.Get("Index").(types.Array)
	if !ok {
		size, ok := strm.Hdr.Get("Size").(types.Integer)
		if !ok {
			return nil, readErrorf(start, "xref stream missing /Size")
		}
		index = types.Array{types.Integer(0), size}
	}
	if len(index)%2 != 0 {
		return nil, readErrorf(start, "invalid xref stream /Index %v", objfmt(index))
	}

	pos := 0
	lastEnd := int64(0)
	for ; len(index) > 0; index = index[2:] {
		first, ok1 := index[0].(types.Integer)
		n, ok2 := index[1].(types.Integer)
		if !ok1 || !ok2 || first < 0 || n < 0 || int64(first) < lastEnd {
			return nil, readErrorf(start, "invalid xref stream /Index %v", objfmt(strm.Hdr.Get("Index")))
		}
		lastEnd = int64(first + n)

		for id := int64(first); id < lastEnd; id++ {
			if pos+entrySize > len(data) {
				return nil, readErrorf(start, "xref stream data too short")
			}
			rec := data[pos : pos+entrySize]
			pos += entrySize

			switch typ := xrefField(rec, w, 0, 1); typ {
			case 0:
				// free
			case 1:
				off, gen := xrefField(rec, w, 1, 0), xrefField(rec, w, 2, 0)
				if !r.xref.Used(uint16(gen), uint32(id)) {
					r.xref.AddOffset(uint16(gen), uint32(id), int64(off))
				}
			case 2:
				loc := types.InStream{Stream: uint32(xrefField(rec, w, 1, 0)), Index: int(xrefField(rec, w, 2, 0))}
				if !r.xref.Used(0, uint32(id)) {
					r.xref.AddCompressed(uint32(id), loc)
				}
			default:
				if err := r.deviation(start, fmt.Sprintf("Unknown xref type: %d", typ)); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, k := range []types.Name{"Root", "Encrypt", "Info", "ID"} {
		if v := strm.Hdr.Get(k); v != nil {
			r.trailer.SetIfAbsent(k, v)
		}
	}
	return strm.Hdr.Get("Prev"), nil
}

// xrefField decodes field i of a cross-reference stream record. A field of
// width zero takes the default value def.
func xrefField(rec []byte, w []int, i int, def uint64) uint64 {
	if w[i] == 0 {
		return def
	}
	start := 0
	for _, n := range w[:i] {
		start += n
	}
	var x uint64
	for _, c := range rec[start : start+w[i]] {
		x = x<<8 | uint64(c)
	}
	return x
}

// readObjectHeader reads "id gen obj" at the read position of b.
func (r *Reader) readObjectHeader(b *buffer) (types.Objptr, error) {
	start := b.readOffset()
	b.skipComment()
	extra := b.skipWhitespace() > 0
	id, err1 := strconv.ParseUint(string(b.readUntilWhitespace()), 10, 32)
	extra = b.skipWhitespace() > 1 || extra
	gen, err2 := strconv.ParseUint(string(b.readUntilWhitespace()), 10, 16)
	b.skipWhitespace()
	if err1 != nil || err2 != nil || b.readToken() != keyword("obj") {
		return types.Objptr{}, readErrorf(start, "invalid object header")
	}
	if extra {
		err := r.deviation(start, fmt.Sprintf("Superfluous whitespace found in object header %d %d", id, gen))
		if err != nil {
			return types.Objptr{}, err
		}
	}
	return types.Objptr{ID: uint32(id), Gen: uint16(gen)}, nil
}

// fixXrefIndex corrects tables written with object numbers off by the first
// subsection number. For every generation, the object with the lowest number
// is sampled: if its header carries the number minus that offset, the whole
// generation is renumbered.
func (r *Reader) fixXrefIndex() {
	b := r.newBuffer(0)
	for _, gen := range r.xref.Generations() {
		if gen == 65535 {
			continue
		}
		ids := r.xref.IDs(gen)
		if len(ids) == 0 {
			continue
		}
		off, _ := r.xref.Offset(gen, ids[0])
		ptr, ok := r.sampleHeader(b, off)
		if !ok {
			continue
		}
		if ptr.ID+r.xrefIndex == ids[0] {
			r.log.Warn("renumbering objects of non-zero-indexed xref table",
				slog.Int("gen", int(gen)), slog.Int64("delta", int64(r.xrefIndex)))
			r.xref.Renumber(gen, r.xrefIndex)
		}
	}
}

func (r *Reader) sampleHeader(b *buffer, off int64) (ptr types.Objptr, ok bool) {
	if off < 0 || off >= r.size {
		return ptr, false
	}
	var err error
	func() {
		defer catch(&err)
		b.seek(off)
		ptr, err = r.readObjectHeader(b)
	}()
	return ptr, err == nil
}
