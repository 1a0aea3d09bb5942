// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Reading of PDF tokens and objects from a raw byte stream.

package pdfread

import (
	"bytes"
	"io"
	"log/slog"
	"strconv"

	"github.com/ScriptRock/pdfread/internal/types"
)

// A token is a PDF token in the input stream, one of the following Go types:
//
//	types.Bool, a PDF boolean
//	types.Integer, a PDF integer
//	types.Real, a PDF real
//	types.String, a PDF string literal or hex string
//	types.Name, a PDF name without the leading slash
//	keyword, a PDF keyword
//	io.EOF, the end of the input when allowEOF is set
type token any

// A keyword is a PDF keyword.
// Delimiter tokens used in higher-level syntax,
// such as "<<", ">>", "[", "]", "{", "}", are also treated as keywords.
type keyword string

// A buffer holds buffered input bytes from the PDF file.
// Malformed input makes the buffer panic with a *ReadError,
// which is turned back into an error by catch.
type buffer struct {
	r           io.ReaderAt // source of data
	size        int64       // length of the source
	buf         []byte      // buffered data
	pos         int         // read index in buf
	offset      int64       // offset at end of buf; aka offset of next read
	tmp         []byte      // scratch space for accumulating token
	unread      []token     // queue of read but then unread tokens
	allowEOF    bool
	allowObjptr bool
	allowStream bool
	eof         bool
	rd          *Reader // session used for indirect /Length values; may be nil
}

// newBuffer returns a new buffer reading from r, which holds size bytes,
// starting at the given offset.
func newBuffer(r io.ReaderAt, size, offset int64) *buffer {
	return &buffer{
		r:           r,
		size:        size,
		offset:      offset,
		buf:         make([]byte, 0, 4096),
		allowObjptr: true,
		allowStream: true,
	}
}

// newBytesBuffer returns a buffer over in-memory data, such as a decoded
// object stream.
func newBytesBuffer(data []byte) *buffer {
	b := newBuffer(bytes.NewReader(data), int64(len(data)), 0)
	b.allowEOF = true
	return b
}

func (b *buffer) strict() bool {
	return b.rd != nil && b.rd.strict
}

func (b *buffer) logger() *slog.Logger {
	if b.rd != nil {
		return b.rd.log
	}
	return slog.Default()
}

func (b *buffer) readByte() byte {
	if b.pos >= len(b.buf) {
		b.reload()
		if b.pos >= len(b.buf) {
			return '\n'
		}
	}
	c := b.buf[b.pos]
	b.pos++
	return c
}

func (b *buffer) errorf(format string, args ...any) {
	panic(readErrorf(b.readOffset(), format, args...))
}

func (b *buffer) reload() bool {
	n := min(int64(cap(b.buf)), b.size-b.offset)
	if n <= 0 {
		b.buf = b.buf[:0]
		b.pos = 0
		if b.allowEOF {
			b.eof = true
			return false
		}
		b.errorf("unexpected end of file")
		return false
	}
	m, err := b.r.ReadAt(b.buf[:n], b.offset)
	if m == 0 && err != nil {
		b.buf = b.buf[:0]
		b.pos = 0
		panic(&ReadError{Msg: "reading file", Pos: b.offset, Err: err})
	}
	b.offset += int64(m)
	b.buf = b.buf[:m]
	b.pos = 0
	return true
}

// seek moves the read position to the absolute offset off and drops any
// unread tokens.
func (b *buffer) seek(off int64) {
	b.offset = off
	b.buf = b.buf[:0]
	b.pos = 0
	b.unread = b.unread[:0]
	b.eof = false
}

func (b *buffer) readOffset() int64 {
	return b.offset - int64(len(b.buf)) + int64(b.pos)
}

func (b *buffer) unreadByte() {
	if b.pos > 0 {
		b.pos--
	}
}

func (b *buffer) peekByte() byte {
	c := b.readByte()
	b.unreadByte()
	return c
}

// readBytes returns the n bytes at the read position and advances past them.
// ok is false if the source ends first; the position is then unchanged.
func (b *buffer) readBytes(n int64) (data []byte, ok bool) {
	start := b.readOffset()
	if n < 0 || start+n > b.size {
		return nil, false
	}
	data = make([]byte, n)
	if _, err := b.r.ReadAt(data, start); err != nil && err != io.EOF {
		panic(&ReadError{Msg: "reading file", Pos: start, Err: err})
	}
	b.seek(start + n)
	return data, true
}

// skipWhitespace consumes white-space bytes and returns how many it skipped.
func (b *buffer) skipWhitespace() int {
	n := 0
	for {
		c := b.readByte()
		if b.eof {
			return n
		}
		if !isSpace(c) {
			b.unreadByte()
			return n
		}
		n++
	}
}

// skipComment consumes a % comment, if one starts at the read position.
func (b *buffer) skipComment() {
	c := b.readByte()
	if c != '%' {
		b.unreadByte()
		return
	}
	for c != '\r' && c != '\n' {
		c = b.readByte()
	}
}

// readUntilWhitespace returns the bytes up to the next white space or the
// end of input. The white space itself is not consumed.
func (b *buffer) readUntilWhitespace() []byte {
	tmp := b.tmp[:0]
	for {
		c := b.readByte()
		if b.eof {
			break
		}
		if isSpace(c) {
			b.unreadByte()
			break
		}
		tmp = append(tmp, c)
	}
	b.tmp = tmp
	return tmp
}

func (b *buffer) unreadToken(t token) {
	b.unread = append(b.unread, t)
}

func (b *buffer) readToken() token {
	if n := len(b.unread); n > 0 {
		t := b.unread[n-1]
		b.unread = b.unread[:n-1]
		return t
	}

	// Find first non-space, non-comment byte.
	c := b.readByte()
	for {
		if b.eof {
			return io.EOF
		}
		if isSpace(c) {
			c = b.readByte()
		} else if c == '%' {
			for c != '\r' && c != '\n' {
				c = b.readByte()
			}
		} else {
			break
		}
	}

	switch c {
	case '<':
		if b.readByte() == '<' {
			return keyword("<<")
		}
		b.unreadByte()
		return b.readHexString()

	case '(':
		return b.readLiteralString()

	case '[', ']', '{', '}':
		return keyword(string(c))

	case '/':
		return b.readName()

	case '>':
		if b.readByte() == '>' {
			return keyword(">>")
		}
		b.unreadByte()
		fallthrough

	default:
		if isDelim(c) {
			b.errorf("unexpected delimiter %#q", rune(c))
			return nil
		}
		b.unreadByte()
		return b.readKeyword()
	}
}

// readHexString reads the body of a <...> string. Bytes other than hex
// digits are ignored and an odd final digit is padded with a zero nibble.
func (b *buffer) readHexString() token {
	tmp := b.tmp[:0]
	hi := -1
	for {
		c := b.readByte()
		if b.eof {
			b.errorf("unterminated hex string")
		}
		if c == '>' {
			break
		}
		x := unhex(c)
		if x < 0 {
			continue
		}
		if hi < 0 {
			hi = x
			continue
		}
		tmp = append(tmp, byte(hi<<4|x))
		hi = -1
	}
	if hi >= 0 {
		tmp = append(tmp, byte(hi<<4))
	}
	b.tmp = tmp
	return types.String{Data: string(tmp), Hex: true}
}

func unhex(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b) - '0'
	case 'a' <= b && b <= 'f':
		return int(b) - 'a' + 10
	case 'A' <= b && b <= 'F':
		return int(b) - 'A' + 10
	}
	return -1
}

func (b *buffer) readLiteralString() token {
	tmp := b.tmp[:0]
	depth := 1
Loop:
	for {
		c := b.readByte()
		if b.eof {
			b.errorf("unterminated string")
		}
		switch c {
		default:
			tmp = append(tmp, c)
		case '(':
			depth++
			tmp = append(tmp, c)
		case ')':
			if depth--; depth == 0 {
				break Loop
			}
			tmp = append(tmp, c)
		case '\\':
			switch c = b.readByte(); c {
			default:
				// An unknown escape stands for the character itself.
				tmp = append(tmp, c)
			case 'n':
				tmp = append(tmp, '\n')
			case 'r':
				tmp = append(tmp, '\r')
			case 'b':
				tmp = append(tmp, '\b')
			case 't':
				tmp = append(tmp, '\t')
			case 'f':
				tmp = append(tmp, '\f')
			case '\r':
				if b.readByte() != '\n' {
					b.unreadByte()
				}
			case '\n':
				// line continuation
			case '0', '1', '2', '3', '4', '5', '6', '7':
				x := int(c - '0')
				for i := 0; i < 2; i++ {
					c = b.readByte()
					if c < '0' || c > '7' {
						b.unreadByte()
						break
					}
					x = x*8 + int(c-'0')
				}
				tmp = append(tmp, byte(x))
			}
		}
	}
	b.tmp = tmp
	return types.String{Data: string(tmp)}
}

func (b *buffer) readName() token {
	tmp := b.tmp[:0]
	for {
		c := b.readByte()
		if b.eof {
			break
		}
		if isDelim(c) || isSpace(c) {
			b.unreadByte()
			break
		}
		if c == '#' {
			x := unhex(b.readByte())<<4 | unhex(b.readByte())
			if x < 0 {
				b.errorf("malformed name")
			}
			tmp = append(tmp, byte(x))
			continue
		}
		tmp = append(tmp, c)
	}
	b.tmp = tmp
	return types.Name(string(tmp))
}

func (b *buffer) readKeyword() token {
	tmp := b.tmp[:0]
	for {
		c := b.readByte()
		if b.eof {
			break
		}
		if isDelim(c) || isSpace(c) {
			b.unreadByte()
			break
		}
		tmp = append(tmp, c)
	}
	b.tmp = tmp
	s := string(tmp)
	switch {
	case s == "true":
		return types.Bool(true)
	case s == "false":
		return types.Bool(false)
	case isInteger(s):
		x, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// Too large for an int64; keep the magnitude as a real.
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				b.errorf("invalid integer %s", s)
			}
			return types.Real(f)
		}
		return types.Integer(x)
	case isReal(s):
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			b.errorf("invalid real %s", s)
		}
		return types.Real(x)
	}
	return keyword(s)
}

func isInteger(s string) bool {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if c < '0' || '9' < c {
			return false
		}
	}
	return true
}

func isReal(s string) bool {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if len(s) < 2 {
		return false
	}
	ndot := 0
	for _, c := range s {
		if c == '.' {
			ndot++
			continue
		}
		if c < '0' || '9' < c {
			return false
		}
	}
	return ndot == 1
}

func (b *buffer) readObject() types.Object {
	tok := b.readToken()
	if kw, ok := tok.(keyword); ok {
		switch kw {
		case "null":
			return nil
		case "<<":
			return b.readDict()
		case "[":
			return b.readArray()
		}
		b.errorf("unexpected keyword %q parsing object", kw)
		return nil
	}
	if tok == io.EOF {
		b.errorf("unexpected end of file parsing object")
	}

	if t1, ok := tok.(types.Integer); ok && b.allowObjptr && int64(uint32(t1)) == int64(t1) {
		tok2 := b.readToken()
		if t2, ok := tok2.(types.Integer); ok && int64(uint16(t2)) == int64(t2) {
			tok3 := b.readToken()
			ptr := types.Objptr{ID: uint32(t1), Gen: uint16(t2)}
			switch tok3 {
			case keyword("R"):
				return ptr
			case keyword("obj"):
				obj := b.readObject()
				if tok4 := b.readToken(); tok4 != keyword("endobj") {
					if b.strict() {
						b.errorf("missing endobj after indirect object definition %v", ptr)
					}
					b.unreadToken(tok4)
				}
				return types.Objdef{Ptr: ptr, Obj: obj}
			}
			b.unreadToken(tok3)
		}
		b.unreadToken(tok2)
	}
	return tok.(types.Object)
}

func (b *buffer) readArray() types.Object {
	x := types.Array{}
	for {
		tok := b.readToken()
		if tok == io.EOF {
			b.errorf("stream ended with open array")
		}
		if tok == keyword("]") {
			break
		}
		b.unreadToken(tok)
		x = append(x, b.readObject())
	}
	return x
}

func (b *buffer) readDict() types.Object {
	x := types.NewDict()
	for {
		tok := b.readToken()
		if tok == io.EOF {
			b.errorf("stream ended with open dict")
		}
		if tok == keyword(">>") {
			break
		}
		n, ok := tok.(types.Name)
		if !ok {
			b.errorf("unexpected non-name key %#v parsing dictionary", tok)
			continue
		}
		x.Set(n, b.readObject())
	}

	if !b.allowStream {
		return x
	}

	tok := b.readToken()
	if tok != keyword("stream") {
		b.unreadToken(tok)
		return x
	}

	switch b.readByte() {
	case '\r':
		if b.readByte() != '\n' {
			b.unreadByte()
		}
	case '\n':
		// ok
	default:
		if b.strict() {
			b.errorf("stream keyword not followed by newline")
		}
		b.unreadByte()
	}

	return types.Stream{Hdr: x, Data: b.readStreamData(x)}
}

var endstream = []byte("endstream")

// readStreamData reads the payload of a stream whose header is hdr, leaving
// the buffer after the endstream keyword. When /Length is unusable or does
// not lead to endstream, lenient sessions search for the keyword instead.
func (b *buffer) readStreamData(hdr *types.Dict) []byte {
	start := b.readOffset()
	if n, ok := b.streamLength(hdr); ok {
		if data, ok := b.readBytes(n); ok {
			if b.readToken() == keyword("endstream") {
				return data
			}
		}
	}

	if b.strict() {
		panic(readErrorf(start, "Unable to find 'endstream' marker after stream"))
	}
	b.logger().Warn("stream length does not match endstream", slog.Int64("offset", start))

	end := findForward(b.r, b.size, start, endstream)
	if end < 0 {
		panic(readErrorf(start, "Unable to find 'endstream' marker after stream"))
	}
	data := make([]byte, end-start)
	if _, err := b.r.ReadAt(data, start); err != nil && err != io.EOF {
		panic(&ReadError{Msg: "reading file", Pos: start, Err: err})
	}
	b.seek(end + int64(len(endstream)))
	return trimEOL(data)
}

// streamLength returns the value of /Length, resolving it if it is an
// indirect reference.
func (b *buffer) streamLength(hdr *types.Dict) (int64, bool) {
	switch l := hdr.Get("Length").(type) {
	case types.Integer:
		return int64(l), l >= 0
	case types.Objptr:
		if b.rd == nil {
			return 0, false
		}
		obj, err := b.rd.getObject(l)
		if err != nil {
			if b.strict() {
				panic(&ReadError{Msg: "resolving stream length " + l.String(), Pos: b.readOffset(), Err: err})
			}
			return 0, false
		}
		n, ok := obj.(types.Integer)
		return int64(n), ok && n >= 0
	}
	return 0, false
}

// findForward returns the offset of the first occurrence of pat at or
// after from, or -1.
func findForward(r io.ReaderAt, size, from int64, pat []byte) int64 {
	const chunk = 4096
	buf := make([]byte, chunk+len(pat))
	for off := from; off < size; off += chunk {
		n, err := r.ReadAt(buf[:min(int64(len(buf)), size-off)], off)
		if n == 0 && err != nil {
			return -1
		}
		if i := bytes.Index(buf[:n], pat); i >= 0 {
			return off + int64(i)
		}
	}
	return -1
}

func trimEOL(data []byte) []byte {
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	if n := len(data); n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	return data
}

func isSpace(b byte) bool {
	switch b {
	case '\x00', '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(b byte) bool {
	switch b {
	case '<', '>', '(', ')', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
