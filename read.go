// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pdfread implements reading of PDF files.
//
// # Overview
//
// A PDF document is a complex data format built on a fairly simple structure.
// This package locates the cross-reference data of a file, resolves indirect
// objects on demand and decrypts documents protected by the standard security
// handler. It exposes the object graph along with a few wrappers to extract
// basic information, such as the document information dictionary.
//
// A PDF is a data structure built from Values, each of which has
// one of the following Kinds:
//
//	Null, for the null object.
//	Integer, for an integer.
//	Real, for a floating-point number.
//	Bool, for a boolean value.
//	Name, for a name constant (as in /Helvetica).
//	String, for a string constant.
//	Dict, for a dictionary of name-value pairs.
//	Array, for an array of values.
//	Stream, for an opaque data stream and associated header dictionary.
//
// The accessors on Value—Int64, Float64, Bool, Name, and so on—return
// a view of the data as the given type. When there is no appropriate view,
// the accessor returns a zero result. For example, the Name accessor returns
// the empty string if called on a Value v for which v.Kind() != Name.
// Returning zero values this way, especially from the Dict and Array accessors,
// which themselves return Values, makes it possible to traverse a PDF quickly
// without writing any error checking. On the other hand, it means that mistakes
// can go unreported. Reader.GetObject reports them.
//
// # Strict and lenient reading
//
// Many files in the wild deviate slightly from the PDF format. By default a
// Reader tolerates the common deviations and reports them as warnings on its
// logger. With ReaderOptions.Strict set, the same deviations are returned as
// a *ReadError instead.
//
// A cross-reference table whose first subsection does not start at object 0
// is only logged, in both modes. A lenient Reader renumbers its entries; a
// strict Reader fails when an object header disagrees with the table.
package pdfread

import (
	"bytes"
	"errors"
	"io"
	"log/slog"

	"github.com/ScriptRock/pdfread/internal/decrypter"
	"github.com/ScriptRock/pdfread/internal/types"
)

// An Objptr is a reference to an indirect object, written "12 0 R" in a file.
type Objptr = types.Objptr

// ReaderOptions configures a Reader. The zero value reads leniently and logs
// to slog.Default.
type ReaderOptions struct {
	// Strict turns tolerated deviations from the PDF format into errors.
	Strict bool

	// Logger receives warnings about tolerated deviations.
	Logger *slog.Logger

	// Password is tried when an encrypted file is opened. Most encrypted
	// files use the empty user password, which is always tried.
	Password string
}

// A Reader is a single PDF file open for reading.
//
// A Reader is not safe for concurrent use. Separate files may be read by
// separate Readers in parallel.
type Reader struct {
	f       io.ReaderAt
	size    int64
	closer  io.Closer
	strict  bool
	log     *slog.Logger
	version string

	trailer   *types.Dict
	xref      *types.Xref
	xrefIndex uint32

	cache     *objectCache
	objStm    map[uint32]objectStream
	resolving map[types.Objptr]bool

	encrypted  bool
	encryptRef types.Objptr
	handler    *decrypter.Handler
	handlerErr error
	auth       decrypter.Auth
}

// Open opens a file for reading.
// Reader.Close should be called when done with the Reader.
func Open(file string, opts *ReaderOptions) (*Reader, error) {
	log := slog.Default()
	if opts != nil && opts.Logger != nil {
		log = opts.Logger
	}
	src, err := openSource(file, log)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(src, src.Size(), opts)
	if err != nil {
		src.Close()
		return nil, err
	}
	r.closer = src
	return r, nil
}

// NewReader opens a file for reading, using the data in f with the given total size.
// opts may be nil.
func NewReader(f io.ReaderAt, size int64, opts *ReaderOptions) (*Reader, error) {
	if opts == nil {
		opts = &ReaderOptions{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	r := &Reader{
		f:         f,
		size:      size,
		strict:    opts.Strict,
		log:       log,
		cache:     newObjectCache(opts.Strict, log),
		objStm:    make(map[uint32]objectStream),
		resolving: make(map[types.Objptr]bool),
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	if err := r.readXref(); err != nil {
		return nil, err
	}
	if err := r.initEncrypt(opts.Password); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the file opened by Open. It is a no-op for Readers
// created by NewReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Version returns the version from the file header, such as "1.7".
func (r *Reader) Version() string {
	return r.version
}

// Trailer returns the file's trailer dictionary, merged over all
// cross-reference sections.
func (r *Reader) Trailer() Value {
	return Value{r: r, data: r.trailer}
}

func (r *Reader) newBuffer(offset int64) *buffer {
	b := newBuffer(r.f, r.size, offset)
	b.rd = r
	return b
}

// deviation handles a tolerated malformation: it is an error in strict mode
// and a logged warning otherwise.
func (r *Reader) deviation(pos int64, msg string, args ...any) error {
	if r.strict {
		return &ReadError{Msg: msg, Pos: pos}
	}
	r.log.Warn(msg, append([]any{slog.Int64("offset", pos)}, args...)...)
	return nil
}

var pdfHeader = []byte("%PDF-")

func (r *Reader) readHeader() error {
	buf := make([]byte, min(1024, r.size))
	if _, err := r.f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return &ReadError{Msg: "reading header", Pos: 0, Err: err}
	}
	i := bytes.Index(buf, pdfHeader)
	if i < 0 {
		return r.deviation(0, "not a PDF file: invalid header")
	}
	if i > 0 {
		if err := r.deviation(int64(i), "garbage before PDF header"); err != nil {
			return err
		}
	}
	v := buf[i+len(pdfHeader):]
	if j := bytes.IndexFunc(v, func(c rune) bool { return c != '.' && (c < '0' || c > '9') }); j >= 0 {
		v = v[:j]
	}
	r.version = string(v)
	return nil
}

// IsEncrypted reports whether the file has an /Encrypt dictionary.
func (r *Reader) IsEncrypted() bool {
	return r.encrypted
}

// Authenticated reports whether a password of an encrypted file has been
// accepted, so that its objects can be read.
func (r *Reader) Authenticated() bool {
	return r.handler != nil && r.handler.Key() != nil
}

// OwnerAuthenticated reports whether the accepted password was the owner
// password.
func (r *Reader) OwnerAuthenticated() bool {
	return r.auth == decrypter.AuthOwner
}

// Decrypt tries password as owner and as user password of an encrypted file
// and reports whether it was accepted. Objects of an encrypted file can only
// be read once a password has been accepted; the empty password and
// ReaderOptions.Password are tried when the file is opened.
func (r *Reader) Decrypt(password []byte) (bool, error) {
	if !r.encrypted {
		return false, ErrNotEncrypted
	}
	if r.handler == nil {
		return false, r.handlerErr
	}
	auth, err := r.handler.Authenticate(password)
	if errors.Is(err, decrypter.ErrInvalidPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.auth = auth
	return true, nil
}

func (r *Reader) initEncrypt(password string) error {
	// See PDF 32000-1:2008, §7.6.
	enc := r.trailer.Get("Encrypt")
	if enc == nil {
		return nil
	}
	r.encrypted = true

	var dict *types.Dict
	switch x := enc.(type) {
	case types.Objptr:
		r.encryptRef = x
		obj, err := r.getObject(x)
		if err != nil {
			return err
		}
		dict, _ = obj.(*types.Dict)
	case *types.Dict:
		dict = x
	}
	if dict == nil {
		return readErrorf(-1, "/Encrypt is not a dictionary")
	}

	var id []byte
	if ids, ok := r.trailer.Get("ID").(types.Array); ok && len(ids) > 0 {
		if s, ok := ids[0].(types.String); ok {
			id = []byte(s.Data)
		}
	}

	h, err := decrypter.New(dict, id)
	if err != nil {
		r.handlerErr = err
		r.log.Warn("cannot decrypt file", slog.Any("error", err))
		return nil
	}
	r.handler = h

	for _, pw := range []string{password, ""} {
		auth, err := h.Authenticate([]byte(pw))
		if err == nil {
			r.auth = auth
			break
		}
	}
	return nil
}
