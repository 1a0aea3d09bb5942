package pdfread

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDecrypted is returned when an object of an encrypted file is
	// requested before a password has been accepted.
	ErrNotDecrypted = errors.New("file has not been decrypted")

	// ErrNotEncrypted is returned by Reader.Decrypt for unencrypted files.
	ErrNotEncrypted = errors.New("file is not encrypted")
)

// A ReadError reports a structural problem found while reading a PDF file.
// Pos is the byte offset at which the problem was detected, or -1.
type ReadError struct {
	Msg string
	Pos int64
	Err error
}

func (e *ReadError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	if e.Pos >= 0 {
		return fmt.Sprintf("malformed PDF: %s (offset %d)", msg, e.Pos)
	}
	return "malformed PDF: " + msg
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func readErrorf(pos int64, format string, args ...any) *ReadError {
	return &ReadError{Msg: fmt.Sprintf(format, args...), Pos: pos}
}

// catch converts a *ReadError panic raised by the lexer into a returned
// error. Other panics are passed on.
func catch(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*ReadError); ok {
		*err = e
		return
	}
	panic(r)
}
