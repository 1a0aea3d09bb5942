package pdfread

import (
	"io"
	"slices"
)

// readPreviousLine reads the line that ends at pos, scanning backwards.
// pos is the offset of the last byte to consider. The returned line does not
// include its end-of-line marker; prev is the offset of the last byte before
// the run of CR and LF bytes that precedes the line, so that repeated calls
// walk a file from the end. Runs of mixed or doubled CR and LF bytes count as
// a single line break.
//
// Reaching the start of the file without a line break is an error.
func readPreviousLine(r io.ReaderAt, pos int64) (line []byte, prev int64, err error) {
	var c [1]byte
	for {
		if pos <= 0 {
			return nil, 0, readErrorf(0, "Could not read malformed PDF file")
		}
		if _, err := r.ReadAt(c[:], pos); err != nil {
			return nil, 0, &ReadError{Msg: "reading file", Pos: pos, Err: err}
		}
		if isEOL(c[0]) {
			break
		}
		line = append(line, c[0])
		pos--
	}
	for pos > 0 && isEOL(c[0]) {
		pos--
		if _, err := r.ReadAt(c[:], pos); err != nil {
			return nil, 0, &ReadError{Msg: "reading file", Pos: pos, Err: err}
		}
	}
	slices.Reverse(line)
	return line, pos, nil
}

func isEOL(c byte) bool {
	return c == '\r' || c == '\n'
}
