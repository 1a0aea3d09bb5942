package pdfread

import (
	"io"
	"os"
)

// A source is the byte source behind a Reader opened by Open.
type source interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// fileSource reads through an open *os.File.
type fileSource struct {
	*os.File
	size int64
}

func (f *fileSource) Size() int64 { return f.size }

func openFileSource(name string) (*fileSource, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{File: f, size: fi.Size()}, nil
}
