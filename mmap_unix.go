//go:build unix

package pdfread

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// mmapSource is a read-only memory mapping of a whole file.
type mmapSource struct {
	data []byte
}

func (m *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *mmapSource) Size() int64 { return int64(len(m.data)) }

func (m *mmapSource) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// openSource maps the file into memory. Files that cannot be mapped, such
// as empty files and pipes, are read through the file descriptor instead.
func openSource(name string, log *slog.Logger) (source, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size <= 0 || !fi.Mode().IsRegular() || int64(int(size)) != size {
		return openFileSource(name)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		log.Debug("mmap failed, reading file instead", slog.String("file", name), slog.Any("error", err))
		return openFileSource(name)
	}
	return &mmapSource{data: data}, nil
}
