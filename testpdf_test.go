package pdfread

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"

	"golang.org/x/exp/maps"
)

// testPDF assembles small PDF files with correct offsets for the tests.
type testPDF struct {
	buf     bytes.Buffer
	offsets map[uint32]int64
}

func newTestPDF() *testPDF {
	p := &testPDF{offsets: make(map[uint32]int64)}
	p.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	return p
}

func (p *testPDF) offset() int64 {
	return int64(p.buf.Len())
}

// raw appends s and returns the offset it was written at.
func (p *testPDF) raw(s string) int64 {
	off := p.offset()
	p.buf.WriteString(s)
	return off
}

// obj appends the indirect object "id 0 obj body endobj".
func (p *testPDF) obj(id uint32, body string) int64 {
	off := p.raw(fmt.Sprintf("%d 0 obj\n%s\nendobj\n", id, body))
	p.offsets[id] = off
	return off
}

// stream appends a stream object with the given extra header entries.
func (p *testPDF) stream(id uint32, hdr string, data []byte) int64 {
	off := p.raw(fmt.Sprintf("%d 0 obj\n<< %s /Length %d >>\nstream\n", id, hdr, len(data)))
	p.buf.Write(data)
	p.buf.WriteString("\nendstream\nendobj\n")
	p.offsets[id] = off
	return off
}

// xref appends a classic table covering object 0 up to the highest object
// written so far, followed by a trailer with the given entries. It returns
// the table's offset.
func (p *testPDF) xref(trailer string) int64 {
	ids := maps.Keys(p.offsets)
	slices.Sort(ids)
	size := uint32(1)
	if len(ids) > 0 {
		size = ids[len(ids)-1] + 1
	}

	off := p.raw(fmt.Sprintf("xref\n0 %d\n", size))
	p.buf.WriteString(xrefRecord(0, 65535, 'f'))
	for id := uint32(1); id < size; id++ {
		if o, ok := p.offsets[id]; ok {
			p.buf.WriteString(xrefRecord(o, 0, 'n'))
		} else {
			p.buf.WriteString(xrefRecord(0, 1, 'f'))
		}
	}
	p.buf.WriteString(fmt.Sprintf("trailer\n<< /Size %d %s >>\n", size, trailer))
	return off
}

// An xrefEntry is one row of a cross-reference stream: the entry type and
// its two fields.
type xrefEntry struct {
	typ    byte
	f2, f3 int64
}

// xrefStream appends cross-reference stream id with /W [1 4 2]. The
// entries must match index, and hdr holds the remaining header entries.
func (p *testPDF) xrefStream(id uint32, index string, entries []xrefEntry, hdr string) int64 {
	var data []byte
	for _, e := range entries {
		data = append(data, e.typ, byte(e.f2>>24), byte(e.f2>>16), byte(e.f2>>8), byte(e.f2), byte(e.f3>>8), byte(e.f3))
	}
	return p.stream(id, fmt.Sprintf("/Type /XRef /W [1 4 2] /Index [%s] %s", index, hdr), data)
}

// finish appends the startxref section and returns the file contents.
func (p *testPDF) finish(startxref int64) []byte {
	fmt.Fprintf(&p.buf, "startxref\n%d\n%%%%EOF\n", startxref)
	return p.buf.Bytes()
}

func xrefRecord(off int64, gen uint16, typ byte) string {
	return fmt.Sprintf("%010d %05d %c \n", off, gen, typ)
}

// discardLogger drops everything logged by lenient readers in tests.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestPDF(t *testing.T, data []byte, opts *ReaderOptions) *Reader {
	t.Helper()
	r, err := newTestReader(data, opts)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	return r
}

func newTestReader(data []byte, opts *ReaderOptions) (*Reader, error) {
	if opts == nil {
		opts = &ReaderOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return NewReader(bytes.NewReader(data), int64(len(data)), opts)
}

// simplePDF is a one-page file with an information dictionary.
func simplePDF() []byte {
	p := newTestPDF()
	p.obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	p.obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>")
	p.obj(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>")
	p.stream(4, "", []byte("BT /F1 12 Tf (Hello) Tj ET"))
	p.obj(5, "<< /Title (Hello World) /Author <FEFF00C4006E006E0061> /CreationDate (D:20230102030405+01'00') /Source (scanner) >>")
	return p.finish(p.xref("/Root 1 0 R /Info 5 0 R"))
}
