package pdfread

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ScriptRock/pdfread/internal/types"
)

type errorReadCloser struct {
	err error
}

func (e *errorReadCloser) Read([]byte) (int, error) {
	return 0, e.err
}

func (e *errorReadCloser) Close() error {
	return e.err
}

// Reader returns the data contained in the stream v, with the filters
// named in /Filter applied.
// If v.Kind() != Stream, Reader returns a ReadCloser that
// responds to all reads with a “stream not present” error.
func (v Value) Reader() io.ReadCloser {
	x, ok := v.data.(types.Stream)
	if !ok {
		return &errorReadCloser{errors.New("stream not present")}
	}

	log := slog.Default()
	if v.r != nil {
		log = v.r.log
	}
	var rd io.Reader = bytes.NewReader(x.Data)
	var err error
	filter := v.Key("Filter")
	param := v.Key("DecodeParms")
	switch filter.Kind() {
	default:
		err = fmt.Errorf("unsupported filter %v", filter)
	case NullKind:
		// ok
	case NameKind:
		rd, err = applyFilter(log, rd, filter.Name(), param)
	case ArrayKind:
		for i := 0; i < filter.Len() && err == nil; i++ {
			rd, err = applyFilter(log, rd, filter.Index(i).Name(), param.Index(i))
		}
	}
	if err != nil {
		return &errorReadCloser{err}
	}

	if rc, ok := rd.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(rd)
}

// decodeStream returns the decoded payload of a stream value.
func decodeStream(v Value) ([]byte, error) {
	rd := v.Reader()
	defer rd.Close()
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("decoding stream: %w", err)
	}
	return data, nil
}

func applyFilter(log *slog.Logger, rd io.Reader, name string, param Value) (io.Reader, error) {
	switch name {
	default:
		return nil, fmt.Errorf("unsupported filter %s", name)
	case "FlateDecode", "Fl":
		zr, err := zlib.NewReader(rd)
		if err != nil {
			return nil, fmt.Errorf("FlateDecode: %w", err)
		}
		return newPredictor(log, zr, param)
	case "ASCIIHexDecode", "AHx":
		data, err := io.ReadAll(rd)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(decodeHex(data)), nil
	case "ASCII85Decode", "A85":
		if param.Len() > 0 || len(param.Keys()) > 0 {
			log.Debug("ignoring ASCII85Decode parameters", slog.Any("param", param))
		}
		return ascii85.NewDecoder(newAlphaReader(rd)), nil
	case "RunLengthDecode", "RL":
		data, err := io.ReadAll(rd)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(decodeRunLength(data)), nil
	}
}

// decodeHex decodes ASCIIHexDecode data. Non-hex bytes are skipped, '>'
// ends the data and an odd final digit is padded with a zero nibble.
func decodeHex(data []byte) []byte {
	out := make([]byte, 0, len(data)/2)
	hi := -1
	for _, c := range data {
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
		out = append(out, byte(hi<<4|x))
		hi = -1
	}
	if hi >= 0 {
		out = append(out, byte(hi<<4))
	}
	return out
}

func decodeRunLength(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out
		case n < 128:
			end := min(i+n+1, len(data))
			out = append(out, data[i:end]...)
			i = end
		default:
			if i >= len(data) {
				return out
			}
			for j := 0; j < 257-n; j++ {
				out = append(out, data[i])
			}
			i++
		}
	}
	return out
}

// alphaReader passes on the ASCII85 alphabet, dropping white space, the
// optional "<~" prefix and everything from the "~>" end marker on.
type alphaReader struct {
	r     io.Reader
	start bool
	done  bool
}

func newAlphaReader(r io.Reader) *alphaReader {
	return &alphaReader{r: r, start: true}
}

func (a *alphaReader) Read(p []byte) (int, error) {
	if a.done {
		return 0, io.EOF
	}
	n, err := a.r.Read(p)
	out := 0
	for i := 0; i < n; i++ {
		c := p[i]
		switch {
		case isSpace(c):
			continue
		case c == '<' && a.start:
			continue
		case c == '~':
			if a.start {
				a.start = false
				continue
			}
			a.done = true
			return out, nil
		}
		a.start = false
		p[out] = c
		out++
	}
	return out, err
}

// newPredictor undoes the PNG or TIFF predictor named in the FlateDecode
// parameters param.
func newPredictor(log *slog.Logger, rd io.Reader, param Value) (io.Reader, error) {
	pred := param.Key("Predictor").Int64()
	if pred <= 1 {
		return rd, nil
	}
	colors := intParam(param, "Colors", 1)
	bpc := intParam(param, "BitsPerComponent", 8)
	columns := intParam(param, "Columns", 1)
	rowBytes := (colors*bpc*columns + 7) / 8
	bpp := max(1, (colors*bpc+7)/8)

	switch {
	case pred == 2:
		if bpc != 8 {
			return nil, fmt.Errorf("unsupported TIFF predictor with %d bits per component", bpc)
		}
		return &tiffReader{r: rd, bpp: bpp, row: make([]byte, rowBytes)}, nil
	case pred >= 10 && pred <= 15:
		return &pngReader{r: rd, bpp: bpp, prev: make([]byte, rowBytes), cur: make([]byte, 1+rowBytes)}, nil
	}
	log.Debug("unknown predictor", slog.Int64("pred", pred))
	return nil, fmt.Errorf("unsupported predictor %d", pred)
}

func intParam(param Value, key string, def int) int {
	v := param.Key(key)
	if v.Kind() != IntegerKind || v.Int64() <= 0 {
		return def
	}
	return int(v.Int64())
}

// pngReader reverses the PNG row filters, see RFC 2083 section 6.
type pngReader struct {
	r    io.Reader
	bpp  int
	prev []byte
	cur  []byte
	pend []byte
}

func (p *pngReader) Read(b []byte) (int, error) {
	n := 0
	for len(b) > 0 {
		if len(p.pend) > 0 {
			m := copy(b, p.pend)
			n += m
			b = b[m:]
			p.pend = p.pend[m:]
			continue
		}
		if _, err := io.ReadFull(p.r, p.cur); err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return n, err
		}
		row := p.cur[1:]
		switch p.cur[0] {
		case 0:
		case 1:
			for i := p.bpp; i < len(row); i++ {
				row[i] += row[i-p.bpp]
			}
		case 2:
			for i := range row {
				row[i] += p.prev[i]
			}
		case 3:
			for i := range row {
				var left int
				if i >= p.bpp {
					left = int(row[i-p.bpp])
				}
				row[i] += byte((left + int(p.prev[i])) / 2)
			}
		case 4:
			for i := range row {
				var left, upLeft byte
				if i >= p.bpp {
					left, upLeft = row[i-p.bpp], p.prev[i-p.bpp]
				}
				row[i] += paeth(left, p.prev[i], upLeft)
			}
		default:
			return n, fmt.Errorf("malformed PNG predictor row type %d", p.cur[0])
		}
		copy(p.prev, row)
		p.pend = p.prev
	}
	return n, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// tiffReader reverses TIFF predictor 2 for 8-bit components.
type tiffReader struct {
	r    io.Reader
	bpp  int
	row  []byte
	pend []byte
}

func (t *tiffReader) Read(b []byte) (int, error) {
	n := 0
	for len(b) > 0 {
		if len(t.pend) > 0 {
			m := copy(b, t.pend)
			n += m
			b = b[m:]
			t.pend = t.pend[m:]
			continue
		}
		if _, err := io.ReadFull(t.r, t.row); err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return n, err
		}
		for i := t.bpp; i < len(t.row); i++ {
			t.row[i] += t.row[i-t.bpp]
		}
		t.pend = t.row
	}
	return n, nil
}
