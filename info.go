package pdfread

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ScriptRock/pdfread/internal/types"
)

// DocumentInfo is a view of a document information dictionary,
// see PDF 32000-1:2008, §14.3.3.
type DocumentInfo struct {
	V Value
}

// DocumentInfo returns the document information dictionary named by /Info
// in the trailer. Both results are nil when the file has none.
func (r *Reader) DocumentInfo() (*DocumentInfo, error) {
	ref := r.trailer.Get("Info")
	if ref == nil {
		return nil, nil
	}
	var v Value
	if ptr, ok := ref.(types.Objptr); ok {
		var err error
		if v, err = r.GetObject(ptr); err != nil {
			return nil, err
		}
	} else {
		v = Value{r: r, data: ref}
	}
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind() != DictKind {
		return nil, readErrorf(-1, "/Info is not a dictionary: %v", v)
	}
	return &DocumentInfo{V: v}, nil
}

func (d *DocumentInfo) text(key string) (string, bool) {
	v := d.V.Key(key)
	if v.Kind() != StringKind {
		return "", false
	}
	return v.Text(), true
}

func (d *DocumentInfo) raw(key string) (string, bool) {
	v := d.V.Key(key)
	if v.Kind() != StringKind {
		return "", false
	}
	return v.RawString(), true
}

// Title returns the document title as UTF-8 text.
// ok is false if the entry is absent or not a string.
func (d *DocumentInfo) Title() (string, bool) { return d.text("Title") }

func (d *DocumentInfo) Author() (string, bool) { return d.text("Author") }

func (d *DocumentInfo) Subject() (string, bool) { return d.text("Subject") }

func (d *DocumentInfo) Keywords() (string, bool) { return d.text("Keywords") }

// Creator returns the application that created the original document.
func (d *DocumentInfo) Creator() (string, bool) { return d.text("Creator") }

// Producer returns the application that converted the document to PDF.
func (d *DocumentInfo) Producer() (string, bool) { return d.text("Producer") }

// TitleRaw returns the title exactly as stored, without text decoding.
func (d *DocumentInfo) TitleRaw() (string, bool) { return d.raw("Title") }

func (d *DocumentInfo) AuthorRaw() (string, bool) { return d.raw("Author") }

func (d *DocumentInfo) SubjectRaw() (string, bool) { return d.raw("Subject") }

func (d *DocumentInfo) KeywordsRaw() (string, bool) { return d.raw("Keywords") }

func (d *DocumentInfo) CreatorRaw() (string, bool) { return d.raw("Creator") }

func (d *DocumentInfo) ProducerRaw() (string, bool) { return d.raw("Producer") }

// CreationDate returns the parsed /CreationDate entry.
// ok is false if the entry is absent or not a valid date.
func (d *DocumentInfo) CreationDate() (time.Time, bool) { return d.date("CreationDate") }

// ModDate returns the parsed /ModDate entry.
func (d *DocumentInfo) ModDate() (time.Time, bool) { return d.date("ModDate") }

func (d *DocumentInfo) date(key string) (time.Time, bool) {
	s, ok := d.text(key)
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseDate(s)
	return t, err == nil
}

// Custom returns the keys of the dictionary that are not one of the
// standard entries, in file order.
func (d *DocumentInfo) Custom() []string {
	var keys []string
	for _, k := range d.V.Keys() {
		switch k {
		case "Title", "Author", "Subject", "Keywords", "Creator", "Producer",
			"CreationDate", "ModDate", "Trapped":
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

var errDate = errors.New("invalid PDF date")

// ParseDate parses a PDF date string, "D:YYYYMMDDHHmmSSOHH'mm'", where
// every field after the year is optional. Dates without a time zone are
// returned in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "D:")

	fields := []struct {
		width int
		def   int
		min   int
		max   int
	}{
		{4, 0, 0, 9999}, // year
		{2, 1, 1, 12},   // month
		{2, 1, 1, 31},   // day
		{2, 0, 0, 23},   // hour
		{2, 0, 0, 59},   // minute
		{2, 0, 0, 59},   // second
	}
	vals := make([]int, len(fields))
	for i, f := range fields {
		vals[i] = f.def
	}
	for i, f := range fields {
		if len(s) < f.width || !isDigits(s[:f.width]) {
			if i == 0 {
				return time.Time{}, fmt.Errorf("%w %q", errDate, s)
			}
			break
		}
		n, _ := strconv.Atoi(s[:f.width])
		if n < f.min || n > f.max {
			return time.Time{}, fmt.Errorf("%w %q", errDate, s)
		}
		vals[i] = n
		s = s[f.width:]
	}

	loc := time.UTC
	if s != "" {
		switch s[0] {
		case 'Z':
		case '+', '-':
			tz := strings.NewReplacer("'", "").Replace(s[1:])
			var hh, mm int
			if len(tz) >= 2 && isDigits(tz[:2]) {
				hh, _ = strconv.Atoi(tz[:2])
				tz = tz[2:]
			}
			if len(tz) >= 2 && isDigits(tz[:2]) {
				mm, _ = strconv.Atoi(tz[:2])
			}
			off := hh*3600 + mm*60
			if s[0] == '-' {
				off = -off
			}
			loc = time.FixedZone("", off)
		default:
			return time.Time{}, fmt.Errorf("%w %q", errDate, s)
		}
	}
	return time.Date(vals[0], time.Month(vals[1]), vals[2], vals[3], vals[4], vals[5], 0, loc), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
