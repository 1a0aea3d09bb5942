// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pdfread

// A Page represent a single page in a PDF file.
// The methods interpret a Page dictionary stored in V.
type Page struct {
	V Value
}

// maxPageDepth bounds the page tree walk, so that a /Kids cycle ends.
const maxPageDepth = 64

// Page returns the page for the given page number.
// Page numbers are indexed starting at 1, not 0.
// If the page is not found, Page returns a Page with p.V.IsNull().
func (r *Reader) Page(num int) Page {
	num-- // now 0-indexed
	if num < 0 {
		return Page{}
	}
	page := r.Trailer().Key("Root").Key("Pages")
	depth := 0
Search:
	for page.Key("Type").Name() == "Pages" && depth < maxPageDepth {
		depth++
		count := int(page.Key("Count").Int64())
		if count <= num {
			return Page{}
		}
		kids := page.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			kid := kids.Index(i)
			switch kid.Key("Type").Name() {
			case "Pages":
				c := int(kid.Key("Count").Int64())
				if num < c {
					page = kid
					continue Search
				}
				num -= c
			case "Page":
				if num == 0 {
					return Page{kid}
				}
				num--
			}
		}
		break
	}
	return Page{}
}

// NumPage returns the number of pages in the PDF file.
func (r *Reader) NumPage() int {
	return int(r.Trailer().Key("Root").Key("Pages").Key("Count").Int64())
}

func (p Page) findInherited(key string) Value {
	v := p.V
	for depth := 0; !v.IsNull() && depth < maxPageDepth; depth++ {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
		v = v.Key("Parent")
	}
	return Value{}
}

// Resources returns the resources dictionary associated with the page.
func (p Page) Resources() Value {
	return p.findInherited("Resources")
}

// MediaBox returns the page's media box, inherited from its ancestors
// when the page does not set one.
func (p Page) MediaBox() Value {
	return p.findInherited("MediaBox")
}

// Contents returns the page's content stream data, with several content
// streams joined by newlines.
func (p Page) Contents() ([]byte, error) {
	v := p.V.Key("Contents")
	if v.Kind() == StreamKind {
		return decodeStream(v)
	}
	var out []byte
	for i := 0; i < v.Len(); i++ {
		data, err := decodeStream(v.Index(i))
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, data...)
	}
	return out, nil
}
