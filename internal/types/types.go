package types

import "fmt"

// An Object is a PDF syntax object, one of the following Go types:
//
//	Bool, a PDF boolean
//	Integer, a PDF integer
//	Real, a PDF real
//	String, a PDF string literal or hex string
//	Name, a PDF name without the leading slash
//	*Dict, a PDF dictionary
//	Array, a PDF array
//	Stream, a PDF stream
//	Objptr, a PDF object reference
//	Objdef, a PDF object definition
//
// An object may also be nil, to represent the PDF null.
type Object interface {
	isObject()
}

type Bool bool

type Integer int64

type Real float64

// A Name is a PDF name, without the leading slash.
type Name string

// A String holds the bytes of a PDF string. Hex records whether the string
// was written in hexadecimal form.
type String struct {
	Data string
	Hex  bool
}

type Array []Object

// A Stream is a dictionary followed by a raw, still filtered, payload.
type Stream struct {
	Hdr  *Dict
	Data []byte
}

// An Objptr identifies an indirect object.
type Objptr struct {
	ID  uint32
	Gen uint16
}

func (p Objptr) String() string {
	return fmt.Sprintf("%d %d R", p.ID, p.Gen)
}

// An Objdef is an indirect object definition, "id gen obj ... endobj".
// It only appears as the result of reading a whole object from the file body.
type Objdef struct {
	Ptr Objptr
	Obj Object
}

func (Bool) isObject()    {}
func (Integer) isObject() {}
func (Real) isObject()    {}
func (Name) isObject()    {}
func (String) isObject()  {}
func (Array) isObject()   {}
func (*Dict) isObject()   {}
func (Stream) isObject()  {}
func (Objptr) isObject()  {}
func (Objdef) isObject()  {}

// Dict is a PDF dictionary. Keys keep the order in which they were first set.
type Dict struct {
	keys []Name
	m    map[Name]Object
}

func NewDict() *Dict {
	return &Dict{m: make(map[Name]Object)}
}

// Get returns the value stored under key, or nil.
// Get may be called on a nil *Dict.
func (d *Dict) Get(key Name) Object {
	if d == nil {
		return nil
	}
	return d.m[key]
}

func (d *Dict) Has(key Name) bool {
	if d == nil {
		return false
	}
	_, ok := d.m[key]
	return ok
}

// Set stores v under key. A key that is already present keeps its position.
func (d *Dict) Set(key Name, v Object) {
	if _, ok := d.m[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.m[key] = v
}

// SetIfAbsent stores v under key unless the key is already present.
// It reports whether v was stored.
func (d *Dict) SetIfAbsent(key Name, v Object) bool {
	if _, ok := d.m[key]; ok {
		return false
	}
	d.keys = append(d.keys, key)
	d.m[key] = v
	return true
}

func (d *Dict) Delete(key Name) {
	if _, ok := d.m[key]; !ok {
		return
	}
	delete(d.m, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []Name {
	if d == nil {
		return nil
	}
	return append([]Name(nil), d.keys...)
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Map returns the entries as a Go map, for callers that do not care about order.
func (d *Dict) Map() map[Name]Object {
	out := make(map[Name]Object, d.Len())
	if d == nil {
		return out
	}
	for k, v := range d.m {
		out[k] = v
	}
	return out
}
