package pdfread

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/ScriptRock/pdfread/internal/encoding"
	"github.com/ScriptRock/pdfread/internal/types"
)

// A Value is a single PDF value, such as an integer, dictionary, or array.
// The zero Value is a PDF null (Kind() == Null, IsNull() = true).
type Value struct {
	r    *Reader
	ptr  types.Objptr
	data types.Object
}

// IsNull reports whether the value is a null. It is equivalent to Kind() == Null.
func (v Value) IsNull() bool {
	return v.data == nil
}

// A ValueKind specifies the kind of data underlying a Value.
type ValueKind int

// The PDF value kinds.
const (
	NullKind ValueKind = iota
	BoolKind
	IntegerKind
	RealKind
	StringKind
	NameKind
	DictKind
	ArrayKind
	StreamKind
)

// Kind reports the kind of value underlying v.
func (v Value) Kind() ValueKind {
	switch v.data.(type) {
	default:
		return NullKind
	case types.Bool:
		return BoolKind
	case types.Integer:
		return IntegerKind
	case types.Real:
		return RealKind
	case types.String:
		return StringKind
	case types.Name:
		return NameKind
	case *types.Dict:
		return DictKind
	case types.Array:
		return ArrayKind
	case types.Stream:
		return StreamKind
	}
}

// Ptr returns the reference of the indirect object v was read from, or of
// the object containing it. It is the zero Objptr for values of the trailer.
func (v Value) Ptr() Objptr {
	return v.ptr
}

// String returns a textual representation of the value v.
// Note that String is not the accessor for values with Kind() == String.
// To access such values, see RawString and Text.
func (v Value) String() string {
	return objfmt(v.data)
}

func objfmt(x types.Object) string {
	switch x := x.(type) {
	case nil:
		return "null"
	case types.Bool:
		return strconv.FormatBool(bool(x))
	case types.Integer:
		return strconv.FormatInt(int64(x), 10)
	case types.Real:
		return strconv.FormatFloat(float64(x), 'f', -1, 64)
	case types.String:
		if x.Hex {
			return fmt.Sprintf("<%x>", x.Data)
		}
		if s, ok := encoding.Text(x.Data); ok {
			return strconv.Quote(s)
		}
		return strconv.Quote(x.Data)
	case types.Name:
		return "/" + string(x)
	case *types.Dict:
		var buf bytes.Buffer
		buf.WriteString("<<")
		for i, k := range x.Keys() {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString("/")
			buf.WriteString(string(k))
			buf.WriteString(" ")
			buf.WriteString(objfmt(x.Get(k)))
		}
		buf.WriteString(">>")
		return buf.String()

	case types.Array:
		var buf bytes.Buffer
		buf.WriteString("[")
		for i, elem := range x {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(objfmt(elem))
		}
		buf.WriteString("]")
		return buf.String()

	case types.Stream:
		return fmt.Sprintf("%v stream(%d bytes)", objfmt(x.Hdr), len(x.Data))

	case types.Objptr:
		return x.String()

	case types.Objdef:
		return fmt.Sprintf("{%d %d obj}%v", x.Ptr.ID, x.Ptr.Gen, objfmt(x.Obj))
	}
	return fmt.Sprint(x)
}

// Bool returns v's boolean value.
// If v.Kind() != Bool, Bool returns false.
func (v Value) Bool() bool {
	x, _ := v.data.(types.Bool)
	return bool(x)
}

// Int64 returns v's int64 value.
// If v.Kind() != Int64, Int64 returns 0.
func (v Value) Int64() int64 {
	x, _ := v.data.(types.Integer)
	return int64(x)
}

// Float64 returns v's float64 value, converting from integer if necessary.
// If v.Kind() != Float64 and v.Kind() != Int64, Float64 returns 0.
func (v Value) Float64() float64 {
	switch x := v.data.(type) {
	case types.Real:
		return float64(x)
	case types.Integer:
		return float64(x)
	}
	return 0
}

// RawString returns v's string value, the bytes as stored in the file
// after decryption.
// If v.Kind() != String, RawString returns the empty string.
func (v Value) RawString() string {
	x, _ := v.data.(types.String)
	return x.Data
}

// IsHex reports whether v is a string written in hexadecimal form.
func (v Value) IsHex() bool {
	x, _ := v.data.(types.String)
	return x.Hex
}

// Text returns v's string value interpreted as a “text string” (defined in the PDF spec)
// and converted to UTF-8. Strings that are neither UTF-16 nor PDFDocEncoding
// are returned unchanged.
// If v.Kind() != String, Text returns the empty string.
func (v Value) Text() string {
	x, ok := v.data.(types.String)
	if !ok {
		return ""
	}
	s, _ := encoding.Text(x.Data)
	return s
}

// Name returns v's name value.
// If v.Kind() != Name, Name returns the empty string.
// The returned name does not include the leading slash:
// if v corresponds to the name written using the syntax /Helvetica,
// Name() == "Helvetica".
func (v Value) Name() string {
	x, _ := v.data.(types.Name)
	return string(x)
}

func (v Value) dict() *types.Dict {
	switch x := v.data.(type) {
	case *types.Dict:
		return x
	case types.Stream:
		return x.Hdr
	}
	return nil
}

// Key returns the value associated with the given name key in the dictionary v.
// Like the result of the Name method, the key should not include a leading slash.
// If v is a stream, Key applies to the stream's header dictionary.
// If v.Kind() != Dict and v.Kind() != Stream, Key returns a null Value.
func (v Value) Key(key string) Value {
	d := v.dict()
	if d == nil {
		return Value{}
	}
	return v.r.resolve(v.ptr, d.Get(types.Name(key)))
}

// Keys returns the keys of the dictionary v in the order they appear in the file.
// If v is a stream, Keys applies to the stream's header dictionary.
// If v.Kind() != Dict and v.Kind() != Stream, Keys returns nil.
func (v Value) Keys() []string {
	d := v.dict()
	if d == nil {
		return nil
	}
	keys := []string{} // not nil
	for _, k := range d.Keys() {
		keys = append(keys, string(k))
	}
	return keys
}

// Index returns the i'th element in the array v.
// If v.Kind() != Array or if i is outside the array bounds,
// Index returns a null Value.
func (v Value) Index(i int) Value {
	x, ok := v.data.(types.Array)
	if !ok || i < 0 || i >= len(x) {
		return Value{}
	}
	return v.r.resolve(v.ptr, x[i])
}

// Len returns the length of the array v.
// If v.Kind() != Array, Len returns 0.
func (v Value) Len() int {
	x, _ := v.data.(types.Array)
	return len(x)
}
