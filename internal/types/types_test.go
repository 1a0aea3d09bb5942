package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Dict(t *testing.T) {
	d := NewDict()
	d.Set("Type", Name("Catalog"))
	d.Set("Pages", Objptr{ID: 2})
	d.Set("Type", Name("Pages"))
	if d.SetIfAbsent("Pages", Integer(1)) {
		t.Error("SetIfAbsent replaced an existing key")
	}
	if !d.SetIfAbsent("Count", Integer(3)) {
		t.Error("SetIfAbsent did not store a new key")
	}
	d.Set("Kids", Array{})
	d.Delete("Count")
	d.Delete("Missing")

	if diff := cmp.Diff(d.Keys(), []Name{"Type", "Pages", "Kids"}); diff != "" {
		t.Error("keys did not match expectations:", diff)
	}
	if diff := cmp.Diff(d.Get("Type"), Object(Name("Pages"))); diff != "" {
		t.Error("value did not match expectations:", diff)
	}
	if diff := cmp.Diff(d.Len(), 3); diff != "" {
		t.Error("length did not match expectations:", diff)
	}
	if d.Has("Count") {
		t.Error("deleted key still present")
	}
	if diff := cmp.Diff(len(d.Map()), 3); diff != "" {
		t.Error("map size did not match expectations:", diff)
	}
}

func Test_Dict_Nil(t *testing.T) {
	var d *Dict
	if d.Get("Type") != nil || d.Has("Type") || d.Len() != 0 || d.Keys() != nil || len(d.Map()) != 0 {
		t.Error("nil dictionary is not empty")
	}
}

func Test_Objptr_String(t *testing.T) {
	if diff := cmp.Diff(Objptr{ID: 12, Gen: 3}.String(), "12 3 R"); diff != "" {
		t.Error("reference did not match expectations:", diff)
	}
}
