package pdfread

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Reader_Page(t *testing.T) {
	r := openTestPDF(t, simplePDF(), nil)

	if diff := cmp.Diff(r.NumPage(), 1); diff != "" {
		t.Error("page count did not match expectations:", diff)
	}
	for _, n := range []int{0, 2, -1} {
		if !r.Page(n).V.IsNull() {
			t.Errorf("page %d should not exist", n)
		}
	}

	page := r.Page(1)
	if page.V.IsNull() {
		t.Fatal("page 1 not found")
	}
	if diff := cmp.Diff(page.MediaBox().String(), "[0 0 612 792]"); diff != "" {
		t.Error("inherited media box did not match expectations:", diff)
	}
	if !page.Resources().IsNull() {
		t.Error("page without /Resources reported some")
	}

	content, err := page.Contents()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(string(content), "BT /F1 12 Tf (Hello) Tj ET"); diff != "" {
		t.Error("contents did not match expectations:", diff)
	}
}

func Test_Reader_Page_Tree(t *testing.T) {
	p := newTestPDF()
	p.obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	p.obj(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 3 >>")
	p.obj(3, "<< /Type /Pages /Parent 2 0 R /Kids [5 0 R 6 0 R] /Count 2 /Rotate 90 >>")
	p.obj(4, "<< /Type /Page /Parent 2 0 R /Contents [7 0 R 8 0 R] >>")
	p.obj(5, "<< /Type /Page /Parent 3 0 R /Label (a) >>")
	p.obj(6, "<< /Type /Page /Parent 3 0 R /Label (b) >>")
	p.stream(7, "", []byte("q"))
	p.stream(8, "", []byte("Q"))
	r := openTestPDF(t, p.finish(p.xref("/Root 1 0 R")), nil)

	got := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		got = append(got, r.Page(i).V.Key("Label").Text())
	}
	if diff := cmp.Diff(got, []string{"a", "b", ""}); diff != "" {
		t.Error("page order did not match expectations:", diff)
	}

	if diff := cmp.Diff(r.Page(2).findInherited("Rotate").Int64(), int64(90)); diff != "" {
		t.Error("inherited attribute did not match expectations:", diff)
	}

	content, err := r.Page(3).Contents()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(string(content), "q\nQ"); diff != "" {
		t.Error("joined contents did not match expectations:", diff)
	}
}
