package pdfread

import (
	"fmt"

	"seehuhn.de/go/xmp"
)

// XMPMetadata parses the XMP metadata stream of the document catalog.
// Both results are nil when the catalog has no /Metadata stream.
func (r *Reader) XMPMetadata() (*xmp.Packet, error) {
	md := r.Trailer().Key("Root").Key("Metadata")
	if md.Kind() != StreamKind {
		return nil, nil
	}
	body := md.Reader()
	defer body.Close()

	packet, err := xmp.Read(body)
	if err != nil {
		return nil, fmt.Errorf("reading XMP metadata %v: %w", md.Ptr(), err)
	}
	return packet, nil
}
