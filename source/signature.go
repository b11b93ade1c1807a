package source

import (
	"bytes"
	"fmt"

	"github.com/poiesic/quarry/core"
)

var (
	pdfMagic = []byte("%PDF-")

	// Finder metadata files carry a "Bud1" block signature, with or without
	// the 4-byte alignment header.
	skipSignatures = [][]byte{
		[]byte("Bud1"),
		[]byte("\x00\x00\x00\x01Bud1"),
	}
)

// Classify checks the byte signature of fetched content.
// It returns nil for PDFs, core.ErrSkipped for known non-PDF artifacts
// and core.ErrNotAPDF for anything else.
func Classify(data []byte) error {
	if bytes.HasPrefix(data, pdfMagic) {
		return nil
	}
	for _, sig := range skipSignatures {
		if bytes.HasPrefix(data, sig) {
			return core.ErrSkipped
		}
	}
	head := data
	if len(head) > 20 {
		head = head[:20]
	}
	return fmt.Errorf("%w: leading bytes %q", core.ErrNotAPDF, head)
}
