package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrEmpty  = errors.New("empty upload")
	ErrNotPDF = errors.New("not a pdf file")
	// ErrNoText is returned for PDFs whose pages carry no text layer, e.g. scans.
	ErrNoText = errors.New("pdf contains no extractable text")
)

var pdfMagic = []byte("%PDF-")

type Result struct {
	Text  string
	Pages int
	Size  int64
}

// ExtractText reads the entire content of r and returns the plain text of every
// page, in page order, joined by newlines.
func ExtractText(r io.Reader) (*Result, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	return ExtractBytes(b)
}

func ExtractBytes(b []byte) (res *Result, err error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	if !bytes.HasPrefix(b, pdfMagic) {
		return nil, ErrNotPDF
	}

	// the parser panics on some malformed object graphs
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("%w: %v", ErrNotPDF, p)
		}
	}()

	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}

	pages := pdfReader.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return nil, ErrNoText
	}
	return &Result{Text: out, Pages: pages, Size: int64(len(b))}, nil
}
