// Package pdfinfo inspects uploaded documents before they reach a tool.
package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
)

var (
	magic = []byte("%PDF")

	ErrNotPDF = errors.New("file is not a PDF document")
)

// HasHeader reports whether r starts with the PDF magic bytes.
func HasHeader(r io.Reader) (bool, error) {
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(buf, magic), nil
}

// CheckFile returns ErrNotPDF when the file at path lacks the PDF header.
func CheckFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ok, err := HasHeader(f)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPDF
	}
	return nil
}

// PageCount parses the document structure and returns its number of pages.
func PageCount(path string) (n int, err error) {
	// the parser panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("parsing %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return r.NumPage(), nil
}
