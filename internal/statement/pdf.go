package statement

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxPDFText caps the text layer kept from a PDF.
const maxPDFText = 20000

// PDFInfo describes an uploaded PDF.
type PDFInfo struct {
	Text  string
	Pages int
}

// InspectPDF opens data as a PDF and returns its page count and text layer.
// Scanned documents have an empty text layer.
func InspectPDF(data []byte) (info PDFInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: PDF library crashed: %v", ErrUnsupported, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PDFInfo{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	info.Pages = r.NumPage()
	if info.Pages == 0 {
		return PDFInfo{}, fmt.Errorf("%w: PDF has no pages", ErrUnsupported)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return info, nil
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, io.LimitReader(plain, maxPDFText)); err != nil {
		return info, nil
	}
	info.Text = strings.TrimSpace(buf.String())
	return info, nil
}
