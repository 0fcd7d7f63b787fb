package pdfmeta

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Inspector counts pages of uploads. Images are a single page.
type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

func (i *Inspector) PageCount(mimeType string, body []byte) (pages int, err error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if strings.HasPrefix(mimeType, "image/") {
		return 1, nil
	}
	if mimeType != "application/pdf" {
		return 0, fmt.Errorf("page count: unsupported mime type %q", mimeType)
	}
	if len(body) == 0 {
		return 0, errors.New("page count: empty pdf")
	}

	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = fmt.Errorf("page count: malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return 0, fmt.Errorf("page count: open pdf: %w", err)
	}
	return reader.NumPage(), nil
}
