package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextLayer reads the text embedded in the PDF itself.
type TextLayer struct{}

func NewTextLayer() *TextLayer {
	return &TextLayer{}
}

func (t *TextLayer) Name() string {
	return MethodTextLayer
}

func (t *TextLayer) Extract(ctx context.Context, in Input) (res *Result, err error) {
	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if b.Len() > 0 && text != "" {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	return &Result{
		Text:      b.String(),
		PageCount: pages,
		Method:    MethodTextLayer,
		Info:      documentInfo(reader),
	}, nil
}

// Inspect returns the page count and the info dictionary of a PDF.
func Inspect(data []byte) (pages int, info map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, info, err = 0, nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, nil, err
	}
	return reader.NumPage(), documentInfo(reader), nil
}

func documentInfo(reader *pdf.Reader) map[string]string {
	info := map[string]string{}
	dict := reader.Trailer().Key("Info")
	if dict.IsNull() {
		return info
	}
	for _, key := range dict.Keys() {
		if v := strings.TrimSpace(dict.Key(key).Text()); v != "" {
			info[key] = v
		}
	}
	return info
}
