package extraction

import (
	"context"
	"strings"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
)

// MinPageChars is the minimum normalized text length for a page to be
// kept. Blank scans and divider pages fall below it and are dropped.
const MinPageChars = 50

var _ core.PageExtractor = (*CompositeExtractor)(nil)

// CompositeExtractor routes PDFs to the MuPDF extractor and everything
// else to docconv, then applies the near-empty page filter.
type CompositeExtractor struct {
	pdf   core.PageExtractor
	other core.PageExtractor
}

func NewCompositeExtractor(pdf, other core.PageExtractor) *CompositeExtractor {
	return &CompositeExtractor{pdf: pdf, other: other}
}

func (e *CompositeExtractor) ExtractPages(ctx context.Context, data []byte, contentType string) ([]core.Page, error) {
	var (
		pages []core.Page
		err   error
	)
	if isPDF(contentType) {
		pages, err = e.pdf.ExtractPages(ctx, data, contentType)
	} else {
		pages, err = e.other.ExtractPages(ctx, data, contentType)
	}
	if err != nil {
		return nil, err
	}
	return FilterPages(pages, MinPageChars), nil
}

func isPDF(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "pdf")
}

// FilterPages normalizes each page's whitespace and drops pages whose
// normalized text does not exceed minChars. Surviving pages keep their
// original numbers, so the sequence may be non-contiguous.
func FilterPages(pages []core.Page, minChars int) []core.Page {
	out := make([]core.Page, 0, len(pages))
	for _, p := range pages {
		text := NormalizeWhitespace(p.Text)
		if len(text) <= minChars {
			continue
		}
		out = append(out, core.Page{Number: p.Number, Text: text})
	}
	return out
}

// NormalizeWhitespace collapses all whitespace runs to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
