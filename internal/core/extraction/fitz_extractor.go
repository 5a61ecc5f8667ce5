package extraction

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
)

var _ core.PageExtractor = (*FitzExtractor)(nil)

// FitzExtractor extracts per-page text from PDFs via MuPDF.
type FitzExtractor struct {
	log *zap.Logger
}

func NewFitzExtractor(log *zap.Logger) *FitzExtractor {
	return &FitzExtractor{log: log}
}

// ExtractPages opens the PDF from memory and walks its pages in order.
// An unreadable document is fatal; a single page's text error only drops
// that page.
func (e *FitzExtractor) ExtractPages(ctx context.Context, data []byte, contentType string) ([]core.Page, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := make([]core.Page, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			e.log.Warn("page text extraction failed, skipping page",
				zap.Int("page", i+1), zap.Error(err))
			continue
		}
		pages = append(pages, core.Page{Number: i + 1, Text: text})
	}
	return pages, nil
}
