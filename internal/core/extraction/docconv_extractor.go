package extraction

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
)

var _ core.PageExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor handles non-PDF content types (DOCX, HTML, plain text…)
// via sajari/docconv. docconv yields one body with no page structure, so
// the whole text becomes a single page numbered 1.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) ExtractPages(ctx context.Context, data []byte, contentType string) ([]core.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv %q: %w", contentType, err)
	}
	if res.Body == "" {
		return nil, nil
	}
	return []core.Page{{Number: 1, Text: res.Body}}, nil
}
