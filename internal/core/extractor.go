package core

import "context"

// Page is one page's plain text as produced by extraction. Numbers are
// 1-based and may be non-contiguous after near-empty pages are dropped.
type Page struct {
	Number int
	Text   string
}

// PageExtractor converts a document's raw bytes into ordered per-page text.
// A document that cannot be read or parsed at all is a fatal error; the
// caller marks the job failed.
type PageExtractor interface {
	ExtractPages(ctx context.Context, data []byte, contentType string) ([]Page, error)
}
