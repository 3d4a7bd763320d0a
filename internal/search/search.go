package search

import "context"

// Document is one knowledge base hit.
type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher is the hybrid-search collaborator consumed by the retrieve
// executor. Implementations combine semantic and keyword signals; the
// pipeline only depends on this contract.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Document, error)
}
