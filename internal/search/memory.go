package search

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// MemoryIndex is an in-process keyword index. It scores documents by term
// overlap with the query, which is enough for demos and tests; production
// deployments plug a real hybrid-search service into the Searcher contract.
type MemoryIndex struct {
	docs []Document
}

// NewMemoryIndex builds an index over the given documents.
func NewMemoryIndex(docs []Document) *MemoryIndex {
	return &MemoryIndex{docs: docs}
}

// Add appends a document to the index.
func (m *MemoryIndex) Add(doc Document) {
	m.docs = append(m.docs, doc)
}

func (m *MemoryIndex) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := tokenize(query)
	if len(terms) == 0 || topK <= 0 {
		return []Document{}, nil
	}

	var results []Document
	for _, doc := range m.docs {
		score := overlap(terms, tokenize(doc.Title+" "+doc.Content))
		if score > 0 {
			doc.Score = score
			results = append(results, doc)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// overlap is the fraction of query terms present in the document.
func overlap(queryTerms, docTerms []string) float64 {
	docSet := make(map[string]bool, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = true
	}

	var matched int
	for _, t := range queryTerms {
		if docSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	terms := fields[:0]
	for _, f := range fields {
		if len(f) > 2 && !stopwords[f] {
			terms = append(terms, f)
		}
	}
	return terms
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "how": true, "what": true,
	"can": true, "you": true, "your": true, "with": true, "this": true,
}
