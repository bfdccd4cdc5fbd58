// Package tools provides the built-in tool specs: knowledge base search
// and WhatsApp message delivery.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/assistkit/chatgraph/pkg/chatgraph/tool"
)

const (
	defaultTopK  = 5
	snippetLimit = 500
)

// Searcher queries a knowledge base for documents similar to a query.
type Searcher interface {
	SearchSimilar(ctx context.Context, query string, topK int) ([]SearchResult, error)
}

// SearchResult is one ranked knowledge base hit.
type SearchResult struct {
	Title   string
	Content string
	Score   float64
}

// KnowledgeSearchInput is the model-facing argument schema for
// knowledge_search.
type KnowledgeSearchInput struct {
	Query string `json:"query" jsonschema:"query to run against the knowledge base"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results to return"`
}

// KnowledgeSearch builds the knowledge_search tool spec over the given
// searcher.
func KnowledgeSearch(searcher Searcher) (tool.Spec, error) {
	schema, err := tool.SchemaFor[KnowledgeSearchInput]()
	if err != nil {
		return tool.Spec{}, fmt.Errorf("knowledge_search schema: %w", err)
	}

	return tool.Spec{
		Name:        "knowledge_search",
		Description: "Search the knowledge base for information relevant to a query.",
		InputSchema: schema,
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in KnowledgeSearchInput
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			if in.TopK <= 0 {
				in.TopK = defaultTopK
			}

			results, err := searcher.SearchSimilar(ctx, in.Query, in.TopK)
			if err != nil {
				return "", fmt.Errorf("knowledge base search: %w", err)
			}
			return FormatSearchResults(results), nil
		},
	}, nil
}

// FormatSearchResults renders ranked hits as model-readable text with
// title, score, and a bounded content snippet per result.
func FormatSearchResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No relevant information found in the knowledge base."
	}

	var b strings.Builder
	b.WriteString("Information found in the knowledge base:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. **%s** (Score: %.2f)\n", i+1, r.Title, r.Score)
		snippet := r.Content
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit] + "..."
		}
		fmt.Fprintf(&b, "   %s\n\n", snippet)
	}
	return b.String()
}
