package tools_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assistkit/chatgraph/pkg/chatgraph/llm"
	"github.com/assistkit/chatgraph/pkg/chatgraph/tool"
	"github.com/assistkit/chatgraph/pkg/chatgraph/tools"
)

type fakeSearcher struct {
	results []tools.SearchResult
	err     error

	gotQuery string
	gotTopK  int
}

func (f *fakeSearcher) SearchSimilar(_ context.Context, query string, topK int) ([]tools.SearchResult, error) {
	f.gotQuery = query
	f.gotTopK = topK
	return f.results, f.err
}

func executeKnowledgeSearch(t *testing.T, searcher *fakeSearcher, args string) tool.Result {
	t.Helper()

	spec, err := tools.KnowledgeSearch(searcher)
	require.NoError(t, err)

	r := tool.NewRegistry()
	require.NoError(t, r.Register(spec))

	return r.Execute(context.Background(), llm.ToolCall{
		ID:        "call_1",
		Name:      "knowledge_search",
		Arguments: []byte(args),
	})
}

func TestKnowledgeSearch_FormatsRankedResults(t *testing.T) {
	searcher := &fakeSearcher{results: []tools.SearchResult{
		{Title: "Returns policy", Score: 0.91, Content: "Customers may return items within 30 days."},
		{Title: "Shipping", Score: 0.74, Content: "Orders ship within 2 business days."},
	}}

	res := executeKnowledgeSearch(t, searcher, `{"query":"return an item"}`)
	require.False(t, res.IsError)

	assert.Equal(t, "return an item", searcher.gotQuery)
	assert.Equal(t, 5, searcher.gotTopK, "top_k defaults when omitted")

	assert.Contains(t, res.Content, "1. **Returns policy** (Score: 0.91)")
	assert.Contains(t, res.Content, "2. **Shipping** (Score: 0.74)")
	assert.Contains(t, res.Content, "30 days")
}

func TestKnowledgeSearch_ExplicitTopK(t *testing.T) {
	searcher := &fakeSearcher{}

	res := executeKnowledgeSearch(t, searcher, `{"query":"anything","top_k":2}`)
	require.False(t, res.IsError)
	assert.Equal(t, 2, searcher.gotTopK)
}

func TestKnowledgeSearch_NoResults(t *testing.T) {
	res := executeKnowledgeSearch(t, &fakeSearcher{}, `{"query":"unknown topic"}`)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "No relevant information found")
}

func TestKnowledgeSearch_SearcherFailure(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index offline")}

	res := executeKnowledgeSearch(t, searcher, `{"query":"anything"}`)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "index offline")
}

func TestFormatSearchResults_TruncatesLongContent(t *testing.T) {
	long := strings.Repeat("x", 600)
	out := tools.FormatSearchResults([]tools.SearchResult{
		{Title: "Long doc", Score: 0.5, Content: long},
	})

	assert.Contains(t, out, strings.Repeat("x", 500)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 501))
}
