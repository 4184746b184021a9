package tools

import (
	"context"
	"fmt"
	"strings"

	"pkai/internal/protocol"
	"pkai/internal/retrieval"
)

const noKnowledgeResults = "No relevant documents found in the knowledge base."

// KnowledgeSearch implements search_knowledge_base.
type KnowledgeSearch struct {
	searcher retrieval.Searcher
	topK     int
}

func NewKnowledgeSearch(searcher retrieval.Searcher, topK int) *KnowledgeSearch {
	if topK <= 0 {
		topK = retrieval.DefaultK
	}
	return &KnowledgeSearch{searcher: searcher, topK: topK}
}

func (t *KnowledgeSearch) Name() string { return protocol.ToolNameSearchKnowledge }

func (t *KnowledgeSearch) Description() string {
	return "Search the user's personal knowledge base for relevant information. Use this when you need to answer questions using the user's own documents and notes."
}

func (t *KnowledgeSearch) Parameters() map[string]any {
	return schema([]string{"query"}, map[string]any{
		"query": prop("string", "What to look for"),
		"k":     prop("integer", fmt.Sprintf("Maximum number of passages (default %d)", t.topK)),
	})
}

func (t *KnowledgeSearch) Invoke(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	snippets, err := t.searcher.Search(ctx, query, intArg(args, "k", t.topK))
	if err != nil {
		return "", err
	}
	return RenderSnippets(snippets), nil
}

// RenderSnippets formats passages as numbered, source-tagged blocks.
func RenderSnippets(snippets []retrieval.Snippet) string {
	if len(snippets) == 0 {
		return noKnowledgeResults
	}
	parts := make([]string, 0, len(snippets))
	for i, s := range snippets {
		source := s.Source
		if source == "" {
			source = "unknown"
		}
		parts = append(parts, fmt.Sprintf("[%d] (source: %s)\n%s", i+1, source, strings.TrimSpace(s.Content)))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
