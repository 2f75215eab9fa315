package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kazuhei/tansaku/internal/store"
	"github.com/tmc/langchaingo/vectorstores"
)

const (
	defaultTopK = 5
	// rrfK dampens the influence of rank position in reciprocal rank fusion.
	rrfK = 60
)

// HybridSearchTool searches the reference corpus with both embedding
// similarity and keyword matching, merging the two rankings with
// reciprocal rank fusion.
type HybridSearchTool struct {
	Vector  vectorstores.VectorStore
	Keyword *store.KeywordIndex
	TopK    int
}

func NewHybridSearchTool(vector vectorstores.VectorStore, keyword *store.KeywordIndex) *HybridSearchTool {
	return &HybridSearchTool{
		Vector:  vector,
		Keyword: keyword,
		TopK:    defaultTopK,
	}
}

func (h *HybridSearchTool) Name() string {
	return "hybrid_search"
}

func (h *HybridSearchTool) Description() string {
	return "Search the reference corpus with combined semantic and keyword matching. Answers must be grounded in its results."
}

func (h *HybridSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The natural language query to search for",
			},
		},
		"required": []string{"query"},
	}
}

func (h *HybridSearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	vectorHits, err := h.Vector.SimilaritySearch(ctx, args.Query, h.TopK)
	if err != nil {
		return "", fmt.Errorf("similarity search failed: %w", err)
	}
	keywordHits := h.Keyword.Search(args.Query, h.TopK)

	fused := make(map[string]float64)
	for rank, doc := range vectorHits {
		fused[doc.PageContent] += 1.0 / float64(rrfK+rank+1)
	}
	for rank, hit := range keywordHits {
		fused[hit.Text] += 1.0 / float64(rrfK+rank+1)
	}

	if len(fused) == 0 {
		return "No matching documents found in the reference corpus.", nil
	}

	type scoredText struct {
		text  string
		score float64
	}
	merged := make([]scoredText, 0, len(fused))
	for text, score := range fused {
		merged = append(merged, scoredText{text: text, score: score})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].text < merged[j].text
	})
	if h.TopK < len(merged) {
		merged = merged[:h.TopK]
	}

	var b strings.Builder
	for i, m := range merged {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, m.text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
