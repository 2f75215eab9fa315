package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// WebSearchTool covers queries the reference corpus cannot answer, such
// as current events.
type WebSearchTool struct {
	client *duckduckgo.Tool
}

func NewWebSearchTool() (*WebSearchTool, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &WebSearchTool{client: ddg}, nil
}

func (s *WebSearchTool) Name() string {
	return "web_search"
}

func (s *WebSearchTool) Description() string {
	return "Search the web using DuckDuckGo for information outside the reference corpus."
}

func (s *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

func (s *WebSearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	res, err := s.client.Call(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}
