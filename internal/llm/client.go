// Package llm wraps the completion service behind the two request shapes
// the agent needs: a free-form create that may return tool calls, and a
// schema-constrained decode that returns a value matching a Go struct.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyCompletion is returned when the provider answers with no choices
// or no content where content was required.
var ErrEmptyCompletion = errors.New("completion service returned an empty response")

// Phase identifies one completion phase and its generation parameters.
// The zero temperature/seed defaults are deliberate: every phase runs
// deterministically unless configured otherwise.
type Phase struct {
	Name        string
	Model       string
	Temperature float64
	Seed        int
}

// Client is a thin capability over a chat model. It is safe for
// concurrent use by parallel subtask workflows.
type Client struct {
	model llms.Model
}

func NewClient(model llms.Model) *Client {
	return &Client{model: model}
}

func (c *Client) options(phase Phase, tools []llms.Tool) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(phase.Temperature),
		llms.WithSeed(phase.Seed),
	}
	if phase.Model != "" {
		opts = append(opts, llms.WithModel(phase.Model))
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	return opts
}

// Create sends a free-form completion request. When tools is non-empty the
// model may answer with tool calls instead of text; the caller inspects
// the returned choice for both.
func (c *Client) Create(ctx context.Context, phase Phase, messages []llms.MessageContent, tools []llms.Tool) (*llms.ContentChoice, error) {
	resp, err := c.model.GenerateContent(ctx, messages, c.options(phase, tools)...)
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", phase.Name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s completion: %w", phase.Name, ErrEmptyCompletion)
	}
	return resp.Choices[0], nil
}

// Decode sends a schema-constrained completion request and unmarshals the
// JSON content into out. A null, empty or unparsable result is an error;
// there is no local retry.
func (c *Client) Decode(ctx context.Context, phase Phase, messages []llms.MessageContent, out any) error {
	opts := append(c.options(phase, nil), llms.WithJSONMode())
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return fmt.Errorf("%s completion failed: %w", phase.Name, err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%s completion: %w", phase.Name, ErrEmptyCompletion)
	}

	content := stripFences(resp.Choices[0].Content)
	if content == "" || content == "null" {
		return fmt.Errorf("%s completion: %w", phase.Name, ErrEmptyCompletion)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%s completion: result does not match schema: %w", phase.Name, err)
	}
	return nil
}

// stripFences removes a markdown code fence around a JSON payload. Models
// in JSON mode still occasionally wrap their output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
