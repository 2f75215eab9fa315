package agent

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// formatHistory renders the user/assistant turns of the conversation as
// plain text for prompt embedding. System and tool messages are skipped.
// maxTurns > 0 keeps only the most recent turns; 0 keeps everything.
func formatHistory(history []llms.MessageContent, maxTurns int) string {
	filtered := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		if m.Role == llms.ChatMessageTypeHuman || m.Role == llms.ChatMessageTypeAI {
			filtered = append(filtered, m)
		}
	}

	if maxTurns > 0 && len(filtered) > maxTurns {
		filtered = filtered[len(filtered)-maxTurns:]
	}

	var lines []string
	for _, m := range filtered {
		content := strings.TrimSpace(messageText(m))
		if content == "" {
			continue
		}
		label := "User"
		if m.Role == llms.ChatMessageTypeAI {
			label = "Assistant"
		}
		lines = append(lines, label+": "+content)
	}
	return strings.Join(lines, "\n")
}

// messageText concatenates the text parts of a message.
func messageText(m llms.MessageContent) string {
	var b strings.Builder
	for _, part := range m.Parts {
		if text, ok := part.(llms.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

func systemMessage(content string) llms.MessageContent {
	return llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(content)},
	}
}

func humanMessage(content string) llms.MessageContent {
	return llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(content)},
	}
}

func assistantMessage(content string) llms.MessageContent {
	return llms.MessageContent{
		Role:  llms.ChatMessageTypeAI,
		Parts: []llms.ContentPart{llms.TextPart(content)},
	}
}
