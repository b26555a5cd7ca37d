package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Oracle answers a structured prompt with structured JSON.
// Implementations must be safe for concurrent use. Callers own deadlines:
// a call may take arbitrary network-bound latency.
type Oracle interface {
	Ask(ctx context.Context, systemFraming, prompt string) (json.RawMessage, error)
}

// maxResponseTokens bounds a single decision response.
const maxResponseTokens = 1024

// Ask sends one message to the Anthropic API and returns the raw text of the
// reply as JSON, with any surrounding markdown fence stripped. It does not
// validate that the reply parses; the decision engine handles malformed JSON.
func (c *Client) Ask(ctx context.Context, systemFraming, prompt string) (json.RawMessage, error) {
	resp, err := c.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxResponseTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemFraming},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("oracle call: %w", err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("oracle call: empty response")
	}

	return json.RawMessage(stripFences(text)), nil
}

// Compile-time verification that Client implements Oracle.
var _ Oracle = (*Client)(nil)
