// Package anthropic implements backend.Agent on the Anthropic Messages API.
// Responses are produced blocking and surfaced as a single content step;
// incremental streaming is left to the OpenAI-compatible backend.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aditya-dange-m0/prod-fc/backend"
)

// Options configure the Anthropic backend agent.
type Options struct {
	AgentName    string
	Model        string
	Instructions string
	Temperature  float64
	MaxTokens    int64
	APIKey       string
}

// Agent wraps one Messages API client behind backend.Agent.
type Agent struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic backend agent.
func New(optFns ...func(o *Options)) *Agent {
	opts := Options{
		AgentName:   "agent",
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Agent{client: &client, opts: opts}
}

// NewFromClient creates an agent from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Agent {
	opts := Options{
		AgentName:   "agent",
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{client: client, opts: opts}
}

// Name implements backend.Agent.
func (a *Agent) Name() string { return a.opts.AgentName }

// Close implements io.Closer.
func (a *Agent) Close() error { return nil }

// Run implements backend.Agent.
func (a *Agent) Run(ctx context.Context, p backend.Prompt) (<-chan backend.Step, <-chan error) {
	out := make(chan backend.Step, 8)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(a.opts.Model),
			MaxTokens:   a.opts.MaxTokens,
			Temperature: anthropic.Float(a.opts.Temperature),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(p.Message)),
			},
		}
		if a.opts.Instructions != "" {
			params.System = []anthropic.TextBlockParam{{Text: a.opts.Instructions}}
		}

		resp, err := a.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				tb := block.AsText()
				if tb.Text == "" {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- backend.Step{Kind: backend.StepContent, Content: tb.Text}:
				}
			case "tool_use":
				ub := block.AsToolUse()
				input := map[string]any{}
				if ub.Input != nil {
					if raw, err := json.Marshal(ub.Input); err == nil {
						_ = json.Unmarshal(raw, &input)
					}
				}
				select {
				case <-ctx.Done():
					return
				case out <- backend.Step{Kind: backend.StepToolStart, ToolName: ub.Name, ToolInput: input}:
				}
			}
		}
	}()

	return out, errCh
}
