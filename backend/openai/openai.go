// Package openai implements backend.Agent on the OpenAI Chat Completions
// API, including any OpenAI-compatible gateway (OpenRouter) via a custom
// base URL. Streaming deltas are forwarded as content steps; tool-call
// deltas are aggregated until the finish reason arrives.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aditya-dange-m0/prod-fc/backend"
)

// RouteToolName is the reserved tool name an orchestrator model uses to
// announce a routing decision. Its arguments carry {"targets": [...]}.
const RouteToolName = "route_to_agents"

// aggCall aggregates partial tool call streaming deltas (id, name,
// arguments) so complete calls can be surfaced once the finish reason is
// emitted.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI backend agent. BaseURL selects an
// OpenAI-compatible endpoint (e.g. OpenRouter); empty uses the default.
type Options struct {
	AgentName           string
	Model               string
	Instructions        string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Agent wraps one Chat Completions client behind backend.Agent.
type Agent struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI backend agent.
func New(optFns ...func(o *Options)) *Agent {
	opts := Options{
		AgentName:           "agent",
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)

	return &Agent{client: &client, opts: opts}
}

// NewFromClient creates an agent from an existing client, e.g. for tests
// with a stubbed transport.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Agent {
	opts := Options{
		AgentName:           "agent",
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{client: client, opts: opts}
}

// Name implements backend.Agent.
func (a *Agent) Name() string { return a.opts.AgentName }

// Close implements io.Closer. The underlying HTTP client holds no
// per-session resources.
func (a *Agent) Close() error { return nil }

// Run implements backend.Agent.
func (a *Agent) Run(ctx context.Context, p backend.Prompt) (<-chan backend.Step, <-chan error) {
	out := make(chan backend.Step, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := a.buildParams(p)
		if p.Stream {
			a.runStreaming(ctx, params, out, errCh)
			return
		}
		a.runBlocking(ctx, params, out, errCh)
	}()

	return out, errCh
}

func (a *Agent) buildParams(p backend.Prompt) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if a.opts.Instructions != "" {
		messages = append(messages, openai.SystemMessage(a.opts.Instructions))
	}
	messages = append(messages, openai.UserMessage(p.Message))

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               a.opts.Model,
		Temperature:         openai.Float(a.opts.Temperature),
		MaxCompletionTokens: openai.Int(a.opts.MaxCompletionTokens),
	}
}

func (a *Agent) runStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- backend.Step,
	errCh chan<- error,
) {
	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	toolAgg := map[int64]*aggCall{}

	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				if !emit(ctx, out, backend.Step{Kind: backend.StepContent, Content: ch.Delta.Content}) {
					return
				}
			}
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				ac.args += tc.Function.Arguments
			}
			if ch.FinishReason != "" {
				for _, ac := range toolAgg {
					if !emit(ctx, out, stepForCall(ac.name, ac.args)) {
						return
					}
				}
				toolAgg = map[int64]*aggCall{}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

func (a *Agent) runBlocking(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- backend.Step,
	errCh chan<- error,
) {
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	for _, ch := range resp.Choices {
		if ch.Message.Content != "" {
			if !emit(ctx, out, backend.Step{Kind: backend.StepContent, Content: ch.Message.Content}) {
				return
			}
		}
		for _, tc := range ch.Message.ToolCalls {
			if !emit(ctx, out, stepForCall(tc.Function.Name, tc.Function.Arguments)) {
				return
			}
		}
	}
}

// stepForCall maps a completed tool call onto a Step: the reserved routing
// tool becomes a route step, everything else a tool_start with parsed input.
func stepForCall(name, args string) backend.Step {
	if name == RouteToolName {
		var decision struct {
			Targets []string `json:"targets"`
		}
		// Malformed routing arguments fall through to an empty target
		// list; the multiplexer then applies its default roster.
		_ = json.Unmarshal([]byte(strings.TrimSpace(args)), &decision)
		return backend.Step{Kind: backend.StepRoute, Targets: decision.Targets}
	}

	input := map[string]any{}
	_ = json.Unmarshal([]byte(args), &input)
	return backend.Step{Kind: backend.StepToolStart, ToolName: name, ToolInput: input}
}

func emit(ctx context.Context, out chan<- backend.Step, s backend.Step) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- s:
		return true
	}
}
