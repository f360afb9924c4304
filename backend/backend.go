// Package backend defines the contract for the external model/tool execution
// collaborator. A backend agent is an opaque async producer of Steps; the
// execution adapter translates Steps into canonical core Events. Provider
// implementations live in the subpackages (openai, anthropic); MockAgent
// supports tests and local development without network access.
package backend

import (
	"context"
	"io"
)

// StepKind categorizes a backend-native notification.
type StepKind string

const (
	// StepThinking is an intermediate reasoning notification.
	StepThinking StepKind = "thinking"
	// StepContent is a chunk of response text.
	StepContent StepKind = "content"
	// StepToolStart marks a tool invocation beginning.
	StepToolStart StepKind = "tool_start"
	// StepToolEnd marks a tool invocation completing.
	StepToolEnd StepKind = "tool_end"
	// StepRoute is an orchestrator routing decision naming target sub-agents.
	StepRoute StepKind = "route"
)

// Step is one backend-native notification. Fields are populated per kind;
// unset fields are zero values.
type Step struct {
	Kind       StepKind
	Content    string
	ToolName   string
	ToolInput  map[string]any
	ToolOutput map[string]any
	Targets    []string
}

// Prompt is the normalized input for one backend run.
type Prompt struct {
	Message string
	// Stream requests incremental notifications where the provider
	// supports them; providers without streaming emit a single content
	// Step for the full response.
	Stream bool
}

// Agent is a single backend instance bound to one session. Run starts one
// invocation and returns a finite step stream plus a terminal error channel
// (buffered size 1, closed after the run); both channels are closed when the
// invocation ends. Implementations must observe ctx cancellation on a
// best-effort basis. Close releases provider resources; the session
// registry calls it exactly once on eviction.
type Agent interface {
	Name() string
	Run(ctx context.Context, p Prompt) (<-chan Step, <-chan error)
	io.Closer
}

// Factory constructs a backend Agent for a (user, project) identity. It is
// the expensive operation the session registry exists to amortize.
type Factory func(ctx context.Context, userID, projectID string) (Agent, error)
