package core

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates the lifecycle step an Event describes. The string
// values are part of the wire contract and must not change.
type Type string

// Single-agent lifecycle events.
const (
	TypeAgentStarted   Type = "agent_started"
	TypeAgentThinking  Type = "agent_thinking"
	TypeToolStarted    Type = "tool_started"
	TypeToolCompleted  Type = "tool_completed"
	TypeAgentResponse  Type = "agent_response"
	TypeAgentCompleted Type = "agent_completed"
	TypeAgentError     Type = "agent_error"
)

// Team / orchestrator lifecycle events.
const (
	TypeTeamStarted          Type = "team_started"
	TypeOrchestratorThinking Type = "orchestrator_thinking"
	TypeOrchestratorRouting  Type = "orchestrator_routing"
	TypeTeamResponse         Type = "team_response"
	TypeTeamCompleted        Type = "team_completed"
	TypeTeamError            Type = "team_error"
)

// Terminal reports whether the type ends a run. Every initiated stream ends
// with exactly one terminal event unless the subscriber disconnects first.
func (t Type) Terminal() bool {
	switch t {
	case TypeAgentCompleted, TypeAgentError, TypeTeamCompleted, TypeTeamError:
		return true
	default:
		return false
	}
}

// ErrorDetail carries a structured failure attached to a terminal error event.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Event is one lifecycle step of a run, emitted in order by an execution
// adapter or the team multiplexer and delivered verbatim to the subscriber.
// Treat it as immutable after construction; it may be shared across
// goroutines without synchronization.
type Event struct {
	Type       Type           `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id"`
	AgentID    string         `json:"agent_id,omitempty"`
	Content    string         `json:"content,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	ToolOutput map[string]any `json:"tool_output,omitempty"`
	Error      *ErrorDetail   `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// New creates a bare event of the given type bound to a session.
// Prefer the semantic constructors below for common categories.
func New(t Type, sessionID string) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), SessionID: sessionID}
}

// IsTerminal reports whether this event ends its run.
func (e Event) IsTerminal() bool { return e.Type.Terminal() }

// NewAgentStarted marks the beginning of a single agent's work within a run.
func NewAgentStarted(sessionID, agentID, content string, metadata map[string]any) Event {
	e := New(TypeAgentStarted, sessionID)
	e.AgentID = agentID
	e.Content = content
	e.Metadata = metadata
	return e
}

// NewAgentThinking surfaces an intermediate reasoning step.
func NewAgentThinking(sessionID, agentID, content string) Event {
	e := New(TypeAgentThinking, sessionID)
	e.AgentID = agentID
	e.Content = content
	return e
}

// NewAgentResponse carries a chunk of agent output text.
func NewAgentResponse(sessionID, agentID, content string) Event {
	e := New(TypeAgentResponse, sessionID)
	e.AgentID = agentID
	e.Content = content
	return e
}

// NewToolStarted records a tool invocation beginning inside an agent run.
func NewToolStarted(sessionID, agentID, toolName string, input map[string]any) Event {
	e := New(TypeToolStarted, sessionID)
	e.AgentID = agentID
	e.ToolName = toolName
	e.ToolInput = input
	return e
}

// NewToolCompleted records the outcome of a previously started tool call.
func NewToolCompleted(sessionID, agentID, toolName string, output map[string]any) Event {
	e := New(TypeToolCompleted, sessionID)
	e.AgentID = agentID
	e.ToolName = toolName
	e.ToolOutput = output
	return e
}

// NewAgentCompleted is the successful terminal event for a single agent.
func NewAgentCompleted(sessionID, agentID, content string) Event {
	e := New(TypeAgentCompleted, sessionID)
	e.AgentID = agentID
	e.Content = content
	return e
}

// NewAgentError is the failed terminal event for a single agent.
func NewAgentError(sessionID, agentID string, err error) Event {
	e := New(TypeAgentError, sessionID)
	e.AgentID = agentID
	if err != nil {
		e.Content = "Error: " + err.Error()
		e.Error = &ErrorDetail{Code: errorCode(err), Message: err.Error()}
	}
	return e
}

// NewTeamStarted marks the beginning of an orchestrated team run.
func NewTeamStarted(sessionID, content string, members []string) Event {
	e := New(TypeTeamStarted, sessionID)
	e.Content = content
	e.Metadata = map[string]any{"team_members": members}
	return e
}

// NewOrchestratorThinking surfaces the orchestrator's own reasoning.
func NewOrchestratorThinking(sessionID, agentID, content string) Event {
	e := New(TypeOrchestratorThinking, sessionID)
	e.AgentID = agentID
	e.Content = content
	return e
}

// NewOrchestratorRouting records a routing decision toward target sub-agents.
func NewOrchestratorRouting(sessionID, agentID, content string, targets []string) Event {
	e := New(TypeOrchestratorRouting, sessionID)
	e.AgentID = agentID
	e.Content = content
	e.Metadata = map[string]any{"target_agents": targets}
	return e
}

// NewTeamResponse carries the consolidated result of the team's sub-agents.
func NewTeamResponse(sessionID, content string, participants []string) Event {
	e := New(TypeTeamResponse, sessionID)
	e.Content = content
	e.Metadata = map[string]any{"participants": participants}
	return e
}

// NewTeamCompleted is the successful terminal event for a team run.
func NewTeamCompleted(sessionID string, totalAgents int) Event {
	e := New(TypeTeamCompleted, sessionID)
	e.Content = "Team execution completed"
	e.Metadata = map[string]any{"total_agents": totalAgents}
	return e
}

// NewTeamError is the failed terminal event for a team run.
func NewTeamError(sessionID string, err error) Event {
	e := New(TypeTeamError, sessionID)
	if err != nil {
		e.Content = "Team Error: " + err.Error()
		e.Error = &ErrorDetail{Code: errorCode(err), Message: err.Error()}
	}
	return e
}

// NewID generates a unique identifier for runs and correlation.
func NewID() string { return uuid.NewString() }
