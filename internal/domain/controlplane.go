package domain

import "context"

// CreateAgentInput describes a new remote agent.
type CreateAgentInput struct {
	Name          string
	Description   string
	Instruction   string
	Models        []string
	Collaboration CollaborationMode
}

// AgentSummary is one entry of an agent listing.
type AgentSummary struct {
	ID     string
	Name   string
	Status Status
}

// ControlPlane is the remote agent-hosting service. Mutating calls return as
// soon as the request is accepted; the resulting state is observed by polling
// GetAgent or GetAlias. Missing resources are reported with errors wrapping ErrNotFound.
type ControlPlane interface {
	CreateAgent(ctx context.Context, in CreateAgentInput) (*Agent, error)
	GetAgent(ctx context.Context, agentID string) (*Agent, error)
	UpdateAgentCollaboration(ctx context.Context, agentID string, mode CollaborationMode) error
	PrepareAgent(ctx context.Context, agentID string) error
	DeleteAgent(ctx context.Context, agentID string) error
	ListAgents(ctx context.Context) ([]AgentSummary, error)

	CreateAlias(ctx context.Context, agentID, aliasName string) (*Alias, error)
	GetAlias(ctx context.Context, agentID, aliasID string) (*Alias, error)
	ListAliases(ctx context.Context, agentID string) ([]Alias, error)
	DeleteAlias(ctx context.Context, agentID, aliasID string) error

	AssociateCollaborator(ctx context.Context, agentID string, link CollaborationLink) (*CollaborationLink, error)
	ListCollaborators(ctx context.Context, agentID string) ([]CollaborationLink, error)
	DisassociateCollaborator(ctx context.Context, agentID, collaboratorID string) error

	ListGuardrails(ctx context.Context) ([]Guardrail, error)
	DeleteGuardrail(ctx context.Context, guardrailID string) error
}

// Trace event types.
const (
	TraceRationale          = "rationale"
	TraceCollaboratorCall   = "collaborator_call"
	TraceCollaboratorResult = "collaborator_result"
	TraceFinalResponse      = "final_response"
	TraceModelInvocation    = "model_invocation"
	TracePreProcessing      = "pre_processing"
	TracePostProcessing     = "post_processing"
	TraceRouting            = "routing"
	TraceGuardrail          = "guardrail"
	TraceFailure            = "failure"
	TraceOther              = "other"
)

// TraceEvent is one step of an agent's reasoning reported during invocation.
type TraceEvent struct {
	Agent        string // agent or collaborator that emitted the event
	Type         string // one of the Trace* constants
	Collaborator string // set when the supervisor hands off to a collaborator
	Text         string
}

// Handoff reports whether the event marks work moving between supervisor and collaborator.
func (e TraceEvent) Handoff() bool {
	return e.Type == TraceCollaboratorCall || e.Type == TraceCollaboratorResult
}

// InvokeRequest is a single conversational turn.
type InvokeRequest struct {
	AgentID   string
	AliasID   string
	SessionID string
	Text      string
	Trace     bool
	OnTrace   func(TraceEvent)
}

// InvokeResponse carries the concatenated answer.
type InvokeResponse struct {
	Text string
}

// Invoker sends prompts to a prepared agent alias.
type Invoker interface {
	InvokeAgent(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)
}
