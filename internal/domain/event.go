package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentCreated              EventType = "agent.created"
	EventAgentPrepared             EventType = "agent.prepared"
	EventAgentUpdated              EventType = "agent.updated"
	EventAgentDeleted              EventType = "agent.deleted"
	EventAliasCreated              EventType = "alias.created"
	EventAliasDeleted              EventType = "alias.deleted"
	EventCollaboratorAssociated    EventType = "collaborator.associated"
	EventCollaboratorDisassociated EventType = "collaborator.disassociated"
	EventGuardrailDeleted          EventType = "guardrail.deleted"
	EventProvisionCompleted        EventType = "provision.completed"
	EventProvisionFailed           EventType = "provision.failed"
	EventTeardownCompleted         EventType = "teardown.completed"
	EventInvocationCompleted       EventType = "invocation.completed"
	EventInvocationFailed          EventType = "invocation.failed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ResourcePayload is the payload of lifecycle events.
type ResourcePayload struct {
	Kind     ResourceKind `json:"kind"`
	Name     string       `json:"name,omitempty"`
	ID       string       `json:"id,omitempty"`
	ParentID string       `json:"parent_id,omitempty"`
	Step     string       `json:"step,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// NewResourceEvent builds a lifecycle event carrying a ResourcePayload.
func NewResourceEvent(t EventType, p ResourcePayload) Event {
	data, _ := json.Marshal(p)
	return Event{Type: t, Timestamp: time.Now().UTC(), Payload: data}
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus publishes events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
	Close()
}

// InvocationPayload is the payload of invocation events.
type InvocationPayload struct {
	Agent   string `json:"agent"`
	AgentID string `json:"agent_id,omitempty"`
	AliasID string `json:"alias_id,omitempty"`
	Chars   int    `json:"chars,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewInvocationEvent builds an invocation event for the given session.
func NewInvocationEvent(t EventType, sessionID string, p InvocationPayload) Event {
	data, _ := json.Marshal(p)
	return Event{Type: t, Timestamp: time.Now().UTC(), SessionID: sessionID, Payload: data}
}
