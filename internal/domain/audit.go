package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditLifecycle  AuditEventType = "lifecycle"
	AuditInvocation AuditEventType = "invocation"
)

// AuditEvent represents a single auditable action against the control plane.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Detail    map[string]string `json:"detail,omitempty"`

	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// AuditLogger records audit events.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
