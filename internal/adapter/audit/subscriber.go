package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Subscribe records every bus event in sink. Returns an unsubscribe function.
func Subscribe(bus domain.EventBus, sink domain.AuditLogger, logger *slog.Logger) func() {
	return bus.SubscribeAll(func(ctx context.Context, event domain.Event) {
		if err := sink.Log(ctx, FromEvent(event)); err != nil {
			logger.Warn("audit write failed", "event", string(event.Type), "error", err)
		}
	})
}

// FromEvent converts a bus event into an audit record.
func FromEvent(event domain.Event) domain.AuditEvent {
	rec := domain.AuditEvent{
		Timestamp: event.Timestamp,
		Action:    string(event.Type),
		Outcome:   OutcomeSuccess,
		Detail:    map[string]string{},
	}

	switch event.Type {
	case domain.EventInvocationCompleted, domain.EventInvocationFailed:
		rec.Type = domain.AuditInvocation
		var p domain.InvocationPayload
		_ = json.Unmarshal(event.Payload, &p)
		rec.Resource = p.Agent
		rec.Detail["session_id"] = event.SessionID
		setIf(rec.Detail, "agent_id", p.AgentID)
		setIf(rec.Detail, "alias_id", p.AliasID)
		if p.Chars > 0 {
			rec.Detail["chars"] = strconv.Itoa(p.Chars)
		}
		if p.Error != "" || event.Type == domain.EventInvocationFailed {
			rec.Outcome = OutcomeFailure
			setIf(rec.Detail, "error", p.Error)
		}
	default:
		rec.Type = domain.AuditLifecycle
		var p domain.ResourcePayload
		_ = json.Unmarshal(event.Payload, &p)
		rec.Resource = p.Name
		setIf(rec.Detail, "kind", string(p.Kind))
		setIf(rec.Detail, "id", p.ID)
		setIf(rec.Detail, "parent_id", p.ParentID)
		setIf(rec.Detail, "step", p.Step)
		if p.Error != "" || event.Type == domain.EventProvisionFailed {
			rec.Outcome = OutcomeFailure
			setIf(rec.Detail, "error", p.Error)
		}
	}
	if len(rec.Detail) == 0 {
		rec.Detail = nil
	}
	return rec
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}
