// Package audit records lifecycle and invocation events as a JSONL trail.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
)

// FileAuditLogger implements domain.AuditLogger by writing JSONL to a file.
type FileAuditLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewFileAuditLogger creates an audit logger that appends to the given path.
// The file is created with 0600 permissions if it does not exist.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, domain.NewDomainError("audit.NewFileAuditLogger", domain.ErrAuditWrite, err.Error())
	}
	return &FileAuditLogger{file: f, path: path}, nil
}

// Path returns the file the trail is written to.
func (a *FileAuditLogger) Path() string { return a.path }

// Log writes an audit event as a single JSON line.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, len(event.Detail)+2)
		attrs = append(attrs, tracer.StringAttr("audit.resource", event.Resource), tracer.StringAttr("audit.action", event.Action))
		for k, v := range event.Detail {
			attrs = append(attrs, tracer.StringAttr("audit."+k, v))
		}
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(attrs...))
	}
	return nil
}

// Close flushes and closes the audit log file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// ReadAll decodes every entry of a JSONL trail.
func ReadAll(r io.Reader) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e domain.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return events, nil
}

// Outstanding returns the resources created in the trail that were never
// deleted, in creation order. This is what a failed provision left behind.
func Outstanding(events []domain.AuditEvent) []domain.AuditEvent {
	type key struct{ kind, id string }
	var order []key
	live := make(map[key]domain.AuditEvent)
	for _, e := range events {
		if e.Type != domain.AuditLifecycle || e.Outcome != OutcomeSuccess {
			continue
		}
		k := key{kind: e.Detail["kind"], id: e.Detail["id"]}
		switch e.Action {
		case string(domain.EventAgentCreated), string(domain.EventAliasCreated), string(domain.EventCollaboratorAssociated):
			if _, ok := live[k]; !ok {
				order = append(order, k)
			}
			live[k] = e
		case string(domain.EventAliasDeleted), string(domain.EventCollaboratorDisassociated):
			delete(live, k)
		case string(domain.EventAgentDeleted):
			delete(live, k)
			// An agent takes its remaining aliases and links with it.
			for ck, ce := range live {
				if ce.Detail["parent_id"] == k.id {
					delete(live, ck)
				}
			}
		}
	}
	out := make([]domain.AuditEvent, 0, len(live))
	for _, k := range order {
		if e, ok := live[k]; ok {
			out = append(out, e)
			delete(live, k)
		}
	}
	return out
}
