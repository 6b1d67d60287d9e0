package audit

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/logger"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/usecase/eventbus"
)

func readTrail(t *testing.T, path string) []domain.AuditEvent {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	events, err := ReadAll(f)
	require.NoError(t, err)
	return events
}

func TestFileAuditLoggerWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewFileAuditLogger(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	require.NoError(t, l.Log(context.Background(), domain.AuditEvent{
		Type:     domain.AuditLifecycle,
		Resource: "news_agent",
		Action:   string(domain.EventAgentCreated),
		Outcome:  OutcomeSuccess,
		Detail:   map[string]string{"id": "AGT1", "kind": "agent"},
	}))
	require.NoError(t, l.Close())

	events := readTrail(t, path)
	require.Len(t, events, 1)
	assert.Equal(t, "news_agent", events[0].Resource)
	assert.Equal(t, "AGT1", events[0].Detail["id"])
	assert.False(t, events[0].Timestamp.IsZero())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileAuditLoggerConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewFileAuditLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Log(context.Background(), domain.AuditEvent{Type: domain.AuditInvocation, Resource: "portfolio_assistant"})
		}()
	}
	wg.Wait()
	require.NoError(t, l.Close())
	assert.Len(t, readTrail(t, path), 50)
}

func TestFileAuditLoggerSpanEvent(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	l, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	defer l.Close()

	ctx, span := tp.Tracer("test").Start(context.Background(), "lifecycle.teardown")
	require.NoError(t, l.Log(ctx, domain.AuditEvent{Type: domain.AuditLifecycle, Resource: "news_agent", Action: "agent.deleted"}))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "audit.lifecycle", ended[0].Events()[0].Name)
}

func TestNewFileAuditLoggerBadPath(t *testing.T) {
	_, err := NewFileAuditLogger("/nonexistent/dir/audit.jsonl")
	assert.ErrorIs(t, err, domain.ErrAuditWrite)
}

func TestFromEventLifecycle(t *testing.T) {
	rec := FromEvent(domain.NewResourceEvent(domain.EventAliasCreated, domain.ResourcePayload{
		Kind: domain.KindAlias, Name: "news-alias", ID: "ALS1", ParentID: "AGT1", Step: "create_alias",
	}))
	assert.Equal(t, domain.AuditLifecycle, rec.Type)
	assert.Equal(t, "news-alias", rec.Resource)
	assert.Equal(t, "alias.created", rec.Action)
	assert.Equal(t, OutcomeSuccess, rec.Outcome)
	assert.Equal(t, map[string]string{"kind": "alias", "id": "ALS1", "parent_id": "AGT1", "step": "create_alias"}, rec.Detail)
}

func TestFromEventFailures(t *testing.T) {
	rec := FromEvent(domain.NewResourceEvent(domain.EventProvisionFailed, domain.ResourcePayload{
		Kind: domain.KindAgent, Name: "portfolio_assistant", Step: "prepare", Error: "timeout",
	}))
	assert.Equal(t, OutcomeFailure, rec.Outcome)
	assert.Equal(t, "timeout", rec.Detail["error"])

	inv := FromEvent(domain.NewInvocationEvent(domain.EventInvocationFailed, "01SESSION", domain.InvocationPayload{
		Agent: "portfolio_assistant", AliasID: domain.TestAliasID, Error: "throttled",
	}))
	assert.Equal(t, domain.AuditInvocation, inv.Type)
	assert.Equal(t, OutcomeFailure, inv.Outcome)
	assert.Equal(t, "01SESSION", inv.Detail["session_id"])
	assert.Equal(t, domain.TestAliasID, inv.Detail["alias_id"])
}

func TestSubscribeWritesBusEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewFileAuditLogger(path)
	require.NoError(t, err)

	bus := eventbus.New(logger.Discard())
	Subscribe(bus, l, logger.Discard())

	ctx := context.Background()
	bus.Publish(ctx, domain.NewResourceEvent(domain.EventAgentCreated, domain.ResourcePayload{Kind: domain.KindAgent, Name: "news_agent", ID: "AGT1"}))
	bus.Publish(ctx, domain.NewResourceEvent(domain.EventAliasCreated, domain.ResourcePayload{Kind: domain.KindAlias, Name: "news-alias", ID: "ALS1", ParentID: "AGT1"}))
	bus.Publish(ctx, domain.NewInvocationEvent(domain.EventInvocationCompleted, "S1", domain.InvocationPayload{Agent: "news_agent", Chars: 42}))
	bus.Close()
	require.NoError(t, l.Close())

	events := readTrail(t, path)
	require.Len(t, events, 3)
	assert.Equal(t, "agent.created", events[0].Action)
	assert.Equal(t, "alias.created", events[1].Action)
	assert.Equal(t, "42", events[2].Detail["chars"])
}

func TestOutstanding(t *testing.T) {
	ev := func(typ domain.EventType, kind domain.ResourceKind, name, id, parent string) domain.AuditEvent {
		return FromEvent(domain.NewResourceEvent(typ, domain.ResourcePayload{Kind: kind, Name: name, ID: id, ParentID: parent}))
	}
	trail := []domain.AuditEvent{
		ev(domain.EventAgentCreated, domain.KindAgent, "news_agent", "A1", ""),
		ev(domain.EventAliasCreated, domain.KindAlias, "news-alias", "L1", "A1"),
		ev(domain.EventAgentCreated, domain.KindAgent, "stock_data_agent", "A2", ""),
		ev(domain.EventAliasCreated, domain.KindAlias, "stock-data-alias", "L2", "A2"),
		ev(domain.EventAgentCreated, domain.KindAgent, "portfolio_assistant", "A3", ""),
		ev(domain.EventCollaboratorAssociated, domain.KindCollaborator, "news_agent", "C1", "A3"),
		ev(domain.EventAliasDeleted, domain.KindAlias, "stock-data-alias", "L2", "A2"),
		ev(domain.EventAgentDeleted, domain.KindAgent, "stock_data_agent", "A2", ""),
		ev(domain.EventAgentDeleted, domain.KindAgent, "portfolio_assistant", "A3", ""),
		FromEvent(domain.NewResourceEvent(domain.EventProvisionFailed, domain.ResourcePayload{Kind: domain.KindAgent, Name: "x", Error: "boom"})),
	}

	left := Outstanding(trail)
	require.Len(t, left, 2)
	assert.Equal(t, "news_agent", left[0].Resource)
	assert.Equal(t, "news-alias", left[1].Resource)
}
