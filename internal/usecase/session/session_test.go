package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/adapter/fake"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/logger"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/usecase/eventbus"
)

var haiku = []string{"anthropic.claude-3-haiku-20240307-v1:0"}

// preparedAgent creates a prepared agent with one alias on cp.
func preparedAgent(t *testing.T, cp *fake.ControlPlane, name string) (Target, Target) {
	t.Helper()
	ctx := context.Background()
	a, err := cp.CreateAgent(ctx, domain.CreateAgentInput{Name: name, Models: haiku})
	require.NoError(t, err)
	require.NoError(t, cp.PrepareAgent(ctx, a.ID))
	al, err := cp.CreateAlias(ctx, a.ID, name+"-alias")
	require.NoError(t, err)
	return Target{Name: name, AgentID: a.ID, AliasID: domain.TestAliasID},
		Target{Name: name, AgentID: a.ID, AliasID: al.ID}
}

type invocationLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *invocationLog) handle(_ context.Context, e domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *invocationLog) types() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func newTestSession(t *testing.T, cp *fake.ControlPlane, cfg config.BreakerConfig, level TraceLevel) (*Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := NewRenderer(&out, RenderPlain, level)
	require.NoError(t, err)
	return New(cp, cp, cfg, r, nil, logger.Discard()), &out
}

func TestInvokeTestAlias(t *testing.T) {
	cp := fake.New()
	target, _ := preparedAgent(t, cp, "news_agent")

	bus := eventbus.New(logger.Discard())
	log := &invocationLog{}
	bus.SubscribeAll(log.handle)
	r, err := NewRenderer(&bytes.Buffer{}, RenderPlain, TraceCore)
	require.NoError(t, err)
	s := New(cp, cp, config.BreakerConfig{}, r, bus, logger.Discard())

	answer, err := s.Invoke(context.Background(), target, "hello")
	require.NoError(t, err)
	assert.Equal(t, "news_agent received: hello", answer)

	inv := cp.Invocations()
	require.Len(t, inv, 1)
	assert.Equal(t, s.ID(), inv[0].SessionID)
	assert.Len(t, s.ID(), 26)
	assert.False(t, inv[0].Trace, "core level requests no trace")

	bus.Close()
	assert.Equal(t, []domain.EventType{domain.EventInvocationCompleted}, log.types())
	assert.Equal(t, s.ID(), log.events[0].SessionID)
}

func TestInvokeAlias(t *testing.T) {
	cp := fake.New()
	_, target := preparedAgent(t, cp, "news_agent")
	s, _ := newTestSession(t, cp, config.BreakerConfig{}, TraceCore)

	answer, err := s.Invoke(context.Background(), target, "hi")
	require.NoError(t, err)
	assert.Equal(t, "news_agent received: hi", answer)
	assert.Equal(t, target.AliasID, cp.Invocations()[0].AliasID)
}

func TestInvokeRejectsUnpreparedAgent(t *testing.T) {
	cp := fake.New()
	a, err := cp.CreateAgent(context.Background(), domain.CreateAgentInput{Name: "news_agent", Models: haiku})
	require.NoError(t, err)
	s, _ := newTestSession(t, cp, config.BreakerConfig{}, TraceCore)

	_, err = s.Invoke(context.Background(), Target{Name: "news_agent", AgentID: a.ID, AliasID: domain.TestAliasID}, "hello")
	require.ErrorIs(t, err, domain.ErrInvocation)
	assert.Empty(t, cp.Invocations())
}

func TestInvokeFailureWrapsInvocation(t *testing.T) {
	cp := fake.New()
	target, _ := preparedAgent(t, cp, "news_agent")
	boom := errors.New("stream reset")
	cp.Fail("InvokeAgent", boom)

	bus := eventbus.New(logger.Discard())
	log := &invocationLog{}
	bus.SubscribeAll(log.handle)
	s := New(cp, cp, config.BreakerConfig{}, nil, bus, logger.Discard())

	_, err := s.Invoke(context.Background(), target, "hello")
	require.ErrorIs(t, err, domain.ErrInvocation)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.CodeInvocation, domain.ErrorCodeOf(err))

	bus.Close()
	assert.Equal(t, []domain.EventType{domain.EventInvocationFailed}, log.types())
}

func TestInvokeDoesNotRetry(t *testing.T) {
	cp := fake.New()
	target, _ := preparedAgent(t, cp, "news_agent")
	cp.Fail("InvokeAgent", errors.New("boom"))
	s, _ := newTestSession(t, cp, config.BreakerConfig{MaxFailures: 10}, TraceCore)

	_, err := s.Invoke(context.Background(), target, "hello")
	require.Error(t, err)
	assert.Equal(t, 1, cp.Calls("InvokeAgent"))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cp := fake.New()
	target, _ := preparedAgent(t, cp, "news_agent")
	cp.Fail("InvokeAgent", errors.New("boom"))
	s, out := newTestSession(t, cp, config.BreakerConfig{MaxFailures: 2, Timeout: time.Hour}, TraceCore)

	for i := 0; i < 2; i++ {
		_, err := s.Invoke(context.Background(), target, "hello")
		require.Error(t, err)
		assert.False(t, IsCircuitOpen(err))
		s.renderer.Error(target.Name, err)
	}
	assert.NotContains(t, out.String(), "requests are paused")

	cp.Fail("InvokeAgent", nil)
	_, err := s.Invoke(context.Background(), target, "hello")
	require.ErrorIs(t, err, domain.ErrInvocation)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, 2, cp.Calls("InvokeAgent"), "open circuit fails fast")

	s.renderer.Error(target.Name, err)
	assert.Contains(t, out.String(), "requests are paused after repeated failures")
}

func TestInvokeTraceLevels(t *testing.T) {
	traces := []domain.TraceEvent{
		{Agent: "portfolio_assistant", Type: domain.TraceRationale, Text: "need news first"},
		{Agent: "portfolio_assistant", Type: domain.TraceCollaboratorCall, Collaborator: "news_agent"},
		{Agent: "portfolio_assistant", Type: domain.TraceModelInvocation},
		{Agent: "portfolio_assistant", Type: domain.TraceCollaboratorResult, Collaborator: "news_agent"},
	}
	tests := []struct {
		level     TraceLevel
		wantTrace bool
		contains  []string
		excludes  []string
	}{
		{TraceCore, false, nil, []string{"trace:"}},
		{TraceOutline, true,
			[]string{"need news first", "portfolio_assistant -> news_agent", "portfolio_assistant <- news_agent"},
			[]string{"model_invocation"}},
		{TraceAll, true, []string{"need news first", "[model_invocation]"}, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			cp := fake.New(fake.WithTraces(traces...))
			target, _ := preparedAgent(t, cp, "portfolio_assistant")
			s, out := newTestSession(t, cp, config.BreakerConfig{}, tt.level)

			_, err := s.Invoke(context.Background(), target, "analyze AMZN")
			require.NoError(t, err)
			assert.Equal(t, tt.wantTrace, cp.Invocations()[0].Trace)
			for _, c := range tt.contains {
				assert.Contains(t, out.String(), c)
			}
			for _, e := range tt.excludes {
				assert.NotContains(t, out.String(), e)
			}
		})
	}
}

func TestParseTraceLevel(t *testing.T) {
	for in, want := range map[string]TraceLevel{"core": TraceCore, "OUTLINE": TraceOutline, " all ": TraceAll, "": TraceCore} {
		got, err := ParseTraceLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseTraceLevel("verbose")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRendererMarkdown(t *testing.T) {
	var out bytes.Buffer
	r, err := NewRenderer(&out, RenderMarkdown, TraceCore)
	require.NoError(t, err)
	r.Answer("analyst_agent", "Buy **more** widgets.")
	assert.Contains(t, out.String(), "analyst_agent:")
	assert.Contains(t, out.String(), "widgets")
}
