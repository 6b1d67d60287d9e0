// Package session sends prompts to provisioned agents and runs the
// interactive prompt loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/logger"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
)

const (
	defaultMaxFailures uint32 = 3
	defaultTimeout            = 30 * time.Second
)

// Target identifies an invocable agent alias.
type Target struct {
	Name    string
	AgentID string
	AliasID string
}

// StatusReader reads agent and alias state for the readiness check.
type StatusReader interface {
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	GetAlias(ctx context.Context, agentID, aliasID string) (*domain.Alias, error)
}

// Session is one conversation with a hierarchy. All invocations share the
// session ID so the remote keeps conversational context.
type Session struct {
	id       string
	status   StatusReader
	invoker  domain.Invoker
	breaker  *gobreaker.CircuitBreaker[string]
	renderer *Renderer
	bus      domain.EventBus
	logger   *slog.Logger
}

// New creates a Session. bus may be nil.
func New(status StatusReader, invoker domain.Invoker, cfg config.BreakerConfig, renderer *Renderer, bus domain.EventBus, logger *slog.Logger) *Session {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "invocation",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &Session{
		id:       generateULID(time.Now()),
		status:   status,
		invoker:  invoker,
		breaker:  cb,
		renderer: renderer,
		bus:      bus,
		logger:   logger,
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ID returns the session identifier sent with every invocation.
func (s *Session) ID() string { return s.id }

// Invoke sends prompt to the target and returns the concatenated answer.
// Failures are not retried and wrap domain.ErrInvocation.
func (s *Session) Invoke(ctx context.Context, t Target, prompt string) (string, error) {
	var answer string
	err := tracer.Do(ctx, "session.invoke", func(ctx context.Context) error {
		text, err := s.breaker.Execute(func() (string, error) {
			return s.invoke(ctx, t, prompt)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = fmt.Errorf("circuit open after repeated failures: %w", err)
		}
		answer = text
		return err
	}, tracer.StringAttr("agent", t.Name), tracer.StringAttr("session", s.id))

	if err != nil {
		err = fmt.Errorf("invoke %s: %w: %w", t.Name, domain.ErrInvocation, err)
		s.logger.Warn("invocation failed", "agent", t.Name, logger.Err(err))
		s.publish(ctx, domain.EventInvocationFailed, domain.InvocationPayload{
			Agent: t.Name, AgentID: t.AgentID, AliasID: t.AliasID, Error: err.Error(),
		})
		return "", err
	}

	s.logger.Debug("invocation completed", "agent", t.Name, "chars", len(answer))
	s.publish(ctx, domain.EventInvocationCompleted, domain.InvocationPayload{
		Agent: t.Name, AgentID: t.AgentID, AliasID: t.AliasID, Chars: len(answer),
	})
	return answer, nil
}

func (s *Session) invoke(ctx context.Context, t Target, prompt string) (string, error) {
	if err := s.ready(ctx, t); err != nil {
		return "", err
	}
	req := domain.InvokeRequest{
		AgentID:   t.AgentID,
		AliasID:   t.AliasID,
		SessionID: s.id,
		Text:      prompt,
	}
	if s.renderer != nil && s.renderer.Level().Enabled() {
		req.Trace = true
		req.OnTrace = s.renderer.Trace
	}
	resp, err := s.invoker.InvokeAgent(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ready checks the agent for the test alias and the alias otherwise.
func (s *Session) ready(ctx context.Context, t Target) error {
	if t.AliasID == domain.TestAliasID {
		a, err := s.status.GetAgent(ctx, t.AgentID)
		if err != nil {
			return err
		}
		if a.Status != domain.StatusPrepared {
			return notReady(t, a.Status)
		}
		return nil
	}
	al, err := s.status.GetAlias(ctx, t.AgentID, t.AliasID)
	if err != nil {
		return err
	}
	if !al.Status.Invocable() {
		return notReady(t, al.Status)
	}
	return nil
}

func notReady(t Target, st domain.Status) error {
	return domain.NewDomainError("session.ready", domain.ErrConflict,
		fmt.Sprintf("%s (alias %s) is not ready: %s", t.Name, t.AliasID, st))
}

func (s *Session) publish(ctx context.Context, t domain.EventType, p domain.InvocationPayload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewInvocationEvent(t, s.id, p))
}

// IsCircuitOpen reports whether err was caused by an open circuit.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
