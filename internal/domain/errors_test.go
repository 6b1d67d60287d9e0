package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Poller.AwaitTerminal", ErrLifecycleTimeout, `agent "news_agent"`)
	want := `Poller.AwaitTerminal: agent "news_agent": resource did not reach a terminal status`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Session.Invoke", ErrInvocation, "")
	want := "Session.Invoke: agent invocation failed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Registry.FindAgentID", ErrRemoteUnavailable, "list agents")
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Error("errors.Is should match ErrRemoteUnavailable")
	}
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Registry.FindAgentID", de.Op)
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))

	err := WrapOp("bedrock.CreateAgent", ErrConflict)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "bedrock.CreateAgent: conflicting operation in progress", err.Error())
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"plain", errors.New("boom"), CodeUnknown},
		{"sentinel", ErrLifecycleTimeout, CodeLifecycleTimeout},
		{"domain error", NewDomainError("op", ErrNotFound, "x"), CodeNotFound},
		{"wrapped", fmt.Errorf("a: %w", ErrRemoteUnavailable), CodeRemoteUnavailable},
		{"most specific wins", fmt.Errorf("%w: %w", ErrInvocation, ErrThrottled), CodeInvocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}
