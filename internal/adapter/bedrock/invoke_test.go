package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	rttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/logger"
)

type mockRuntimeAPI struct {
	invokeFunc func(ctx context.Context, params *bedrockagentruntime.InvokeAgentInput) (*bedrockagentruntime.InvokeAgentOutput, error)
}

func (m *mockRuntimeAPI) InvokeAgent(ctx context.Context, params *bedrockagentruntime.InvokeAgentInput, _ ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.InvokeAgentOutput, error) {
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, params)
	}
	return nil, errNotImplemented
}

type mockConverseAPI struct {
	converseFunc func(ctx context.Context, params *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
}

func (m *mockConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if m.converseFunc != nil {
		return m.converseFunc(ctx, params)
	}
	return nil, errNotImplemented
}

// fakeStream replays a fixed list of events.
type fakeStream struct {
	ch  chan rttypes.ResponseStream
	err error
}

func newFakeStream(err error, events ...rttypes.ResponseStream) *fakeStream {
	ch := make(chan rttypes.ResponseStream, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &fakeStream{ch: ch, err: err}
}

func (s *fakeStream) Events() <-chan rttypes.ResponseStream { return s.ch }
func (s *fakeStream) Close() error                          { return nil }
func (s *fakeStream) Err() error                            { return s.err }

func chunk(text string) rttypes.ResponseStream {
	return &rttypes.ResponseStreamMemberChunk{Value: rttypes.PayloadPart{Bytes: []byte(text)}}
}

func tracePart(collaborator string, tr rttypes.Trace) rttypes.ResponseStream {
	part := rttypes.TracePart{AgentId: aws.String("SUP1"), Trace: tr}
	if collaborator != "" {
		part.CollaboratorName = aws.String(collaborator)
	}
	return &rttypes.ResponseStreamMemberTrace{Value: part}
}

func TestCollectConcatenatesChunks(t *testing.T) {
	var traces []domain.TraceEvent
	stream := newFakeStream(nil,
		chunk("AMZN looks "),
		tracePart("", &rttypes.TraceMemberOrchestrationTrace{Value: &rttypes.OrchestrationTraceMemberRationale{
			Value: rttypes.Rationale{Text: aws.String("need news first")},
		}}),
		chunk("strong."),
	)

	text, err := collect(context.Background(), stream, domain.InvokeRequest{
		Trace:   true,
		OnTrace: func(ev domain.TraceEvent) { traces = append(traces, ev) },
	})
	require.NoError(t, err)
	assert.Equal(t, "AMZN looks strong.", text)
	require.Len(t, traces, 1)
	assert.Equal(t, domain.TraceEvent{Agent: "SUP1", Type: domain.TraceRationale, Text: "need news first"}, traces[0])
}

func TestCollectIgnoresTracesWhenDisabled(t *testing.T) {
	called := false
	stream := newFakeStream(nil, tracePart("", &rttypes.TraceMemberFailureTrace{}), chunk("ok"))
	text, err := collect(context.Background(), stream, domain.InvokeRequest{
		OnTrace: func(domain.TraceEvent) { called = true },
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.False(t, called)
}

func TestCollectReportsStreamError(t *testing.T) {
	boom := errors.New("stream reset")
	_, err := collect(context.Background(), newFakeStream(boom, chunk("partial")), domain.InvokeRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestCollectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	open := &fakeStream{ch: make(chan rttypes.ResponseStream)}
	_, err := collect(ctx, open, domain.InvokeRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTraceEventsHandoffs(t *testing.T) {
	call := traceEvents(rttypes.TracePart{
		AgentId: aws.String("SUP1"),
		Trace: &rttypes.TraceMemberOrchestrationTrace{Value: &rttypes.OrchestrationTraceMemberInvocationInput{
			Value: rttypes.InvocationInput{AgentCollaboratorInvocationInput: &rttypes.AgentCollaboratorInvocationInput{
				AgentCollaboratorName: aws.String("news_agent"),
			}},
		}},
	})
	require.Len(t, call, 1)
	assert.Equal(t, domain.TraceCollaboratorCall, call[0].Type)
	assert.Equal(t, "news_agent", call[0].Collaborator)
	assert.True(t, call[0].Handoff())

	result := traceEvents(rttypes.TracePart{
		CollaboratorName: aws.String("news_agent"),
		Trace: &rttypes.TraceMemberOrchestrationTrace{Value: &rttypes.OrchestrationTraceMemberObservation{
			Value: rttypes.Observation{FinalResponse: &rttypes.FinalResponse{Text: aws.String("headlines")}},
		}},
	})
	require.Len(t, result, 1)
	assert.Equal(t, "news_agent", result[0].Agent)
	assert.Equal(t, domain.TraceFinalResponse, result[0].Type)
	assert.Equal(t, "headlines", result[0].Text)

	failure := traceEvents(rttypes.TracePart{Trace: &rttypes.TraceMemberFailureTrace{Value: rttypes.FailureTrace{FailureReason: aws.String("quota")}}})
	require.Len(t, failure, 1)
	assert.Equal(t, domain.TraceFailure, failure[0].Type)
	assert.Equal(t, "quota", failure[0].Text)

	assert.Empty(t, traceEvents(rttypes.TracePart{}))
}

func TestInvokeAgentMapsErrors(t *testing.T) {
	var got *bedrockagentruntime.InvokeAgentInput
	rt := &mockRuntimeAPI{
		invokeFunc: func(_ context.Context, params *bedrockagentruntime.InvokeAgentInput) (*bedrockagentruntime.InvokeAgentOutput, error) {
			got = params
			return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
		},
	}
	c := newClientWithAPIs(&mockAgentAPI{}, &mockGuardrailAPI{}, rt, &mockConverseAPI{}, testAWSConfig, logger.Discard())

	_, err := c.InvokeAgent(context.Background(), domain.InvokeRequest{
		AgentID: "SUP1", AliasID: domain.TestAliasID, SessionID: "S1", Text: "hello", Trace: true,
	})
	assert.ErrorIs(t, err, domain.ErrThrottled)
	require.NotNil(t, got)
	assert.Equal(t, "SUP1", aws.ToString(got.AgentId))
	assert.Equal(t, domain.TestAliasID, aws.ToString(got.AgentAliasId))
	assert.Equal(t, "S1", aws.ToString(got.SessionId))
	assert.True(t, aws.ToBool(got.EnableTrace))
}

func TestProbeModel(t *testing.T) {
	var model string
	conv := &mockConverseAPI{
		converseFunc: func(_ context.Context, params *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
			model = aws.ToString(params.ModelId)
			assert.Equal(t, int32(1), aws.ToInt32(params.InferenceConfig.MaxTokens))
			if model == "disabled-model" {
				return nil, &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "model access not granted"}
			}
			return &bedrockruntime.ConverseOutput{}, nil
		},
	}
	c := newClientWithAPIs(&mockAgentAPI{}, &mockGuardrailAPI{}, &mockRuntimeAPI{}, conv, testAWSConfig, logger.Discard())

	require.NoError(t, c.ProbeModel(context.Background(), "anthropic.claude-3-haiku"))
	assert.Equal(t, "anthropic.claude-3-haiku", model)
	assert.ErrorIs(t, c.ProbeModel(context.Background(), "disabled-model"), domain.ErrAuthInvalid)
}

func TestCheckCredentialsWithoutProvider(t *testing.T) {
	c := newTestClient(&mockAgentAPI{}, &mockGuardrailAPI{})
	assert.ErrorIs(t, c.CheckCredentials(context.Background()), domain.ErrAuthInvalid)

	c.creds = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret"}, nil
	})
	assert.NoError(t, c.CheckCredentials(context.Background()))
}
