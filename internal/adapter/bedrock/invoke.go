package bedrock

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	rttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
)

// runtimeAPI is the subset of the Bedrock Agents runtime client we use.
type runtimeAPI interface {
	InvokeAgent(ctx context.Context, params *bedrockagentruntime.InvokeAgentInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.InvokeAgentOutput, error)
}

// eventReader is satisfied by *bedrockagentruntime.InvokeAgentEventStream.
type eventReader interface {
	Events() <-chan rttypes.ResponseStream
	Close() error
	Err() error
}

// InvokeAgent sends one turn and drains the response stream into a single answer.
func (c *Client) InvokeAgent(ctx context.Context, req domain.InvokeRequest) (*domain.InvokeResponse, error) {
	var resp *domain.InvokeResponse
	err := c.call(ctx, "InvokeAgent", func(ctx context.Context) error {
		out, err := c.runtime.InvokeAgent(ctx, &bedrockagentruntime.InvokeAgentInput{
			AgentId:      aws.String(req.AgentID),
			AgentAliasId: aws.String(req.AliasID),
			SessionId:    aws.String(req.SessionID),
			InputText:    aws.String(req.Text),
			EnableTrace:  aws.Bool(req.Trace),
		})
		if err != nil {
			return err
		}
		stream := out.GetStream()
		defer stream.Close()

		text, err := collect(ctx, stream, req)
		if err != nil {
			return err
		}
		resp = &domain.InvokeResponse{Text: text}
		return nil
	}, tracer.StringAttr("agent.id", req.AgentID), tracer.StringAttr("alias.id", req.AliasID), tracer.StringAttr("session.id", req.SessionID))
	return resp, err
}

// collect concatenates chunk payloads in arrival order and forwards trace
// parts to req.OnTrace.
func collect(ctx context.Context, r eventReader, req domain.InvokeRequest) (string, error) {
	var b strings.Builder
	events := r.Events()
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return b.String(), r.Err()
			}
			switch v := ev.(type) {
			case *rttypes.ResponseStreamMemberChunk:
				b.Write(v.Value.Bytes)
			case *rttypes.ResponseStreamMemberTrace:
				if req.Trace && req.OnTrace != nil {
					for _, te := range traceEvents(v.Value) {
						req.OnTrace(te)
					}
				}
			}
		}
	}
}

// traceEvents flattens one trace part into display events.
func traceEvents(part rttypes.TracePart) []domain.TraceEvent {
	agent := aws.ToString(part.CollaboratorName)
	if agent == "" {
		agent = aws.ToString(part.AgentId)
	}
	ev := func(typ, text string) domain.TraceEvent {
		return domain.TraceEvent{Agent: agent, Type: typ, Text: text}
	}

	switch t := part.Trace.(type) {
	case *rttypes.TraceMemberOrchestrationTrace:
		return orchestrationEvents(agent, t.Value)
	case *rttypes.TraceMemberFailureTrace:
		return []domain.TraceEvent{ev(domain.TraceFailure, aws.ToString(t.Value.FailureReason))}
	case *rttypes.TraceMemberGuardrailTrace:
		return []domain.TraceEvent{ev(domain.TraceGuardrail, string(t.Value.Action))}
	case *rttypes.TraceMemberPreProcessingTrace:
		return []domain.TraceEvent{ev(domain.TracePreProcessing, "")}
	case *rttypes.TraceMemberPostProcessingTrace:
		return []domain.TraceEvent{ev(domain.TracePostProcessing, "")}
	case *rttypes.TraceMemberRoutingClassifierTrace:
		return []domain.TraceEvent{ev(domain.TraceRouting, "")}
	case nil:
		return nil
	default:
		return []domain.TraceEvent{ev(domain.TraceOther, "")}
	}
}

func orchestrationEvents(agent string, o rttypes.OrchestrationTrace) []domain.TraceEvent {
	switch v := o.(type) {
	case *rttypes.OrchestrationTraceMemberRationale:
		return []domain.TraceEvent{{Agent: agent, Type: domain.TraceRationale, Text: aws.ToString(v.Value.Text)}}
	case *rttypes.OrchestrationTraceMemberInvocationInput:
		if in := v.Value.AgentCollaboratorInvocationInput; in != nil {
			return []domain.TraceEvent{{
				Agent:        agent,
				Type:         domain.TraceCollaboratorCall,
				Collaborator: aws.ToString(in.AgentCollaboratorName),
			}}
		}
		return []domain.TraceEvent{{Agent: agent, Type: domain.TraceModelInvocation, Text: string(v.Value.InvocationType)}}
	case *rttypes.OrchestrationTraceMemberObservation:
		if out := v.Value.AgentCollaboratorInvocationOutput; out != nil {
			return []domain.TraceEvent{{
				Agent:        agent,
				Type:         domain.TraceCollaboratorResult,
				Collaborator: aws.ToString(out.AgentCollaboratorName),
			}}
		}
		if fr := v.Value.FinalResponse; fr != nil {
			return []domain.TraceEvent{{Agent: agent, Type: domain.TraceFinalResponse, Text: aws.ToString(fr.Text)}}
		}
		return []domain.TraceEvent{{Agent: agent, Type: domain.TraceOther, Text: string(v.Value.Type)}}
	case *rttypes.OrchestrationTraceMemberModelInvocationInput, *rttypes.OrchestrationTraceMemberModelInvocationOutput:
		return []domain.TraceEvent{{Agent: agent, Type: domain.TraceModelInvocation}}
	default:
		return nil
	}
}
