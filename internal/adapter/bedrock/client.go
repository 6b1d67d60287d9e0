// Package bedrock implements the control plane and invoker over Amazon Bedrock Agents.
package bedrock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
)

// draftVersion is the working version collaborators are attached to.
const draftVersion = "DRAFT"

// agentAPI is the subset of the Bedrock Agents build-time client we use.
type agentAPI interface {
	CreateAgent(ctx context.Context, params *bedrockagent.CreateAgentInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateAgentOutput, error)
	GetAgent(ctx context.Context, params *bedrockagent.GetAgentInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetAgentOutput, error)
	UpdateAgent(ctx context.Context, params *bedrockagent.UpdateAgentInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.UpdateAgentOutput, error)
	PrepareAgent(ctx context.Context, params *bedrockagent.PrepareAgentInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.PrepareAgentOutput, error)
	DeleteAgent(ctx context.Context, params *bedrockagent.DeleteAgentInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.DeleteAgentOutput, error)
	ListAgents(ctx context.Context, params *bedrockagent.ListAgentsInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListAgentsOutput, error)

	CreateAgentAlias(ctx context.Context, params *bedrockagent.CreateAgentAliasInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateAgentAliasOutput, error)
	GetAgentAlias(ctx context.Context, params *bedrockagent.GetAgentAliasInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetAgentAliasOutput, error)
	ListAgentAliases(ctx context.Context, params *bedrockagent.ListAgentAliasesInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListAgentAliasesOutput, error)
	DeleteAgentAlias(ctx context.Context, params *bedrockagent.DeleteAgentAliasInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.DeleteAgentAliasOutput, error)

	AssociateAgentCollaborator(ctx context.Context, params *bedrockagent.AssociateAgentCollaboratorInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.AssociateAgentCollaboratorOutput, error)
	ListAgentCollaborators(ctx context.Context, params *bedrockagent.ListAgentCollaboratorsInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListAgentCollaboratorsOutput, error)
	DisassociateAgentCollaborator(ctx context.Context, params *bedrockagent.DisassociateAgentCollaboratorInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.DisassociateAgentCollaboratorOutput, error)
}

// guardrailAPI is the subset of the Bedrock client used for guardrail cleanup.
type guardrailAPI interface {
	ListGuardrails(ctx context.Context, params *bedrock.ListGuardrailsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListGuardrailsOutput, error)
	DeleteGuardrail(ctx context.Context, params *bedrock.DeleteGuardrailInput, optFns ...func(*bedrock.Options)) (*bedrock.DeleteGuardrailOutput, error)
}

// Client talks to Bedrock Agents. It implements domain.ControlPlane and domain.Invoker.
type Client struct {
	agents     agentAPI
	guardrails guardrailAPI
	runtime    runtimeAPI
	models     converseAPI
	creds      aws.CredentialsProvider

	limiter *rate.Limiter
	roleARN string
	idleTTL int32
	logger  *slog.Logger
}

var (
	_ domain.ControlPlane = (*Client)(nil)
	_ domain.Invoker      = (*Client)(nil)
)

// New loads the AWS configuration for cfg.Region and cfg.Profile and builds a Client.
func New(ctx context.Context, cfg config.AWSConfig, logger *slog.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, domain.NewDomainError("bedrock.New", domain.ErrAuthInvalid, fmt.Sprintf("load AWS config: %v", err))
	}

	c := newClientWithAPIs(
		bedrockagent.NewFromConfig(awsCfg),
		bedrock.NewFromConfig(awsCfg),
		bedrockagentruntime.NewFromConfig(awsCfg),
		bedrockruntime.NewFromConfig(awsCfg),
		cfg, logger,
	)
	c.creds = awsCfg.Credentials
	return c, nil
}

// newClientWithAPIs wires a Client to the given SDK clients. Used by tests.
func newClientWithAPIs(agents agentAPI, guardrails guardrailAPI, runtime runtimeAPI, models converseAPI, cfg config.AWSConfig, logger *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.CallsPerSecond > 0 {
		limit = rate.Limit(cfg.CallsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		agents:     agents,
		guardrails: guardrails,
		runtime:    runtime,
		models:     models,
		limiter:    rate.NewLimiter(limit, burst),
		roleARN:    cfg.AgentRoleARN,
		idleTTL:    cfg.IdleSessionTTL,
		logger:     logger,
	}
}

// call waits for a rate-limit token, then runs fn in a "bedrock.<op>" span
// and classifies any error it returns.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.WrapOp("bedrock."+op, err)
	}
	return tracer.Do(ctx, "bedrock."+op, func(ctx context.Context) error {
		err := mapError(op, fn(ctx))
		if err != nil {
			c.logger.Debug("bedrock call failed", "op", op, "error", err)
		}
		return err
	}, attrs...)
}

// CreateAgent creates an agent with the first model of in.Models.
func (c *Client) CreateAgent(ctx context.Context, in domain.CreateAgentInput) (*domain.Agent, error) {
	if len(in.Models) == 0 {
		return nil, domain.NewDomainError("bedrock.CreateAgent", domain.ErrInvalidInput, "no foundation model for "+in.Name)
	}
	if c.roleARN == "" {
		return nil, domain.NewDomainError("bedrock.CreateAgent", domain.ErrInvalidInput, "aws.agent_role_arn is not configured")
	}
	mode := in.Collaboration
	if mode == "" {
		mode = domain.CollaborationDisabled
	}

	input := &bedrockagent.CreateAgentInput{
		AgentName:            aws.String(in.Name),
		AgentResourceRoleArn: aws.String(c.roleARN),
		FoundationModel:      aws.String(in.Models[0]),
		Instruction:          aws.String(in.Instruction),
		AgentCollaboration:   agenttypes.AgentCollaboration(mode),
	}
	if in.Description != "" {
		input.Description = aws.String(in.Description)
	}
	if c.idleTTL > 0 {
		input.IdleSessionTTLInSeconds = aws.Int32(c.idleTTL)
	}

	var agent *domain.Agent
	err := c.call(ctx, "CreateAgent", func(ctx context.Context) error {
		out, err := c.agents.CreateAgent(ctx, input)
		if err != nil {
			return err
		}
		if out.Agent == nil {
			return emptyResponse("CreateAgent")
		}
		agent = toAgent(out.Agent)
		return nil
	}, tracer.StringAttr("agent.name", in.Name))
	return agent, err
}

// GetAgent returns the agent's current state.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	var agent *domain.Agent
	err := c.call(ctx, "GetAgent", func(ctx context.Context) error {
		out, err := c.agents.GetAgent(ctx, &bedrockagent.GetAgentInput{AgentId: aws.String(agentID)})
		if err != nil {
			return err
		}
		if out.Agent == nil {
			return emptyResponse("GetAgent")
		}
		agent = toAgent(out.Agent)
		return nil
	}, tracer.StringAttr("agent.id", agentID))
	return agent, err
}

// UpdateAgentCollaboration switches the agent's collaboration mode. The update
// call requires the agent's name, role and model, so they are read first.
func (c *Client) UpdateAgentCollaboration(ctx context.Context, agentID string, mode domain.CollaborationMode) error {
	return c.call(ctx, "UpdateAgent", func(ctx context.Context) error {
		cur, err := c.agents.GetAgent(ctx, &bedrockagent.GetAgentInput{AgentId: aws.String(agentID)})
		if err != nil {
			return err
		}
		a := cur.Agent
		if a == nil {
			return emptyResponse("GetAgent")
		}
		_, err = c.agents.UpdateAgent(ctx, &bedrockagent.UpdateAgentInput{
			AgentId:                 aws.String(agentID),
			AgentName:               a.AgentName,
			AgentResourceRoleArn:    a.AgentResourceRoleArn,
			FoundationModel:         a.FoundationModel,
			Instruction:             a.Instruction,
			Description:             a.Description,
			IdleSessionTTLInSeconds: a.IdleSessionTTLInSeconds,
			AgentCollaboration:      agenttypes.AgentCollaboration(mode),
		})
		return err
	}, tracer.StringAttr("agent.id", agentID), tracer.StringAttr("collaboration", string(mode)))
}

// PrepareAgent starts building the agent's DRAFT version.
func (c *Client) PrepareAgent(ctx context.Context, agentID string) error {
	return c.call(ctx, "PrepareAgent", func(ctx context.Context) error {
		_, err := c.agents.PrepareAgent(ctx, &bedrockagent.PrepareAgentInput{AgentId: aws.String(agentID)})
		return err
	}, tracer.StringAttr("agent.id", agentID))
}

// DeleteAgent requests deletion. The remote refuses while aliases or links remain.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	return c.call(ctx, "DeleteAgent", func(ctx context.Context) error {
		_, err := c.agents.DeleteAgent(ctx, &bedrockagent.DeleteAgentInput{AgentId: aws.String(agentID)})
		return err
	}, tracer.StringAttr("agent.id", agentID))
}

// ListAgents returns every agent in the account and region.
func (c *Client) ListAgents(ctx context.Context) ([]domain.AgentSummary, error) {
	var agents []domain.AgentSummary
	err := c.call(ctx, "ListAgents", func(ctx context.Context) error {
		p := bedrockagent.NewListAgentsPaginator(c.agents, &bedrockagent.ListAgentsInput{})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, s := range page.AgentSummaries {
				agents = append(agents, domain.AgentSummary{
					ID:     aws.ToString(s.AgentId),
					Name:   aws.ToString(s.AgentName),
					Status: domain.Status(s.AgentStatus),
				})
			}
		}
		return nil
	})
	return agents, err
}

// CreateAlias points a new alias at the agent's latest prepared version.
func (c *Client) CreateAlias(ctx context.Context, agentID, aliasName string) (*domain.Alias, error) {
	var alias *domain.Alias
	err := c.call(ctx, "CreateAgentAlias", func(ctx context.Context) error {
		out, err := c.agents.CreateAgentAlias(ctx, &bedrockagent.CreateAgentAliasInput{
			AgentId:        aws.String(agentID),
			AgentAliasName: aws.String(aliasName),
		})
		if err != nil {
			return err
		}
		if out.AgentAlias == nil {
			return emptyResponse("CreateAgentAlias")
		}
		alias = toAlias(out.AgentAlias)
		return nil
	}, tracer.StringAttr("agent.id", agentID), tracer.StringAttr("alias.name", aliasName))
	return alias, err
}

// GetAlias returns the alias's current state.
func (c *Client) GetAlias(ctx context.Context, agentID, aliasID string) (*domain.Alias, error) {
	var alias *domain.Alias
	err := c.call(ctx, "GetAgentAlias", func(ctx context.Context) error {
		out, err := c.agents.GetAgentAlias(ctx, &bedrockagent.GetAgentAliasInput{
			AgentId:      aws.String(agentID),
			AgentAliasId: aws.String(aliasID),
		})
		if err != nil {
			return err
		}
		if out.AgentAlias == nil {
			return emptyResponse("GetAgentAlias")
		}
		alias = toAlias(out.AgentAlias)
		return nil
	}, tracer.StringAttr("agent.id", agentID), tracer.StringAttr("alias.id", aliasID))
	return alias, err
}

// ListAliases returns the agent's aliases, including the built-in test alias.
func (c *Client) ListAliases(ctx context.Context, agentID string) ([]domain.Alias, error) {
	var aliases []domain.Alias
	err := c.call(ctx, "ListAgentAliases", func(ctx context.Context) error {
		p := bedrockagent.NewListAgentAliasesPaginator(c.agents, &bedrockagent.ListAgentAliasesInput{AgentId: aws.String(agentID)})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, s := range page.AgentAliasSummaries {
				aliases = append(aliases, domain.Alias{
					ID:      aws.ToString(s.AgentAliasId),
					Name:    aws.ToString(s.AgentAliasName),
					AgentID: agentID,
					Status:  domain.Status(s.AgentAliasStatus),
				})
			}
		}
		return nil
	}, tracer.StringAttr("agent.id", agentID))
	return aliases, err
}

// DeleteAlias removes an alias. The remote refuses while a supervisor links to it.
func (c *Client) DeleteAlias(ctx context.Context, agentID, aliasID string) error {
	return c.call(ctx, "DeleteAgentAlias", func(ctx context.Context) error {
		_, err := c.agents.DeleteAgentAlias(ctx, &bedrockagent.DeleteAgentAliasInput{
			AgentId:      aws.String(agentID),
			AgentAliasId: aws.String(aliasID),
		})
		return err
	}, tracer.StringAttr("agent.id", agentID), tracer.StringAttr("alias.id", aliasID))
}

// AssociateCollaborator links the supervisor's DRAFT version to a collaborator alias.
func (c *Client) AssociateCollaborator(ctx context.Context, agentID string, link domain.CollaborationLink) (*domain.CollaborationLink, error) {
	relay := agenttypes.RelayConversationHistoryDisabled
	if link.RelayHistory {
		relay = agenttypes.RelayConversationHistoryToCollaborator
	}
	var created *domain.CollaborationLink
	err := c.call(ctx, "AssociateAgentCollaborator", func(ctx context.Context) error {
		out, err := c.agents.AssociateAgentCollaborator(ctx, &bedrockagent.AssociateAgentCollaboratorInput{
			AgentId:                  aws.String(agentID),
			AgentVersion:             aws.String(draftVersion),
			AgentDescriptor:          &agenttypes.AgentDescriptor{AliasArn: aws.String(link.AliasARN)},
			CollaboratorName:         aws.String(link.AssociationName),
			CollaborationInstruction: aws.String(link.Instruction),
			RelayConversationHistory: relay,
		})
		if err != nil {
			return err
		}
		created = &link
		if out.AgentCollaborator != nil {
			created.ID = aws.ToString(out.AgentCollaborator.CollaboratorId)
		}
		return nil
	}, tracer.StringAttr("agent.id", agentID), tracer.StringAttr("collaborator.name", link.AssociationName))
	return created, err
}

// ListCollaborators returns the links of the supervisor's DRAFT version.
func (c *Client) ListCollaborators(ctx context.Context, agentID string) ([]domain.CollaborationLink, error) {
	var links []domain.CollaborationLink
	err := c.call(ctx, "ListAgentCollaborators", func(ctx context.Context) error {
		p := bedrockagent.NewListAgentCollaboratorsPaginator(c.agents, &bedrockagent.ListAgentCollaboratorsInput{
			AgentId:      aws.String(agentID),
			AgentVersion: aws.String(draftVersion),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, s := range page.AgentCollaboratorSummaries {
				l := domain.CollaborationLink{
					ID:              aws.ToString(s.CollaboratorId),
					AssociationName: aws.ToString(s.CollaboratorName),
					Instruction:     aws.ToString(s.CollaborationInstruction),
					RelayHistory:    s.RelayConversationHistory == agenttypes.RelayConversationHistoryToCollaborator,
				}
				if s.AgentDescriptor != nil {
					l.AliasARN = aws.ToString(s.AgentDescriptor.AliasArn)
				}
				links = append(links, l)
			}
		}
		return nil
	}, tracer.StringAttr("agent.id", agentID))
	return links, err
}

// DisassociateCollaborator removes one link from the supervisor's DRAFT version.
func (c *Client) DisassociateCollaborator(ctx context.Context, agentID, collaboratorID string) error {
	return c.call(ctx, "DisassociateAgentCollaborator", func(ctx context.Context) error {
		_, err := c.agents.DisassociateAgentCollaborator(ctx, &bedrockagent.DisassociateAgentCollaboratorInput{
			AgentId:        aws.String(agentID),
			AgentVersion:   aws.String(draftVersion),
			CollaboratorId: aws.String(collaboratorID),
		})
		return err
	}, tracer.StringAttr("agent.id", agentID), tracer.StringAttr("collaborator.id", collaboratorID))
}

// ListGuardrails returns every guardrail in the account and region.
func (c *Client) ListGuardrails(ctx context.Context) ([]domain.Guardrail, error) {
	var guardrails []domain.Guardrail
	err := c.call(ctx, "ListGuardrails", func(ctx context.Context) error {
		p := bedrock.NewListGuardrailsPaginator(c.guardrails, &bedrock.ListGuardrailsInput{})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, g := range page.Guardrails {
				guardrails = append(guardrails, domain.Guardrail{
					ID:   aws.ToString(g.Id),
					Name: aws.ToString(g.Name),
					ARN:  aws.ToString(g.Arn),
				})
			}
		}
		return nil
	})
	return guardrails, err
}

// DeleteGuardrail deletes every version of the guardrail.
func (c *Client) DeleteGuardrail(ctx context.Context, guardrailID string) error {
	return c.call(ctx, "DeleteGuardrail", func(ctx context.Context) error {
		_, err := c.guardrails.DeleteGuardrail(ctx, &bedrock.DeleteGuardrailInput{GuardrailIdentifier: aws.String(guardrailID)})
		return err
	}, tracer.StringAttr("guardrail.id", guardrailID))
}

func toAgent(a *agenttypes.Agent) *domain.Agent {
	if a == nil {
		return nil
	}
	agentID := aws.ToString(a.AgentId)
	status := domain.Status(a.AgentStatus)
	agent := &domain.Agent{
		ID:            agentID,
		Name:          aws.ToString(a.AgentName),
		Description:   aws.ToString(a.Description),
		Instruction:   aws.ToString(a.Instruction),
		Collaboration: domain.CollaborationMode(a.AgentCollaboration),
		Status:        status,
		ARN:           aws.ToString(a.AgentArn),
		RoleARN:       aws.ToString(a.AgentResourceRoleArn),
		TestAlias:     domain.Alias{ID: domain.TestAliasID, AgentID: agentID, Status: status},
	}
	if a.FoundationModel != nil {
		agent.Models = []string{*a.FoundationModel}
	}
	if agent.Collaboration == "" {
		agent.Collaboration = domain.CollaborationDisabled
	}
	return agent
}

func toAlias(a *agenttypes.AgentAlias) *domain.Alias {
	if a == nil {
		return nil
	}
	return &domain.Alias{
		ID:      aws.ToString(a.AgentAliasId),
		Name:    aws.ToString(a.AgentAliasName),
		AgentID: aws.ToString(a.AgentId),
		Status:  domain.Status(a.AgentAliasStatus),
		ARN:     aws.ToString(a.AgentAliasArn),
	}
}

