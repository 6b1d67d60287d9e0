package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
)

// ProvisionedLeaf is a prepared worker agent and the alias its supervisor links to.
type ProvisionedLeaf struct {
	Agent domain.Agent
	Alias domain.Alias
}

// Provisioned is the result of a successful Provision.
type Provisioned struct {
	Supervisor domain.Agent
	Leaves     []ProvisionedLeaf
	Links      []domain.CollaborationLink
}

// Leaf returns the provisioned leaf with the given agent name.
func (p *Provisioned) Leaf(name string) (ProvisionedLeaf, bool) {
	for _, l := range p.Leaves {
		if l.Agent.Name == name {
			return l, true
		}
	}
	return ProvisionedLeaf{}, false
}

// Provision creates the hierarchy in dependency order: every leaf prepared and
// aliased, then the supervisor, its links, and finally the supervisor prepared.
// It stops at the first failure and leaves already created resources in place.
func (o *Orchestrator) Provision(ctx context.Context, h domain.Hierarchy) (*Provisioned, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if len(h.Supervisor.Collaborators) == 0 {
		return nil, domain.NewDomainError("Orchestrator.Provision", domain.ErrInvalidInput,
			fmt.Sprintf("supervisor %q has no collaborators", h.Supervisor.Name))
	}

	var prov *Provisioned
	err := tracer.Do(ctx, "lifecycle.provision", func(ctx context.Context) error {
		var err error
		prov, err = o.provision(ctx, h)
		return err
	}, tracer.StringAttr("hierarchy", h.Name), tracer.IntAttr("leaves", len(h.Leaves)))

	if err != nil {
		p := domain.ResourcePayload{Name: h.Name, Error: err.Error()}
		var se *StepError
		if errors.As(err, &se) {
			p.Kind, p.Name, p.Step = se.Kind, se.Resource, se.Step
		}
		o.publish(ctx, domain.EventProvisionFailed, p)
		return nil, err
	}
	o.publish(ctx, domain.EventProvisionCompleted, domain.ResourcePayload{
		Kind: domain.KindAgent, Name: prov.Supervisor.Name, ID: prov.Supervisor.ID,
	})
	o.logger.Info("hierarchy provisioned", "hierarchy", h.Name, "supervisor", prov.Supervisor.ID,
		"leaves", len(prov.Leaves), "links", len(prov.Links))
	return prov, nil
}

func (o *Orchestrator) provision(ctx context.Context, h domain.Hierarchy) (*Provisioned, error) {
	prov := &Provisioned{}
	for _, spec := range h.Leaves {
		leaf, err := o.provisionLeaf(ctx, spec, h.ModelsFor(spec))
		if err != nil {
			return nil, err
		}
		prov.Leaves = append(prov.Leaves, *leaf)
	}

	supSpec := h.Supervisor.AgentSpec
	sup, err := o.createAgent(ctx, supSpec, h.ModelsFor(supSpec), domain.CollaborationSupervisor)
	if err != nil {
		return nil, err
	}

	for _, c := range h.Supervisor.Collaborators {
		leaf, _ := prov.Leaf(c.Agent)
		link, err := o.associate(ctx, sup, leaf, c)
		if err != nil {
			return nil, err
		}
		prov.Links = append(prov.Links, *link)
	}

	if _, err := o.poller.AwaitTerminal(ctx, agentRef(sup.Name, sup.ID)); err != nil {
		return nil, o.stepFailed(StepAwaitLinks, domain.KindAgent, sup.Name, sup.ID, err)
	}
	if err := o.prepare(ctx, sup); err != nil {
		return nil, err
	}
	prov.Supervisor = *sup
	return prov, nil
}

// provisionLeaf creates, prepares and aliases one worker agent.
func (o *Orchestrator) provisionLeaf(ctx context.Context, spec domain.AgentSpec, models []string) (*ProvisionedLeaf, error) {
	agent, err := o.createAgent(ctx, spec, models, domain.CollaborationDisabled)
	if err != nil {
		return nil, err
	}
	if err := o.prepare(ctx, agent); err != nil {
		return nil, err
	}

	aliasName := domain.AliasNameFor(spec)
	alias, err := o.cp.CreateAlias(ctx, agent.ID, aliasName)
	if err != nil {
		return nil, o.stepFailed(StepCreateAlias, domain.KindAlias, aliasName, agent.ID, err)
	}
	st, err := o.poller.AwaitTerminal(ctx, aliasRef(aliasName, agent.ID, alias.ID))
	if err != nil {
		return nil, o.stepFailed(StepAwaitAlias, domain.KindAlias, aliasName, alias.ID, err)
	}
	alias.Status = st
	o.logStep("alias created", StepCreateAlias, domain.KindAlias, aliasName, alias.ID)
	o.publish(ctx, domain.EventAliasCreated, domain.ResourcePayload{
		Kind: domain.KindAlias, Name: aliasName, ID: alias.ID, ParentID: agent.ID, Step: StepCreateAlias,
	})
	return &ProvisionedLeaf{Agent: *agent, Alias: *alias}, nil
}

// createAgent fails with ErrDuplicate when an agent of the same name exists,
// otherwise creates it and waits for it to settle.
func (o *Orchestrator) createAgent(ctx context.Context, spec domain.AgentSpec, models []string, mode domain.CollaborationMode) (*domain.Agent, error) {
	id, found, err := o.registry.FindAgentID(ctx, spec.Name)
	if err != nil {
		return nil, o.stepFailed(StepLookup, domain.KindAgent, spec.Name, "", err)
	}
	if found {
		return nil, o.stepFailed(StepLookup, domain.KindAgent, spec.Name, id,
			domain.NewDomainError("Orchestrator.Provision", domain.ErrDuplicate, fmt.Sprintf("agent %q already exists as %s", spec.Name, id)))
	}

	agent, err := o.cp.CreateAgent(ctx, domain.CreateAgentInput{
		Name:          spec.Name,
		Description:   spec.Description,
		Instruction:   spec.Instruction,
		Models:        models,
		Collaboration: mode,
	})
	if err != nil {
		return nil, o.stepFailed(StepCreate, domain.KindAgent, spec.Name, "", err)
	}
	o.logStep("agent created", StepCreate, domain.KindAgent, spec.Name, agent.ID)
	o.publish(ctx, domain.EventAgentCreated, domain.ResourcePayload{
		Kind: domain.KindAgent, Name: spec.Name, ID: agent.ID, Step: StepCreate,
	})

	st, err := o.poller.AwaitTerminal(ctx, agentRef(spec.Name, agent.ID))
	if err != nil {
		return nil, o.stepFailed(StepAwaitCreate, domain.KindAgent, spec.Name, agent.ID, err)
	}
	agent.Status = st
	return agent, nil
}

// prepare builds the agent's working version and requires it to end PREPARED.
func (o *Orchestrator) prepare(ctx context.Context, agent *domain.Agent) error {
	if err := o.cp.PrepareAgent(ctx, agent.ID); err != nil {
		return o.stepFailed(StepPrepare, domain.KindAgent, agent.Name, agent.ID, err)
	}
	st, err := o.poller.AwaitTerminal(ctx, agentRef(agent.Name, agent.ID))
	if err != nil {
		return o.stepFailed(StepAwaitPrepare, domain.KindAgent, agent.Name, agent.ID, err)
	}
	if st != domain.StatusPrepared {
		return o.stepFailed(StepAwaitPrepare, domain.KindAgent, agent.Name, agent.ID,
			domain.NewDomainError("Orchestrator.Provision", domain.ErrLifecycleFailed, fmt.Sprintf("settled as %s, want PREPARED", st)))
	}
	agent.Status = st
	agent.TestAlias.Status = domain.StatusPrepared
	o.logStep("agent prepared", StepPrepare, domain.KindAgent, agent.Name, agent.ID)
	o.publish(ctx, domain.EventAgentPrepared, domain.ResourcePayload{
		Kind: domain.KindAgent, Name: agent.Name, ID: agent.ID, Step: StepPrepare,
	})
	return nil
}

func (o *Orchestrator) associate(ctx context.Context, sup *domain.Agent, leaf ProvisionedLeaf, c domain.CollaboratorSpec) (*domain.CollaborationLink, error) {
	name := c.AssociationName
	if name == "" {
		name = c.Agent
	}
	link, err := o.cp.AssociateCollaborator(ctx, sup.ID, domain.CollaborationLink{
		AliasARN:        leaf.Alias.ARN,
		Instruction:     c.Instruction,
		AssociationName: name,
		RelayHistory:    c.RelayHistory,
	})
	if err != nil {
		return nil, o.stepFailed(StepAssociate, domain.KindCollaborator, name, sup.ID, err)
	}
	o.logStep("collaborator associated", StepAssociate, domain.KindCollaborator, name, link.ID)
	o.publish(ctx, domain.EventCollaboratorAssociated, domain.ResourcePayload{
		Kind: domain.KindCollaborator, Name: name, ID: link.ID, ParentID: sup.ID, Step: StepAssociate,
	})
	return link, nil
}

func (o *Orchestrator) stepFailed(step string, kind domain.ResourceKind, resource, id string, err error) error {
	o.logFailure("provision step failed", step, kind, resource, id, err)
	return &StepError{Step: step, Kind: kind, Resource: resource, Err: err}
}
