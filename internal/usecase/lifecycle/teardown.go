package lifecycle

import (
	"context"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
)

type foundAgent struct {
	name string
	id   string
}

// Teardown deletes whatever part of the plan exists, in reverse dependency
// order: supervisor links, supervisors, leaves, then the guardrail. Every
// attempt is recorded and a failure never stops the remaining steps.
func (o *Orchestrator) Teardown(ctx context.Context, plan domain.TeardownPlan) *Report {
	report := &Report{}
	ctx, span := tracer.StartSpan(ctx, "lifecycle.teardown")
	defer span.End()

	supervisors := o.lookupAll(ctx, report, plan.Supervisors)
	for _, sup := range supervisors {
		o.unlink(ctx, report, sup)
	}
	for _, sup := range supervisors {
		o.deleteAgent(ctx, report, sup)
	}
	for _, leaf := range o.lookupAll(ctx, report, plan.Leaves) {
		o.deleteAgent(ctx, report, leaf)
	}
	if plan.GuardrailName != "" {
		o.deleteGuardrail(ctx, report, plan.GuardrailName)
	}

	p := domain.ResourcePayload{Step: "teardown"}
	if err := report.Err(); err != nil {
		p.Error = err.Error()
		tracer.RecordError(span, err)
	} else {
		tracer.SetOK(span)
	}
	o.publish(ctx, domain.EventTeardownCompleted, p)
	return report
}

func (o *Orchestrator) lookupAll(ctx context.Context, report *Report, names []string) []foundAgent {
	var found []foundAgent
	for _, name := range names {
		id, ok, err := o.registry.FindAgentID(ctx, name)
		report.add(StepResult{Step: StepLookup, Kind: domain.KindAgent, Resource: name, ID: id, Err: err})
		if err != nil {
			o.logFailure("lookup failed", StepLookup, domain.KindAgent, name, "", err)
			continue
		}
		if ok {
			found = append(found, foundAgent{name: name, id: id})
		}
	}
	return found
}

// unlink removes every collaborator of a supervisor and turns collaboration off.
func (o *Orchestrator) unlink(ctx context.Context, report *Report, sup foundAgent) {
	ref := agentRef(sup.name, sup.id)
	if err := o.awaitQuiet(ctx, ref); err != nil {
		o.record(report, StepAwaitSettled, domain.KindAgent, sup.name, sup.id, err)
	}

	links, err := o.cp.ListCollaborators(ctx, sup.id)
	if err != nil {
		o.record(report, StepListCollaborators, domain.KindAgent, sup.name, sup.id, err)
	}
	for _, l := range links {
		err := o.cp.DisassociateCollaborator(ctx, sup.id, l.ID)
		o.record(report, StepDisassociate, domain.KindCollaborator, l.AssociationName, l.ID, err)
		if err == nil {
			o.publish(ctx, domain.EventCollaboratorDisassociated, domain.ResourcePayload{
				Kind: domain.KindCollaborator, Name: l.AssociationName, ID: l.ID, ParentID: sup.id, Step: StepDisassociate,
			})
		}
	}

	err = o.cp.UpdateAgentCollaboration(ctx, sup.id, domain.CollaborationDisabled)
	o.record(report, StepDisableCollaboration, domain.KindAgent, sup.name, sup.id, err)
	if err == nil {
		o.publish(ctx, domain.EventAgentUpdated, domain.ResourcePayload{
			Kind: domain.KindAgent, Name: sup.name, ID: sup.id, Step: StepDisableCollaboration,
		})
	}
	if err := o.awaitQuiet(ctx, ref); err != nil {
		o.record(report, StepAwaitSettled, domain.KindAgent, sup.name, sup.id, err)
	}
}

// deleteAgent removes an agent's aliases and then the agent itself.
func (o *Orchestrator) deleteAgent(ctx context.Context, report *Report, a foundAgent) {
	ref := agentRef(a.name, a.id)
	if err := o.awaitQuiet(ctx, ref); err != nil {
		o.record(report, StepAwaitSettled, domain.KindAgent, a.name, a.id, err)
	}

	aliases, err := o.cp.ListAliases(ctx, a.id)
	if err != nil {
		o.record(report, StepListAliases, domain.KindAgent, a.name, a.id, err)
	}
	for _, al := range aliases {
		if al.ID == domain.TestAliasID {
			continue
		}
		if al.Status.Transitional() {
			if err := o.awaitQuiet(ctx, aliasRef(al.Name, a.id, al.ID)); err != nil {
				o.record(report, StepAwaitSettled, domain.KindAlias, al.Name, al.ID, err)
			}
		}
		err := o.cp.DeleteAlias(ctx, a.id, al.ID)
		o.record(report, StepDeleteAlias, domain.KindAlias, al.Name, al.ID, err)
		if err == nil {
			o.publish(ctx, domain.EventAliasDeleted, domain.ResourcePayload{
				Kind: domain.KindAlias, Name: al.Name, ID: al.ID, ParentID: a.id, Step: StepDeleteAlias,
			})
		}
	}

	err = o.cp.DeleteAgent(ctx, a.id)
	o.record(report, StepDeleteAgent, domain.KindAgent, a.name, a.id, err)
	if err != nil {
		return
	}
	o.publish(ctx, domain.EventAgentDeleted, domain.ResourcePayload{
		Kind: domain.KindAgent, Name: a.name, ID: a.id, Step: StepDeleteAgent,
	})
	if o.awaitDeletion {
		err := o.poller.AwaitGone(ctx, ref)
		if err != nil {
			o.record(report, StepAwaitDeletion, domain.KindAgent, a.name, a.id, err)
		}
	}
}

func (o *Orchestrator) deleteGuardrail(ctx context.Context, report *Report, name string) {
	guardrails, err := o.cp.ListGuardrails(ctx)
	o.record(report, StepListGuardrails, domain.KindGuardrail, name, "", err)
	if err != nil {
		return
	}
	for _, g := range guardrails {
		if g.Name != name {
			continue
		}
		err := o.cp.DeleteGuardrail(ctx, g.ID)
		o.record(report, StepDeleteGuardrail, domain.KindGuardrail, name, g.ID, err)
		if err == nil {
			o.publish(ctx, domain.EventGuardrailDeleted, domain.ResourcePayload{
				Kind: domain.KindGuardrail, Name: name, ID: g.ID, Step: StepDeleteGuardrail,
			})
		}
		return
	}
	o.logger.Debug("guardrail not present", "kind", domain.KindGuardrail, "resource", name)
}

// record adds one attempt to the report and logs it.
func (o *Orchestrator) record(report *Report, step string, kind domain.ResourceKind, resource, id string, err error) {
	report.add(StepResult{Step: step, Kind: kind, Resource: resource, ID: id, Err: err})
	if err != nil {
		o.logFailure("teardown step failed", step, kind, resource, id, err)
		return
	}
	o.logStep("teardown step", step, kind, resource, id)
}
