// Package fake provides an in-memory agent-hosting control plane. It enforces
// the dependency rules of the real service and records every violation, so it
// serves both offline dry runs and orchestrator tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

const arnPrefix = "arn:aws:bedrock:local:000000000000"

type aliasState struct {
	alias     domain.Alias
	target    domain.Status
	remaining int
}

type agentState struct {
	agent     domain.Agent
	target    domain.Status
	remaining int
	aliases   []*aliasState
	links     []domain.CollaborationLink
}

// ControlPlane is an in-memory implementation of domain.ControlPlane and domain.Invoker.
type ControlPlane struct {
	mu sync.Mutex

	// pollsToSettle is the number of status reads that still observe a
	// transitional status after a mutation. Zero settles immediately.
	pollsToSettle int

	agents     []*agentState
	guardrails []domain.Guardrail
	nextID     int

	calls      map[string]int
	failures   map[string]error
	settleAs   map[string]domain.Status
	stalled    map[string]bool
	violations []string

	responder   func(agent domain.Agent, req domain.InvokeRequest) (string, error)
	traces      []domain.TraceEvent
	invocations []domain.InvokeRequest
}

// Option configures a ControlPlane.
type Option func(*ControlPlane)

// WithPollsToSettle sets how many polls observe a transitional status.
func WithPollsToSettle(n int) Option {
	return func(c *ControlPlane) { c.pollsToSettle = n }
}

// WithGuardrail seeds a guardrail.
func WithGuardrail(name string) Option {
	return func(c *ControlPlane) {
		c.nextID++
		id := fmt.Sprintf("G%09d", c.nextID)
		c.guardrails = append(c.guardrails, domain.Guardrail{ID: id, Name: name, ARN: arnPrefix + ":guardrail/" + id})
	}
}

// WithResponder sets the function producing invocation answers.
func WithResponder(fn func(agent domain.Agent, req domain.InvokeRequest) (string, error)) Option {
	return func(c *ControlPlane) { c.responder = fn }
}

// WithTraces sets the trace events reported on every traced invocation.
func WithTraces(events ...domain.TraceEvent) Option {
	return func(c *ControlPlane) { c.traces = events }
}

// New creates an empty control plane.
func New(opts ...Option) *ControlPlane {
	c := &ControlPlane{
		calls:    make(map[string]int),
		failures: make(map[string]error),
		settleAs: make(map[string]domain.Status),
		stalled:  make(map[string]bool),
		responder: func(agent domain.Agent, req domain.InvokeRequest) (string, error) {
			return fmt.Sprintf("%s received: %s", agent.Name, req.Text), nil
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fail makes every subsequent call of op return err until cleared with a nil err.
func (c *ControlPlane) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// SettleAs makes the named agent settle to status instead of PREPARED when prepared.
func (c *ControlPlane) SettleAs(agentName string, status domain.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleAs[agentName] = status
}

// Stall keeps the named agent transitional forever.
func (c *ControlPlane) Stall(agentName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalled[agentName] = true
}

// Calls returns how many times op was called, including failed calls.
func (c *ControlPlane) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// MutatingCalls returns the number of create, update, prepare, associate and delete calls.
func (c *ControlPlane) MutatingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, op := range []string{"CreateAgent", "UpdateAgentCollaboration", "PrepareAgent", "DeleteAgent",
		"CreateAlias", "DeleteAlias", "AssociateCollaborator", "DisassociateCollaborator", "DeleteGuardrail"} {
		n += c.calls[op]
	}
	return n
}

// DeleteCalls returns the number of delete and disassociate calls.
func (c *ControlPlane) DeleteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls["DeleteAgent"] + c.calls["DeleteAlias"] + c.calls["DisassociateCollaborator"] + c.calls["DeleteGuardrail"]
}

// Violations lists every rejected out-of-order request.
func (c *ControlPlane) Violations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.violations...)
}

// Invocations lists every accepted invocation.
func (c *ControlPlane) Invocations() []domain.InvokeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.InvokeRequest(nil), c.invocations...)
}

// AgentCount returns the number of agents, including those still deleting.
func (c *ControlPlane) AgentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.agents)
}

// Snapshot returns the agent with the given name, its aliases and links, settling nothing.
func (c *ControlPlane) Snapshot(name string) (domain.Agent, []domain.Alias, []domain.CollaborationLink, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.agents {
		if a.agent.Name == name {
			aliases := make([]domain.Alias, 0, len(a.aliases))
			for _, al := range a.aliases {
				aliases = append(aliases, al.alias)
			}
			return a.agent, aliases, append([]domain.CollaborationLink(nil), a.links...), true
		}
	}
	return domain.Agent{}, nil, nil, false
}

// Guardrails returns the remaining guardrails.
func (c *ControlPlane) Guardrails() []domain.Guardrail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Guardrail(nil), c.guardrails...)
}

// begin counts a call and returns an injected failure, if any. Callers hold mu.
func (c *ControlPlane) begin(op string) error {
	c.calls[op]++
	if err, ok := c.failures[op]; ok {
		return domain.WrapOp("fake."+op, err)
	}
	return nil
}

func (c *ControlPlane) violate(op, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	c.violations = append(c.violations, op+": "+msg)
	return domain.NewDomainError("fake."+op, domain.ErrOrderViolation, msg)
}

func (c *ControlPlane) newID(prefix string) string {
	c.nextID++
	return fmt.Sprintf("%s%09d", prefix, c.nextID)
}

func (c *ControlPlane) find(agentID string) (*agentState, int) {
	for i, a := range c.agents {
		if a.agent.ID == agentID {
			return a, i
		}
	}
	return nil, -1
}

func (c *ControlPlane) agentOrErr(op, agentID string) (*agentState, error) {
	a, _ := c.find(agentID)
	if a == nil {
		return nil, domain.NewDomainError("fake."+op, domain.ErrNotFound, "agent "+agentID)
	}
	return a, nil
}

// transition starts an asynchronous change of a's status.
func (c *ControlPlane) transition(a *agentState, via, target domain.Status) {
	if s, ok := c.settleAs[a.agent.Name]; ok && target == domain.StatusPrepared {
		target = s
	}
	a.target = target
	if c.pollsToSettle == 0 && !c.stalled[a.agent.Name] {
		c.settle(a)
		return
	}
	a.agent.Status = via
	a.agent.TestAlias.Status = domain.StatusNotPrepared
	a.remaining = c.pollsToSettle
}

func (c *ControlPlane) settle(a *agentState) {
	if a.target == domain.StatusNotFound {
		_, i := c.find(a.agent.ID)
		if i >= 0 {
			c.agents = append(c.agents[:i], c.agents[i+1:]...)
		}
		return
	}
	a.agent.Status = a.target
	a.agent.TestAlias.Status = testAliasStatus(a.agent.Status)
}

// observe advances a's pending transition by one poll.
func (c *ControlPlane) observe(a *agentState) {
	if !a.agent.Status.Transitional() || c.stalled[a.agent.Name] {
		return
	}
	if a.remaining > 0 {
		a.remaining--
		return
	}
	c.settle(a)
}

func testAliasStatus(agent domain.Status) domain.Status {
	if agent.Invocable() {
		return domain.StatusPrepared
	}
	return domain.StatusNotPrepared
}

func (c *ControlPlane) aliasByARN(arn string) (*agentState, *aliasState) {
	for _, a := range c.agents {
		for _, al := range a.aliases {
			if al.alias.ARN == arn {
				return a, al
			}
		}
	}
	return nil, nil
}

func (c *ControlPlane) linkTargets(arn string) (string, bool) {
	for _, a := range c.agents {
		for _, l := range a.links {
			if l.AliasARN == arn {
				return a.agent.Name, true
			}
		}
	}
	return "", false
}

func (c *ControlPlane) CreateAgent(_ context.Context, in domain.CreateAgentInput) (*domain.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("CreateAgent"); err != nil {
		return nil, err
	}
	if in.Name == "" || len(in.Models) == 0 {
		return nil, domain.NewDomainError("fake.CreateAgent", domain.ErrInvalidInput, "name and model are required")
	}
	for _, a := range c.agents {
		if a.agent.Name == in.Name {
			return nil, domain.NewDomainError("fake.CreateAgent", domain.ErrConflict, "agent name "+in.Name+" already exists")
		}
	}

	id := c.newID("A")
	mode := in.Collaboration
	if mode == "" {
		mode = domain.CollaborationDisabled
	}
	a := &agentState{agent: domain.Agent{
		ID:            id,
		Name:          in.Name,
		Description:   in.Description,
		Instruction:   in.Instruction,
		Models:        append([]string(nil), in.Models...),
		Collaboration: mode,
		ARN:           arnPrefix + ":agent/" + id,
		TestAlias: domain.Alias{
			ID:      domain.TestAliasID,
			Name:    "AgentTestAlias",
			AgentID: id,
			Status:  domain.StatusNotPrepared,
			ARN:     arnPrefix + ":agent-alias/" + id + "/" + domain.TestAliasID,
		},
	}}
	c.agents = append(c.agents, a)
	c.transition(a, domain.StatusCreating, domain.StatusNotPrepared)
	out := a.agent
	return &out, nil
}

func (c *ControlPlane) GetAgent(_ context.Context, agentID string) (*domain.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetAgent"); err != nil {
		return nil, err
	}
	a, err := c.agentOrErr("GetAgent", agentID)
	if err != nil {
		return nil, err
	}
	c.observe(a)
	if a2, _ := c.find(agentID); a2 == nil {
		return nil, domain.NewDomainError("fake.GetAgent", domain.ErrNotFound, "agent "+agentID)
	}
	out := a.agent
	return &out, nil
}

func (c *ControlPlane) UpdateAgentCollaboration(_ context.Context, agentID string, mode domain.CollaborationMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("UpdateAgentCollaboration"); err != nil {
		return err
	}
	a, err := c.agentOrErr("UpdateAgentCollaboration", agentID)
	if err != nil {
		return err
	}
	if a.agent.Status.Transitional() {
		return c.violate("UpdateAgentCollaboration", "agent %s is %s", a.agent.Name, a.agent.Status)
	}
	a.agent.Collaboration = mode
	c.transition(a, domain.StatusUpdating, domain.StatusNotPrepared)
	return nil
}

func (c *ControlPlane) PrepareAgent(_ context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("PrepareAgent"); err != nil {
		return err
	}
	a, err := c.agentOrErr("PrepareAgent", agentID)
	if err != nil {
		return err
	}
	if a.agent.Status.Transitional() {
		return c.violate("PrepareAgent", "agent %s is %s", a.agent.Name, a.agent.Status)
	}
	if a.agent.Collaboration == domain.CollaborationSupervisor && len(a.links) == 0 {
		return c.violate("PrepareAgent", "supervisor %s has no collaborators", a.agent.Name)
	}
	for _, l := range a.links {
		owner, al := c.aliasByARN(l.AliasARN)
		if al == nil {
			return c.violate("PrepareAgent", "supervisor %s links missing alias %s", a.agent.Name, l.AliasARN)
		}
		if al.alias.Status != domain.StatusPrepared || owner.agent.Status != domain.StatusPrepared {
			return c.violate("PrepareAgent", "supervisor %s links alias %s that is %s", a.agent.Name, al.alias.Name, al.alias.Status)
		}
	}
	c.transition(a, domain.StatusPreparing, domain.StatusPrepared)
	return nil
}

func (c *ControlPlane) DeleteAgent(_ context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("DeleteAgent"); err != nil {
		return err
	}
	a, err := c.agentOrErr("DeleteAgent", agentID)
	if err != nil {
		return err
	}
	if a.agent.Status == domain.StatusDeleting {
		return nil
	}
	if a.agent.Status.Transitional() {
		return c.violate("DeleteAgent", "agent %s is %s", a.agent.Name, a.agent.Status)
	}
	if len(a.aliases) > 0 {
		return c.violate("DeleteAgent", "agent %s still has %d aliases", a.agent.Name, len(a.aliases))
	}
	if len(a.links) > 0 {
		return c.violate("DeleteAgent", "agent %s still has %d collaborators", a.agent.Name, len(a.links))
	}
	delete(c.settleAs, a.agent.Name)
	delete(c.stalled, a.agent.Name)
	c.transition(a, domain.StatusDeleting, domain.StatusNotFound)
	return nil
}

func (c *ControlPlane) ListAgents(_ context.Context) ([]domain.AgentSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListAgents"); err != nil {
		return nil, err
	}
	out := make([]domain.AgentSummary, 0, len(c.agents))
	for _, a := range c.agents {
		out = append(out, domain.AgentSummary{ID: a.agent.ID, Name: a.agent.Name, Status: a.agent.Status})
	}
	return out, nil
}

func (c *ControlPlane) CreateAlias(_ context.Context, agentID, aliasName string) (*domain.Alias, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("CreateAlias"); err != nil {
		return nil, err
	}
	a, err := c.agentOrErr("CreateAlias", agentID)
	if err != nil {
		return nil, err
	}
	if a.agent.Status != domain.StatusPrepared {
		return nil, c.violate("CreateAlias", "agent %s is %s, not PREPARED", a.agent.Name, a.agent.Status)
	}
	for _, al := range a.aliases {
		if al.alias.Name == aliasName {
			return nil, domain.NewDomainError("fake.CreateAlias", domain.ErrConflict, "alias "+aliasName+" already exists")
		}
	}
	id := c.newID("L")
	al := &aliasState{
		alias: domain.Alias{
			ID:      id,
			Name:    aliasName,
			AgentID: agentID,
			ARN:     arnPrefix + ":agent-alias/" + agentID + "/" + id,
		},
		target: domain.StatusPrepared,
	}
	if c.pollsToSettle == 0 {
		al.alias.Status = domain.StatusPrepared
	} else {
		al.alias.Status = domain.StatusCreating
		al.remaining = c.pollsToSettle
	}
	a.aliases = append(a.aliases, al)
	out := al.alias
	return &out, nil
}

func (c *ControlPlane) GetAlias(_ context.Context, agentID, aliasID string) (*domain.Alias, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetAlias"); err != nil {
		return nil, err
	}
	a, err := c.agentOrErr("GetAlias", agentID)
	if err != nil {
		return nil, err
	}
	if aliasID == domain.TestAliasID {
		out := a.agent.TestAlias
		return &out, nil
	}
	for _, al := range a.aliases {
		if al.alias.ID != aliasID {
			continue
		}
		if al.alias.Status.Transitional() {
			if al.remaining > 0 {
				al.remaining--
			} else {
				al.alias.Status = al.target
			}
		}
		out := al.alias
		return &out, nil
	}
	return nil, domain.NewDomainError("fake.GetAlias", domain.ErrNotFound, "alias "+aliasID)
}

func (c *ControlPlane) ListAliases(_ context.Context, agentID string) ([]domain.Alias, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListAliases"); err != nil {
		return nil, err
	}
	a, err := c.agentOrErr("ListAliases", agentID)
	if err != nil {
		return nil, err
	}
	out := []domain.Alias{a.agent.TestAlias}
	for _, al := range a.aliases {
		out = append(out, al.alias)
	}
	return out, nil
}

func (c *ControlPlane) DeleteAlias(_ context.Context, agentID, aliasID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("DeleteAlias"); err != nil {
		return err
	}
	a, err := c.agentOrErr("DeleteAlias", agentID)
	if err != nil {
		return err
	}
	if aliasID == domain.TestAliasID {
		return c.violate("DeleteAlias", "the test alias of %s cannot be deleted", a.agent.Name)
	}
	for i, al := range a.aliases {
		if al.alias.ID != aliasID {
			continue
		}
		if sup, ok := c.linkTargets(al.alias.ARN); ok {
			return c.violate("DeleteAlias", "alias %s is still linked from %s", al.alias.Name, sup)
		}
		if al.alias.Status == domain.StatusCreating || al.alias.Status == domain.StatusUpdating {
			return c.violate("DeleteAlias", "alias %s is %s", al.alias.Name, al.alias.Status)
		}
		a.aliases = append(a.aliases[:i], a.aliases[i+1:]...)
		return nil
	}
	return domain.NewDomainError("fake.DeleteAlias", domain.ErrNotFound, "alias "+aliasID)
}

func (c *ControlPlane) AssociateCollaborator(_ context.Context, agentID string, link domain.CollaborationLink) (*domain.CollaborationLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("AssociateCollaborator"); err != nil {
		return nil, err
	}
	a, err := c.agentOrErr("AssociateCollaborator", agentID)
	if err != nil {
		return nil, err
	}
	if a.agent.Collaboration != domain.CollaborationSupervisor {
		return nil, c.violate("AssociateCollaborator", "agent %s is not a supervisor", a.agent.Name)
	}
	if a.agent.Status.Transitional() {
		return nil, c.violate("AssociateCollaborator", "agent %s is %s", a.agent.Name, a.agent.Status)
	}
	if _, al := c.aliasByARN(link.AliasARN); al == nil {
		return nil, c.violate("AssociateCollaborator", "alias %s does not exist", link.AliasARN)
	}
	for _, l := range a.links {
		if l.AssociationName == link.AssociationName {
			return nil, domain.NewDomainError("fake.AssociateCollaborator", domain.ErrConflict,
				"collaborator "+link.AssociationName+" already associated")
		}
	}
	link.ID = c.newID("C")
	a.links = append(a.links, link)
	a.agent.Status = domain.StatusNotPrepared
	a.agent.TestAlias.Status = domain.StatusNotPrepared
	out := link
	return &out, nil
}

func (c *ControlPlane) ListCollaborators(_ context.Context, agentID string) ([]domain.CollaborationLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListCollaborators"); err != nil {
		return nil, err
	}
	a, err := c.agentOrErr("ListCollaborators", agentID)
	if err != nil {
		return nil, err
	}
	return append([]domain.CollaborationLink(nil), a.links...), nil
}

func (c *ControlPlane) DisassociateCollaborator(_ context.Context, agentID, collaboratorID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("DisassociateCollaborator"); err != nil {
		return err
	}
	a, err := c.agentOrErr("DisassociateCollaborator", agentID)
	if err != nil {
		return err
	}
	if a.agent.Status.Transitional() {
		return c.violate("DisassociateCollaborator", "agent %s is %s", a.agent.Name, a.agent.Status)
	}
	for i, l := range a.links {
		if l.ID == collaboratorID {
			a.links = append(a.links[:i], a.links[i+1:]...)
			a.agent.Status = domain.StatusNotPrepared
			a.agent.TestAlias.Status = domain.StatusNotPrepared
			return nil
		}
	}
	return domain.NewDomainError("fake.DisassociateCollaborator", domain.ErrNotFound, "collaborator "+collaboratorID)
}

func (c *ControlPlane) ListGuardrails(_ context.Context) ([]domain.Guardrail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListGuardrails"); err != nil {
		return nil, err
	}
	out := append([]domain.Guardrail(nil), c.guardrails...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *ControlPlane) DeleteGuardrail(_ context.Context, guardrailID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("DeleteGuardrail"); err != nil {
		return err
	}
	for i, g := range c.guardrails {
		if g.ID == guardrailID {
			c.guardrails = append(c.guardrails[:i], c.guardrails[i+1:]...)
			return nil
		}
	}
	return domain.NewDomainError("fake.DeleteGuardrail", domain.ErrNotFound, "guardrail "+guardrailID)
}

// InvokeAgent answers with the configured responder once the target is invocable.
func (c *ControlPlane) InvokeAgent(_ context.Context, req domain.InvokeRequest) (*domain.InvokeResponse, error) {
	c.mu.Lock()
	if err := c.begin("InvokeAgent"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	a, err := c.agentOrErr("InvokeAgent", req.AgentID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	ready := false
	if req.AliasID == domain.TestAliasID {
		ready = a.agent.Status == domain.StatusPrepared
	} else {
		for _, al := range a.aliases {
			if al.alias.ID == req.AliasID {
				ready = al.alias.Status.Invocable()
			}
		}
	}
	if !ready {
		c.mu.Unlock()
		return nil, domain.NewDomainError("fake.InvokeAgent", domain.ErrConflict,
			fmt.Sprintf("agent %s alias %s is not prepared", a.agent.Name, req.AliasID))
	}
	c.invocations = append(c.invocations, req)
	agent := a.agent
	traces := c.traces
	responder := c.responder
	c.mu.Unlock()

	if req.Trace && req.OnTrace != nil {
		for _, ev := range traces {
			if ev.Agent == "" {
				ev.Agent = agent.Name
			}
			req.OnTrace(ev)
		}
	}
	text, err := responder(agent, req)
	if err != nil {
		return nil, err
	}
	return &domain.InvokeResponse{Text: text}, nil
}

var (
	_ domain.ControlPlane = (*ControlPlane)(nil)
	_ domain.Invoker      = (*ControlPlane)(nil)
)
