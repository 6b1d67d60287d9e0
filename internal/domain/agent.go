package domain

import (
	"fmt"
	"strings"
)

// Status is the coarse lifecycle state shared by agents and aliases.
type Status string

const (
	StatusCreating    Status = "CREATING"
	StatusPreparing   Status = "PREPARING"
	StatusPrepared    Status = "PREPARED"
	StatusNotPrepared Status = "NOT_PREPARED"
	StatusUpdating    Status = "UPDATING"
	StatusVersioning  Status = "VERSIONING"
	StatusReady       Status = "READY"
	StatusFailed      Status = "FAILED"
	StatusDeleting    Status = "DELETING"
	StatusNotFound    Status = "NOT_FOUND"
)

// Transitional reports whether an asynchronous transition is still pending.
func (s Status) Transitional() bool {
	switch s {
	case StatusCreating, StatusPreparing, StatusUpdating, StatusVersioning, StatusDeleting:
		return true
	}
	return false
}

// Settled reports whether s is a terminal success state that permits the next mutation.
// NOT_PREPARED is the settled state of a freshly created or edited agent.
func (s Status) Settled() bool {
	switch s {
	case StatusPrepared, StatusNotPrepared, StatusReady:
		return true
	}
	return false
}

// Failed reports whether the remote gave up on the transition.
func (s Status) Failed() bool { return s == StatusFailed }

// Invocable reports whether a resource in this state can serve invocations.
func (s Status) Invocable() bool {
	return s == StatusPrepared || s == StatusReady
}

// CollaborationMode controls whether an agent delegates to collaborators.
type CollaborationMode string

const (
	CollaborationDisabled   CollaborationMode = "DISABLED"
	CollaborationSupervisor CollaborationMode = "SUPERVISOR"
)

// ResourceKind names the remote resource types the orchestrator manages.
type ResourceKind string

const (
	KindAgent        ResourceKind = "agent"
	KindAlias        ResourceKind = "alias"
	KindCollaborator ResourceKind = "collaborator"
	KindGuardrail    ResourceKind = "guardrail"
)

// TestAliasID is the built-in draft alias every agent owns. It can be invoked
// as soon as the agent is prepared and is never created or deleted explicitly.
const TestAliasID = "TSTALIASID"

// Agent is a remotely hosted, independently invocable conversational unit.
type Agent struct {
	ID            string
	Name          string
	Description   string
	Instruction   string
	Models        []string
	Collaboration CollaborationMode
	Status        Status
	ARN           string
	RoleARN       string
	TestAlias     Alias
}

// Alias is a stable pointer to one prepared version of an agent.
type Alias struct {
	ID      string
	Name    string
	AgentID string
	Status  Status
	ARN     string
}

// CollaborationLink binds a supervisor to one collaborator alias.
type CollaborationLink struct {
	ID              string
	AliasARN        string
	Instruction     string
	AssociationName string
	RelayHistory    bool
}

// Guardrail is an auxiliary content-safety policy removed during teardown.
type Guardrail struct {
	ID   string
	Name string
	ARN  string
}

// AgentSpec declares one agent of a hierarchy.
type AgentSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Instruction string   `yaml:"instruction" json:"instruction"`
	Models      []string `yaml:"models,omitempty" json:"models,omitempty"`
	AliasName   string   `yaml:"alias_name,omitempty" json:"alias_name,omitempty"`
}

// CollaboratorSpec declares a link from the supervisor to one leaf.
type CollaboratorSpec struct {
	Agent           string `yaml:"agent" json:"agent"`
	Instruction     string `yaml:"instruction" json:"instruction"`
	AssociationName string `yaml:"association_name,omitempty" json:"association_name,omitempty"`
	RelayHistory    bool   `yaml:"relay_history,omitempty" json:"relay_history,omitempty"`
}

// SupervisorSpec declares the root agent and its collaborators.
type SupervisorSpec struct {
	AgentSpec     `yaml:",inline"`
	Collaborators []CollaboratorSpec `yaml:"collaborators" json:"collaborators"`
}

// Hierarchy is a supervisor with its ordered leaf agents.
type Hierarchy struct {
	Name           string         `yaml:"name" json:"name"`
	RootTag        string         `yaml:"root_tag,omitempty" json:"root_tag,omitempty"`
	GuardrailName  string         `yaml:"guardrail_name,omitempty" json:"guardrail_name,omitempty"`
	PromptTemplate string         `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`
	Models         []string       `yaml:"models,omitempty" json:"models,omitempty"`
	Leaves         []AgentSpec    `yaml:"leaves" json:"leaves"`
	Supervisor     SupervisorSpec `yaml:"supervisor" json:"supervisor"`
}

// AliasNameFor returns the alias name used for a leaf, defaulting to "<name>-alias"
// with underscores replaced so the remote naming rules are met.
func AliasNameFor(spec AgentSpec) string {
	if spec.AliasName != "" {
		return spec.AliasName
	}
	return strings.ReplaceAll(spec.Name, "_", "-") + "-alias"
}

// ModelsFor returns the agent's models, falling back to the hierarchy default.
func (h Hierarchy) ModelsFor(spec AgentSpec) []string {
	if len(spec.Models) > 0 {
		return spec.Models
	}
	return h.Models
}

// Leaf returns the leaf spec with the given name.
func (h Hierarchy) Leaf(name string) (AgentSpec, bool) {
	for _, l := range h.Leaves {
		if l.Name == name {
			return l, true
		}
	}
	return AgentSpec{}, false
}

// AgentNames lists the supervisor first, then the leaves in declaration order.
func (h Hierarchy) AgentNames() []string {
	names := make([]string, 0, len(h.Leaves)+1)
	names = append(names, h.Supervisor.Name)
	for _, l := range h.Leaves {
		names = append(names, l.Name)
	}
	return names
}

// Validate checks the hierarchy for structural errors.
func (h Hierarchy) Validate() error {
	var problems []string
	if h.Name == "" {
		problems = append(problems, "hierarchy name is empty")
	}
	if h.Supervisor.Name == "" {
		problems = append(problems, "supervisor name is empty")
	}
	if len(h.ModelsFor(h.Supervisor.AgentSpec)) == 0 {
		problems = append(problems, fmt.Sprintf("supervisor %q has no models", h.Supervisor.Name))
	}

	seen := map[string]bool{h.Supervisor.Name: true}
	for i, l := range h.Leaves {
		if l.Name == "" {
			problems = append(problems, fmt.Sprintf("leaves[%d] name is empty", i))
			continue
		}
		if seen[l.Name] {
			problems = append(problems, fmt.Sprintf("duplicate agent name %q", l.Name))
		}
		seen[l.Name] = true
		if len(h.ModelsFor(l)) == 0 {
			problems = append(problems, fmt.Sprintf("leaf %q has no models", l.Name))
		}
	}

	linked := map[string]bool{}
	for i, c := range h.Supervisor.Collaborators {
		if _, ok := h.Leaf(c.Agent); !ok {
			problems = append(problems, fmt.Sprintf("collaborators[%d] references unknown leaf %q", i, c.Agent))
			continue
		}
		if linked[c.Agent] {
			problems = append(problems, fmt.Sprintf("leaf %q is linked twice", c.Agent))
		}
		linked[c.Agent] = true
	}

	if len(problems) > 0 {
		return NewDomainError("Hierarchy.Validate", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// TeardownPlan classifies the hierarchy's names for teardown. A name is a
// supervisor when it is the declared supervisor or contains the root tag.
func (h Hierarchy) TeardownPlan() TeardownPlan {
	plan := TeardownPlan{GuardrailName: h.GuardrailName}
	tag := strings.ToLower(h.RootTag)
	for _, name := range h.AgentNames() {
		if name == h.Supervisor.Name || (tag != "" && strings.Contains(strings.ToLower(name), tag)) {
			plan.Supervisors = append(plan.Supervisors, name)
			continue
		}
		plan.Leaves = append(plan.Leaves, name)
	}
	return plan
}

// TeardownPlan lists the agent names believed to exist, split by role.
type TeardownPlan struct {
	Supervisors   []string
	Leaves        []string
	GuardrailName string
}
