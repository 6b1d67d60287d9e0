package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

// Step names used in errors, reports, logs and audit records.
const (
	StepLookup               = "lookup"
	StepCreate               = "create"
	StepAwaitCreate          = "await_create"
	StepPrepare              = "prepare"
	StepAwaitPrepare         = "await_prepare"
	StepCreateAlias          = "create_alias"
	StepAwaitAlias           = "await_alias"
	StepAssociate            = "associate"
	StepAwaitLinks           = "await_links"
	StepAwaitSettled         = "await_settled"
	StepListCollaborators    = "list_collaborators"
	StepDisassociate         = "disassociate"
	StepDisableCollaboration = "disable_collaboration"
	StepListAliases          = "list_aliases"
	StepDeleteAlias          = "delete_alias"
	StepDeleteAgent          = "delete_agent"
	StepAwaitDeletion        = "await_deletion"
	StepListGuardrails       = "list_guardrails"
	StepDeleteGuardrail      = "delete_guardrail"
)

// StepError reports which step failed on which resource.
type StepError struct {
	Step     string
	Kind     domain.ResourceKind
	Resource string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Step, e.Kind, e.Resource, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepResult is the outcome of one teardown attempt.
type StepResult struct {
	Step     string
	Kind     domain.ResourceKind
	Resource string
	ID       string
	Err      error
}

// Report collects every teardown attempt in execution order.
type Report struct {
	Results []StepResult
}

func (r *Report) add(res StepResult) {
	r.Results = append(r.Results, res)
}

// Failures returns the attempts that failed.
func (r *Report) Failures() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Count returns how many attempts of step succeeded.
func (r *Report) Count(step string) int {
	n := 0
	for _, res := range r.Results {
		if res.Step == step && res.Err == nil {
			n++
		}
	}
	return n
}

// Err joins every failure into one error, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failures() {
		errs = append(errs, &StepError{Step: res.Step, Kind: res.Kind, Resource: res.Resource, Err: res.Err})
	}
	return errors.Join(errs...)
}

// Log writes a one-line summary of the report.
func (r *Report) Log(log *slog.Logger) {
	failures := r.Failures()
	log.Info("teardown finished",
		"agents_deleted", r.Count(StepDeleteAgent),
		"aliases_deleted", r.Count(StepDeleteAlias),
		"links_removed", r.Count(StepDisassociate),
		"guardrails_deleted", r.Count(StepDeleteGuardrail),
		"failures", len(failures),
	)
}
