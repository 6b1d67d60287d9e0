package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/logger"
)

// doctorTimeout bounds each remote check.
const doctorTimeout = 15 * time.Second

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(ctx context.Context) CheckResult
}

// runDoctor executes the health checks and reports results.
func (a *app) runDoctor(ctx context.Context, opts *options, cfg *config.Config, cfgErr error) int {
	checks := []Check{{Name: "Config file", Fn: checkConfigFile(opts.ConfigPath, cfgErr)}}
	if cfgErr == nil {
		if err := applyOptions(cfg, opts); err != nil {
			cfgErr = err
			checks[0].Fn = checkConfigFile(opts.ConfigPath, err)
		}
	}
	if cfgErr == nil {
		checks = append(checks, a.configuredChecks(ctx, cfg)...)
	}

	w := a.stdout
	fmt.Fprintln(w, "crew doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(ctx)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before provisioning.")
		return exitFailure
	}
	if warn > 0 {
		fmt.Fprintln(w, "\ncrew should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed! crew is ready to run.")
	}
	return exitOK
}

// configuredChecks are the checks that need a loaded config.
func (a *app) configuredChecks(ctx context.Context, cfg *config.Config) []Check {
	checks := []Check{
		{Name: "Hierarchy", Fn: func(context.Context) CheckResult { return checkHierarchy(cfg) }},
		{Name: "Agent role", Fn: func(context.Context) CheckResult { return checkRoleARN(cfg) }},
	}
	if cfg.ControlPlane == config.ControlPlaneFake {
		return append(checks, Check{Name: "Control plane", Fn: func(context.Context) CheckResult {
			return CheckResult{
				Status:  StatusWarn,
				Message: "control_plane is fake; nothing is created remotely and AWS checks are skipped",
				Fix:     "Set control_plane: bedrock to provision real agents",
			}
		}})
	}

	client, err := a.newDoctorClient(ctx, cfg, logger.Discard())
	if err != nil {
		return append(checks, Check{Name: "AWS credentials", Fn: func(context.Context) CheckResult {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot load AWS configuration: %v", err),
				Fix:     "Configure credentials with 'aws configure' or set aws.profile",
			}
		}})
	}
	return append(checks,
		Check{Name: "AWS credentials", Fn: func(ctx context.Context) CheckResult { return checkCredentials(ctx, client, cfg) }},
		Check{Name: "Control plane", Fn: func(ctx context.Context) CheckResult { return checkReachability(ctx, client, cfg) }},
		Check{Name: "Model access", Fn: func(ctx context.Context) CheckResult { return checkModels(ctx, client, cfg) }},
	)
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile verifies the config file exists and loads. A missing file
// is a warning because the defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(context.Context) CheckResult {
	return func(context.Context) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check %s against the documented sections", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("config file not found at %s; using defaults", cfgPath),
				Fix:     "Create crew.yaml or pass --config",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkHierarchy(cfg *config.Config) CheckResult {
	h, err := cfg.SelectedHierarchy()
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Pick one with --hierarchy"}
	}
	if err := h.Validate(); err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("hierarchy %s is invalid: %v", h.Name, err)}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: %d collaborators under %s", h.Name, len(h.Leaves), h.Supervisor.Name),
	}
}

func checkRoleARN(cfg *config.Config) CheckResult {
	if cfg.ControlPlane == config.ControlPlaneFake {
		return CheckResult{Status: StatusPass, Message: "not needed by the fake control plane"}
	}
	if cfg.AWS.AgentRoleARN == "" {
		return CheckResult{
			Status:  StatusFail,
			Message: "no agent execution role configured",
			Fix:     "Set aws.agent_role_arn or CREW_AGENT_ROLE_ARN to a role Bedrock agents can assume",
		}
	}
	return CheckResult{Status: StatusPass, Message: cfg.AWS.AgentRoleARN}
}

func checkCredentials(ctx context.Context, client doctorClient, cfg *config.Config) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	if err := client.CheckCredentials(ctx); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no usable credentials: %v", err),
			Fix:     "Run 'aws configure' or 'aws sso login', or set aws.profile",
		}
	}
	return CheckResult{Status: StatusPass, Message: "credentials resolved for region " + cfg.AWS.Region}
}

func checkReachability(ctx context.Context, client doctorClient, cfg *config.Config) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	agents, err := client.ListAgents(ctx)
	if err != nil {
		res := CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot list agents: %v", err)}
		if errors.Is(err, domain.ErrAuthInvalid) {
			res.Fix = "Grant bedrock:ListAgents to the calling identity"
		}
		return res
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d agents visible in %s", len(agents), cfg.AWS.Region),
	}
}

// checkModels probes the selected hierarchy's models. One reachable model is
// enough because agents use the first model of the list.
func checkModels(ctx context.Context, client doctorClient, cfg *config.Config) CheckResult {
	h, err := cfg.SelectedHierarchy()
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	if len(h.Models) == 0 {
		return CheckResult{Status: StatusFail, Message: "hierarchy lists no models"}
	}

	var unreachable []string
	for _, model := range h.Models {
		pctx, cancel := context.WithTimeout(ctx, doctorTimeout)
		err := client.ProbeModel(pctx, model)
		cancel()
		if err != nil {
			unreachable = append(unreachable, fmt.Sprintf("%s (%s)", model, domain.ErrorCodeOf(err)))
		}
	}
	switch {
	case len(unreachable) == 0:
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d models answer", len(h.Models))}
	case len(unreachable) < len(h.Models):
		return CheckResult{
			Status:  StatusWarn,
			Message: "unreachable: " + strings.Join(unreachable, ", "),
			Fix:     "Request model access in the Bedrock console",
		}
	}
	return CheckResult{
		Status:  StatusFail,
		Message: "no model answers: " + strings.Join(unreachable, ", "),
		Fix:     "Request model access in the Bedrock console for region " + cfg.AWS.Region,
	}
}
