package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/adapter/audit"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/logger"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/usecase/eventbus"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/usecase/lifecycle"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/usecase/session"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// app is the CLI with its process dependencies made injectable.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	newControlPlane func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (controlPlane, error)
	newDoctorClient func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (doctorClient, error)
}

func newApp() *app {
	return &app{
		stdin:           os.Stdin,
		stdout:          os.Stdout,
		stderr:          os.Stderr,
		getenv:          os.Getenv,
		newControlPlane: initControlPlane,
		newDoctorClient: initDoctorClient,
	}
}

// run executes the command line and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	opts, err := parseFlags(args, a.getenv, a.stderr)
	if err != nil {
		fmt.Fprintf(a.stderr, "crew: %v\n\nRun 'crew --help' for usage.\n", err)
		return exitUsage
	}
	if opts.Help {
		usage(a.stdout, opts.flagUsages)
		return exitOK
	}

	cfg, cfgErr := config.Load(opts.ConfigPath)
	if opts.Command == "doctor" {
		return a.runDoctor(ctx, opts, cfg, cfgErr)
	}
	if cfgErr != nil {
		fmt.Fprintf(a.stderr, "config: %v\n", cfgErr)
		return exitFailure
	}
	if err := applyOptions(cfg, opts); err != nil {
		fmt.Fprintf(a.stderr, "config: %v\n", err)
		return exitFailure
	}

	if err := a.runCrew(ctx, cfg, opts); err != nil {
		fmt.Fprintf(a.stderr, "crew: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// applyOptions overlays command-line choices on the loaded config.
func applyOptions(cfg *config.Config, opts *options) error {
	if opts.Hierarchy != "" {
		cfg.Hierarchy = opts.Hierarchy
	}
	if opts.TraceLevel != "" {
		level, err := session.ParseTraceLevel(opts.TraceLevel)
		if err != nil {
			return err
		}
		cfg.Invocation.TraceLevel = string(level)
	}
	return nil
}

func (a *app) runCrew(ctx context.Context, cfg *config.Config, opts *options) error {
	h, err := cfg.SelectedHierarchy()
	if err != nil {
		return err
	}
	if err := h.Validate(); err != nil {
		return fmt.Errorf("hierarchy %s: %w", h.Name, err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.WithoutCancel(ctx))

	bus := eventbus.New(log)
	defer bus.Close()

	if cfg.Audit.Enabled {
		closeAudit, err := a.initAudit(cfg.Audit, bus, log)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer closeAudit()
	}

	cp, err := a.newControlPlane(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("control plane: %w", err)
	}

	orch := lifecycle.NewOrchestrator(cp, cfg.Lifecycle, bus, log)

	if opts.CleanUp {
		report := orch.Teardown(ctx, h.TeardownPlan())
		report.Log(log)
		a.printReport(h.Name, report)
		return nil
	}

	var root session.Target
	var leaves []session.Target
	if opts.RecreateAgents {
		report := orch.Teardown(ctx, h.TeardownPlan())
		report.Log(log)
		if rerr := report.Err(); rerr != nil {
			log.Warn("cleanup before provisioning was incomplete", logger.Err(rerr))
		}
		fmt.Fprintf(a.stdout, "Provisioning hierarchy %s...\n", h.Name)
		prov, err := orch.Provision(ctx, h)
		if err != nil {
			return fmt.Errorf("provision %s: %w", h.Name, err)
		}
		root = session.Target{Name: prov.Supervisor.Name, AgentID: prov.Supervisor.ID, AliasID: cfg.Invocation.AliasID}
		for _, leaf := range prov.Leaves {
			leaves = append(leaves, session.Target{Name: leaf.Agent.Name, AgentID: leaf.Agent.ID, AliasID: leaf.Alias.ID})
		}
	} else {
		root, leaves, err = findExisting(ctx, orch.Registry(), h, cfg.Invocation.AliasID)
		if err != nil {
			return err
		}
	}

	renderer, err := session.NewRenderer(a.stdout, cfg.Invocation.Render, session.TraceLevel(cfg.Invocation.TraceLevel))
	if err != nil {
		return err
	}
	sess := session.New(cp, cp, cfg.Invocation.Breaker, renderer, bus, log)
	log.Info("session started", "session", sess.ID(), "hierarchy", h.Name, "supervisor", root.Name)

	if h.PromptTemplate != "" {
		prompt, err := session.RenderPrompt(h.PromptTemplate, session.PromptData{Ticker: opts.Ticker})
		if err != nil {
			return err
		}
		renderer.Notice("Prompt: " + prompt)
		answer, err := sess.Invoke(ctx, root, prompt)
		if err != nil {
			renderer.Error(root.Name, err)
		} else {
			renderer.Answer(root.Name, answer)
		}
	}

	return session.NewLoop(sess, renderer, a.stdin, root, leaves...).Run(ctx)
}

// findExisting resolves a previously provisioned hierarchy by name. Leaves
// without their alias are left out of prefix routing.
func findExisting(ctx context.Context, reg *lifecycle.Registry, h domain.Hierarchy, aliasID string) (session.Target, []session.Target, error) {
	supID, found, err := reg.FindAgentID(ctx, h.Supervisor.Name)
	if err != nil {
		return session.Target{}, nil, err
	}
	if !found {
		return session.Target{}, nil, domain.NewDomainError("crew.findExisting", domain.ErrNotFound,
			fmt.Sprintf("supervisor %s does not exist; run with --recreate_agents true", h.Supervisor.Name))
	}
	root := session.Target{Name: h.Supervisor.Name, AgentID: supID, AliasID: aliasID}

	var leaves []session.Target
	for _, spec := range h.Leaves {
		id, ok, err := reg.FindAgentID(ctx, spec.Name)
		if err != nil {
			return session.Target{}, nil, err
		}
		if !ok {
			continue
		}
		al, ok, err := reg.FindAlias(ctx, id, domain.AliasNameFor(spec))
		if err != nil {
			return session.Target{}, nil, err
		}
		if ok {
			leaves = append(leaves, session.Target{Name: spec.Name, AgentID: id, AliasID: al.ID})
		}
	}
	return root, leaves, nil
}

// initAudit reports what earlier runs left behind, then records this run's events.
func (a *app) initAudit(cfg config.AuditConfig, bus domain.EventBus, log *slog.Logger) (func(), error) {
	if f, err := os.Open(cfg.Path); err == nil {
		events, rerr := audit.ReadAll(f)
		f.Close()
		if rerr != nil {
			log.Warn("unreadable audit trail", "path", cfg.Path, "error", rerr)
		}
		for _, e := range audit.Outstanding(events) {
			log.Info("resource left by an earlier run",
				"kind", e.Detail["kind"], "resource", e.Resource, "id", e.Detail["id"])
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn("cannot open audit trail", "path", cfg.Path, "error", err)
	}

	sink, err := audit.NewFileAuditLogger(cfg.Path)
	if err != nil {
		return nil, err
	}
	audit.Subscribe(bus, sink, log)
	// Closing the bus drains queued events into the trail.
	return func() {
		bus.Close()
		if err := sink.Close(); err != nil {
			log.Warn("close audit trail", "error", err)
		}
	}, nil
}

func (a *app) printReport(hierarchy string, report *lifecycle.Report) {
	fmt.Fprintf(a.stdout, "Cleanup of %s finished: %d agents, %d aliases, %d links, %d guardrails deleted.\n",
		hierarchy,
		report.Count(lifecycle.StepDeleteAgent),
		report.Count(lifecycle.StepDeleteAlias),
		report.Count(lifecycle.StepDisassociate),
		report.Count(lifecycle.StepDeleteGuardrail))
	for _, f := range report.Failures() {
		fmt.Fprintf(a.stdout, "  failed: %s %s %s: %v\n", f.Step, f.Kind, f.Resource, f.Err)
	}
}
