package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateControlPlaneInvalid(t *testing.T) {
	cfg := Defaults()
	cfg.ControlPlane = "mainframe"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `control_plane "mainframe" is invalid`)
}

func TestValidateBedrockRequiresRegion(t *testing.T) {
	cfg := Defaults()
	cfg.AWS.Region = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "aws.region is required")

	cfg.ControlPlane = ControlPlaneFake
	if err := Validate(cfg); err != nil {
		t.Errorf("fake control plane should not need a region: %v", err)
	}
}

func TestValidateRoleARNFormat(t *testing.T) {
	cfg := Defaults()
	cfg.AWS.AgentRoleARN = "crew-agents"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "is not an ARN")
}

func TestValidateIdleSessionTTLRange(t *testing.T) {
	cfg := Defaults()
	cfg.AWS.IdleSessionTTL = 30
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "aws.idle_session_ttl")
}

func TestValidateThrottleBurst(t *testing.T) {
	cfg := Defaults()
	cfg.AWS.Burst = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "aws.burst must be > 0")

	cfg.AWS.CallsPerSecond = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("burst is irrelevant without throttling: %v", err)
	}
}

func TestValidateLifecycle(t *testing.T) {
	cfg := Defaults()
	cfg.Lifecycle.MaxPolls = 0
	cfg.Lifecycle.PollInterval = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "lifecycle.max_polls must be > 0")
	assertContains(t, err.Error(), "lifecycle.poll_interval must be >= 0")
}

func TestValidateInvocation(t *testing.T) {
	cfg := Defaults()
	cfg.Invocation.AliasID = ""
	cfg.Invocation.TraceLevel = "verbose"
	cfg.Invocation.Render = "html"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "invocation.alias_id must not be empty")
	assertContains(t, err.Error(), `invocation.trace_level "verbose" is invalid`)
	assertContains(t, err.Error(), `invocation.render "html" is invalid`)
}

func TestValidateUnknownHierarchy(t *testing.T) {
	cfg := Defaults()
	cfg.Hierarchy = "ghost"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `hierarchy "ghost"`)
}

func TestValidateDuplicateHierarchy(t *testing.T) {
	cfg := Defaults()
	h, _ := Preset("joke")
	cfg.Hierarchies = []domain.Hierarchy{h, h}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `duplicate hierarchy name "joke"`)
}

func TestValidateBrokenCustomHierarchy(t *testing.T) {
	cfg := Defaults()
	h, _ := Preset("joke")
	h.Supervisor.Collaborators = append(h.Supervisor.Collaborators, domain.CollaboratorSpec{Agent: "ghost"})
	cfg.Hierarchies = []domain.Hierarchy{h}
	cfg.Hierarchy = "joke"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `unknown leaf "ghost"`)
	if n := strings.Count(err.Error(), "ghost"); n != 1 {
		t.Errorf("selected custom hierarchy reported %d times, want once", n)
	}
}

func TestValidateLoggerFormat(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Format = "xml"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `logger.format "xml" is invalid`)
}

func TestValidateTracerExporter(t *testing.T) {
	cfg := Defaults()
	cfg.Tracer.Exporter = "jaeger"
	if err := Validate(cfg); err != nil {
		t.Errorf("exporter ignored while tracing disabled: %v", err)
	}
	cfg.Tracer.Enabled = true
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `tracer.exporter "jaeger" is invalid`)
}

func TestValidateAuditMissingPath(t *testing.T) {
	cfg := Defaults()
	cfg.Audit.Enabled = true
	cfg.Audit.Path = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "audit.path is required")
}

func TestValidateMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.ControlPlane = ""
	cfg.Lifecycle.MaxPolls = 0
	cfg.Logger.Format = ""
	err := Validate(cfg)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) < 3 {
		t.Errorf("expected at least 3 errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidationErrorFormat(t *testing.T) {
	ve := &ValidationError{}
	ve.Add("first %d", 1)
	ve.Add("second")
	want := "config validation failed:\n  - first 1\n  - second"
	if ve.Error() != want {
		t.Errorf("got %q, want %q", ve.Error(), want)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
