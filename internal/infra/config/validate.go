package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for semantic correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAWS(cfg, ve)
	validateLifecycle(cfg, ve)
	validateInvocation(cfg, ve)
	validateHierarchies(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateAudit(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAWS(cfg *Config, ve *ValidationError) {
	if cfg.ControlPlane != ControlPlaneBedrock && cfg.ControlPlane != ControlPlaneFake {
		ve.Add("control_plane %q is invalid (want: bedrock, fake)", cfg.ControlPlane)
	}
	if cfg.ControlPlane == ControlPlaneBedrock && cfg.AWS.Region == "" {
		ve.Add("aws.region is required when control_plane is bedrock")
	}
	if arn := cfg.AWS.AgentRoleARN; arn != "" && !strings.HasPrefix(arn, "arn:") {
		ve.Add("aws.agent_role_arn %q is not an ARN", arn)
	}
	if cfg.AWS.IdleSessionTTL < 60 || cfg.AWS.IdleSessionTTL > 3600 {
		ve.Add("aws.idle_session_ttl must be between 60 and 3600 seconds")
	}
	if cfg.AWS.CallsPerSecond < 0 {
		ve.Add("aws.calls_per_second must be >= 0")
	}
	if cfg.AWS.CallsPerSecond > 0 && cfg.AWS.Burst <= 0 {
		ve.Add("aws.burst must be > 0 when calls_per_second is set")
	}
}

func validateLifecycle(cfg *Config, ve *ValidationError) {
	if cfg.Lifecycle.PollInterval < 0 {
		ve.Add("lifecycle.poll_interval must be >= 0")
	}
	if cfg.Lifecycle.MaxPolls <= 0 {
		ve.Add("lifecycle.max_polls must be > 0")
	}
}

var validTraceLevels = map[string]bool{
	"core":    true,
	"outline": true,
	"all":     true,
}

var validRenderers = map[string]bool{
	"plain":    true,
	"markdown": true,
}

func validateInvocation(cfg *Config, ve *ValidationError) {
	inv := cfg.Invocation
	if inv.AliasID == "" {
		ve.Add("invocation.alias_id must not be empty")
	}
	if !validTraceLevels[inv.TraceLevel] {
		ve.Add("invocation.trace_level %q is invalid (want: core, outline, all)", inv.TraceLevel)
	}
	if !validRenderers[inv.Render] {
		ve.Add("invocation.render %q is invalid (want: plain, markdown)", inv.Render)
	}
	if inv.Breaker.Timeout < 0 {
		ve.Add("invocation.breaker.timeout must be >= 0")
	}
}

func validateHierarchies(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, h := range cfg.Hierarchies {
		if h.Name == "" {
			ve.Add("hierarchies[%d].name must not be empty", i)
			continue
		}
		if seen[h.Name] {
			ve.Add("hierarchies[%d]: duplicate hierarchy name %q", i, h.Name)
		}
		seen[h.Name] = true
		if err := h.Validate(); err != nil {
			ve.Add("hierarchies[%d] (%s): %v", i, h.Name, err)
		}
	}

	if cfg.Hierarchy == "" {
		ve.Add("hierarchy must not be empty")
		return
	}
	h, err := cfg.SelectedHierarchy()
	if err != nil {
		ve.Add("hierarchy: %v", err)
		return
	}
	if !seen[h.Name] {
		if err := h.Validate(); err != nil {
			ve.Add("hierarchy %q: %v", h.Name, err)
		}
	}
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{
	"noop":   true,
	"stdout": true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		ve.Add("audit.path is required when audit is enabled")
	}
}
