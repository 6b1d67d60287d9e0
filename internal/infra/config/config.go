package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

// Control plane backends.
const (
	ControlPlaneBedrock = "bedrock"
	ControlPlaneFake    = "fake"
)

// Config is the top-level application configuration.
type Config struct {
	AWS          AWSConfig          `yaml:"aws"`
	ControlPlane string             `yaml:"control_plane"`
	Lifecycle    LifecycleConfig    `yaml:"lifecycle"`
	Invocation   InvocationConfig   `yaml:"invocation"`
	Hierarchy    string             `yaml:"hierarchy"`
	Hierarchies  []domain.Hierarchy `yaml:"hierarchies,omitempty"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Audit        AuditConfig        `yaml:"audit"`
	Includes     []string           `yaml:"includes,omitempty"`
}

// AWSConfig holds settings for the Bedrock clients.
type AWSConfig struct {
	Region         string `yaml:"region"`
	Profile        string `yaml:"profile,omitempty"`
	AgentRoleARN   string `yaml:"agent_role_arn"`
	IdleSessionTTL int32  `yaml:"idle_session_ttl"` // seconds
	// CallsPerSecond throttles control-plane requests; 0 disables throttling.
	CallsPerSecond float64 `yaml:"calls_per_second"`
	Burst          int     `yaml:"burst"`
}

// LifecycleConfig holds the status poller settings.
type LifecycleConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxPolls      int           `yaml:"max_polls"`
	AwaitDeletion bool          `yaml:"await_deletion"`
}

// InvocationConfig holds settings for the invocation session.
type InvocationConfig struct {
	AliasID    string        `yaml:"alias_id"`
	TraceLevel string        `yaml:"trace_level"` // core, outline, all
	Render     string        `yaml:"render"`      // plain, markdown
	Breaker    BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings for invocations.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// AuditConfig holds the lifecycle audit trail settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		AWS: AWSConfig{
			Region:         "us-east-1",
			IdleSessionTTL: 1800,
			CallsPerSecond: 2,
			Burst:          2,
		},
		ControlPlane: ControlPlaneBedrock,
		Lifecycle: LifecycleConfig{
			PollInterval:  5 * time.Second,
			MaxPolls:      60,
			AwaitDeletion: true,
		},
		Invocation: InvocationConfig{
			AliasID:    domain.TestAliasID,
			TraceLevel: "core",
			Render:     "plain",
			Breaker: BreakerConfig{
				MaxFailures: 3,
				Timeout:     30 * time.Second,
			},
		},
		Hierarchy: "portfolio",
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    "crew-audit.jsonl",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and validates the result.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, err.Error())
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}
	if err := validateSchema(absPath, data); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}
		// Re-apply the main file so it takes precedence over its includes.
		hierarchies := cfg.Hierarchies
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Hierarchies = mergeHierarchies(hierarchies, cfg.Hierarchies)
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CREW_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CREW_AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("CREW_AWS_PROFILE"); v != "" {
		cfg.AWS.Profile = v
	}
	if v := os.Getenv("CREW_AGENT_ROLE_ARN"); v != "" {
		cfg.AWS.AgentRoleARN = v
	}
	if v := os.Getenv("CREW_CONTROL_PLANE"); v != "" {
		cfg.ControlPlane = strings.ToLower(v)
	}
	if v := os.Getenv("CREW_HIERARCHY"); v != "" {
		cfg.Hierarchy = v
	}
	if v := os.Getenv("CREW_LIFECYCLE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Lifecycle.PollInterval = d
		}
	}
	if v := os.Getenv("CREW_LIFECYCLE_MAX_POLLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Lifecycle.MaxPolls = n
		}
	}
	if v := os.Getenv("CREW_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CREW_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CREW_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CREW_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CREW_AUDIT_PATH"); v != "" {
		cfg.Audit.Enabled = true
		cfg.Audit.Path = v
	}
}

// SelectedHierarchy resolves cfg.Hierarchy against the configured hierarchies
// and the built-in presets. Configured definitions win over presets.
func (c *Config) SelectedHierarchy() (domain.Hierarchy, error) {
	return c.HierarchyByName(c.Hierarchy)
}

// HierarchyByName looks a hierarchy up by name.
func (c *Config) HierarchyByName(name string) (domain.Hierarchy, error) {
	for _, h := range c.Hierarchies {
		if h.Name == name {
			return h, nil
		}
	}
	if h, ok := Preset(name); ok {
		return h, nil
	}
	return domain.Hierarchy{}, domain.NewDomainError("config.Hierarchy", domain.ErrNotFound,
		fmt.Sprintf("hierarchy %q (known: %s)", name, strings.Join(c.hierarchyNames(), ", ")))
}

func (c *Config) hierarchyNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, h := range c.Hierarchies {
		if !seen[h.Name] {
			seen[h.Name] = true
			names = append(names, h.Name)
		}
	}
	for _, n := range PresetNames() {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// mergeHierarchies overlays definitions from the main file on those from includes, by name.
func mergeHierarchies(included, main []domain.Hierarchy) []domain.Hierarchy {
	out := make([]domain.Hierarchy, 0, len(included)+len(main))
	index := map[string]int{}
	for _, h := range included {
		index[h.Name] = len(out)
		out = append(out, h)
	}
	for _, h := range main {
		if i, ok := index[h.Name]; ok {
			out[i] = h
			continue
		}
		index[h.Name] = len(out)
		out = append(out, h)
	}
	return out
}

// validatePermissions checks the config file is not writable by others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
