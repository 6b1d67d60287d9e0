package lifecycle

import (
	"context"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

// Registry resolves agent and alias names to remote IDs. A missing name is
// a normal result, not an error.
type Registry struct {
	cp domain.ControlPlane
}

// NewRegistry creates a Registry over cp.
func NewRegistry(cp domain.ControlPlane) *Registry {
	return &Registry{cp: cp}
}

// FindAgentID returns the ID of the agent named name.
func (r *Registry) FindAgentID(ctx context.Context, name string) (string, bool, error) {
	agents, err := r.cp.ListAgents(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, domain.WrapOp("Registry.FindAgentID", remoteUnavailable("list agents", err))
	}
	for _, a := range agents {
		if a.Name == name {
			return a.ID, true, nil
		}
	}
	return "", false, nil
}

// FindAlias returns the alias of agentID named aliasName.
func (r *Registry) FindAlias(ctx context.Context, agentID, aliasName string) (*domain.Alias, bool, error) {
	aliases, err := r.cp.ListAliases(ctx, agentID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, domain.WrapOp("Registry.FindAlias", remoteUnavailable("list aliases of "+agentID, err))
	}
	for i := range aliases {
		if aliases[i].Name == aliasName {
			return &aliases[i], true, nil
		}
	}
	return nil, false, nil
}
