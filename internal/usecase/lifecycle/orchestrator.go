package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/logger"
)

// Orchestrator provisions and tears down agent hierarchies. Every call runs
// sequentially; the poller is the only place it waits.
type Orchestrator struct {
	cp            domain.ControlPlane
	poller        *Poller
	registry      *Registry
	bus           domain.EventBus
	logger        *slog.Logger
	awaitDeletion bool
}

// NewOrchestrator creates an Orchestrator. bus may be nil.
func NewOrchestrator(cp domain.ControlPlane, cfg config.LifecycleConfig, bus domain.EventBus, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cp:            cp,
		poller:        NewPoller(cp, cfg, logger),
		registry:      NewRegistry(cp),
		bus:           bus,
		logger:        logger,
		awaitDeletion: cfg.AwaitDeletion,
	}
}

// Poller returns the poller used by the orchestrator.
func (o *Orchestrator) Poller() *Poller { return o.poller }

// Registry returns the name lookup used by the orchestrator.
func (o *Orchestrator) Registry() *Registry { return o.registry }

func (o *Orchestrator) publish(ctx context.Context, t domain.EventType, p domain.ResourcePayload) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, domain.NewResourceEvent(t, p))
}

// logStep logs a completed step with the standard attributes.
func (o *Orchestrator) logStep(msg, step string, kind domain.ResourceKind, resource, id string) {
	o.logger.Info(msg, "step", step, "kind", kind, "resource", resource, "id", id)
}

func (o *Orchestrator) logFailure(msg, step string, kind domain.ResourceKind, resource, id string, err error) {
	o.logger.Error(msg, "step", step, "kind", kind, "resource", resource, "id", id, logger.Err(err))
}

// awaitQuiet waits for ref to settle before mutating it. A resource stuck in
// FAILED can still be deleted, so that outcome is not an error here.
func (o *Orchestrator) awaitQuiet(ctx context.Context, ref ResourceRef) error {
	_, err := o.poller.AwaitTerminal(ctx, ref)
	if errors.Is(err, domain.ErrLifecycleFailed) {
		return nil
	}
	return err
}
