// Package lifecycle provisions and tears down agent hierarchies on a remote
// control plane, waiting out every asynchronous state transition.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/tracer"
)

// ResourceRef identifies a polled agent or alias.
type ResourceRef struct {
	Kind    domain.ResourceKind
	Name    string
	AgentID string
	AliasID string // set for KindAlias
}

func agentRef(name, id string) ResourceRef {
	return ResourceRef{Kind: domain.KindAgent, Name: name, AgentID: id}
}

func aliasRef(name, agentID, aliasID string) ResourceRef {
	return ResourceRef{Kind: domain.KindAlias, Name: name, AgentID: agentID, AliasID: aliasID}
}

func (r ResourceRef) String() string {
	if r.Kind == domain.KindAlias {
		return fmt.Sprintf("alias %s (%s/%s)", r.Name, r.AgentID, r.AliasID)
	}
	return fmt.Sprintf("agent %s (%s)", r.Name, r.AgentID)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller waits for resources to leave their transitional states. It polls at
// a fixed interval and gives up after a fixed number of polls.
type Poller struct {
	cp       domain.ControlPlane
	interval time.Duration
	maxPolls int
	sleep    SleepFunc
	logger   *slog.Logger
}

// NewPoller creates a Poller using the interval and poll budget from cfg.
func NewPoller(cp domain.ControlPlane, cfg config.LifecycleConfig, logger *slog.Logger) *Poller {
	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 1
	}
	return &Poller{
		cp:       cp,
		interval: cfg.PollInterval,
		maxPolls: maxPolls,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// WithSleep replaces the function used to wait between polls.
func (p *Poller) WithSleep(fn SleepFunc) *Poller {
	p.sleep = fn
	return p
}

// AwaitTerminal polls ref until it reports a settled status and returns that
// status. FAILED, or the resource disappearing, is ErrLifecycleFailed; an
// exhausted poll budget is ErrLifecycleTimeout; a failed read is ErrRemoteUnavailable.
func (p *Poller) AwaitTerminal(ctx context.Context, ref ResourceRef) (domain.Status, error) {
	const op = "Poller.AwaitTerminal"
	var result domain.Status
	err := tracer.Do(ctx, "lifecycle.await", func(ctx context.Context) error {
		var last domain.Status
		for i := 1; i <= p.maxPolls; i++ {
			st, err := p.status(ctx, ref)
			if err != nil {
				return p.readError(ctx, op, ref, err)
			}
			last = st
			p.logger.Debug("polled", "kind", ref.Kind, "resource", ref.Name, "status", st, "poll", i)

			switch {
			case st.Failed():
				return domain.NewDomainError(op, domain.ErrLifecycleFailed, ref.String()+" reported FAILED")
			case st == domain.StatusNotFound:
				return domain.NewDomainError(op, domain.ErrLifecycleFailed, ref.String()+" disappeared")
			case st.Settled():
				result = st
				return nil
			}
			if i < p.maxPolls {
				if err := p.sleep(ctx, p.interval); err != nil {
					return err
				}
			}
		}
		return domain.NewDomainError(op, domain.ErrLifecycleTimeout,
			fmt.Sprintf("%s still %s after %d polls", ref, last, p.maxPolls))
	}, tracer.StringAttr("kind", string(ref.Kind)), tracer.StringAttr("resource", ref.Name))
	return result, err
}

// AwaitGone polls ref until the control plane no longer knows it.
func (p *Poller) AwaitGone(ctx context.Context, ref ResourceRef) error {
	const op = "Poller.AwaitGone"
	return tracer.Do(ctx, "lifecycle.await", func(ctx context.Context) error {
		var last domain.Status
		for i := 1; i <= p.maxPolls; i++ {
			st, err := p.status(ctx, ref)
			if err != nil {
				return p.readError(ctx, op, ref, err)
			}
			last = st
			if st == domain.StatusNotFound {
				return nil
			}
			if st.Failed() {
				return domain.NewDomainError(op, domain.ErrLifecycleFailed, ref.String()+" deletion FAILED")
			}
			if i < p.maxPolls {
				if err := p.sleep(ctx, p.interval); err != nil {
					return err
				}
			}
		}
		return domain.NewDomainError(op, domain.ErrLifecycleTimeout,
			fmt.Sprintf("%s still %s after %d polls", ref, last, p.maxPolls))
	}, tracer.StringAttr("kind", string(ref.Kind)), tracer.StringAttr("resource", ref.Name), tracer.StringAttr("await", "gone"))
}

// status reads the current status; a missing resource is StatusNotFound.
func (p *Poller) status(ctx context.Context, ref ResourceRef) (domain.Status, error) {
	var (
		st  domain.Status
		err error
	)
	if ref.Kind == domain.KindAlias {
		var a *domain.Alias
		if a, err = p.cp.GetAlias(ctx, ref.AgentID, ref.AliasID); err == nil {
			st = a.Status
		}
	} else {
		var a *domain.Agent
		if a, err = p.cp.GetAgent(ctx, ref.AgentID); err == nil {
			st = a.Status
		}
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StatusNotFound, nil
	}
	return st, err
}

func (p *Poller) readError(ctx context.Context, op string, ref ResourceRef, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.WrapOp(op, remoteUnavailable(ref.String(), err))
}

// remoteUnavailable tags err with ErrRemoteUnavailable unless it already carries it.
func remoteUnavailable(what string, err error) error {
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%s: %w: %w", what, domain.ErrRemoteUnavailable, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
