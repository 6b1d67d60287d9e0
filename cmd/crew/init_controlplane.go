package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/adapter/bedrock"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/adapter/fake"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
	"github.com/safa0/amazon-bedrock-agent-samples/internal/infra/config"
)

// controlPlane is the remote the CLI provisions on and invokes.
type controlPlane interface {
	domain.ControlPlane
	domain.Invoker
}

// doctorClient is what the doctor checks need from the remote.
type doctorClient interface {
	CheckCredentials(ctx context.Context) error
	ListAgents(ctx context.Context) ([]domain.AgentSummary, error)
	ProbeModel(ctx context.Context, modelID string) error
}

// initControlPlane selects the backend named by cfg.ControlPlane.
func initControlPlane(ctx context.Context, cfg *config.Config, logger *slog.Logger) (controlPlane, error) {
	switch cfg.ControlPlane {
	case config.ControlPlaneFake:
		logger.Info("using in-memory control plane; nothing is created remotely")
		return fake.New(fake.WithPollsToSettle(1)), nil
	case config.ControlPlaneBedrock:
		c, err := bedrock.New(ctx, cfg.AWS, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown control plane %q", cfg.ControlPlane)
}

// initDoctorClient returns a Bedrock client for the doctor checks.
func initDoctorClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (doctorClient, error) {
	c, err := bedrock.New(ctx, cfg.AWS, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}
