// Package router gates deployment requests by subscription tier and monthly
// quota, resolves the target type, and dispatches to the orchestrator.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/metrics"
	"github.com/mcpship/mcpship/internal/repository"
	"github.com/mcpship/mcpship/internal/service/deploy"
	"github.com/mcpship/mcpship/internal/service/quota"
)

// ErrUserNotFound is returned when routing is attempted for an unknown user.
var ErrUserNotFound = errors.New("user not found")

// Orchestrator is the deploy surface the router dispatches to.
type Orchestrator interface {
	DeployToRepo(ctx context.Context, artifactID string, opts deploy.Options) (*domain.DeploymentResult, error)
	DeployToSnippet(ctx context.Context, artifactID string, opts deploy.Options) (*domain.DeploymentResult, error)
	DeployToEnterprise(ctx context.Context, artifactID string, opts deploy.Options) (*domain.DeploymentResult, error)
}

// Options are the caller's routing options. TargetType empty means the
// tier's default target.
type Options struct {
	TargetType string
	Deploy     deploy.Options
}

// Permission is the read-only gate result used by UI preflight.
type Permission struct {
	Allowed      bool
	CurrentUsage int
	Limit        int
	Tier         string
	Remaining    int
}

// Service routes deployments through tier and quota gates.
type Service struct {
	users        repository.UserRepository
	quotas       quota.Store
	orchestrator Orchestrator
	upgradeURL   string
	logger       *slog.Logger
}

// NewService wires the router.
func NewService(users repository.UserRepository, quotas quota.Store, orchestrator Orchestrator, upgradeURL string, logger *slog.Logger) *Service {
	return &Service{
		users:        users,
		quotas:       quotas,
		orchestrator: orchestrator,
		upgradeURL:   upgradeURL,
		logger:       logger,
	}
}

// Route gates and dispatches one deployment. Tier and quota violations are
// typed errors; provider failures arrive as typed results from the
// orchestrator.
func (s *Service) Route(ctx context.Context, userID, artifactID string, opts Options) (*domain.DeploymentResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	tier := domain.TierFor(user.Tier)

	permission, err := s.permission(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if !permission.Allowed {
		metrics.QuotaDenialsTotal.Inc()
		return nil, &domain.PermissionError{
			UserID:       userID,
			CurrentUsage: permission.CurrentUsage,
			Limit:        permission.Limit,
			CurrentTier:  tier.Name,
			UpgradeURL:   s.upgradeURL,
		}
	}

	targetType := opts.TargetType
	if targetType == "" {
		targetType = tier.DefaultTarget
	}
	if !tier.AllowsTarget(targetType) {
		return nil, &domain.TierRestrictionError{
			UserID:       userID,
			CurrentTier:  tier.Name,
			RequiredTier: domain.RequiredTierFor(targetType),
			TargetType:   targetType,
			UpgradeURL:   s.upgradeURL,
		}
	}

	deployOpts := opts.Deploy
	if deployOpts.IsPrivate && !tier.PrivateRepos {
		s.logger.Info("private repo not available on tier, forcing public",
			"user_id", userID, "tier", tier.Name)
		deployOpts.IsPrivate = false
	}

	result, err := s.dispatch(ctx, targetType, artifactID, deployOpts)
	if err != nil {
		return nil, err
	}
	if result.Success {
		if _, err := s.quotas.Increment(ctx, userID); err != nil {
			s.logger.Error("quota increment failed", "user_id", userID, "error", err)
		}
	}
	return result, nil
}

// CheckDeploymentPermission exposes the quota gate read-only.
func (s *Service) CheckDeploymentPermission(ctx context.Context, userID string) (*Permission, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	permission, err := s.permission(ctx, userID, domain.TierFor(user.Tier))
	if err != nil {
		return nil, err
	}
	return permission, nil
}

func (s *Service) permission(ctx context.Context, userID string, tier domain.TierConfig) (*Permission, error) {
	usage, err := s.quotas.Usage(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read quota usage: %w", err)
	}
	permission := &Permission{
		CurrentUsage: usage,
		Limit:        tier.MonthlyDeployLimit,
		Tier:         tier.Name,
	}
	if tier.MonthlyDeployLimit < 0 {
		permission.Allowed = true
		permission.Remaining = -1
		return permission, nil
	}
	permission.Allowed = usage < tier.MonthlyDeployLimit
	permission.Remaining = tier.MonthlyDeployLimit - usage
	if permission.Remaining < 0 {
		permission.Remaining = 0
	}
	return permission, nil
}

func (s *Service) dispatch(ctx context.Context, targetType, artifactID string, opts deploy.Options) (*domain.DeploymentResult, error) {
	switch targetType {
	case domain.TargetSnippet:
		return s.orchestrator.DeployToSnippet(ctx, artifactID, opts)
	case domain.TargetRepo:
		return s.orchestrator.DeployToRepo(ctx, artifactID, opts)
	case domain.TargetEnterprise:
		return s.orchestrator.DeployToEnterprise(ctx, artifactID, opts)
	default:
		return nil, fmt.Errorf("unsupported target type %q", targetType)
	}
}
