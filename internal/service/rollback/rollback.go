// Package rollback removes the external resources a failed deployment left
// behind. Rollback is idempotent: a record is stamped after the first run
// and later calls are no-ops.
package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/metrics"
	"github.com/mcpship/mcpship/internal/repository"
)

// RepoDeleter removes a hosted repository.
type RepoDeleter interface {
	Delete(ctx context.Context, repoName string) error
}

// SnippetDeleter removes a hosted snippet.
type SnippetDeleter interface {
	Delete(ctx context.Context, id string) error
}

// ResourceResult is the per-resource outcome of one rollback run.
type ResourceResult struct {
	Resource string
	Success  bool
	Error    string
}

// Result summarizes a rollback call.
type Result struct {
	DeploymentID      string
	Performed         bool
	AlreadyRolledBack bool
	Resources         []ResourceResult
}

// Service executes compensating deletes for failed deployments.
type Service struct {
	deployments repository.DeploymentRepository
	repos       RepoDeleter
	snippets    SnippetDeleter
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires the rollback service.
func NewService(deployments repository.DeploymentRepository, repos RepoDeleter, snippets SnippetDeleter, logger *slog.Logger) *Service {
	return &Service{
		deployments: deployments,
		repos:       repos,
		snippets:    snippets,
		logger:      logger,
		now:         time.Now,
	}
}

// Rollback deletes whatever external resource the record references and
// stamps the record so a second call does nothing.
func (s *Service) Rollback(ctx context.Context, deploymentID, reason string) (*Result, error) {
	record, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("load deployment %s: %w", deploymentID, err)
	}

	if record.Metadata.Rollback != nil && record.Metadata.Rollback.Performed {
		return &Result{DeploymentID: record.ID, AlreadyRolledBack: true}, nil
	}

	result := &Result{DeploymentID: record.ID}
	for _, resource := range externalResources(record) {
		err := resource.delete(ctx, s)
		entry := ResourceResult{Resource: resource.label, Success: err == nil}
		if err != nil {
			entry.Error = err.Error()
			s.logger.Warn("rollback resource delete failed",
				"deployment_id", record.ID, "resource", resource.label, "error", err)
		} else {
			s.logger.Info("rollback resource deleted",
				"deployment_id", record.ID, "resource", resource.label)
		}
		result.Resources = append(result.Resources, entry)
	}

	metadata := record.Metadata
	metadata.Rollback = &domain.RollbackMetadata{
		Performed: true,
		Reason:    reason,
		Timestamp: s.now().UTC(),
	}
	if err := s.deployments.UpdateDeploymentMetadata(ctx, record.ID, metadata); err != nil {
		return nil, fmt.Errorf("stamp rollback on %s: %w", record.ID, err)
	}
	result.Performed = true

	outcome := "success"
	for _, entry := range result.Resources {
		if !entry.Success {
			outcome = "partial"
			break
		}
	}
	metrics.RollbacksTotal.WithLabelValues(outcome).Inc()
	return result, nil
}

// CanRollback reports whether a rollback would do anything: the record must
// be failed, not yet rolled back, and reference an external resource.
func (s *Service) CanRollback(ctx context.Context, deploymentID string) (bool, error) {
	record, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return false, fmt.Errorf("load deployment %s: %w", deploymentID, err)
	}
	if record.Status != domain.DeploymentFailed {
		return false, nil
	}
	if record.Metadata.Rollback != nil && record.Metadata.Rollback.Performed {
		return false, nil
	}
	return len(externalResources(record)) > 0, nil
}

type externalResource struct {
	label  string
	delete func(ctx context.Context, s *Service) error
}

func externalResources(record *domain.DeploymentRecord) []externalResource {
	provider := record.Metadata.Provider
	var resources []externalResource
	if provider != nil && provider.RepoName != "" {
		repoName := provider.RepoName
		resources = append(resources, externalResource{
			label: "repository:" + repoName,
			delete: func(ctx context.Context, s *Service) error {
				return s.repos.Delete(ctx, repoName)
			},
		})
	}
	if provider != nil && provider.SnippetID != "" {
		snippetID := provider.SnippetID
		resources = append(resources, externalResource{
			label: "snippet:" + snippetID,
			delete: func(ctx context.Context, s *Service) error {
				return s.snippets.Delete(ctx, snippetID)
			},
		})
	}
	return resources
}
