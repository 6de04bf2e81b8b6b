// Package deploy orchestrates publishing a generated artifact to its target:
// record first, external calls second, classified failures as values.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/metrics"
	"github.com/mcpship/mcpship/internal/repository"
	"github.com/mcpship/mcpship/internal/service/classify"
	"github.com/mcpship/mcpship/internal/service/repoprov"
	"github.com/mcpship/mcpship/internal/service/scaffold"
	"github.com/mcpship/mcpship/internal/service/snippet"
)

const maxListLimit = 100

// CodeNotImplemented marks targets that exist in the contract but have no
// live pipeline yet.
const CodeNotImplemented = "NOT_IMPLEMENTED"

// Options are the caller-supplied publish options.
type Options struct {
	Name         string
	Description  string
	IsPrivate    bool
	Tools        []string
	Devcontainer bool
}

// RepoPublisher is the repository-target provider surface.
type RepoPublisher interface {
	Deploy(ctx context.Context, name, description string, isPrivate bool, files []domain.DeploymentFile) (*repoprov.Result, error)
	Delete(ctx context.Context, repoName string) error
}

// SnippetPublisher is the snippet-target provider surface.
type SnippetPublisher interface {
	Deploy(ctx context.Context, files []domain.DeploymentFile, opts scaffold.BundleOptions, public bool) (*snippet.Result, error)
	Update(ctx context.Context, id string, files []domain.DeploymentFile, opts scaffold.BundleOptions) (*snippet.Result, error)
	Delete(ctx context.Context, id string) error
}

// Validator checks a freshly published deployment. It runs detached; its
// outcome is observed only through logs.
type Validator interface {
	ValidateDeployment(ctx context.Context, result domain.DeploymentResult) error
}

// Service is the deployment orchestrator for repo and snippet targets.
type Service struct {
	deployments repository.DeploymentRepository
	artifacts   repository.ArtifactRepository
	repos       RepoPublisher
	snippets    SnippetPublisher
	validator   Validator
	logger      *slog.Logger

	validationTimeout time.Duration
	now               func() time.Time
}

// NewService wires the orchestrator. validator may be nil.
func NewService(
	deployments repository.DeploymentRepository,
	artifacts repository.ArtifactRepository,
	repos RepoPublisher,
	snippets SnippetPublisher,
	validator Validator,
	validationTimeout time.Duration,
	logger *slog.Logger,
) *Service {
	if validationTimeout <= 0 {
		validationTimeout = 30 * time.Second
	}
	return &Service{
		deployments:       deployments,
		artifacts:         artifacts,
		repos:             repos,
		snippets:          snippets,
		validator:         validator,
		validationTimeout: validationTimeout,
		logger:            logger,
		now:               time.Now,
	}
}

// DeployToRepo publishes the artifact as a hosted git repository.
func (s *Service) DeployToRepo(ctx context.Context, artifactID string, opts Options) (*domain.DeploymentResult, error) {
	return s.deploy(ctx, artifactID, domain.TargetRepo, opts)
}

// DeployToSnippet publishes the artifact as a single-file snippet.
func (s *Service) DeployToSnippet(ctx context.Context, artifactID string, opts Options) (*domain.DeploymentResult, error) {
	return s.deploy(ctx, artifactID, domain.TargetSnippet, opts)
}

// DeployToEnterprise is a stub: the enterprise pipeline is not wired.
func (s *Service) DeployToEnterprise(ctx context.Context, artifactID string, opts Options) (*domain.DeploymentResult, error) {
	return &domain.DeploymentResult{
		Success:      false,
		TargetType:   domain.TargetEnterprise,
		ErrorCode:    CodeNotImplemented,
		ErrorMessage: "enterprise deployments are not available yet",
	}, nil
}

func (s *Service) deploy(ctx context.Context, artifactID, targetType string, opts Options) (*domain.DeploymentResult, error) {
	exists, err := s.artifacts.ArtifactExists(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("check artifact %s: %w", artifactID, err)
	}
	if !exists {
		return failedResult(targetType, "", classify.CodeArtifactNotFound,
			"artifact "+artifactID+" not found"), nil
	}

	// The record exists before any external call so every later failure is
	// auditable against it.
	record := &domain.DeploymentRecord{
		ID:         uuid.NewString(),
		ArtifactID: artifactID,
		TargetType: targetType,
		Status:     domain.DeploymentPending,
		Metadata: domain.RecordMetadata{
			Provider: &domain.ProviderMetadata{
				RequestedName: opts.Name,
				Description:   opts.Description,
				IsPrivate:     opts.IsPrivate,
			},
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.deployments.CreateDeployment(ctx, record); err != nil {
		return nil, fmt.Errorf("create deployment record: %w", err)
	}

	files, err := s.artifacts.GetArtifactFiles(ctx, artifactID)
	if err != nil {
		return s.completeFailed(ctx, record, classify.Classify(err), nil, nil)
	}
	if len(files) == 0 {
		cls := classify.Classification{
			Code:        classify.CodeNoFiles,
			Strategy:    classify.PolicyFor(classify.CodeNoFiles).Strategy,
			UserMessage: classify.PolicyFor(classify.CodeNoFiles).UserMessage,
			RawMessage:  "artifact " + artifactID + " has no files",
		}
		return s.completeFailed(ctx, record, cls, nil, nil)
	}

	switch targetType {
	case domain.TargetRepo:
		return s.publishRepo(ctx, record, files, opts)
	case domain.TargetSnippet:
		return s.publishSnippet(ctx, record, files, opts)
	default:
		return nil, fmt.Errorf("unsupported target type %q", targetType)
	}
}

func (s *Service) publishRepo(ctx context.Context, record *domain.DeploymentRecord, files []domain.DeploymentFile, opts Options) (*domain.DeploymentResult, error) {
	files = scaffold.Augment(files, scaffold.Options{
		ProjectName:  opts.Name,
		Devcontainer: opts.Devcontainer,
	})

	result, err := s.repos.Deploy(ctx, opts.Name, opts.Description, opts.IsPrivate, files)
	if err != nil {
		cls := classify.Classify(err)
		var suggestions []string
		if cls.Code == classify.CodeNameConflict {
			suggestions = classify.GenerateAlternativeNames(repoprov.SanitizeName(opts.Name))
		}
		// A repo created before the failure is an orphan; its identity goes
		// into the record so rollback can delete it.
		var failedMetadata *domain.RecordMetadata
		var orphan *repoprov.OrphanedRepoError
		if errors.As(err, &orphan) {
			metadata := record.Metadata
			metadata.Provider.Owner = orphan.Owner
			metadata.Provider.RepoName = orphan.RepoName
			failedMetadata = &metadata
		}
		return s.completeFailed(ctx, record, cls, suggestions, failedMetadata)
	}

	metadata := record.Metadata
	metadata.Provider.Owner = result.Owner
	metadata.Provider.RepoName = result.RepoName

	deployedAt := s.now().UTC()
	completion := repository.DeploymentCompletion{
		DeploymentID:  record.ID,
		Status:        domain.DeploymentSuccess,
		RepositoryURL: result.RepoURL,
		CloneURL:      result.CloneURL,
		CodespaceURL:  result.CodespaceURL,
		Metadata:      &metadata,
		DeployedAt:    &deployedAt,
	}
	if err := s.deployments.CompleteDeployment(ctx, completion); err != nil {
		return nil, fmt.Errorf("complete deployment %s: %w", record.ID, err)
	}

	out := &domain.DeploymentResult{
		Success:       true,
		DeploymentID:  record.ID,
		TargetType:    domain.TargetRepo,
		RepositoryURL: result.RepoURL,
		CloneURL:      result.CloneURL,
		CodespaceURL:  result.CodespaceURL,
	}
	metrics.DeploymentsTotal.WithLabelValues(domain.TargetRepo, domain.DeploymentSuccess).Inc()
	s.logger.Info("repository deployed",
		"deployment_id", record.ID, "artifact_id", record.ArtifactID, "repo", result.RepoName)
	s.triggerValidation(*out)
	return out, nil
}

func (s *Service) publishSnippet(ctx context.Context, record *domain.DeploymentRecord, files []domain.DeploymentFile, opts Options) (*domain.DeploymentResult, error) {
	bundleOpts := scaffold.BundleOptions{
		Name:        opts.Name,
		Description: opts.Description,
		Tools:       opts.Tools,
	}
	result, err := s.snippets.Deploy(ctx, files, bundleOpts, !opts.IsPrivate)
	if err != nil {
		return s.completeFailed(ctx, record, classify.Classify(err), nil, nil)
	}

	metadata := record.Metadata
	metadata.Provider.SnippetID = result.SnippetID

	deployedAt := s.now().UTC()
	completion := repository.DeploymentCompletion{
		DeploymentID:  record.ID,
		Status:        domain.DeploymentSuccess,
		SnippetURL:    result.URL,
		SnippetRawURL: result.RawURL,
		Metadata:      &metadata,
		DeployedAt:    &deployedAt,
	}
	if err := s.deployments.CompleteDeployment(ctx, completion); err != nil {
		return nil, fmt.Errorf("complete deployment %s: %w", record.ID, err)
	}

	out := &domain.DeploymentResult{
		Success:       true,
		DeploymentID:  record.ID,
		TargetType:    domain.TargetSnippet,
		SnippetURL:    result.URL,
		SnippetRawURL: result.RawURL,
	}
	metrics.DeploymentsTotal.WithLabelValues(domain.TargetSnippet, domain.DeploymentSuccess).Inc()
	s.logger.Info("snippet deployed",
		"deployment_id", record.ID, "artifact_id", record.ArtifactID, "snippet_id", result.SnippetID)
	s.triggerValidation(*out)
	return out, nil
}

// completeFailed stamps the record failed with the classification and turns
// it into a typed result. Provider errors never escape as Go errors. metadata
// may be nil; when set it carries external-resource identities created before
// the failure.
func (s *Service) completeFailed(ctx context.Context, record *domain.DeploymentRecord, cls classify.Classification, suggestions []string, metadata *domain.RecordMetadata) (*domain.DeploymentResult, error) {
	completion := repository.DeploymentCompletion{
		DeploymentID:   record.ID,
		Status:         domain.DeploymentFailed,
		ErrorMessage:   cls.RawMessage,
		ErrorCode:      cls.Code,
		RetryStrategy:  cls.Strategy,
		RetryAfterMS:   cls.RetryAfterMS,
		SuggestedNames: suggestions,
		Metadata:       metadata,
	}
	if err := s.deployments.CompleteDeployment(ctx, completion); err != nil {
		return nil, fmt.Errorf("complete deployment %s: %w", record.ID, err)
	}
	metrics.DeploymentsTotal.WithLabelValues(record.TargetType, domain.DeploymentFailed).Inc()
	metrics.DeploymentErrorsTotal.WithLabelValues(cls.Code).Inc()
	s.logger.Warn("deployment failed",
		"deployment_id", record.ID,
		"artifact_id", record.ArtifactID,
		"error_code", cls.Code,
		"retry_strategy", cls.Strategy,
		"error", cls.RawMessage)

	return &domain.DeploymentResult{
		Success:        false,
		DeploymentID:   record.ID,
		TargetType:     record.TargetType,
		ErrorCode:      cls.Code,
		ErrorMessage:   cls.UserMessage,
		RetryStrategy:  cls.Strategy,
		RetryAfterMS:   cls.RetryAfterMS,
		SuggestedNames: suggestions,
	}, nil
}

func failedResult(targetType, deploymentID, code, message string) *domain.DeploymentResult {
	policy := classify.PolicyFor(code)
	return &domain.DeploymentResult{
		Success:       false,
		DeploymentID:  deploymentID,
		TargetType:    targetType,
		ErrorCode:     code,
		ErrorMessage:  message,
		RetryStrategy: policy.Strategy,
	}
}

// triggerValidation fires the post-deploy check detached from the request.
// The caller's result is never blocked or altered by it.
func (s *Service) triggerValidation(result domain.DeploymentResult) {
	if s.validator == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.validationTimeout)
		defer cancel()
		if err := s.validator.ValidateDeployment(ctx, result); err != nil {
			s.logger.Warn("post-deploy validation failed",
				"deployment_id", result.DeploymentID, "error", err)
			return
		}
		s.logger.Info("post-deploy validation passed", "deployment_id", result.DeploymentID)
	}()
}

// RetryDeployment re-attempts a failed deployment under the original
// options, optionally overriding the name. The attempt produces a new
// record; the original only gains an audit counter.
func (s *Service) RetryDeployment(ctx context.Context, deploymentID, newName string, forceRetry bool) (*domain.DeploymentResult, error) {
	record, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("load deployment %s: %w", deploymentID, err)
	}
	if record.Status != domain.DeploymentFailed {
		return failedResult(record.TargetType, record.ID, classify.CodeUnknown,
			"only failed deployments can be retried"), nil
	}

	policy := classify.PolicyFor(record.ErrorCode)
	if policy.Strategy == classify.StrategyNone && !forceRetry {
		return failedResult(record.TargetType, record.ID, record.ErrorCode,
			"this failure is not retryable; pass forceRetry to attempt anyway"), nil
	}

	metadata := record.Metadata
	if metadata.Retry == nil {
		metadata.Retry = &domain.RetryMetadata{}
	}
	metadata.Retry.RetryCount++
	lastRetry := s.now().UTC()
	metadata.Retry.LastRetryAt = &lastRetry
	if err := s.deployments.UpdateDeploymentMetadata(ctx, record.ID, metadata); err != nil {
		return nil, fmt.Errorf("update retry metadata: %w", err)
	}

	opts := Options{}
	if provider := record.Metadata.Provider; provider != nil {
		opts.Name = provider.RequestedName
		opts.Description = provider.Description
		opts.IsPrivate = provider.IsPrivate
	}
	if newName != "" {
		opts.Name = newName
	}

	switch record.TargetType {
	case domain.TargetSnippet:
		return s.DeployToSnippet(ctx, record.ArtifactID, opts)
	case domain.TargetEnterprise:
		return s.DeployToEnterprise(ctx, record.ArtifactID, opts)
	default:
		return s.DeployToRepo(ctx, record.ArtifactID, opts)
	}
}

// ListDeployments pages through the attempt log. The limit is capped at 100
// regardless of the requested value.
func (s *Service) ListDeployments(ctx context.Context, filter domain.DeploymentFilter) ([]domain.DeploymentRecord, error) {
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.deployments.ListDeployments(ctx, filter)
}

// GetDeployment loads one record.
func (s *Service) GetDeployment(ctx context.Context, deploymentID string) (*domain.DeploymentRecord, error) {
	return s.deployments.GetDeploymentByID(ctx, deploymentID)
}

// DeleteRepoDeployment removes the external repository first, then the
// record. A record without a stored repo name skips the external call.
func (s *Service) DeleteRepoDeployment(ctx context.Context, deploymentID string) error {
	record, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return fmt.Errorf("load deployment %s: %w", deploymentID, err)
	}
	if provider := record.Metadata.Provider; provider != nil && provider.RepoName != "" {
		if err := s.repos.Delete(ctx, provider.RepoName); err != nil {
			return err
		}
	}
	return s.deployments.DeleteDeployment(ctx, deploymentID)
}

// DeleteSnippetDeployment removes the external snippet first, then the
// record. A record without a stored snippet id skips the external call.
func (s *Service) DeleteSnippetDeployment(ctx context.Context, deploymentID string) error {
	record, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return fmt.Errorf("load deployment %s: %w", deploymentID, err)
	}
	if provider := record.Metadata.Provider; provider != nil && provider.SnippetID != "" {
		if err := s.snippets.Delete(ctx, provider.SnippetID); err != nil {
			return err
		}
	}
	return s.deployments.DeleteDeployment(ctx, deploymentID)
}

// UpdateSnippetDeployment re-reads the artifact's current files and rewrites
// the snippet in place. The returned raw URL refers to the just-written file.
func (s *Service) UpdateSnippetDeployment(ctx context.Context, deploymentID string) (*domain.DeploymentResult, error) {
	record, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("load deployment %s: %w", deploymentID, err)
	}
	provider := record.Metadata.Provider
	if provider == nil || provider.SnippetID == "" {
		return failedResult(record.TargetType, record.ID, classify.CodeNotFound,
			"deployment has no snippet to update"), nil
	}

	files, err := s.artifacts.GetArtifactFiles(ctx, record.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("read artifact files: %w", err)
	}
	if len(files) == 0 {
		return failedResult(record.TargetType, record.ID, classify.CodeNoFiles,
			classify.PolicyFor(classify.CodeNoFiles).UserMessage), nil
	}

	result, err := s.snippets.Update(ctx, provider.SnippetID, files, scaffold.BundleOptions{
		Name:        provider.RequestedName,
		Description: provider.Description,
	})
	if err != nil {
		cls := classify.Classify(err)
		return failedResult(record.TargetType, record.ID, cls.Code, cls.UserMessage), nil
	}
	s.logger.Info("snippet deployment updated", "deployment_id", record.ID, "snippet_id", result.SnippetID)
	return &domain.DeploymentResult{
		Success:       true,
		DeploymentID:  record.ID,
		TargetType:    domain.TargetSnippet,
		SnippetURL:    result.URL,
		SnippetRawURL: result.RawURL,
	}, nil
}
