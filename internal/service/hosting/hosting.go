// Package hosting drives the Kubernetes lifecycle of a hosted MCP server:
// image build and push, manifest generation, GitOps publication, and the
// stop/start/delete operations. Failures at any stage are captured into the
// server row and returned as structured results, never re-thrown.
package hosting

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/metrics"
	"github.com/mcpship/mcpship/internal/repository"
	"github.com/mcpship/mcpship/internal/service/gitops"
	"github.com/mcpship/mcpship/internal/service/manifest"
	"github.com/mcpship/mcpship/internal/service/registry"
)

const maxSlugLen = 20

// Config carries the cluster-facing settings.
type Config struct {
	Domain        string
	Namespace     string
	ClusterIssuer string
	HealthPath    string
}

// Service is the hosting orchestrator.
type Service struct {
	servers     repository.ServerRepository
	deployments repository.DeploymentRepository
	images      registry.ImageBuilder
	committer   gitops.Committer
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires the hosting orchestrator.
func NewService(
	servers repository.ServerRepository,
	deployments repository.DeploymentRepository,
	images registry.ImageBuilder,
	committer gitops.Committer,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		servers:     servers,
		deployments: deployments,
		images:      images,
		committer:   committer,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// NewServerID derives a collision-resistant id from the server name: a slug
// capped at 20 characters plus a random 8-hex suffix.
func NewServerID(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugInvalid.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "mcp-server"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return slug + "-" + suffix
}

// DeployToCloud builds, pushes and publishes the artifact's latest generated
// project as a running hosted server.
func (s *Service) DeployToCloud(ctx context.Context, artifactID string) (*domain.HostingResult, error) {
	record, err := s.deployments.LatestDeploymentByArtifact(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load latest deployment for %s: %w", artifactID, err)
	}
	hostingMeta := record.Metadata.Hosting
	if hostingMeta == nil || hostingMeta.ServerName == "" || hostingMeta.BuildPath == "" {
		return &domain.HostingResult{
			Success:      false,
			ErrorMessage: "latest deployment carries no server name or build path",
		}, nil
	}

	serverID := NewServerID(hostingMeta.ServerName)
	server := &domain.HostedServer{
		ServerID:   serverID,
		ServerName: hostingMeta.ServerName,
		ArtifactID: artifactID,
		Status:     domain.ServerPending,
		Namespace:  s.cfg.Namespace,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.servers.CreateServer(ctx, server); err != nil {
		return nil, fmt.Errorf("create server row: %w", err)
	}
	metrics.HostingTransitionsTotal.WithLabelValues(domain.ServerPending).Inc()

	if err := s.transition(ctx, serverID, domain.ServerBuilding, ""); err != nil {
		return nil, err
	}
	imageRef, err := s.images.Build(ctx, serverID, hostingMeta.BuildPath)
	if err != nil {
		return s.fail(ctx, serverID, "image build failed", err)
	}

	if err := s.transition(ctx, serverID, domain.ServerPushing, ""); err != nil {
		return nil, err
	}
	if _, err := s.images.Push(ctx, serverID); err != nil {
		return s.fail(ctx, serverID, "image push failed", err)
	}

	if err := s.transition(ctx, serverID, domain.ServerDeploying, ""); err != nil {
		return nil, err
	}
	set, err := s.generateManifests(serverID, imageRef, 1)
	if err != nil {
		return s.fail(ctx, serverID, "manifest generation failed", err)
	}
	if _, err := s.committer.PublishServer(ctx, serverID, set); err != nil {
		return s.fail(ctx, serverID, "desired-state commit failed", err)
	}

	deployedAt := s.now().UTC()
	endpoint := s.endpointURL(serverID)
	update := repository.ServerStatusUpdate{
		ServerID:       serverID,
		Status:         domain.ServerRunning,
		DockerImage:    imageRef,
		DeploymentName: manifest.ObjectName(serverID),
		EndpointURL:    endpoint,
		DeployedAt:     &deployedAt,
	}
	if err := s.servers.UpdateServerStatus(ctx, update); err != nil {
		return nil, fmt.Errorf("mark server running: %w", err)
	}
	metrics.HostingTransitionsTotal.WithLabelValues(domain.ServerRunning).Inc()
	s.logger.Info("server deployed",
		"server_id", serverID, "artifact_id", artifactID, "image", imageRef, "endpoint", endpoint)

	return &domain.HostingResult{
		Success:     true,
		ServerID:    serverID,
		Status:      domain.ServerRunning,
		EndpointURL: endpoint,
		DockerImage: imageRef,
	}, nil
}

// StopServer scales the server to zero replicas through the desired-state
// repository.
func (s *Service) StopServer(ctx context.Context, serverID string) (*domain.HostingResult, error) {
	server, err := s.servers.GetServerByID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("load server %s: %w", serverID, err)
	}
	if server.Status != domain.ServerRunning {
		return &domain.HostingResult{
			Success:      false,
			ServerID:     serverID,
			Status:       server.Status,
			ErrorMessage: "only running servers can be stopped",
		}, nil
	}

	if err := s.publishScaled(ctx, server, 0); err != nil {
		return s.fail(ctx, serverID, "stop commit failed", err)
	}

	stoppedAt := s.now().UTC()
	update := repository.ServerStatusUpdate{
		ServerID:  serverID,
		Status:    domain.ServerStopped,
		StoppedAt: &stoppedAt,
	}
	if err := s.servers.UpdateServerStatus(ctx, update); err != nil {
		return nil, fmt.Errorf("mark server stopped: %w", err)
	}
	metrics.HostingTransitionsTotal.WithLabelValues(domain.ServerStopped).Inc()
	s.logger.Info("server stopped", "server_id", serverID)
	return &domain.HostingResult{Success: true, ServerID: serverID, Status: domain.ServerStopped}, nil
}

// StartServer scales a stopped server back to one replica.
func (s *Service) StartServer(ctx context.Context, serverID string) (*domain.HostingResult, error) {
	server, err := s.servers.GetServerByID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("load server %s: %w", serverID, err)
	}
	if server.Status != domain.ServerStopped {
		return &domain.HostingResult{
			Success:      false,
			ServerID:     serverID,
			Status:       server.Status,
			ErrorMessage: "only stopped servers can be started",
		}, nil
	}

	if err := s.publishScaled(ctx, server, 1); err != nil {
		return s.fail(ctx, serverID, "start commit failed", err)
	}

	update := repository.ServerStatusUpdate{
		ServerID:       serverID,
		Status:         domain.ServerRunning,
		ClearStoppedAt: true,
	}
	if err := s.servers.UpdateServerStatus(ctx, update); err != nil {
		return nil, fmt.Errorf("mark server running: %w", err)
	}
	metrics.HostingTransitionsTotal.WithLabelValues(domain.ServerRunning).Inc()
	s.logger.Info("server started", "server_id", serverID)
	return &domain.HostingResult{
		Success:     true,
		ServerID:    serverID,
		Status:      domain.ServerRunning,
		EndpointURL: server.EndpointURL,
	}, nil
}

// DeleteServer removes the desired state and soft-deletes the row. The
// registry image delete is best effort and never blocks the delete.
func (s *Service) DeleteServer(ctx context.Context, serverID string) (*domain.HostingResult, error) {
	server, err := s.servers.GetServerByID(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("load server %s: %w", serverID, err)
	}
	if server.Status == domain.ServerDeleted {
		return &domain.HostingResult{Success: true, ServerID: serverID, Status: domain.ServerDeleted}, nil
	}

	if _, err := s.committer.RemoveServer(ctx, serverID); err != nil {
		return s.fail(ctx, serverID, "desired-state removal failed", err)
	}
	if err := s.images.DeleteImage(ctx, serverID); err != nil {
		s.logger.Warn("registry image delete failed", "server_id", serverID, "error", err)
	}

	deletedAt := s.now().UTC()
	update := repository.ServerStatusUpdate{
		ServerID:  serverID,
		Status:    domain.ServerDeleted,
		DeletedAt: &deletedAt,
	}
	if err := s.servers.UpdateServerStatus(ctx, update); err != nil {
		return nil, fmt.Errorf("mark server deleted: %w", err)
	}
	metrics.HostingTransitionsTotal.WithLabelValues(domain.ServerDeleted).Inc()
	s.logger.Info("server deleted", "server_id", serverID)
	return &domain.HostingResult{Success: true, ServerID: serverID, Status: domain.ServerDeleted}, nil
}

// GetServer loads one hosted server.
func (s *Service) GetServer(ctx context.Context, serverID string) (*domain.HostedServer, error) {
	return s.servers.GetServerByID(ctx, serverID)
}

// ListServers pages through hosted servers.
func (s *Service) ListServers(ctx context.Context, limit, offset int) ([]domain.HostedServer, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.servers.ListServers(ctx, limit, offset)
}

// TrackRequest records one proxied request against the server's counters.
func (s *Service) TrackRequest(ctx context.Context, serverID string) error {
	return s.servers.IncrementRequestCount(ctx, serverID, s.now().UTC())
}

func (s *Service) publishScaled(ctx context.Context, server *domain.HostedServer, replicas int32) error {
	set, err := s.generateManifests(server.ServerID, server.DockerImage, replicas)
	if err != nil {
		return err
	}
	_, err = s.committer.PublishServer(ctx, server.ServerID, set)
	return err
}

func (s *Service) generateManifests(serverID, imageRef string, replicas int32) (manifest.Set, error) {
	return manifest.Generate(manifest.Config{
		ServerID:      serverID,
		Image:         imageRef,
		Namespace:     s.cfg.Namespace,
		Domain:        s.cfg.Domain,
		ClusterIssuer: s.cfg.ClusterIssuer,
		Replicas:      &replicas,
		HealthPath:    s.cfg.HealthPath,
	})
}

func (s *Service) endpointURL(serverID string) string {
	return fmt.Sprintf("https://%s.%s", serverID, s.cfg.Domain)
}

func (s *Service) transition(ctx context.Context, serverID, status, message string) error {
	update := repository.ServerStatusUpdate{
		ServerID:      serverID,
		Status:        status,
		StatusMessage: message,
	}
	if err := s.servers.UpdateServerStatus(ctx, update); err != nil {
		return fmt.Errorf("transition server %s to %s: %w", serverID, status, err)
	}
	metrics.HostingTransitionsTotal.WithLabelValues(status).Inc()
	return nil
}

// fail records the failure on the row and returns it as a structured result.
func (s *Service) fail(ctx context.Context, serverID, stage string, cause error) (*domain.HostingResult, error) {
	message := fmt.Sprintf("%s: %v", stage, cause)
	update := repository.ServerStatusUpdate{
		ServerID:      serverID,
		Status:        domain.ServerFailed,
		StatusMessage: message,
	}
	if err := s.servers.UpdateServerStatus(ctx, update); err != nil {
		s.logger.Error("failed to record server failure", "server_id", serverID, "error", err)
	}
	metrics.HostingTransitionsTotal.WithLabelValues(domain.ServerFailed).Inc()
	s.logger.Warn("hosting operation failed", "server_id", serverID, "stage", stage, "error", cause)
	return &domain.HostingResult{
		Success:      false,
		ServerID:     serverID,
		Status:       domain.ServerFailed,
		ErrorMessage: message,
	}, nil
}
