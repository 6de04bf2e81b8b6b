// Package registry builds MCP server images from generated projects and
// publishes them to the configured container registry.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Registry modes.
const (
	ModeLocal      = "local"
	ModeProduction = "production"
)

const localRegistryHost = "localhost:5000"

// Config selects the target registry and its credentials.
type Config struct {
	Mode     string
	Host     string
	Owner    string
	Repo     string
	Username string
	Token    string
	Tag      string
	Docker   string
}

// ImageBuilder is the hosting-facing surface of this package. Build and push
// are separate steps so the hosting state machine can record each phase.
type ImageBuilder interface {
	Build(ctx context.Context, serverID, buildPath string) (string, error)
	Push(ctx context.Context, serverID string) (string, error)
	DeleteImage(ctx context.Context, serverID string) error
}

// Service builds and pushes images through the local Docker daemon.
type Service struct {
	cfg    Config
	docker *dockerClient
	logger *slog.Logger
}

var _ ImageBuilder = (*Service)(nil)

// NewService connects to the Docker daemon and validates the mode.
func NewService(cfg Config, logger *slog.Logger) (*Service, error) {
	switch cfg.Mode {
	case ModeLocal, ModeProduction:
	default:
		return nil, fmt.Errorf("unknown registry mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeProduction && cfg.Host == "" {
		return nil, fmt.Errorf("production registry requires a host")
	}
	if cfg.Tag == "" {
		cfg.Tag = "latest"
	}
	docker, err := newDockerClient(cfg.Docker)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, docker: docker, logger: logger}, nil
}

// Close releases the Docker connection.
func (s *Service) Close() error {
	return s.docker.Close()
}

// Ping checks daemon connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.docker.Ping(ctx)
}

// ImageRef returns the fully qualified image reference for a server.
func (s *Service) ImageRef(serverID string) string {
	if s.cfg.Mode == ModeLocal {
		return fmt.Sprintf("%s/%s:%s", localRegistryHost, serverID, s.cfg.Tag)
	}
	return fmt.Sprintf("%s/%s/%s/%s:%s",
		s.cfg.Host,
		strings.ToLower(s.cfg.Owner),
		strings.ToLower(s.cfg.Repo),
		serverID,
		s.cfg.Tag,
	)
}

// Build builds the project at buildPath into the server's image, returning
// the image reference.
func (s *Service) Build(ctx context.Context, serverID, buildPath string) (string, error) {
	if serverID == "" {
		return "", fmt.Errorf("server id required")
	}
	ref := s.ImageRef(serverID)
	s.logger.Info("building image", "server_id", serverID, "image", ref)
	err := s.docker.BuildImage(ctx, buildPath, ref, func(line string) {
		s.logger.Debug("build output", "server_id", serverID, "line", line)
	})
	if err != nil {
		return "", fmt.Errorf("build image %s: %w", ref, err)
	}
	return ref, nil
}

// Push pushes the server's image to the registry, returning the reference.
func (s *Service) Push(ctx context.Context, serverID string) (string, error) {
	if serverID == "" {
		return "", fmt.Errorf("server id required")
	}
	ref := s.ImageRef(serverID)
	s.logger.Info("pushing image", "server_id", serverID, "image", ref)
	username, password := s.pushCredentials()
	err := s.docker.PushImage(ctx, ref, username, password, func(line string) {
		s.logger.Debug("push output", "server_id", serverID, "line", line)
	})
	if err != nil {
		return "", fmt.Errorf("push image %s: %w", ref, err)
	}
	return ref, nil
}

// DeleteImage removes the server's image from the local daemon. Registry-side
// garbage collection is the registry's concern.
func (s *Service) DeleteImage(ctx context.Context, serverID string) error {
	if serverID == "" {
		return fmt.Errorf("server id required")
	}
	ref := s.ImageRef(serverID)
	if err := s.docker.RemoveImage(ctx, ref); err != nil {
		return err
	}
	s.logger.Info("image removed", "server_id", serverID, "image", ref)
	return nil
}

func (s *Service) pushCredentials() (string, string) {
	if s.cfg.Mode == ModeLocal {
		return "", ""
	}
	return s.cfg.Username, s.cfg.Token
}
