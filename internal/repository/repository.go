package repository

import (
	"context"
	"time"

	"github.com/mcpship/mcpship/internal/domain"
)

// UserRepository exposes the account shape the deployment router needs.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// ArtifactRepository reads generated artifacts produced by the upstream
// generation pipeline. An empty file set is valid and meaningful.
type ArtifactRepository interface {
	ArtifactExists(ctx context.Context, artifactID string) (bool, error)
	GetArtifactFiles(ctx context.Context, artifactID string) ([]domain.DeploymentFile, error)
}

// DeploymentCompletion carries the terminal fields for a pending record.
// Status must be success or failed; a record is completed exactly once.
type DeploymentCompletion struct {
	DeploymentID string
	Status       string

	RepositoryURL string
	CloneURL      string
	CodespaceURL  string
	SnippetURL    string
	SnippetRawURL string

	ErrorMessage   string
	ErrorCode      string
	RetryStrategy  string
	RetryAfterMS   int64
	SuggestedNames []string

	Metadata   *domain.RecordMetadata
	DeployedAt *time.Time
}

// DeploymentRepository stores the append-only deployment attempt log.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, record *domain.DeploymentRecord) error
	CompleteDeployment(ctx context.Context, completion DeploymentCompletion) error
	UpdateDeploymentMetadata(ctx context.Context, deploymentID string, metadata domain.RecordMetadata) error
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.DeploymentRecord, error)
	LatestDeploymentByArtifact(ctx context.Context, artifactID string) (*domain.DeploymentRecord, error)
	ListDeployments(ctx context.Context, filter domain.DeploymentFilter) ([]domain.DeploymentRecord, error)
	DeleteDeployment(ctx context.Context, deploymentID string) error
}

// ServerStatusUpdate carries mutable fields for a hosted server. Empty
// strings leave the column untouched; ClearStoppedAt resets the stop stamp
// when a server comes back up.
type ServerStatusUpdate struct {
	ServerID       string
	Status         string
	StatusMessage  string
	DockerImage    string
	DeploymentName string
	EndpointURL    string
	DeployedAt     *time.Time
	StoppedAt      *time.Time
	DeletedAt      *time.Time
	ClearStoppedAt bool
}

// ServerRepository persists hosted server rows. Deletion is soft: rows are
// retained with status deleted.
type ServerRepository interface {
	CreateServer(ctx context.Context, server *domain.HostedServer) error
	GetServerByID(ctx context.Context, serverID string) (*domain.HostedServer, error)
	ListServers(ctx context.Context, limit, offset int) ([]domain.HostedServer, error)
	UpdateServerStatus(ctx context.Context, update ServerStatusUpdate) error
	IncrementRequestCount(ctx context.Context, serverID string, at time.Time) error
}
