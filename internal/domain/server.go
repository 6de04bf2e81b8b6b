package domain

import "time"

// Hosted server statuses. The lifecycle is
// pending -> building -> deploying -> running, running <-> stopped,
// failed from any non-terminal state, and deleted only via an explicit
// delete. Deleted is terminal and soft: the row is retained.
const (
	ServerPending   = "pending"
	ServerBuilding  = "building"
	ServerPushing   = "pushing"
	ServerDeploying = "deploying"
	ServerRunning   = "running"
	ServerStopped   = "stopped"
	ServerFailed    = "failed"
	ServerDeleted   = "deleted"
)

// HostedServer is a long-running containerized MCP server managed through
// the GitOps desired-state store.
type HostedServer struct {
	ServerID       string
	ServerName     string
	ArtifactID     string
	Status         string
	StatusMessage  string
	DockerImage    string
	Namespace      string
	DeploymentName string
	EndpointURL    string

	RequestCount  int64
	LastRequestAt *time.Time

	CreatedAt  time.Time
	DeployedAt *time.Time
	StoppedAt  *time.Time
	DeletedAt  *time.Time
}

// HostingResult is the typed outcome of hosting lifecycle operations.
type HostingResult struct {
	Success      bool
	ServerID     string
	Status       string
	EndpointURL  string
	DockerImage  string
	ErrorMessage string
}
