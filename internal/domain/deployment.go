package domain

import (
	"time"
)

// Deployment target types.
const (
	TargetRepo       = "repo"
	TargetSnippet    = "snippet"
	TargetEnterprise = "enterprise"
	TargetNone       = "none"
)

// Deployment record statuses. A record moves pending -> success|failed exactly
// once and never returns to pending; retries append a new record for the same
// artifact instead of mutating this one.
const (
	DeploymentPending = "pending"
	DeploymentSuccess = "success"
	DeploymentFailed  = "failed"
)

// DeploymentRecord captures a single publish attempt for a generated artifact.
type DeploymentRecord struct {
	ID         string
	ArtifactID string
	TargetType string
	Status     string

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

	Metadata RecordMetadata

	CreatedAt  time.Time
	DeployedAt *time.Time
}

// RecordMetadata is the per-record metadata bag, split into explicit
// sub-structs and serialized into a single JSONB column.
type RecordMetadata struct {
	Provider *ProviderMetadata `json:"provider,omitempty"`
	Hosting  *HostingMetadata  `json:"hosting,omitempty"`
	Retry    *RetryMetadata    `json:"retry,omitempty"`
	Rollback *RollbackMetadata `json:"rollback,omitempty"`
}

// ProviderMetadata records the requested options and the external resource
// the provider created. The request fields make retries reproducible without
// re-reading the original call.
type ProviderMetadata struct {
	RequestedName string `json:"requestedName,omitempty"`
	Description   string `json:"description,omitempty"`
	Owner         string `json:"owner,omitempty"`
	RepoName      string `json:"repoName,omitempty"`
	SnippetID     string `json:"snippetId,omitempty"`
	IsPrivate     bool   `json:"isPrivate,omitempty"`
}

// HostingMetadata carries what the hosting orchestrator needs to build and
// publish a container for this artifact.
type HostingMetadata struct {
	ServerName string `json:"serverName,omitempty"`
	BuildPath  string `json:"buildPath,omitempty"`
}

// RetryMetadata tracks how often a failed record was retried. The counter is
// an audit trail on the original record; each retry still produces a fresh
// DeploymentRecord.
type RetryMetadata struct {
	RetryCount  int        `json:"retryCount"`
	LastRetryAt *time.Time `json:"lastRetryAt,omitempty"`
}

// RollbackMetadata stamps a record once its external resources were removed,
// making a second rollback a no-op.
type RollbackMetadata struct {
	Performed bool      `json:"performed"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeploymentFile is the unit of artifact transport between the generation
// pipeline and every provider.
type DeploymentFile struct {
	Path    string
	Content string
}

// DeploymentResult is the typed outcome returned by every deploy operation.
// Failures are values, not panics: provider and precondition errors are
// classified and attached here.
type DeploymentResult struct {
	Success      bool
	DeploymentID string
	TargetType   string

	RepositoryURL string
	CloneURL      string
	CodespaceURL  string
	SnippetURL    string
	SnippetRawURL string

	ErrorCode      string
	ErrorMessage   string
	RetryStrategy  string
	RetryAfterMS   int64
	SuggestedNames []string
}

// DeploymentFilter narrows ListDeployments queries.
type DeploymentFilter struct {
	ArtifactID string
	TargetType string
	Status     string
	Limit      int
	Offset     int
}
