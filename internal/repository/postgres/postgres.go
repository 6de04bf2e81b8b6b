package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository       = (*Repository)(nil)
	_ repository.ArtifactRepository   = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.ServerRepository     = (*Repository)(nil)
)

// GetUserByID retrieves a user and tier by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, tier, created_at FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Tier, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ArtifactExists reports whether the generation pipeline produced a record
// for the artifact.
func (r *Repository) ArtifactExists(ctx context.Context, artifactID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM artifacts WHERE id = $1)`
	row := r.pool.QueryRow(ctx, query, artifactID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// GetArtifactFiles returns the generated file set for an artifact. An empty
// result is valid.
func (r *Repository) GetArtifactFiles(ctx context.Context, artifactID string) ([]domain.DeploymentFile, error) {
	const query = `SELECT path, content FROM artifact_files WHERE artifact_id = $1 ORDER BY path`
	rows, err := r.pool.Query(ctx, query, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]domain.DeploymentFile, 0)
	for rows.Next() {
		var f domain.DeploymentFile
		if err := rows.Scan(&f.Path, &f.Content); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// CreateDeployment inserts a deployment record.
func (r *Repository) CreateDeployment(ctx context.Context, record *domain.DeploymentRecord) error {
	if record == nil {
		return fmt.Errorf("deployment record required")
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	names, err := json.Marshal(record.SuggestedNames)
	if err != nil {
		return fmt.Errorf("encode suggested names: %w", err)
	}
	const query = `INSERT INTO deployments (id, artifact_id, target_type, status,
			repository_url, clone_url, codespace_url, snippet_url, snippet_raw_url,
			error_message, error_code, retry_strategy, retry_after_ms, suggested_names,
			metadata, created_at, deployed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err = r.pool.Exec(ctx, query,
		record.ID,
		record.ArtifactID,
		record.TargetType,
		record.Status,
		record.RepositoryURL,
		record.CloneURL,
		record.CodespaceURL,
		record.SnippetURL,
		record.SnippetRawURL,
		record.ErrorMessage,
		record.ErrorCode,
		record.RetryStrategy,
		record.RetryAfterMS,
		names,
		metadata,
		record.CreatedAt,
		record.DeployedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23503":
				return repository.ErrNotFound
			case "23514", "22P02", "23505":
				return repository.ErrInvalidArgument
			}
		}
		return err
	}
	return nil
}

// CompleteDeployment transitions a pending record to success or failed. The
// WHERE clause guards the pending -> terminal transition: a completed record
// never flips back.
func (r *Repository) CompleteDeployment(ctx context.Context, completion repository.DeploymentCompletion) error {
	if completion.Status != domain.DeploymentSuccess && completion.Status != domain.DeploymentFailed {
		return repository.ErrInvalidArgument
	}
	var metadata any
	if completion.Metadata != nil {
		encoded, err := json.Marshal(completion.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = encoded
	}
	var names any
	if completion.SuggestedNames != nil {
		encoded, err := json.Marshal(completion.SuggestedNames)
		if err != nil {
			return fmt.Errorf("encode suggested names: %w", err)
		}
		names = encoded
	}
	const query = `UPDATE deployments
		SET status = $2,
			repository_url = COALESCE($3, repository_url),
			clone_url = COALESCE($4, clone_url),
			codespace_url = COALESCE($5, codespace_url),
			snippet_url = COALESCE($6, snippet_url),
			snippet_raw_url = COALESCE($7, snippet_raw_url),
			error_message = COALESCE($8, error_message),
			error_code = COALESCE($9, error_code),
			retry_strategy = COALESCE($10, retry_strategy),
			retry_after_ms = COALESCE($11, retry_after_ms),
			suggested_names = COALESCE($12, suggested_names),
			metadata = COALESCE($13, metadata),
			deployed_at = COALESCE($14, deployed_at)
		WHERE id = $1 AND status = 'pending'`
	cmdTag, err := r.pool.Exec(ctx, query,
		completion.DeploymentID,
		completion.Status,
		emptyToNil(completion.RepositoryURL),
		emptyToNil(completion.CloneURL),
		emptyToNil(completion.CodespaceURL),
		emptyToNil(completion.SnippetURL),
		emptyToNil(completion.SnippetRawURL),
		emptyToNil(completion.ErrorMessage),
		emptyToNil(completion.ErrorCode),
		emptyToNil(completion.RetryStrategy),
		int64ToNil(completion.RetryAfterMS),
		names,
		metadata,
		completion.DeployedAt,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateDeploymentMetadata overwrites the metadata bag on a record. Used for
// retry counters and rollback stamps after the record is terminal.
func (r *Repository) UpdateDeploymentMetadata(ctx context.Context, deploymentID string, metadata domain.RecordMetadata) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	const query = `UPDATE deployments SET metadata = $2 WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, deploymentID, encoded)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const deploymentColumns = `id, artifact_id, target_type, status,
	repository_url, clone_url, codespace_url, snippet_url, snippet_raw_url,
	error_message, error_code, retry_strategy, retry_after_ms, suggested_names,
	metadata, created_at, deployed_at`

// GetDeploymentByID fetches a deployment record by identifier.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.DeploymentRecord, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	record, err := scanDeployment(r.pool.QueryRow(ctx, query, deploymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// LatestDeploymentByArtifact returns the most recent attempt for an artifact.
func (r *Repository) LatestDeploymentByArtifact(ctx context.Context, artifactID string) (*domain.DeploymentRecord, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE artifact_id = $1 ORDER BY created_at DESC LIMIT 1`
	record, err := scanDeployment(r.pool.QueryRow(ctx, query, artifactID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// ListDeployments enumerates attempts, newest first.
func (r *Repository) ListDeployments(ctx context.Context, filter domain.DeploymentFilter) ([]domain.DeploymentRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE ($1 = '' OR artifact_id = $1)
			AND ($2 = '' OR target_type = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	rows, err := r.pool.Query(ctx, query,
		strings.TrimSpace(filter.ArtifactID),
		strings.TrimSpace(filter.TargetType),
		strings.TrimSpace(filter.Status),
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.DeploymentRecord, 0)
	for rows.Next() {
		record, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// DeleteDeployment removes a deployment record.
func (r *Repository) DeleteDeployment(ctx context.Context, deploymentID string) error {
	const query = `DELETE FROM deployments WHERE id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, deploymentID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (*domain.DeploymentRecord, error) {
	var (
		d          domain.DeploymentRecord
		names      []byte
		metadata   []byte
		deployedAt sql.NullTime
	)
	if err := row.Scan(
		&d.ID,
		&d.ArtifactID,
		&d.TargetType,
		&d.Status,
		&d.RepositoryURL,
		&d.CloneURL,
		&d.CodespaceURL,
		&d.SnippetURL,
		&d.SnippetRawURL,
		&d.ErrorMessage,
		&d.ErrorCode,
		&d.RetryStrategy,
		&d.RetryAfterMS,
		&names,
		&metadata,
		&d.CreatedAt,
		&deployedAt,
	); err != nil {
		return nil, err
	}
	if len(names) > 0 {
		if err := json.Unmarshal(names, &d.SuggestedNames); err != nil {
			return nil, fmt.Errorf("decode suggested names: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if deployedAt.Valid {
		value := deployedAt.Time.UTC()
		d.DeployedAt = &value
	}
	return &d, nil
}

// CreateServer inserts a hosted server row.
func (r *Repository) CreateServer(ctx context.Context, server *domain.HostedServer) error {
	if server == nil {
		return fmt.Errorf("hosted server required")
	}
	const query = `INSERT INTO hosted_servers (server_id, server_name, artifact_id, status, status_message,
			docker_image, namespace, deployment_name, endpoint_url, request_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)`
	_, err := r.pool.Exec(ctx, query,
		server.ServerID,
		server.ServerName,
		server.ArtifactID,
		server.Status,
		server.StatusMessage,
		server.DockerImage,
		server.Namespace,
		server.DeploymentName,
		server.EndpointURL,
		server.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrInvalidArgument
		}
		return err
	}
	return nil
}

const serverColumns = `server_id, server_name, artifact_id, status, status_message,
	docker_image, namespace, deployment_name, endpoint_url, request_count,
	last_request_at, created_at, deployed_at, stopped_at, deleted_at`

// GetServerByID fetches a hosted server row.
func (r *Repository) GetServerByID(ctx context.Context, serverID string) (*domain.HostedServer, error) {
	query := `SELECT ` + serverColumns + ` FROM hosted_servers WHERE server_id = $1`
	server, err := scanServer(r.pool.QueryRow(ctx, query, serverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return server, nil
}

// ListServers enumerates hosted servers, newest first, soft-deleted included.
func (r *Repository) ListServers(ctx context.Context, limit, offset int) ([]domain.HostedServer, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + serverColumns + ` FROM hosted_servers ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := make([]domain.HostedServer, 0)
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *server)
	}
	return servers, rows.Err()
}

// UpdateServerStatus mutates hosted server state. Writes are last-writer-wins;
// there is no optimistic lock on concurrent stop/start/delete.
func (r *Repository) UpdateServerStatus(ctx context.Context, update repository.ServerStatusUpdate) error {
	const query = `UPDATE hosted_servers
		SET status = COALESCE($2, status),
			status_message = COALESCE($3, status_message),
			docker_image = COALESCE($4, docker_image),
			deployment_name = COALESCE($5, deployment_name),
			endpoint_url = COALESCE($6, endpoint_url),
			deployed_at = COALESCE($7, deployed_at),
			stopped_at = CASE WHEN $10 THEN NULL ELSE COALESCE($8, stopped_at) END,
			deleted_at = COALESCE($9, deleted_at)
		WHERE server_id = $1`
	cmdTag, err := r.pool.Exec(ctx, query,
		update.ServerID,
		emptyToNil(update.Status),
		emptyToNil(update.StatusMessage),
		emptyToNil(update.DockerImage),
		emptyToNil(update.DeploymentName),
		emptyToNil(update.EndpointURL),
		update.DeployedAt,
		update.StoppedAt,
		update.DeletedAt,
		update.ClearStoppedAt,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IncrementRequestCount bumps usage counters for the external proxy.
func (r *Repository) IncrementRequestCount(ctx context.Context, serverID string, at time.Time) error {
	const query = `UPDATE hosted_servers
		SET request_count = request_count + 1, last_request_at = $2
		WHERE server_id = $1`
	cmdTag, err := r.pool.Exec(ctx, query, serverID, at.UTC())
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanServer(row rowScanner) (*domain.HostedServer, error) {
	var (
		s             domain.HostedServer
		lastRequestAt sql.NullTime
		deployedAt    sql.NullTime
		stoppedAt     sql.NullTime
		deletedAt     sql.NullTime
	)
	if err := row.Scan(
		&s.ServerID,
		&s.ServerName,
		&s.ArtifactID,
		&s.Status,
		&s.StatusMessage,
		&s.DockerImage,
		&s.Namespace,
		&s.DeploymentName,
		&s.EndpointURL,
		&s.RequestCount,
		&lastRequestAt,
		&s.CreatedAt,
		&deployedAt,
		&stoppedAt,
		&deletedAt,
	); err != nil {
		return nil, err
	}
	if lastRequestAt.Valid {
		value := lastRequestAt.Time.UTC()
		s.LastRequestAt = &value
	}
	if deployedAt.Valid {
		value := deployedAt.Time.UTC()
		s.DeployedAt = &value
	}
	if stoppedAt.Valid {
		value := stoppedAt.Time.UTC()
		s.StoppedAt = &value
	}
	if deletedAt.Valid {
		value := deletedAt.Time.UTC()
		s.DeletedAt = &value
	}
	return &s, nil
}

func emptyToNil(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func int64ToNil(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
