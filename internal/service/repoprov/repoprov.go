// Package repoprov publishes a multi-file project as a hosted git
// repository: sanitized naming, collision probing, repository creation and
// one atomic commit carrying every file.
package repoprov

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/githost"
)

const (
	maxNameLen       = 100
	collisionProbes  = 3
	propagationDelay = 2 * time.Second

	initialCommitMessage = "Initial deployment"
)

// OrphanedRepoError reports a failure that happened after the repository was
// created: the repo exists on the provider but never received its files. The
// identity travels on the error so the caller can persist it and a later
// rollback can find the orphan.
type OrphanedRepoError struct {
	Owner    string
	RepoName string
	Err      error
}

func (e *OrphanedRepoError) Error() string {
	return fmt.Sprintf("repository %s/%s created but left orphaned: %v", e.Owner, e.RepoName, e.Err)
}

func (e *OrphanedRepoError) Unwrap() error { return e.Err }

// Result is the external state created by a successful repo deployment.
type Result struct {
	Owner        string
	RepoName     string
	RepoURL      string
	CloneURL     string
	CodespaceURL string
	CommitSHA    string
}

// Service publishes projects through a git-hosting provider.
type Service struct {
	provider githost.Provider
	owner    string
	logger   *slog.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService targets the given account on the provider.
func NewService(provider githost.Provider, owner string, logger *slog.Logger) *Service {
	return &Service{
		provider: provider,
		owner:    owner,
		logger:   logger,
		sleep:    sleepContext,
	}
}

var nameInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
var hyphenRuns = regexp.MustCompile(`-{2,}`)

// SanitizeName normalizes a requested repository name: lowercase, invalid
// runs collapsed to a single hyphen, edge hyphens trimmed, capped at 100
// characters.
func SanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nameInvalid.ReplaceAllString(s, "-")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxNameLen {
		s = strings.Trim(s[:maxNameLen], "-")
	}
	if s == "" {
		s = "mcp-server"
	}
	return s
}

// Deploy creates a repository under a collision-free name and commits every
// file in one commit. Two callers racing for the same name can both pass the
// probe and collide at creation; the caller classifies that failure and
// suggests alternatives rather than holding a reservation lock here.
func (s *Service) Deploy(ctx context.Context, name, description string, isPrivate bool, files []domain.DeploymentFile) (*Result, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("deploy repository: empty file set")
	}

	candidate, err := s.resolveName(ctx, SanitizeName(name))
	if err != nil {
		return nil, err
	}

	repo, err := s.provider.CreateRepository(ctx, candidate, description, isPrivate)
	if err != nil {
		return nil, fmt.Errorf("create repository %s: %w", candidate, err)
	}
	s.logger.Info("repository created", "owner", s.owner, "repo", repo.Name)

	// The hosting API acknowledges creation before the default branch is
	// consistently readable. From here on the repo exists externally, so any
	// failure is reported with its identity attached.
	if err := s.sleep(ctx, propagationDelay); err != nil {
		return nil, &OrphanedRepoError{Owner: s.owner, RepoName: repo.Name, Err: err}
	}

	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	commitSHA, err := githost.CommitFiles(ctx, s.provider, s.owner, repo.Name, branch, initialCommitMessage, files)
	if err != nil {
		return nil, &OrphanedRepoError{Owner: s.owner, RepoName: repo.Name, Err: fmt.Errorf("commit files: %w", err)}
	}

	return &Result{
		Owner:        s.owner,
		RepoName:     repo.Name,
		RepoURL:      repo.HTMLURL,
		CloneURL:     repo.CloneURL,
		CodespaceURL: CodespaceURL(s.owner, repo.Name),
		CommitSHA:    commitSHA,
	}, nil
}

// Delete removes the repository from the provider.
func (s *Service) Delete(ctx context.Context, repoName string) error {
	if err := s.provider.DeleteRepository(ctx, s.owner, repoName); err != nil {
		return fmt.Errorf("delete repository %s/%s: %w", s.owner, repoName, err)
	}
	return nil
}

// resolveName probes for an existing repo under the candidate name, suffixing
// a timestamp on each collision, up to three probes.
func (s *Service) resolveName(ctx context.Context, name string) (string, error) {
	candidate := name
	for probe := 0; probe < collisionProbes; probe++ {
		_, err := s.provider.GetRepository(ctx, s.owner, candidate)
		if githost.IsNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe repository name %s: %w", candidate, err)
		}
		s.logger.Info("repository name taken", "candidate", candidate)
		candidate = suffixed(name)
	}
	return "", fmt.Errorf("repository name %s already exists after %d probes", name, collisionProbes)
}

func suffixed(name string) string {
	suffix := fmt.Sprintf("-%d", time.Now().Unix())
	if len(name)+len(suffix) > maxNameLen {
		name = name[:maxNameLen-len(suffix)]
	}
	return name + suffix
}

// CodespaceURL derives the deterministic cloud-IDE link for a repository.
func CodespaceURL(owner, repo string) string {
	return fmt.Sprintf("https://codespaces.new/%s/%s", owner, repo)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
