package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/mcpship/mcpship/internal/service/manifest"
)

const (
	commitAuthorName  = "mcpship"
	commitAuthorEmail = "deploy@mcpship.dev"
)

// LocalCommitter commits manifests into a local clone of the state
// repository. The reconciler is expected to watch the clone directly, so no
// push happens here.
type LocalCommitter struct {
	root   string
	logger *slog.Logger
}

var _ Committer = (*LocalCommitter)(nil)

// NewLocalCommitter opens the state repository at root.
func NewLocalCommitter(root string, logger *slog.Logger) (*LocalCommitter, error) {
	if _, err := git.PlainOpen(root); err != nil {
		return nil, fmt.Errorf("open state repository %s: %w", root, err)
	}
	return &LocalCommitter{root: root, logger: logger}, nil
}

// PublishServer writes the server's manifest files and commits them.
func (c *LocalCommitter) PublishServer(ctx context.Context, serverID string, set manifest.Set) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(c.root, filepath.FromSlash(ServerDir(serverID)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create server dir: %w", err)
	}
	for relPath, content := range serverFiles(serverID, set) {
		target := filepath.Join(c.root, filepath.FromSlash(relPath))
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", relPath, err)
		}
	}
	sha, err := c.commit(ServerDir(serverID), publishMessage(serverID))
	if err != nil {
		return "", err
	}
	c.logger.Info("published server manifests", "server_id", serverID, "commit", sha)
	return sha, nil
}

// RemoveServer deletes the server directory and commits the removal.
// Removing an already-absent server is a no-op.
func (c *LocalCommitter) RemoveServer(ctx context.Context, serverID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(c.root, filepath.FromSlash(ServerDir(serverID)))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("remove server dir: %w", err)
	}
	sha, err := c.commit(ServerDir(serverID), removeMessage(serverID))
	if err != nil {
		return "", err
	}
	c.logger.Info("removed server manifests", "server_id", serverID, "commit", sha)
	return sha, nil
}

func (c *LocalCommitter) commit(stagePath, message string) (string, error) {
	repo, err := git.PlainOpen(c.root)
	if err != nil {
		return "", fmt.Errorf("open state repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{Path: stagePath}); err != nil {
		return "", fmt.Errorf("stage %s: %w", stagePath, err)
	}
	when := time.Now()
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:    &object.Signature{Name: commitAuthorName, Email: commitAuthorEmail, When: when},
		Committer: &object.Signature{Name: commitAuthorName, Email: commitAuthorEmail, When: when},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}
