package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/githost"
	"github.com/mcpship/mcpship/internal/service/manifest"
)

// RemoteCommitter commits manifests to a hosted state repository through the
// git data API.
type RemoteCommitter struct {
	provider githost.Provider
	owner    string
	repo     string
	branch   string
	logger   *slog.Logger
}

var _ Committer = (*RemoteCommitter)(nil)

// NewRemoteCommitter targets owner/repo on the given branch.
func NewRemoteCommitter(provider githost.Provider, owner, repo, branch string, logger *slog.Logger) *RemoteCommitter {
	if branch == "" {
		branch = "main"
	}
	return &RemoteCommitter{provider: provider, owner: owner, repo: repo, branch: branch, logger: logger}
}

// PublishServer commits the server's manifest files in one commit.
func (c *RemoteCommitter) PublishServer(ctx context.Context, serverID string, set manifest.Set) (string, error) {
	files := make([]domain.DeploymentFile, 0, 4)
	for relPath, content := range serverFiles(serverID, set) {
		files = append(files, domain.DeploymentFile{Path: relPath, Content: content})
	}
	sort.Slice(files, func(a, b int) bool { return files[a].Path < files[b].Path })

	sha, err := githost.CommitFiles(ctx, c.provider, c.owner, c.repo, c.branch, publishMessage(serverID), files)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", serverID, err)
	}
	c.logger.Info("published server manifests", "server_id", serverID, "commit", sha)
	return sha, nil
}

// RemoveServer rebuilds the branch tree without the server's directory and
// commits the result. The git data API has no delete-path operation, so the
// full blob list is re-filed minus the removed prefix. Removing an
// already-absent server is a no-op.
func (c *RemoteCommitter) RemoveServer(ctx context.Context, serverID string) (string, error) {
	ref, err := c.provider.GetRef(ctx, c.owner, c.repo, c.branch)
	if err != nil {
		return "", fmt.Errorf("get branch ref: %w", err)
	}
	head, err := c.provider.GetCommit(ctx, c.owner, c.repo, ref.SHA)
	if err != nil {
		return "", fmt.Errorf("get head commit: %w", err)
	}
	tree, err := c.provider.GetTree(ctx, c.owner, c.repo, head.TreeSHA, true)
	if err != nil {
		return "", fmt.Errorf("get branch tree: %w", err)
	}
	// Rebuilding from a truncated listing would drop every unlisted file,
	// not just the removed server's.
	if tree.Truncated {
		return "", fmt.Errorf("remove %s: tree listing for %s/%s is truncated", serverID, c.owner, c.repo)
	}

	prefix := ServerDir(serverID) + "/"
	kept := make([]githost.TreeEntry, 0, len(tree.Entries))
	removed := 0
	for _, entry := range tree.Entries {
		if entry.Type != "blob" {
			continue
		}
		if strings.HasPrefix(entry.Path, prefix) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	if removed == 0 {
		return "", nil
	}

	// Base tree omitted on purpose: building from scratch is what drops the
	// removed paths.
	treeSHA, err := c.provider.CreateTree(ctx, c.owner, c.repo, "", kept)
	if err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}
	commitSHA, err := c.provider.CreateCommit(ctx, c.owner, c.repo, removeMessage(serverID), treeSHA, []string{head.SHA})
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}
	if err := c.provider.UpdateRef(ctx, c.owner, c.repo, c.branch, commitSHA, false); err != nil {
		return "", fmt.Errorf("update branch ref: %w", err)
	}
	c.logger.Info("removed server manifests", "server_id", serverID, "commit", commitSHA, "files_removed", removed)
	return commitSHA, nil
}
