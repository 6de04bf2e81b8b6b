package githost

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mcpship/mcpship/internal/domain"
)

const (
	blobMode = "100644"
	blobType = "blob"

	// Blob uploads are independent and run concurrently; tree, commit and
	// ref steps are strictly sequential.
	blobConcurrency = 5
)

// CommitFiles performs one atomic multi-file commit on a branch: read the
// branch head, read its tree, upload one blob per file, build a new tree
// layered on the base tree, create a single commit with the prior head as
// sole parent, and fast-forward the ref. No partial commit ever becomes
// visible on the branch.
func CommitFiles(ctx context.Context, p Provider, owner, repo, branch, message string, files []domain.DeploymentFile) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("commit files: empty file set")
	}

	ref, err := p.GetRef(ctx, owner, repo, branch)
	if err != nil {
		return "", fmt.Errorf("get branch ref: %w", err)
	}
	head, err := p.GetCommit(ctx, owner, repo, ref.SHA)
	if err != nil {
		return "", fmt.Errorf("get head commit: %w", err)
	}

	entries, err := createBlobs(ctx, p, owner, repo, files)
	if err != nil {
		return "", err
	}

	treeSHA, err := p.CreateTree(ctx, owner, repo, head.TreeSHA, entries)
	if err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}
	commitSHA, err := p.CreateCommit(ctx, owner, repo, message, treeSHA, []string{head.SHA})
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}
	if err := p.UpdateRef(ctx, owner, repo, branch, commitSHA, false); err != nil {
		return "", fmt.Errorf("update branch ref: %w", err)
	}
	return commitSHA, nil
}

// createBlobs uploads file contents concurrently and returns tree entries in
// deterministic path order.
func createBlobs(ctx context.Context, p Provider, owner, repo string, files []domain.DeploymentFile) ([]TreeEntry, error) {
	type result struct {
		index int
		sha   string
		err   error
	}

	sem := make(chan struct{}, blobConcurrency)
	results := make([]result, len(files))
	var wg sync.WaitGroup
	for i, file := range files {
		wg.Add(1)
		go func(i int, content string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			sha, err := p.CreateBlob(ctx, owner, repo, content)
			results[i] = result{index: i, sha: sha, err: err}
		}(i, file.Content)
	}
	wg.Wait()

	entries := make([]TreeEntry, 0, len(files))
	for i, file := range files {
		if results[i].err != nil {
			return nil, fmt.Errorf("create blob %s: %w", file.Path, results[i].err)
		}
		entries = append(entries, TreeEntry{
			Path: file.Path,
			Mode: blobMode,
			Type: blobType,
			SHA:  results[i].sha,
		})
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Path < entries[b].Path })
	return entries, nil
}
