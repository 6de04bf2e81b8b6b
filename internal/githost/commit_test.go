package githost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mcpship/mcpship/internal/domain"
)

// fakeProvider implements the git-data subset CommitFiles touches.
type fakeProvider struct {
	Provider

	mu          sync.Mutex
	blobCount   int
	blobErrAt   int
	trees       [][]TreeEntry
	commits     []string
	refUpdates  []string
	headSHA     string
	headTreeSHA string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{headSHA: "head-sha", headTreeSHA: "base-tree", blobErrAt: -1}
}

func (f *fakeProvider) GetRef(ctx context.Context, owner, repo, branch string) (*Ref, error) {
	return &Ref{Name: "refs/heads/" + branch, SHA: f.headSHA}, nil
}

func (f *fakeProvider) GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	if sha != f.headSHA {
		return nil, fmt.Errorf("unknown commit %s", sha)
	}
	return &Commit{SHA: f.headSHA, TreeSHA: f.headTreeSHA}, nil
}

func (f *fakeProvider) CreateBlob(ctx context.Context, owner, repo, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blobErrAt >= 0 && f.blobCount == f.blobErrAt {
		f.blobCount++
		return "", errors.New("blob upload failed")
	}
	f.blobCount++
	return fmt.Sprintf("blob-%d", f.blobCount), nil
}

func (f *fakeProvider) CreateTree(ctx context.Context, owner, repo, baseTreeSHA string, entries []TreeEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if baseTreeSHA != "" && baseTreeSHA != f.headTreeSHA {
		return "", fmt.Errorf("unexpected base tree %s", baseTreeSHA)
	}
	f.trees = append(f.trees, entries)
	return "new-tree", nil
}

func (f *fakeProvider) CreateCommit(ctx context.Context, owner, repo, message, treeSHA string, parents []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if treeSHA != "new-tree" {
		return "", fmt.Errorf("unexpected tree %s", treeSHA)
	}
	if len(parents) != 1 || parents[0] != f.headSHA {
		return "", fmt.Errorf("unexpected parents %v", parents)
	}
	f.commits = append(f.commits, message)
	return "new-commit", nil
}

func (f *fakeProvider) UpdateRef(ctx context.Context, owner, repo, branch, sha string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refUpdates = append(f.refUpdates, sha)
	return nil
}

func testFiles(n int) []domain.DeploymentFile {
	files := make([]domain.DeploymentFile, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, domain.DeploymentFile{
			Path:    fmt.Sprintf("src/file%02d.ts", i),
			Content: fmt.Sprintf("content %d", i),
		})
	}
	return files
}

func TestCommitFilesSingleCommit(t *testing.T) {
	provider := newFakeProvider()
	sha, err := CommitFiles(context.Background(), provider, "owner", "repo", "main", "deploy", testFiles(12))
	if err != nil {
		t.Fatalf("CommitFiles: %v", err)
	}
	if sha != "new-commit" {
		t.Fatalf("sha = %q, want new-commit", sha)
	}
	if len(provider.commits) != 1 {
		t.Fatalf("created %d commits, want exactly 1", len(provider.commits))
	}
	if len(provider.refUpdates) != 1 || provider.refUpdates[0] != "new-commit" {
		t.Fatalf("ref updates = %v, want [new-commit]", provider.refUpdates)
	}
	if provider.blobCount != 12 {
		t.Fatalf("created %d blobs, want 12", provider.blobCount)
	}
	if len(provider.trees) != 1 || len(provider.trees[0]) != 12 {
		t.Fatalf("tree entries = %d, want 12 in one tree", len(provider.trees[0]))
	}
	entries := provider.trees[0]
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Path >= entries[i].Path {
			t.Fatalf("tree entries not sorted: %q >= %q", entries[i-1].Path, entries[i].Path)
		}
	}
	for _, entry := range entries {
		if entry.Mode != "100644" || entry.Type != "blob" {
			t.Fatalf("entry %q has mode=%s type=%s", entry.Path, entry.Mode, entry.Type)
		}
	}
}

func TestCommitFilesBlobFailureLeavesRefUntouched(t *testing.T) {
	provider := newFakeProvider()
	provider.blobErrAt = 3

	_, err := CommitFiles(context.Background(), provider, "owner", "repo", "main", "deploy", testFiles(8))
	if err == nil {
		t.Fatal("expected error when a blob upload fails")
	}
	if len(provider.commits) != 0 {
		t.Fatalf("created %d commits after blob failure, want 0", len(provider.commits))
	}
	if len(provider.refUpdates) != 0 {
		t.Fatalf("ref was updated after blob failure: %v", provider.refUpdates)
	}
}

func TestCommitFilesRejectsEmptySet(t *testing.T) {
	if _, err := CommitFiles(context.Background(), newFakeProvider(), "o", "r", "main", "m", nil); err == nil {
		t.Fatal("expected error for empty file set")
	}
}
