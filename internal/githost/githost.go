// Package githost abstracts the git-hosting API behind a typed provider
// interface: repository CRUD, low-level git data plumbing, and snippet CRUD.
// Publishing code paths depend on this boundary so they can be exercised
// against a fake without network access.
package githost

import (
	"context"
	"fmt"
	"net/http"
)

// Repository is a hosted git repository.
type Repository struct {
	Owner         string `json:"-"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// Ref is a branch reference pointing at a commit.
type Ref struct {
	Name string
	SHA  string
}

// Commit is a git commit object.
type Commit struct {
	SHA     string
	TreeSHA string
	Parents []string
	Message string
}

// TreeEntry is one entry of a git tree.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha,omitempty"`
}

// Tree is a git tree object, optionally fetched recursively.
type Tree struct {
	SHA       string      `json:"sha"`
	Entries   []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// SnippetFile is a single file within a snippet, with its raw content URL.
type SnippetFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	RawURL   string `json:"raw_url"`
}

// Snippet is a single-file (or few-file) paste hosted by the provider.
type Snippet struct {
	ID          string
	HTMLURL     string
	Description string
	Public      bool
	Files       []SnippetFile
}

// Provider is the git-hosting API surface the publishing core depends on.
type Provider interface {
	CreateRepository(ctx context.Context, name, description string, private bool) (*Repository, error)
	GetRepository(ctx context.Context, owner, name string) (*Repository, error)
	DeleteRepository(ctx context.Context, owner, name string) error

	GetRef(ctx context.Context, owner, repo, branch string) (*Ref, error)
	GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error)
	GetTree(ctx context.Context, owner, repo, sha string, recursive bool) (*Tree, error)
	CreateBlob(ctx context.Context, owner, repo, content string) (string, error)
	CreateTree(ctx context.Context, owner, repo, baseTreeSHA string, entries []TreeEntry) (string, error)
	CreateCommit(ctx context.Context, owner, repo, message, treeSHA string, parents []string) (string, error)
	UpdateRef(ctx context.Context, owner, repo, branch, sha string, force bool) error

	CreateSnippet(ctx context.Context, description string, public bool, files map[string]string) (*Snippet, error)
	GetSnippet(ctx context.Context, id string) (*Snippet, error)
	UpdateSnippet(ctx context.Context, id, description string, files map[string]string) (*Snippet, error)
	DeleteSnippet(ctx context.Context, id string) error
}

// APIError carries the raw provider response for classification: status
// code, message, and response headers (rate-limit metadata lives there).
type APIError struct {
	StatusCode int
	Message    string
	Header     http.Header
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hosting api: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}
