package githost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a GitHub-compatible hosting API over REST.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
	retry   retryPolicy
}

var _ Provider = (*Client)(nil)

// NewClient constructs a hosting API client. All calls share a fixed 30s
// request timeout and rate-limit-aware retry on 403/429.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		retry:   defaultRetryPolicy(),
	}
}

// AsAPIError unwraps err to an *APIError when the provider produced it.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// CreateRepository creates a repository under the authenticated owner.
func (c *Client) CreateRepository(ctx context.Context, name, description string, private bool) (*Repository, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
		"private":     private,
		"auto_init":   true,
	}
	var repo Repository
	if err := c.do(ctx, http.MethodPost, "/user/repos", body, &repo); err != nil {
		return nil, err
	}
	repo.Owner = ownerFromFullName(repo.FullName)
	return &repo, nil
}

// GetRepository fetches a repository by owner and name.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*Repository, error) {
	var repo Repository
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(name))
	if err := c.do(ctx, http.MethodGet, path, nil, &repo); err != nil {
		return nil, err
	}
	repo.Owner = owner
	return &repo, nil
}

// DeleteRepository removes a repository.
func (c *Client) DeleteRepository(ctx context.Context, owner, name string) error {
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(name))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetRef resolves a branch to the commit it points at.
func (c *Client) GetRef(ctx context.Context, owner, repo, branch string) (*Ref, error) {
	var payload struct {
		Ref    string `json:"ref"`
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return &Ref{Name: payload.Ref, SHA: payload.Object.SHA}, nil
}

// GetCommit fetches a commit object.
func (c *Client) GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	var payload struct {
		SHA  string `json:"sha"`
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
		Parents []struct {
			SHA string `json:"sha"`
		} `json:"parents"`
		Message string `json:"message"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/commits/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	commit := &Commit{SHA: payload.SHA, TreeSHA: payload.Tree.SHA, Message: payload.Message}
	for _, parent := range payload.Parents {
		commit.Parents = append(commit.Parents, parent.SHA)
	}
	return commit, nil
}

// GetTree fetches a tree, optionally with the full recursive listing.
func (c *Client) GetTree(ctx context.Context, owner, repo, sha string, recursive bool) (*Tree, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))
	if recursive {
		path += "?recursive=1"
	}
	var tree Tree
	if err := c.do(ctx, http.MethodGet, path, nil, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// CreateBlob uploads file content and returns the blob SHA.
func (c *Client) CreateBlob(ctx context.Context, owner, repo, content string) (string, error) {
	body := map[string]any{
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		"encoding": "base64",
	}
	var payload struct {
		SHA string `json:"sha"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/blobs", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.do(ctx, http.MethodPost, path, body, &payload); err != nil {
		return "", err
	}
	return payload.SHA, nil
}

// CreateTree builds a new tree layered on the base tree.
func (c *Client) CreateTree(ctx context.Context, owner, repo, baseTreeSHA string, entries []TreeEntry) (string, error) {
	body := map[string]any{"tree": entries}
	if baseTreeSHA != "" {
		body["base_tree"] = baseTreeSHA
	}
	var payload struct {
		SHA string `json:"sha"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/trees", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.do(ctx, http.MethodPost, path, body, &payload); err != nil {
		return "", err
	}
	return payload.SHA, nil
}

// CreateCommit creates a commit object for the tree.
func (c *Client) CreateCommit(ctx context.Context, owner, repo, message, treeSHA string, parents []string) (string, error) {
	body := map[string]any{
		"message": message,
		"tree":    treeSHA,
		"parents": parents,
	}
	var payload struct {
		SHA string `json:"sha"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/commits", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.do(ctx, http.MethodPost, path, body, &payload); err != nil {
		return "", err
	}
	return payload.SHA, nil
}

// UpdateRef fast-forwards the branch ref to the commit.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, branch, sha string, force bool) error {
	body := map[string]any{"sha": sha, "force": force}
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

type snippetPayload struct {
	ID          string                 `json:"id"`
	HTMLURL     string                 `json:"html_url"`
	Description string                 `json:"description"`
	Public      bool                   `json:"public"`
	Files       map[string]SnippetFile `json:"files"`
}

func (p snippetPayload) toSnippet() *Snippet {
	snippet := &Snippet{
		ID:          p.ID,
		HTMLURL:     p.HTMLURL,
		Description: p.Description,
		Public:      p.Public,
	}
	for name, file := range p.Files {
		if file.Filename == "" {
			file.Filename = name
		}
		snippet.Files = append(snippet.Files, file)
	}
	return snippet
}

// CreateSnippet creates a paste with the given files.
func (c *Client) CreateSnippet(ctx context.Context, description string, public bool, files map[string]string) (*Snippet, error) {
	body := map[string]any{
		"description": description,
		"public":      public,
		"files":       snippetFilesBody(files),
	}
	var payload snippetPayload
	if err := c.do(ctx, http.MethodPost, "/gists", body, &payload); err != nil {
		return nil, err
	}
	return payload.toSnippet(), nil
}

// GetSnippet fetches a paste by id.
func (c *Client) GetSnippet(ctx context.Context, id string) (*Snippet, error) {
	var payload snippetPayload
	if err := c.do(ctx, http.MethodGet, "/gists/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	return payload.toSnippet(), nil
}

// UpdateSnippet overwrites the files of an existing paste. The returned raw
// URLs refer to the just-written content.
func (c *Client) UpdateSnippet(ctx context.Context, id, description string, files map[string]string) (*Snippet, error) {
	body := map[string]any{
		"description": description,
		"files":       snippetFilesBody(files),
	}
	var payload snippetPayload
	if err := c.do(ctx, http.MethodPatch, "/gists/"+url.PathEscape(id), body, &payload); err != nil {
		return nil, err
	}
	return payload.toSnippet(), nil
}

// DeleteSnippet removes a paste.
func (c *Client) DeleteSnippet(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/gists/"+url.PathEscape(id), nil, nil)
}

func snippetFilesBody(files map[string]string) map[string]map[string]string {
	body := make(map[string]map[string]string, len(files))
	for name, content := range files {
		body[name] = map[string]string{"content": content}
	}
	return body
}

// do issues one API request with rate-limit-aware retry and decodes the
// response into out when provided.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.withRateLimitRetry(ctx, method+" "+path, func() error {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("hosting api request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    readAPIMessage(resp.Body),
				Header:     resp.Header.Clone(),
			}
		}
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func readAPIMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(raw))
}

func ownerFromFullName(fullName string) string {
	if idx := strings.IndexByte(fullName, '/'); idx > 0 {
		return fullName[:idx]
	}
	return ""
}
