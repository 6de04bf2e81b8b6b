// Package snippet publishes a project as a single-file paste on the hosting
// provider. Multi-file projects are flattened first through the bundler.
package snippet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/githost"
	"github.com/mcpship/mcpship/internal/service/scaffold"
)

// Result is the external state created by a successful snippet deployment.
type Result struct {
	SnippetID   string
	URL         string
	RawURL      string
	Filename    string
	Description string
}

// Service wraps the provider's snippet operations.
type Service struct {
	provider githost.Provider
	logger   *slog.Logger
}

// NewService returns a snippet publisher on the given provider.
func NewService(provider githost.Provider, logger *slog.Logger) *Service {
	return &Service{provider: provider, logger: logger}
}

// Deploy bundles the file set into one file and creates it as a snippet.
// The returned raw URL always refers to the file just written.
func (s *Service) Deploy(ctx context.Context, files []domain.DeploymentFile, opts scaffold.BundleOptions, public bool) (*Result, error) {
	bundle, err := scaffold.BuildBundle(files, opts)
	if err != nil {
		return nil, err
	}

	created, err := s.provider.CreateSnippet(ctx, bundle.Description, public, map[string]string{
		bundle.Filename: bundle.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("create snippet: %w", err)
	}
	result, err := toResult(created, bundle.Filename)
	if err != nil {
		return nil, err
	}
	s.logger.Info("snippet created", "snippet_id", result.SnippetID, "filename", result.Filename)
	return result, nil
}

// Update re-bundles the current files and rewrites the snippet in place.
func (s *Service) Update(ctx context.Context, id string, files []domain.DeploymentFile, opts scaffold.BundleOptions) (*Result, error) {
	bundle, err := scaffold.BuildBundle(files, opts)
	if err != nil {
		return nil, err
	}
	updated, err := s.provider.UpdateSnippet(ctx, id, bundle.Description, map[string]string{
		bundle.Filename: bundle.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("update snippet %s: %w", id, err)
	}
	result, err := toResult(updated, bundle.Filename)
	if err != nil {
		return nil, err
	}
	s.logger.Info("snippet updated", "snippet_id", result.SnippetID)
	return result, nil
}

// Get fetches the snippet.
func (s *Service) Get(ctx context.Context, id string) (*githost.Snippet, error) {
	snip, err := s.provider.GetSnippet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get snippet %s: %w", id, err)
	}
	return snip, nil
}

// Delete removes the snippet from the provider.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.provider.DeleteSnippet(ctx, id); err != nil {
		return fmt.Errorf("delete snippet %s: %w", id, err)
	}
	return nil
}

// toResult locates the just-written file so the raw URL contract holds even
// if the provider reports extra files.
func toResult(snip *githost.Snippet, filename string) (*Result, error) {
	for _, file := range snip.Files {
		if file.Filename == filename {
			return &Result{
				SnippetID:   snip.ID,
				URL:         snip.HTMLURL,
				RawURL:      file.RawURL,
				Filename:    file.Filename,
				Description: snip.Description,
			}, nil
		}
	}
	return nil, fmt.Errorf("snippet %s: file %s missing from provider response", snip.ID, filename)
}
