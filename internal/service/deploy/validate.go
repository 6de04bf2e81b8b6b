package deploy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/githost"
	"github.com/mcpship/mcpship/internal/service/classify"
)

// URLValidator confirms a published deployment is reachable by probing the
// URL the provider returned. Freshly written content can lag behind the API
// response, so transient probe failures retry under the classified policy.
type URLValidator struct {
	client *http.Client
}

var _ Validator = (*URLValidator)(nil)

// NewURLValidator returns a validator with a fixed request timeout.
func NewURLValidator() *URLValidator {
	return &URLValidator{client: &http.Client{Timeout: 30 * time.Second}}
}

// ValidateDeployment probes the deployment's public URL. Snippets are checked
// through their raw content URL, repositories through the repository page.
func (v *URLValidator) ValidateDeployment(ctx context.Context, result domain.DeploymentResult) error {
	url := result.RepositoryURL
	if result.TargetType == domain.TargetSnippet {
		url = result.SnippetRawURL
	}
	if url == "" {
		return fmt.Errorf("no URL to validate")
	}

	_, err := classify.WithRetry(ctx, func(ctx context.Context) error {
		return v.probe(ctx, url)
	})
	return err
}

func (v *URLValidator) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &githost.APIError{
			StatusCode: resp.StatusCode,
			Message:    "validation probe failed",
			Header:     resp.Header,
		}
	}
	return nil
}
