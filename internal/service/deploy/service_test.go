package deploy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/githost"
	"github.com/mcpship/mcpship/internal/repository"
	"github.com/mcpship/mcpship/internal/service/classify"
	"github.com/mcpship/mcpship/internal/service/repoprov"
	"github.com/mcpship/mcpship/internal/service/rollback"
	"github.com/mcpship/mcpship/internal/service/scaffold"
	"github.com/mcpship/mcpship/internal/service/snippet"
)

type memDeployments struct {
	records    map[string]*domain.DeploymentRecord
	order      []string
	lastFilter domain.DeploymentFilter
}

func newMemDeployments() *memDeployments {
	return &memDeployments{records: map[string]*domain.DeploymentRecord{}}
}

func (m *memDeployments) CreateDeployment(ctx context.Context, record *domain.DeploymentRecord) error {
	copied := *record
	m.records[record.ID] = &copied
	m.order = append(m.order, record.ID)
	return nil
}

func (m *memDeployments) CompleteDeployment(ctx context.Context, c repository.DeploymentCompletion) error {
	record, ok := m.records[c.DeploymentID]
	if !ok {
		return repository.ErrNotFound
	}
	if record.Status != domain.DeploymentPending {
		return fmt.Errorf("record %s already completed", record.ID)
	}
	record.Status = c.Status
	record.RepositoryURL = c.RepositoryURL
	record.CloneURL = c.CloneURL
	record.CodespaceURL = c.CodespaceURL
	record.SnippetURL = c.SnippetURL
	record.SnippetRawURL = c.SnippetRawURL
	record.ErrorMessage = c.ErrorMessage
	record.ErrorCode = c.ErrorCode
	record.RetryStrategy = c.RetryStrategy
	record.RetryAfterMS = c.RetryAfterMS
	record.SuggestedNames = c.SuggestedNames
	record.DeployedAt = c.DeployedAt
	if c.Metadata != nil {
		record.Metadata = *c.Metadata
	}
	return nil
}

func (m *memDeployments) UpdateDeploymentMetadata(ctx context.Context, id string, metadata domain.RecordMetadata) error {
	record, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	record.Metadata = metadata
	return nil
}

func (m *memDeployments) GetDeploymentByID(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *memDeployments) LatestDeploymentByArtifact(ctx context.Context, artifactID string) (*domain.DeploymentRecord, error) {
	for i := len(m.order) - 1; i >= 0; i-- {
		if record := m.records[m.order[i]]; record != nil && record.ArtifactID == artifactID {
			copied := *record
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memDeployments) ListDeployments(ctx context.Context, filter domain.DeploymentFilter) ([]domain.DeploymentRecord, error) {
	m.lastFilter = filter
	return nil, nil
}

func (m *memDeployments) DeleteDeployment(ctx context.Context, id string) error {
	if _, ok := m.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

type memArtifacts struct {
	files map[string][]domain.DeploymentFile
}

func (m *memArtifacts) ArtifactExists(ctx context.Context, id string) (bool, error) {
	_, ok := m.files[id]
	return ok, nil
}

func (m *memArtifacts) GetArtifactFiles(ctx context.Context, id string) ([]domain.DeploymentFile, error) {
	return m.files[id], nil
}

type fakeRepoPublisher struct {
	calls     int
	err       error
	deleted   []string
	lastFiles []domain.DeploymentFile
}

func (f *fakeRepoPublisher) Deploy(ctx context.Context, name, description string, isPrivate bool, files []domain.DeploymentFile) (*repoprov.Result, error) {
	f.calls++
	f.lastFiles = files
	if f.err != nil {
		return nil, f.err
	}
	return &repoprov.Result{
		Owner:        "acct",
		RepoName:     repoprov.SanitizeName(name),
		RepoURL:      "https://git.example.test/acct/" + repoprov.SanitizeName(name),
		CloneURL:     "https://git.example.test/acct/" + repoprov.SanitizeName(name) + ".git",
		CodespaceURL: "https://codespaces.new/acct/" + repoprov.SanitizeName(name),
		CommitSHA:    "sha",
	}, nil
}

func (f *fakeRepoPublisher) Delete(ctx context.Context, repoName string) error {
	f.deleted = append(f.deleted, repoName)
	return nil
}

type fakeSnippetPublisher struct {
	calls   int
	updates int
	deleted []string
	err     error
}

func (f *fakeSnippetPublisher) result(id string) *snippet.Result {
	return &snippet.Result{
		SnippetID: id,
		URL:       "https://paste.example.test/" + id,
		RawURL:    "https://paste.example.test/raw/" + id + "/server.js",
		Filename:  "server.js",
	}
}

func (f *fakeSnippetPublisher) Deploy(ctx context.Context, files []domain.DeploymentFile, opts scaffold.BundleOptions, public bool) (*snippet.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result("snip-1"), nil
}

func (f *fakeSnippetPublisher) Update(ctx context.Context, id string, files []domain.DeploymentFile, opts scaffold.BundleOptions) (*snippet.Result, error) {
	f.updates++
	if f.err != nil {
		return nil, f.err
	}
	return f.result(id), nil
}

func (f *fakeSnippetPublisher) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fixture struct {
	svc         *Service
	deployments *memDeployments
	artifacts   *memArtifacts
	repos       *fakeRepoPublisher
	snippets    *fakeSnippetPublisher
}

func newFixture() *fixture {
	f := &fixture{
		deployments: newMemDeployments(),
		artifacts:   &memArtifacts{files: map[string][]domain.DeploymentFile{}},
		repos:       &fakeRepoPublisher{},
		snippets:    &fakeSnippetPublisher{},
	}
	f.svc = NewService(f.deployments, f.artifacts, f.repos, f.snippets, nil,
		time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) seedArtifact(id string) {
	f.artifacts.files[id] = []domain.DeploymentFile{{Path: "index.js", Content: "serve();\n"}}
}

func (f *fixture) onlyRecord(t *testing.T) *domain.DeploymentRecord {
	t.Helper()
	if len(f.deployments.order) != 1 {
		t.Fatalf("have %d records, want 1", len(f.deployments.order))
	}
	return f.deployments.records[f.deployments.order[0]]
}

func TestDeployMissingArtifactCreatesNoRecord(t *testing.T) {
	f := newFixture()

	result, err := f.svc.DeployToRepo(context.Background(), "ghost", Options{Name: "x"})
	if err != nil {
		t.Fatalf("DeployToRepo: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ErrorCode != classify.CodeArtifactNotFound {
		t.Fatalf("code = %q", result.ErrorCode)
	}
	if len(f.deployments.order) != 0 {
		t.Fatal("no record may exist for a missing artifact")
	}
	if f.repos.calls != 0 {
		t.Fatal("provider must not be called")
	}
}

func TestDeployEmptyArtifactFailsRecord(t *testing.T) {
	f := newFixture()
	f.artifacts.files["art-1"] = nil

	result, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "x"})
	if err != nil {
		t.Fatalf("DeployToRepo: %v", err)
	}
	if result.Success || result.ErrorCode != classify.CodeNoFiles {
		t.Fatalf("result = %+v", result)
	}
	record := f.onlyRecord(t)
	if record.Status != domain.DeploymentFailed || record.ErrorCode != classify.CodeNoFiles {
		t.Fatalf("record = %+v", record)
	}
	if record.RetryStrategy != classify.StrategyManual {
		t.Fatalf("retry strategy = %q", record.RetryStrategy)
	}
	if f.repos.calls != 0 {
		t.Fatal("provider must not be called for an empty artifact")
	}
}

func TestDeployToRepoSuccess(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")

	result, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "My Server"})
	if err != nil {
		t.Fatalf("DeployToRepo: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.RepositoryURL != "https://git.example.test/acct/my-server" {
		t.Fatalf("repo url = %q", result.RepositoryURL)
	}

	record := f.onlyRecord(t)
	if record.Status != domain.DeploymentSuccess {
		t.Fatalf("record status = %q", record.Status)
	}
	if record.DeployedAt == nil {
		t.Fatal("deployed_at not stamped")
	}
	provider := record.Metadata.Provider
	if provider == nil || provider.RepoName != "my-server" || provider.Owner != "acct" {
		t.Fatalf("provider metadata = %+v", provider)
	}
	if provider.RequestedName != "My Server" {
		t.Fatalf("requested name = %q", provider.RequestedName)
	}
}

func TestDeployToRepoAugmentsScaffolding(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")

	if _, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "srv"}); err != nil {
		t.Fatalf("DeployToRepo: %v", err)
	}
	paths := map[string]bool{}
	for _, file := range f.repos.lastFiles {
		paths[file.Path] = true
	}
	if !paths[".gitignore"] || !paths[".github/workflows/ci.yml"] {
		t.Fatalf("scaffolding missing from pushed files: %v", paths)
	}
}

func TestDeployToSnippetSuccess(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")

	result, err := f.svc.DeployToSnippet(context.Background(), "art-1", Options{Name: "srv"})
	if err != nil {
		t.Fatalf("DeployToSnippet: %v", err)
	}
	if !result.Success || result.SnippetRawURL == "" {
		t.Fatalf("result = %+v", result)
	}
	record := f.onlyRecord(t)
	if record.Metadata.Provider.SnippetID != "snip-1" {
		t.Fatalf("snippet id = %q", record.Metadata.Provider.SnippetID)
	}
}

func TestDeployNameConflictSuggestsAlternatives(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")
	f.repos.err = &githost.APIError{StatusCode: http.StatusConflict, Message: "name already exists", Header: http.Header{}}

	result, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "My Server"})
	if err != nil {
		t.Fatalf("DeployToRepo: %v", err)
	}
	if result.Success || result.ErrorCode != classify.CodeNameConflict {
		t.Fatalf("result = %+v", result)
	}
	if len(result.SuggestedNames) == 0 {
		t.Fatal("expected suggested names")
	}
	for _, name := range result.SuggestedNames {
		if !strings.HasPrefix(name, "my-server") {
			t.Fatalf("suggestion %q not derived from the sanitized name", name)
		}
	}
	record := f.onlyRecord(t)
	if record.Status != domain.DeploymentFailed {
		t.Fatalf("record status = %q", record.Status)
	}
}

func TestDeployOrphanedRepositoryIsRolledBack(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")
	f.repos.err = &repoprov.OrphanedRepoError{
		Owner:    "acct",
		RepoName: "srv",
		Err:      &githost.APIError{StatusCode: http.StatusInternalServerError, Message: "boom", Header: http.Header{}},
	}

	result, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "srv"})
	if err != nil {
		t.Fatalf("DeployToRepo: %v", err)
	}
	if result.Success || result.ErrorCode != classify.CodeServiceUnavailable {
		t.Fatalf("result = %+v", result)
	}

	record := f.onlyRecord(t)
	if record.Status != domain.DeploymentFailed {
		t.Fatalf("record status = %q", record.Status)
	}
	provider := record.Metadata.Provider
	if provider == nil || provider.Owner != "acct" || provider.RepoName != "srv" {
		t.Fatalf("created repo identity not persisted: %+v", provider)
	}

	rb := rollback.NewService(f.deployments, f.repos, f.snippets,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	can, err := rb.CanRollback(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("CanRollback: %v", err)
	}
	if !can {
		t.Fatal("failed record referencing a created repo must be rollbackable")
	}
	res, err := rb.Rollback(context.Background(), record.ID, "commit never landed")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if !res.Performed {
		t.Fatalf("rollback result = %+v", res)
	}
	if len(f.repos.deleted) != 1 || f.repos.deleted[0] != "srv" {
		t.Fatalf("deleted = %v, want [srv]", f.repos.deleted)
	}
}

func TestRetryNonRetryableRequiresForce(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")
	f.repos.err = &githost.APIError{StatusCode: http.StatusUnauthorized, Message: "bad credentials", Header: http.Header{}}
	first, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "srv"})
	if err != nil {
		t.Fatalf("seed deploy: %v", err)
	}
	f.repos.err = nil
	f.repos.calls = 0

	result, err := f.svc.RetryDeployment(context.Background(), first.DeploymentID, "", false)
	if err != nil {
		t.Fatalf("RetryDeployment: %v", err)
	}
	if result.Success {
		t.Fatal("retry must be refused without forceRetry")
	}
	if f.repos.calls != 0 {
		t.Fatal("provider must not be called for a refused retry")
	}

	forced, err := f.svc.RetryDeployment(context.Background(), first.DeploymentID, "", true)
	if err != nil {
		t.Fatalf("forced retry: %v", err)
	}
	if !forced.Success {
		t.Fatalf("forced retry result = %+v", forced)
	}
	if forced.DeploymentID == first.DeploymentID {
		t.Fatal("retry must produce a new record")
	}

	original := f.deployments.records[first.DeploymentID]
	if original.Metadata.Retry == nil || original.Metadata.Retry.RetryCount != 1 {
		t.Fatalf("retry metadata = %+v", original.Metadata.Retry)
	}
	if original.Status != domain.DeploymentFailed {
		t.Fatal("original record must stay failed")
	}
}

func TestRetryOverridesName(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")
	f.repos.err = &githost.APIError{StatusCode: http.StatusConflict, Message: "already exists", Header: http.Header{}}
	first, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "taken"})
	if err != nil {
		t.Fatalf("seed deploy: %v", err)
	}
	f.repos.err = nil

	result, err := f.svc.RetryDeployment(context.Background(), first.DeploymentID, "fresh-name", true)
	if err != nil {
		t.Fatalf("RetryDeployment: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.RepositoryURL != "https://git.example.test/acct/fresh-name" {
		t.Fatalf("repo url = %q, new name not applied", result.RepositoryURL)
	}
}

func TestRetryRejectsSuccessfulDeployment(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")
	first, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "srv"})
	if err != nil {
		t.Fatalf("seed deploy: %v", err)
	}
	result, err := f.svc.RetryDeployment(context.Background(), first.DeploymentID, "", true)
	if err != nil {
		t.Fatalf("RetryDeployment: %v", err)
	}
	if result.Success {
		t.Fatal("successful deployments must not be retryable")
	}
}

func TestListDeploymentsCapsLimit(t *testing.T) {
	f := newFixture()

	if _, err := f.svc.ListDeployments(context.Background(), domain.DeploymentFilter{Limit: 500, Offset: -3}); err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if f.deployments.lastFilter.Limit != 100 {
		t.Fatalf("limit = %d, want 100", f.deployments.lastFilter.Limit)
	}
	if f.deployments.lastFilter.Offset != 0 {
		t.Fatalf("offset = %d, want 0", f.deployments.lastFilter.Offset)
	}
}

func TestDeleteRepoDeploymentSkipsExternalWithoutRepoName(t *testing.T) {
	f := newFixture()
	record := &domain.DeploymentRecord{
		ID: "dep-1", ArtifactID: "art-1", TargetType: domain.TargetRepo,
		Status: domain.DeploymentFailed,
	}
	if err := f.deployments.CreateDeployment(context.Background(), record); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := f.svc.DeleteRepoDeployment(context.Background(), "dep-1"); err != nil {
		t.Fatalf("DeleteRepoDeployment: %v", err)
	}
	if len(f.repos.deleted) != 0 {
		t.Fatal("external delete must be skipped without a stored repo name")
	}
	if _, ok := f.deployments.records["dep-1"]; ok {
		t.Fatal("record not deleted")
	}
}

func TestDeleteSnippetDeploymentRemovesExternalFirst(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")
	result, err := f.svc.DeployToSnippet(context.Background(), "art-1", Options{Name: "srv"})
	if err != nil {
		t.Fatalf("seed deploy: %v", err)
	}

	if err := f.svc.DeleteSnippetDeployment(context.Background(), result.DeploymentID); err != nil {
		t.Fatalf("DeleteSnippetDeployment: %v", err)
	}
	if len(f.snippets.deleted) != 1 || f.snippets.deleted[0] != "snip-1" {
		t.Fatalf("deleted = %v", f.snippets.deleted)
	}
}

func TestUpdateSnippetDeployment(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")
	result, err := f.svc.DeployToSnippet(context.Background(), "art-1", Options{Name: "srv"})
	if err != nil {
		t.Fatalf("seed deploy: %v", err)
	}

	updated, err := f.svc.UpdateSnippetDeployment(context.Background(), result.DeploymentID)
	if err != nil {
		t.Fatalf("UpdateSnippetDeployment: %v", err)
	}
	if !updated.Success || f.snippets.updates != 1 {
		t.Fatalf("updated = %+v, updates = %d", updated, f.snippets.updates)
	}
}

func TestUpdateSnippetDeploymentRejectsRepoTarget(t *testing.T) {
	f := newFixture()
	f.seedArtifact("art-1")
	result, err := f.svc.DeployToRepo(context.Background(), "art-1", Options{Name: "srv"})
	if err != nil {
		t.Fatalf("seed deploy: %v", err)
	}

	updated, err := f.svc.UpdateSnippetDeployment(context.Background(), result.DeploymentID)
	if err != nil {
		t.Fatalf("UpdateSnippetDeployment: %v", err)
	}
	if updated.Success || updated.ErrorCode != classify.CodeNotFound {
		t.Fatalf("updated = %+v", updated)
	}
	if f.snippets.updates != 0 {
		t.Fatal("snippet provider must not be called")
	}
}

func TestDeployToEnterpriseIsStubbed(t *testing.T) {
	f := newFixture()
	result, err := f.svc.DeployToEnterprise(context.Background(), "art-1", Options{})
	if err != nil {
		t.Fatalf("DeployToEnterprise: %v", err)
	}
	if result.Success || result.ErrorCode != CodeNotImplemented {
		t.Fatalf("result = %+v", result)
	}
}
