package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mcpship/mcpship/internal/domain"
	"github.com/mcpship/mcpship/internal/repository"
	"github.com/mcpship/mcpship/internal/service/deploy"
	"github.com/mcpship/mcpship/internal/service/quota"
)

type fakeUsers struct {
	users map[string]*domain.User
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

type fakeOrchestrator struct {
	repoCalls       int
	snippetCalls    int
	enterpriseCalls int
	lastOpts        deploy.Options
	result          *domain.DeploymentResult
}

func (f *fakeOrchestrator) outcome(target string) *domain.DeploymentResult {
	if f.result != nil {
		return f.result
	}
	return &domain.DeploymentResult{Success: true, DeploymentID: "dep-1", TargetType: target}
}

func (f *fakeOrchestrator) DeployToRepo(ctx context.Context, artifactID string, opts deploy.Options) (*domain.DeploymentResult, error) {
	f.repoCalls++
	f.lastOpts = opts
	return f.outcome(domain.TargetRepo), nil
}

func (f *fakeOrchestrator) DeployToSnippet(ctx context.Context, artifactID string, opts deploy.Options) (*domain.DeploymentResult, error) {
	f.snippetCalls++
	f.lastOpts = opts
	return f.outcome(domain.TargetSnippet), nil
}

func (f *fakeOrchestrator) DeployToEnterprise(ctx context.Context, artifactID string, opts deploy.Options) (*domain.DeploymentResult, error) {
	f.enterpriseCalls++
	f.lastOpts = opts
	return f.outcome(domain.TargetEnterprise), nil
}

type fixture struct {
	svc          *Service
	quotas       quota.Store
	orchestrator *fakeOrchestrator
}

func newFixture(users map[string]*domain.User) *fixture {
	f := &fixture{
		quotas:       quota.NewMemoryStore(),
		orchestrator: &fakeOrchestrator{},
	}
	f.svc = NewService(&fakeUsers{users: users}, f.quotas, f.orchestrator,
		"https://mcpship.dev/upgrade", slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func freeUser() map[string]*domain.User {
	return map[string]*domain.User{"u1": {ID: "u1", Tier: domain.TierFree}}
}

func proUser() map[string]*domain.User {
	return map[string]*domain.User{"u1": {ID: "u1", Tier: domain.TierPro}}
}

func TestRouteUnknownUser(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.Route(context.Background(), "ghost", "art-1", Options{})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestRouteFreeTierDefaultsToSnippet(t *testing.T) {
	f := newFixture(freeUser())

	result, err := f.svc.Route(context.Background(), "u1", "art-1", Options{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if f.orchestrator.snippetCalls != 1 || f.orchestrator.repoCalls != 0 {
		t.Fatalf("snippet calls = %d, repo calls = %d", f.orchestrator.snippetCalls, f.orchestrator.repoCalls)
	}
}

func TestRouteProTierDefaultsToRepo(t *testing.T) {
	f := newFixture(proUser())

	if _, err := f.svc.Route(context.Background(), "u1", "art-1", Options{}); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if f.orchestrator.repoCalls != 1 {
		t.Fatalf("repo calls = %d, want 1", f.orchestrator.repoCalls)
	}
}

func TestRouteFreeTierCannotDeployRepo(t *testing.T) {
	f := newFixture(freeUser())

	_, err := f.svc.Route(context.Background(), "u1", "art-1", Options{TargetType: domain.TargetRepo})
	var restriction *domain.TierRestrictionError
	if !errors.As(err, &restriction) {
		t.Fatalf("err = %v, want TierRestrictionError", err)
	}
	if restriction.RequiredTier != domain.TierPro {
		t.Fatalf("required tier = %q, want pro", restriction.RequiredTier)
	}
	if restriction.UpgradeURL == "" {
		t.Fatal("restriction must carry the upgrade URL")
	}
	if f.orchestrator.repoCalls != 0 {
		t.Fatal("orchestrator must not be called")
	}
}

func TestRouteQuotaDenial(t *testing.T) {
	f := newFixture(freeUser())
	for i := 0; i < 5; i++ {
		if _, err := f.quotas.Increment(context.Background(), "u1"); err != nil {
			t.Fatalf("seed quota: %v", err)
		}
	}

	_, err := f.svc.Route(context.Background(), "u1", "art-1", Options{})
	var denial *domain.PermissionError
	if !errors.As(err, &denial) {
		t.Fatalf("err = %v, want PermissionError", err)
	}
	if denial.CurrentUsage != 5 || denial.Limit != 5 || denial.CurrentTier != domain.TierFree {
		t.Fatalf("denial = %+v", denial)
	}
	if f.orchestrator.snippetCalls != 0 {
		t.Fatal("orchestrator must not be called past the quota")
	}
}

func TestRoutePrivateForcedPublicOnFreeTier(t *testing.T) {
	f := newFixture(freeUser())

	_, err := f.svc.Route(context.Background(), "u1", "art-1", Options{
		Deploy: deploy.Options{Name: "srv", IsPrivate: true},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if f.orchestrator.lastOpts.IsPrivate {
		t.Fatal("free tier deployments must be forced public")
	}
}

func TestRoutePrivateKeptOnProTier(t *testing.T) {
	f := newFixture(proUser())

	_, err := f.svc.Route(context.Background(), "u1", "art-1", Options{
		Deploy: deploy.Options{Name: "srv", IsPrivate: true},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !f.orchestrator.lastOpts.IsPrivate {
		t.Fatal("pro tier must keep the private flag")
	}
}

func TestRouteIncrementsQuotaOnlyOnSuccess(t *testing.T) {
	f := newFixture(freeUser())
	f.orchestrator.result = &domain.DeploymentResult{Success: false, ErrorCode: "UNKNOWN_ERROR"}

	if _, err := f.svc.Route(context.Background(), "u1", "art-1", Options{}); err != nil {
		t.Fatalf("Route: %v", err)
	}
	usage, err := f.quotas.Usage(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage != 0 {
		t.Fatalf("usage = %d, failed deploys must not consume quota", usage)
	}

	f.orchestrator.result = nil
	if _, err := f.svc.Route(context.Background(), "u1", "art-1", Options{}); err != nil {
		t.Fatalf("Route: %v", err)
	}
	usage, _ = f.quotas.Usage(context.Background(), "u1")
	if usage != 1 {
		t.Fatalf("usage = %d, want 1 after a successful deploy", usage)
	}
}

func TestRouteUnknownTierFallsBackToFree(t *testing.T) {
	f := newFixture(map[string]*domain.User{"u1": {ID: "u1", Tier: "platinum"}})

	if _, err := f.svc.Route(context.Background(), "u1", "art-1", Options{}); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if f.orchestrator.snippetCalls != 1 {
		t.Fatal("unknown tiers must route as free")
	}
}

func TestCheckDeploymentPermission(t *testing.T) {
	f := newFixture(freeUser())
	for i := 0; i < 3; i++ {
		_, _ = f.quotas.Increment(context.Background(), "u1")
	}

	permission, err := f.svc.CheckDeploymentPermission(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CheckDeploymentPermission: %v", err)
	}
	if !permission.Allowed || permission.CurrentUsage != 3 || permission.Remaining != 2 {
		t.Fatalf("permission = %+v", permission)
	}
}

func TestCheckDeploymentPermissionUnlimitedTier(t *testing.T) {
	f := newFixture(map[string]*domain.User{"u1": {ID: "u1", Tier: domain.TierEnterprise}})

	permission, err := f.svc.CheckDeploymentPermission(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CheckDeploymentPermission: %v", err)
	}
	if !permission.Allowed || permission.Remaining != -1 {
		t.Fatalf("permission = %+v", permission)
	}
}
