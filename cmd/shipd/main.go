package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcpship/mcpship/internal/app/migrate"
	"github.com/mcpship/mcpship/internal/githost"
	"github.com/mcpship/mcpship/internal/httpx"
	"github.com/mcpship/mcpship/internal/repository/postgres"
	"github.com/mcpship/mcpship/internal/service/deploy"
	"github.com/mcpship/mcpship/internal/service/gitops"
	"github.com/mcpship/mcpship/internal/service/hosting"
	"github.com/mcpship/mcpship/internal/service/quota"
	"github.com/mcpship/mcpship/internal/service/registry"
	"github.com/mcpship/mcpship/internal/service/repoprov"
	"github.com/mcpship/mcpship/internal/service/rollback"
	"github.com/mcpship/mcpship/internal/service/router"
	"github.com/mcpship/mcpship/internal/service/snippet"
	"github.com/mcpship/mcpship/pkg/config"
	"github.com/mcpship/mcpship/pkg/logger"
)

func main() {
	cfg := config.LoadShipConfig()
	log := logger.New("shipd", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	provider := githost.NewClient(cfg.HostingAPIBaseURL, cfg.HostingAPIToken, log)
	repoSvc := repoprov.NewService(provider, cfg.HostingOwner, log)
	snippetSvc := snippet.NewService(provider, log)

	deploySvc := deploy.NewService(repo, repo, repoSvc, snippetSvc,
		deploy.NewURLValidator(), cfg.ValidationTimeout, log)
	rollbackSvc := rollback.NewService(repo, repoSvc, snippetSvc, log)

	quotaStore := newQuotaStore(cfg, log)
	defer quotaStore.Close()
	routerSvc := router.NewService(repo, quotaStore, deploySvc, cfg.UpgradeURL, log)

	imageSvc, err := registry.NewService(registry.Config{
		Mode:     cfg.RegistryMode,
		Host:     cfg.RegistryHost,
		Owner:    cfg.RegistryOwner,
		Repo:     cfg.RegistryRepo,
		Username: cfg.RegistryUser,
		Token:    cfg.RegistryToken,
		Tag:      cfg.ImageTag,
		Docker:   cfg.DockerHost,
	}, log)
	if err != nil {
		log.Error("failed to initialize container registry client", "error", err)
		os.Exit(1)
	}
	defer imageSvc.Close()
	if err := imageSvc.Ping(ctx); err != nil {
		log.Warn("docker daemon not reachable, hosting deploys will fail", "error", err)
	}

	committer, err := newCommitter(cfg, provider, log)
	if err != nil {
		log.Error("failed to initialize gitops committer", "error", err)
		os.Exit(1)
	}
	hostingSvc := hosting.NewService(repo, repo, imageSvc, committer, hosting.Config{
		Domain:        cfg.HostingDomain,
		Namespace:     cfg.HostingNamespace,
		ClusterIssuer: cfg.ClusterIssuer,
		HealthPath:    cfg.HealthCheckPath,
	}, log)

	handler := httpx.NewRouter(log, routerSvc, deploySvc, rollbackSvc, hostingSvc, pool.Ping)

	srv := &http.Server{
		Addr:              config.GetString("LISTEN_ADDR", ":8080"),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
}

func newQuotaStore(cfg config.ShipConfig, log *slog.Logger) quota.Store {
	if cfg.QuotaRedisAddr == "" {
		log.Warn("no quota redis configured, using in-memory counters")
		return quota.NewMemoryStore()
	}
	store, err := quota.NewRedisStore(cfg.QuotaRedisAddr, cfg.QuotaRedisPass, cfg.QuotaRedisDB)
	if err != nil {
		log.Error("quota redis unavailable, falling back to in-memory counters", "error", err)
		return quota.NewMemoryStore()
	}
	return store
}

func newCommitter(cfg config.ShipConfig, provider githost.Provider, log *slog.Logger) (gitops.Committer, error) {
	if cfg.GitOpsMode == "remote" {
		return gitops.NewRemoteCommitter(provider, cfg.GitOpsRepoOwner, cfg.GitOpsRepoName, cfg.GitOpsBranch, log), nil
	}
	return gitops.NewLocalCommitter(cfg.GitOpsLocalPath, log)
}
