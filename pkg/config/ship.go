package config

import "time"

// ShipConfig holds runtime configuration for the publishing core.
type ShipConfig struct {
	Environment string
	DatabaseURL string

	MigrationsDir string

	// Git hosting API.
	HostingAPIBaseURL string
	HostingAPIToken   string
	HostingOwner      string

	// Container registry.
	RegistryMode  string // "local" or "production"
	RegistryHost  string
	RegistryOwner string
	RegistryRepo  string
	RegistryUser  string
	RegistryToken string
	DockerHost    string

	// GitOps desired-state store.
	GitOpsMode      string // "local" or "remote"
	GitOpsLocalPath string
	GitOpsRepoOwner string
	GitOpsRepoName  string
	GitOpsBranch    string

	// Hosted server manifests.
	HostingDomain     string
	HostingNamespace  string
	ClusterIssuer     string
	ImageTag          string
	HealthCheckPath   string
	ValidationTimeout time.Duration

	// Quota counters.
	QuotaRedisAddr string
	QuotaRedisPass string
	QuotaRedisDB   int

	UpgradeURL string
}

// LoadShipConfig constructs a ShipConfig from environment variables.
func LoadShipConfig() ShipConfig {
	return ShipConfig{
		Environment:       GetString("APP_ENV", "development"),
		DatabaseURL:       GetString("DATABASE_URL", "postgres://mcpship:mcpship@db:5432/mcpship?sslmode=disable"),
		MigrationsDir:     GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		HostingAPIBaseURL: GetString("HOSTING_API_BASE_URL", "https://api.github.com"),
		HostingAPIToken:   GetString("HOSTING_API_TOKEN", ""),
		HostingOwner:      GetString("HOSTING_OWNER", ""),
		RegistryMode:      GetString("REGISTRY_MODE", "local"),
		RegistryHost:      GetString("REGISTRY_HOST", "localhost:5000"),
		RegistryOwner:     GetString("REGISTRY_OWNER", ""),
		RegistryRepo:      GetString("REGISTRY_REPO", ""),
		RegistryUser:      GetString("REGISTRY_USER", ""),
		RegistryToken:     GetString("REGISTRY_TOKEN", ""),
		DockerHost:        GetString("DOCKER_HOST_OVERRIDE", ""),
		GitOpsMode:        GetString("GITOPS_MODE", "local"),
		GitOpsLocalPath:   GetString("GITOPS_LOCAL_PATH", "/var/lib/mcpship/desired-state"),
		GitOpsRepoOwner:   GetString("GITOPS_REPO_OWNER", ""),
		GitOpsRepoName:    GetString("GITOPS_REPO_NAME", ""),
		GitOpsBranch:      GetString("GITOPS_BRANCH", "main"),
		HostingDomain:     GetString("HOSTING_DOMAIN", "mcpship.dev"),
		HostingNamespace:  GetString("HOSTING_NAMESPACE", "mcp-servers"),
		ClusterIssuer:     GetString("CLUSTER_ISSUER", "letsencrypt-prod"),
		ImageTag:          GetString("IMAGE_TAG", "latest"),
		HealthCheckPath:   GetString("HEALTH_CHECK_PATH", "/health"),
		ValidationTimeout: time.Duration(GetInt("VALIDATION_TIMEOUT_SECONDS", 30)) * time.Second,
		QuotaRedisAddr:    GetString("QUOTA_REDIS_ADDR", ""),
		QuotaRedisPass:    GetString("QUOTA_REDIS_PASS", ""),
		QuotaRedisDB:      GetInt("QUOTA_REDIS_DB", 0),
		UpgradeURL:        GetString("UPGRADE_URL", "https://mcpship.dev/pricing"),
	}
}
