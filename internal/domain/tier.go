package domain

import "time"

// Subscription tiers.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// User is the minimal account shape the router needs: identity plus tier.
type User struct {
	ID        string
	Email     string
	Tier      string
	CreatedAt time.Time
}

// TierConfig describes what a subscription tier is entitled to.
type TierConfig struct {
	Name               string
	AllowedTargets     []string
	DefaultTarget      string
	PrivateRepos       bool
	MonthlyDeployLimit int // -1 means unlimited
}

// tierTable is process-wide static configuration, built once and never
// mutated at runtime.
var tierTable = map[string]TierConfig{
	TierFree: {
		Name:               TierFree,
		AllowedTargets:     []string{TargetSnippet},
		DefaultTarget:      TargetSnippet,
		PrivateRepos:       false,
		MonthlyDeployLimit: 5,
	},
	TierPro: {
		Name:               TierPro,
		AllowedTargets:     []string{TargetSnippet, TargetRepo},
		DefaultTarget:      TargetRepo,
		PrivateRepos:       true,
		MonthlyDeployLimit: 100,
	},
	TierEnterprise: {
		Name:               TierEnterprise,
		AllowedTargets:     []string{TargetSnippet, TargetRepo, TargetEnterprise},
		DefaultTarget:      TargetRepo,
		PrivateRepos:       true,
		MonthlyDeployLimit: -1,
	},
}

// TierFor returns the configuration for a tier name, defaulting unknown
// tiers to free.
func TierFor(name string) TierConfig {
	if cfg, ok := tierTable[name]; ok {
		return cfg
	}
	return tierTable[TierFree]
}

// AllowsTarget reports whether the tier may deploy to the given target type.
func (t TierConfig) AllowsTarget(target string) bool {
	for _, allowed := range t.AllowedTargets {
		if allowed == target {
			return true
		}
	}
	return false
}

// RequiredTierFor returns the lowest tier whose allowed-target set includes
// the target, for upgrade hints on tier restriction errors.
func RequiredTierFor(target string) string {
	for _, tier := range []string{TierFree, TierPro, TierEnterprise} {
		if tierTable[tier].AllowsTarget(target) {
			return tier
		}
	}
	return TierEnterprise
}
