package domain

import "fmt"

// PermissionError is raised when the quota collaborator denies a deploy.
type PermissionError struct {
	UserID       string
	CurrentUsage int
	Limit        int
	CurrentTier  string
	UpgradeURL   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("deployment quota exceeded: %d of %d used on tier %s", e.CurrentUsage, e.Limit, e.CurrentTier)
}

// TierRestrictionError is raised when a tier's allowed-target set excludes
// the requested deployment target.
type TierRestrictionError struct {
	UserID       string
	CurrentTier  string
	RequiredTier string
	TargetType   string
	UpgradeURL   string
}

func (e *TierRestrictionError) Error() string {
	return fmt.Sprintf("tier %s cannot deploy to %s (requires %s)", e.CurrentTier, e.TargetType, e.RequiredTier)
}
