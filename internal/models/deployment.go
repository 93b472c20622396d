package models

import (
	"time"
)

// DeploymentRecord is one orchestration run's audit entry. The history is
// capped at the most recent 100 rows; older rows are evicted on insert.
type DeploymentRecord struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	UUID            string    `json:"uuid" gorm:"uniqueIndex"`
	RuleKey         string    `json:"rule_key" gorm:"index"`
	Profile         string    `json:"profile"`
	OptimalPlatform string    `json:"optimal_platform"`
	Results         string    `json:"results" gorm:"type:text"` // JSON platform -> result
	Success         bool      `json:"success"`
	CreatedAt       time.Time `json:"created_at"`
}

// PlatformResult is one platform's outcome inside a DeploymentResult map.
type PlatformResult struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	File           string `json:"file,omitempty"`
	ReloadRequired bool   `json:"reload_required,omitempty"`
	ManualAction   bool   `json:"manual_action,omitempty"`
	Note           string `json:"note,omitempty"`
}

// DeploymentResult maps platform name to its outcome for one orchestrated run.
type DeploymentResult map[string]PlatformResult

// AllSucceeded reports whether every attempted platform succeeded. An empty
// result counts as success; having no matching deployer is not an error.
func (r DeploymentResult) AllSucceeded() bool {
	for _, res := range r {
		if !res.Success {
			return false
		}
	}
	return true
}
