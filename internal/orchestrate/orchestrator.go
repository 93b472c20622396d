package orchestrate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wardenlabs/warden/internal/deploy"
	"github.com/wardenlabs/warden/internal/detect"
	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/metrics"
	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/translate"
)

// historyCap bounds the persisted deployment history; oldest rows are
// evicted on insert.
const historyCap = 100

// Detector is the environment-detection dependency.
type Detector interface {
	Detect(ctx context.Context, force bool) (*detect.Profile, error)
	DetectWithHeaders(ctx context.Context, force bool, headers func(name string) string) (*detect.Profile, error)
}

// Notifier receives deployment failure events. Implementations must not
// block the deployment path for long.
type Notifier interface {
	DeployFailed(ruleKey string, result models.DeploymentResult)
}

// Orchestrator coordinates detection, translation and per-platform
// deployment for individual rules, and records history.
type Orchestrator struct {
	db         *gorm.DB
	detector   Detector
	translator *translate.Translator
	registry   *deploy.Registry
	notifier   Notifier
}

func New(db *gorm.DB, detector Detector, translator *translate.Translator, registry *deploy.Registry, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		db:         db,
		detector:   detector,
		translator: translator,
		registry:   registry,
		notifier:   notifier,
	}
}

// Deploy applies one rule according to the given deployment profile and
// returns the per-platform result map. Individual platform failures are
// recorded, never raised; only detection or translation errors abort.
func (o *Orchestrator) Deploy(ctx context.Context, rule *models.Rule, profile string) (models.DeploymentResult, error) {
	env, err := o.detector.Detect(ctx, false)
	if err != nil {
		return nil, err
	}

	canonical, _, err := o.translator.Normalize(rule)
	if err != nil {
		return nil, err
	}

	selected := selectPlatforms(profile, canonical.Matrix, env.OptimalPlatform)
	result := models.DeploymentResult{}
	for _, platform := range selected {
		deployer, ok := o.registry.Get(platform)
		if !ok {
			// Unknown platforms are skipped so newer drivers never
			// hard-fail older orchestration.
			continue
		}
		metrics.IncDeployment(platform)
		res := deployer.Deploy(fragmentFor(canonical, platform))
		result[platform] = toPlatformResult(res)
		if !res.Success {
			metrics.IncDeployFailure(platform)
			logger.WithRule(rule.Key).WithField("platform", platform).
				Error("deployment failed: " + res.Error)
		}
	}

	o.appendHistory(rule.Key, profile, env.OptimalPlatform, result)
	if !result.AllSucceeded() && o.notifier != nil {
		o.notifier.DeployFailed(rule.Key, result)
	}
	return result, nil
}

// Rollback removes one rule's regions from every platform it could have
// been deployed to.
func (o *Orchestrator) Rollback(ctx context.Context, rule *models.Rule) (models.DeploymentResult, error) {
	canonical, _, err := o.translator.Normalize(rule)
	if err != nil {
		return nil, err
	}

	result := models.DeploymentResult{}
	for platform := range canonical.Matrix {
		deployer, ok := o.registry.Get(platform)
		if !ok {
			continue
		}
		res := deployer.Remove(fragmentFor(canonical, platform))
		result[platform] = toPlatformResult(res)
	}
	return result, nil
}

// SyncStatus is the outcome of a read-only consistency check for one rule.
type SyncStatus struct {
	Expected   bool                 `json:"expected"`
	Active     bool                 `json:"active"`
	SyncStatus string               `json:"sync_status"` // in_sync or out_of_sync
	Platforms  map[string]bool      `json:"platforms"`
	Decisions  []translate.Decision `json:"decisions,omitempty"`
}

// Verify compares the rule's desired enabled state against what is
// actually present in the artifacts. Platforms without a deployer or
// without local artifacts do not count against sync.
func (o *Orchestrator) Verify(ctx context.Context, rule *models.Rule) (SyncStatus, error) {
	canonical, decisions, err := o.translator.Normalize(rule)
	if err != nil {
		return SyncStatus{}, err
	}

	expected := rule.Enabled && rule.EffectiveEnforced()
	status := SyncStatus{
		Expected:  expected,
		Platforms: map[string]bool{},
		Decisions: decisions,
	}

	anyActive := false
	allMatch := true
	for platform := range canonical.Matrix {
		deployer, ok := o.registry.Get(platform)
		if !ok {
			continue
		}
		frag := fragmentFor(canonical, platform)
		if !expected {
			frag.Lines = nil
		}
		inSync, err := deployer.Verify(frag)
		if err != nil {
			return SyncStatus{}, err
		}
		status.Platforms[platform] = inSync
		if inSync && expected {
			anyActive = true
		}
		if !inSync {
			allMatch = false
		}
	}

	status.Active = anyActive
	if allMatch {
		status.SyncStatus = "in_sync"
	} else {
		status.SyncStatus = "out_of_sync"
	}
	return status, nil
}

// DetectEnvironment exposes the detector for diagnostics callers. The
// triggering request's headers feed the edge-proxy fingerprint probe.
func (o *Orchestrator) DetectEnvironment(ctx context.Context, force bool, headers func(name string) string) (*detect.Profile, error) {
	return o.detector.DetectWithHeaders(ctx, force, headers)
}

// History returns the most recent deployment records, newest first.
func (o *Orchestrator) History(limit int) ([]models.DeploymentRecord, error) {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}
	var records []models.DeploymentRecord
	err := o.db.Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// selectPlatforms applies the deployment profile to the resolved matrix.
func selectPlatforms(profile string, matrix translate.Matrix, optimal string) []string {
	var selected []string
	has := func(p string) bool { _, ok := matrix[p]; return ok }

	switch profile {
	case models.ProfileMaximum:
		for _, p := range platformOrder {
			if has(p) {
				selected = append(selected, p)
			}
		}
	case models.ProfileConservative:
		// Runtime only, plus the rewrite file when it is already the
		// environment's natural fit.
		if has(models.PlatformRuntime) {
			selected = append(selected, models.PlatformRuntime)
		}
		if optimal == models.PlatformApache && has(models.PlatformApache) {
			selected = append(selected, models.PlatformApache)
		}
	default: // auto_detect
		if has(optimal) {
			selected = append(selected, optimal)
		}
		if optimal != models.PlatformRuntime && has(models.PlatformRuntime) {
			selected = append(selected, models.PlatformRuntime)
		}
	}
	return selected
}

// platformOrder fixes iteration order for the maximum profile so result
// maps and history entries are reproducible.
var platformOrder = []string{
	models.PlatformCloudflare,
	models.PlatformNginx,
	models.PlatformCaddy,
	models.PlatformApache,
	models.PlatformIIS,
	models.PlatformRuntime,
}

func fragmentFor(rule translate.CanonicalRule, platform string) deploy.Fragment {
	impl := rule.Matrix[platform]
	target := impl.Target
	if target == "" {
		target = rule.Target
	}
	targetFile := impl.TargetFile
	if targetFile == "" {
		targetFile = rule.TargetFile
	}
	return deploy.Fragment{
		RuleKey:    rule.Key,
		Target:     target,
		TargetFile: targetFile,
		Lines:      splitCodes(impl.Codes),
	}
}

// splitCodes flattens multi-line code strings into individual lines for
// the region writer.
func splitCodes(codes []string) []string {
	var lines []string
	for _, code := range codes {
		for _, line := range splitLines(code) {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func toPlatformResult(res deploy.Result) models.PlatformResult {
	return models.PlatformResult{
		Success:        res.Success,
		Error:          res.Error,
		File:           res.File,
		ReloadRequired: res.ReloadRequired,
		ManualAction:   res.ManualAction,
		Note:           res.Note,
	}
}

// appendHistory persists one audit row and evicts beyond the cap. History
// write failures are logged, never surfaced; audit must not block
// enforcement.
func (o *Orchestrator) appendHistory(ruleKey, profile, optimal string, result models.DeploymentResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.WithRule(ruleKey).Error("history encode failed: " + err.Error())
		return
	}
	record := models.DeploymentRecord{
		UUID:            uuid.New().String(),
		RuleKey:         ruleKey,
		Profile:         profile,
		OptimalPlatform: optimal,
		Results:         string(payload),
		Success:         result.AllSucceeded(),
		CreatedAt:       time.Now(),
	}
	if err := o.db.Create(&record).Error; err != nil {
		logger.WithRule(ruleKey).Error("history write failed: " + err.Error())
		return
	}

	var count int64
	if err := o.db.Model(&models.DeploymentRecord{}).Count(&count).Error; err != nil {
		return
	}
	if count > historyCap {
		o.db.Where("id IN (?)",
			o.db.Model(&models.DeploymentRecord{}).Select("id").Order("id ASC").Limit(int(count-historyCap)),
		).Delete(&models.DeploymentRecord{})
	}
}
