package orchestrate

import (
	"context"
	"sort"
	"sync"

	"github.com/wardenlabs/warden/internal/deploy"
	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/metrics"
	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/translate"
)

// RuleSource supplies the current rule population and the active catalog
// selection for rebuilds. AllRules includes disabled rules; the rebuild
// driver needs them to enumerate every artifact a rule has ever claimed.
type RuleSource interface {
	EnabledRules(ctx context.Context) ([]models.Rule, error)
	AllRules(ctx context.Context) ([]models.Rule, error)
	ActiveCatalogs(ctx context.Context) ([]string, error)
}

// Rebuilder regenerates every managed artifact from the full current
// enabled-rule population. Rebuild, not patch: each artifact's managed
// content is recomputed wholesale, which is what makes hand-edit and
// orphan recovery automatic.
type Rebuilder struct {
	rules    RuleSource
	registry *deploy.Registry
	orch     *Orchestrator
}

func NewRebuilder(rules RuleSource, registry *deploy.Registry, orch *Orchestrator) *Rebuilder {
	return &Rebuilder{rules: rules, registry: registry, orch: orch}
}

// RebuildAll regenerates the artifacts of every registered platform.
func (r *Rebuilder) RebuildAll(ctx context.Context) error {
	return r.rebuild(ctx, "")
}

// RebuildPlatform regenerates only the named platform's artifacts.
func (r *Rebuilder) RebuildPlatform(ctx context.Context, platform string) error {
	return r.rebuild(ctx, platform)
}

type artifactGroup struct {
	platform string
	artifact string
	frags    []deploy.Fragment
}

func (r *Rebuilder) rebuild(ctx context.Context, onlyPlatform string) error {
	metrics.IncRebuild()

	rules, err := r.enforcedRules(ctx)
	if err != nil {
		return err
	}

	groups := map[string]*artifactGroup{}
	if err := r.seedEmptyGroups(ctx, groups, onlyPlatform); err != nil {
		return err
	}

	for i := range rules {
		canonical, _, err := r.orch.translator.Normalize(&rules[i])
		if err != nil {
			logger.WithRule(rules[i].Key).Error("skipped in rebuild: " + err.Error())
			continue
		}
		for platform := range canonical.Matrix {
			if onlyPlatform != "" && platform != onlyPlatform {
				continue
			}
			deployer, ok := r.registry.Get(platform)
			if !ok {
				continue
			}
			frag := fragmentFor(canonical, platform)
			artifact, err := deployer.ArtifactFor(frag)
			if err != nil {
				logger.WithRule(rules[i].Key).WithField("platform", platform).
					Error("artifact resolution failed: " + err.Error())
				continue
			}
			if artifact == "" {
				continue
			}
			key := platform + "\x00" + artifact
			g, ok := groups[key]
			if !ok {
				g = &artifactGroup{platform: platform, artifact: artifact}
				groups[key] = g
			}
			g.frags = append(g.frags, frag)
		}
	}

	// Artifacts are independent; one writer per artifact, parallel across
	// artifacts. Per-path locking inside the deployers serializes any
	// overlap.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []string
	for _, g := range sortedGroups(groups) {
		wg.Add(1)
		go func(g *artifactGroup) {
			defer wg.Done()
			deployer, _ := r.registry.Get(g.platform)
			res := deployer.WriteBatch(g.artifact, g.frags)
			if !res.Success {
				metrics.IncDeployFailure(g.platform)
				logger.WithFields(map[string]interface{}{
					"platform": g.platform,
					"artifact": g.artifact,
				}).Error("rebuild write failed: " + res.Error)
				mu.Lock()
				failures = append(failures, g.platform)
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()

	if len(failures) > 0 {
		logger.Log().Warnf("rebuild completed with %d failed artifacts", len(failures))
	}
	return nil
}

// seedEmptyGroups registers every artifact any rule can claim up front so
// an artifact whose last contributing rule was disabled still gets one
// WriteBatch call with zero fragments, stripping its orphaned regions.
// The registry only knows the fixed artifact paths; custom-target
// artifacts are discovered from the full rule population, disabled rules
// included.
func (r *Rebuilder) seedEmptyGroups(ctx context.Context, groups map[string]*artifactGroup, onlyPlatform string) error {
	seed := func(platform, artifact string) {
		key := platform + "\x00" + artifact
		if _, ok := groups[key]; !ok {
			groups[key] = &artifactGroup{platform: platform, artifact: artifact}
		}
	}

	for _, platform := range r.registry.Platforms() {
		if onlyPlatform != "" && platform != onlyPlatform {
			continue
		}
		deployer, _ := r.registry.Get(platform)
		for _, artifact := range deployer.Artifacts() {
			seed(platform, artifact)
		}
	}

	all, err := r.rules.AllRules(ctx)
	if err != nil {
		return err
	}
	for i := range all {
		canonical, _, err := r.orch.translator.Normalize(&all[i])
		if err != nil {
			continue
		}
		for platform := range canonical.Matrix {
			if onlyPlatform != "" && platform != onlyPlatform {
				continue
			}
			deployer, ok := r.registry.Get(platform)
			if !ok {
				continue
			}
			artifact, err := deployer.ArtifactFor(fragmentFor(canonical, platform))
			if err != nil || artifact == "" {
				continue
			}
			seed(platform, artifact)
		}
	}
	return nil
}

// enforcedRules applies the lifecycle gate, the always-on override and the
// active-catalog filter, in that order. Always-on rules bypass catalog
// filtering entirely so a catalog-selection change can never silently drop
// an endpoint block.
func (r *Rebuilder) enforcedRules(ctx context.Context) ([]models.Rule, error) {
	all, err := r.rules.EnabledRules(ctx)
	if err != nil {
		return nil, err
	}
	active, err := r.rules.ActiveCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	activeSet := map[string]bool{}
	for _, c := range active {
		activeSet[c] = true
	}

	var out []models.Rule
	for _, rule := range all {
		if !rule.EffectiveEnforced() {
			continue
		}
		alwaysOn := rule.AlwaysOn || translate.AlwaysOnKey(rule.Key)
		if !alwaysOn && len(activeSet) > 0 && !activeSet[rule.Catalog] {
			continue
		}
		out = append(out, rule)
	}

	// Catalog insertion order fixes fragment order inside each artifact.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func sortedGroups(groups map[string]*artifactGroup) []*artifactGroup {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*artifactGroup, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out
}
