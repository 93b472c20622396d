package detect

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
)

const detectionVersion = "4.0.0"

// cacheTTL matches the persisted environment-profile transient lifetime.
const cacheTTL = time.Hour

// ProfileStore persists the detected profile between processes. Backed by
// the settings key-value table in production; nil disables persistence.
type ProfileStore interface {
	GetSetting(key string) (string, bool)
	PutSetting(key, value string) error
}

const profileSettingKey = "environment.profile"

// probeSpec fixes one cascade entry's priority, confidence weight and
// timeout budget. The cascade order and weights are part of the detection
// contract and must stay stable for reproducible selection.
type probeSpec struct {
	name       string
	priority   int
	confidence float64
	timeout    time.Duration
	run        func(ctx context.Context, d *Detector) ProbeResult
}

// Detector runs the probe cascade and caches the resulting profile.
type Detector struct {
	env   Environment
	store ProfileStore

	mu       sync.Mutex
	cached   *Profile
	fetched  time.Time
	now      func() time.Time
	cascade  []probeSpec
	matrix   []capability
	headerFn func(name string) string // set for the duration of one cascade run
}

// Environment carries the ambient inputs the probes read. Injected so tests
// can exercise the cascade without a real web server in front.
type Environment struct {
	ServerSoftware string            // host server identification string
	SiteRoot       string            // document root for filesystem probes
	EnvLookup      func(string) bool // hosting-provider env var presence
	LookPath       func(string) bool // capability binary presence on PATH
	DockerHost     string            // optional docker socket override
}

// New builds a Detector with the fixed probe cascade.
func New(env Environment, store ProfileStore) *Detector {
	d := &Detector{
		env:   env,
		store: store,
		now:   time.Now,
	}
	d.cascade = []probeSpec{
		{name: "server_software_header", priority: 10, confidence: 0.9, timeout: 50 * time.Millisecond, run: probeServerSoftware},
		{name: "runtime_introspection", priority: 20, confidence: 1.0, timeout: 20 * time.Millisecond, run: probeRuntime},
		{name: "filesystem_probe", priority: 30, confidence: 0.95, timeout: 200 * time.Millisecond, run: probeFilesystem},
		{name: "capability_probe", priority: 40, confidence: 1.0, timeout: 50 * time.Millisecond, run: probeCapabilities},
		{name: "container_probe", priority: 45, confidence: 0.85, timeout: 500 * time.Millisecond, run: probeContainers},
		{name: "hosting_provider", priority: 50, confidence: 0.8, timeout: 100 * time.Millisecond, run: probeHostingProvider},
	}
	d.matrix = capabilityMatrix()
	return d
}

// WithClock overrides the time source, used to test cache TTL behavior.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Detect returns the current environment profile, cached for one hour.
// force bypasses and replaces the cache unconditionally.
func (d *Detector) Detect(ctx context.Context, force bool) (*Profile, error) {
	return d.DetectWithHeaders(ctx, force, nil)
}

// DetectWithHeaders runs Detect with the triggering request's headers
// feeding the edge-proxy fingerprint probe. Edge proxies are only visible
// from inside a proxied request, so detection triggered over HTTP should
// always pass the request's header accessor. Headers only matter on a
// cascade run; a cache hit returns the stored profile untouched.
func (d *Detector) DetectWithHeaders(ctx context.Context, force bool, headers func(name string) string) (*Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !force {
		if p := d.cachedProfile(); p != nil {
			return p, nil
		}
	}

	d.headerFn = headers
	defer func() { d.headerFn = nil }()

	profile := d.runCascade(ctx)
	d.cached = profile
	d.fetched = d.now()
	d.persist(profile)

	return profile, nil
}

// Invalidate drops both the in-memory and persisted profile so the next
// Detect runs the full cascade.
func (d *Detector) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = nil
	if d.store != nil {
		_ = d.store.PutSetting(profileSettingKey, "")
	}
}

func (d *Detector) cachedProfile() *Profile {
	if d.cached != nil && d.now().Sub(d.fetched) < cacheTTL {
		return d.cached
	}
	if d.store == nil {
		return nil
	}
	raw, ok := d.store.GetSetting(profileSettingKey)
	if !ok || raw == "" {
		return nil
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	if d.now().Sub(p.DetectedAt) >= cacheTTL {
		return nil
	}
	d.cached = &p
	d.fetched = p.DetectedAt
	return &p
}

func (d *Detector) persist(p *Profile) {
	if d.store == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := d.store.PutSetting(profileSettingKey, string(raw)); err != nil {
		logger.Log().WithError(err).Warn("failed to persist environment profile")
	}
}

// runCascade executes every probe in order. A probe exceeding its timeout
// budget or returning an error degrades to a negative result; absence of
// evidence is itself a valid outcome.
func (d *Detector) runCascade(ctx context.Context) *Profile {
	results := make(map[string]ProbeResult, len(d.cascade))

	for _, spec := range d.cascade {
		start := d.now()
		res := d.runProbe(ctx, spec)
		res.Name = spec.name
		res.Priority = spec.priority
		res.Confidence = spec.confidence
		res.ElapsedMS = float64(d.now().Sub(start).Microseconds()) / 1000.0
		results[spec.name] = res

		if res.Error != "" {
			logger.WithFields(map[string]interface{}{
				"probe": spec.name,
				"error": res.Error,
			}).Debug("detection probe degraded")
		}
	}

	profile := d.buildProfile(results)
	profile.DetectedAt = d.now()
	profile.Version = detectionVersion
	return profile
}

func (d *Detector) runProbe(ctx context.Context, spec probeSpec) ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, spec.timeout)
	defer cancel()

	done := make(chan ProbeResult, 1)
	go func() {
		done <- spec.run(probeCtx, d)
	}()

	select {
	case res := <-done:
		return res
	case <-probeCtx.Done():
		return ProbeResult{Detected: false, Error: "probe timed out"}
	}
}

func (d *Detector) buildProfile(results map[string]ProbeResult) *Profile {
	profile := &Profile{
		Capabilities: map[string][]string{},
		Probes:       results,
	}

	for _, cap := range d.matrix {
		matched := false
		for _, criterion := range cap.detectedBy {
			if matchesCriterion(criterion, results) {
				matched = true
				break
			}
		}
		// The universal runtime platform is the guaranteed baseline.
		if matched || cap.platform == models.PlatformRuntime {
			profile.Capabilities[cap.platform] = cap.tags
		}
	}

	profile.OptimalPlatform = selectOptimal(profile.Capabilities)
	return profile
}

// capability binds a platform to the probe outcomes that count as positive
// evidence for it, plus the tags it grants when matched.
type capability struct {
	platform   string
	detectedBy []string // "<probe>:<value>" predicates
	tags       []string
}

func capabilityMatrix() []capability {
	return []capability{
		{
			platform:   models.PlatformCloudflare,
			detectedBy: []string{"hosting_provider:cloudflare"},
			tags:       []string{"edge_blocking", "global_propagation"},
		},
		{
			platform:   models.PlatformNginx,
			detectedBy: []string{"server_software_header:nginx", "filesystem_probe:" + models.PlatformNginx, "container_probe:" + models.PlatformNginx},
			tags:       []string{"high_performance", "location_blocking"},
		},
		{
			platform: models.PlatformApache,
			detectedBy: []string{
				"server_software_header:apache", "server_software_header:litespeed",
				"filesystem_probe:" + models.PlatformApache, "capability_probe:apache",
				"container_probe:" + models.PlatformApache,
			},
			tags: []string{"runtime_blocking", "directory_context"},
		},
		{
			platform:   models.PlatformCaddy,
			detectedBy: []string{"filesystem_probe:" + models.PlatformCaddy, "capability_probe:caddy", "container_probe:" + models.PlatformCaddy},
			tags:       []string{"location_blocking", "automatic_https"},
		},
		{
			platform:   models.PlatformIIS,
			detectedBy: []string{"server_software_header:iis", "filesystem_probe:" + models.PlatformIIS},
			tags:       []string{"url_rewrite"},
		},
		{
			platform:   models.PlatformRuntime,
			detectedBy: []string{"runtime_introspection:any"},
			tags:       []string{"universal_fallback", "application_level"},
		},
	}
}

// matchesCriterion evaluates one "<probe>:<value>" predicate against the
// probe results.
func matchesCriterion(criterion string, results map[string]ProbeResult) bool {
	probe, value, ok := strings.Cut(criterion, ":")
	if !ok {
		return false
	}
	res, ok := results[probe]
	if !ok {
		return false
	}

	switch probe {
	case "server_software_header":
		raw := res.Values["raw"]
		return raw != "" && strings.Contains(strings.ToLower(raw), value)
	case "filesystem_probe":
		fp, ok := res.Filesystem[value]
		return ok && fp.Found
	case "capability_probe":
		return res.Values[value] == "true"
	case "container_probe":
		return res.Values[value] == "true"
	case "hosting_provider":
		return res.Values["provider"] == value || res.Values["edge_proxy"] == value
	case "runtime_introspection":
		return res.Detected
	}
	return false
}

// selectOptimal applies the fixed preference order. This ordering is a
// design decision, not a recomputed ranking, and must stay deterministic.
func selectOptimal(capabilities map[string][]string) string {
	order := []string{
		models.PlatformCloudflare,
		models.PlatformNginx,
		models.PlatformCaddy,
		models.PlatformApache,
		models.PlatformIIS,
	}
	for _, p := range order {
		if _, ok := capabilities[p]; ok {
			return p
		}
	}
	return models.PlatformRuntime
}
