package translate

import (
	"sort"
	"strings"

	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/util"
)

// Decision is one auto-correction applied while normalizing a rule. The
// decision log is returned to the caller so the audit trail is a first-class
// value instead of a side effect on the log stream.
type Decision struct {
	Action string `json:"action"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason"`
}

// Implementation is one platform's resolved slot in a rule matrix. Codes
// are plain strings in a stable order; deployers never see the raw
// string-or-object fragment union.
type Implementation struct {
	Target      string
	TargetFile  string
	Codes       []string
	Placeholder bool // synthetic runtime fallback entry, informational only
}

// Matrix maps platform name to its resolved implementation.
type Matrix map[string]Implementation

// CanonicalRule is the single normalized shape every downstream component
// operates on.
type CanonicalRule struct {
	Key        string
	Driver     string
	Target     string
	TargetFile string
	Matrix     Matrix
	AlwaysOn   bool
}

// Physical files whose mention in a mapping marks it as needing file-level
// blocking rather than an application hook.
var sensitiveFileTargets = []string{
	"readme.html",
	"license.txt",
	"xmlrpc.php",
	"wp-config.php",
	".env",
	"wp-links-opml.php",
	"debug.log",
	".htaccess",
}

// Syntax fragments that only make sense inside a rewrite-style block.
var rewriteBlockIndicators = []string{
	"<Files",
	"Require all",
	"Deny from",
	"Order allow,deny",
	"Options -Indexes",
}

// Translator normalizes rules and bridges legacy driver-form definitions
// onto the platform matrix.
type Translator struct{}

func New() *Translator {
	return &Translator{}
}

// Normalize produces the canonical form of a rule, applying driver
// auto-classification, the mapping-key self-heal and the rewrite-dialect
// safety lint. Executed once at ingestion so the string-vs-object branching
// never leaks past this boundary.
func (t *Translator) Normalize(rule *models.Rule) (CanonicalRule, []Decision, error) {
	var decisions []Decision

	canonical := CanonicalRule{
		Key:        rule.Key,
		Driver:     rule.Driver,
		Target:     rule.Target,
		TargetFile: util.CleanRelPath(rule.TargetFile),
		AlwaysOn:   rule.AlwaysOn || AlwaysOnKey(rule.Key),
	}
	if canonical.Target == "" || canonical.Target == ".htaccess" {
		// Historic alias for the root artifact.
		canonical.Target = models.TargetRoot
	}
	if canonical.Driver == "" {
		canonical.Driver = models.DriverHook
	}

	// Modern matrix-form rules pass through verbatim.
	if matrix, err := rule.DecodedMatrix(); err != nil {
		return CanonicalRule{}, nil, err
	} else if len(matrix) > 0 {
		canonical.Matrix = resolveModernMatrix(matrix, canonical.Target)
		t.lintMatrix(rule.Key, canonical.Matrix, &decisions)
		return canonical, decisions, nil
	}

	mappings, err := rule.DecodedMappings()
	if err != nil {
		return CanonicalRule{}, nil, err
	}

	controls, err := rule.DecodedControls()
	if err != nil {
		return CanonicalRule{}, nil, err
	}
	mappings = healMappingKeys(rule.Key, mappings, controls, &decisions)

	canonical.Driver = classifyDriver(rule.Key, canonical.Driver, mappings, &decisions)
	canonical.Matrix = t.deriveMatrix(canonical, mappings)
	t.lintMatrix(rule.Key, canonical.Matrix, &decisions)

	for _, d := range decisions {
		logger.WithRule(rule.Key).WithFields(map[string]interface{}{
			"action": d.Action,
			"from":   d.From,
			"to":     d.To,
		}).Info(util.SanitizeForLog(d.Reason))
	}

	return canonical, decisions, nil
}

// ResolveMatrix is the legacy-bridge entry point used when the caller
// already holds a canonical rule.
func (t *Translator) ResolveMatrix(rule *models.Rule) (Matrix, []Decision, error) {
	canonical, decisions, err := t.Normalize(rule)
	if err != nil {
		return nil, nil, err
	}
	return canonical.Matrix, decisions, nil
}

// deriveMatrix maps a legacy driver onto the fixed driver->platform table.
// File-based drivers always carry a runtime placeholder entry so a record
// of the rule exists even when the rewrite file is not loaded.
func (t *Translator) deriveMatrix(rule CanonicalRule, mappings map[string]models.CodeFragment) Matrix {
	matrix := Matrix{}
	if len(mappings) == 0 {
		return matrix
	}

	switch rule.Driver {
	case models.DriverHtaccess:
		matrix[models.PlatformApache] = Implementation{
			Target:     rule.Target,
			TargetFile: rule.TargetFile,
			Codes:      resolveCodes(mappings, models.PlatformApache),
		}
		matrix[models.PlatformRuntime] = Implementation{
			Codes:       []string{"/* Managed via rewrite-file rules */"},
			Placeholder: true,
		}
	case models.DriverNginx:
		matrix[models.PlatformNginx] = Implementation{
			Codes: resolveCodes(mappings, models.PlatformNginx),
		}
		matrix[models.PlatformRuntime] = Implementation{
			Codes:       []string{"/* Managed via reverse-proxy config */"},
			Placeholder: true,
		}
	case models.DriverIIS:
		matrix[models.PlatformIIS] = Implementation{
			Codes: resolveCodes(mappings, models.PlatformIIS),
		}
	case models.DriverCaddy:
		matrix[models.PlatformCaddy] = Implementation{
			Codes: resolveCodes(mappings, models.PlatformCaddy),
		}
	case models.DriverCloudflare:
		matrix[models.PlatformCloudflare] = Implementation{
			Codes: resolveCodes(mappings, models.PlatformCloudflare),
		}
	case models.DriverWPConfig:
		// Constant-style payloads are inherently runtime-level.
		matrix[models.PlatformRuntime] = Implementation{
			Codes: resolveCodes(mappings, models.PlatformRuntime),
		}
	default:
		matrix[models.PlatformRuntime] = Implementation{
			Codes: resolveCodes(mappings, models.PlatformRuntime),
		}
	}

	return matrix
}

func resolveModernMatrix(raw map[string]models.MatrixEntry, fallbackTarget string) Matrix {
	matrix := Matrix{}
	for platform, entry := range raw {
		impl := Implementation{
			Target:     entry.Target,
			TargetFile: util.CleanRelPath(entry.TargetFile),
		}
		if impl.Target == "" {
			impl.Target = fallbackTarget
		}
		if len(entry.Rules) > 0 {
			impl.Codes = resolveCodes(entry.Rules, platform)
		} else if entry.Code != "" {
			impl.Codes = []string{entry.Code}
		}
		matrix[platform] = impl
	}
	return matrix
}

// resolveCodes flattens fragments to plain strings in sorted binding-key
// order so repeated rebuilds emit identical text.
func resolveCodes(mappings map[string]models.CodeFragment, platform string) []string {
	keys := make([]string, 0, len(mappings))
	for k := range mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var codes []string
	seen := map[string]bool{}
	for _, k := range keys {
		code := strings.TrimSpace(mappings[k].Resolve(platform))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, strings.ReplaceAll(code, `\n`, "\n"))
	}
	return codes
}

// classifyDriver second-guesses a generic driver declaration. A rule whose
// payload plainly targets a physical file, or uses rewrite-block syntax,
// silently handled as a no-op hook would be a security failure, so the
// engine corrects the driver and records the decision.
func classifyDriver(key, driver string, mappings map[string]models.CodeFragment, decisions *[]Decision) string {
	if driver != models.DriverHook && driver != models.DriverUniversal {
		return driver
	}

	needsRewrite := false
	needsConstants := false
	for _, frag := range mappings {
		if frag.PerPlatform != nil {
			for pk := range frag.PerPlatform {
				tk := strings.TrimSpace(pk)
				if tk == ".htaccess" || tk == "htaccess" {
					needsRewrite = true
				}
				if tk == "wp-config.php" || tk == "wp_config" {
					needsConstants = true
				}
			}
		}

		for _, platform := range []string{models.PlatformApache, models.PlatformRuntime} {
			code := frag.Resolve(platform)
			if code == "" {
				continue
			}
			// Rewrite patterns escape dots, so compare with escapes stripped.
			plain := strings.ToLower(strings.ReplaceAll(code, `\`, ""))
			for _, file := range sensitiveFileTargets {
				if strings.Contains(plain, file) {
					needsRewrite = true
				}
			}
			for _, indicator := range rewriteBlockIndicators {
				if containsFold(code, indicator) {
					needsRewrite = true
				}
			}
			if strings.Contains(code, "define(") {
				needsConstants = true
			}
		}
	}

	if needsRewrite {
		*decisions = append(*decisions, Decision{
			Action: "driver_upgraded",
			From:   driver,
			To:     models.DriverHtaccess,
			Reason: "mapping targets a physical file or uses rewrite-block syntax",
		})
		return models.DriverHtaccess
	}
	if needsConstants {
		*decisions = append(*decisions, Decision{
			Action: "driver_upgraded",
			From:   driver,
			To:     models.DriverWPConfig,
			Reason: "mapping contains a constant-definition idiom",
		})
		return models.DriverWPConfig
	}
	return driver
}

// healMappingKeys re-keys a placeholder mapping key onto the rule's single
// toggle control. Compensates for upstream authoring drift without failing
// the whole rule.
func healMappingKeys(key string, mappings map[string]models.CodeFragment, controls []models.Control, decisions *[]Decision) map[string]models.CodeFragment {
	frag, isPlaceholder := mappings["feat_key"]
	if !isPlaceholder {
		return mappings
	}

	declared := false
	toggle := ""
	toggles := 0
	for _, c := range controls {
		if c.Key == "feat_key" {
			declared = true
		}
		if c.Type == "toggle" {
			toggle = c.Key
			toggles++
		}
	}
	if declared || toggles != 1 || toggle == "" {
		return mappings
	}

	healed := make(map[string]models.CodeFragment, len(mappings))
	for k, v := range mappings {
		if k == "feat_key" {
			continue
		}
		healed[k] = v
	}
	healed[toggle] = frag
	*decisions = append(*decisions, Decision{
		Action: "mapping_rekeyed",
		From:   "feat_key",
		To:     toggle,
		Reason: "placeholder key did not match any declared control",
	})
	return healed
}

// AlwaysOnKey reports whether a rule key names a protection that must stay
// enforced regardless of catalog selection. The XML-RPC endpoint block is
// the canonical member; dropping it as a side effect of catalog UI state
// would be a real regression.
func AlwaysOnKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "xml-rpc") || strings.Contains(lower, "xmlrpc")
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
