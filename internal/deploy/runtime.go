package deploy

import (
	"strings"

	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
)

// stopEditingSentinel is the conventional end-of-user-config marker in the
// application's runtime config file. Managed regions insert before it so
// constants are defined before the application bootstrap runs.
const stopEditingSentinel = "/* That's all, stop editing!"

// RuntimeDeployer writes guarded constant definitions into the
// application's runtime configuration file.
type RuntimeDeployer struct {
	ConfigPath string
	Backup     bool
}

func NewRuntimeDeployer(configPath string, backup bool) *RuntimeDeployer {
	return &RuntimeDeployer{ConfigPath: configPath, Backup: backup}
}

func (d *RuntimeDeployer) Platform() string { return models.PlatformRuntime }

func (d *RuntimeDeployer) Artifacts() []string { return []string{d.ConfigPath} }

func (d *RuntimeDeployer) ArtifactFor(frag Fragment) (string, error) { return d.ConfigPath, nil }

// guard wraps raw constant definitions so a duplicate definition elsewhere
// in the config does not become a fatal redefinition.
func guard(lines []string) []string {
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "define(") || strings.HasPrefix(trimmed, "define (") {
			name := constantName(trimmed)
			if name != "" {
				out = append(out, "if ( ! defined( '"+name+"' ) ) {")
				out = append(out, "\t"+line)
				out = append(out, "}")
				continue
			}
		}
		out = append(out, line)
	}
	return out
}

// constantName extracts the first quoted argument of a define() call.
func constantName(line string) string {
	open := strings.IndexAny(line, `'"`)
	if open < 0 {
		return ""
	}
	quote := line[open]
	rest := line[open+1:]
	close := strings.IndexByte(rest, quote)
	if close < 0 {
		return ""
	}
	return rest[:close]
}

func (d *RuntimeDeployer) Deploy(frag Fragment) Result {
	body := guard(frag.Lines)
	err := updateArtifact(d.ConfigPath, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, SlashMarkers)
		if got, ok := doc.Region(frag.RuleKey); ok && equalLines(got, body) {
			return "", false, nil
		}
		doc.SetRegion(frag.RuleKey, body, stopEditingSentinel)
		return doc.Render(), true, nil
	})
	if err != nil {
		return failure(err)
	}
	logger.WithRule(frag.RuleKey).WithField("file", d.ConfigPath).Debug("runtime region deployed")
	return Result{Success: true, File: d.ConfigPath}
}

func (d *RuntimeDeployer) Remove(frag Fragment) Result {
	err := updateArtifact(d.ConfigPath, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, SlashMarkers)
		if !doc.RemoveRegion(frag.RuleKey) {
			return "", false, nil
		}
		return doc.Render(), true, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: d.ConfigPath}
}

// WriteBatch rewrites every managed region in one pass. Unlike the
// rewrite-file deployer each rule keeps its own region here; constants
// have no ordering interaction so an aggregate block buys nothing.
func (d *RuntimeDeployer) WriteBatch(artifact string, frags []Fragment) Result {
	err := updateArtifact(artifact, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, SlashMarkers)
		removed := doc.RemoveAllRegions()
		for _, f := range frags {
			doc.SetRegion(f.RuleKey, guard(f.Lines), stopEditingSentinel)
		}
		return doc.Render(), removed > 0 || len(frags) > 0, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: artifact}
}

func (d *RuntimeDeployer) Verify(frag Fragment) (bool, error) {
	body, ok, err := readRegion(d.ConfigPath, SlashMarkers, frag.RuleKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return len(frag.Lines) == 0, nil
	}
	return equalLines(body, guard(frag.Lines)), nil
}
