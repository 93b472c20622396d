package deploy

import (
	"strings"

	"github.com/wardenlabs/warden/internal/models"
)

// IISDeployer writes rewrite fragments into web.config. The artifact is
// XML, so regions use XML comment markers; the fragment bodies themselves
// are expected to be system.webServer rewrite XML authored in the rule.
type IISDeployer struct {
	ConfigPath string
	Backup     bool
}

func NewIISDeployer(configPath string, backup bool) *IISDeployer {
	return &IISDeployer{ConfigPath: configPath, Backup: backup}
}

func (d *IISDeployer) Platform() string    { return models.PlatformIIS }
func (d *IISDeployer) Artifacts() []string { return []string{d.ConfigPath} }

func (d *IISDeployer) ArtifactFor(frag Fragment) (string, error) { return d.ConfigPath, nil }

// configurationClose is where managed regions land when the file already
// has a configuration element. IIS picks up web.config changes itself, so
// no reload flag is reported.
const configurationClose = "</configuration>"

func (d *IISDeployer) Deploy(frag Fragment) Result {
	err := updateArtifact(d.ConfigPath, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(ensureConfigShell(content), XMLMarkers)
		if got, ok := doc.Region(frag.RuleKey); ok && equalLines(got, frag.Lines) {
			return "", false, nil
		}
		doc.SetRegion(frag.RuleKey, frag.Lines, configurationClose)
		return doc.Render(), true, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: d.ConfigPath}
}

func (d *IISDeployer) Remove(frag Fragment) Result {
	err := updateArtifact(d.ConfigPath, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, XMLMarkers)
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

func (d *IISDeployer) WriteBatch(artifact string, frags []Fragment) Result {
	err := updateArtifact(artifact, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(ensureConfigShell(content), XMLMarkers)
		removed := doc.RemoveAllRegions()
		for _, f := range frags {
			doc.SetRegion(f.RuleKey, f.Lines, configurationClose)
		}
		return doc.Render(), removed > 0 || len(frags) > 0, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: artifact}
}

func (d *IISDeployer) Verify(frag Fragment) (bool, error) {
	return regionInSync(d.ConfigPath, XMLMarkers, frag)
}

// ensureConfigShell wraps an empty artifact in a minimal configuration
// document so inserted regions are valid XML.
func ensureConfigShell(content string) string {
	if strings.Contains(content, "<configuration") {
		return content
	}
	shell := `<?xml version="1.0" encoding="UTF-8"?>` + "\n<configuration>\n" + configurationClose + "\n"
	if strings.TrimSpace(content) == "" {
		return shell
	}
	return content
}
