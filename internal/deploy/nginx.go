package deploy

import (
	"github.com/wardenlabs/warden/internal/models"
)

// NginxDeployer writes an include file of location blocks. Nginx never
// re-reads config at request time, so every successful write reports
// ReloadRequired and the operator (or an external reloader) must act.
type NginxDeployer struct {
	RulesPath string
	Backup    bool
}

func NewNginxDeployer(rulesPath string, backup bool) *NginxDeployer {
	return &NginxDeployer{RulesPath: rulesPath, Backup: backup}
}

func (d *NginxDeployer) Platform() string    { return models.PlatformNginx }
func (d *NginxDeployer) Artifacts() []string { return []string{d.RulesPath} }

func (d *NginxDeployer) ArtifactFor(frag Fragment) (string, error) { return d.RulesPath, nil }

func (d *NginxDeployer) Deploy(frag Fragment) Result {
	err := updateArtifact(d.RulesPath, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, HashMarkers)
		if got, ok := doc.Region(frag.RuleKey); ok && equalLines(got, frag.Lines) {
			return "", false, nil
		}
		doc.SetRegion(frag.RuleKey, frag.Lines, "")
		return doc.Render(), true, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: d.RulesPath, ReloadRequired: true,
		Note: "include this file from the server block and reload nginx"}
}

func (d *NginxDeployer) Remove(frag Fragment) Result {
	err := updateArtifact(d.RulesPath, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, HashMarkers)
		if !doc.RemoveRegion(frag.RuleKey) {
			return "", false, nil
		}
		return doc.Render(), true, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: d.RulesPath, ReloadRequired: true}
}

func (d *NginxDeployer) WriteBatch(artifact string, frags []Fragment) Result {
	err := updateArtifact(artifact, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, HashMarkers)
		removed := doc.RemoveAllRegions()
		for _, f := range frags {
			doc.SetRegion(f.RuleKey, f.Lines, "")
		}
		return doc.Render(), removed > 0 || len(frags) > 0, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: artifact, ReloadRequired: true}
}

func (d *NginxDeployer) Verify(frag Fragment) (bool, error) {
	return regionInSync(d.RulesPath, HashMarkers, frag)
}
