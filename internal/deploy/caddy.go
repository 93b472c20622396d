package deploy

import (
	"github.com/wardenlabs/warden/internal/models"
)

// CaddyDeployer writes a snippet file meant to be imported from the site's
// Caddyfile. Caddy reloads gracefully, so the note names the command
// instead of flagging a hard reload.
type CaddyDeployer struct {
	RulesPath string
	Backup    bool
}

func NewCaddyDeployer(rulesPath string, backup bool) *CaddyDeployer {
	return &CaddyDeployer{RulesPath: rulesPath, Backup: backup}
}

func (d *CaddyDeployer) Platform() string    { return models.PlatformCaddy }
func (d *CaddyDeployer) Artifacts() []string { return []string{d.RulesPath} }

func (d *CaddyDeployer) ArtifactFor(frag Fragment) (string, error) { return d.RulesPath, nil }

func (d *CaddyDeployer) Deploy(frag Fragment) Result {
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
		Note: "import this snippet from the Caddyfile and run caddy reload"}
}

func (d *CaddyDeployer) Remove(frag Fragment) Result {
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

func (d *CaddyDeployer) WriteBatch(artifact string, frags []Fragment) Result {
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

func (d *CaddyDeployer) Verify(frag Fragment) (bool, error) {
	return regionInSync(d.RulesPath, HashMarkers, frag)
}
