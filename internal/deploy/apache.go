package deploy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/util"
)

// coreRewriteSentinel is the application's own rewrite block. Managed
// regions must land before it so blocking rules run ahead of the
// application's catch-all front-controller rule.
const coreRewriteSentinel = "# BEGIN WordPress"

// batchKey frames the aggregate block written by full rebuilds.
const batchKey = "WARDEN SECURITY RULES"

// ApacheDeployer writes per-directory rewrite files under the site root.
// Three artifact classes exist: the root rewrite file, the uploads
// directory's file, and rule-specified custom relative paths.
type ApacheDeployer struct {
	SiteRoot   string
	UploadsDir string
	Backup     bool
}

func NewApacheDeployer(siteRoot, uploadsDir string, backup bool) *ApacheDeployer {
	if uploadsDir == "" {
		uploadsDir = filepath.Join("wp-content", "uploads")
	}
	return &ApacheDeployer{SiteRoot: siteRoot, UploadsDir: uploadsDir, Backup: backup}
}

func (d *ApacheDeployer) Platform() string { return models.PlatformApache }

// artifactPath maps a fragment's target to an absolute rewrite-file path.
func (d *ApacheDeployer) artifactPath(frag Fragment) (string, error) {
	switch frag.Target {
	case models.TargetUploads:
		return filepath.Join(d.SiteRoot, d.UploadsDir, ".htaccess"), nil
	case models.TargetCustom:
		rel := util.CleanRelPath(frag.TargetFile)
		if rel == "" {
			return "", fmt.Errorf("invalid custom target for %s: %w", frag.RuleKey, ErrArtifactNotWritable)
		}
		return filepath.Join(d.SiteRoot, rel, ".htaccess"), nil
	default:
		return filepath.Join(d.SiteRoot, ".htaccess"), nil
	}
}

func (d *ApacheDeployer) ArtifactFor(frag Fragment) (string, error) {
	return d.artifactPath(frag)
}

func (d *ApacheDeployer) Artifacts() []string {
	return []string{
		filepath.Join(d.SiteRoot, ".htaccess"),
		filepath.Join(d.SiteRoot, d.UploadsDir, ".htaccess"),
	}
}

// Deploy replaces the rule's region in place, creating it before the
// application's own block when absent.
func (d *ApacheDeployer) Deploy(frag Fragment) Result {
	path, err := d.artifactPath(frag)
	if err != nil {
		return failure(err)
	}
	err = updateArtifact(path, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, HashMarkers)
		if body, ok := doc.Region(frag.RuleKey); ok && equalLines(body, frag.Lines) {
			return "", false, nil
		}
		doc.SetRegion(frag.RuleKey, frag.Lines, coreRewriteSentinel)
		return doc.Render(), true, nil
	})
	if err != nil {
		return failure(err)
	}
	logger.WithRule(frag.RuleKey).WithField("file", path).Debug("rewrite region deployed")
	return Result{Success: true, File: path}
}

func (d *ApacheDeployer) Remove(frag Fragment) Result {
	path, err := d.artifactPath(frag)
	if err != nil {
		return failure(err)
	}
	err = updateArtifact(path, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, HashMarkers)
		if !doc.RemoveRegion(frag.RuleKey) {
			return "", false, nil
		}
		return doc.Render(), true, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: path}
}

// WriteBatch rebuilds the artifact's managed content wholesale: every
// existing managed region is stripped, then the desired fragments are
// written as one aggregate block. Called with zero fragments it still
// strips, which is how orphaned regions disappear.
func (d *ApacheDeployer) WriteBatch(artifact string, frags []Fragment) Result {
	err := updateArtifact(artifact, d.Backup, func(content string) (string, bool, error) {
		doc := ParseDocument(content, HashMarkers)
		removed := doc.RemoveAllRegions()
		if len(frags) == 0 {
			return doc.Render(), removed > 0, nil
		}
		doc.SetRegion(batchKey, renderBatch(frags), coreRewriteSentinel)
		return doc.Render(), true, nil
	})
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, File: artifact}
}

// renderBatch lays out fragments in the caller-provided order, each framed
// by its own sub-markers so Verify can still find individual rules. Order
// is the caller's contract; some directives are order-sensitive.
func renderBatch(frags []Fragment) []string {
	var lines []string
	for i, f := range frags {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, HashMarkers.begin(f.RuleKey))
		lines = append(lines, f.Lines...)
		lines = append(lines, HashMarkers.end(f.RuleKey))
	}
	return lines
}

// Verify checks the on-disk region against the fragment, looking both at
// top-level regions and inside the aggregate batch block. A rule expected
// absent must be missing from both.
func (d *ApacheDeployer) Verify(frag Fragment) (bool, error) {
	path, err := d.artifactPath(frag)
	if err != nil {
		return false, err
	}
	ok, err := regionInSync(path, HashMarkers, frag)
	if err != nil {
		return false, err
	}
	if len(frag.Lines) == 0 {
		if !ok {
			return false, nil
		}
		_, present, err := batchRegion(path, frag.RuleKey)
		return !present, err
	}
	if ok {
		return true, nil
	}
	// The rule may live inside the batch block after a full rebuild.
	body, present, err := batchRegion(path, frag.RuleKey)
	if err != nil || !present {
		return false, err
	}
	return equalLines(body, frag.Lines), nil
}

// batchRegion extracts one rule's sub-region from the aggregate block.
func batchRegion(path, ruleKey string) ([]string, bool, error) {
	body, found, err := readRegion(path, HashMarkers, batchKey)
	if err != nil || !found {
		return nil, false, err
	}
	inner := ParseDocument(strings.Join(body, "\n"), HashMarkers)
	got, ok := inner.Region(ruleKey)
	return got, ok, nil
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
