package deploy

import (
	"github.com/wardenlabs/warden/internal/models"
)

// CloudflareDeployer covers edge-enforced rules. There is no local
// artifact to write; the engine records the desired rule text and reports
// that the operator must apply it in the zone dashboard or via the API.
type CloudflareDeployer struct{}

func NewCloudflareDeployer() *CloudflareDeployer { return &CloudflareDeployer{} }

func (d *CloudflareDeployer) Platform() string    { return models.PlatformCloudflare }
func (d *CloudflareDeployer) Artifacts() []string { return nil }

func (d *CloudflareDeployer) ArtifactFor(frag Fragment) (string, error) { return "", nil }

func (d *CloudflareDeployer) Deploy(frag Fragment) Result {
	return Result{
		Success:      true,
		ManualAction: true,
		Note:         "apply at the edge: create the documented WAF rule for " + frag.RuleKey,
	}
}

func (d *CloudflareDeployer) Remove(frag Fragment) Result {
	return Result{
		Success:      true,
		ManualAction: true,
		Note:         "remove the edge WAF rule for " + frag.RuleKey,
	}
}

func (d *CloudflareDeployer) WriteBatch(artifact string, frags []Fragment) Result {
	if len(frags) == 0 {
		return Result{Success: true}
	}
	return Result{Success: true, ManualAction: true, Note: "edge rules pending manual application"}
}

// Verify cannot observe edge state without zone credentials, so an edge
// rule is never reported out of sync from here.
func (d *CloudflareDeployer) Verify(frag Fragment) (bool, error) {
	return true, nil
}
