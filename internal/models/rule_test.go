package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveEnforcedLifecycleGate(t *testing.T) {
	cases := []struct {
		status   string
		enabled  bool
		enforced bool
		want     bool
	}{
		{StatusRelease, false, false, true},
		{StatusImplemented, true, false, true},
		{StatusDraft, true, true, false},
		{StatusAvailable, true, true, false},
		{StatusTest, true, true, true},
		{StatusTest, true, false, false},
		{StatusTest, false, true, false},
		{StatusDevelop, true, true, true},
	}
	for _, tc := range cases {
		r := Rule{Status: tc.status, Enabled: tc.enabled, Enforced: tc.enforced}
		assert.Equal(t, tc.want, r.EffectiveEnforced(), "status=%s enabled=%v enforced=%v", tc.status, tc.enabled, tc.enforced)
	}
}

func TestLifecycleLocked(t *testing.T) {
	cases := map[string]bool{
		StatusRelease:     true,
		"RELEASE":         true,
		StatusImplemented: true,
		StatusTest:        false,
		StatusDraft:       false,
	}
	for status, want := range cases {
		r := Rule{Status: status}
		assert.Equal(t, want, r.LifecycleLocked(), status)
	}
}

func TestCodeFragmentUnionDecoding(t *testing.T) {
	r := Rule{
		Key: "mixed",
		Mappings: `{
			"plain": "Options -Indexes",
			"split": {"apache_htaccess": "Require all denied", "nginx_config": "deny all;"}
		}`,
	}
	mappings, err := r.DecodedMappings()
	require.NoError(t, err)

	assert.Equal(t, "Options -Indexes", mappings["plain"].Resolve(PlatformApache))
	assert.Equal(t, "Require all denied", mappings["split"].Resolve(PlatformApache))
	assert.Equal(t, "deny all;", mappings["split"].Resolve(PlatformNginx))
}

func TestCodeFragmentPlatformAliases(t *testing.T) {
	r := Rule{
		Key:      "aliased",
		Mappings: `{"frag": {"htaccess": "legacy short key", "wp_config": "legacy runtime key"}}`,
	}
	mappings, err := r.DecodedMappings()
	require.NoError(t, err)
	assert.Equal(t, "legacy short key", mappings["frag"].Resolve(PlatformApache))
	assert.Equal(t, "legacy runtime key", mappings["frag"].Resolve(PlatformRuntime))
}

func TestDecodedMappingsRejectsMalformedJSON(t *testing.T) {
	r := Rule{Key: "bad", Mappings: `{not json`}
	_, err := r.DecodedMappings()
	assert.Error(t, err)
}
