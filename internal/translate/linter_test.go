package translate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/models"
)

func TestLintReplacesDirectorySections(t *testing.T) {
	rule := &models.Rule{
		Key:      "dir-section",
		Driver:   models.DriverHtaccess,
		Mappings: `{"m": "<Directory /var/www>\nOptions -Indexes\n</Directory>"}`,
	}

	canonical, decisions := normalize(t, rule)
	code := strings.Join(canonical.Matrix[models.PlatformApache].Codes, "\n")
	assert.Contains(t, code, `<FilesMatch ".*">`)
	assert.Contains(t, code, "</FilesMatch>")
	assert.NotContains(t, code, "<Directory")

	linted := false
	for _, d := range decisions {
		if d.Action == "code_linted" {
			linted = true
		}
	}
	assert.True(t, linted)
}

func TestLintCommentsOutServerScopeDirectives(t *testing.T) {
	rule := &models.Rule{
		Key:      "server-scope",
		Driver:   models.DriverHtaccess,
		Mappings: `{"m": "ServerSignature Off\nTraceEnable Off\nOptions -Indexes"}`,
	}

	canonical, _ := normalize(t, rule)
	code := strings.Join(canonical.Matrix[models.PlatformApache].Codes, "\n")
	assert.Contains(t, code, "# ServerSignature Off")
	assert.Contains(t, code, "# TraceEnable Off")
	assert.Contains(t, code, "\nOptions -Indexes")
}

func TestLintDoesNotTouchLookalikeDirectives(t *testing.T) {
	out, changed := lintRewriteCode("ServerSignatureCustom On")
	assert.False(t, changed)
	assert.Equal(t, "ServerSignatureCustom On", out)
}

func TestLintAddsRewriteEnginePrologue(t *testing.T) {
	rule := &models.Rule{
		Key:      "needs-engine",
		Driver:   models.DriverHtaccess,
		Mappings: `{"m": "RewriteRule ^debug\\.log$ - [F,L]"}`,
	}

	canonical, _ := normalize(t, rule)
	codes := canonical.Matrix[models.PlatformApache].Codes
	require.NotEmpty(t, codes)
	assert.Contains(t, codes[0], "RewriteEngine On")
}

func TestLintSkipsPrologueWhenEnginePresent(t *testing.T) {
	rule := &models.Rule{
		Key:      "has-engine",
		Driver:   models.DriverHtaccess,
		Mappings: `{"m": "RewriteEngine On\nRewriteRule ^x$ - [F]"}`,
	}

	canonical, _ := normalize(t, rule)
	joined := strings.Join(canonical.Matrix[models.PlatformApache].Codes, "\n")
	assert.Equal(t, 1, strings.Count(joined, "RewriteEngine On"))
}

func TestLintLeavesNonRewritePlatformsAlone(t *testing.T) {
	rule := &models.Rule{
		Key:      "nginx-only",
		Driver:   models.DriverNginx,
		Mappings: `{"m": "server_tokens off;"}`,
	}

	canonical, _ := normalize(t, rule)
	assert.Equal(t, []string{"server_tokens off;"}, canonical.Matrix[models.PlatformNginx].Codes)
}
