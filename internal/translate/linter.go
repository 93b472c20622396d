package translate

import (
	"regexp"
	"strings"

	"github.com/wardenlabs/warden/internal/models"
)

// Directives that overlap or conflict with generated rewrite files and must
// never pass through from user-supplied rule code. They are commented out
// rather than dropped so the operator can still see what the rule asked for.
var forbiddenRewriteDirectives = []string{
	"TraceEnable",
	"ServerSignature",
	"ServerTokens",
	"UseCanonicalName",
}

var (
	directoryOpenRe  = regexp.MustCompile(`(?i)<Directory\b[^>]*>`)
	directoryCloseRe = regexp.MustCompile(`(?i)</Directory>`)
)

// lintMatrix rewrites each platform's code block into a dialect that is
// safe for the artifact it lands in. Only the rewrite-file dialect needs
// correction today; the other platforms pass through untouched.
func (t *Translator) lintMatrix(key string, matrix Matrix, decisions *[]Decision) {
	impl, ok := matrix[models.PlatformApache]
	if !ok {
		return
	}

	linted := make([]string, 0, len(impl.Codes))
	hasRewriteDirective := false
	for _, code := range impl.Codes {
		out, changed := lintRewriteCode(code)
		if changed {
			*decisions = append(*decisions, Decision{
				Action: "code_linted",
				Reason: "rewrote directives not valid in a per-directory context",
			})
		}
		if strings.Contains(out, "RewriteRule") || strings.Contains(out, "RewriteCond") {
			hasRewriteDirective = true
		}
		linted = append(linted, out)
	}

	// Rewrite directives are inert unless the engine is switched on, and
	// the artifact cannot assume the server config already did so.
	if hasRewriteDirective && !containsFold(strings.Join(linted, "\n"), "RewriteEngine On") {
		linted = append([]string{"<IfModule mod_rewrite.c>\nRewriteEngine On\n</IfModule>"}, linted...)
		*decisions = append(*decisions, Decision{
			Action: "prologue_added",
			Reason: "rewrite directives present without an engine toggle",
		})
	}

	impl.Codes = linted
	matrix[models.PlatformApache] = impl
}

// lintRewriteCode fixes the two classes of invalid per-directory syntax:
// <Directory> sections (server-config only, replaced with an equivalent
// FilesMatch) and server-scope directives (commented out).
func lintRewriteCode(code string) (string, bool) {
	out := code
	changed := false

	if directoryOpenRe.MatchString(out) {
		out = directoryOpenRe.ReplaceAllString(out, `<FilesMatch ".*">`)
		out = directoryCloseRe.ReplaceAllString(out, "</FilesMatch>")
		changed = true
	}

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, directive := range forbiddenRewriteDirectives {
			if hasDirectivePrefix(trimmed, directive) {
				lines[i] = "# " + line + " # disabled: not permitted here"
				changed = true
				break
			}
		}
	}

	return strings.Join(lines, "\n"), changed
}

func hasDirectivePrefix(line, directive string) bool {
	if len(line) < len(directive) {
		return false
	}
	if !strings.EqualFold(line[:len(directive)], directive) {
		return false
	}
	rest := line[len(directive):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}
