package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Rule is the atomic declarative protection unit. Legacy rules carry a
// single driver plus key->code mappings; modern rules carry a full
// per-platform matrix which supersedes the driver when present.
type Rule struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	UUID       string `json:"uuid" gorm:"uniqueIndex"`
	Key        string `json:"key" gorm:"uniqueIndex"` // stable feature/risk identifier
	Title      string `json:"title"`
	Driver     string `json:"driver" gorm:"index"`
	Target     string `json:"target"`
	TargetFile string `json:"target_file"` // optional relative path override

	// Mappings and PlatformMatrix are stored as JSON text; sqlite has no
	// native JSON column and the shapes are open-ended.
	Mappings       string `json:"mappings" gorm:"type:text"`
	PlatformMatrix string `json:"platform_matrix" gorm:"type:text"`
	Controls       string `json:"controls" gorm:"type:text"`

	Enabled           bool   `json:"enabled" gorm:"index"`
	Status            string `json:"status" gorm:"index"`
	Enforced          bool   `json:"enforced"` // manual flag, honored only in develop/test
	AlwaysOn          bool   `json:"always_on"`
	RollbackOnDisable bool   `json:"rollback_on_disable" gorm:"default:true"`
	Backup            bool   `json:"backup" gorm:"default:true"`

	Catalog  string `json:"catalog" gorm:"index"` // source catalog file name
	Position int    `json:"position"`             // insertion order within the catalog

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveEnforced applies the lifecycle gate on top of the manual flag.
func (r *Rule) EffectiveEnforced() bool {
	switch strings.ToLower(r.Status) {
	case StatusRelease, StatusImplemented:
		return true
	case StatusDraft, StatusAvailable:
		return false
	default:
		return r.Enforced && r.Enabled
	}
}

// LifecycleLocked reports whether rule content edits are currently frozen.
// Released rules may only be changed through an explicit override edit.
func (r *Rule) LifecycleLocked() bool {
	s := strings.ToLower(r.Status)
	return s == StatusRelease || s == StatusImplemented
}

// DecodedMappings parses the stored mapping JSON into binding-key order
// preserving fragments.
func (r *Rule) DecodedMappings() (map[string]CodeFragment, error) {
	if strings.TrimSpace(r.Mappings) == "" {
		return map[string]CodeFragment{}, nil
	}
	out := map[string]CodeFragment{}
	if err := json.Unmarshal([]byte(r.Mappings), &out); err != nil {
		return nil, fmt.Errorf("decode mappings for %s: %w", r.Key, err)
	}
	return out, nil
}

// DecodedMatrix parses the stored platform matrix, if any.
func (r *Rule) DecodedMatrix() (map[string]MatrixEntry, error) {
	if strings.TrimSpace(r.PlatformMatrix) == "" {
		return nil, nil
	}
	out := map[string]MatrixEntry{}
	if err := json.Unmarshal([]byte(r.PlatformMatrix), &out); err != nil {
		return nil, fmt.Errorf("decode platform matrix for %s: %w", r.Key, err)
	}
	return out, nil
}

// DecodedControls parses the declared control schema.
func (r *Rule) DecodedControls() ([]Control, error) {
	if strings.TrimSpace(r.Controls) == "" {
		return nil, nil
	}
	var out []Control
	if err := json.Unmarshal([]byte(r.Controls), &out); err != nil {
		return nil, fmt.Errorf("decode controls for %s: %w", r.Key, err)
	}
	return out, nil
}

// Control is one declared toggle/input in a rule's schema.
type Control struct {
	Key         string `json:"key" yaml:"key"`
	Type        string `json:"type" yaml:"type"` // toggle, text, select, test_action
	Label       string `json:"label" yaml:"label"`
	SettingsKey string `json:"settings_key,omitempty" yaml:"settings_key,omitempty"`
	TestScript  string `json:"test_script,omitempty" yaml:"test_script,omitempty"`
}

// MatrixEntry is one platform's slot in a modern rule matrix.
type MatrixEntry struct {
	Rules      map[string]CodeFragment `json:"rules,omitempty"`
	Code       string                  `json:"code,omitempty"`
	Target     string                  `json:"target,omitempty"`
	TargetFile string                  `json:"target_file,omitempty"`
}

// CodeFragment is either a plain code string (legacy single-platform form)
// or a per-platform object. The union is resolved once at the translator
// boundary so deployers only ever see plain strings.
type CodeFragment struct {
	Plain       string
	PerPlatform map[string]string
}

// Resolve returns the code for the given platform, falling back to the
// plain form. Platform keys tolerate the historic dot/underscore variants.
func (f CodeFragment) Resolve(platform string) string {
	if f.PerPlatform == nil {
		return f.Plain
	}
	aliases := platformAliases(platform)
	for _, a := range aliases {
		if code, ok := f.PerPlatform[a]; ok {
			return code
		}
	}
	// Tolerate stray whitespace in authored keys.
	for k, code := range f.PerPlatform {
		tk := strings.TrimSpace(k)
		for _, a := range aliases {
			if tk == a {
				return code
			}
		}
	}
	if code, ok := f.PerPlatform["code"]; ok {
		return code
	}
	return f.Plain
}

// IsZero reports whether the fragment carries no code at all.
func (f CodeFragment) IsZero() bool {
	return f.Plain == "" && len(f.PerPlatform) == 0
}

func platformAliases(platform string) []string {
	switch platform {
	case PlatformApache:
		return []string{PlatformApache, "htaccess", ".htaccess", "apache"}
	case PlatformRuntime:
		return []string{PlatformRuntime, "wp_config", "wp-config", "wp-config.php", "hook", "php"}
	case PlatformNginx:
		return []string{PlatformNginx, "nginx"}
	case PlatformIIS:
		return []string{PlatformIIS, "iis", "web.config"}
	case PlatformCaddy:
		return []string{PlatformCaddy, "caddy", "Caddyfile"}
	case PlatformCloudflare:
		return []string{PlatformCloudflare, "cloudflare"}
	}
	return []string{platform}
}

// UnmarshalJSON accepts either a bare string or a per-platform object whose
// values may themselves be strings or {code: ...} objects.
func (f *CodeFragment) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		f.Plain = plain
		f.PerPlatform = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("code fragment must be a string or a per-platform object: %w", err)
	}

	perPlatform := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			perPlatform[k] = s
			continue
		}
		var inner struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(v, &inner); err != nil {
			return fmt.Errorf("code fragment entry %q has unsupported shape", k)
		}
		perPlatform[k] = inner.Code
	}
	f.Plain = ""
	f.PerPlatform = perPlatform
	return nil
}

// MarshalJSON renders the fragment back in the shape it was authored in.
func (f CodeFragment) MarshalJSON() ([]byte, error) {
	if f.PerPlatform != nil {
		return json.Marshal(f.PerPlatform)
	}
	return json.Marshal(f.Plain)
}
