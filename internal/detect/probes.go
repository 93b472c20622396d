package detect

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/wardenlabs/warden/internal/models"
)

// Canonical marker files probed per platform, relative to the site root
// unless absolute.
var platformMarkerFiles = map[string][]string{
	models.PlatformApache: {".htaccess"},
	models.PlatformNginx:  {"nginx.conf", "/etc/nginx/nginx.conf"},
	models.PlatformIIS:    {"web.config"},
	models.PlatformCaddy:  {"Caddyfile", "/etc/caddy/Caddyfile"},
}

// Binaries whose presence on PATH corroborates a platform when the server
// header is absent or generic.
var capabilityBinaries = map[string][]string{
	"apache": {"apachectl", "apache2ctl", "httpd"},
	"nginx":  {"nginx"},
	"caddy":  {"caddy"},
}

// Env var names set by specific managed-hosting providers.
var hostingIndicators = map[string]string{
	"pantheon": "PANTHEON_ENVIRONMENT",
	"wpengine": "WPE_APIKEY",
	"kinsta":   "KINSTA_CACHE_ZONE",
}

func probeServerSoftware(_ context.Context, d *Detector) ProbeResult {
	software := d.env.ServerSoftware
	if software == "" {
		software = os.Getenv("SERVER_SOFTWARE")
	}

	detected := "unknown"
	lower := strings.ToLower(software)
	switch {
	case strings.Contains(lower, "nginx"):
		detected = "nginx"
	case strings.Contains(lower, "litespeed"):
		detected = "litespeed"
	case strings.Contains(lower, "apache"):
		detected = "apache"
	case strings.Contains(lower, "iis"):
		detected = "iis"
	}

	return ProbeResult{
		Detected: detected != "unknown",
		Values: map[string]string{
			"raw":    software,
			"server": detected,
		},
	}
}

// probeRuntime inspects the running process. It always succeeds and backs
// the universal-fallback platform.
func probeRuntime(_ context.Context, _ *Detector) ProbeResult {
	return ProbeResult{
		Detected: true,
		Values: map[string]string{
			"go_version": runtime.Version(),
			"goos":       runtime.GOOS,
			"goarch":     runtime.GOARCH,
		},
	}
}

func probeFilesystem(ctx context.Context, d *Detector) ProbeResult {
	res := ProbeResult{Detected: true, Filesystem: map[string]FileProbe{}}

	for platform, paths := range platformMarkerFiles {
		fp := FileProbe{}
		for _, p := range paths {
			if ctx.Err() != nil {
				res.Error = ctx.Err().Error()
				break
			}
			abs := p
			if !filepath.IsAbs(p) {
				abs = filepath.Join(d.env.SiteRoot, p)
			}
			info, err := os.Stat(abs)
			if err != nil || info.IsDir() {
				continue
			}
			fp.Found = true
			if f, err := os.OpenFile(abs, os.O_WRONLY, 0); err == nil {
				fp.Writable = true
				f.Close()
			}
		}
		res.Filesystem[platform] = fp
	}
	return res
}

func probeCapabilities(_ context.Context, d *Detector) ProbeResult {
	look := d.env.LookPath
	if look == nil {
		look = func(bin string) bool {
			_, err := exec.LookPath(bin)
			return err == nil
		}
	}

	values := map[string]string{}
	any := false
	for name, bins := range capabilityBinaries {
		found := false
		for _, bin := range bins {
			if look(bin) {
				found = true
				break
			}
		}
		if found {
			any = true
		}
		values[name] = boolString(found)
	}
	return ProbeResult{Detected: any, Values: values}
}

func probeHostingProvider(_ context.Context, d *Detector) ProbeResult {
	lookup := d.env.EnvLookup
	if lookup == nil {
		lookup = func(name string) bool { return os.Getenv(name) != "" }
	}

	provider := "unknown"
	for name, envVar := range hostingIndicators {
		if lookup(envVar) {
			provider = name
			break
		}
	}

	// Edge-proxy fingerprints are only visible on a live request.
	edge := "none"
	if d.headerFn != nil {
		if d.headerFn("CF-Ray") != "" {
			edge = "cloudflare"
		} else if d.headerFn("X-Sucuri-ID") != "" {
			edge = "sucuri"
		}
	}

	return ProbeResult{
		Detected: provider != "unknown" || edge != "none",
		Values: map[string]string{
			"provider":   provider,
			"edge_proxy": edge,
		},
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
