package models

// Deployment platform identifiers. Each one maps to exactly one deployer.
const (
	PlatformCloudflare = "cloudflare_edge"
	PlatformNginx      = "nginx_config"
	PlatformApache     = "apache_htaccess"
	PlatformCaddy      = "caddy_config"
	PlatformIIS        = "iis_config"
	PlatformRuntime    = "app_runtime"
)

// Legacy single-target drivers carried by older rule definitions. The
// translator bridges these onto the platform matrix.
const (
	DriverHook       = "hook"
	DriverHtaccess   = "htaccess"
	DriverWPConfig   = "wp_config"
	DriverNginx      = "nginx"
	DriverIIS        = "iis"
	DriverCaddy      = "caddy"
	DriverCloudflare = "cloudflare"
	DriverManual     = "manual"
	DriverUniversal  = "universal"
)

// File-based deployment targets.
const (
	TargetRoot    = "root"
	TargetUploads = "uploads"
	TargetCustom  = "custom"
)

// Deployment profiles accepted by the orchestrator.
const (
	ProfileAutoDetect   = "auto_detect"
	ProfileMaximum      = "maximum"
	ProfileConservative = "conservative"
)

// Lifecycle statuses for rules. Release and implemented rules are always
// enforced; draft and available never are; develop and test keep whatever
// flag was last set explicitly.
const (
	StatusDraft       = "draft"
	StatusAvailable   = "available"
	StatusDevelop     = "develop"
	StatusTest        = "test"
	StatusRelease     = "release"
	StatusImplemented = "implemented"
)
