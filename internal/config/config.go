package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	DataDir      string
	CatalogDir   string

	// Paths of the managed configuration artifacts.
	SiteRoot          string // directory holding the root rewrite file
	UploadsDir        string // directory holding the uploads rewrite file
	RuntimeConfigPath string // runtime constants file loaded early by the host app
	NginxRulesPath    string // generated reverse-proxy include file
	IISConfigPath     string // Windows web-server config file
	CaddyRulesPath    string // generated Caddyfile snippet

	// ServerSoftware mirrors the identification string the host web server
	// reports; populated from the conventional SERVER_SOFTWARE variable.
	ServerSoftware string

	DeployProfile string // auto_detect, maximum or conservative
	NotifyURL     string // optional shoutrrr destination for failure alerts
	JWTSecret     string
	Debug         bool
}

// Load reads env vars and falls back to defaults so the service can boot
// with zero configuration.
func Load() (Config, error) {
	dataDir := getEnv("WARDEN_DATA_DIR", "data")

	cfg := Config{
		Environment:  getEnv("WARDEN_ENV", "development"),
		HTTPPort:     getEnv("WARDEN_HTTP_PORT", "8080"),
		DatabasePath: getEnv("WARDEN_DB_PATH", filepath.Join(dataDir, "warden.db")),
		DataDir:      dataDir,
		CatalogDir:   getEnv("WARDEN_CATALOG_DIR", filepath.Join(dataDir, "catalogs")),

		SiteRoot:          getEnv("WARDEN_SITE_ROOT", "."),
		UploadsDir:        getEnv("WARDEN_UPLOADS_DIR", filepath.Join(".", "uploads")),
		RuntimeConfigPath: getEnv("WARDEN_RUNTIME_CONFIG", filepath.Join(".", "wp-config.php")),
		NginxRulesPath:    getEnv("WARDEN_NGINX_RULES", filepath.Join(dataDir, "warden-nginx-protection.conf")),
		IISConfigPath:     getEnv("WARDEN_IIS_CONFIG", filepath.Join(".", "web.config")),
		CaddyRulesPath:    getEnv("WARDEN_CADDY_RULES", filepath.Join(dataDir, "warden-caddy-rules.conf")),

		ServerSoftware: getEnv("SERVER_SOFTWARE", ""),

		DeployProfile: getEnv("WARDEN_DEPLOY_PROFILE", "auto_detect"),
		NotifyURL:     getEnv("WARDEN_NOTIFY_URL", ""),
		JWTSecret:     getEnv("WARDEN_JWT_SECRET", ""),
		Debug:         strings.EqualFold(getEnv("WARDEN_DEBUG", "false"), "true"),
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}
