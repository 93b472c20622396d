package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/services"
)

// seed imports the catalog YAML files into the rule table without starting
// the HTTP service. Useful for provisioning and CI fixtures.
func main() {
	dir := flag.String("catalogs", "", "catalog directory (defaults to WARDEN_CATALOG_DIR)")
	flag.Parse()

	logger.Init(false, io.Discard)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dir != "" {
		cfg.CatalogDir = *dir
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Rule{},
		&models.Setting{},
		&models.Notification{},
		&models.DeploymentRecord{},
	); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	settings := services.NewSettingsService(db)
	catalogs := services.NewCatalogService(db, cfg.CatalogDir, settings)

	n, err := catalogs.ImportAll(context.Background())
	if err != nil {
		log.Fatalf("import catalogs: %v", err)
	}

	names, err := catalogs.Catalogs()
	if err != nil {
		log.Fatalf("list catalogs: %v", err)
	}

	fmt.Printf("imported %d rules from %s\n", n, cfg.CatalogDir)
	for _, name := range names {
		fmt.Printf("  catalog: %s\n", name)
	}
	if n == 0 {
		fmt.Fprintln(os.Stderr, "no rules imported; check the catalog directory")
	}
}
