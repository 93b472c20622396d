package routes

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/wardenlabs/warden/internal/api/handlers"
	"github.com/wardenlabs/warden/internal/api/middleware"
	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/deploy"
	"github.com/wardenlabs/warden/internal/detect"
	"github.com/wardenlabs/warden/internal/metrics"
	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/orchestrate"
	"github.com/wardenlabs/warden/internal/services"
	"github.com/wardenlabs/warden/internal/translate"
)

// App bundles the long-running pieces Register wires up so main can start
// and stop them around the HTTP server.
type App struct {
	Sync         *services.SyncService
	Drift        *services.DriftWatcher
	Catalogs     *services.CatalogService
	Rebuilder    *orchestrate.Rebuilder
	Orchestrator *orchestrate.Orchestrator
}

// Register wires up API routes and performs automatic migrations.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*App, error) {
	if err := db.AutoMigrate(
		&models.Rule{},
		&models.Setting{},
		&models.Notification{},
		&models.DeploymentRecord{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery(cfg.Debug))
	router.Use(middleware.SecurityHeaders())

	settingsService := services.NewSettingsService(db)
	notificationService := services.NewNotificationService(db, cfg.NotifyURL)
	catalogService := services.NewCatalogService(db, cfg.CatalogDir, settingsService)
	authService := services.NewAuthService(settingsService, cfg.JWTSecret)

	detector := detect.New(detect.Environment{
		ServerSoftware: cfg.ServerSoftware,
		SiteRoot:       cfg.SiteRoot,
		EnvLookup:      func(key string) bool { return os.Getenv(key) != "" },
		LookPath: func(binary string) bool {
			_, err := exec.LookPath(binary)
			return err == nil
		},
	}, settingsService)

	registry := deploy.NewRegistry(
		deploy.NewCloudflareDeployer(),
		deploy.NewNginxDeployer(cfg.NginxRulesPath, true),
		deploy.NewCaddyDeployer(cfg.CaddyRulesPath, true),
		deploy.NewApacheDeployer(cfg.SiteRoot, cfg.UploadsDir, true),
		deploy.NewIISDeployer(cfg.IISConfigPath, true),
		deploy.NewRuntimeDeployer(cfg.RuntimeConfigPath, true),
	)

	orchestrator := orchestrate.New(db, detector, translate.New(), registry, notificationService)
	rebuilder := orchestrate.NewRebuilder(catalogService, registry, orchestrator)
	ruleService := services.NewRuleService(db, rebuilder)
	syncService := services.NewSyncService(db, catalogService, rebuilder)
	driftWatcher := services.NewDriftWatcher(registry, rebuilder, notificationService)

	promRegistry := prometheus.NewRegistry()
	metrics.Register(promRegistry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	router.GET("/api/v1/health", handlers.HealthHandler)

	api := router.Group("/api/v1")

	authHandler := handlers.NewAuthHandler(authService)
	api.POST("/auth/setup", authHandler.Setup)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.RequireAuth(authService))
	{
		protected.POST("/auth/change-password", authHandler.ChangePassword)

		environmentHandler := handlers.NewEnvironmentHandler(orchestrator)
		protected.GET("/environment", environmentHandler.Detect)

		ruleHandler := handlers.NewRuleHandler(ruleService)
		protected.GET("/rules", ruleHandler.List)
		protected.POST("/rules", ruleHandler.Create)
		protected.GET("/rules/:key", ruleHandler.Get)
		protected.PUT("/rules/:key", ruleHandler.Update)
		protected.DELETE("/rules/:key", ruleHandler.Delete)
		protected.POST("/rules/:key/enable", ruleHandler.SetEnabled(true))
		protected.POST("/rules/:key/disable", ruleHandler.SetEnabled(false))

		deploymentHandler := handlers.NewDeploymentHandler(orchestrator, rebuilder, ruleService)
		protected.POST("/deploy", deploymentHandler.Deploy)
		protected.POST("/rollback/:key", deploymentHandler.Rollback)
		protected.POST("/rebuild", deploymentHandler.Rebuild)
		protected.GET("/verify/:key", deploymentHandler.Verify)
		protected.GET("/deployments", deploymentHandler.History)

		catalogHandler := handlers.NewCatalogHandler(catalogService)
		protected.GET("/catalogs", catalogHandler.List)
		protected.PUT("/catalogs/active", catalogHandler.SetActive)
		protected.POST("/catalogs/import", catalogHandler.Import)

		notificationHandler := handlers.NewNotificationHandler(notificationService)
		protected.GET("/notifications", notificationHandler.List)
		protected.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
	}

	return &App{
		Sync:         syncService,
		Drift:        driftWatcher,
		Catalogs:     catalogService,
		Rebuilder:    rebuilder,
		Orchestrator: orchestrator,
	}, nil
}
