package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/server"
	"github.com/wardenlabs/warden/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logDir := filepath.Join(cfg.DataDir, "logs")
	_ = os.MkdirAll(logDir, 0755)
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "warden.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.Debug, io.MultiWriter(os.Stdout, rotator))

	logger.Log().Infof("starting %s %s", version.Name, version.Full())

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	srv, err := server.New(db, cfg)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the rule table before the first rebuild so a fresh install
	// converges in one pass.
	if n, err := srv.App.Catalogs.ImportAll(ctx); err != nil {
		logger.Log().Warnf("catalog import failed: %v", err)
	} else if n > 0 {
		logger.Log().Infof("imported %d catalog rules", n)
	}
	if err := srv.App.Rebuilder.RebuildAll(ctx); err != nil {
		logger.Log().Warnf("initial rebuild failed: %v", err)
	}

	if err := srv.App.Sync.Start(); err != nil {
		logger.Log().Warnf("sync scheduler failed to start: %v", err)
	}
	defer srv.App.Sync.Stop()

	if err := srv.App.Drift.Start(ctx); err != nil {
		logger.Log().Warnf("drift watcher failed to start: %v", err)
	} else {
		defer srv.App.Drift.Close()
	}

	logger.Log().Infof("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
