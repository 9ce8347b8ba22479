// Package main is the entry point for the netmon daemon. It polls a
// consumer router and a managed switch over their HTTP management APIs
// and writes the results to InfluxDB, optionally archiving switch event
// logs to Postgres.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/netmon-dev/netmon/internal/api"
	"github.com/netmon-dev/netmon/internal/buildinfo"
	"github.com/netmon-dev/netmon/internal/config"
	"github.com/netmon-dev/netmon/internal/logging"
	"github.com/netmon-dev/netmon/internal/monitor"
	"github.com/netmon-dev/netmon/internal/routerauth"
	"github.com/netmon-dev/netmon/internal/store"
	"github.com/netmon-dev/netmon/internal/switchauth"
	"github.com/netmon-dev/netmon/internal/watcher"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	fmt.Printf("netmon Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var configPath string
	var once bool
	flag.StringVar(&configPath, "config", "config.yaml", "Configure File Path")
	flag.BoolVar(&once, "once", false, "Run a single collection cycle and exit")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Apply(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := store.NewInfluxWriter(cfg.Influx)
	defer metrics.Close()

	archive, err := store.NewLogArchive(ctx, cfg.LogArchive)
	if err != nil {
		log.Fatalf("failed to open switch log archive: %v", err)
	}
	defer func() { _ = archive.Close() }()

	authenticator := &routerauth.Authenticator{
		HandshakeTimeout: cfg.HandshakeTimeout(),
		ProbeTimeout:     cfg.ProbeTimeout(),
	}
	manager := routerauth.NewManager(routerauth.Credentials{
		Address:  cfg.Router.Address,
		Username: cfg.Router.Username,
		Password: cfg.Router.Password,
	}, authenticator)

	mon := monitor.New(cfg, monitor.NewRouterAuth(manager), &switchauth.Client{}, metrics, archive)

	var apiServer *api.Server
	if cfg.Management.Listen != "" {
		apiServer = api.New(cfg, mon)
		apiServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	w, err := watcher.NewWatcher(configPath, func(newCfg *config.Config) {
		logging.Apply(newCfg.Logging)
		mon.SetIntervals(newCfg.CollectionInterval(), newCfg.RetryInterval())
		if apiServer != nil {
			apiServer.SetConfig(newCfg)
		}
		log.Info("configuration reloaded")
	})
	if err != nil {
		log.Fatalf("failed to create config watcher: %v", err)
	}
	if err = w.Start(ctx); err != nil {
		log.Fatalf("failed to start config watcher: %v", err)
	}
	defer func() { _ = w.Stop() }()

	if once {
		if !mon.RunCycle(ctx) {
			os.Exit(1)
		}
		return
	}

	switch err = mon.Run(ctx); {
	case errors.Is(err, context.Canceled):
		log.Info("shutdown signal received, stopping")
	case errors.Is(err, monitor.ErrTooManyFailures):
		log.Error("monitor stopped after repeated failures")
		os.Exit(1)
	case err != nil:
		log.Fatalf("monitor stopped: %v", err)
	}
}
