package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"matter-light-bridge/internal/bridge"
	"matter-light-bridge/internal/cloud"
	"matter-light-bridge/internal/console"
	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/endpoint"
	"matter-light-bridge/internal/history"
	"matter-light-bridge/internal/host"
	"matter-light-bridge/internal/store"
	"matter-light-bridge/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("matter-light-bridge starting", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bridge failed", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	events := host.NewEventBus(logger)
	h := host.New(host.Config{
		AggregatorEndpoint: datamodel.EndpointID(cfg.Bridge.AggregatorEndpoint),
		DynamicCapacity:    cfg.Bridge.DynamicCapacity,
		QueueSize:          cfg.Bridge.QueueSize,
	}, events, logger)

	registry := endpoint.NewRegistry(h.Endpoints().Capacity(), h.FirstDynamicEndpointID())
	if cursor, err := db.GetCursor(); err == nil {
		registry.SetCursor(datamodel.EndpointID(cursor))
	}
	registrar := endpoint.NewRegistrar(registry, h, h.AggregatorEndpoint(), logger)

	cloudClient := cloud.NewClient(cfg.Cloud, logger)
	cloudClient.OnResult(func(r cloud.Result) {
		events.Emit(host.Event{Type: host.EventCloudSync, Data: cloudSyncData(r)})
	})
	if !cfg.Cloud.Enabled() {
		logger.Warn("cloud url not configured, mirroring disabled")
	}

	var mirror bridge.Mirror = cloudClient
	if cfg.Cloud.Async {
		async := cloud.NewAsyncMirror(cloudClient, cfg.Cloud.QueueSize, logger)
		async.Start(ctx)
		defer async.Close()
		mirror = async
	}

	b := bridge.New(registry, h, mirror, events, logger)
	h.SetAttributeAccess(b)

	lights, err := registerLights(cfg.Lights, db, registrar, b, logger)
	if err != nil {
		return err
	}
	unsubPersist := events.On(host.EventDeviceChanged, lights.persistChanges(db, logger))
	defer unsubPersist()

	if cfg.History.Enabled {
		hc, err := history.Connect(ctx, cfg.History, logger)
		if err != nil {
			logger.Warn("history disabled", "err", err)
		} else {
			defer hc.Close()
			rec := history.NewRecorder(b, hc)
			unsubHistory := events.On(host.EventAttributeReport, rec.Record)
			defer unsubHistory()
		}
	}

	clusterRegistry := datamodel.NewRegistry(logger)
	for _, c := range clusters.All() {
		clusterRegistry.Register(c)
	}

	// Automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(b, h, events, cfg, logger)

	webOpts := []web.ServerOption{web.WithVersion(version), web.WithRegistrar(registrar)}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(b, h, clusterRegistry, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(b, h, events, cfg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Console.Enabled {
		con := console.New(b, h, logger)
		g.Go(func() error {
			if err := con.Run(gctx, console.Config{Port: cfg.Console.Port, Baud: cfg.Console.Baud}); err != nil {
				logger.Error("console stopped", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		b.Close()
		auto.Stop()
		mqtt.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "err", err)
		}
		webServer.Stop()
		h.Stop()
		return nil
	})

	logger.Info("bridge running", "lights", len(b.Lights()),
		"first_dynamic_endpoint", h.FirstDynamicEndpointID(), "cloud", cfg.Cloud.URL)
	return g.Wait()
}

func cloudSyncData(r cloud.Result) map[string]interface{} {
	data := map[string]interface{}{
		"field":       string(r.Field),
		"value":       r.Value,
		"outcome":     r.Outcome.String(),
		"duration_ms": r.Duration.Milliseconds(),
	}
	if r.StatusCode != 0 {
		data["status_code"] = r.StatusCode
	}
	if r.Err != nil {
		data["error"] = r.Err.Error()
	}
	return data
}
