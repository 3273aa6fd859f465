package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"repair_tracker/internal/bus"
	"repair_tracker/internal/config"
	"repair_tracker/internal/handlers"
	"repair_tracker/internal/logger"
	"repair_tracker/internal/registry"
	"repair_tracker/internal/repository"
	"repair_tracker/internal/repository/db"
	"repair_tracker/internal/seed"
	"repair_tracker/internal/server"
	"repair_tracker/internal/service"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Get(logger.InfoLevel, logger.ConsoleEncoding).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(cfg.Log.Level, cfg.Log.Encoding)
	defer func() { _ = log.Sync() }()

	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	eventBus := bus.New(log.With("component", "bus"))
	reg := registry.New(eventBus, log.With("component", "registry"), registry.WithQueueSize(cfg.WS.QueueSize))
	services := service.NewService(repository.NewRepository(conn), eventBus, service.Options{
		Log:      log.With("component", "service"),
		CacheTTL: cfg.Cache.TTL,
	})

	if cfg.Seed.Path != "" {
		applySeed(services, cfg.Seed.Path, log)
	}

	apiHandler := handlers.NewHandler(services, reg, log, handlers.Options{
		CommandRate:  rate.Limit(cfg.WS.RatePerSec),
		CommandBurst: cfg.WS.Burst,
		HTTPRate:     rate.Limit(cfg.HTTP.RatePerSec),
		HTTPBurst:    cfg.HTTP.Burst,
	})

	srv := server.New(server.Options{
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	})
	runHTTPServer(srv, cfg.Server.Port, apiHandler, log)

	waitForShutdown(srv, reg, eventBus, cfg.Server.ShutdownTimeout, log)
}

func applySeed(services *service.Service, path string, log *logger.Logger) {
	data, err := seed.Load(path)
	if err != nil {
		log.Fatalw("failed to load seed data", "err", err, "path", path)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := seed.Apply(ctx, services, data, log); err != nil {
		log.Fatalw("failed to apply seed data", "err", err)
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listen", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown blocks until SIGINT/SIGTERM, then stops accepting
// requests, drops every websocket client and closes the bus.
func waitForShutdown(srv *server.Server, reg *registry.Registry, eventBus *bus.Bus, timeout time.Duration, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	reg.Close()
	eventBus.Close()
}
