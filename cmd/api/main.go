package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"reliefops/internal/api"
	"reliefops/internal/buildinfo"
	"reliefops/internal/config"
	"reliefops/internal/logger"
	"reliefops/internal/seed"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger.Setup(cfg.Environment)
	defer logger.Sync()
	log := logger.Get(context.Background())

	log.Info("starting", zap.String("version", buildinfo.Version), zap.String("addr", cfg.HTTP.Addr))

	srv, err := api.NewServer(cfg, log)
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}

	if cfg.SeedFile != "" {
		bundle, err := seed.Load(cfg.SeedFile)
		if err != nil {
			log.Warn("seed load failed", zap.Error(err))
		} else {
			seed.Apply(context.Background(), bundle, srv.Store, srv.Engine, log)
		}
	}

	worker := srv.NewWebhookWorker()
	worker.Start()

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal("http server", zap.Error(err))
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	worker.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}
