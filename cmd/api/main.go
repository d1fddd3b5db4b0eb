package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-batch/internal/bootstrap"
	"github.com/bryanwahyu/automaton-batch/internal/config"
	"github.com/bryanwahyu/automaton-batch/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-batch/internal/middleware"
	"github.com/bryanwahyu/automaton-batch/pkg/logger"
)

func main() {
	// load config (CONFIG_PATH or config.yaml)
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()
	app, err := bootstrap.Build(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("init error", zap.Error(err))
	}
	defer app.Close()

	handler := httpserver.NewRouter(httpserver.Options{
		Service:     app.Manager,
		Defaults:    cfg.ModelConfig(),
		Processors:  app.Registry.Types(),
		Metrics:     middleware.NewMetrics(),
		Log:         lg.Named("http"),
		APIKeys:     cfg.Server.APIKeys,
		RateLimit:   cfg.Server.RateLimit,
		Burst:       cfg.Server.Burst,
		CORSOrigins: cfg.Server.CORS,
		Checkers:    app.Checkers,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		// collect downloads the whole output before answering
		WriteTimeout: cfg.OpenAI.RequestTimeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		lg.Info("server listening", zap.String("addr", addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	lg.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		lg.Error("shutdown error", zap.Error(err))
	}
}
