package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/helioscope/platform/pkg/common/config"
	"github.com/helioscope/platform/pkg/common/database"
	"github.com/helioscope/platform/pkg/common/httpclient"
	"github.com/helioscope/platform/pkg/common/kafka"
	"github.com/helioscope/platform/pkg/common/logger"
	"github.com/helioscope/platform/pkg/common/middleware"
	"github.com/helioscope/platform/pkg/observability/metrics"
	"github.com/helioscope/platform/pkg/retrieval"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := retrieval.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate retrieval tables")
	}

	defaults, err := retrieval.LoadDefaults(cfg.AttributeDefaultsPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to built-in attribute defaults")
	}

	discoveries := kafka.NewProducer(cfg.EventsTopic)
	defer discoveries.Close()

	completions := kafka.NewProducer(cfg.CutoutCompletedTopic)
	defer completions.Close()

	rdb := database.GetRedis()

	svc := retrieval.NewService(cfg, defaults, httpclient.New(cfg.ProviderRequestTimeout), repo, repo, repo, discoveries, completions, rdb)
	handler := retrieval.NewHTTPHandler(svc, cfg.MaxRequestBody)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(10, 20))
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Retrieval Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Retrieval Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Retrieval Service stopped")
}
