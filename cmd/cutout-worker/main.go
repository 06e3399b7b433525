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
	"github.com/helioscope/platform/pkg/common/models"
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

	completions := kafka.NewProducer(cfg.CutoutCompletedTopic)
	defer completions.Close()

	consumer := kafka.NewConsumer(cfg.CutoutRequestTopic, "cutout-worker")
	defer consumer.Close()

	rdb := database.GetRedis()

	svc := retrieval.NewService(cfg, defaults, httpclient.New(cfg.ProviderRequestTimeout), repo, repo, repo, nil, completions, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			eventIDs := stringSlice(event.Data["event_ids"])
			if len(eventIDs) == 0 {
				logger.Log.WithField("event_id", event.ID).Warn("Cutout command without event ids, dropping")
				return nil
			}

			var extra []retrieval.Attribute
			if cadence, ok := event.Data["cadence"].(float64); ok && cadence > 0 {
				extra = append(extra, retrieval.NewAttribute("cadence", int(cadence)))
			}

			_, err := svc.RequestCutouts(ctx, eventIDs, extra)
			return err
		})
		if err != nil && err != context.Canceled {
			logger.Log.WithError(err).Fatal("Consumer error")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Cutout Worker started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Cutout Worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Cutout Worker stopped")
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
