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
	"github.com/magangradar/platform/pkg/common/config"
	"github.com/magangradar/platform/pkg/common/database"
	"github.com/magangradar/platform/pkg/common/kafka"
	"github.com/magangradar/platform/pkg/common/logger"
	"github.com/magangradar/platform/pkg/syncer"
	"github.com/magangradar/platform/pkg/vacancy"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := vacancy.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate sync tables")
	}

	fieldMap, err := syncer.LoadFieldMap(cfg.FieldMapPath)
	if err != nil {
		logger.Log.WithError(err).Warn("field map override not loaded, using defaults")
	}

	client := syncer.NewClient(cfg.MagangHubBase, cfg.Etl.HTTPTimeout, cfg.Etl.MaxRetries, cfg.Etl.RetryBaseDelay)
	service := syncer.NewService(client, repo, syncer.NewNormalizer(fieldMap), cfg.Etl).
		WithNewIDCache(vacancy.NewCache(database.GetRedis(), cfg.Etl.NewWindowHours))

	if cfg.EventsTopic != "" {
		producer := kafka.NewProducer(cfg.EventsTopic)
		defer producer.Close()
		service.WithPublisher(producer)
	}

	scheduler, err := syncer.NewScheduler(cfg.Timezone)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to build scheduler")
	}
	if err := service.RegisterCronJobs(scheduler); err != nil {
		logger.Log.WithError(err).Fatal("failed to register cron jobs")
	}
	scheduler.Start()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	syncer.NewHandler(service).Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Sync service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down sync service...")
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("failed to close redis")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("failed to close postgres")
	}

	logger.Log.Info("Sync service stopped")
}
