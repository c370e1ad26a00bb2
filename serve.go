package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"patent-hand/config"
	"patent-hand/services"
	"patent-hand/storage"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Startet die Lese-API und führt die Pipeline nach CRON_SCHEDULE aus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logging.Sync()
			return serve(cmd.Context(), logging)
		},
	}
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func serve(ctx context.Context, logging *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, logging)
	if err != nil {
		return err
	}
	defer store.Close()
	logging.Info("Datenbank verbunden", zap.String("engine", cfg.DBEngine))

	pipeline, err := services.NewPipeline(cfg, store, logging)
	if err != nil {
		return err
	}

	router := newRouter(ctx, cfg, store, pipeline, logging)

	// Setup Cron
	cronScheduler := cron.New()
	_, err = cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Starte geplanten Pipeline-Lauf...")
		runID, err := pipeline.Run(ctx, services.RunOptions{Fetch: true, Citations: true, Backfill: true})
		if err != nil {
			logging.Error("Geplanter Lauf fehlgeschlagen", zap.String("run_id", runID), zap.Error(err))
			return
		}
		logging.Info("Geplanter Lauf abgeschlossen", zap.String("run_id", runID))
	})
	if err != nil {
		return err
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logging.Info("Server beendet")
	return nil
}

func newRouter(runCtx context.Context, cfg *config.Config, store *storage.Store, pipeline *services.Pipeline, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupCompanyRoutes(router, store, log)
	setupPatentRoutes(router, store, log)
	setupRunRoutes(runCtx, router, store, pipeline, log)
	return router
}
