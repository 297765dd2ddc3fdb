package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hed1ad/spendguard/internal/api"
	"github.com/hed1ad/spendguard/internal/logging"
	"github.com/hed1ad/spendguard/internal/metrics"
	"github.com/hed1ad/spendguard/internal/modelwatch"
	"github.com/hed1ad/spendguard/pkg/detectors/iforest"
	"github.com/hed1ad/spendguard/pkg/store"
)

const shutdownTimeout = 30 * time.Second

func NewServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the anomaly detection HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, a)
		},
	}

	cmd.Flags().Int("port", 0, "Override server.port")
	return cmd
}

func runServe(cmd *cobra.Command, a *app) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.WithComponent(a.logger, "serve")
	port := a.cfg.Server.Port
	if p, _ := cmd.Flags().GetInt("port"); p > 0 {
		port = p
	}

	s, closeStore, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	holder := iforest.NewHolder(nil)
	e, err := store.LoadEnsemble(ctx, s, a.cfg.Store.Key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.WithField("key", a.cfg.Store.Key).Warn("no trained model found, predictions return model_not_ready until one is saved")
	case err != nil:
		log.WithError(err).Error("failed to load model, predictions return model_not_ready")
	default:
		holder.Swap(e)
		log.WithFields(logrus.Fields{
			"model_id": e.ID.String(),
			"trees":    e.Len(),
		}).Info("model loaded")
	}
	metrics.SetModel(holder.Load())

	if fs, ok := s.(*store.FileStore); ok && a.cfg.Watch.Enabled {
		w := modelwatch.New(fs, a.cfg.Store.Key, holder, logging.WithComponent(a.logger, "modelwatch"), a.cfg.Watch.Debounce)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.WithError(err).Error("model watcher stopped")
			}
		}()
	}

	if a.logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	checker, _ := s.(store.HealthChecker)
	handler := api.NewHandler(holder, checker, logging.WithComponent(a.logger, "api"))
	router := api.NewRouter(handler, a.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server exited gracefully")
	return nil
}
