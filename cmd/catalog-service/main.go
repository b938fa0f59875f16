package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"erp/ecommerce/catalog-service/internal/catalog"
	"erp/ecommerce/catalog-service/internal/config"
	"erp/ecommerce/catalog-service/internal/httpapi"
	"erp/ecommerce/catalog-service/internal/logging"
	"erp/ecommerce/catalog-service/internal/order"
	"erp/ecommerce/catalog-service/internal/seed"
	"erp/ecommerce/catalog-service/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := store.Open(ctx, cfg, logger)
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	catalogSvc := catalog.NewService(db, logger, cfg.CacheTTL)
	orderSvc := order.NewService(db, logger, order.WithStockObserver(catalogSvc.InvalidateProducts))

	if cfg.SeedFile != "" {
		f, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, catalogSvc, f, logger); err != nil {
			return err
		}
	}

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(catalogSvc, orderSvc, logger, httpapi.Options{
		Module:         cfg.Module,
		Mode:           db.Mode(),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("catalog-service listening", zap.String("addr", srv.Addr), zap.String("mode", db.Mode()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
