package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshcart/cart-service-go/internal/cart"
	"github.com/freshcart/cart-service-go/internal/config"
	"github.com/freshcart/cart-service-go/internal/db"
	"github.com/freshcart/cart-service-go/internal/events"
	httpapi "github.com/freshcart/cart-service-go/internal/http"
	"github.com/freshcart/cart-service-go/internal/logger"
	"github.com/freshcart/cart-service-go/internal/storage/filestore"
	"github.com/freshcart/cart-service-go/internal/storage/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: "cart-service",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	var (
		storage   cart.Storage
		publisher httpapi.CartEventsPublisher
		closers   []func() error
	)

	switch cfg.Storage {
	case config.StoragePostgres:
		if err := db.RunMigrations(cfg.DBDSN, log); err != nil {
			log.Error("run migrations", "error", err)
			os.Exit(1)
		}

		database := db.MustOpen(cfg.DBDSN)
		closers = append(closers, database.Close)
		storage = postgres.NewStore(database)

		if cfg.RabbitURL != "" {
			conn := events.MustDialRabbit(cfg.RabbitURL)
			closers = append(closers, conn.Close)

			pub, err := events.NewRabbitCartEventsPublisher(conn, events.NewSequenceRepository(database))
			if err != nil {
				log.Error("create cart publisher", "error", err)
				os.Exit(1)
			}
			closers = append(closers, pub.Close)
			publisher = pub
		} else {
			log.Warn("RABBITMQ_URL not set, checkout events will only be logged")
			publisher = events.NopPublisher{Logger: log}
		}

	case config.StorageFile:
		fs, err := filestore.New(cfg.DataDir)
		if err != nil {
			log.Error("init file storage", "error", err)
			os.Exit(1)
		}
		storage = fs
		publisher = events.NopPublisher{Logger: log}

	default:
		log.Error("unknown storage backend", "storage", cfg.Storage)
		os.Exit(1)
	}

	manager := cart.NewManager(storage, log)
	handler := httpapi.NewCartHandler(manager, publisher, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      httpapi.NewRouter(handler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("cart-service listening", "addr", srv.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown error", "error", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.Warn("close resource", "error", err)
		}
	}
}
