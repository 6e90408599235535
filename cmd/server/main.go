package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/application/ledger"
	"github.com/damon-houk/kantor-sync/internal/config"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/auth"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/db"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/handler"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/middleware"
)

func main() {
	cfg, err := config.Load(os.Getenv("KANTOR_CONFIG"))
	if err != nil {
		logger.Fatal("Failed to load configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log := logger.NewZapLogger(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	logger.SetDefaultLogger(log)
	defer log.Sync()

	log.Info("Starting sandbox ledger", map[string]interface{}{
		"addr":     cfg.Sandbox.Addr,
		"data_dir": cfg.Sandbox.DataDir,
		"verified": cfg.Sandbox.Secret != "",
	})

	// Setup BadgerDB
	if err := os.MkdirAll(cfg.Sandbox.DataDir, 0755); err != nil {
		log.Fatal("Failed to create database directory", map[string]interface{}{
			"error": err.Error(),
		})
	}

	badgerOpts := badger.DefaultOptions(cfg.Sandbox.DataDir)
	badgerOpts.Logger = nil

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		log.Fatal("Failed to open database", map[string]interface{}{
			"error": err.Error(),
		})
	}

	defer func() {
		if err := badgerDB.Close(); err != nil {
			log.Error("Error closing BadgerDB", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Initialize repositories and the ledger
	accounts := db.NewBadgerLedgerRepository(badgerDB)
	rates := db.NewBadgerRateRepository(badgerDB, log)
	ledgerService := ledger.NewLedgerService(accounts, rates, ledger.Config{
		Base:              cfg.Portfolio.Base(),
		MinDeposit:        decimal.NewFromFloat(cfg.Portfolio.MinDeposit),
		ArchiveWindowDays: cfg.Portfolio.ArchiveWindowDays,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ledgerService.SeedRates(ctx, cfg.Portfolio.DefaultRateTable(), cfg.Portfolio.ArchiveWindowDays); err != nil {
		log.Fatal("Failed to seed rates", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Setup router
	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(log))
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	bearer := middleware.BearerAuth(auth.NewUserResolver(cfg.Sandbox.Secret, cfg.Sandbox.Tokens), log)
	handler.NewLedgerHandler(ledgerService, log).RegisterRoutes(router, bearer)

	server := &http.Server{
		Addr:              cfg.Sandbox.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Graceful shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	log.Info("Server listening", map[string]interface{}{
		"addr": cfg.Sandbox.Addr,
	})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Server stopped", nil)
}
