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

	"salesanalysis/backend/internal/cache"
	"salesanalysis/backend/internal/config"
	"salesanalysis/backend/internal/httpapi"
	"salesanalysis/backend/internal/loader"
	"salesanalysis/backend/internal/logging"
	"salesanalysis/backend/internal/service"
	"salesanalysis/backend/internal/sheetapi"
	"salesanalysis/backend/internal/store"
	"salesanalysis/backend/internal/store/memory"
	pgstore "salesanalysis/backend/internal/store/postgres"
	"salesanalysis/backend/internal/store/rediskv"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	var large store.Repository
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start without the large store", zap.Error(err))
		}
		large = pg
		closers = append(closers, pg.Close)
		logger.Info("large store: postgres")
	case cfg.RedisAddr != "":
		kv := rediskv.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := kv.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, large datasets will not persist", zap.Error(err))
			_ = kv.Close()
		} else {
			large = kv
			closers = append(closers, kv.Close)
			logger.Info("large store: redis")
		}
	default:
		logger.Info("large store: none")
	}
	small := memory.New(cfg.SmallStoreQuotaBytes)
	cacheStore := cache.NewStore(small, large, logger)

	var master cache.MasterCache = cache.NewMemoryMasterCache(nil)
	if cfg.RedisAddr != "" {
		redisMaster := cache.NewRedisMasterCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisMaster.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-process master cache", zap.Error(err))
			_ = redisMaster.Close()
		} else {
			master = redisMaster
			closers = append(closers, redisMaster.Close)
			logger.Info("master cache: redis")
		}
	}

	if cfg.SheetAPIURL == "" {
		logger.Warn("SHEET_API_URL is not set; loads and master data will fail")
	}
	client := sheetapi.New(cfg.SheetAPIURL, &http.Client{Timeout: cfg.HTTPTimeout}, logger)

	l, err := loader.New(client, cacheStore, cfg.OrderChunkSize, logger)
	if err != nil {
		logger.Fatal("loader", zap.Error(err))
	}
	svc := service.New(l, client, cacheStore, master, service.CacheTTL{
		Master:      cfg.MasterCacheTTL,
		Performance: cfg.PerformanceCacheTTL,
	}, logger)
	svc.Startup(ctx)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.AuthPassword)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	// No write timeout: a full order load runs inside one request.
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("sales analysis backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AuthPassword) < 8 {
		return fmt.Errorf("AUTH_PASSWORD must be set and at least 8 characters")
	}
	if cfg.AuthPassword == cfg.AuthSecret {
		return fmt.Errorf("AUTH_PASSWORD must differ from AUTH_SECRET")
	}
	return nil
}
