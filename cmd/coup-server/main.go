// Package main is the entry point for the Coup table server.
// It only handles dependency injection and server initialization.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/infra/storage"
	"github.com/MRamiBalles/coup-server/internal/network"
	"github.com/MRamiBalles/coup-server/internal/platform/config"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
	"github.com/MRamiBalles/coup-server/internal/platform/metrics"
	"github.com/MRamiBalles/coup-server/internal/session"
)

// pruneInterval is how often finished tables are dropped from memory.
const pruneInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("coup-server: %v", err)
	}
	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		config.Exitf("coup-server: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("opening match ledger", zap.String("path", cfg.DBPath))
	db, err := storage.InitSQLite(cfg.DBPath)
	if err != nil {
		appLogger.Error("failed to initialize sqlite", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)

	eventRepo := storage.NewSQLiteEventRepository(db)
	matchRepo := storage.NewSQLiteMatchRepository(db)
	collector := metrics.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := network.NewHub(appLogger, collector, cfg.BroadcastChannelBuffer)
	manager := session.NewManager(session.ManagerConfig{
		Factory:   session.CoupFactory(catalog.Standard(), cfg.Timeouts(), appLogger),
		Publisher: hub,
		Persister: storage.NewEventLedger(eventRepo),
		Recorder:  matchRepo,
		Logger:    appLogger,
		Metrics:   collector,
		MaxTables: cfg.MaxTables,
	})

	mux := http.NewServeMux()
	network.NewLobby(manager, matchRepo, storage.NewReconstructor(eventRepo), collector, appLogger).RegisterRoutes(mux)
	mux.Handle("/ws", network.NewGateway(hub, manager, network.GatewayOptions{
		SendBuffer:        cfg.ClientSendBuffer,
		MaxMessageSize:    cfg.MaxMessageSize,
		MessagesPerSecond: cfg.MaxMessagesPerSecond,
		Burst:             cfg.MessageBurst,
		AllowedOrigins:    cfg.AllowedOrigins,
	}, appLogger, collector))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		appLogger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := manager.PruneFinished(); n > 0 {
					appLogger.Debug("pruned finished tables", zap.Int("count", n))
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("shutting down")
		manager.CloseAll("server shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	appLogger.Info("server stopped")
}
