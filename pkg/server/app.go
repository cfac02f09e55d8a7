package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SpectreGate/internal/domain/repository"
	"SpectreGate/internal/engine"
	pkgch "SpectreGate/pkg/clickhouse"
	"SpectreGate/pkg/config"
	xhttp "SpectreGate/pkg/http"
	applogger "SpectreGate/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	logger    *applogger.Logger
	eng       *engine.Engine
	handler   xhttp.Handler
	chClient  *pkgch.Client
	publisher repository.Publisher
	riskStore repository.RiskStore

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	eng *engine.Engine,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	publisher repository.Publisher,
	riskStore repository.RiskStore,
) *App {
	return &App{
		cfg:       cfg,
		logger:    l,
		eng:       eng,
		handler:   handler,
		chClient:  chClient,
		publisher: publisher,
		riskStore: riskStore,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.eng.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("engine started",
		applogger.String("symbol", a.cfg.Symbol),
		applogger.String("ml_addr", a.cfg.MLAddr()),
		applogger.Bool("trading_enabled", a.cfg.Trading.Enabled))

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.eng.Shutdown(ctx); err != nil {
		a.logger.Warn("engine stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		a.logger.RemoveCollector()
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.riskStore != nil {
		if err := a.riskStore.Close(); err != nil {
			a.logger.Warn("risk store close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
