package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/engine"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/eventbus"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/processor"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/usecase"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/config"
	xhttp "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/http"
	pkgkafka "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/kafka"
	applogger "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
)

// App encapsulates the entire application lifecycle: event bus,
// decision engine, signal processor, optional Kafka legs and the ops
// HTTP server.
type App struct {
	cfg  *config.Config
	lg   *applogger.Logger
	bus  *eventbus.Bus
	eng  *engine.Engine
	proc *processor.Processor

	router   *usecase.DecisionRouter
	consumer *pkgkafka.Consumer // nil when kafka disabled
	ingest   *usecase.SignalIngest

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server

	closers []func() error
}

// New creates an App. Optional members may be nil; Run skips them.
func New(
	cfg *config.Config,
	lg *applogger.Logger,
	bus *eventbus.Bus,
	eng *engine.Engine,
	proc *processor.Processor,
	router *usecase.DecisionRouter,
	consumer *pkgkafka.Consumer,
	ingest *usecase.SignalIngest,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		lg:          lg,
		bus:         bus,
		eng:         eng,
		proc:        proc,
		router:      router,
		consumer:    consumer,
		ingest:      ingest,
		httpHandler: httpHandler,
	}
}

// AddCloser registers extra resources closed during shutdown, in
// registration order.
func (a *App) AddCloser(f func() error) { a.closers = append(a.closers, f) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Aggregated warn/error logs flow onto the log channel so they are
	// replayable like everything else.
	a.lg.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          string(models.ChannelLog),
		Publisher:      busLogPublisher{bus: a.bus},
	})

	if a.router != nil {
		if err := a.router.Start(ctx); err != nil {
			a.lg.Error("decision router start failed", applogger.Error(err))
			return err
		}
		a.lg.Info("decision router started")
	}

	if err := a.proc.Start(ctx); err != nil {
		return err
	}

	if a.consumer != nil && a.ingest != nil {
		a.consumer.RegisterHandler(a.ingest)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.lg.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.lg.Info("kafka consumer started", applogger.String("topic", a.ingest.Topic()))
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.lg, time.Second),
	)
	if err := a.httpServer.Start(); err != nil {
		a.lg.Error("http server start error", applogger.Error(err))
		return err
	}
	a.lg.Info("ops server listening", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.lg.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops intake first, drains in-flight work, then closes
// infrastructure.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.lg.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.proc.StopAndDrain(shutdownCtx); err != nil {
		a.lg.Warn("processor drain error", applogger.Error(err))
	}

	if a.router != nil {
		a.router.Stop()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.lg.Error("http shutdown error", applogger.Error(err))
		}
	}

	a.lg.RemoveCollector()

	if err := a.bus.Close(); err != nil {
		a.lg.Warn("bus close error", applogger.Error(err))
	}

	for _, f := range a.closers {
		if err := f(); err != nil {
			a.lg.Warn("resource close error", applogger.Error(err))
		}
	}

	a.lg.Info("shutdown complete")
	return nil
}

// busLogPublisher bridges the log collector onto the event bus.
type busLogPublisher struct {
	bus *eventbus.Bus
}

func (p busLogPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	_, err := p.bus.PublishAsync(models.ChannelType(topic), payload, "log_collector")
	return err
}
