package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wiresync-server/internal/config"
	"github.com/vovakirdan/wiresync-server/internal/core"
	applog "github.com/vovakirdan/wiresync-server/internal/log"
	"github.com/vovakirdan/wiresync-server/internal/presence"
	transporthttp "github.com/vovakirdan/wiresync-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	notifier        *presence.Notifier
	publisher       *presence.RedisPublisher
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	var notifier core.OccupancyNotifier
	if cfg.Redis.Address != "" {
		publisher, err := presence.NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init occupancy publisher: %w", err)
		}
		a.publisher = publisher
		a.notifier = presence.NewNotifier(publisher, cfg.Redis.Channel, cfg.InstanceID, 0, applog.Component(logger, "presence"))
		notifier = a.notifier
		logger.Info().Str("redis", cfg.Redis.Address).Str("channel", cfg.Redis.Channel).Msg("occupancy updates enabled")
	}

	a.hub = core.NewHub(applog.Component(logger, "hub"), notifier)
	a.server = transporthttp.NewServer(a.hub, cfg, applog.Component(logger, "http"))

	return a, nil
}

// Run starts the hub, the occupancy notifier and the HTTP server and blocks until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	// Hijacked websocket requests inherit this, so open sessions end with the app.
	a.server.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	if a.notifier != nil {
		g.Go(func() error {
			return a.notifier.Run(gctx)
		})
	}

	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes external clients.
func (a *App) cleanup() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		} else {
			a.log.Info().Msg("redis client closed")
		}
	}
}
