// Package app wires escribo-web together: configuration, logging,
// observability, the retrying API client, the cache and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/escribo/escribo-web/cache"
	"github.com/escribo/escribo-web/cache/redis"
	"github.com/escribo/escribo-web/config"
	"github.com/escribo/escribo-web/escribo"
	apihttp "github.com/escribo/escribo-web/http"
	"github.com/escribo/escribo-web/logger"
	"github.com/escribo/escribo-web/observability"
	"github.com/escribo/escribo-web/server"
)

const (
	serverErrorMsg      = "server error: %w"
	cacheConnectTimeout = 10 * time.Second
)

// App is one running escribo-web instance.
type App struct {
	cfg           *config.Config
	logger        logger.Logger
	observability observability.Provider
	cache         cache.Cache
	escribo       *escribo.Client
	server        *server.Server
}

// Option customizes how New builds the App.
type Option func(*options)

type options struct {
	logger logger.Logger
	doer   apihttp.Doer
	cache  cache.Cache
}

// WithLogger replaces the logger built from cfg.Log.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDoer replaces the transport used for upstream API calls.
func WithDoer(d apihttp.Doer) Option {
	return func(o *options) { o.doer = d }
}

// WithCache replaces the cache selected by cfg.Cache.Backend.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// New builds every component from cfg. Resources created before a failure
// are released before the error is returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
	}
	log = log.WithFields(map[string]any{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"env":     cfg.App.Env,
	})

	provider, err := observability.NewProvider(observabilityConfig(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	store := o.cache
	if store == nil {
		store, err = newCache(ctx, cfg, log)
		if err != nil {
			_ = provider.Shutdown(context.Background())
			return nil, err
		}
	}

	api := newAPIClient(cfg, log, provider, o.doer)
	loader := cache.NewLoader(store, cfg.Cache.TTL, log)
	client := escribo.NewClient(api, loader, log)

	srv := server.New(cfg, log, client,
		server.WithTracerProvider(provider.TracerProvider()),
		server.WithReadinessCheck("cache", store.Health),
	)

	return &App{
		cfg:           cfg,
		logger:        log,
		observability: provider,
		cache:         store,
		escribo:       client,
		server:        srv,
	}, nil
}

func observabilityConfig(cfg *config.Config) observability.Config {
	return observability.Config{
		Enabled:        cfg.Observability.Enabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Protocol:       cfg.Observability.Protocol,
		Endpoint:       cfg.Observability.Endpoint,
		Insecure:       cfg.Observability.Insecure,
		SampleRate:     cfg.Observability.SampleRate,
		ExportInterval: cfg.Observability.ExportInterval,
	}
}

func newAPIClient(cfg *config.Config, log logger.Logger, provider observability.Provider, doer apihttp.Doer) apihttp.Client {
	b := apihttp.NewBuilder(log).
		WithBaseURL(cfg.API.BaseURL).
		WithPolicy(cfg.Retry.Policy()).
		WithTracerProvider(provider.TracerProvider()).
		WithMeterProvider(provider.MeterProvider())
	if cfg.API.UserAgent != "" {
		b = b.WithDefaultHeader("User-Agent", cfg.API.UserAgent)
	}
	if doer != nil {
		b = b.WithDoer(doer)
	}
	return b.Build()
}

func newCache(ctx context.Context, cfg *config.Config, log logger.Logger) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(ctx, cacheConnectTimeout)
		defer cancel()
		c, err := redis.NewClient(ctx, &cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect cache: %w", err)
		}
		log.Info().Str("address", cfg.Cache.Redis.Address()).Msg("Using redis cache")
		return c, nil
	default:
		log.Info().Dur("ttl", cfg.Cache.TTL).Msg("Using in-memory cache")
		return cache.NewMemoryCache(cache.WithPurgeInterval(cfg.Cache.TTL)), nil
	}
}

// Server exposes the HTTP server, mainly for tests.
func (a *App) Server() *server.Server {
	return a.server
}

// Escribo exposes the API consumer.
func (a *App) Escribo() *escribo.Client {
	return a.escribo
}

// Run serves until ctx is cancelled or the server fails, then shuts down
// within cfg.Server.ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf(serverErrorMsg, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info().Msg("Shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the server first so no request touches a closed cache, then
// releases the cache and flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down application")

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
	}
	if err := a.cache.Close(); err != nil && !errors.Is(err, cache.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
	}
	if err := a.observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown observability: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.logger.Info().Msg("Graceful shutdown completed")
	return nil
}
