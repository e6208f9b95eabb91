// Package app assembles the daemon: configuration, logging, storage, the
// provider registry, the execution engine and the sweep scheduler.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"

	"github.com/Jocelyn-JE/AREA-51/internal/area"
	"github.com/Jocelyn-JE/AREA-51/internal/config"
	"github.com/Jocelyn-JE/AREA-51/internal/engine"
	"github.com/Jocelyn-JE/AREA-51/internal/metrics"
	"github.com/Jocelyn-JE/AREA-51/internal/scheduler"
	"github.com/Jocelyn-JE/AREA-51/internal/service"
	"github.com/Jocelyn-JE/AREA-51/internal/services/gdrive"
	"github.com/Jocelyn-JE/AREA-51/internal/services/github"
	"github.com/Jocelyn-JE/AREA-51/internal/services/gmail"
	"github.com/Jocelyn-JE/AREA-51/internal/services/outlook"
	"github.com/Jocelyn-JE/AREA-51/internal/services/speedtest"
	"github.com/Jocelyn-JE/AREA-51/internal/services/telegram"
	"github.com/Jocelyn-JE/AREA-51/internal/storage"
	"github.com/Jocelyn-JE/AREA-51/internal/token"
	"github.com/Jocelyn-JE/AREA-51/pkg/httpx"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	db       *sqlx.DB
	areas    *area.Repository
	tokens   *token.Manager
	registry *service.Registry
	engine   *engine.Engine
	sched    *scheduler.Scheduler
	metrics  *metrics.Server

	cfgUpdates chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	areas := area.NewRepository(db)
	tokenRepo := token.NewRepository(db)
	tokens := token.NewManager(tokenRepo, oauthClients(cfg), func(outcome string) {
		metrics.TokenRefreshes.WithLabelValues(outcome).Inc()
	}, log.With(logx.String("comp", "token")))

	registry := service.NewRegistry()
	apiClient := httpx.New(httpx.Options{})
	for _, p := range []service.Provider{
		gmail.New(apiClient, log),
		gdrive.New(apiClient, log),
		github.New(apiClient, log),
		outlook.New(apiClient, log),
		telegram.New(log),
		speedtest.New(log),
	} {
		if err := registry.Register(p); err != nil {
			_ = db.Close()
			_ = logs.Close()
			return nil, err
		}
	}

	interval, err := config.ParseDurationOrDefault("scheduler.interval", cfg.Scheduler.Interval, time.Minute)
	if err != nil {
		return nil, err
	}
	callTimeout, err := config.ParseDurationOrDefault("scheduler.call_timeout", cfg.Scheduler.CallTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}

	eng := engine.New(areas, tokens, registry, engine.Config{
		BatchSize:   cfg.Scheduler.BatchSize,
		CallTimeout: callTimeout,
	}, log)

	app := &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		db:       db,
		areas:    areas,
		tokens:   tokens,
		registry: registry,
		engine:   eng,
	}
	if cfg.Scheduler.Enabled {
		app.sched = scheduler.New(eng, scheduler.Config{Interval: interval}, log)
	}
	if cfg.Metrics.Enabled {
		addr := cfg.Metrics.Addr
		if addr == "" {
			addr = "127.0.0.1:9190"
		}
		app.metrics = metrics.NewServer(addr, log.With(logx.String("comp", "metrics")))
	}
	return app, nil
}

// oauthClients maps the configured credential services onto oauth2 client
// configs for the token manager.
func oauthClients(cfg *config.Config) map[string]*oauth2.Config {
	clients := make(map[string]*oauth2.Config, len(cfg.OAuth))
	for name, c := range cfg.OAuth {
		clients[name] = &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Scopes:       c.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  c.AuthURL,
				TokenURL: c.TokenURL,
			},
		}
	}
	return clients
}

// Engine exposes the execution engine for embedding surfaces (API layers,
// one-shot tools).
func (a *App) Engine() *engine.Engine { return a.engine }

// Registry exposes the capability catalogue.
func (a *App) Registry() *service.Registry { return a.registry }

// Areas exposes the rule repository.
func (a *App) Areas() *area.Repository { return a.areas }

// Tokens exposes the credential store.
func (a *App) Tokens() *token.Manager { return a.tokens }

// Start initializes every provider, then brings up the scheduler, metrics
// listener and the config watcher.
func (a *App) Start(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.registry.InitializeAll(initCtx); err != nil {
		return fmt.Errorf("provider init: %w", err)
	}
	a.log.Info("providers ready", logx.Any("services", a.registry.Names()))

	if a.metrics != nil {
		a.metrics.Start()
	}
	if a.sched != nil {
		if err := a.sched.Start(ctx); err != nil {
			return err
		}
	} else {
		a.log.Warn("scheduler disabled, rules will not be evaluated")
	}

	a.cfgUpdates = a.cfgm.Subscribe(1)
	go a.watchConfig(ctx)
	go func() {
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("config watcher stopped", logx.Err(err))
		}
	}()
	return nil
}

// watchConfig applies hot-reloadable settings. Only logging changes take
// effect at runtime; storage and scheduler changes need a restart.
func (a *App) watchConfig(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgUpdates:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("configuration reloaded", logx.String("log_level", cfg.Logging.Level))
		}
	}
}

// Stop shuts everything down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.metrics != nil {
		_ = a.metrics.Stop(ctx)
	}
	if a.cfgUpdates != nil {
		a.cfgm.Unsubscribe(a.cfgUpdates)
	}
	err := a.db.Close()
	a.log.Info("shutdown complete")
	_ = a.logs.Close()
	return err
}
