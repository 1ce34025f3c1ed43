// Package app assembles the change service from configuration: storage
// backend, caches, services, background workers and the HTTP surface.
package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/change-service/internal/api/http"
	"github.com/spec-kit/change-service/internal/api/http/handlers"
	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/cache"
	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/notify"
	"github.com/spec-kit/change-service/internal/observability"
	"github.com/spec-kit/change-service/internal/persistence"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/repository/memory"
	"github.com/spec-kit/change-service/internal/repository/mongostore"
	"github.com/spec-kit/change-service/internal/seed"
	"github.com/spec-kit/change-service/internal/sequence"
	"github.com/spec-kit/change-service/internal/service"
	"github.com/spec-kit/change-service/internal/worker"
	"github.com/spec-kit/change-service/internal/workflow"
)

const keyPrefix = "change-service"

// App holds the wired service graph.
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Store         *repository.Store
	Redis         *persistence.Redis
	Dispatcher    *events.AsyncDispatcher
	Resolver      *notify.StaticResolver
	Tokens        *auth.TokenManager
	Settings      *service.SettingsService
	Changes       *service.ChangeService
	Escalation    *service.EscalationService
	Notifications *service.NotificationService

	closers []func()
}

// New connects the configured backends and builds every service. Reference
// data from SEED_FILE is applied before New returns.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Tokens: auth.NewTokenManager(cfg.Auth)}
	if cfg.Metrics.Enabled {
		a.Metrics = observability.NewMetrics()
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	a.Redis = persistence.NewRedis(cfg.Redis, logger)
	a.closers = append(a.closers, a.Redis.Close)
	var (
		refCache  cache.ReferenceCache = cache.NewMemory()
		generator sequence.Generator   = sequence.NewMemory()
	)
	if a.Redis.Enabled() {
		refCache = cache.NewRedis(a.Redis.Client, keyPrefix, cfg.Redis.CacheTTL)
		generator = sequence.NewRedis(a.Redis.Client, keyPrefix)
	} else if cfg.Store.Driver != config.DriverMemory {
		logger.Warn("change numbers come from an in-process counter; configure REDIS_ADDR when running more than one replica")
	}

	hours, err := workflow.ParseBusinessHours(cfg.BusinessHours.Start, cfg.BusinessHours.End, cfg.BusinessHours.Weekdays, cfg.BusinessHours.Timezone)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("business hours: %w", err)
	}

	a.Dispatcher = events.NewAsyncDispatcher(cfg.Notification.QueueSize, logger, a.Metrics)
	a.Settings = service.NewSettingsService(service.SettingsDependencies{
		MatrixRepo:   store.Matrices,
		CategoryRepo: store.Categories,
		WorkflowRepo: store.Workflows,
		Cache:        refCache,
		Logger:       logger,
	})

	a.Resolver = notify.NewStaticResolver(nil)
	if cfg.Seed.File != "" {
		file, err := seed.LoadFile(cfg.Seed.File)
		if err != nil {
			a.Close()
			return nil, err
		}
		if _, err := seed.Apply(ctx, a.Settings, file, logger); err != nil {
			a.Close()
			return nil, err
		}
		a.Resolver = file.Resolver()
	}

	changeDeps := service.ChangeDependencies{
		ChangeRepo: store.Changes,
		LedgerRepo: store.Ledger,
		Settings:   a.Settings,
		Selector:   workflow.NewSelector(hours),
		Sequence:   generator,
		Dispatcher: a.Dispatcher,
		Metrics:    a.Metrics,
		Logger:     logger,
	}
	if cfg.Approval.EnforceRoles {
		changeDeps.ApproverResolver = a.Resolver
	}
	a.Changes = service.NewChangeService(changeDeps)
	a.Escalation = service.NewEscalationService(service.EscalationDependencies{
		Changes:      a.Changes,
		ChangeRepo:   store.Changes,
		RoleResolver: a.Resolver,
		Metrics:      a.Metrics,
		Logger:       logger,
		BatchSize:    cfg.Escalation.BatchSize,
	})
	a.Notifications = service.NewNotificationService(a.Dispatcher, a.Settings, logger, cfg.Notification)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (*repository.Store, error) {
	cfg := a.Config
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), a.Logger); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return repository.NewPostgresStore(pg.PoolHandle()), nil
	case config.DriverMongo:
		m, err := persistence.NewMongo(ctx, cfg.Mongo, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, func() { m.Close(context.Background()) })
		if cfg.Mongo.EnsureIndexes {
			if err := mongostore.EnsureIndexes(ctx, m.Database); err != nil {
				return nil, fmt.Errorf("ensure mongo indexes: %w", err)
			}
		}
		return mongostore.New(m.Database), nil
	default:
		a.Logger.Warn("using in-memory store; data is lost on restart")
		return memory.New().Repositories(), nil
	}
}

// HTTP builds the fiber application.
func (a *App) HTTP() *fiber.App {
	srv := fiber.New(fiber.Config{
		AppName:               a.Config.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(srv, a.Logger, a.Metrics, a.Config.App.RequestTimeout())

	probes := map[string]handlers.Probe{"store": a.Store.Ping}
	if a.Redis.Enabled() {
		probes["redis"] = a.Redis.Ping
	}
	httptransport.RegisterRoutes(srv, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(a.Config.App.Name, a.Config.App.Version, probes),
		Changes:        handlers.NewChangesHandler(a.Changes),
		Settings:       handlers.NewSettingsHandler(a.Settings),
		AuthMiddleware: auth.NewAuthMiddleware(a.Tokens),
		Metrics:        a.Metrics,
		MetricsPath:    a.Config.Metrics.Path,
	})
	return srv
}

// RunNotifications delivers lifecycle events until ctx is cancelled.
func (a *App) RunNotifications(ctx context.Context) error {
	return worker.StartNotificationWorker(ctx, a.Dispatcher, a.Notifications)
}

// RunEscalation sweeps timed-out approval steps until ctx is cancelled. It
// returns immediately when escalation is disabled.
func (a *App) RunEscalation(ctx context.Context) error {
	if !a.Config.Escalation.Enabled {
		a.Logger.Info("escalation sweeper disabled")
		return nil
	}
	return worker.NewEscalationWorker(a.Escalation, a.Config.Escalation.SweepInterval, a.Logger).Run(ctx)
}

// Close releases backend connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
