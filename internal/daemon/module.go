package daemon

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/blog"
	"github.com/matheus3301/pmsync/internal/bus"
	"github.com/matheus3301/pmsync/internal/cache"
	"github.com/matheus3301/pmsync/internal/config"
	"github.com/matheus3301/pmsync/internal/lock"
	"github.com/matheus3301/pmsync/internal/logging"
	"github.com/matheus3301/pmsync/internal/profile"
	"github.com/matheus3301/pmsync/internal/store"
	intsync "github.com/matheus3301/pmsync/internal/sync"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideCache,
			provideBlogClient,
			provideEngine,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	return profile.LoadConfig()
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore never fails: without a usable database the daemon runs
// fetch-only and every cache call degrades to a miss.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) *store.DB {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		logger.Warn("store unavailable, running without persistence", zap.String("path", dbPath), zap.Error(err))
		return nil
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		logger.Warn("store migration failed, running without persistence", zap.Error(err))
		return nil
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db
}

func provideCache(db *store.DB, cfg *config.Config, logger *zap.Logger) *cache.Cache {
	return cache.New(db, logger, cfg.Cache.CapPerConversation)
}

func provideBlogClient(cfg *config.Config) (*blog.Client, error) {
	if cfg.BaseURL == "" || cfg.UserID == 0 {
		return nil, errors.New("config: base_url and user_id are required")
	}
	return blog.NewClient(cfg.BaseURL, cfg.UserID, cfg.Token), nil
}

func provideEngine(cfg *config.Config, client *blog.Client, c *cache.Cache, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(intsync.Options{
		OwnerID:      cfg.UserID,
		API:          client,
		Cache:        c,
		Bus:          b,
		Logger:       logger.Named("sync"),
		PageSize:     cfg.History.PageSize,
		PreloadLimit: cfg.Cache.PreloadLimit,
		PollInterval: cfg.Push.PollInterval.Duration,
		RecallWindow: cfg.Recall.Window.Duration,
	})
}

func provideService(p Params, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(engine, b, p.Profile, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, engine *intsync.Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine outlives the start hook's context.
			if err := engine.Start(context.Background()); err != nil {
				return err
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			engine.Stop()
			if db != nil {
				if err := db.Close(); err != nil {
					logger.Warn("error closing store", zap.Error(err))
				}
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
