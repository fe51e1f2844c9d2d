package daemon

import (
	"context"
	"errors"
	"io/fs"

	"github.com/tocata/tocata/internal/bus"
	"github.com/tocata/tocata/internal/config"
	"github.com/tocata/tocata/internal/lock"
	"github.com/tocata/tocata/internal/logging"
	"github.com/tocata/tocata/internal/match"
	"github.com/tocata/tocata/internal/notify"
	"github.com/tocata/tocata/internal/session"
	"github.com/tocata/tocata/internal/socket"
	"github.com/tocata/tocata/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	Identity  string
	ServerURL string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideManager,
			provideSearcher,
			provideDispatcher,
			provideIngestor,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Identity), p.Identity)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *socket.Machine {
	return socket.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Identity); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("identity", p.Identity))
	l, err := lock.Acquire(session.Dir(p.Identity), p.Identity)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.Identity)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideManager(p Params, cfg *config.Config, b *bus.Bus, machine *socket.Machine, logger *zap.Logger) (*socket.Manager, error) {
	opts, err := socket.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if p.ServerURL != "" {
		opts.URL = p.ServerURL
	}
	return socket.NewManager(opts, b, machine, logger), nil
}

func provideSearcher(mgr *socket.Manager, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *match.Searcher {
	return match.NewSearcher(mgr, b, cfg.SearchTimeout(), logger)
}

func provideDispatcher(b *bus.Bus, logger *zap.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(notify.NewBusAlerter(b, logger), logger)
}

func provideIngestor(p Params, db *store.DB, b *bus.Bus, dispatcher *notify.Dispatcher, logger *zap.Logger) *notify.Ingestor {
	return notify.NewIngestor(db, b, dispatcher, p.Identity, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, mgr *socket.Manager, searcher *match.Searcher, ingestor *notify.Ingestor, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribers go first so no inbound event published during
			// the handshake is missed.
			ingestor.Start(context.Background())
			searcher.Start(context.Background())

			go func() {
				if err := mgr.Connect(p.Identity); err != nil {
					logger.Error("initial connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			searcher.Stop()
			ingestor.Stop()
			mgr.Disconnect()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
