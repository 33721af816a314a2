package daemon

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/matheus3301/freightdesk/internal/api/middleware"
	"github.com/matheus3301/freightdesk/internal/bus"
	"github.com/matheus3301/freightdesk/internal/config"
	"github.com/matheus3301/freightdesk/internal/instance"
	"github.com/matheus3301/freightdesk/internal/lock"
	"github.com/matheus3301/freightdesk/internal/logging"
	"github.com/matheus3301/freightdesk/internal/messaging"
	"github.com/matheus3301/freightdesk/internal/status"
	"github.com/matheus3301/freightdesk/internal/store"
	"github.com/matheus3301/freightdesk/internal/unread"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	InstanceName string
	SocketPath   string         // optional override for testing; empty = use default
	Config       *config.Config // optional; nil = config.toml + environment
	Logger       *zap.Logger    // optional; nil = instance log file + stderr
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideFeed,
			provideService,
			provideRegistry,
			provideIdentity,
			NewHTTPServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		loaded, err := config.LoadOrDefault(instance.ConfigPath())
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		loaded.ApplyEnv(instance.DotenvPath(), ".env")
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger.With(zap.String("instance", p.InstanceName)), nil
	}
	return logging.New(instance.LogPath(p.InstanceName), p.InstanceName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.InstanceName); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.InstanceName))
	l, err := lock.Acquire(instance.Dir(p.InstanceName), cfg.HTTP.Addr)
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore opens and migrates the configured store. It depends on the
// lock so two daemons never migrate the same instance concurrently.
func provideStore(p Params, cfg *config.Config, _ *lock.Lock, machine *status.Machine, logger *zap.Logger) (store.Store, error) {
	_ = machine.Transition(status.Migrating)

	st, err := openStore(p, cfg)
	if err != nil {
		_ = machine.Transition(status.Error)
		return nil, err
	}
	result, err := st.Migrate()
	if err != nil {
		_ = st.Close()
		_ = machine.Transition(status.Error)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("driver", cfg.Store.Driver))
	return st, nil
}

func openStore(p Params, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return store.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
	default:
		path := cfg.Store.DatabaseURL
		if path == "" {
			path = instance.DBPath(p.InstanceName)
		}
		return store.Open(path)
	}
}

func provideService(st store.Store, logger *zap.Logger) *messaging.Service {
	return messaging.NewService(st, logger.Named("messaging"))
}

func provideRegistry() *unread.Registry {
	return unread.NewRegistry()
}

func provideIdentity(cfg *config.Config, logger *zap.Logger) (*middleware.Identity, error) {
	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		logger.Warn("session.secret not set; cookies will not survive a restart")
	}
	return middleware.NewIdentity(secret, cfg.Session.CookieName, cfg.HTTP.TrustUserHeader), nil
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, httpSrv *HTTPServer, fd *Feed, lk *lock.Lock, st store.Store, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the control socket in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// Start the change feed before accepting requests.
			if err := fd.Start(ctx); err != nil {
				return err
			}

			go func() {
				if err := httpSrv.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if err := httpSrv.Stop(stopCtx); err != nil {
				logger.Warn("error stopping HTTP server", zap.Error(err))
			}
			cancel()
			fd.Stop()
			srv.Stop(stopCtx)
			if err := st.Close(); err != nil {
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
