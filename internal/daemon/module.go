// Package daemon composes the dialdesk daemon: provider client, inbox
// store, poller, event stream, outbox sender and the HTTP API, wired
// through fx with lifecycle hooks.
package daemon

import (
	"context"

	"github.com/mzahid/dialdesk/internal/bus"
	"github.com/mzahid/dialdesk/internal/config"
	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/lock"
	"github.com/mzahid/dialdesk/internal/logging"
	"github.com/mzahid/dialdesk/internal/outbox"
	"github.com/mzahid/dialdesk/internal/profile"
	"github.com/mzahid/dialdesk/internal/server"
	"github.com/mzahid/dialdesk/internal/status"
	"github.com/mzahid/dialdesk/internal/store"
	"github.com/mzahid/dialdesk/internal/stream"
	intsync "github.com/mzahid/dialdesk/internal/sync"
	"github.com/mzahid/dialdesk/internal/timefmt"
	"github.com/mzahid/dialdesk/internal/twilio"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	ListenAddr  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideConfig,
			provideStore,
			provideClient,
			provideInbox,
			providePoller,
			provideListener,
			provideSender,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideConfig(p Params, logger *zap.Logger) *config.Config {
	cfg, err := config.Load(profile.ConfigPath(p.ProfileName))
	if err != nil {
		logger.Warn("no profile config, using defaults", zap.Error(err))
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if p.ListenAddr != "" {
		cfg.Server.ListenAddr = p.ListenAddr
	}
	return cfg
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
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

func provideClient(cfg *config.Config, logger *zap.Logger) *twilio.Client {
	return twilio.NewClient(twilio.Config{
		AccountSID:  cfg.Twilio.AccountSID,
		AuthToken:   cfg.Twilio.AuthToken,
		PhoneNumber: cfg.Twilio.PhoneNumber,
	}, logger)
}

func provideInbox(cfg *config.Config, db *store.DB, b *bus.Bus, logger *zap.Logger) *inbox.Store {
	loc := timefmt.LoadLocation(cfg.Display.Timezone)
	return inbox.NewStore(cfg.Twilio.PhoneNumber, inbox.NewClock(loc), db, b, logger)
}

func providePoller(client *twilio.Client, ib *inbox.Store, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *intsync.Poller {
	return intsync.NewPoller(client, ib, b, logger, cfg.PollInterval())
}

// provideListener returns nil when no stream URL is configured; the
// daemon then runs poll-only from the start.
func provideListener(cfg *config.Config, ib *inbox.Store, b *bus.Bus, logger *zap.Logger) *stream.Listener {
	if cfg.Stream.URL == "" {
		return nil
	}
	return stream.NewListener(cfg.Stream.URL, ib, b, logger)
}

func provideSender(db *store.DB, ib *inbox.Store, client *twilio.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, ib, client, b, logger)
}

func provideServer(cfg *config.Config, ib *inbox.Store, db *store.DB, poller *intsync.Poller, client *twilio.Client, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *server.Server {
	return server.New(cfg.Server.ListenAddr, ib, db, poller, client, b, machine, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *server.Server, lk *lock.Lock, poller *intsync.Poller, listener *stream.Listener, sender *outbox.Sender, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	var watchCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			srv.Start()

			if err := cfg.Validate(); err != nil {
				// The API stays up so a dashboard can report the problem,
				// but nothing talks to the provider.
				logger.Warn("provider not configured", zap.Error(err))
				_ = machine.Transition(status.ConfigRequired)
				return nil
			}

			watchCtx, cancel := context.WithCancel(context.Background())
			watchCancel = cancel
			go machine.Watch(watchCtx, b)

			_ = machine.Transition(status.Connecting)
			poller.Start(context.Background())
			sender.Start(context.Background())
			if listener != nil {
				listener.Start(context.Background())
			} else {
				logger.Info("no event stream configured, polling only")
				_ = machine.Transition(status.PollingOnly)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if watchCancel != nil {
				watchCancel()
			}
			if listener != nil {
				listener.Stop()
			}
			sender.Stop()
			poller.Stop()
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping http server", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
