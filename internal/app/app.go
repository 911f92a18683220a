package app

import (
	"context"
	"os"
	"time"

	"cronboss/internal/cleanup"
	"cronboss/internal/config"
	"cronboss/internal/definition"
	"cronboss/internal/launcher"
	"cronboss/internal/lock"
	"cronboss/internal/notifier"
	"cronboss/internal/runner"
	"cronboss/internal/storage"
	logx "cronboss/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	loc  *time.Location
	now  func() time.Time

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	notif    *notifier.Manager
	defs     *definition.Loader
	resolver launcher.Resolver
	locks    *lock.Manager
	runner   *runner.Runner
}

type Option func(*options)

type options struct {
	lookup func(string) (string, bool)
	now    func() time.Time
}

// WithLookup replaces os.LookupEnv for config overrides.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(o *options) { o.now = fn }
}

// New loads the config at cfgPath (empty means defaults plus environment) and
// wires every component. Nothing is launched.
func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{lookup: os.LookupEnv, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfgm.SetLookup(o.lookup)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	a := &App{cfgm: cfgm, cfg: cfg, loc: loc, now: o.now, log: log.With(logx.String("comp", "app")), logs: logSvc}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		a.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = st
		a.log.Debug("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	transports, err := mapTransports(cfg, log.With(logx.String("comp", "notify")))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.notif = notifier.NewManager(ncfg, log, transports...)

	lcfg, err := mapLauncherConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.resolver = lcfg.Resolver
	ropts, err := mapRunnerOptions(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	ropts.Now = o.now

	a.defs = definition.NewLoader(cfg.TasksDir, log.With(logx.String("comp", "definitions")))
	a.locks = lock.New(cfg.LockDir)

	deps := runner.Deps{
		Definitions: a.defs,
		Launcher:    launcher.New(lcfg, log.With(logx.String("comp", "launcher"))),
		Locks:       a.locks,
		Notifier:    a.notif,
		Cleaner:     cleanup.New(log.With(logx.String("comp", "cleanup"))),
	}
	if a.store != nil {
		deps.Store = a.store
	}
	a.runner = runner.New(deps, ropts, log.With(logx.String("comp", "runner")))
	return a, nil
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Logger() logx.Logger { return a.log }

// Now is the current time in the configured timezone.
func (a *App) Now() time.Time { return a.now().In(a.loc) }

// Run performs one tick.
func (a *App) Run(ctx context.Context) (notifier.Summary, error) {
	a.log.Debug("transports", logx.Strings("names", a.notif.Names()))
	return a.runner.Run(ctx, a.Now())
}

// History returns up to n audit records, oldest first.
func (a *App) History(ctx context.Context, n int) ([]storage.RunRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.Recent(ctx, n)
}

func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.logs != nil {
		if cerr := a.logs.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
