// Package app wires the transport, the interaction flow, the reminder
// scheduler and the config/logging services into one process.
package app

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"

	"nagbot/internal/config"
	"nagbot/internal/duesched"
	"nagbot/internal/flow"
	"nagbot/internal/runtime/supervisor"
	"nagbot/internal/session"
	"nagbot/internal/storage"
	"nagbot/internal/timeout"
	"nagbot/internal/transport"
	"nagbot/internal/transport/telegram"
	logx "nagbot/pkg/logx"
)

type App struct {
	mgr *config.Manager

	logSvc *logx.Service
	log    logx.Logger

	adapter  *telegram.Adapter
	store    storage.Store
	sessions *session.Store
	timeouts *timeout.Supervisor
	flow     *flow.Flow
	sched    *duesched.Scheduler
	cron     *cron.Cron
	sup      *supervisor.Supervisor

	lastCfg *config.Config
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	// The token may live in the environment instead of the config file.
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		cfg.Telegram.Token = os.Getenv("BOT_TOKEN")
		mgr.Commit(cfg)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &App{mgr: mgr}, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.mgr.Get()
	a.lastCfg = cfg

	a.logSvc, _ = logx.New(mapLogging(cfg.Logging), nil)
	root := a.logSvc.Logger()
	a.log = root.With(logx.String("svc", "app"))

	a.mgr.SetLogger(root.With(logx.String("svc", "config")))
	a.mgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		return validate(c)
	})

	loc, err := loadLocation(cfg.Reminders.Timezone)
	if err != nil {
		return err
	}
	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return err
	}

	a.adapter, err = telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, root.With(logx.String("svc", "telegram")))
	if err != nil {
		return err
	}
	a.logSvc.SetSender(a.adapter)

	storeCfg, err := mapStorage(cfg.Storage)
	if err != nil {
		return err
	}
	a.store = storage.Open(storeCfg, root.With(logx.String("svc", "storage")))

	a.sessions = session.NewStore()
	a.timeouts = timeout.New()

	flowCfg, err := mapFlow(cfg.Picker)
	if err != nil {
		return err
	}
	a.flow = flow.New(a.adapter, a.sessions, a.timeouts, a.store, flowCfg, loc,
		root.With(logx.String("svc", "flow")))

	schedCfg, err := mapReminders(cfg.Reminders)
	if err != nil {
		return err
	}
	a.sched = duesched.New(a.store, a.adapter, schedCfg, loc,
		root.With(logx.String("svc", "duesched")))

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	updates := make(chan transport.Update, 128)
	if err := a.adapter.Start(a.sup.Context(), updates); err != nil {
		return err
	}
	a.sup.GoRestart("updates", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case up := <-updates:
				a.route(ctx, up)
			}
		}
	})

	if cfg.Reminders.IsEnabled() {
		a.sup.GoRestart("duesched", a.sched.Run)
	} else {
		a.log.Info("reminder scheduler disabled by config")
	}

	a.sup.Go("config.watch", a.mgr.Watch)
	sub := a.mgr.Subscribe(4)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.mgr.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(c)
			}
		}
	})

	spec := strings.TrimSpace(cfg.Reminders.SanitationCron)
	if spec == "" {
		spec = defaultSanitationCron
	}
	a.cron = cron.New(cron.WithLocation(loc))
	if _, err := a.cron.AddFunc(spec, func() {
		cctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		a.sched.Sanitize(cctx)
	}); err != nil {
		return err
	}
	a.cron.Start()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("bot started", logx.String("storage", cfg.Storage.Driver), logx.String("tz", loc.String()))
	return nil
}

// applyReload applies what can change at runtime (logging) and calls out the
// sections that need a restart.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	changed, attrs := config.SummarizeChange(a.lastCfg, cfg)
	a.lastCfg = cfg
	if len(changed) == 0 {
		return
	}

	for _, section := range changed {
		switch section {
		case "logging":
			a.logSvc.Apply(mapLogging(cfg.Logging))
		default:
			a.log.Warn("config section changed; restart required to apply",
				logx.String("section", section))
		}
	}
	a.log.Info("config change applied", append(attrs, logx.Any("sections", changed))...)
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.log.IsZero() {
		a.log = logx.NewConsole("INFO")
	}
	a.log.Info("shutting down")

	var errs error
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.sup != nil {
		errs = multierr.Append(errs, a.sup.Stop(ctx))
	}
	if a.adapter != nil {
		errs = multierr.Append(errs, a.adapter.Stop(ctx))
	}
	if a.timeouts != nil {
		a.timeouts.Close()
	}
	if a.store != nil {
		errs = multierr.Append(errs, a.store.Close())
	}
	if a.logSvc != nil {
		errs = multierr.Append(errs, a.logSvc.Close())
	}
	return errs
}
