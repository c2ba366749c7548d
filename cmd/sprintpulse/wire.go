package main

import (
	"context"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/adapters/jira"
	"github.com/HamedShams/sprint-pulse/internal/adapters/openai"
	"github.com/HamedShams/sprint-pulse/internal/adapters/telegram"
	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/jobs"
	"github.com/HamedShams/sprint-pulse/internal/lock"
	"github.com/HamedShams/sprint-pulse/internal/repo"
	"github.com/HamedShams/sprint-pulse/internal/report"
	"github.com/HamedShams/sprint-pulse/internal/services"
)

type app struct {
	svc     *services.Service
	locker  jobs.Locker
	tg      *telegram.Client
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp builds the service graph for the configured store.
func newApp(ctx context.Context) (*app, error) {
	if err := cfg.ValidateJira(); err != nil {
		return nil, err
	}
	a := &app{}
	jc := jira.NewClient(cfg, log)

	var (
		store services.RecordStore
		runs  services.RunLog
	)
	switch cfg.Store {
	case config.StorePostgres:
		if err := repo.Migrate(cfg.DBDSN, cfg.MigrationsURL); err != nil {
			return nil, err
		}
		db, err := repo.Open(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		r := repo.NewRepository(db, log)
		store, runs, a.locker = r, r, r
		log.Info().Msg("store: postgres")
	default:
		store = report.NewWorkbook(cfg.ExcelFile, log)
		a.locker = lock.NewLocal()
		log.Info().Str("file", cfg.ExcelFile).Msg("store: xlsx")
	}

	if cfg.RedisURL != "" {
		client, err := lock.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.locker = lock.NewRedis(client, 30*time.Minute)
		log.Info().Msg("export lock: redis")
	}

	var notifier services.Notifier
	if cfg.TelegramToken != "" {
		a.tg = telegram.NewClient(cfg, log)
		notifier = a.tg
	}
	var llm services.Commentator
	if cfg.OpenAIKey != "" {
		llm = openai.NewClient(cfg, log)
	}

	a.svc = services.New(cfg, log, jc, store, runs, notifier, llm)
	a.svc.SetLocker(a.locker)
	return a, nil
}
