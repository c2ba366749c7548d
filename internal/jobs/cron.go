package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type exporter interface {
	Run(ctx context.Context, sprintIDs []int64) (services.RunResult, error)
	RunActive(ctx context.Context) (services.RunResult, error)
}

type Locker = services.Locker

type Cron struct {
	cfg     config.Config
	log     zerolog.Logger
	svc     exporter
	lock    Locker
	c       *cron.Cron
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewCron(cfg config.Config, log zerolog.Logger, svc exporter, lock Locker) (*Cron, error) {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, svc: svc, lock: lock, c: c, timeout: 15 * time.Minute}
	if _, err := c.AddFunc(cfg.ExportCron, cr.scheduled); err != nil {
		return nil, fmt.Errorf("invalid CRON_SPEC %q: %w", cfg.ExportCron, err)
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop halts the scheduler and waits for exports in flight.
func (cr *Cron) Stop() {
	<-cr.c.Stop().Done()
	cr.wg.Wait()
}

func (cr *Cron) scheduled() {
	cr.locked(func(ctx context.Context) error {
		cr.log.Info().Msg("cron: export active sprint")
		_, err := cr.svc.RunActive(ctx)
		return err
	})
}

// Trigger starts an export of sprintIDs in the background. It returns false when another export
// holds the lock.
func (cr *Cron) Trigger(sprintIDs []int64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := cr.lock.TryAdvisoryLock(ctx, services.ExportLockKey)
	if err != nil {
		cr.log.Error().Err(err).Msg("trigger: lock error")
		return false
	}
	if !ok {
		return false
	}
	cr.wg.Add(1)
	go func() {
		defer cr.wg.Done()
		defer cr.unlock()
		ctx, cancel := context.WithTimeout(context.Background(), cr.timeout)
		defer cancel()
		if _, err := cr.svc.Run(ctx, sprintIDs); err != nil {
			cr.log.Error().Err(err).Msg("trigger: export failed")
		}
	}()
	return true
}

func (cr *Cron) locked(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cr.timeout)
	defer cancel()
	ok, err := cr.lock.TryAdvisoryLock(ctx, services.ExportLockKey)
	if err != nil {
		cr.log.Error().Err(err).Msg("cron: lock error")
		return
	}
	if !ok {
		cr.log.Info().Msg("cron: already running elsewhere")
		return
	}
	defer cr.unlock()
	if err := fn(ctx); err != nil {
		cr.log.Error().Err(err).Msg("cron: export failed")
	}
}

func (cr *Cron) unlock() {
	if err := cr.lock.AdvisoryUnlock(context.Background(), services.ExportLockKey); err != nil {
		cr.log.Error().Err(err).Msg("unlock failed")
	}
}
