package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/akarpov/planboard/internal/config"
	"github.com/akarpov/planboard/internal/repo"
)

type service interface {
	RefreshSnapshot(ctx context.Context) error
	RunWeeklyDigest(ctx context.Context) error
}

// locker is satisfied by the postgres store. The in-memory KV does not
// implement it, so single-process runs skip locking.
type locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (bool, error)
	AdvisoryUnlock(ctx context.Context, key int64) error
}

const (
	refreshLockKey int64 = 515001
	digestLockKey  int64 = 515002
)

type Cron struct {
	cfg config.Config
	log zerolog.Logger
	svc service
	kv  repo.KV
	c   *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, kv repo.KV) *Cron {
	loc, _ := time.LoadLocation(cfg.TZ)
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, svc: svc, kv: kv, c: c}
	if cfg.RefreshCron != "" {
		_, _ = c.AddFunc(cfg.RefreshCron, cr.refresh)
	}
	if cfg.DigestCron != "" {
		_, _ = c.AddFunc(cfg.DigestCron, cr.digest)
	}
	return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

// withLock serializes a job across replicas when the store supports
// advisory locks.
func (cr *Cron) withLock(ctx context.Context, key int64, name string, fn func(context.Context) error) {
	if l, ok := cr.kv.(locker); ok {
		got, err := l.TryAdvisoryLock(ctx, key)
		if err != nil {
			cr.log.Error().Str("job", name).Err(err).Msg("cron: lock error")
			return
		}
		if !got {
			cr.log.Info().Str("job", name).Msg("cron: already running elsewhere")
			return
		}
		defer func() { _ = l.AdvisoryUnlock(context.Background(), key) }()
	}
	if err := fn(ctx); err != nil {
		cr.log.Error().Str("job", name).Err(err).Msg("cron: job failed")
	}
}

func (cr *Cron) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	cr.log.Info().Msg("cron: snapshot refresh")
	cr.withLock(ctx, refreshLockKey, "refresh", cr.svc.RefreshSnapshot)
}

func (cr *Cron) digest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	cr.log.Info().Msg("cron: weekly digest")
	cr.withLock(ctx, digestLockKey, "digest", cr.svc.RunWeeklyDigest)
}
