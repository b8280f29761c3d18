package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/internal/audit"
	"github.com/taxnovahq/taxnova-backend/pkg/config"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
)

const (
	defaultSweepInterval = 24 * time.Hour
	defaultSweepPeriod   = 30 * 24 * time.Hour

	sweepLockName = "audit-sweep"
	sweepLockTTL  = time.Hour
)

type pinger interface {
	Ping(context.Context) error
}

// locker keeps one sweep per environment. The lock covers the whole
// cycle: entities audited under a lost lock are merely audited twice,
// each run being its own immutable record.
type locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, func(), error)
}

type entityLister interface {
	ListActiveEntities(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

type auditRunner interface {
	RunFullAudit(ctx context.Context, entityID uuid.UUID, period audit.Period, opts audit.RunOptions) (*models.AuditRun, error)
}

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       pinger
	Locker   locker
	Entities entityLister
	Audits   auditRunner
}

type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       pinger
	locks    locker
	entities entityLister
	audits   auditRunner
	interval time.Duration
	period   time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Locker == nil {
		return nil, errors.New("lock client is required")
	}
	if params.Entities == nil {
		return nil, errors.New("entity lister is required")
	}
	if params.Audits == nil {
		return nil, errors.New("audit service is required")
	}

	interval := params.Config.Audit.ScheduleInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	period := params.Config.Audit.SchedulePeriod
	if period <= 0 {
		period = defaultSweepPeriod
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		locks:    params.Locker,
		entities: params.Entities,
		audits:   params.Audits,
		interval: interval,
		period:   period,
	}, nil
}

// Run sweeps once at startup, then on the configured cadence until the
// context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := s.sweep(ctx); err != nil {
		s.logg.Error(ctx, "audit sweep failed", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "audit worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logg.Error(ctx, "audit sweep failed", err)
			}
		}
	}
}

func (s *Service) sweep(ctx context.Context) error {
	acquired, release, err := s.locks.AcquireLock(ctx, sweepLockName, sweepLockTTL)
	if err != nil {
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		s.logg.Info(ctx, "another audit worker is sweeping; skipping this cycle")
		return nil
	}
	defer release()

	end := time.Now().UTC()
	start := end.Add(-s.period)
	entities, err := s.entities.ListActiveEntities(ctx, start, end)
	if err != nil {
		return fmt.Errorf("list active entities: %w", err)
	}

	sweepCtx := s.logg.WithFields(ctx, map[string]any{
		"period_start": start.Format(time.RFC3339),
		"period_end":   end.Format(time.RFC3339),
		"entities":     len(entities),
	})
	s.logg.Info(sweepCtx, "audit sweep starting")

	var failures int
	for _, entityID := range entities {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		run, err := s.audits.RunFullAudit(ctx, entityID, audit.Period{Start: start, End: end}, audit.RunOptions{})
		entityCtx := s.logg.WithEntityID(ctx, entityID.String())
		if err != nil {
			failures++
			s.logg.Error(entityCtx, "scheduled audit failed", err)
			continue
		}
		entityCtx = s.logg.WithRunID(entityCtx, run.ID.String())
		s.logg.Info(s.logg.WithField(entityCtx, "status", run.Status), "scheduled audit finished")
	}

	s.logg.Info(s.logg.WithField(sweepCtx, "failures", failures), "audit sweep complete")
	if failures > 0 {
		return fmt.Errorf("%d of %d scheduled audits failed", failures, len(entities))
	}
	return nil
}
