package workflow

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/user/entityflow/internal/auth"
	"github.com/user/entityflow/internal/entity"
	"github.com/user/entityflow/internal/platform/config"
)

// VersionPurger deletes entity-definition and per-type entity version
// snapshots past a retention window.
type VersionPurger struct {
	Defs *entity.Repository
	Rows RowRepositoryLister
	Log  zerolog.Logger
}

// RowRepositoryLister is the one method of persistence's RowRepository the
// version purger needs; the entity types to purge come from Defs.List. It is
// kept as a narrow interface so internal/workflow does not import
// internal/persistence.
type RowRepositoryLister interface {
	PurgeOldVersions(ctx context.Context, entityType string, before time.Time) (int64, error)
}

// Purge deletes every entity_definition_versions row, and every
// entity_<type>_versions row, older than now-retention.
func (p *VersionPurger) Purge(ctx context.Context, retention time.Duration) error {
	before := time.Now().Add(-retention)

	if n, err := p.Defs.PurgeOldDefinitionVersions(ctx, before); err != nil {
		return err
	} else if n > 0 {
		p.Log.Info().Int64("count", n).Msg("purged old entity definition versions")
	}

	const pageSize = 100
	for offset := 0; ; offset += pageSize {
		defs, err := p.Defs.List(ctx, pageSize, offset)
		if err != nil {
			return err
		}
		for _, def := range defs {
			if def.VersioningDisabled {
				continue
			}
			n, err := p.Rows.PurgeOldVersions(ctx, def.EntityType, before)
			if err != nil {
				p.Log.Warn().Err(err).Str("entity_type", def.EntityType).Msg("purge entity versions failed")
				continue
			}
			if n > 0 {
				p.Log.Info().Int64("count", n).Str("entity_type", def.EntityType).Msg("purged old entity versions")
			}
		}
		if len(defs) < pageSize {
			break
		}
	}
	return nil
}

// RunLogPurger deletes workflow_run_logs rows past a retention window.
type RunLogPurger struct {
	Repo *Repository
	Log  zerolog.Logger
}

func (p *RunLogPurger) Purge(ctx context.Context, retention time.Duration) error {
	n, err := p.Repo.PurgeOldRunLogs(ctx, time.Now().Add(-retention))
	if err != nil {
		return err
	}
	if n > 0 {
		p.Log.Info().Int64("count", n).Msg("purged old workflow run logs")
	}
	return nil
}

// Scheduler registers a workflow's own schedule_cron entries (each firing a
// fetch/stage job) plus the platform's fixed housekeeping jobs, on one
// robfig/cron instance.
type Scheduler struct {
	cron    *cron.Cron
	Queue   *Queue
	Workflows *Repository
	Versions  *VersionPurger
	RunLogs   *RunLogPurger
	Refresh   auth.RefreshTokenRepository
	Config    config.MaintenanceConfig
	Log       zerolog.Logger
}

func NewScheduler(q *Queue, workflows *Repository, versions *VersionPurger, runLogs *RunLogPurger, refresh auth.RefreshTokenRepository, cfg config.MaintenanceConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		Queue:     q,
		Workflows: workflows,
		Versions:  versions,
		RunLogs:   runLogs,
		Refresh:   refresh,
		Config:    cfg,
		Log:       log,
	}
}

// Start registers every scheduled workflow's cron trigger (skipping
// workflows with an API endpoint, whose cron is ignored at runtime) plus
// the fixed housekeeping jobs, then starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	workflows, err := s.Workflows.ListScheduled(ctx)
	if err != nil {
		return err
	}
	for _, wf := range workflows {
		if wf.HasAPIEndpoint {
			continue
		}
		wf := wf
		if _, err := s.cron.AddFunc(wf.ScheduleCron, func() {
			job := FetchAndStageJob{WorkflowID: wf.UUID}
			if err := s.Queue.EnqueueFetch(ctx, job); err != nil {
				s.Log.Error().Err(err).Str("workflow_uuid", wf.UUID).Msg("enqueue scheduled fetch failed")
			}
		}); err != nil {
			return err
		}
	}

	if _, err := s.cron.AddFunc(s.Config.PurgeCron, func() {
		if err := s.Versions.Purge(ctx, s.Config.VersionRetention); err != nil {
			s.Log.Error().Err(err).Msg("version purge failed")
		}
		if err := s.RunLogs.Purge(ctx, s.Config.RunLogRetention); err != nil {
			s.Log.Error().Err(err).Msg("run log purge failed")
		}
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.Config.RefreshTokenCleanupCron, func() {
		if n, err := auth.CleanupRefreshTokens(ctx, s.Refresh); err != nil {
			s.Log.Error().Err(err).Msg("refresh token cleanup failed")
		} else if n > 0 {
			s.Log.Info().Int64("count", n).Msg("cleaned up expired/revoked refresh tokens")
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() { s.cron.Stop() }
