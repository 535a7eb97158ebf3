package workflow

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/dsl"
)

// StageRepo is the subset of Repository the fetch/stage step depends on,
// narrowed so it can be faked in tests without a live database.
type StageRepo interface {
	GetWorkflow(ctx context.Context, uuid string) (*Workflow, error)
	GetRunByTriggerID(ctx context.Context, workflowUUID, triggerID string) (*WorkflowRun, error)
	CreateRun(ctx context.Context, workflowUUID, triggerID string) (*WorkflowRun, error)
	MarkRunRunning(ctx context.Context, runUUID string) error
	MarkRunFailure(ctx context.Context, runUUID, message string) error
	NextSeqNo(ctx context.Context, runUUID string) (int64, error)
	StageRawItem(ctx context.Context, runUUID string, seqNo int64, data map[string]any) (*WorkflowRawItem, error)
	AppendLog(ctx context.Context, entry RunLogEntry) error
}

// Stager fetches a workflow's input exactly once per run and stages it as
// raw items the process step consumes in sequence order.
type Stager struct {
	Repo    StageRepo
	Fetcher Fetcher
	Log     zerolog.Logger
}

// FetchAndStage runs the fetch/stage step for job: resolve the workflow,
// create (or locate) its run, fetch once, decode via the workflow's step-0
// format, and persist each decoded record as a raw item in order. A
// workflow's trigger_id defaults to the new run's own uuid when the job
// carries none.
//
// When job.TriggerID names a run that already has staged raw items, this is
// a retry: the prior fetch already happened and its decoded records are
// sitting in the table, so the fetch/decode/stage block is skipped entirely
// and the existing run is handed back for the process step to pick up.
func (s *Stager) FetchAndStage(ctx context.Context, job FetchAndStageJob) (*WorkflowRun, error) {
	wf, err := s.Repo.GetWorkflow(ctx, job.WorkflowID)
	if err != nil {
		return nil, err
	}

	run, reused, err := s.resolveRun(ctx, wf.UUID, job.TriggerID)
	if err != nil {
		return nil, err
	}

	if reused {
		alreadyStaged, err := s.hasStagedItems(ctx, run.UUID)
		if err != nil {
			return run, err
		}
		if alreadyStaged {
			s.logInfo(ctx, run.UUID, "raw items already staged for this trigger, skipping re-fetch")
			return run, nil
		}
	} else {
		s.logInfo(ctx, run.UUID, "run created, starting fetch")
	}

	if err := s.Repo.MarkRunRunning(ctx, run.UUID); err != nil {
		return run, err
	}

	var program dsl.DslProgram
	if err := json.Unmarshal([]byte(wf.Config), &program); err != nil {
		failMsg := "invalid workflow config: " + err.Error()
		_ = s.Repo.MarkRunFailure(ctx, run.UUID, failMsg)
		s.logError(ctx, run.UUID, failMsg)
		return run, errs.Wrap(errs.Conversion, err, "decode workflow config")
	}
	if len(program.Steps) == 0 {
		failMsg := "workflow config has no steps"
		_ = s.Repo.MarkRunFailure(ctx, run.UUID, failMsg)
		return run, errs.New(errs.Validation, failMsg)
	}

	raw, err := s.Fetcher.Fetch(ctx, wf.UUID)
	if err != nil {
		failMsg := "fetch failed: " + err.Error()
		_ = s.Repo.MarkRunFailure(ctx, run.UUID, failMsg)
		s.logError(ctx, run.UUID, failMsg)
		return run, err
	}

	decoder, ok := decoderFor(program.Steps[0].From.Format)
	if !ok {
		failMsg := "no decoder registered for format " + program.Steps[0].From.Format
		_ = s.Repo.MarkRunFailure(ctx, run.UUID, failMsg)
		return run, errs.New(errs.Config, failMsg)
	}
	records, err := decoder.Decode(raw)
	if err != nil {
		failMsg := "decode failed: " + err.Error()
		_ = s.Repo.MarkRunFailure(ctx, run.UUID, failMsg)
		s.logError(ctx, run.UUID, failMsg)
		return run, err
	}

	for _, rec := range records {
		seqNo, err := s.Repo.NextSeqNo(ctx, run.UUID)
		if err != nil {
			return run, err
		}
		if _, err := s.Repo.StageRawItem(ctx, run.UUID, seqNo, rec); err != nil {
			return run, err
		}
	}
	s.logInfo(ctx, run.UUID, "staged items ready for processing")

	return run, nil
}

// resolveRun looks up the run for a given trigger_id retry, creating a fresh
// one when triggerID is empty or names no prior run. The returned bool is
// true when an existing run was reused rather than created.
func (s *Stager) resolveRun(ctx context.Context, workflowUUID, triggerID string) (*WorkflowRun, bool, error) {
	if triggerID != "" {
		existing, err := s.Repo.GetRunByTriggerID(ctx, workflowUUID, triggerID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
	}
	run, err := s.Repo.CreateRun(ctx, workflowUUID, triggerID)
	if err != nil {
		return nil, false, err
	}
	return run, false, nil
}

// hasStagedItems reports whether runUUID already has raw items staged from
// a prior fetch, regardless of their processing status. NextSeqNo counts
// over every raw item for the run, so a value past the starting 1 means a
// previous attempt already staged at least one record.
func (s *Stager) hasStagedItems(ctx context.Context, runUUID string) (bool, error) {
	next, err := s.Repo.NextSeqNo(ctx, runUUID)
	if err != nil {
		return false, err
	}
	return next > 1, nil
}

func (s *Stager) logInfo(ctx context.Context, runUUID, msg string) {
	if err := s.Repo.AppendLog(ctx, RunLogEntry{RunUUID: runUUID, Level: LogInfo, Message: msg}); err != nil {
		s.Log.Warn().Err(err).Str("run_uuid", runUUID).Msg("append run log failed")
	}
}

func (s *Stager) logError(ctx context.Context, runUUID, msg string) {
	if err := s.Repo.AppendLog(ctx, RunLogEntry{RunUUID: runUUID, Level: LogError, Message: msg}); err != nil {
		s.Log.Warn().Err(err).Str("run_uuid", runUUID).Msg("append run log failed")
	}
}
