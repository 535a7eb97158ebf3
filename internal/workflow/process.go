package workflow

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/dsl"
)

// ItemWriter is the collaborator that commits one executed sink (a ToDef
// plus the record it produced) to durable storage — the entity persistence
// pipeline for ToEntity sinks, a format encoder for ToFormat sinks.
type ItemWriter interface {
	WriteSink(ctx context.Context, sink dsl.Sink) error
}

// ProcessRepo is the subset of Repository the process step depends on,
// narrowed so it can be faked in tests without a live database.
type ProcessRepo interface {
	GetRun(ctx context.Context, runUUID string) (*WorkflowRun, error)
	GetWorkflow(ctx context.Context, uuid string) (*Workflow, error)
	ListQueuedItems(ctx context.Context, runUUID string) ([]WorkflowRawItem, error)
	MarkItemProcessed(ctx context.Context, itemUUID string) error
	MarkItemFailed(ctx context.Context, itemUUID, errMsg string) error
	MarkRunFailure(ctx context.Context, runUUID, message string) error
	MarkRunSuccess(ctx context.Context, runUUID string, processed, failed int) error
	AppendLog(ctx context.Context, entry RunLogEntry) error
}

// Processor runs a run's DslProgram over every one of its queued staged
// items, in seq_no order, transitioning each to processed or failed.
type Processor struct {
	Repo   ProcessRepo
	Writer ItemWriter
	Lookup dsl.EntityLookup
	Log    zerolog.Logger
}

// ProcessStagedItems executes runUUID's program against each queued raw
// item. A malformed program (fails to construct) fails the run outright
// before any item is touched; a per-item failure only fails that item, and
// processing continues with the next one. The run is marked success with
// the aggregate processed/failed counts once every item has a terminal
// status, unless the program itself could not be constructed.
func (p *Processor) ProcessStagedItems(ctx context.Context, runUUID string) error {
	run, err := p.Repo.GetRun(ctx, runUUID)
	if err != nil {
		return err
	}
	wf, err := p.Repo.GetWorkflow(ctx, run.WorkflowUUID)
	if err != nil {
		return err
	}

	var program dsl.DslProgram
	if err := json.Unmarshal([]byte(wf.Config), &program); err != nil {
		failMsg := "invalid workflow config: " + err.Error()
		_ = p.Repo.MarkRunFailure(ctx, runUUID, failMsg)
		return errs.Wrap(errs.Conversion, err, "decode workflow config")
	}

	executor, err := dsl.NewExecutor(program, Formats(), p.Lookup)
	if err != nil {
		failMsg := "program failed to construct: " + err.Error()
		_ = p.Repo.MarkRunFailure(ctx, runUUID, failMsg)
		return err
	}

	items, err := p.Repo.ListQueuedItems(ctx, runUUID)
	if err != nil {
		return err
	}

	var processed, failed int
	for _, item := range items {
		sinks, err := executor.Execute(ctx, nil, item.Data)
		if err != nil {
			failed++
			_ = p.Repo.MarkItemFailed(ctx, item.UUID, err.Error())
			p.logItemError(ctx, runUUID, item.UUID, err.Error())
			continue
		}

		itemErr := p.writeSinks(ctx, sinks)
		if itemErr != nil {
			failed++
			_ = p.Repo.MarkItemFailed(ctx, item.UUID, itemErr.Error())
			p.logItemError(ctx, runUUID, item.UUID, itemErr.Error())
			continue
		}

		processed++
		_ = p.Repo.MarkItemProcessed(ctx, item.UUID)
	}

	return p.Repo.MarkRunSuccess(ctx, runUUID, processed, failed)
}

func (p *Processor) writeSinks(ctx context.Context, sinks []dsl.Sink) error {
	for _, sink := range sinks {
		if sink.To.Kind == dsl.ToNextStep {
			continue
		}
		if p.Writer == nil {
			return errs.New(errs.Config, "no item writer configured for processed sinks")
		}
		if err := p.Writer.WriteSink(ctx, sink); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) logItemError(ctx context.Context, runUUID, itemUUID, msg string) {
	err := p.Repo.AppendLog(ctx, RunLogEntry{
		RunUUID: runUUID,
		Level:   LogError,
		Message: "item " + itemUUID + " failed: " + msg,
	})
	if err != nil {
		p.Log.Warn().Err(err).Str("run_uuid", runUUID).Msg("append run log failed")
	}
}
