package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/user/entityflow/internal/core/errs"
	"github.com/user/entityflow/internal/core/pagination"
	dblib "github.com/user/entityflow/internal/db"
)

// DefaultLogPerPage and MaxLogPerPage bound a paginated ListLogs call's page
// size when the caller's pagination.Query leaves per_page unset or oversized.
const (
	DefaultLogPerPage = 50
	MaxLogPerPage     = 500
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron reports whether expr parses as a standard five-field cron
// expression or a cron.Descriptor (e.g. "@hourly"). An empty expr is always
// valid: it means "no schedule, API-triggered only".
func ValidateCron(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return errs.Field(errs.Validation, "schedule_cron", "invalid cron expression: "+err.Error())
	}
	return nil
}

// Repository persists Workflow, WorkflowRun, WorkflowRawItem, and
// RunLogEntry rows.
type Repository struct {
	DB *dblib.DB
}

func NewRepository(db *dblib.DB) *Repository { return &Repository{DB: db} }

// CreateWorkflow validates the cron expression (if any) and inserts w.
func (r *Repository) CreateWorkflow(ctx context.Context, w *Workflow) error {
	if err := ValidateCron(w.ScheduleCron); err != nil {
		return err
	}
	if w.UUID == "" {
		w.UUID = uuid.NewString()
	}
	now := time.Now()
	w.CreatedAt, w.UpdatedAt = now, now

	stmt := `INSERT INTO workflows (uuid, name, config, schedule_cron, has_api_endpoint, created_at, updated_at)
		VALUES (` + r.DB.Placeholders(7) + `)`
	_, err := r.DB.Conn.ExecContext(ctx, stmt, w.UUID, w.Name, w.Config, w.ScheduleCron, w.HasAPIEndpoint, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if dblib.IsUniqueViolation(err) {
			return errs.Field(errs.Conflict, "name", "workflow name already exists")
		}
		return errs.Wrap(errs.Database, err, "insert workflow")
	}
	return nil
}

// UpdateWorkflow validates the cron expression and persists the new config.
func (r *Repository) UpdateWorkflow(ctx context.Context, w *Workflow) error {
	if err := ValidateCron(w.ScheduleCron); err != nil {
		return err
	}
	w.UpdatedAt = time.Now()
	stmt := `UPDATE workflows SET name = ` + r.DB.Placeholder(1) + `, config = ` + r.DB.Placeholder(2) + `,
		schedule_cron = ` + r.DB.Placeholder(3) + `, has_api_endpoint = ` + r.DB.Placeholder(4) + `,
		updated_at = ` + r.DB.Placeholder(5) + ` WHERE uuid = ` + r.DB.Placeholder(6)
	res, err := r.DB.Conn.ExecContext(ctx, stmt, w.Name, w.Config, w.ScheduleCron, w.HasAPIEndpoint, w.UpdatedAt, w.UUID)
	if err != nil {
		return errs.Wrap(errs.Database, err, "update workflow")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "workflow not found")
	}
	return nil
}

// GetWorkflow fetches a workflow by uuid.
func (r *Repository) GetWorkflow(ctx context.Context, uuidStr string) (*Workflow, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		`SELECT uuid, name, config, schedule_cron, has_api_endpoint, created_at, updated_at
		 FROM workflows WHERE uuid = `+r.DB.Placeholder(1), uuidStr)
	var w Workflow
	if err := row.Scan(&w.UUID, &w.Name, &w.Config, &w.ScheduleCron, &w.HasAPIEndpoint, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "workflow not found")
		}
		return nil, errs.Wrap(errs.Database, err, "get workflow")
	}
	return &w, nil
}

// ListScheduled returns every workflow with a non-empty schedule_cron, for
// the scheduler to register at startup.
func (r *Repository) ListScheduled(ctx context.Context) ([]Workflow, error) {
	rows, err := r.DB.Conn.QueryContext(ctx,
		`SELECT uuid, name, config, schedule_cron, has_api_endpoint, created_at, updated_at
		 FROM workflows WHERE schedule_cron <> ''`)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "list scheduled workflows")
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		var w Workflow
		if err := rows.Scan(&w.UUID, &w.Name, &w.Config, &w.ScheduleCron, &w.HasAPIEndpoint, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, errs.Wrap(errs.Database, err, "scan workflow")
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CreateRun inserts a new run in the queued state. If triggerID is empty,
// the run's own uuid becomes its trigger_id.
func (r *Repository) CreateRun(ctx context.Context, workflowUUID, triggerID string) (*WorkflowRun, error) {
	run := &WorkflowRun{
		UUID:         uuid.NewString(),
		WorkflowUUID: workflowUUID,
		TriggerID:    triggerID,
		Status:       RunQueued,
	}
	if run.TriggerID == "" {
		run.TriggerID = run.UUID
	}
	now := time.Now()
	run.CreatedAt, run.UpdatedAt = now, now

	stmt := `INSERT INTO workflow_runs (uuid, workflow_uuid, trigger_id, status, processed_items, failed_items, message, created_at, updated_at)
		VALUES (` + r.DB.Placeholders(9) + `)`
	_, err := r.DB.Conn.ExecContext(ctx, stmt, run.UUID, run.WorkflowUUID, run.TriggerID, run.Status,
		run.ProcessedItems, run.FailedItems, run.Message, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "insert workflow run")
	}
	return run, nil
}

// GetRun fetches a run by uuid.
func (r *Repository) GetRun(ctx context.Context, runUUID string) (*WorkflowRun, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		`SELECT uuid, workflow_uuid, trigger_id, status, processed_items, failed_items, message, created_at, updated_at
		 FROM workflow_runs WHERE uuid = `+r.DB.Placeholder(1), runUUID)
	var run WorkflowRun
	if err := row.Scan(&run.UUID, &run.WorkflowUUID, &run.TriggerID, &run.Status,
		&run.ProcessedItems, &run.FailedItems, &run.Message, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "workflow run not found")
		}
		return nil, errs.Wrap(errs.Database, err, "get workflow run")
	}
	return &run, nil
}

// GetRunByTriggerID looks up a workflow's run by trigger_id, returning
// (nil, nil) when none exists yet so callers can tell "no prior run" apart
// from a database error without matching on errs.NotFound.
func (r *Repository) GetRunByTriggerID(ctx context.Context, workflowUUID, triggerID string) (*WorkflowRun, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		`SELECT uuid, workflow_uuid, trigger_id, status, processed_items, failed_items, message, created_at, updated_at
		 FROM workflow_runs WHERE workflow_uuid = `+r.DB.Placeholder(1)+` AND trigger_id = `+r.DB.Placeholder(2),
		workflowUUID, triggerID)
	var run WorkflowRun
	if err := row.Scan(&run.UUID, &run.WorkflowUUID, &run.TriggerID, &run.Status,
		&run.ProcessedItems, &run.FailedItems, &run.Message, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Database, err, "get workflow run by trigger id")
	}
	return &run, nil
}

// MarkRunRunning transitions a queued run to running.
func (r *Repository) MarkRunRunning(ctx context.Context, runUUID string) error {
	return r.setRunStatus(ctx, runUUID, RunRunning, 0, 0, "")
}

// MarkRunSuccess transitions a running run to success, recording item counts.
func (r *Repository) MarkRunSuccess(ctx context.Context, runUUID string, processed, failed int) error {
	return r.setRunStatus(ctx, runUUID, RunSuccess, processed, failed, "")
}

// MarkRunFailure transitions a run to failure with a message (used when the
// program errors before any staged item could transition).
func (r *Repository) MarkRunFailure(ctx context.Context, runUUID, message string) error {
	return r.setRunStatus(ctx, runUUID, RunFailure, 0, 0, message)
}

func (r *Repository) setRunStatus(ctx context.Context, runUUID string, status RunStatus, processed, failed int, message string) error {
	stmt := `UPDATE workflow_runs SET status = ` + r.DB.Placeholder(1) + `, processed_items = ` + r.DB.Placeholder(2) + `,
		failed_items = ` + r.DB.Placeholder(3) + `, message = ` + r.DB.Placeholder(4) + `, updated_at = ` + r.DB.Placeholder(5) + `
		WHERE uuid = ` + r.DB.Placeholder(6)
	res, err := r.DB.Conn.ExecContext(ctx, stmt, status, processed, failed, message, time.Now(), runUUID)
	if err != nil {
		return errs.Wrap(errs.Database, err, "update workflow run status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "workflow run not found")
	}
	return nil
}

// NextSeqNo returns max(seq_no)+1 for runUUID's staged items, starting at 1
// when none exist yet.
func (r *Repository) NextSeqNo(ctx context.Context, runUUID string) (int64, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq_no), 0) + 1 FROM workflow_raw_items WHERE run_uuid = `+r.DB.Placeholder(1), runUUID)
	var next int64
	if err := row.Scan(&next); err != nil {
		return 0, errs.Wrap(errs.Database, err, "compute next seq_no")
	}
	return next, nil
}

// StageRawItem inserts one staged item for runUUID in the queued state.
func (r *Repository) StageRawItem(ctx context.Context, runUUID string, seqNo int64, data map[string]any) (*WorkflowRawItem, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errs.Wrap(errs.Conversion, err, "marshal staged item")
	}
	item := &WorkflowRawItem{UUID: uuid.NewString(), RunUUID: runUUID, SeqNo: seqNo, Data: data, Status: ItemQueued}

	stmt := `INSERT INTO workflow_raw_items (uuid, run_uuid, seq_no, data, status, error)
		VALUES (` + r.DB.Placeholders(6) + `)`
	_, err = r.DB.Conn.ExecContext(ctx, stmt, item.UUID, item.RunUUID, item.SeqNo, payload, item.Status, item.Error)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "insert staged item")
	}
	return item, nil
}

// ListQueuedItems returns a run's queued raw items in ascending seq_no order.
func (r *Repository) ListQueuedItems(ctx context.Context, runUUID string) ([]WorkflowRawItem, error) {
	rows, err := r.DB.Conn.QueryContext(ctx,
		`SELECT uuid, run_uuid, seq_no, data, status, error FROM workflow_raw_items
		 WHERE run_uuid = `+r.DB.Placeholder(1)+` AND status = `+r.DB.Placeholder(2)+` ORDER BY seq_no ASC`,
		runUUID, ItemQueued)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "list queued items")
	}
	defer rows.Close()

	var out []WorkflowRawItem
	for rows.Next() {
		var item WorkflowRawItem
		var payload []byte
		if err := rows.Scan(&item.UUID, &item.RunUUID, &item.SeqNo, &payload, &item.Status, &item.Error); err != nil {
			return nil, errs.Wrap(errs.Database, err, "scan staged item")
		}
		if err := json.Unmarshal(payload, &item.Data); err != nil {
			return nil, errs.Wrap(errs.Conversion, err, "decode staged item")
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkItemProcessed/MarkItemFailed transition one staged item's terminal state.
func (r *Repository) MarkItemProcessed(ctx context.Context, itemUUID string) error {
	return r.setItemStatus(ctx, itemUUID, ItemProcessed, "")
}

func (r *Repository) MarkItemFailed(ctx context.Context, itemUUID, errMsg string) error {
	return r.setItemStatus(ctx, itemUUID, ItemFailed, errMsg)
}

func (r *Repository) setItemStatus(ctx context.Context, itemUUID string, status ItemStatus, errMsg string) error {
	stmt := `UPDATE workflow_raw_items SET status = ` + r.DB.Placeholder(1) + `, error = ` + r.DB.Placeholder(2) +
		` WHERE uuid = ` + r.DB.Placeholder(3)
	_, err := r.DB.Conn.ExecContext(ctx, stmt, status, errMsg, itemUUID)
	if err != nil {
		return errs.Wrap(errs.Database, err, "update staged item status")
	}
	return nil
}

// AppendLog writes one append-only run log row.
func (r *Repository) AppendLog(ctx context.Context, entry RunLogEntry) error {
	var metaJSON []byte
	if entry.Meta != nil {
		var err error
		metaJSON, err = json.Marshal(entry.Meta)
		if err != nil {
			return errs.Wrap(errs.Conversion, err, "marshal log meta")
		}
	}
	if entry.UUID == "" {
		entry.UUID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	stmt := `INSERT INTO workflow_run_logs (uuid, run_uuid, level, message, meta, at)
		VALUES (` + r.DB.Placeholders(6) + `)`
	_, err := r.DB.Conn.ExecContext(ctx, stmt, entry.UUID, entry.RunUUID, entry.Level, entry.Message, metaJSON, entry.At)
	if err != nil {
		return errs.Wrap(errs.Database, err, "append run log")
	}
	return nil
}

// ListLogs returns a page of a run's log entries, oldest first.
func (r *Repository) ListLogs(ctx context.Context, runUUID string, limit, offset int) ([]RunLogEntry, error) {
	rows, err := r.DB.Conn.QueryContext(ctx,
		`SELECT uuid, run_uuid, level, message, meta, at FROM workflow_run_logs
		 WHERE run_uuid = `+r.DB.Placeholder(1)+` ORDER BY at ASC LIMIT `+r.DB.Placeholder(2)+` OFFSET `+r.DB.Placeholder(3),
		runUUID, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "list run logs")
	}
	defer rows.Close()

	var out []RunLogEntry
	for rows.Next() {
		var entry RunLogEntry
		var meta []byte
		if err := rows.Scan(&entry.UUID, &entry.RunUUID, &entry.Level, &entry.Message, &meta, &entry.At); err != nil {
			return nil, errs.Wrap(errs.Database, err, "scan run log")
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, errs.Wrap(errs.Conversion, err, "decode run log meta")
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ListLogsPaginated resolves q against the default/max page size and
// returns the matching page of a run's log entries.
func (r *Repository) ListLogsPaginated(ctx context.Context, runUUID string, q pagination.Query) ([]RunLogEntry, error) {
	perPage := q.GetPerPage(DefaultLogPerPage, MaxLogPerPage)
	offset := q.Offset(1, DefaultLogPerPage, MaxLogPerPage)
	return r.ListLogs(ctx, runUUID, perPage, offset)
}

// PurgeOldRunLogs deletes run log rows older than before, returning the
// count removed.
func (r *Repository) PurgeOldRunLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.Conn.ExecContext(ctx, `DELETE FROM workflow_run_logs WHERE at < `+r.DB.Placeholder(1), before)
	if err != nil {
		return 0, errs.Wrap(errs.Database, err, "purge old run logs")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
