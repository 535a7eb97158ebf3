// Package workflow implements job queueing, run tracking, and the
// fetch/stage and process steps that drive a DslProgram over staged raw
// items, on top of a plain FIFO list queue (context-scoped client,
// Ping-on-init, structured error wrapping).
package workflow

import "time"

// RunStatus is the run state machine's closed set of states.
type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// ItemStatus tracks a single staged raw item through the process step.
type ItemStatus string

const (
	ItemQueued    ItemStatus = "queued"
	ItemProcessed ItemStatus = "processed"
	ItemFailed    ItemStatus = "failed"
)

// LogLevel mirrors the level tag on a run log row.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// Workflow is a named, scheduled-or-API-driven DSL program.
type Workflow struct {
	UUID          string
	Name          string
	Config        string // serialized dsl.DslProgram JSON
	ScheduleCron  string // empty = no cron schedule
	HasAPIEndpoint bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WorkflowRun is one execution of a Workflow, tracked through the run state
// machine.
type WorkflowRun struct {
	UUID          string
	WorkflowUUID  string
	TriggerID     string
	Status        RunStatus
	ProcessedItems int
	FailedItems    int
	Message        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WorkflowRawItem is one staged record awaiting (or having completed) the
// process step, in strict seq_no order per run.
type WorkflowRawItem struct {
	UUID    string
	RunUUID string
	SeqNo   int64
	Data    map[string]any
	Status  ItemStatus
	Error   string
}

// RunLogEntry is one append-only row in a run's log stream.
type RunLogEntry struct {
	UUID    string
	RunUUID string
	Level   LogLevel
	Message string
	Meta    map[string]any
	At      time.Time
}

// FetchAndStageJob is the queue payload that kicks off the fetch/stage step.
type FetchAndStageJob struct {
	WorkflowID string `json:"workflow_id"`
	TriggerID  string `json:"trigger_id,omitempty"`
}

// ProcessRawItemJob is the queue payload that would drive per-item
// processing via the process queue; reserved/unconsumed in this core (open
// question (c)).
type ProcessRawItemJob struct {
	RawItemID string `json:"raw_item_id"`
}
