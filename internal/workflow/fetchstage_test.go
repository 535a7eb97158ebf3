package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStageRepo struct {
	workflows map[string]Workflow
	runs      map[string]*WorkflowRun
	items     map[string][]WorkflowRawItem
	logs      []RunLogEntry
}

func newFakeStageRepo() *fakeStageRepo {
	return &fakeStageRepo{
		workflows: map[string]Workflow{},
		runs:      map[string]*WorkflowRun{},
		items:     map[string][]WorkflowRawItem{},
	}
}

func (f *fakeStageRepo) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, assert.AnError
	}
	return &wf, nil
}

func (f *fakeStageRepo) CreateRun(ctx context.Context, workflowUUID, triggerID string) (*WorkflowRun, error) {
	run := &WorkflowRun{UUID: uuid.NewString(), WorkflowUUID: workflowUUID, TriggerID: triggerID, Status: RunQueued}
	if run.TriggerID == "" {
		run.TriggerID = run.UUID
	}
	f.runs[run.UUID] = run
	return run, nil
}

func (f *fakeStageRepo) GetRunByTriggerID(ctx context.Context, workflowUUID, triggerID string) (*WorkflowRun, error) {
	for _, run := range f.runs {
		if run.WorkflowUUID == workflowUUID && run.TriggerID == triggerID {
			return run, nil
		}
	}
	return nil, nil
}

func (f *fakeStageRepo) MarkRunRunning(ctx context.Context, runUUID string) error {
	f.runs[runUUID].Status = RunRunning
	return nil
}

func (f *fakeStageRepo) MarkRunFailure(ctx context.Context, runUUID, message string) error {
	f.runs[runUUID].Status = RunFailure
	f.runs[runUUID].Message = message
	return nil
}

func (f *fakeStageRepo) NextSeqNo(ctx context.Context, runUUID string) (int64, error) {
	return int64(len(f.items[runUUID]) + 1), nil
}

func (f *fakeStageRepo) StageRawItem(ctx context.Context, runUUID string, seqNo int64, data map[string]any) (*WorkflowRawItem, error) {
	item := WorkflowRawItem{UUID: uuid.NewString(), RunUUID: runUUID, SeqNo: seqNo, Data: data, Status: ItemQueued}
	f.items[runUUID] = append(f.items[runUUID], item)
	return &item, nil
}

func (f *fakeStageRepo) AppendLog(ctx context.Context, entry RunLogEntry) error {
	f.logs = append(f.logs, entry)
	return nil
}

func csvWorkflow(uuidStr string) Workflow {
	return Workflow{
		UUID: uuidStr,
		Name: "csv-import",
		Config: `{"steps":[{"from":{"kind":"format","format":"csv"},` +
			`"to":{"kind":"next_step"}}]}`,
	}
}

func TestFetchAndStage_StagesEveryDecodedRecordInOrder(t *testing.T) {
	repo := newFakeStageRepo()
	wf := csvWorkflow("wf-1")
	repo.workflows[wf.UUID] = wf

	fetcher := FetcherFunc(func(ctx context.Context, workflowUUID string) ([]byte, error) {
		return []byte("name,email\nAda,ada@example.com\nGrace,grace@example.com\n"), nil
	})
	stager := &Stager{Repo: repo, Fetcher: fetcher, Log: zerolog.Nop()}

	run, err := stager.FetchAndStage(context.Background(), FetchAndStageJob{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunRunning, repo.runs[run.UUID].Status)
	assert.Equal(t, run.UUID, run.TriggerID, "run's own uuid becomes trigger_id when none was supplied")

	items := repo.items[run.UUID]
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].SeqNo)
	assert.Equal(t, int64(2), items[1].SeqNo)
	assert.Equal(t, "Ada", items[0].Data["name"])
	assert.Equal(t, "Grace", items[1].Data["name"])
}

func TestFetchAndStage_PreservesGivenTriggerID(t *testing.T) {
	repo := newFakeStageRepo()
	wf := csvWorkflow("wf-1")
	repo.workflows[wf.UUID] = wf
	fetcher := FetcherFunc(func(ctx context.Context, workflowUUID string) ([]byte, error) {
		return []byte("name\nAda\n"), nil
	})
	stager := &Stager{Repo: repo, Fetcher: fetcher, Log: zerolog.Nop()}

	run, err := stager.FetchAndStage(context.Background(), FetchAndStageJob{WorkflowID: "wf-1", TriggerID: "external-trigger"})
	require.NoError(t, err)
	assert.Equal(t, "external-trigger", run.TriggerID)
}

func TestFetchAndStage_RetryWithSameTriggerIDSkipsRefetch(t *testing.T) {
	repo := newFakeStageRepo()
	wf := csvWorkflow("wf-1")
	repo.workflows[wf.UUID] = wf

	fetchCalls := 0
	fetcher := FetcherFunc(func(ctx context.Context, workflowUUID string) ([]byte, error) {
		fetchCalls++
		return []byte("name\nAda\nGrace\n"), nil
	})
	stager := &Stager{Repo: repo, Fetcher: fetcher, Log: zerolog.Nop()}

	first, err := stager.FetchAndStage(context.Background(), FetchAndStageJob{WorkflowID: "wf-1", TriggerID: "retry-me"})
	require.NoError(t, err)
	require.Len(t, repo.items[first.UUID], 2)
	assert.Equal(t, 1, fetchCalls)

	second, err := stager.FetchAndStage(context.Background(), FetchAndStageJob{WorkflowID: "wf-1", TriggerID: "retry-me"})
	require.NoError(t, err)

	assert.Equal(t, first.UUID, second.UUID, "retry reuses the run created for the same trigger id")
	assert.Equal(t, 1, fetchCalls, "retry must not re-fetch when items are already staged")
	assert.Len(t, repo.items[first.UUID], 2, "retry must not re-stage duplicate items")
	assert.Len(t, repo.runs, 1, "retry must not create a second run")
}

func TestFetchAndStage_FetchFailureMarksRunFailed(t *testing.T) {
	repo := newFakeStageRepo()
	wf := csvWorkflow("wf-1")
	repo.workflows[wf.UUID] = wf
	fetcher := FetcherFunc(func(ctx context.Context, workflowUUID string) ([]byte, error) {
		return nil, assert.AnError
	})
	stager := &Stager{Repo: repo, Fetcher: fetcher, Log: zerolog.Nop()}

	run, err := stager.FetchAndStage(context.Background(), FetchAndStageJob{WorkflowID: "wf-1"})
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunFailure, repo.runs[run.UUID].Status)
}

func TestFetchAndStage_InvalidConfigMarksRunFailed(t *testing.T) {
	repo := newFakeStageRepo()
	wf := csvWorkflow("wf-1")
	wf.Config = "not json"
	repo.workflows[wf.UUID] = wf
	fetcher := FetcherFunc(func(ctx context.Context, workflowUUID string) ([]byte, error) { return nil, nil })
	stager := &Stager{Repo: repo, Fetcher: fetcher, Log: zerolog.Nop()}

	run, err := stager.FetchAndStage(context.Background(), FetchAndStageJob{WorkflowID: "wf-1"})
	require.Error(t, err)
	assert.Equal(t, RunFailure, repo.runs[run.UUID].Status)
}

func TestFetchAndStage_UnknownFormatFails(t *testing.T) {
	repo := newFakeStageRepo()
	wf := Workflow{UUID: "wf-1", Config: `{"steps":[{"from":{"kind":"format","format":"xml"},"to":{"kind":"next_step"}}]}`}
	repo.workflows[wf.UUID] = wf
	fetcher := FetcherFunc(func(ctx context.Context, workflowUUID string) ([]byte, error) { return []byte("<a/>"), nil })
	stager := &Stager{Repo: repo, Fetcher: fetcher, Log: zerolog.Nop()}

	_, err := stager.FetchAndStage(context.Background(), FetchAndStageJob{WorkflowID: "wf-1"})
	require.Error(t, err)
}
