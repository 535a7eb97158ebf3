package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQueue(client, "wf:fetch", "wf:process", zerolog.Nop())
}

func TestQueue_EnqueueFetchThenPopFetch_RoundTrips(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.EnqueueFetch(ctx, FetchAndStageJob{WorkflowID: "wf-1", TriggerID: "trig-1"}))

	job, err := q.PopFetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "wf-1", job.WorkflowID)
	assert.Equal(t, "trig-1", job.TriggerID)
}

func TestQueue_EnqueueProcessThenPopProcess_RoundTrips(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.EnqueueProcess(ctx, ProcessRawItemJob{RawItemID: "item-1"}))

	job, err := q.PopProcess(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "item-1", job.RawItemID)
}

func TestQueue_PopFetch_ReturnsNilOnContextCancellation(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	job, err := q.PopFetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_FetchAndProcessListsAreIndependent(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.EnqueueFetch(ctx, FetchAndStageJob{WorkflowID: "wf-1"}))

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	job, err := q.PopProcess(short)
	require.NoError(t, err)
	assert.Nil(t, job, "process list should not see a job pushed to the fetch list")
}

func TestQueue_BackoffDoublesUpToCapThenResets(t *testing.T) {
	q := newTestQueue(t)

	first := q.NextBackoff()
	assert.Equal(t, minBackoff, first)

	second := q.NextBackoff()
	assert.Equal(t, 2*minBackoff, second)

	for i := 0; i < 10; i++ {
		q.NextBackoff()
	}
	assert.Equal(t, maxBackoff, q.NextBackoff())

	q.Reset()
	assert.Equal(t, minBackoff, q.NextBackoff())
}
