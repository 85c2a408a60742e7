package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockResult struct {
	idx int
	err error
}

func (r *mockResult) GetError() error { return r.err }
func (r *mockResult) Index() int      { return r.idx }

type mockJob struct {
	idx       int
	duration  time.Duration
	shouldErr bool
	executed  *int32
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{idx: j.idx, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{idx: j.idx, err: errors.New("job error")}
	}
	return &mockResult{idx: j.idx}
}

func TestNewPool(t *testing.T) {
	ctx := context.Background()

	p1 := NewPool(ctx, 5)
	assert.Equal(t, 5, p1.workers)
	p1.Shutdown()

	p2 := NewPool(ctx, 0)
	assert.Equal(t, 1, p2.workers)
	p2.Shutdown()

	p3 := NewPool(ctx, -1)
	assert.Equal(t, 1, p3.workers)
	p3.Shutdown()
}

func TestPool_ExecutionMoreJobsThanBuffer(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int32
	count := 50

	for i := 0; i < count; i++ {
		require.NoError(t, pool.Submit(&mockJob{idx: i, executed: &executed}))
	}

	results := pool.Wait()
	assert.Len(t, results, count)
	assert.Equal(t, int32(count), atomic.LoadInt32(&executed))
}

func TestPool_ErrorsArePropagated(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Submit(&mockJob{idx: i, shouldErr: i%2 == 0}))
	}

	failed := 0
	for _, r := range pool.Wait() {
		if r.GetError() != nil {
			failed++
		}
	}
	assert.Equal(t, 3, failed)
}

func TestPool_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()

	require.NoError(t, pool.Submit(&mockJob{duration: time.Second}))
	cancel()

	assert.Error(t, pool.Submit(&mockJob{}))
	pool.Shutdown()
	for _, r := range pool.collected {
		assert.ErrorIs(t, r.GetError(), context.Canceled)
	}
}

func TestRunBatch_Ordered(t *testing.T) {
	jobs := make([]Job, 20)
	for i := range jobs {
		// later jobs finish first
		jobs[i] = &mockJob{idx: i, duration: time.Duration(20-i) * time.Millisecond}
	}

	results, err := RunBatch(context.Background(), 4, jobs)
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, i, r.Index())
	}
}

func TestRunBatch_Empty(t *testing.T) {
	results, err := RunBatch(context.Background(), 4, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunBatch_CancelledDiscardsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	jobs := []Job{
		&mockJob{idx: 0},
		&mockJob{idx: 1, duration: 5 * time.Second},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results, err := RunBatch(ctx, 2, jobs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}
