package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkState struct {
	mu   sync.Mutex
	vals []int
}

func squareProcess(state *int, in int) (int, error) {
	*state++ // count invocations per worker, exercises the per-worker clone

	return in * in, nil
}

func appendSink(ctx *sinkState, out int) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	ctx.vals = append(ctx.vals, out)

	return nil
}

func TestPipelinePreservesOrder(t *testing.T) {
	t.Parallel()

	ctx := &sinkState{}
	p := New[int, int, sinkState, int](ctx, appendSink)
	p.SpawnWorkers(4, 8, 0, squareProcess)

	const n = 200

	for i := range n {
		require.NoError(t, p.Write(i))

		if i%7 == 0 {
			require.NoError(t, p.Poll())
		}
	}

	finalCtx, err := p.Finalize()
	require.NoError(t, err)

	require.Len(t, finalCtx.vals, n)

	for i, v := range finalCtx.vals {
		assert.Equal(t, i*i, v)
	}
}

func TestPipelineSingleWorkerOrder(t *testing.T) {
	t.Parallel()

	ctx := &sinkState{}
	p := New[int, int, sinkState, int](ctx, appendSink)
	p.SpawnWorkers(1, 2, 0, squareProcess)

	for i := range 10 {
		require.NoError(t, p.Write(i))
	}

	finalCtx, err := p.Finalize()
	require.NoError(t, err)

	for i, v := range finalCtx.vals {
		assert.Equal(t, i*i, v)
	}
}

func TestPipelineWriteAfterFinalizeFails(t *testing.T) {
	t.Parallel()

	ctx := &sinkState{}
	p := New[int, int, sinkState, int](ctx, appendSink)
	p.SpawnWorkers(2, 4, 0, squareProcess)

	require.NoError(t, p.Write(1))

	_, err := p.Finalize()
	require.NoError(t, err)

	err = p.Write(2)
	require.ErrorIs(t, err, ErrFinalized)
}

func TestPipelinePropagatesProcessError(t *testing.T) {
	t.Parallel()

	boom := fmt.Errorf("boom")

	failOnFive := func(state *int, in int) (int, error) {
		if in == 5 {
			return 0, boom
		}

		return in, nil
	}

	ctx := &sinkState{}
	p := New[int, int, sinkState, int](ctx, appendSink)
	p.SpawnWorkers(2, 4, 0, failOnFive)

	for i := range 10 {
		require.NoError(t, p.Write(i))
	}

	_, err := p.Finalize()
	require.ErrorIs(t, err, boom)
}

func TestPipelineSurvivesSlowHeadOfLineJob(t *testing.T) {
	t.Parallel()

	// Job 0 is slow, jobs 1-3 finish almost instantly. With n=2, bufferBound=2
	// the in-flight bound is 4: the fast jobs must be able to finish and
	// hand their slots back before job 0's result is delivered, or Write
	// blocks forever with nothing left to drain it.
	slowProcess := func(_ *int, in int) (int, error) {
		if in == 0 {
			time.Sleep(50 * time.Millisecond)
		}

		return in, nil
	}

	ctx := &sinkState{}
	p := New[int, int, sinkState, int](ctx, appendSink)
	p.SpawnWorkers(2, 2, 0, slowProcess)

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := range 12 {
			require.NoError(t, p.Write(i))
			require.NoError(t, p.Poll())
		}

		_, err := p.Finalize()
		require.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline deadlocked on a slow head-of-line job")
	}

	require.Len(t, ctx.vals, 12)

	for i, v := range ctx.vals {
		assert.Equal(t, i, v)
	}
}

func TestPipelineEmptyFinalize(t *testing.T) {
	t.Parallel()

	ctx := &sinkState{}
	p := New[int, int, sinkState, int](ctx, appendSink)
	p.SpawnWorkers(3, 4, 0, squareProcess)

	finalCtx, err := p.Finalize()
	require.NoError(t, err)
	assert.Empty(t, finalCtx.vals)
}
