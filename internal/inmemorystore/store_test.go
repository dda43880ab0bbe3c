package inmemorystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/model"
)

func TestSetAndGetStatus(t *testing.T) {
	s := New()
	ctx := context.Background()

	// Get status of an instance that doesn't exist yet
	status, err := s.GetStatus(ctx, "test[os=linux]")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	require.NoError(t, s.SetStatus(ctx, "test[os=linux]", model.StatusRunning))

	status, err = s.GetStatus(ctx, "test[os=linux]")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, status)
}

func TestSetAndGetOutput(t *testing.T) {
	s := New()
	ctx := context.Background()

	output, err := s.GetOutput(ctx, "build")
	require.NoError(t, err)
	assert.Nil(t, output)

	expected := map[string]string{"VERSION": "1.0.0"}
	require.NoError(t, s.SetOutput(ctx, "build", expected))

	output, err = s.GetOutput(ctx, "build")
	require.NoError(t, err)
	assert.Equal(t, expected, output)
}

func TestSetAndGetError(t *testing.T) {
	s := New()
	ctx := context.Background()

	retrieved, err := s.GetError(ctx, "build")
	require.NoError(t, err)
	assert.Nil(t, retrieved)

	expected := errors.New("exit status 2")
	require.NoError(t, s.SetError(ctx, "build", expected))

	retrieved, err = s.GetError(ctx, "build")
	require.NoError(t, err)
	assert.Equal(t, expected, retrieved)
}

func TestSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SetStatus(ctx, "lint", model.StatusSucceeded))
	require.NoError(t, s.SetStatus(ctx, "test", model.StatusFailed))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Status{
		"lint": model.StatusSucceeded,
		"test": model.StatusFailed,
	}, snap)
}

// TestStore_ConcurrentAccess verifies that the store can be safely accessed by
// multiple goroutines simultaneously without data races or lost writes.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	numGoroutines := 100
	var wg sync.WaitGroup

	// Phase 1: Concurrent Writes
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job[n=%d]", i)
			s.SetStatus(ctx, id, model.StatusSucceeded)
			s.SetOutput(ctx, id, i)
			s.SetError(ctx, id, fmt.Errorf("error for instance %d", i))
		}(i)
	}
	wg.Wait()

	// Phase 2: Concurrent Reads / Verification
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job[n=%d]", i)

			status, err := s.GetStatus(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, model.StatusSucceeded, status, "mismatched status for instance %d", i)

			output, err := s.GetOutput(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, i, output, "mismatched output for instance %d", i)

			nodeErr, err := s.GetError(ctx, id)
			assert.NoError(t, err)
			assert.EqualError(t, nodeErr, fmt.Sprintf("error for instance %d", i))
		}(i)
	}
	wg.Wait()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, numGoroutines)
}
