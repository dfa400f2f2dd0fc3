//go:build unit

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	t.Parallel()

	now := time.Now()
	queue := NewMemoryQueue()

	queue.Enqueue(&Task{TrackingID: "a", ReadyAt: now})
	queue.Enqueue(&Task{TrackingID: "b", ReadyAt: now})
	queue.Enqueue(&Task{TrackingID: "c", ReadyAt: now})

	require.Equal(t, 3, queue.Len())

	assert.Equal(t, "a", queue.DequeueReady(now).TrackingID)
	assert.Equal(t, "b", queue.DequeueReady(now).TrackingID)
	assert.Equal(t, "c", queue.DequeueReady(now).TrackingID)
	assert.Nil(t, queue.DequeueReady(now))
}

func TestMemoryQueue_SkipsNotReadyTasks(t *testing.T) {
	t.Parallel()

	now := time.Now()
	queue := NewMemoryQueue()

	queue.Enqueue(&Task{TrackingID: "delayed", ReadyAt: now.Add(time.Minute)})
	queue.Enqueue(&Task{TrackingID: "ready", ReadyAt: now})

	task := queue.DequeueReady(now)
	require.NotNil(t, task)
	assert.Equal(t, "ready", task.TrackingID)

	assert.Nil(t, queue.DequeueReady(now), "delayed task is not ready yet")
	assert.Equal(t, 1, queue.Len(), "delayed task keeps its place")

	task = queue.DequeueReady(now.Add(time.Minute))
	require.NotNil(t, task)
	assert.Equal(t, "delayed", task.TrackingID)
}

func TestMemoryQueue_PushFront(t *testing.T) {
	t.Parallel()

	now := time.Now()
	queue := NewMemoryQueue()

	queue.Enqueue(&Task{TrackingID: "b", ReadyAt: now})
	queue.PushFront(&Task{TrackingID: "a", ReadyAt: now})

	assert.Equal(t, "a", queue.DequeueReady(now).TrackingID)
	assert.Equal(t, "b", queue.DequeueReady(now).TrackingID)
}

func TestMemoryQueue_IgnoresNil(t *testing.T) {
	t.Parallel()

	queue := NewMemoryQueue()

	queue.Enqueue(nil)
	queue.PushFront(nil)

	assert.Equal(t, 0, queue.Len())
}
