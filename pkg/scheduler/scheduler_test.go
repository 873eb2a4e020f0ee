package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsJob(t *testing.T) {
	s := New()
	var runs int32
	require.NoError(t, s.Every(50*time.Millisecond, "counter", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}))
	assert.Equal(t, 1, s.Jobs())

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 2
	}, 2*time.Second, 20*time.Millisecond)
}
